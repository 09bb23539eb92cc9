// Package quality implements the Quality Filter — the gate between
// candidate conversational turns and the durable Memory Engine. Classify
// is the pure decision function; the only process-wide mutable state it
// touches is the shared RepetitionCounter actor, reached exclusively
// through channel requests (see repetition.go).
//
// Grounded in the same "pure decision over a typed input" shape as the
// teacher's policy engine (internal/safety/policy in the reference
// kernel), generalized from Kubernetes-mutation policies to memory
// ingestion policies.
package quality

import (
	"context"
	"regexp"
	"strings"
)

// Decision is the outcome of Classify.
type Decision string

const (
	DecisionStore             Decision = "store"
	DecisionRejectLowQuality  Decision = "reject_low_quality"
	DecisionRejectDuplicate   Decision = "reject_duplicate"
)

// Candidate is one conversational turn offered for ingestion.
type Candidate struct {
	UserUtterance  string
	AgentResponse  string
	Topics         []string
	Context        map[string]interface{}
}

// PriorRecord is the minimal shape of an already-stored memory the
// duplicate check needs. The Memory Engine supplies these; the Quality
// Filter never reaches into storage itself.
type PriorRecord struct {
	Signature string   // normalized-50-char signature
	Topics    []string
	Words     map[string]struct{} // normalized word set, for Jaccard
}

// DuplicateLookup is implemented by the Memory Engine to hand the filter
// only the candidate records relevant to this ingestion's topics.
type DuplicateLookup interface {
	CandidatesForTopics(topics []string) []PriorRecord
}

// ClassifyResult is Classify's return value.
type ClassifyResult struct {
	Decision        Decision
	ImportanceScore int
	RejectionReason string
}

// Thresholds holds the Quality Filter's tunable numeric knobs, sourced
// from config.Config.Quality and eligible for the config hot-reload path.
type Thresholds struct {
	ImportanceThreshold   int
	DuplicateJaccard      float64
	DuplicateTopicOverlap float64
}

// DefaultThresholds mirrors the filter's historical fixed constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ImportanceThreshold:   55,
		DuplicateJaccard:      0.85,
		DuplicateTopicOverlap: 0.80,
	}
}

var (
	factualPattern    = regexp.MustCompile(`\b(is|are|means|causes|cause)\b`)
	causalPattern     = regexp.MustCompile(`\b(because|therefore|if\s.+\sthen|leads to|results in)\b`)
	proceduralPattern = regexp.MustCompile(`\b(how to|steps to)\b`)
	emphasisPattern   = regexp.MustCompile(`\b(remember|important|must)\b`)
	questionPattern   = regexp.MustCompile(`\?`)
	numberPattern     = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
	datePattern       = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b|\b(january|february|march|april|may|june|july|august|september|october|november|december)\b`)
	urlPattern        = regexp.MustCompile(`https?://`)
	properNamePattern = regexp.MustCompile(`\b[A-Z][a-z]+\b`)
	instructionPattern = regexp.MustCompile(`\b(do this|run|execute|follow these)\b`)

	anecdotePattern  = regexp.MustCompile(`\b(i remember|once upon|one time|when i was)\b`)
	greetingPattern  = regexp.MustCompile(`^\s*(hi|hello|hey|good morning|good evening)[\s!.,]*$`)
	thanksPattern    = regexp.MustCompile(`^\s*(thanks|thank you|thx)[\s!.,]*$`)
	goodbyePattern   = regexp.MustCompile(`^\s*(bye|goodbye|see you|see ya)[\s!.,]*$`)
	statusPattern    = regexp.MustCompile(`^\s*show me (your|the) (status|index|log)[\s?!.,]*$`)
	opinionPattern   = regexp.MustCompile(`\b(i think|i feel|i believe|in my opinion)\b`)
)

// Classify is the Quality Filter's only public operation (spec §4.2).
func Classify(ctx context.Context, cand Candidate, lookup DuplicateLookup, counter *RepetitionCounter, thresholds Thresholds) ClassifyResult {
	combined := strings.ToLower(strings.TrimSpace(cand.UserUtterance + " " + cand.AgentResponse))
	userLower := strings.ToLower(strings.TrimSpace(cand.UserUtterance))

	if isLowQualityTemplate(userLower, combined) {
		return ClassifyResult{Decision: DecisionRejectLowQuality, RejectionReason: "low_quality"}
	}

	importance := scoreImportance(cand, combined, counter.Increment(ctx, cand.Topics))
	importance = clampScore(importance)

	if lookup != nil && isDuplicate(cand, userLower, lookup, thresholds) {
		return ClassifyResult{Decision: DecisionRejectDuplicate, ImportanceScore: importance, RejectionReason: "duplicate"}
	}

	if importance < thresholds.ImportanceThreshold {
		return ClassifyResult{Decision: DecisionRejectLowQuality, ImportanceScore: importance, RejectionReason: "low_quality"}
	}

	return ClassifyResult{Decision: DecisionStore, ImportanceScore: importance}
}

func isLowQualityTemplate(userLower, combined string) bool {
	if len(strings.TrimSpace(userLower)) < 10 {
		return true
	}
	if greetingPattern.MatchString(userLower) {
		return true
	}
	if thanksPattern.MatchString(userLower) {
		return true
	}
	if goodbyePattern.MatchString(userLower) {
		return true
	}
	if statusPattern.MatchString(userLower) {
		return true
	}
	return false
}

func scoreImportance(cand Candidate, combined string, postCounts map[string]int) int {
	score := 20

	if emphasisPattern.MatchString(combined) {
		score += 30
	}
	if factualPattern.MatchString(combined) {
		score += 25
	}
	if causalPattern.MatchString(combined) {
		score += 20
	}
	if proceduralPattern.MatchString(combined) {
		score += 25
	}
	if isNovel(postCounts) {
		score += 20
	}
	if questionPattern.MatchString(combined) {
		score += 15
	}

	l := len(combined)
	if l > 50 {
		score += 10
	}
	if l > 100 {
		score += 10
	}
	if l > 200 {
		score += 5
	}

	if n := len(cand.Topics); n > 0 {
		bonus := 6 * n
		if bonus > 20 {
			bonus = 20
		}
		score += bonus
	}

	if numberPattern.MatchString(combined) {
		score += 8
	}
	if datePattern.MatchString(combined) {
		score += 10
	}
	if urlPattern.MatchString(combined) {
		score += 12
	}
	if properNamePattern.MatchString(cand.UserUtterance + " " + cand.AgentResponse) {
		score += 8
	}
	if instructionPattern.MatchString(combined) {
		score += 15
	}

	score += repetitionBoost(postCounts)

	if anecdotePattern.MatchString(combined) {
		score -= 25
	}
	if l < 15 {
		score -= 25
	}
	if opinionPattern.MatchString(combined) {
		score -= 15
	}

	return score
}

// isNovel reports whether none of the candidate's topics had a prior
// strength (pre-increment count) >= 2, i.e. post-increment count <= 2.
func isNovel(postCounts map[string]int) bool {
	if len(postCounts) == 0 {
		return true
	}
	for _, post := range postCounts {
		if post-1 >= 2 {
			return false
		}
	}
	return true
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// isDuplicate implements the normalized-signature-or-similarity check
// from spec §4.2.
func isDuplicate(cand Candidate, userLower string, lookup DuplicateLookup, thresholds Thresholds) bool {
	sig := NormalizeSignature(cand.UserUtterance)
	words := WordSet(userLower)
	priors := lookup.CandidatesForTopics(cand.Topics)

	for _, p := range priors {
		if p.Signature == sig {
			return true
		}
		overlap := topicOverlap(cand.Topics, p.Topics)
		if overlap >= thresholds.DuplicateTopicOverlap && jaccard(words, p.Words) > thresholds.DuplicateJaccard {
			return true
		}
	}
	return false
}

var punctuationPattern = regexp.MustCompile(`[^\w\s]`)
var whitespacePattern = regexp.MustCompile(`\s+`)

// NormalizeSignature lowercases, strips punctuation, collapses
// whitespace, and truncates to 50 characters (spec §4.2).
func NormalizeSignature(s string) string {
	lower := strings.ToLower(s)
	stripped := punctuationPattern.ReplaceAllString(lower, "")
	collapsed := strings.TrimSpace(whitespacePattern.ReplaceAllString(stripped, " "))
	if len(collapsed) > 50 {
		return collapsed[:50]
	}
	return collapsed
}

// WordSet tokenizes a normalized lowercase string into a set of words.
func WordSet(lower string) map[string]struct{} {
	stripped := punctuationPattern.ReplaceAllString(lower, "")
	fields := strings.Fields(stripped)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func topicOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	bSet := make(map[string]struct{}, len(b))
	for _, t := range b {
		bSet[t] = struct{}{}
	}
	matches := 0
	for _, t := range a {
		if _, ok := bSet[t]; ok {
			matches++
		}
	}
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(matches) / float64(smaller)
}
