package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kubilitics/kernel/internal/extract"
	"github.com/kubilitics/kernel/internal/metrics"
	"github.com/kubilitics/kernel/internal/quality"
)

const (
	boostStep            = 10
	adjustmentMin        = -30
	adjustmentMax        = 30
	consolidationPeriod  = 100
	consolidationMinSize = 5
	autoBoostEveryNth    = 3
	searchRelevanceFloor = 0.3
)

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "of": {}, "in": {}, "to": {},
	"and": {}, "it": {}, "that": {}, "this": {}, "for": {}, "on": {}, "with": {},
	"was": {}, "be": {}, "at": {}, "by": {}, "i": {}, "you": {}, "what": {}, "do": {},
}

type engineImpl struct {
	mu sync.RWMutex

	memories   map[string]*Memory
	topicIndex map[string][]string // topic -> memory_id, append-ordered
	compressed map[string]CompressedKnowledge

	insertionSeq int64
	storeCount   int

	repetition *quality.RepetitionCounter
	thresholds quality.Thresholds
	persister  Persister
	log        *zap.Logger
}

// New constructs an Engine. persister may be nil for an in-memory-only
// engine (tests, or a process that rebuilds state from an event log
// elsewhere).
func New(persister Persister, log *zap.Logger) Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &engineImpl{
		memories:   make(map[string]*Memory),
		topicIndex: make(map[string][]string),
		compressed: make(map[string]CompressedKnowledge),
		repetition: quality.NewRepetitionCounter(),
		thresholds: quality.DefaultThresholds(),
		persister:  persister,
		log:        log,
	}
	if persister != nil {
		if loaded, err := persister.LoadAll(context.Background()); err == nil {
			for i := range loaded {
				m := loaded[i]
				e.memories[m.ID] = &m
				for _, topic := range m.Topics {
					e.topicIndex[topic] = append(e.topicIndex[topic], m.ID)
				}
			}
			log.Info("memory: restored from persistence", zap.Int("count", len(loaded)))
		} else {
			log.Warn("memory: failed to restore from persistence", zap.Error(err))
		}
	}
	return e
}

// CandidatesForTopics implements quality.DuplicateLookup by scanning the
// topic index for the candidate's topics, satisfying interface.
func (e *engineImpl) CandidatesForTopics(topics []string) []quality.PriorRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []quality.PriorRecord
	for _, topic := range topics {
		for _, id := range e.topicIndex[topic] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			m, ok := e.memories[id]
			if !ok {
				continue
			}
			out = append(out, quality.PriorRecord{
				Signature: quality.NormalizeSignature(m.UserUtterance),
				Topics:    m.Topics,
				Words:     quality.WordSet(strings.ToLower(m.UserUtterance)),
			})
		}
	}
	return out
}

// UpdateQualityThresholds swaps the numeric knobs Store's Quality Filter
// pass reads, under the same lock that guards the rest of the engine's
// state.
func (e *engineImpl) UpdateQualityThresholds(t quality.Thresholds) {
	e.mu.Lock()
	e.thresholds = t
	e.mu.Unlock()
}

func (e *engineImpl) Store(ctx context.Context, req IngestRequest) (string, string) {
	candidate := quality.Candidate{
		UserUtterance: req.UserUtterance,
		AgentResponse: req.AgentResponse,
		Topics:        req.Topics,
		Context:       req.Context,
	}
	e.mu.RLock()
	thresholds := e.thresholds
	e.mu.RUnlock()
	result := quality.Classify(ctx, candidate, e, e.repetition, thresholds)
	if result.Decision != quality.DecisionStore {
		return "", result.RejectionReason
	}

	facts, summary := extract.Extract(req.UserUtterance, req.AgentResponse)
	density := 0.0
	if len(facts) > 0 {
		density = float64(len(facts)) / float64(max(1, wordCount(req.UserUtterance+" "+req.AgentResponse)/10))
		if density > 1 {
			density = 1
		}
	}

	e.mu.Lock()
	id := uuid.NewString()
	e.insertionSeq++
	m := Memory{
		ID:                id,
		UserUtterance:     req.UserUtterance,
		AgentResponse:     req.AgentResponse,
		CompressedSummary: summary,
		ExtractedFacts:    facts,
		Topics:            req.Topics,
		Keywords:          extractKeywords(req.UserUtterance + " " + req.AgentResponse),
		Sentiment:         req.Sentiment,
		BaseImportance:    result.ImportanceScore,
		KnowledgeDensity:  density,
		CreatedAt:         time.Now(),
		insertionSeq:      e.insertionSeq,
	}
	e.memories[id] = &m

	// Write memory body and persist it; the index is only updated once the
	// write succeeded. On persistence failure the in-memory body is removed
	// again, so nothing is indexed (spec §4.4 failure semantics).
	var persistErr error
	if e.persister != nil {
		persistErr = e.persister.SaveMemory(ctx, m)
	}
	if persistErr != nil {
		delete(e.memories, id)
		e.mu.Unlock()
		e.log.Warn("memory: storage error, write rejected", zap.Error(persistErr))
		return "", "storage_error"
	}

	for _, topic := range req.Topics {
		e.topicIndex[topic] = append(e.topicIndex[topic], id)
	}
	e.storeCount++
	shouldConsolidate := e.storeCount%consolidationPeriod == 0
	e.mu.Unlock()

	if shouldConsolidate {
		e.consolidate(ctx)
	}

	return id, ""
}

func (e *engineImpl) Retrieve(ctx context.Context, topic string, limit int, minImportance int, sortBy SortBy, includeCompressed bool) RetrieveResult {
	e.mu.Lock()
	ids := append([]string(nil), e.topicIndex[topic]...)
	var matched []*Memory
	for _, id := range ids {
		m, ok := e.memories[id]
		if !ok || m.EffectiveImportance() < minImportance {
			continue
		}
		matched = append(matched, m)
	}

	switch sortBy {
	case SortByDate:
		sort.SliceStable(matched, func(i, j int) bool {
			if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
				return matched[i].insertionSeq < matched[j].insertionSeq
			}
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		})
	case SortByImportance:
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].EffectiveImportance() > matched[j].EffectiveImportance()
		})
	default: // relevance: importance-weighted, same as importance when no query given
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].EffectiveImportance() > matched[j].EffectiveImportance()
		})
	}

	total := len(matched)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]Memory, 0, len(matched))
	for _, m := range matched {
		out = append(out, *m)
	}

	var toAutoBoost []string
	for _, m := range matched {
		m.Retrievals++
		if m.Retrievals%autoBoostEveryNth == 0 {
			toAutoBoost = append(toAutoBoost, m.ID)
		}
	}

	var compressed *CompressedKnowledge
	if includeCompressed {
		if ck, ok := e.compressed[topic]; ok {
			c := ck
			compressed = &c
		}
	}
	e.mu.Unlock()

	for _, id := range toAutoBoost {
		e.Boost(ctx, id, "frequent_retrieval")
	}

	return RetrieveResult{Memories: out, Total: total, Compressed: compressed}
}

func (e *engineImpl) Search(ctx context.Context, query string, limit int) []ScoredMemory {
	queryLower := strings.ToLower(query)
	queryWords := quality.WordSet(queryLower)

	e.mu.RLock()
	var scored []ScoredMemory
	for _, m := range e.memories {
		score := 0.0
		for _, kw := range m.Keywords {
			if _, ok := queryWords[kw]; ok {
				score += 0.2
			}
		}
		for _, topic := range m.Topics {
			if strings.Contains(queryLower, strings.ToLower(topic)) {
				score += 0.3
			}
		}
		score += float64(m.EffectiveImportance()) / 100.0 * 0.2
		if score >= searchRelevanceFloor {
			scored = append(scored, ScoredMemory{Memory: *m, Score: score})
		}
	}
	e.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

func (e *engineImpl) Boost(ctx context.Context, memoryID, reason string) bool {
	return e.adjust(ctx, memoryID, boostStep)
}

func (e *engineImpl) Demote(ctx context.Context, memoryID, reason string) bool {
	return e.adjust(ctx, memoryID, -boostStep)
}

func (e *engineImpl) adjust(ctx context.Context, memoryID string, delta int) bool {
	e.mu.Lock()
	m, ok := e.memories[memoryID]
	if !ok {
		e.mu.Unlock()
		return false
	}
	adjusted := m.UserAdjustment + delta
	if adjusted > adjustmentMax {
		adjusted = adjustmentMax
	}
	if adjusted < adjustmentMin {
		adjusted = adjustmentMin
	}
	m.UserAdjustment = adjusted
	if delta > 0 {
		m.Boosts++
	} else {
		m.Demotes++
	}
	snapshot := *m
	e.mu.Unlock()

	if e.persister != nil {
		if err := e.persister.SaveMemory(ctx, snapshot); err != nil {
			e.log.Warn("memory: failed to persist feedback", zap.String("memory_id", memoryID), zap.Error(err))
		}
	}
	return true
}

func (e *engineImpl) Stats(ctx context.Context) StatsSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	topics := make([]TopicSize, 0, len(e.topicIndex))
	for topic, ids := range e.topicIndex {
		topics = append(topics, TopicSize{Topic: topic, Count: len(ids)})
	}
	sort.SliceStable(topics, func(i, j int) bool { return topics[i].Count > topics[j].Count })
	if len(topics) > 10 {
		topics = topics[:10]
	}

	var lastConsolidated time.Time
	for _, ck := range e.compressed {
		if ck.LastCompressedAt.After(lastConsolidated) {
			lastConsolidated = ck.LastCompressedAt
		}
	}

	return StatsSnapshot{
		TotalMemories:       len(e.memories),
		TotalTopics:         len(e.topicIndex),
		TopTopicsBySize:     topics,
		ConsolidatedTopics:  len(e.compressed),
		LastConsolidatedAt:  lastConsolidated,
	}
}

// consolidate regenerates CompressedKnowledge for every topic whose
// TopicIndex has at least consolidationMinSize entries (spec §4.4).
func (e *engineImpl) consolidate(ctx context.Context) {
	e.mu.Lock()
	type topicMemories struct {
		topic string
		ids   []string
	}
	var candidates []topicMemories
	for topic, ids := range e.topicIndex {
		if len(ids) >= consolidationMinSize {
			candidates = append(candidates, topicMemories{topic: topic, ids: append([]string(nil), ids...)})
		}
	}

	coOccurrence := make(map[string]map[string]int)
	for _, tm := range candidates {
		for _, id := range tm.ids {
			m, ok := e.memories[id]
			if !ok {
				continue
			}
			for _, other := range m.Topics {
				if other == tm.topic {
					continue
				}
				if coOccurrence[tm.topic] == nil {
					coOccurrence[tm.topic] = make(map[string]int)
				}
				coOccurrence[tm.topic][other]++
			}
		}
	}

	now := time.Now()
	var newlyConsolidated []CompressedKnowledge
	for _, tm := range candidates {
		var mems []*Memory
		var first, last time.Time
		sumImportance := 0
		for i, id := range tm.ids {
			m, ok := e.memories[id]
			if !ok {
				continue
			}
			mems = append(mems, m)
			sumImportance += m.EffectiveImportance()
			if i == 0 || m.CreatedAt.Before(first) {
				first = m.CreatedAt
			}
			if m.CreatedAt.After(last) {
				last = m.CreatedAt
			}
		}
		sort.SliceStable(mems, func(i, j int) bool {
			return mems[i].EffectiveImportance() > mems[j].EffectiveImportance()
		})
		topN := mems
		if len(topN) > 10 {
			topN = topN[:10]
		}
		keyInsights := make([]string, 0, len(topN))
		for _, m := range topN {
			keyInsights = append(keyInsights, m.ID)
		}

		var related []RelatedTopic
		for other, freq := range coOccurrence[tm.topic] {
			related = append(related, RelatedTopic{Topic: other, Frequency: freq})
		}
		sort.SliceStable(related, func(i, j int) bool { return related[i].Frequency > related[j].Frequency })
		if len(related) > 10 {
			related = related[:10]
		}

		avg := 0.0
		if len(mems) > 0 {
			avg = float64(sumImportance) / float64(len(mems))
		}

		ck := CompressedKnowledge{
			Topic:             tm.topic,
			TotalReferences:   len(mems),
			FirstSeen:         first,
			LastSeen:          last,
			AverageImportance: avg,
			KeyInsights:       keyInsights,
			RelatedTopics:     related,
			CompressionRatio:  compressionRatio(len(mems)),
			LastCompressedAt:  now,
		}
		e.compressed[tm.topic] = ck
		newlyConsolidated = append(newlyConsolidated, ck)
	}
	e.mu.Unlock()

	if e.persister != nil {
		for _, ck := range newlyConsolidated {
			if err := e.persister.SaveCompressed(ctx, ck); err != nil {
				e.log.Warn("memory: failed to persist compressed knowledge", zap.String("topic", ck.Topic), zap.Error(err))
			}
		}
	}
	if len(newlyConsolidated) > 0 {
		metrics.ConsolidationsTotal.Add(float64(len(newlyConsolidated)))
	}
}

func compressionRatio(memoryCount int) float64 {
	if memoryCount == 0 {
		return 0
	}
	return float64(10) / float64(memoryCount) // top-10 insights out of memoryCount sources
}

func extractKeywords(text string) []string {
	words := quality.WordSet(strings.ToLower(text))
	out := make([]string, 0, len(words))
	for w := range words {
		if len(w) <= 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	sort.Strings(out)
	if len(out) > 20 {
		out = out[:20]
	}
	return out
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
