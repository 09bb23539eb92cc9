// Package extract implements the Knowledge Extractor — a pure function
// turning one conversational turn into typed Facts plus a compressed
// summary. No component in this package touches storage, the clock (save
// for determinism, none is used at all), or any collaborator; identical
// inputs always yield identical output (spec §8, "Extraction is
// deterministic").
//
// Patterns are kept as data, a table of pattern id -> matcher -> Fact
// builder, per the specification's design notes (§9) — the same shape as
// the teacher's immutableRules table in internal/safety/policy, adapted
// here from safety checks to linguistic pattern matches so the pattern
// set stays testable and extensible without touching the orchestration
// code that calls it.
package extract

import (
	"regexp"
	"strings"
)

// FactType classifies an extracted Fact.
type FactType string

const (
	FactDefinition FactType = "definition"
	FactCausal     FactType = "causal"
	FactNumerical  FactType = "numerical"
	FactFormula    FactType = "formula"
)

// Fact is one structured statement pulled out of an utterance.
type Fact struct {
	Type       FactType
	Subject    string
	Value      string
	Cause      string
	Effect     string
	Variable   string
	Expression string
	Confidence float64
}

// dedupeKey is the (type, subject/variable/cause, value/expression/effect)
// tuple used to collapse facts matched by more than one pattern.
func (f Fact) dedupeKey() string {
	switch f.Type {
	case FactDefinition:
		return string(f.Type) + "|" + f.Subject + "|" + f.Value
	case FactCausal:
		return string(f.Type) + "|" + f.Cause + "|" + f.Effect
	case FactNumerical:
		return string(f.Type) + "|" + f.Subject + "|" + f.Value
	case FactFormula:
		return string(f.Type) + "|" + f.Variable + "|" + f.Expression
	}
	return string(f.Type)
}

// matcher finds every occurrence of one pattern in text and builds Facts.
type matcher struct {
	id    string
	regex *regexp.Regexp
	build func(m []string) Fact
}

var fillerWords = regexp.MustCompile(`\b(um|uh|like|you know|i mean|sort of|kind of)\b`)
var multiSpace = regexp.MustCompile(`\s+`)

var definitionRegex = regexp.MustCompile(`([a-z][a-z0-9 _-]{1,60}?)\s+(?:is defined as|refers to|known as|is|are|means|equals)\s+([a-z0-9][^.!?]{3,200})`)
var causalRegex = regexp.MustCompile(`([a-z][a-z0-9 _-]{1,60}?)\s+(?:causes|leads to|results in)\s+([a-z0-9][^.!?]{1,200})`)
var numericalRegex = regexp.MustCompile(`([a-z][a-z0-9 _-]{1,60}?)\s+(?:is at|is of|is|at|of|equals)\s+(-?\d+(?:\.\d+)?\s?[a-z%]*)`)
var formulaRegex = regexp.MustCompile(`\b([a-zA-Z][a-zA-Z0-9_]{0,15})\s*=\s*([^.!?,;]{1,80})`)

var matchers = []matcher{
	{
		id:    "definition",
		regex: definitionRegex,
		build: func(m []string) Fact {
			return Fact{
				Type:       FactDefinition,
				Subject:    strings.TrimSpace(m[1]),
				Value:      strings.TrimSpace(m[2]),
				Confidence: 0.8,
			}
		},
	},
	{
		id:    "causal",
		regex: causalRegex,
		build: func(m []string) Fact {
			return Fact{
				Type:       FactCausal,
				Cause:      strings.TrimSpace(m[1]),
				Effect:     strings.TrimSpace(m[2]),
				Confidence: 0.75,
			}
		},
	},
	{
		id:    "numerical",
		regex: numericalRegex,
		build: func(m []string) Fact {
			return Fact{
				Type:       FactNumerical,
				Subject:    strings.TrimSpace(m[1]),
				Value:      strings.TrimSpace(m[2]),
				Confidence: 0.7,
			}
		},
	},
}

var formulaMatcher = matcher{
	id:    "formula",
	regex: formulaRegex,
	build: func(m []string) Fact {
		return Fact{
			Type:       FactFormula,
			Variable:   strings.TrimSpace(m[1]),
			Expression: strings.TrimSpace(m[2]),
			Confidence: 0.65,
		}
	},
}

// Extract is the Knowledge Extractor's only public operation (spec §4.3).
// Definitions, causal, and numerical patterns run over the lowercased
// concatenation of both utterances; formulas run over user_text only.
func Extract(userText, agentText string) (facts []Fact, compressedSummary string) {
	combined := strings.ToLower(userText + ". " + agentText)

	seen := make(map[string]struct{})
	var out []Fact
	for _, mt := range matchers {
		for _, groups := range mt.regex.FindAllStringSubmatch(combined, -1) {
			fact := mt.build(groups)
			key := fact.dedupeKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, fact)
		}
	}

	userLower := strings.ToLower(userText)
	for _, groups := range formulaMatcher.regex.FindAllStringSubmatch(userLower, -1) {
		fact := formulaMatcher.build(groups)
		key := fact.dedupeKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, fact)
	}

	return out, compress(out, userText, agentText)
}

// compress renders facts canonically when any were extracted; otherwise
// it falls back to filler-word and greeting removal (spec §4.3).
func compress(facts []Fact, userText, agentText string) string {
	if len(facts) > 0 {
		rendered := make([]string, 0, len(facts))
		for _, f := range facts {
			rendered = append(rendered, renderFact(f))
		}
		return strings.Join(rendered, " | ")
	}
	return fallbackCompress(userText + " " + agentText)
}

func renderFact(f Fact) string {
	switch f.Type {
	case FactDefinition:
		return f.Subject + " is " + f.Value
	case FactCausal:
		return f.Cause + " causes " + f.Effect
	case FactNumerical:
		return f.Subject + " = " + f.Value
	case FactFormula:
		return f.Variable + " = " + f.Expression
	}
	return ""
}

func fallbackCompress(text string) string {
	lower := strings.ToLower(text)
	noFiller := fillerWords.ReplaceAllString(lower, "")
	noFiller = regexp.MustCompile(`\b(hi|hello|hey|good morning|good evening)\b`).ReplaceAllString(noFiller, "")

	sentences := regexp.MustCompile(`[.!?]+`).Split(noFiller, -1)
	var kept []string
	for _, s := range sentences {
		trimmed := strings.TrimSpace(multiSpace.ReplaceAllString(s, " "))
		if len(trimmed) <= 10 {
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.Join(kept, " ")
}
