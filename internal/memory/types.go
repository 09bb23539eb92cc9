// Package memory implements the Memory Engine — the append-only,
// quality-filtered, infinitely-retained store of high-value
// conversational memories. It owns three pieces of state: the memory
// records themselves, an inverted TopicIndex, and a per-topic
// CompressedKnowledge table regenerated on consolidation.
//
// Grounded in the teacher's WorldModel (internal/memory/worldmodel in the
// reference kernel): a mutex-guarded set of maps, generalized from a
// live cluster snapshot to an append-only knowledge store.
package memory

import (
	"time"

	"github.com/kubilitics/kernel/internal/extract"
)

// SortBy selects Retrieve's ordering.
type SortBy string

const (
	SortByRelevance SortBy = "relevance"
	SortByDate      SortBy = "date"
	SortByImportance SortBy = "importance"
)

// Memory is one durable, quality-filtered conversational turn.
type Memory struct {
	ID                 string
	UserUtterance      string
	AgentResponse      string
	CompressedSummary  string
	ExtractedFacts     []extract.Fact
	Topics             []string
	Keywords           []string
	Sentiment          string
	BaseImportance     int // as scored by the Quality Filter, 0..100
	UserAdjustment     int // clamped to [-30, 30]
	KnowledgeDensity   float64
	CreatedAt          time.Time
	Retrievals         int
	Boosts             int
	Demotes            int
	insertionSeq       int64 // tie-break for sort_by=date
}

// EffectiveImportance is min(base+adjustment, 100) when adjustment > 0,
// else max(base+adjustment, 0) — spec §4.4.
func (m Memory) EffectiveImportance() int {
	v := m.BaseImportance + m.UserAdjustment
	if m.UserAdjustment > 0 {
		if v > 100 {
			return 100
		}
		return v
	}
	if v < 0 {
		return 0
	}
	return v
}

// CompressedKnowledge is a per-topic consolidated aggregate, regenerated
// wholesale on every consolidation trigger.
type CompressedKnowledge struct {
	Topic             string
	TotalReferences   int
	FirstSeen         time.Time
	LastSeen          time.Time
	AverageImportance float64
	KeyInsights       []string // memory_ids, top 10 by importance
	RelatedTopics     []RelatedTopic
	CompressionRatio  float64
	LastCompressedAt  time.Time
}

// RelatedTopic is one co-occurrence edge out of a topic, stored directed
// (spec §9) rather than as a mutual reference, to avoid ownership cycles.
type RelatedTopic struct {
	Topic     string
	Frequency int
}

// IngestRequest is the input to Store.
type IngestRequest struct {
	UserUtterance string
	AgentResponse string
	Topics        []string
	Sentiment     string
	Context       map[string]interface{}
}

// RetrieveResult is Retrieve's return value.
type RetrieveResult struct {
	Memories   []Memory
	Total      int
	Compressed *CompressedKnowledge // only set when include_compressed and present
}

// ScoredMemory pairs a Memory with its Search relevance score.
type ScoredMemory struct {
	Memory Memory
	Score  float64
}

// StatsSnapshot is Stats' return value.
type StatsSnapshot struct {
	TotalMemories      int
	TotalTopics        int
	TopTopicsBySize    []TopicSize
	ConsolidatedTopics int
	LastConsolidatedAt time.Time
}

// TopicSize pairs a topic with how many memories reference it.
type TopicSize struct {
	Topic string
	Count int
}
