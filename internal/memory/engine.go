package memory

import (
	"context"

	"github.com/kubilitics/kernel/internal/quality"
)

// Engine is the Memory Engine's public surface (spec §4.4).
type Engine interface {
	// Store runs the Quality Filter over req; on acceptance it writes a
	// Memory and updates the TopicIndex for every topic, returning the new
	// memory_id. On rejection it returns ("", reason).
	Store(ctx context.Context, req IngestRequest) (memoryID string, rejectionReason string)

	// Retrieve returns memories for topic, recording a retrieval against
	// each one returned (auto-feedback, spec §4.4).
	Retrieve(ctx context.Context, topic string, limit int, minImportance int, sortBy SortBy, includeCompressed bool) RetrieveResult

	// Search ranks memories by keyword/topic relevance against query.
	Search(ctx context.Context, query string, limit int) []ScoredMemory

	// Boost and Demote adjust a memory's user_adjustment by +/-10 and
	// return false for an unknown memory_id; they never raise.
	Boost(ctx context.Context, memoryID, reason string) bool
	Demote(ctx context.Context, memoryID, reason string) bool

	// Stats reports totals, top topics, and consolidation status.
	Stats(ctx context.Context) StatsSnapshot

	// UpdateQualityThresholds swaps the Quality Filter's numeric knobs
	// live, for config.ConfigManager.Watch's hot-reload path.
	UpdateQualityThresholds(t quality.Thresholds)
}

// Persister is the durability hook the Memory Engine calls on every
// accepted store and every feedback mutation. A nil Persister is valid —
// the engine then runs purely in memory. internal/db's sqlite-backed
// implementation satisfies this interface (see internal/db/memorystore.go).
type Persister interface {
	SaveMemory(ctx context.Context, m Memory) error
	SaveCompressed(ctx context.Context, ck CompressedKnowledge) error
	LoadAll(ctx context.Context) ([]Memory, error)
}
