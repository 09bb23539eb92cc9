package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kernel/internal/memory"
)

func TestStore_GreetingRejected(t *testing.T) {
	eng := memory.New(nil, nil)
	id, reason := eng.Store(context.Background(), memory.IngestRequest{
		UserUtterance: "hi",
		AgentResponse: "hello, what do you need?",
	})
	assert.Empty(t, id)
	assert.Equal(t, "low_quality", reason)
}

func TestStore_DefinitionStoredAndRetrievable(t *testing.T) {
	eng := memory.New(nil, nil)
	id, reason := eng.Store(context.Background(), memory.IngestRequest{
		UserUtterance: "Entropy is a measure of disorder in a system",
		AgentResponse: "Yes, specifically in thermodynamics and information theory",
		Topics:        []string{"entropy"},
	})
	require.NotEmpty(t, id)
	assert.Empty(t, reason)

	result := eng.Retrieve(context.Background(), "entropy", 10, 0, memory.SortByImportance, false)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, id, result.Memories[0].ID)
	assert.GreaterOrEqual(t, result.Memories[0].BaseImportance, 70)
}

func TestStore_DuplicateRejectedOnSecondIngest(t *testing.T) {
	eng := memory.New(nil, nil)
	req := memory.IngestRequest{
		UserUtterance: "Entropy is a measure of disorder in a system",
		AgentResponse: "Yes, specifically in thermodynamics and information theory",
		Topics:        []string{"entropy"},
	}
	id1, _ := eng.Store(context.Background(), req)
	require.NotEmpty(t, id1)

	id2, reason := eng.Store(context.Background(), req)
	assert.Empty(t, id2)
	assert.Equal(t, "duplicate", reason)

	stats := eng.Stats(context.Background())
	assert.Equal(t, 1, stats.TotalMemories)
}

func TestBoost_ClampToBounds(t *testing.T) {
	eng := memory.New(nil, nil)
	id, _ := eng.Store(context.Background(), memory.IngestRequest{
		UserUtterance: "Photosynthesis is how plants convert light into energy",
		AgentResponse: "Correct, it happens in the chloroplasts",
		Topics:        []string{"biology"},
	})
	require.NotEmpty(t, id)

	for i := 0; i < 5; i++ {
		assert.True(t, eng.Boost(context.Background(), id, "manual"))
	}
	result := eng.Retrieve(context.Background(), "biology", 10, 0, memory.SortByImportance, false)
	require.Len(t, result.Memories, 1)
	assert.LessOrEqual(t, result.Memories[0].EffectiveImportance(), 100)
}

func TestBoost_UnknownMemoryReturnsFalse(t *testing.T) {
	eng := memory.New(nil, nil)
	assert.False(t, eng.Boost(context.Background(), "nonexistent", "x"))
	assert.False(t, eng.Demote(context.Background(), "nonexistent", "x"))
}

func TestRetrieve_AutoBoostsEveryThirdRetrieval(t *testing.T) {
	eng := memory.New(nil, nil)
	id, _ := eng.Store(context.Background(), memory.IngestRequest{
		UserUtterance: "Gravity causes objects to accelerate toward the earth",
		AgentResponse: "Yes, at 9.8 meters per second squared",
		Topics:        []string{"physics"},
	})
	require.NotEmpty(t, id)

	before := eng.Stats(context.Background())
	_ = before

	for i := 0; i < 3; i++ {
		eng.Retrieve(context.Background(), "physics", 10, 0, memory.SortByDate, false)
	}
	result := eng.Retrieve(context.Background(), "physics", 10, 0, memory.SortByDate, false)
	require.Len(t, result.Memories, 1)
	assert.Greater(t, result.Memories[0].UserAdjustment, 0)
}

func TestSearch_RanksByRelevance(t *testing.T) {
	eng := memory.New(nil, nil)
	eng.Store(context.Background(), memory.IngestRequest{
		UserUtterance: "Kubernetes pods are the smallest deployable unit",
		AgentResponse: "Correct, they wrap one or more containers",
		Topics:        []string{"kubernetes"},
	})
	eng.Store(context.Background(), memory.IngestRequest{
		UserUtterance: "Photosynthesis converts sunlight into chemical energy",
		AgentResponse: "Yes, inside the chloroplast",
		Topics:        []string{"biology"},
	})

	results := eng.Search(context.Background(), "kubernetes pods deployment", 5)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Memory.UserUtterance, "Kubernetes")
}

func TestStats_TotalsAndTopTopics(t *testing.T) {
	eng := memory.New(nil, nil)
	eng.Store(context.Background(), memory.IngestRequest{
		UserUtterance: "Caching reduces latency for repeated reads",
		AgentResponse: "Yes, at the cost of staleness risk",
		Topics:        []string{"caching", "performance"},
	})
	stats := eng.Stats(context.Background())
	assert.Equal(t, 1, stats.TotalMemories)
	assert.Equal(t, 2, stats.TotalTopics)
}
