package core_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kernel/internal/core"
	"github.com/kubilitics/kernel/internal/ethics"
	"github.com/kubilitics/kernel/internal/memory"
	"github.com/kubilitics/kernel/internal/reasoning"
	"github.com/kubilitics/kernel/internal/watchdog"
)

func newTestCore(t *testing.T) core.Core {
	t.Helper()
	registry, err := ethics.NewRegistry(ethics.DefaultRuleSource(), nil)
	require.NoError(t, err)
	wd := watchdog.New(watchdog.DefaultThresholds(), nil, nil)
	mem := memory.New(nil, nil)
	reasoner, err := reasoning.New(reasoning.Deps{Registry: registry, Watchdog: wd})
	require.NoError(t, err)
	return core.New(core.Deps{Registry: registry, Watchdog: wd, Memory: mem, Reasoner: reasoner})
}

func TestCore_DecideApproved(t *testing.T) {
	c := newTestCore(t)
	trace, err := c.Decide(context.Background(), &ethics.Action{
		ActionType: "query",
		Parameters: map[string]interface{}{"operation": "read", "description": "Read market data"},
	}, "Kyle", false)
	require.NoError(t, err)
	assert.Equal(t, reasoning.DecisionApproved, trace.Decision)
}

func TestCore_IngestAndQuery(t *testing.T) {
	c := newTestCore(t)
	id, reason := c.Ingest(context.Background(), memory.IngestRequest{
		UserUtterance: "Entropy is a measure of disorder in a system",
		AgentResponse: "Yes, specifically in thermodynamics",
		Topics:        []string{"entropy"},
	})
	require.NotEmpty(t, id)
	assert.Empty(t, reason)

	result := c.QueryMemory(context.Background(), "entropy", 10, 0, memory.SortByImportance, false)
	assert.Equal(t, 1, result.Total)
}

func TestCore_Feedback(t *testing.T) {
	c := newTestCore(t)
	id, _ := c.Ingest(context.Background(), memory.IngestRequest{
		UserUtterance: "Gravity causes objects to accelerate toward the earth",
		AgentResponse: "Yes, at 9.8 meters per second squared",
		Topics:        []string{"physics"},
	})
	require.NotEmpty(t, id)
	assert.True(t, c.Feedback(context.Background(), id, core.FeedbackBoost, "manual"))
	assert.False(t, c.Feedback(context.Background(), "nope", core.FeedbackBoost, "manual"))
}

func TestCore_Health(t *testing.T) {
	c := newTestCore(t)
	health := c.Health(context.Background())
	assert.False(t, health.EmergencyHalted)
}
