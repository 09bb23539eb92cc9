package ethics_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kernel/internal/ethics"
)

func newTestRegistry(t *testing.T) ethics.Registry {
	t.Helper()
	reg, err := ethics.NewRegistry(ethics.DefaultRuleSource(), nil)
	require.NoError(t, err)
	return reg
}

func TestEvaluate_SafeQueryApproved(t *testing.T) {
	reg := newTestRegistry(t)
	verdict := reg.Evaluate(context.Background(), &ethics.Action{
		ActionType: "query",
		Parameters: map[string]interface{}{"operation": "read", "description": "Read market data"},
	})
	assert.True(t, verdict.Approved)
	assert.Empty(t, verdict.Warnings)
	assert.InDelta(t, 1.0, verdict.ComplianceScore, 0.0001)
	assert.LessOrEqual(t, len(verdict.RulesChecked), 5)
}

func TestEvaluate_TradeNearThresholdWarns(t *testing.T) {
	reg := newTestRegistry(t)
	verdict := reg.Evaluate(context.Background(), &ethics.Action{
		ActionType: "trade",
		Parameters: map[string]interface{}{
			"symbol":             "BTC/USD",
			"direction":          "long",
			"position_size_pct":  0.09,
			"leverage":           1.9,
			"stop_loss":          45000.0,
		},
	})
	assert.True(t, verdict.Approved)
	assert.NotEmpty(t, verdict.Warnings)
	found := false
	for _, w := range verdict.Warnings {
		if strings.Contains(w, "near position size threshold") {
			found = true
		}
	}
	assert.True(t, found, "expected a near-threshold warning, got %v", verdict.Warnings)
}

func TestEvaluate_TradeViolations(t *testing.T) {
	reg := newTestRegistry(t)
	verdict := reg.Evaluate(context.Background(), &ethics.Action{
		ActionType: "trade",
		Parameters: map[string]interface{}{
			"position_size_pct": 0.15,
			"leverage":          5.0,
			"stop_loss":         nil,
		},
	})
	assert.False(t, verdict.Approved)
	assert.ElementsMatch(t, []string{"position_size", "leverage", "stop_loss"}, verdict.Violations)
	assert.Less(t, verdict.ComplianceScore, 0.5)
}

func TestEvaluate_UnknownActionTypeOnlyChecksAnyRules(t *testing.T) {
	reg := newTestRegistry(t)
	verdict := reg.Evaluate(context.Background(), &ethics.Action{
		ActionType: "frobnicate",
		Parameters: map[string]interface{}{},
	})
	assert.True(t, verdict.Approved)
	for _, id := range verdict.RulesChecked {
		rules := reg.GetRules("")
		found := false
		for _, r := range rules {
			if r.ID == id {
				assert.Equal(t, "any", r.Applicability)
				found = true
			}
		}
		assert.True(t, found)
	}
}

func TestEvaluate_NeverPanics(t *testing.T) {
	reg := newTestRegistry(t)
	assert.NotPanics(t, func() {
		reg.Evaluate(context.Background(), &ethics.Action{ActionType: "trade", Parameters: nil})
	})
	assert.NotPanics(t, func() {
		reg.Evaluate(context.Background(), nil)
	})
}

func TestGetRules_ReturnsCopiesNotReferences(t *testing.T) {
	reg := newTestRegistry(t)
	rules := reg.GetRules("trading")
	require.NotEmpty(t, rules)
	rules[0].Reason = "mutated"
	again := reg.GetRules("trading")
	assert.NotEqual(t, "mutated", again[0].Reason)
}
