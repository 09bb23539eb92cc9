package quality_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kernel/internal/quality"
)

type fakeLookup struct {
	records []quality.PriorRecord
}

func (f fakeLookup) CandidatesForTopics(topics []string) []quality.PriorRecord {
	return f.records
}

func TestClassify_GreetingRejectedLowQuality(t *testing.T) {
	counter := quality.NewRepetitionCounter()
	defer counter.Stop()

	result := quality.Classify(context.Background(), quality.Candidate{
		UserUtterance: "hi",
		AgentResponse: "hello, what do you need?",
	}, nil, counter, quality.DefaultThresholds())

	assert.Equal(t, quality.DecisionRejectLowQuality, result.Decision)
	assert.Equal(t, "low_quality", result.RejectionReason)
}

func TestClassify_DefinitionStored(t *testing.T) {
	counter := quality.NewRepetitionCounter()
	defer counter.Stop()

	result := quality.Classify(context.Background(), quality.Candidate{
		UserUtterance: "Entropy is a measure of disorder in a system",
		AgentResponse: "Yes, specifically in thermodynamics and information theory",
		Topics:        []string{"entropy"},
	}, fakeLookup{}, counter, quality.DefaultThresholds())

	require.Equal(t, quality.DecisionStore, result.Decision)
	assert.GreaterOrEqual(t, result.ImportanceScore, 70)
}

func TestClassify_DuplicateRejected(t *testing.T) {
	counter := quality.NewRepetitionCounter()
	defer counter.Stop()

	cand := quality.Candidate{
		UserUtterance: "Entropy is a measure of disorder in a system",
		AgentResponse: "Yes, specifically in thermodynamics and information theory",
		Topics:        []string{"entropy"},
	}
	sig := quality.NormalizeSignature(cand.UserUtterance)
	lookup := fakeLookup{records: []quality.PriorRecord{{Signature: sig, Topics: []string{"entropy"}}}}

	result := quality.Classify(context.Background(), cand, lookup, counter, quality.DefaultThresholds())
	assert.Equal(t, quality.DecisionRejectDuplicate, result.Decision)
	assert.Equal(t, "duplicate", result.RejectionReason)
}

func TestClassify_ImportanceBoundary(t *testing.T) {
	counter := quality.NewRepetitionCounter()
	defer counter.Stop()

	result := quality.Classify(context.Background(), quality.Candidate{
		UserUtterance: "The quick brown status of the thing is mostly fine today",
		AgentResponse: "ok",
	}, fakeLookup{}, counter, quality.DefaultThresholds())

	if result.ImportanceScore >= 55 {
		assert.Equal(t, quality.DecisionStore, result.Decision)
	} else {
		assert.Equal(t, quality.DecisionRejectLowQuality, result.Decision)
	}
}

func TestClassify_ShortUtteranceRejected(t *testing.T) {
	counter := quality.NewRepetitionCounter()
	defer counter.Stop()

	result := quality.Classify(context.Background(), quality.Candidate{
		UserUtterance: "ok thanks",
		AgentResponse: "no problem",
	}, nil, counter, quality.DefaultThresholds())
	assert.Equal(t, quality.DecisionRejectLowQuality, result.Decision)
}

func TestRepetitionCounter_Increment(t *testing.T) {
	counter := quality.NewRepetitionCounter()
	defer counter.Stop()

	ctx := context.Background()
	first := counter.Increment(ctx, []string{"alpha"})
	second := counter.Increment(ctx, []string{"alpha"})
	assert.Equal(t, 1, first["alpha"])
	assert.Equal(t, 2, second["alpha"])
}
