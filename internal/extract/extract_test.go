package extract_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kernel/internal/extract"
)

func TestExtract_Definition(t *testing.T) {
	facts, summary := extract.Extract(
		"Entropy is a measure of disorder in a system",
		"Yes, specifically in thermodynamics and information theory",
	)
	require.NotEmpty(t, facts)

	var def *extract.Fact
	for i := range facts {
		if facts[i].Type == extract.FactDefinition {
			def = &facts[i]
			break
		}
	}
	require.NotNil(t, def, "expected a definition fact, got %+v", facts)
	assert.Equal(t, "entropy", def.Subject)
	assert.Contains(t, def.Value, "disorder")
	assert.Contains(t, summary, "entropy")
}

func TestExtract_Causal(t *testing.T) {
	facts, _ := extract.Extract("smoking causes lung damage over time", "understood")
	var causal *extract.Fact
	for i := range facts {
		if facts[i].Type == extract.FactCausal {
			causal = &facts[i]
			break
		}
	}
	require.NotNil(t, causal)
	assert.Equal(t, "smoking", causal.Cause)
}

func TestExtract_Formula(t *testing.T) {
	facts, _ := extract.Extract("x = a + b squared", "noted")
	var formula *extract.Fact
	for i := range facts {
		if facts[i].Type == extract.FactFormula {
			formula = &facts[i]
			break
		}
	}
	require.NotNil(t, formula)
	assert.Equal(t, "x", formula.Variable)
}

func TestExtract_FormulaOnlyFromUserText(t *testing.T) {
	facts, _ := extract.Extract("what is the weather", "y = m * x + b explains it")
	for _, f := range facts {
		assert.NotEqual(t, extract.FactFormula, f.Type)
	}
}

func TestExtract_NoFactsFallsBackToFilteredSummary(t *testing.T) {
	_, summary := extract.Extract("um so like you know what's up", "just chatting I guess")
	assert.NotContains(t, summary, "um")
	assert.NotContains(t, summary, "you know")
}

func TestExtract_Deterministic(t *testing.T) {
	f1, s1 := extract.Extract("water boils at 100 degrees", "interesting fact")
	f2, s2 := extract.Extract("water boils at 100 degrees", "interesting fact")
	assert.Equal(t, f1, f2)
	assert.Equal(t, s1, s2)
}

func TestExtract_DedupesRepeatedFacts(t *testing.T) {
	facts, _ := extract.Extract("entropy is disorder. entropy is disorder.", "ok")
	count := 0
	for _, f := range facts {
		if f.Type == extract.FactDefinition && f.Subject == "entropy" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}
