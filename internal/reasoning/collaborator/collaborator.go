// Package collaborator defines the narrow, typed contracts the
// Hierarchical Reasoner uses to consult the Context, Truth, and Risk
// agents at L2/L3/L4. Transport to the actual agents is out of scope
// (spec §1) — these are abstract operations a caller wires to whatever
// agent implementation it has; this package also ships deterministic
// neutral stub implementations so the reasoner has a usable default when
// no real collaborator is configured.
package collaborator

import (
	"context"
	"time"

	"github.com/kubilitics/kernel/internal/ethics"
)

// ContextResult is L2's response shape (spec §6).
type ContextResult struct {
	RelevantMemories []string
	ContextScore     float64
}

// Context fills L2.
type Context interface {
	RetrieveContext(ctx context.Context, action *ethics.Action, originatingAgent string, deadline time.Duration) (ContextResult, error)
}

// TruthResult is L3's response shape.
type TruthResult struct {
	TruthScore   float64
	Confidence   float64
	BiasDetected bool
}

// Truth fills L3.
type Truth interface {
	Verify(ctx context.Context, actionDescription string, deadline time.Duration) (TruthResult, error)
}

// RiskLevel classifies L4's assessment.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskResult is L4's response shape.
type RiskResult struct {
	RiskLevel         RiskLevel
	RiskScore         float64
	ExecutionFeasible bool
	Warnings          []string
}

// Risk fills L4.
type Risk interface {
	AssessRisk(ctx context.Context, action *ethics.Action, deadline time.Duration) (RiskResult, error)
}

// NeutralContext always returns a middling, unopinionated context score.
// Useful as a default when no real Context collaborator is wired.
type NeutralContext struct{}

func (NeutralContext) RetrieveContext(ctx context.Context, action *ethics.Action, originatingAgent string, deadline time.Duration) (ContextResult, error) {
	return ContextResult{RelevantMemories: nil, ContextScore: 0.5}, nil
}

// NeutralTruth always reports a neutral, unverified truth score.
type NeutralTruth struct{}

func (NeutralTruth) Verify(ctx context.Context, actionDescription string, deadline time.Duration) (TruthResult, error) {
	return TruthResult{TruthScore: 0.5, Confidence: 0.5, BiasDetected: false}, nil
}

// NeutralRisk always reports medium, feasible risk.
type NeutralRisk struct{}

func (NeutralRisk) AssessRisk(ctx context.Context, action *ethics.Action, deadline time.Duration) (RiskResult, error) {
	return RiskResult{RiskLevel: RiskMedium, RiskScore: 0.5, ExecutionFeasible: true}, nil
}
