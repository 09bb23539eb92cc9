package reasoning

import "time"

// Budgets holds the global decide budget and per-level consultation
// budgets (spec §4.5/§9: per-level budgets sum to at most 300ms, leaving
// slack in the 1000ms global budget for L1, L5, and orchestration).
type Budgets struct {
	Global time.Duration
	L2     time.Duration
	L3     time.Duration
	L4     time.Duration
}

// DefaultBudgets matches the recommended values in spec §4.5.
func DefaultBudgets() Budgets {
	return Budgets{
		Global: 1000 * time.Millisecond,
		L2:     80 * time.Millisecond,
		L3:     100 * time.Millisecond,
		L4:     120 * time.Millisecond,
	}
}

// Weights are the L5 synthesis weights (spec §4.5).
type Weights struct {
	L1, L2, L3, L4 float64
}

// DefaultWeights matches w_L1=1.0, w_L2=0.3, w_L3=0.5, w_L4=0.7.
func DefaultWeights() Weights {
	return Weights{L1: 1.0, L2: 0.3, L3: 0.5, L4: 0.7}
}

const (
	confidenceApproveThreshold  = 0.70
	confidenceEscalateThreshold = 0.40
)
