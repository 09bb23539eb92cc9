package reasoning

import "time"

// Decision is the Reasoner's final verdict.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionDenied   Decision = "denied"
	DecisionEscalate Decision = "escalate"
)

// LevelResult is a per-level snapshot retained on the trace.
type LevelResult struct {
	Level    int
	Name     string
	Score    float64
	Skipped  bool
	Reason   string // set when Skipped, e.g. "collaborator_timeout", "agent_isolated"
	Warnings []string
}

// ReasoningTrace is the auditable record of one decide() call (spec §3).
type ReasoningTrace struct {
	CorrelationID    string
	LevelsExecuted   []int
	LevelResults     []LevelResult
	Path             []string
	TotalDurationMS  float64
	Decision         Decision
	Confidence       float64
	Violations       []string
	Warnings         []string
}

// historyEntry is the bounded-buffer record kept for statistics.
type historyEntry struct {
	at       time.Time
	decision Decision
	duration float64
}

// Stats summarizes the bounded decision-history buffer (spec §4.5, "every
// invocation appends an entry to a bounded statistics history buffer").
type Stats struct {
	SampleSize     int
	DecisionCounts map[Decision]int
	AvgDurationMS  float64
	LastDecisionAt time.Time
}
