package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Kernel production metrics, one family per component named in SPEC_FULL.md.
var (
	// Hierarchical Reasoner metrics
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kernel_decisions_total",
			Help: "Total number of Decide calls by final decision",
		},
		[]string{"decision"}, // approved/denied/escalate
	)

	DecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kernel_decision_duration_seconds",
			Help:    "Decide call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		},
		[]string{"decision"},
	)

	LevelExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kernel_reasoning_level_executions_total",
			Help: "Total number of reasoning levels executed, by level and outcome",
		},
		[]string{"level", "outcome"}, // outcome: completed/collaborator_timeout/collaborator_failure/agent_isolated
	)

	BudgetExceededTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kernel_decide_budget_exceeded_total",
			Help: "Total number of Decide calls that exceeded the global decide budget",
		},
	)

	// Quality Filter / Memory Engine metrics
	MemoriesStoredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kernel_memories_stored_total",
			Help: "Total number of memories accepted by the quality filter",
		},
	)

	MemoriesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kernel_memories_rejected_total",
			Help: "Total number of memories rejected by the quality filter",
		},
		[]string{"reason"}, // low_quality/duplicate
	)

	ConsolidationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kernel_consolidations_total",
			Help: "Total number of compressed-knowledge consolidation passes",
		},
	)

	MemoryFeedbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kernel_memory_feedback_total",
			Help: "Total number of boost/demote feedback calls",
		},
		[]string{"kind"}, // boost/demote
	)

	// Immutable Ethics Registry metrics
	EthicsEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kernel_ethics_evaluations_total",
			Help: "Total number of ethics rule evaluations, by outcome",
		},
		[]string{"outcome"}, // compliant/warning/violation
	)

	EthicsComplianceScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kernel_ethics_compliance_score",
			Help:    "Distribution of compliance scores produced by L1 evaluation",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 .. 1.0
		},
	)

	// Agent Health Monitor / Watchdog metrics
	AgentIsolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kernel_agent_isolations_total",
			Help: "Total number of automatic agent isolations, by trigger",
		},
		[]string{"agent", "trigger"},
	)

	AgentRestorationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kernel_agent_restorations_total",
			Help: "Total number of manual agent restorations",
		},
		[]string{"agent"},
	)

	EmergencyHaltsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kernel_emergency_halts_total",
			Help: "Total number of emergency halts triggered",
		},
	)

	BackpressureEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kernel_backpressure_events_total",
			Help: "Total number of sustained decide-latency backpressure events",
		},
	)

	AgentHealthScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kernel_agent_health_score",
			Help: "Current health_score for each tracked agent",
		},
		[]string{"agent"},
	)
)
