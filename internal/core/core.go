// Package core is the caller surface every upstream component (agents,
// transports, CLIs — all out of scope here per spec §1) invokes to reach
// the reasoning kernel. It wires the Ethics Registry, Watchdog, Memory
// Engine, and Hierarchical Reasoner behind the five operations named in
// spec §6: decide, ingest, query_memory, feedback, health.
package core

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kernel/internal/db"
	"github.com/kubilitics/kernel/internal/ethics"
	"github.com/kubilitics/kernel/internal/memory"
	"github.com/kubilitics/kernel/internal/metrics"
	"github.com/kubilitics/kernel/internal/reasoning"
	"github.com/kubilitics/kernel/internal/watchdog"
)

// FeedbackKind selects Feedback's direction.
type FeedbackKind string

const (
	FeedbackBoost  FeedbackKind = "boost"
	FeedbackDemote FeedbackKind = "demote"
)

// HealthSnapshot is Health's return value (spec §6).
type HealthSnapshot struct {
	Agents          map[string]watchdog.AgentHealth
	ReasonerStats   reasoning.Stats
	EmergencyHalted bool
	HaltReason      string
}

// Core is the kernel's single entry point for external callers.
type Core interface {
	Decide(ctx context.Context, action *ethics.Action, originatingAgent string, forceFull bool) (*reasoning.ReasoningTrace, error)
	Ingest(ctx context.Context, req memory.IngestRequest) (memoryID string, rejectionReason string)
	QueryMemory(ctx context.Context, topic string, limit int, minImportance int, sortBy memory.SortBy, includeCompressed bool) memory.RetrieveResult
	Feedback(ctx context.Context, memoryID string, kind FeedbackKind, reason string) bool
	Health(ctx context.Context) HealthSnapshot
}

type coreImpl struct {
	reasoner reasoning.Reasoner
	mem      memory.Engine
	watchdog watchdog.Monitor
	audit    db.AuditStore
	log      *zap.Logger
}

// Deps wires Core to the cooperating components it orchestrates. Audit is
// optional — when nil, decisions and rejections are not persisted for
// later querying; Log is only used for halt refusals and audit-append
// failures.
type Deps struct {
	Registry ethics.Registry
	Watchdog watchdog.Monitor
	Memory   memory.Engine
	Reasoner reasoning.Reasoner
	Audit    db.AuditStore
	Log      *zap.Logger
}

// New assembles Core from already-constructed components. Each component
// is independently constructible and testable; New only wires them.
func New(deps Deps) Core {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &coreImpl{
		reasoner: deps.Reasoner,
		mem:      deps.Memory,
		watchdog: deps.Watchdog,
		audit:    deps.Audit,
		log:      log,
	}
}

// appendAudit persists an audit event and swallows the error into a log
// line — the audit trail must never be able to fail a decide/ingest call.
func (c *coreImpl) appendAudit(ctx context.Context, eventType, resource, action, result string, metadata map[string]interface{}) {
	if c.audit == nil {
		return
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		meta = []byte("{}")
	}
	rec := &db.AuditRecord{
		EventType: eventType,
		Resource:  resource,
		Action:    action,
		Result:    result,
		Metadata:  string(meta),
		Timestamp: time.Now(),
	}
	if id, ok := metadata["correlation_id"].(string); ok {
		rec.CorrelationID = id
	}
	if err := c.audit.AppendAuditEvent(ctx, rec); err != nil {
		c.log.Warn("core: audit append failed", zap.String("event_type", eventType), zap.Error(err))
	}
}

func (c *coreImpl) Decide(ctx context.Context, action *ethics.Action, originatingAgent string, forceFull bool) (*reasoning.ReasoningTrace, error) {
	if halted, reason := c.watchdog.IsHalted(); halted {
		c.log.Warn("core: decide refused, kernel halted", zap.String("reason", reason))
		metrics.DecisionsTotal.WithLabelValues(string(reasoning.DecisionEscalate)).Inc()
		return &reasoning.ReasoningTrace{
			CorrelationID: action.CorrelationID,
			Decision:      reasoning.DecisionEscalate,
			Confidence:    0,
			Warnings:      []string{"emergency_halted: " + reason},
		}, nil
	}

	start := time.Now()
	trace, err := c.reasoner.Decide(ctx, action, originatingAgent, forceFull)
	if err == nil {
		metrics.DecisionsTotal.WithLabelValues(string(trace.Decision)).Inc()
		metrics.DecisionDuration.WithLabelValues(string(trace.Decision)).Observe(time.Since(start).Seconds())
		c.appendAudit(ctx, "decision_made", originatingAgent, action.ActionType, string(trace.Decision), map[string]interface{}{
			"correlation_id":  trace.CorrelationID,
			"confidence":      trace.Confidence,
			"levels_executed": trace.LevelsExecuted,
			"violations":      trace.Violations,
		})
	}
	return trace, err
}

func (c *coreImpl) Ingest(ctx context.Context, req memory.IngestRequest) (string, string) {
	memoryID, reason := c.mem.Store(ctx, req)
	if memoryID != "" {
		metrics.MemoriesStoredTotal.Inc()
	} else {
		metrics.MemoriesRejectedTotal.WithLabelValues(reason).Inc()
		c.appendAudit(ctx, "memory_rejected", "memory", "ingest", reason, map[string]interface{}{
			"topics": req.Topics,
		})
	}
	return memoryID, reason
}

func (c *coreImpl) QueryMemory(ctx context.Context, topic string, limit int, minImportance int, sortBy memory.SortBy, includeCompressed bool) memory.RetrieveResult {
	return c.mem.Retrieve(ctx, topic, limit, minImportance, sortBy, includeCompressed)
}

func (c *coreImpl) Feedback(ctx context.Context, memoryID string, kind FeedbackKind, reason string) bool {
	var ok bool
	switch kind {
	case FeedbackBoost:
		ok = c.mem.Boost(ctx, memoryID, reason)
	case FeedbackDemote:
		ok = c.mem.Demote(ctx, memoryID, reason)
	default:
		return false
	}
	if ok {
		metrics.MemoryFeedbackTotal.WithLabelValues(string(kind)).Inc()
	}
	return ok
}

func (c *coreImpl) Health(ctx context.Context) HealthSnapshot {
	halted, reason := c.watchdog.IsHalted()
	return HealthSnapshot{
		Agents:          c.watchdog.Status(""),
		ReasonerStats:   c.reasoner.Stats(ctx),
		EmergencyHalted: halted,
		HaltReason:      reason,
	}
}
