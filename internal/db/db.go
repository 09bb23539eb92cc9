package db

import (
	"context"
	"time"
)

// Store is the persistence interface for the kernel's durable state: stored
// memories, their topic index, compressed knowledge, agent health snapshots,
// and the audit trail.
type Store interface {
	MemoryStore
	AgentHealthStore
	AuditStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// ─── Memory store ──────────────────────────────────────────────────────────

// MemoryRecord is the DB representation of a stored memory, mirroring
// internal/memory.Memory.
type MemoryRecord struct {
	ID              string    `json:"id"`
	UserUtterance   string    `json:"user_utterance"`
	AgentResponse   string    `json:"agent_response"`
	Topics          string    `json:"topics"` // JSON array
	ImportanceScore int       `json:"importance_score"`
	UserAdjustment  int       `json:"user_adjustment"`
	RetrievalCount  int       `json:"retrieval_count"`
	ExtractedFacts  string    `json:"extracted_facts"` // JSON array
	CreatedAt       time.Time `json:"created_at"`
	LastRetrievedAt time.Time `json:"last_retrieved_at"`
}

// CompressedKnowledgeRecord is the DB representation of a topic's rolled-up
// knowledge summary, mirroring internal/memory.CompressedKnowledge.
type CompressedKnowledgeRecord struct {
	Topic           string    `json:"topic"`
	Summary         string    `json:"summary"`
	KeyInsights     string    `json:"key_insights"`   // JSON array
	RelatedTopics   string    `json:"related_topics"` // JSON array
	SourceCount     int       `json:"source_count"`
	CompressionRate float64   `json:"compression_rate"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MemoryStore persists the Memory Engine's append-only store and its
// per-topic compressed knowledge, giving the in-process engine durability
// across restarts. internal/memory.Persister is the narrower interface the
// engine actually depends on; sqliteStore implements both.
type MemoryStore interface {
	// SaveMemory writes (or overwrites) a single memory record.
	SaveMemory(ctx context.Context, rec *MemoryRecord) error

	// SaveCompressedKnowledge writes (or overwrites) a topic's compressed
	// knowledge record.
	SaveCompressedKnowledge(ctx context.Context, rec *CompressedKnowledgeRecord) error

	// LoadAllMemories returns every stored memory, oldest first.
	LoadAllMemories(ctx context.Context) ([]*MemoryRecord, error)

	// LoadAllCompressedKnowledge returns every topic's compressed knowledge.
	LoadAllCompressedKnowledge(ctx context.Context) ([]*CompressedKnowledgeRecord, error)
}

// ─── Agent health store ────────────────────────────────────────────────────

// AgentHealthRecord is a point-in-time snapshot of an agent's health, kept
// for historical trending and postmortems. The watchdog does not write
// these itself; a snapshot is stored only when a caller passes one to
// AppendAgentHealth.
type AgentHealthRecord struct {
	ID              int64     `json:"id"`
	AgentName       string    `json:"agent_name"`
	HealthScore     float64   `json:"health_score"`
	FailureRate     float64   `json:"failure_rate"`
	AvgLatencyMS    float64   `json:"avg_latency_ms"`
	Isolated        bool      `json:"isolated"`
	IsolationReason string    `json:"isolation_reason"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// AgentHealthStore persists agent health snapshots.
type AgentHealthStore interface {
	// AppendAgentHealth records a single health snapshot.
	AppendAgentHealth(ctx context.Context, rec *AgentHealthRecord) error

	// QueryAgentHealth retrieves snapshots for an agent within a time window,
	// oldest first.
	QueryAgentHealth(ctx context.Context, agentName string, from, to time.Time) ([]*AgentHealthRecord, error)
}

// ─── Audit store ───────────────────────────────────────────────────────────

// AuditRecord is the DB representation of an audit event.
type AuditRecord struct {
	ID            int64     `json:"id"`
	CorrelationID string    `json:"correlation_id"`
	EventType     string    `json:"event_type"`
	Description   string    `json:"description"`
	Resource      string    `json:"resource"`
	Action        string    `json:"action"`
	Result        string    `json:"result"`
	UserID        string    `json:"user_id"`
	Metadata      string    `json:"metadata"` // JSON blob
	Timestamp     time.Time `json:"timestamp"`
}

// AuditStore persists audit log entries.
type AuditStore interface {
	// AppendAuditEvent appends an immutable audit event.
	AppendAuditEvent(ctx context.Context, rec *AuditRecord) error

	// QueryAuditEvents retrieves audit events with optional filters.
	QueryAuditEvents(ctx context.Context, q AuditQuery) ([]*AuditRecord, error)
}

// AuditQuery filters audit event queries.
type AuditQuery struct {
	Resource  string
	Action    string
	EventType string
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}
