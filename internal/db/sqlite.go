package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// migrations defines the tables for the kernel's persistence layer.
// Version is tracked in the schema_versions table.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS memories (
    id                TEXT PRIMARY KEY,
    user_utterance    TEXT NOT NULL,
    agent_response    TEXT NOT NULL,
    topics            TEXT NOT NULL DEFAULT '[]',
    importance_score  INTEGER NOT NULL DEFAULT 0,
    user_adjustment   INTEGER NOT NULL DEFAULT 0,
    retrieval_count   INTEGER NOT NULL DEFAULT 0,
    extracted_facts   TEXT NOT NULL DEFAULT '[]',
    created_at        DATETIME NOT NULL,
    last_retrieved_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance_score DESC);

CREATE TABLE IF NOT EXISTS compressed_knowledge (
    topic            TEXT PRIMARY KEY,
    summary          TEXT NOT NULL DEFAULT '',
    key_insights     TEXT NOT NULL DEFAULT '[]',
    related_topics   TEXT NOT NULL DEFAULT '[]',
    source_count     INTEGER NOT NULL DEFAULT 0,
    compression_rate REAL NOT NULL DEFAULT 0.0,
    updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS agent_health_snapshots (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    agent_name       TEXT NOT NULL,
    health_score     REAL NOT NULL DEFAULT 1.0,
    failure_rate     REAL NOT NULL DEFAULT 0.0,
    avg_latency_ms   REAL NOT NULL DEFAULT 0.0,
    isolated         INTEGER NOT NULL DEFAULT 0,
    isolation_reason TEXT NOT NULL DEFAULT '',
    recorded_at      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_health_name_time ON agent_health_snapshots(agent_name, recorded_at DESC);

CREATE TABLE IF NOT EXISTS audit_events (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    correlation_id  TEXT NOT NULL DEFAULT '',
    event_type      TEXT NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    resource        TEXT NOT NULL DEFAULT '',
    action          TEXT NOT NULL DEFAULT '',
    result          TEXT NOT NULL DEFAULT '',
    user_id         TEXT NOT NULL DEFAULT '',
    metadata        TEXT NOT NULL DEFAULT '{}',
    timestamp       DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp  ON audit_events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_resource   ON audit_events(resource);
CREATE INDEX IF NOT EXISTS idx_audit_event_type ON audit_events(event_type);
`,
	},
}

type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Memories ───────────────────────────────────────────────────────────────

func (s *sqliteStore) SaveMemory(ctx context.Context, rec *MemoryRecord) error {
	var lastRetrieved interface{}
	if !rec.LastRetrievedAt.IsZero() {
		lastRetrieved = rec.LastRetrievedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO memories(id, user_utterance, agent_response, topics, importance_score, user_adjustment, retrieval_count, extracted_facts, created_at, last_retrieved_at)
        VALUES(?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT(id) DO UPDATE SET
            importance_score  = excluded.importance_score,
            user_adjustment   = excluded.user_adjustment,
            retrieval_count   = excluded.retrieval_count,
            last_retrieved_at = excluded.last_retrieved_at
    `,
		rec.ID, rec.UserUtterance, rec.AgentResponse, rec.Topics, rec.ImportanceScore,
		rec.UserAdjustment, rec.RetrievalCount, rec.ExtractedFacts, rec.CreatedAt.UTC(), lastRetrieved,
	)
	if err != nil {
		return fmt.Errorf("upsert memory: %w", err)
	}
	return nil
}

func (s *sqliteStore) SaveCompressedKnowledge(ctx context.Context, rec *CompressedKnowledgeRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO compressed_knowledge(topic, summary, key_insights, related_topics, source_count, compression_rate, updated_at)
        VALUES(?,?,?,?,?,?,?)
        ON CONFLICT(topic) DO UPDATE SET
            summary          = excluded.summary,
            key_insights     = excluded.key_insights,
            related_topics   = excluded.related_topics,
            source_count     = excluded.source_count,
            compression_rate = excluded.compression_rate,
            updated_at       = excluded.updated_at
    `,
		rec.Topic, rec.Summary, rec.KeyInsights, rec.RelatedTopics, rec.SourceCount,
		rec.CompressionRate, rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert compressed knowledge: %w", err)
	}
	return nil
}

func (s *sqliteStore) LoadAllMemories(ctx context.Context) ([]*MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,user_utterance,agent_response,topics,importance_score,user_adjustment,retrieval_count,extracted_facts,created_at,last_retrieved_at FROM memories ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var result []*MemoryRecord
	for rows.Next() {
		rec := &MemoryRecord{}
		var createdAt string
		var lastRetrieved sql.NullString
		if err := rows.Scan(&rec.ID, &rec.UserUtterance, &rec.AgentResponse, &rec.Topics,
			&rec.ImportanceScore, &rec.UserAdjustment, &rec.RetrievalCount, &rec.ExtractedFacts,
			&createdAt, &lastRetrieved); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = parseTime(createdAt)
		if lastRetrieved.Valid {
			rec.LastRetrievedAt, _ = parseTime(lastRetrieved.String)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *sqliteStore) LoadAllCompressedKnowledge(ctx context.Context) ([]*CompressedKnowledgeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT topic,summary,key_insights,related_topics,source_count,compression_rate,updated_at FROM compressed_knowledge`)
	if err != nil {
		return nil, fmt.Errorf("query compressed knowledge: %w", err)
	}
	defer rows.Close()

	var result []*CompressedKnowledgeRecord
	for rows.Next() {
		rec := &CompressedKnowledgeRecord{}
		var updatedAt string
		if err := rows.Scan(&rec.Topic, &rec.Summary, &rec.KeyInsights, &rec.RelatedTopics,
			&rec.SourceCount, &rec.CompressionRate, &updatedAt); err != nil {
			return nil, err
		}
		rec.UpdatedAt, _ = parseTime(updatedAt)
		result = append(result, rec)
	}
	return result, rows.Err()
}

// ─── Agent health ───────────────────────────────────────────────────────────

func (s *sqliteStore) AppendAgentHealth(ctx context.Context, rec *AgentHealthRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO agent_health_snapshots(agent_name, health_score, failure_rate, avg_latency_ms, isolated, isolation_reason, recorded_at)
        VALUES(?,?,?,?,?,?,?)
    `,
		rec.AgentName, rec.HealthScore, rec.FailureRate, rec.AvgLatencyMS,
		boolToInt(rec.Isolated), rec.IsolationReason, rec.RecordedAt.UTC(),
	)
	return err
}

func (s *sqliteStore) QueryAgentHealth(ctx context.Context, agentName string, from, to time.Time) ([]*AgentHealthRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id,agent_name,health_score,failure_rate,avg_latency_ms,isolated,isolation_reason,recorded_at
        FROM agent_health_snapshots
        WHERE agent_name=? AND recorded_at BETWEEN ? AND ?
        ORDER BY recorded_at ASC
    `, agentName, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query agent health: %w", err)
	}
	defer rows.Close()

	var result []*AgentHealthRecord
	for rows.Next() {
		rec := &AgentHealthRecord{}
		var recordedAt string
		var isolated int
		if err := rows.Scan(&rec.ID, &rec.AgentName, &rec.HealthScore, &rec.FailureRate,
			&rec.AvgLatencyMS, &isolated, &rec.IsolationReason, &recordedAt); err != nil {
			return nil, err
		}
		rec.Isolated = isolated != 0
		rec.RecordedAt, _ = parseTime(recordedAt)
		result = append(result, rec)
	}
	return result, rows.Err()
}

// ─── Audit events ───────────────────────────────────────────────────────────

func (s *sqliteStore) AppendAuditEvent(ctx context.Context, rec *AuditRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO audit_events(correlation_id, event_type, description, resource, action, result, user_id, metadata, timestamp)
        VALUES(?,?,?,?,?,?,?,?,?)
    `,
		rec.CorrelationID, rec.EventType, rec.Description, rec.Resource, rec.Action,
		rec.Result, rec.UserID, rec.Metadata, rec.Timestamp.UTC(),
	)
	return err
}

func (s *sqliteStore) QueryAuditEvents(ctx context.Context, q AuditQuery) ([]*AuditRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id,correlation_id,event_type,description,resource,action,result,user_id,metadata,timestamp FROM audit_events WHERE 1=1`
	var args []interface{}
	if q.Resource != "" {
		query += ` AND resource = ?`
		args = append(args, q.Resource)
	}
	if q.Action != "" {
		query += ` AND action = ?`
		args = append(args, q.Action)
	}
	if q.EventType != "" {
		query += ` AND event_type = ?`
		args = append(args, q.EventType)
	}
	if !q.From.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, q.From.UTC())
	}
	if !q.To.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, q.To.UTC())
	}
	query += ` ORDER BY timestamp DESC LIMIT ? OFFSET ?`
	args = append(args, limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var result []*AuditRecord
	for rows.Next() {
		rec := &AuditRecord{}
		var ts string
		if err := rows.Scan(&rec.ID, &rec.CorrelationID, &rec.EventType, &rec.Description,
			&rec.Resource, &rec.Action, &rec.Result, &rec.UserID, &rec.Metadata, &ts); err != nil {
			return nil, err
		}
		rec.Timestamp, _ = parseTime(ts)
		result = append(result, rec)
	}
	return result, rows.Err()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseTime handles multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
