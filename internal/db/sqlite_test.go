package db

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// ─── Memories ───────────────────────────────────────────────────────────────

func TestMemoryRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &MemoryRecord{
		ID:              "mem-001",
		UserUtterance:   "What is a neural network?",
		AgentResponse:   "A neural network is a layered function approximator.",
		Topics:          `["machine_learning","neural_networks"]`,
		ImportanceScore: 70,
		ExtractedFacts:  `[]`,
		CreatedAt:       time.Now().Round(time.Second),
	}

	if err := s.SaveMemory(ctx, rec); err != nil {
		t.Fatalf("SaveMemory: %v", err)
	}

	all, err := s.LoadAllMemories(ctx)
	if err != nil {
		t.Fatalf("LoadAllMemories: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(all))
	}
	if all[0].ID != "mem-001" {
		t.Errorf("expected ID mem-001, got %s", all[0].ID)
	}
	if all[0].ImportanceScore != 70 {
		t.Errorf("expected importance 70, got %d", all[0].ImportanceScore)
	}

	// Upsert updates mutable fields.
	rec.ImportanceScore = 85
	rec.RetrievalCount = 3
	if err := s.SaveMemory(ctx, rec); err != nil {
		t.Fatalf("SaveMemory update: %v", err)
	}
	all, err = s.LoadAllMemories(ctx)
	if err != nil {
		t.Fatalf("LoadAllMemories: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 memory after upsert, got %d", len(all))
	}
	if all[0].ImportanceScore != 85 {
		t.Errorf("expected updated importance 85, got %d", all[0].ImportanceScore)
	}
	if all[0].RetrievalCount != 3 {
		t.Errorf("expected retrieval count 3, got %d", all[0].RetrievalCount)
	}
}

func TestCompressedKnowledgeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &CompressedKnowledgeRecord{
		Topic:           "machine_learning",
		Summary:         "consolidated knowledge on machine_learning",
		KeyInsights:     `["mem-001","mem-002"]`,
		RelatedTopics:   `[{"Topic":"neural_networks","Frequency":4}]`,
		SourceCount:     5,
		CompressionRate: 0.4,
		UpdatedAt:       time.Now().Round(time.Second),
	}

	if err := s.SaveCompressedKnowledge(ctx, rec); err != nil {
		t.Fatalf("SaveCompressedKnowledge: %v", err)
	}

	all, err := s.LoadAllCompressedKnowledge(ctx)
	if err != nil {
		t.Fatalf("LoadAllCompressedKnowledge: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 compressed knowledge record, got %d", len(all))
	}
	if all[0].SourceCount != 5 {
		t.Errorf("expected source count 5, got %d", all[0].SourceCount)
	}

	// Upsert overwrites by topic.
	rec.SourceCount = 9
	if err := s.SaveCompressedKnowledge(ctx, rec); err != nil {
		t.Fatalf("SaveCompressedKnowledge update: %v", err)
	}
	all, err = s.LoadAllCompressedKnowledge(ctx)
	if err != nil {
		t.Fatalf("LoadAllCompressedKnowledge: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 compressed knowledge record after upsert, got %d", len(all))
	}
	if all[0].SourceCount != 9 {
		t.Errorf("expected updated source count 9, got %d", all[0].SourceCount)
	}
}

// ─── Agent health ───────────────────────────────────────────────────────────

func TestAgentHealthQueryByWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Round(time.Second)

	for i, hs := range []float64{1.0, 0.8, 0.4} {
		rec := &AgentHealthRecord{
			AgentName:   "truth",
			HealthScore: hs,
			RecordedAt:  now.Add(time.Duration(i) * time.Minute),
		}
		if err := s.AppendAgentHealth(ctx, rec); err != nil {
			t.Fatalf("AppendAgentHealth: %v", err)
		}
	}

	results, err := s.QueryAgentHealth(ctx, "truth", now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("QueryAgentHealth: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(results))
	}
	if results[0].HealthScore != 1.0 {
		t.Errorf("expected first snapshot health_score 1.0, got %v", results[0].HealthScore)
	}
	if results[len(results)-1].HealthScore != 0.4 {
		t.Errorf("expected last snapshot health_score 0.4, got %v", results[len(results)-1].HealthScore)
	}
}

// ─── Audit events ───────────────────────────────────────────────────────────

func TestAuditEventFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Round(time.Second)

	events := []*AuditRecord{
		{CorrelationID: "c1", EventType: "decision.approved", Resource: "mem-001", Timestamp: now},
		{CorrelationID: "c2", EventType: "decision.denied", Resource: "mem-002", Timestamp: now.Add(time.Minute)},
		{CorrelationID: "c3", EventType: "memory.stored", Resource: "mem-001", Timestamp: now.Add(2 * time.Minute)},
	}
	for _, e := range events {
		if err := s.AppendAuditEvent(ctx, e); err != nil {
			t.Fatalf("AppendAuditEvent: %v", err)
		}
	}

	byResource, err := s.QueryAuditEvents(ctx, AuditQuery{Resource: "mem-001"})
	if err != nil {
		t.Fatalf("QueryAuditEvents by resource: %v", err)
	}
	if len(byResource) != 2 {
		t.Errorf("expected 2 events for mem-001, got %d", len(byResource))
	}

	byType, err := s.QueryAuditEvents(ctx, AuditQuery{EventType: "decision.denied"})
	if err != nil {
		t.Fatalf("QueryAuditEvents by event type: %v", err)
	}
	if len(byType) != 1 {
		t.Errorf("expected 1 decision.denied event, got %d", len(byType))
	}

	all, err := s.QueryAuditEvents(ctx, AuditQuery{})
	if err != nil {
		t.Fatalf("QueryAuditEvents all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 events total, got %d", len(all))
	}
	// Newest first.
	if all[0].CorrelationID != "c3" {
		t.Errorf("expected newest event c3 first, got %s", all[0].CorrelationID)
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
