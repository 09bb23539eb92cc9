package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kubilitics/kernel/internal/extract"
	"github.com/kubilitics/kernel/internal/memory"
)

// memoryPersister adapts sqliteStore to internal/memory.Persister, the
// narrower interface the in-process Memory Engine actually depends on.
// Wiring goes: cmd/kerneld constructs a *sqliteStore, wraps it here, and
// hands the result to memory.New as its Persister.
type memoryPersister struct {
	store *sqliteStore
}

// NewMemoryPersister wraps a SQLite-backed Store as a memory.Persister.
func NewMemoryPersister(store Store) (memory.Persister, error) {
	s, ok := store.(*sqliteStore)
	if !ok {
		return nil, fmt.Errorf("db: NewMemoryPersister requires a *sqliteStore")
	}
	return &memoryPersister{store: s}, nil
}

func (p *memoryPersister) SaveMemory(ctx context.Context, m memory.Memory) error {
	topicsJSON, err := json.Marshal(m.Topics)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	factsJSON, err := json.Marshal(m.ExtractedFacts)
	if err != nil {
		return fmt.Errorf("marshal extracted facts: %w", err)
	}

	rec := &MemoryRecord{
		ID:              m.ID,
		UserUtterance:   m.UserUtterance,
		AgentResponse:   m.AgentResponse,
		Topics:          string(topicsJSON),
		ImportanceScore: m.BaseImportance,
		UserAdjustment:  m.UserAdjustment,
		RetrievalCount:  m.Retrievals,
		ExtractedFacts:  string(factsJSON),
		CreatedAt:       m.CreatedAt,
	}
	return p.store.SaveMemory(ctx, rec)
}

func (p *memoryPersister) SaveCompressed(ctx context.Context, ck memory.CompressedKnowledge) error {
	insightsJSON, err := json.Marshal(ck.KeyInsights)
	if err != nil {
		return fmt.Errorf("marshal key insights: %w", err)
	}
	relatedJSON, err := json.Marshal(ck.RelatedTopics)
	if err != nil {
		return fmt.Errorf("marshal related topics: %w", err)
	}

	rec := &CompressedKnowledgeRecord{
		Topic:           ck.Topic,
		KeyInsights:     string(insightsJSON),
		RelatedTopics:   string(relatedJSON),
		SourceCount:     ck.TotalReferences,
		CompressionRate: ck.CompressionRatio,
		UpdatedAt:       ck.LastCompressedAt,
	}
	return p.store.SaveCompressedKnowledge(ctx, rec)
}

func (p *memoryPersister) LoadAll(ctx context.Context) ([]memory.Memory, error) {
	recs, err := p.store.LoadAllMemories(ctx)
	if err != nil {
		return nil, err
	}

	memories := make([]memory.Memory, 0, len(recs))
	for _, rec := range recs {
		var topics []string
		if err := json.Unmarshal([]byte(rec.Topics), &topics); err != nil {
			return nil, fmt.Errorf("unmarshal topics for %s: %w", rec.ID, err)
		}
		var facts []extract.Fact
		if err := json.Unmarshal([]byte(rec.ExtractedFacts), &facts); err != nil {
			return nil, fmt.Errorf("unmarshal extracted facts for %s: %w", rec.ID, err)
		}

		memories = append(memories, memory.Memory{
			ID:              rec.ID,
			UserUtterance:   rec.UserUtterance,
			AgentResponse:   rec.AgentResponse,
			Topics:          topics,
			ExtractedFacts:  facts,
			BaseImportance:  rec.ImportanceScore,
			UserAdjustment:  rec.UserAdjustment,
			Retrievals:      rec.RetrievalCount,
			CreatedAt:       rec.CreatedAt,
		})
	}
	return memories, nil
}
