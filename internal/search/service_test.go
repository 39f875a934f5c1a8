package search

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestService(store SnapshotStore) *Service {
	cfg := DefaultConfig()
	cfg.PersistDebounce = 10 * time.Millisecond
	cfg.ResyncDelay = time.Hour // keep startup resync out of unit tests
	return NewService(ServiceOptions{
		OwnerID:  "owner-1",
		Embedder: NewSimpleEmbedder(64),
		Store:    store,
		Config:   cfg,
		Logger:   zerolog.Nop(),
	})
}

func TestService_RecallAfterInsert(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	if _, err := svc.Indexer.Insert(ctx, IndexedItem{
		Content:    "I live in Boston now",
		Role:       "user",
		OwnerID:    "owner-1",
		SessionID:  "session-1",
		Collection: CollectionMessages,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	resp, err := svc.Orchestrator.Search(ctx, "What did I say about Boston?", Options{OwnerID: "owner-1"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected the boston message to be recalled")
	}
	if resp.Results[0].Content != "I live in Boston now" {
		t.Errorf("unexpected top result %q", resp.Results[0].Content)
	}
	if resp.Stats.Source != "local" {
		t.Errorf("expected local answer, got %s", resp.Stats.Source)
	}
}

func TestService_StateSurvivesRestart(t *testing.T) {
	store := newMemorySnapshotStore()
	ctx := context.Background()

	first := newTestService(store)
	if err := first.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := first.Indexer.Insert(ctx, IndexedItem{
		Content:    "the wifi password is hunter2",
		OwnerID:    "owner-1",
		Collection: CollectionFacts,
		Category:   "household",
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := first.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := newTestService(store)
	if err := second.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer second.Close(ctx)

	resp, err := second.Orchestrator.Search(ctx, "wifi password", Options{OwnerID: "owner-1"})
	if err != nil {
		t.Fatalf("search after restart: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected the fact back after restart, got %d results", len(resp.Results))
	}
	if resp.Results[0].Category != "household" {
		t.Errorf("expected category preserved, got %q", resp.Results[0].Category)
	}
}

func TestService_ContextBuilder(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	if _, err := svc.Indexer.Insert(ctx, IndexedItem{
		Content:    "has a severe peanut allergy",
		OwnerID:    "owner-1",
		Collection: CollectionFacts,
		Category:   "health",
	}); err != nil {
		t.Fatalf("insert fact: %v", err)
	}
	if _, err := svc.Indexer.Insert(ctx, IndexedItem{
		Content:    "asked about peanut-free restaurants yesterday",
		OwnerID:    "owner-1",
		Collection: CollectionMessages,
		Role:       "user",
	}); err != nil {
		t.Fatalf("insert message: %v", err)
	}

	enriched := svc.Context.Build(ctx, "peanut allergy reminder", "owner-1")
	if len(enriched.Facts) != 1 {
		t.Errorf("expected 1 fact, got %d", len(enriched.Facts))
	}
	if len(enriched.Messages) != 1 {
		t.Errorf("expected 1 message, got %d", len(enriched.Messages))
	}

	// Empty queries enrich to nothing instead of failing.
	if got := svc.Context.Build(ctx, "  ", "owner-1"); !got.Empty() {
		t.Error("expected empty context for empty query")
	}
}
