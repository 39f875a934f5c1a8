package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// memorySnapshotStore implements SnapshotStore for testing.
type memorySnapshotStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	saves int
	err   error
}

func newMemorySnapshotStore() *memorySnapshotStore {
	return &memorySnapshotStore{blobs: make(map[string][]byte)}
}

func (s *memorySnapshotStore) SaveSnapshot(_ context.Context, ownerID string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.blobs[ownerID] = blob
	s.saves++
	return nil
}

func (s *memorySnapshotStore) LoadSnapshot(_ context.Context, ownerID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.blobs[ownerID], nil
}

func (s *memorySnapshotStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func TestPersister_DebounceCoalesces(t *testing.T) {
	ix := NewLocalIndex(100, zerolog.Nop())
	store := newMemorySnapshotStore()
	p := NewPersister(ix, store, "owner-1", 50*time.Millisecond, zerolog.Nop())
	defer p.Close(context.Background())

	// A burst of mutations within the window must produce one write.
	for i := 0; i < 10; i++ {
		ix.AddItem(testItem(string(rune('a'+i)), "burst content", time.Now()))
	}

	deadline := time.Now().Add(2 * time.Second)
	for store.saveCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	// Allow a stray second timer to fire if one were armed.
	time.Sleep(100 * time.Millisecond)

	if got := store.saveCount(); got != 1 {
		t.Errorf("expected exactly 1 coalesced write, got %d", got)
	}
}

func TestPersister_CloseFlushesPending(t *testing.T) {
	ix := NewLocalIndex(100, zerolog.Nop())
	store := newMemorySnapshotStore()
	// Long debounce: the timer will not fire during the test.
	p := NewPersister(ix, store, "owner-1", time.Minute, zerolog.Nop())

	ix.AddItem(testItem("a", "must survive shutdown", time.Now()))

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if store.saveCount() != 1 {
		t.Fatalf("expected final flush on close, got %d writes", store.saveCount())
	}

	// The persisted blob must hold the item.
	restored := NewLocalIndex(100, zerolog.Nop())
	blob, _ := store.LoadSnapshot(context.Background(), "owner-1")
	if err := restored.Restore(blob); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if !restored.Has("a") {
		t.Errorf("expected item a in flushed snapshot")
	}
}

func TestPersister_CloseIdempotent(t *testing.T) {
	ix := NewLocalIndex(100, zerolog.Nop())
	store := newMemorySnapshotStore()
	p := NewPersister(ix, store, "owner-1", time.Minute, zerolog.Nop())

	ix.AddItem(testItem("a", "content", time.Now()))

	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if store.saveCount() != 1 {
		t.Errorf("expected 1 write across repeated closes, got %d", store.saveCount())
	}
}

func TestPersister_LoadMissingSnapshot(t *testing.T) {
	ix := NewLocalIndex(100, zerolog.Nop())
	p := NewPersister(ix, newMemorySnapshotStore(), "owner-1", time.Minute, zerolog.Nop())
	defer p.Close(context.Background())

	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if ix.Count() != 0 {
		t.Errorf("expected empty index, got %d", ix.Count())
	}
	if p.NeedsResync() {
		t.Error("missing snapshot must not flag a resync")
	}
}

func TestPersister_LoadCorruptedSnapshot(t *testing.T) {
	ix := NewLocalIndex(100, zerolog.Nop())
	store := newMemorySnapshotStore()
	store.blobs["owner-1"] = []byte("garbage bytes")
	p := NewPersister(ix, store, "owner-1", time.Minute, zerolog.Nop())
	defer p.Close(context.Background())

	// Corruption is not a caller error: empty index plus a resync flag.
	if err := p.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if ix.Count() != 0 {
		t.Errorf("expected empty index, got %d", ix.Count())
	}
	if !p.NeedsResync() {
		t.Error("corrupted snapshot must flag a resync")
	}
}

func TestPersister_LoadRoundTrip(t *testing.T) {
	store := newMemorySnapshotStore()

	first := NewLocalIndex(100, zerolog.Nop())
	p1 := NewPersister(first, store, "owner-1", time.Minute, zerolog.Nop())
	first.AddItem(testItem("a", "I live in Boston", time.Now()))
	if err := p1.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := NewLocalIndex(100, zerolog.Nop())
	p2 := NewPersister(second, store, "owner-1", time.Minute, zerolog.Nop())
	defer p2.Close(context.Background())
	if err := p2.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	if second.Count() != 1 {
		t.Fatalf("expected 1 item after restart, got %d", second.Count())
	}
	if got := second.SearchKeyword("boston", Filters{}, 10); len(got) != 1 {
		t.Errorf("expected keyword search to work after restart, got %d results", len(got))
	}
}

func TestPersister_FlushSurfacesStoreError(t *testing.T) {
	ix := NewLocalIndex(100, zerolog.Nop())
	store := newMemorySnapshotStore()
	store.err = errors.New("disk full")
	p := NewPersister(ix, store, "owner-1", time.Minute, zerolog.Nop())

	ix.AddItem(testItem("a", "content", time.Now()))
	if err := p.Flush(context.Background()); err == nil {
		t.Fatal("expected flush error when the store fails")
	}
}
