package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SnapshotStore is the durable home of index snapshots, one blob per
// owning user. Implemented by the sqlite-backed local store.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, ownerID string, blob []byte) error
	LoadSnapshot(ctx context.Context, ownerID string) ([]byte, error)
}

// Persister writes LocalIndex snapshots with debounced batching: every
// mutation marks the index dirty and arms a single pending timer, so
// bursts of mutations within the debounce window coalesce into one write.
// Close guarantees a final flush so shutdown never loses the last state.
type Persister struct {
	index    *LocalIndex
	store    SnapshotStore
	ownerID  string
	debounce time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	dirty   bool
	closed  bool
	needRes bool // set when a corrupted snapshot was detected on load
}

// NewPersister wires a Persister to the index's dirty notifications.
func NewPersister(index *LocalIndex, store SnapshotStore, ownerID string, debounce time.Duration, logger zerolog.Logger) *Persister {
	if debounce <= 0 {
		debounce = DefaultConfig().PersistDebounce
	}
	p := &Persister{
		index:    index,
		store:    store,
		ownerID:  ownerID,
		debounce: debounce,
		logger:   logger,
	}
	index.SetOnDirty(p.markDirty)
	return p
}

// Load restores the index from the last persisted snapshot. A missing
// snapshot yields an empty index; a corrupted one logs, leaves the index
// empty and flags the need for a resync. Load never fails the caller for
// either case.
func (p *Persister) Load(ctx context.Context) error {
	blob, err := p.store.LoadSnapshot(ctx, p.ownerID)
	if err != nil {
		p.logger.Warn().Err(err).Msg("snapshot load failed, starting empty")
		return nil
	}
	if len(blob) == 0 {
		return nil
	}

	if err := p.index.Restore(blob); err != nil {
		if errors.Is(err, ErrIndexCorrupted) {
			p.mu.Lock()
			p.needRes = true
			p.mu.Unlock()
			p.logger.Warn().Err(err).Msg("persisted index corrupted, falling back to empty index")
			return nil
		}
		return err
	}

	// Restore marks the index dirty; a fresh load is not.
	p.mu.Lock()
	p.dirty = false
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	p.logger.Info().Int("items", p.index.Count()).Msg("local index loaded from snapshot")
	return nil
}

// NeedsResync reports whether a corrupted snapshot was detected on load.
func (p *Persister) NeedsResync() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.needRes
}

// Flush writes the current index state immediately, cancelling any
// pending debounced write.
func (p *Persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.dirty = false
	p.mu.Unlock()

	blob, err := p.index.Snapshot()
	if err != nil {
		return &SearchError{Op: "persist", Err: err}
	}
	if err := p.store.SaveSnapshot(ctx, p.ownerID, blob); err != nil {
		return &SearchError{Op: "persist", Err: err}
	}

	p.logger.Debug().Int("bytes", len(blob)).Msg("index snapshot persisted")
	return nil
}

// Close stops the debounce timer and performs a final flush if any
// mutation is still pending. Must run to completion on process exit.
func (p *Persister) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	pending := p.dirty || p.timer != nil
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.mu.Unlock()

	if !pending {
		return nil
	}
	return p.Flush(ctx)
}

// markDirty arms the single pending flush timer. Called by the index on
// every mutation; repeated calls within the window reset nothing, the
// first arm wins so the flush runs at most debounce after the first
// mutation of a burst.
func (p *Persister) markDirty() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.dirty = true
	if p.timer != nil {
		return
	}
	p.timer = time.AfterFunc(p.debounce, p.flushTimer)
}

// flushTimer is the timer callback; it performs the coalesced write.
func (p *Persister) flushTimer() {
	p.mu.Lock()
	p.timer = nil
	if p.closed || !p.dirty {
		p.mu.Unlock()
		return
	}
	p.dirty = false
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	blob, err := p.index.Snapshot()
	if err != nil {
		p.logger.Warn().Err(err).Msg("snapshot encode failed")
		return
	}
	if err := p.store.SaveSnapshot(ctx, p.ownerID, blob); err != nil {
		p.logger.Warn().Err(err).Msg("snapshot write failed")
		return
	}
	p.logger.Debug().Int("bytes", len(blob)).Msg("debounced snapshot persisted")
}
