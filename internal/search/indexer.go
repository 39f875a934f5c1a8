package search

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Marker records resync bookkeeping across restarts.
type Marker interface {
	KVSet(key, value string, ttl time.Duration) error
	KVGet(key string) (string, error)
}

// Indexer is the write-side hook: it wraps durable cloud writes and
// keeps the local index in step with them. The durable write is the
// operation; embedding and local indexing ride behind it best-effort
// and never fail the caller's write.
type Indexer struct {
	index    *LocalIndex
	embedder Embedder
	cloud    CloudStore // nil when running offline
	marker   Marker     // nil disables bookkeeping
	cfg      Config
	logger   zerolog.Logger
}

// NewIndexer creates an Indexer. cloud and marker may be nil.
func NewIndexer(index *LocalIndex, embedder Embedder, cloud CloudStore, marker Marker, cfg Config, logger zerolog.Logger) *Indexer {
	return &Indexer{
		index:    index,
		embedder: embedder,
		cloud:    cloud,
		marker:   marker,
		cfg:      cfg,
		logger:   logger.With().Str("component", "indexer").Logger(),
	}
}

// Insert durably writes item and indexes it locally. The returned error
// reflects the durable write only; a failed embed leaves the item
// keyword-searchable until the next resync fills in its vector.
func (idx *Indexer) Insert(ctx context.Context, item IndexedItem) (string, error) {
	if item.Content == "" {
		return "", &SearchError{Op: "insert", Err: ErrInvalidInput}
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	if idx.cloud != nil {
		id, err := idx.cloud.InsertItem(ctx, item)
		if err != nil {
			return "", err
		}
		item.ID = id
	} else if item.ID == "" {
		// Local-only mode still accepts writes; they are simply not durable.
		item.ID = uuid.New().String()
	}

	if vec, err := idx.embedder.Embed(ctx, item.Content); err != nil {
		idx.logger.Warn().Err(err).Str("id", item.ID).Msg("embed failed, item indexed keyword-only")
	} else {
		item.Embedding = vec
	}
	idx.index.AddItem(item)

	return item.ID, nil
}

// Remove deletes an item from the cloud store and the local index.
func (idx *Indexer) Remove(ctx context.Context, collection, id string) error {
	if idx.cloud != nil {
		if err := idx.cloud.DeleteItem(ctx, collection, id); err != nil {
			return err
		}
	}
	idx.index.RemoveItem(id)
	return nil
}

// NeedsResync reports index drift: an empty local index while the cloud
// store holds the owner's items, typically after a corrupted snapshot or
// a fresh install on an existing account.
func (idx *Indexer) NeedsResync(ctx context.Context, ownerID string) bool {
	if idx.cloud == nil || idx.index.Count() > 0 {
		return false
	}
	for _, collection := range []string{CollectionMessages, CollectionFacts} {
		n, err := idx.cloud.CountItems(ctx, ownerID, collection)
		if err != nil {
			idx.logger.Warn().Err(err).Msg("drift check skipped, cloud unavailable")
			return false
		}
		if n > 0 {
			return true
		}
	}
	return false
}

// Resync rebuilds the local index from the cloud store's recent items.
// Items the cloud returns without embeddings are re-embedded in bounded
// batches; embed failures leave those items keyword-only.
func (idx *Indexer) Resync(ctx context.Context, ownerID string) error {
	if idx.cloud == nil {
		return &SearchError{Op: "resync", Err: ErrCloudUnavailable}
	}

	started := time.Now()
	var items []IndexedItem
	for _, collection := range []string{CollectionMessages, CollectionFacts} {
		fetched, err := idx.cloud.FetchRecent(ctx, ownerID, collection, idx.cfg.ResyncLimit)
		if err != nil {
			return err
		}
		items = append(items, fetched...)
	}

	idx.embedMissing(ctx, items)
	idx.index.Rebuild(items)
	idx.recordResync(ownerID, len(items))

	idx.logger.Info().
		Int("items", len(items)).
		Dur("duration", time.Since(started)).
		Str("owner_id", ownerID).
		Msg("resync complete")
	return nil
}

// embedMissing fills in embeddings for items the cloud store returned
// without one. Best-effort: on failure the items stay keyword-only.
func (idx *Indexer) embedMissing(ctx context.Context, items []IndexedItem) {
	var texts []string
	var positions []int
	for i := range items {
		if len(items[i].Embedding) == 0 && items[i].Content != "" {
			texts = append(texts, items[i].Content)
			positions = append(positions, i)
		}
	}
	if len(texts) == 0 {
		return
	}

	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		idx.logger.Warn().Err(err).Int("count", len(texts)).Msg("batch embed failed during resync")
		return
	}
	for i, vec := range vectors {
		if vec != nil {
			items[positions[i]].Embedding = vec
		}
	}
}

// recordResync persists the resync watermark. Failures are logged only;
// the watermark is advisory.
func (idx *Indexer) recordResync(ownerID string, count int) {
	if idx.marker == nil {
		return
	}
	if err := idx.marker.KVSet("search:last_resync:"+ownerID, time.Now().UTC().Format(time.RFC3339), 0); err != nil {
		idx.logger.Debug().Err(err).Msg("resync watermark not recorded")
	}
	if err := idx.marker.KVSet("search:last_resync_count:"+ownerID, strconv.Itoa(count), 0); err != nil {
		idx.logger.Debug().Err(err).Msg("resync count not recorded")
	}
}

// LastResync returns the persisted resync watermark, zero when absent.
func (idx *Indexer) LastResync(ownerID string) time.Time {
	if idx.marker == nil {
		return time.Time{}
	}
	v, err := idx.marker.KVGet("search:last_resync:" + ownerID)
	if err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
