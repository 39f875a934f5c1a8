package search

import "context"

// CloudSearcher is the thin call layer to the managed vector/full-text
// store. Implementations must return ErrCloudUnavailable (possibly
// wrapped) for network, auth and timeout failures; the orchestrator
// treats any error from these calls as "operate local-only".
//
// Latency guidance, not an SLA: keyword ~60-150ms, semantic ~100-300ms
// including the network round-trip.
type CloudSearcher interface {
	// KeywordSearch runs full-text search against the cloud store.
	KeywordSearch(ctx context.Context, query string, filters Filters, limit int) ([]SearchResult, error)

	// SemanticSearch runs ANN cosine search with the given query embedding.
	SemanticSearch(ctx context.Context, embedding []float32, filters Filters, limit int, threshold float64) ([]SearchResult, error)

	// HybridSearch combines both in a single round-trip.
	HybridSearch(ctx context.Context, query string, embedding []float32, filters Filters, limit int) ([]SearchResult, error)
}

// CloudStore is the durable write/read surface of the cloud store that
// the indexing hook wraps. The cloud copy is the system of record; the
// local index is a cache over it.
type CloudStore interface {
	// InsertItem durably writes a message or fact and returns its id.
	InsertItem(ctx context.Context, item IndexedItem) (string, error)

	// DeleteItem removes an item from its collection.
	DeleteItem(ctx context.Context, collection, id string) error

	// FetchRecent returns an owner's most recent items in one collection,
	// newest first, for cold-start rebuilds.
	FetchRecent(ctx context.Context, ownerID, collection string, limit int) ([]IndexedItem, error)

	// CountItems returns the owner's item count in one collection,
	// used for drift detection.
	CountItems(ctx context.Context, ownerID, collection string) (int, error)
}
