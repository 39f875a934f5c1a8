// Package search implements the hybrid memory search engine: a local
// inverted-keyword + vector index answered first, with transparent
// fallback to (and merging with) a cloud vector/full-text store.
package search

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates empty or malformed text passed to the
	// embedder or to a search. Surfaced to the direct caller, never retried.
	ErrInvalidInput = errors.New("search: invalid input")

	// ErrModelUnavailable indicates the embedding backend failed to
	// initialize or infer. Callers degrade to keyword-only search.
	ErrModelUnavailable = errors.New("search: embedding model unavailable")

	// ErrCloudUnavailable indicates the cloud store is unreachable, auth
	// failed, or the call timed out. Callers degrade to local-only search.
	ErrCloudUnavailable = errors.New("search: cloud store unavailable")

	// ErrIndexCorrupted indicates the persisted local index failed to
	// deserialize. The index falls back to empty and flags a resync.
	ErrIndexCorrupted = errors.New("search: index corrupted")

	// ErrItemNotFound indicates the requested item is not in the index.
	ErrItemNotFound = errors.New("search: item not found")
)

// SearchError carries the operation and item id alongside the cause.
type SearchError struct {
	Op  string // operation name (e.g. "embed", "add_item", "cloud_query")
	ID  string // related item id, if applicable
	Err error
}

func (e *SearchError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}
