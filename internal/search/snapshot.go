package search

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// snapshotVersion guards against loading blobs written by incompatible
// layouts. Bump when snapshotItem changes shape.
const snapshotVersion = 1

// indexSnapshot is the persisted form of a LocalIndex: the items with
// their embeddings. Postings and filter sets are derived data and are
// rebuilt on load, which keeps the blob small and the keyword map and
// byId map reconciled by construction.
type indexSnapshot struct {
	Version int            `json:"version"`
	SavedAt time.Time      `json:"saved_at"`
	Items   []snapshotItem `json:"items"`
}

type snapshotItem struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Role       string         `json:"role,omitempty"`
	Category   string         `json:"category,omitempty"`
	OwnerID    string         `json:"owner_id"`
	SessionID  string         `json:"session_id,omitempty"`
	Collection string         `json:"collection"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	Embedding  []byte         `json:"embedding,omitempty"` // little-endian float32 blob
}

// Snapshot serializes the index contents to a single blob.
func (ix *LocalIndex) Snapshot() ([]byte, error) {
	ix.mu.RLock()
	items := make([]snapshotItem, 0, len(ix.byID))
	for _, item := range ix.byID {
		items = append(items, snapshotItem{
			ID:         item.ID,
			Content:    item.Content,
			Role:       item.Role,
			Category:   item.Category,
			OwnerID:    item.OwnerID,
			SessionID:  item.SessionID,
			Collection: item.Collection,
			Metadata:   item.Metadata,
			CreatedAt:  item.CreatedAt,
			Embedding:  encodeEmbedding(item.Embedding),
		})
	}
	ix.mu.RUnlock()

	blob, err := json.Marshal(indexSnapshot{
		Version: snapshotVersion,
		SavedAt: time.Now(),
		Items:   items,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return blob, nil
}

// Restore replaces the index contents with a previously persisted blob.
// A blob that fails to decode returns ErrIndexCorrupted and leaves the
// index empty; the caller is responsible for triggering a resync.
func (ix *LocalIndex) Restore(blob []byte) error {
	var snap indexSnapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		ix.Rebuild(nil)
		return &SearchError{Op: "restore", Err: fmt.Errorf("%w: %v", ErrIndexCorrupted, err)}
	}
	if snap.Version != snapshotVersion {
		ix.Rebuild(nil)
		return &SearchError{Op: "restore", Err: fmt.Errorf("%w: snapshot version %d", ErrIndexCorrupted, snap.Version)}
	}

	items := make([]IndexedItem, 0, len(snap.Items))
	for _, s := range snap.Items {
		items = append(items, IndexedItem{
			ID:         s.ID,
			Content:    s.Content,
			Role:       s.Role,
			Category:   s.Category,
			OwnerID:    s.OwnerID,
			SessionID:  s.SessionID,
			Collection: s.Collection,
			Metadata:   s.Metadata,
			CreatedAt:  s.CreatedAt,
			Embedding:  decodeEmbedding(s.Embedding),
		})
	}
	ix.Rebuild(items)
	return nil
}

// encodeEmbedding serializes a float32 slice to a little-endian blob.
// Nil in, nil out.
func encodeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeEmbedding deserializes a blob back to a float32 slice.
func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return embedding
}
