package search

import (
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LocalIndex is the in-memory search index: an inverted keyword index and
// a flat vector list over the same items, with owner/session/category
// filter sets. It is capped; when full, the oldest items are evicted
// deterministically (createdAt ascending, ties by id).
//
// All mutation and lookup is serialized through one RWMutex, which gives
// the same atomicity the original event-loop design had by construction.
// The brute-force semantic scan is a deliberate simplicity-over-asymptotics
// choice: at the 5,000-item cap and 384 dimensions a linear scan stays
// well under the latency target. Revisit with an ANN structure only if
// the cap is raised materially.
type LocalIndex struct {
	mu sync.RWMutex

	byID     map[string]*IndexedItem
	postings map[string]map[string]struct{} // token -> set of item ids
	vectors  []vectorEntry                  // items with embeddings, append order

	maxItems int
	logger   zerolog.Logger

	// onDirty is invoked (outside no locks held by callers' concern but
	// while holding mu) after every mutation; the persister uses it to
	// schedule a debounced flush.
	onDirty func()
}

type vectorEntry struct {
	id  string
	vec []float32
}

// NewLocalIndex creates an empty LocalIndex capped at maxItems.
func NewLocalIndex(maxItems int, logger zerolog.Logger) *LocalIndex {
	if maxItems <= 0 {
		maxItems = DefaultConfig().MaxItems
	}
	return &LocalIndex{
		byID:     make(map[string]*IndexedItem),
		postings: make(map[string]map[string]struct{}),
		maxItems: maxItems,
		logger:   logger,
	}
}

// SetOnDirty registers the callback invoked after every mutation.
func (ix *LocalIndex) SetOnDirty(fn func()) {
	ix.mu.Lock()
	ix.onDirty = fn
	ix.mu.Unlock()
}

// AddItem inserts or updates an item. The keyword postings are rebuilt
// from the item's content; if an embedding is present, the vector entry
// is appended or replaced. Adding the same item twice is idempotent.
func (ix *LocalIndex) AddItem(item IndexedItem) {
	if strings.TrimSpace(item.Content) == "" || item.ID == "" {
		return
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.removeLocked(item.ID)

	stored := item
	ix.byID[item.ID] = &stored

	for _, tok := range tokenize(item.Content) {
		set, ok := ix.postings[tok]
		if !ok {
			set = make(map[string]struct{})
			ix.postings[tok] = set
		}
		set[item.ID] = struct{}{}
	}

	if len(item.Embedding) > 0 {
		ix.vectors = append(ix.vectors, vectorEntry{id: item.ID, vec: item.Embedding})
	}

	ix.evictLocked()
	ix.markDirtyLocked()
}

// SetEmbedding attaches an embedding to an already-indexed item.
// Embeddings arrive asynchronously; a missing id is not an error.
func (ix *LocalIndex) SetEmbedding(id string, vec []float32) {
	if len(vec) == 0 {
		return
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	item, ok := ix.byID[id]
	if !ok {
		return
	}
	item.Embedding = vec

	for i := range ix.vectors {
		if ix.vectors[i].id == id {
			ix.vectors[i].vec = vec
			ix.markDirtyLocked()
			return
		}
	}
	ix.vectors = append(ix.vectors, vectorEntry{id: id, vec: vec})
	ix.markDirtyLocked()
}

// RemoveItem removes an item from all sub-indexes. Absent ids are a no-op.
func (ix *LocalIndex) RemoveItem(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.byID[id]; !ok {
		return
	}
	ix.removeLocked(id)
	ix.markDirtyLocked()
}

// Rebuild clears the index and repopulates it from the given items.
// Used for cold-start sync from the cloud store.
func (ix *LocalIndex) Rebuild(items []IndexedItem) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.byID = make(map[string]*IndexedItem, len(items))
	ix.postings = make(map[string]map[string]struct{})
	ix.vectors = ix.vectors[:0]

	for _, item := range items {
		if strings.TrimSpace(item.Content) == "" || item.ID == "" {
			continue
		}
		stored := item
		ix.byID[item.ID] = &stored
		for _, tok := range tokenize(item.Content) {
			set, ok := ix.postings[tok]
			if !ok {
				set = make(map[string]struct{})
				ix.postings[tok] = set
			}
			set[item.ID] = struct{}{}
		}
		if len(item.Embedding) > 0 {
			ix.vectors = append(ix.vectors, vectorEntry{id: item.ID, vec: item.Embedding})
		}
	}

	ix.evictLocked()
	ix.markDirtyLocked()
	ix.logger.Info().Int("items", len(ix.byID)).Msg("local index rebuilt")
}

// Count returns the number of indexed items.
func (ix *LocalIndex) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byID)
}

// Has reports whether an item id is indexed.
func (ix *LocalIndex) Has(id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.byID[id]
	return ok
}

// SearchKeyword tokenizes the query, unions candidate ids across all
// matching postings, scores by the number of distinct matching tokens
// (ties broken by recency, newest first), applies filters and returns
// the top limit results.
func (ix *LocalIndex) SearchKeyword(query string, filters Filters, limit int) []SearchResult {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = DefaultConfig().DefaultLimit
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	matches := make(map[string]int) // id -> distinct matching token count
	for _, tok := range tokens {
		for id := range ix.postings[tok] {
			matches[id]++
		}
	}

	type scored struct {
		item  *IndexedItem
		score int
	}
	candidates := make([]scored, 0, len(matches))
	for id, count := range matches {
		item := ix.byID[id]
		if item == nil || !matchFilters(item, filters) {
			continue
		}
		candidates = append(candidates, scored{item: item, score: count})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].item.CreatedAt.After(candidates[j].item.CreatedAt)
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	results := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		results[i] = toResult(c.item, float64(c.score), SourceLocalKeyword)
	}
	return results
}

// SearchSemantic computes cosine similarity between the query embedding
// and every indexed vector, discards results below threshold, and
// returns the top limit sorted by similarity descending.
func (ix *LocalIndex) SearchSemantic(queryEmbedding []float32, filters Filters, limit int, threshold float64) []SearchResult {
	if len(queryEmbedding) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = DefaultConfig().DefaultLimit
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	type scored struct {
		item  *IndexedItem
		score float64
	}
	var candidates []scored
	for _, entry := range ix.vectors {
		item := ix.byID[entry.id]
		if item == nil || !matchFilters(item, filters) {
			continue
		}
		sim := CosineSimilarity(queryEmbedding, entry.vec)
		if sim < threshold {
			continue
		}
		candidates = append(candidates, scored{item: item, score: sim})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	results := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		results[i] = toResult(c.item, c.score, SourceLocalSemantic)
	}
	return results
}

// --- internal ---

// removeLocked removes an item from every sub-index. Caller holds mu.
func (ix *LocalIndex) removeLocked(id string) {
	item, ok := ix.byID[id]
	if !ok {
		return
	}

	for _, tok := range tokenize(item.Content) {
		set := ix.postings[tok]
		delete(set, id)
		if len(set) == 0 {
			delete(ix.postings, tok)
		}
	}

	for i := range ix.vectors {
		if ix.vectors[i].id == id {
			ix.vectors = append(ix.vectors[:i], ix.vectors[i+1:]...)
			break
		}
	}

	delete(ix.byID, id)
}

// evictLocked removes the oldest items until the index is under maxItems.
// Deterministic: createdAt ascending, ties broken by id. Caller holds mu.
func (ix *LocalIndex) evictLocked() {
	over := len(ix.byID) - ix.maxItems
	if over <= 0 {
		return
	}

	type aged struct {
		id   string
		item *IndexedItem
	}
	all := make([]aged, 0, len(ix.byID))
	for id, item := range ix.byID {
		all = append(all, aged{id: id, item: item})
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].item.CreatedAt.Equal(all[j].item.CreatedAt) {
			return all[i].item.CreatedAt.Before(all[j].item.CreatedAt)
		}
		return all[i].id < all[j].id
	})

	for i := 0; i < over; i++ {
		ix.removeLocked(all[i].id)
	}

	ix.logger.Debug().Int("evicted", over).Int("remaining", len(ix.byID)).Msg("local index eviction")
}

// markDirtyLocked notifies the persister. Caller holds mu.
func (ix *LocalIndex) markDirtyLocked() {
	if ix.onDirty != nil {
		ix.onDirty()
	}
}

// matchFilters reports whether an item passes the optional filters.
func matchFilters(item *IndexedItem, f Filters) bool {
	if f.OwnerID != "" && item.OwnerID != f.OwnerID {
		return false
	}
	if f.SessionID != "" && item.SessionID != f.SessionID {
		return false
	}
	if f.Category != "" && item.Category != f.Category {
		return false
	}
	if f.Collection != "" && item.Collection != f.Collection {
		return false
	}
	return true
}

// toResult converts an indexed item to a SearchResult.
func toResult(item *IndexedItem, score float64, source string) SearchResult {
	return SearchResult{
		ID:        item.ID,
		Content:   item.Content,
		Role:      item.Role,
		Category:  item.Category,
		Score:     score,
		Source:    source,
		CreatedAt: item.CreatedAt,
	}
}
