package search

import "time"

// IndexedItem is the unit of search: a conversational message or an
// extracted fact that has been durably written to the cloud store.
type IndexedItem struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Role       string         `json:"role,omitempty"`     // messages: "user"|"assistant"
	Category   string         `json:"category,omitempty"` // facts: free-form category
	OwnerID    string         `json:"owner_id"`
	SessionID  string         `json:"session_id,omitempty"` // messages only
	Collection string         `json:"collection"`           // "messages"|"facts"
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`

	// Embedding is absent until the embedder has processed the item.
	Embedding []float32 `json:"-"`
}

// SearchResult is a single ranked hit returned to callers.
type SearchResult struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Role      string    `json:"role,omitempty"`
	Category  string    `json:"category,omitempty"`
	Score     float64   `json:"score"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Result provenance tags. Scores from different sources are not on a
// common scale; see Orchestrator for how they are merged.
const (
	SourceLocalKeyword  = "local-keyword"
	SourceLocalSemantic = "local-semantic"
	SourceCloudKeyword  = "cloud-keyword"
	SourceCloudSemantic = "cloud-semantic"
	SourceCloudHybrid   = "cloud-hybrid"
)

// Collection names. The cloud store keeps messages and facts in separate
// tables; the local index carries both and filters by Collection.
const (
	CollectionMessages = "messages"
	CollectionFacts    = "facts"
)

// Filters narrows a search to one owner, session, category or collection.
// An absent field means no restriction on that dimension.
type Filters struct {
	OwnerID    string `json:"owner_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Category   string `json:"category,omitempty"`
	Collection string `json:"collection,omitempty"`
}

// SearchMode selects which retrieval paths a search uses.
type SearchMode string

const (
	ModeKeyword  SearchMode = "keyword"
	ModeSemantic SearchMode = "semantic"
	ModeHybrid   SearchMode = "hybrid"
)

// Options holds per-call search options.
type Options struct {
	OwnerID    string     `json:"owner_id"`
	SessionID  string     `json:"session_id,omitempty"`
	Collection string     `json:"collection,omitempty"`
	Mode       SearchMode `json:"mode"`
	Limit      int        `json:"limit"`
	Threshold  float64    `json:"threshold"`   // semantic cutoff, default 0.6
	ForceCloud bool       `json:"force_cloud"` // always consult the cloud store
}

// Stats describes how a search was answered, for observability.
type Stats struct {
	Duration   time.Duration `json:"duration"`
	LocalCount int           `json:"local_count"`
	CloudCount int           `json:"cloud_count"`
	Source     string        `json:"source"` // "local"|"cloud"|"local+cloud"
}

// Response bundles ranked results with their stats.
type Response struct {
	Results []SearchResult `json:"results"`
	Stats   Stats          `json:"stats"`
}

// Config holds tuning knobs for the hybrid search engine.
type Config struct {
	Dimensions        int           `json:"dimensions"`          // embedding width, default 384
	MaxItems          int           `json:"max_items"`           // local index cap, default 5000
	LocalMinResults   int           `json:"local_min_results"`   // cloud trigger, default 5
	DefaultLimit      int           `json:"default_limit"`       // default 20
	SemanticThreshold float64       `json:"semantic_threshold"`  // default 0.6
	CloudTimeout      time.Duration `json:"cloud_timeout"`       // default 3s
	PersistDebounce   time.Duration `json:"persist_debounce"`    // default 300ms
	EmbedConcurrency  int           `json:"embed_concurrency"`   // batch in-flight bound, default 5
	EmbedCacheSize    int           `json:"embed_cache_size"`    // LRU entries, default 1000
	ResyncDelay       time.Duration `json:"resync_delay"`        // startup resync delay, default 5s
	ResyncLimit       int           `json:"resync_limit"`        // items fetched per collection on resync
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Dimensions:        384,
		MaxItems:          5000,
		LocalMinResults:   5,
		DefaultLimit:      20,
		SemanticThreshold: 0.6,
		CloudTimeout:      3 * time.Second,
		PersistDebounce:   300 * time.Millisecond,
		EmbedConcurrency:  5,
		EmbedCacheSize:    1000,
		ResyncDelay:       5 * time.Second,
		ResyncLimit:       2000,
	}
}
