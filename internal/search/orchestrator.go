package search

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Orchestrator answers searches local-first: the in-process index is
// always consulted, and the cloud store only when the local answer is
// thin (fewer than LocalMinResults hits) or the caller forces it.
// Cloud and embedder failures degrade the answer instead of failing it;
// the only error a caller can see is ErrInvalidInput.
type Orchestrator struct {
	index    *LocalIndex
	embedder Embedder
	cloud    CloudSearcher // nil when running offline
	cfg      Config
	logger   zerolog.Logger
}

// NewOrchestrator creates an Orchestrator. cloud may be nil for
// local-only operation.
func NewOrchestrator(index *LocalIndex, embedder Embedder, cloud CloudSearcher, cfg Config, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		index:    index,
		embedder: embedder,
		cloud:    cloud,
		cfg:      cfg,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Search runs a hybrid search for query.
func (o *Orchestrator) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	started := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &SearchError{Op: "search", Err: ErrInvalidInput}
	}
	if opts.Limit <= 0 {
		opts.Limit = o.cfg.DefaultLimit
	}
	if opts.Threshold <= 0 {
		opts.Threshold = o.cfg.SemanticThreshold
	}
	if opts.Mode == "" {
		opts.Mode = ModeHybrid
	}
	filters := Filters{
		OwnerID:    opts.OwnerID,
		SessionID:  opts.SessionID,
		Collection: opts.Collection,
	}

	// Embed the query once; both the local semantic leg and the cloud
	// leg reuse it. A failed embed means keyword-only, not a failed search.
	var queryEmbedding []float32
	if opts.Mode != ModeKeyword {
		vec, err := o.embedder.Embed(ctx, query)
		switch {
		case err == nil:
			queryEmbedding = vec
		case errors.Is(err, ErrInvalidInput):
			return nil, err
		default:
			o.logger.Warn().Err(err).Msg("query embedding failed, keyword-only search")
		}
	}

	local := o.searchLocal(query, queryEmbedding, filters, opts)

	var cloud []SearchResult
	cloudConsulted := false
	if o.cloud != nil && (opts.ForceCloud || len(local) < o.cfg.LocalMinResults) {
		cloudConsulted = true
		cloud = o.searchCloud(ctx, query, queryEmbedding, filters, opts)
	}

	merged := mergeResults(local, cloud)
	if len(merged) > opts.Limit {
		merged = merged[:opts.Limit]
	}

	resp := &Response{
		Results: merged,
		Stats: Stats{
			Duration:   time.Since(started),
			LocalCount: len(local),
			CloudCount: len(cloud),
			Source:     statsSource(len(local), cloudConsulted, len(cloud)),
		},
	}

	o.logger.Debug().
		Int("local", len(local)).
		Int("cloud", len(cloud)).
		Int("returned", len(merged)).
		Dur("duration", resp.Stats.Duration).
		Str("mode", string(opts.Mode)).
		Msg("search complete")

	return resp, nil
}

// searchLocal queries the in-process index. The keyword leg runs for
// every mode so a down embedder or an over-strict threshold still
// leaves keyword hits on the table; semantic adds to it when an
// embedding is available. Hits are merged by id, keeping the higher
// score.
func (o *Orchestrator) searchLocal(query string, queryEmbedding []float32, filters Filters, opts Options) []SearchResult {
	keyword := o.index.SearchKeyword(query, filters, opts.Limit)

	var semantic []SearchResult
	if opts.Mode != ModeKeyword && queryEmbedding != nil {
		semantic = o.index.SearchSemantic(queryEmbedding, filters, opts.Limit, opts.Threshold)
	}
	return mergeResults(keyword, semantic)
}

// searchCloud queries the cloud store, picking the cheapest call that
// covers the requested mode. Any failure yields an empty contribution.
func (o *Orchestrator) searchCloud(ctx context.Context, query string, queryEmbedding []float32, filters Filters, opts Options) []SearchResult {
	var (
		results []SearchResult
		err     error
	)
	switch {
	case opts.Mode == ModeKeyword || queryEmbedding == nil:
		results, err = o.cloud.KeywordSearch(ctx, query, filters, opts.Limit)
	case opts.Mode == ModeSemantic:
		results, err = o.cloud.SemanticSearch(ctx, queryEmbedding, filters, opts.Limit, opts.Threshold)
	default:
		results, err = o.cloud.HybridSearch(ctx, query, queryEmbedding, filters, opts.Limit)
	}
	if err != nil {
		o.logger.Warn().Err(err).Msg("cloud search failed, serving local results only")
		return nil
	}
	return results
}

// mergeResults deduplicates two result sets by id, keeping the entry
// with the higher score, and returns them sorted by score descending.
// Scores are compared raw across sources; local keyword scores are
// token counts and cosine scores are in [0,1], so keyword matches on
// several terms deliberately outrank loose semantic neighbors.
func mergeResults(a, b []SearchResult) []SearchResult {
	byID := make(map[string]SearchResult, len(a)+len(b))
	order := make([]string, 0, len(a)+len(b))
	for _, r := range a {
		if prev, ok := byID[r.ID]; !ok {
			byID[r.ID] = r
			order = append(order, r.ID)
		} else if r.Score > prev.Score {
			byID[r.ID] = r
		}
	}
	for _, r := range b {
		if prev, ok := byID[r.ID]; !ok {
			byID[r.ID] = r
			order = append(order, r.ID)
		} else if r.Score > prev.Score {
			byID[r.ID] = r
		}
	}

	merged := make([]SearchResult, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	return merged
}

func statsSource(localCount int, cloudConsulted bool, cloudCount int) string {
	switch {
	case !cloudConsulted || cloudCount == 0:
		return "local"
	case localCount == 0:
		return "cloud"
	default:
		return "local+cloud"
	}
}
