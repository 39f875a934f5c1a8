package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// defaultMaxEmbedTokens is the fallback context size for embedding models.
const defaultMaxEmbedTokens = 256

// charsPerToken is a conservative estimate used for input truncation.
const charsPerToken = 3.0

// LocalEmbedder generates embeddings from a local quantized
// sentence-embedding model served over an OpenAI-compatible
// /v1/embeddings endpoint (llama-server style). Recent conversions are
// cached in a bounded LRU keyed by normalized text.
type LocalEmbedder struct {
	baseURL     string
	model       string
	dimensions  int
	maxChars    int
	concurrency int
	httpClient  *http.Client
	cache       *lru.Cache[string, []float32]
	logger      zerolog.Logger

	preloadOnce sync.Once
	preloadErr  error

	mu          sync.Mutex
	unavailable bool // latched after a failed load; logged once
}

// LocalEmbedderOptions holds configuration for LocalEmbedder.
type LocalEmbedderOptions struct {
	BaseURL     string        // embedding server base URL, e.g. http://127.0.0.1:8089
	Model       string        // model name sent on requests, default "embedding"
	Dimensions  int           // default 384
	MaxTokens   int           // model context window, default 256
	Concurrency int           // batch in-flight bound, default 5
	CacheSize   int           // LRU capacity, default 1000
	Timeout     time.Duration // per-request timeout, default 10s
	Logger      zerolog.Logger
}

// NewLocalEmbedder creates a LocalEmbedder with the given options.
func NewLocalEmbedder(opts LocalEmbedderOptions) (*LocalEmbedder, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("search: embedder base URL is required")
	}
	if opts.Model == "" {
		opts.Model = "embedding"
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = 384
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxEmbedTokens
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	cache, err := lru.New[string, []float32](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("search: create embedding cache: %w", err)
	}

	return &LocalEmbedder{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		model:      opts.Model,
		dimensions: opts.Dimensions,
		// 80% of the context to leave headroom for tokenizer variance
		maxChars:    int(float64(opts.MaxTokens) * charsPerToken * 0.8),
		concurrency: opts.Concurrency,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		cache:       cache,
		logger:      opts.Logger,
	}, nil
}

// Preload performs the one-time model warm-up so the first real query
// does not pay the model-load cost. Safe to call concurrently; only the
// first call does work.
func (e *LocalEmbedder) Preload(ctx context.Context) error {
	e.preloadOnce.Do(func() {
		start := time.Now()
		_, err := e.embedRemote(ctx, "warmup")
		if err != nil {
			e.preloadErr = err
			e.markUnavailable(err)
			return
		}
		e.logger.Info().Dur("duration", time.Since(start)).Msg("embedding model preloaded")
	})
	return e.preloadErr
}

// Embed generates an embedding for a single text. Empty input (after
// trimming) fails with ErrInvalidInput; a cached vector is returned when
// the normalized text was embedded recently.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &SearchError{Op: "embed", Err: ErrInvalidInput}
	}

	key := cacheKey(text)
	if vec, ok := e.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := e.embedRemote(ctx, text)
	if err != nil {
		e.markUnavailable(err)
		return nil, &SearchError{Op: "embed", Err: fmt.Errorf("%w: %v", ErrModelUnavailable, err)}
	}

	e.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch embeds multiple texts with at most the configured number of
// requests in flight. Results are positional; a nil vector marks a text
// that failed to embed.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	errs := make([]error, len(texts))
	sem := make(chan struct{}, e.concurrency)

	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i], errs[i] = e.Embed(ctx, text)
		}(i, text)
	}
	wg.Wait()

	var firstErr error
	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if failed == len(texts) {
		return nil, firstErr
	}
	if failed > 0 {
		e.logger.Warn().Int("failed", failed).Int("total", len(texts)).Msg("partial batch embed failure")
	}

	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *LocalEmbedder) Dimensions() int {
	return e.dimensions
}

// markUnavailable latches the degraded state and logs it once.
func (e *LocalEmbedder) markUnavailable(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.unavailable {
		e.unavailable = true
		e.logger.Warn().Err(err).Msg("embedding model unavailable, semantic search degraded")
	}
}

// cacheKey normalizes text for cache lookup only; the embedding itself
// is computed over the original text.
func cacheKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// OpenAI-compatible embedding request/response types.

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []embeddingData `json:"data"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// embedRemote calls the local embedding server.
func (e *LocalEmbedder) embedRemote(ctx context.Context, text string) ([]float32, error) {
	text = truncateRunes(text, e.maxChars)

	body, err := json.Marshal(embeddingRequest{Input: text, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding server returned %d: %s", resp.StatusCode, string(errBody))
	}

	var result embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}

	vec := result.Data[0].Embedding
	if len(vec) != e.dimensions {
		return nil, fmt.Errorf("embedding has %d dimensions, want %d", len(vec), e.dimensions)
	}

	normalizeVector(vec)
	return vec, nil
}

// truncateRunes cuts s to at most max bytes without splitting a UTF-8
// sequence.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// Compile-time interface check
var _ Embedder = (*LocalEmbedder)(nil)
