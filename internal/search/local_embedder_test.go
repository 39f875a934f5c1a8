package search

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"unicode/utf8"
)

// fakeEmbeddingServer serves an OpenAI-compatible /v1/embeddings endpoint
// returning a fixed vector, and counts requests.
func fakeEmbeddingServer(t *testing.T, dims int, requests *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		requests.Add(1)

		vec := make([]float32, dims)
		for i := range vec {
			vec[i] = float32(i + 1)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": vec, "index": 0}},
		})
	}))
}

func newTestLocalEmbedder(t *testing.T, baseURL string, dims int) *LocalEmbedder {
	t.Helper()
	e, err := NewLocalEmbedder(LocalEmbedderOptions{
		BaseURL:    baseURL,
		Dimensions: dims,
	})
	if err != nil {
		t.Fatalf("create embedder: %v", err)
	}
	return e
}

func TestLocalEmbedder_Embed(t *testing.T) {
	var requests atomic.Int64
	srv := fakeEmbeddingServer(t, 8, &requests)
	defer srv.Close()

	e := newTestLocalEmbedder(t, srv.URL, 8)

	vec, err := e.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 8 {
		t.Fatalf("expected 8 dimensions, got %d", len(vec))
	}

	// Vectors come back unit-normalized.
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-5 {
		t.Errorf("expected unit vector, norm %f", math.Sqrt(norm))
	}
}

func TestLocalEmbedder_EmptyInput(t *testing.T) {
	var requests atomic.Int64
	srv := fakeEmbeddingServer(t, 8, &requests)
	defer srv.Close()

	e := newTestLocalEmbedder(t, srv.URL, 8)

	for _, text := range []string{"", "   "} {
		if _, err := e.Embed(context.Background(), text); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("text %q: expected ErrInvalidInput, got %v", text, err)
		}
	}
	if requests.Load() != 0 {
		t.Errorf("empty input must not hit the server, got %d requests", requests.Load())
	}
}

func TestLocalEmbedder_CacheHit(t *testing.T) {
	var requests atomic.Int64
	srv := fakeEmbeddingServer(t, 8, &requests)
	defer srv.Close()

	e := newTestLocalEmbedder(t, srv.URL, 8)
	ctx := context.Background()

	if _, err := e.Embed(ctx, "What did I say about Boston?"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	// Same text modulo case and surrounding whitespace hits the cache.
	if _, err := e.Embed(ctx, "  what did i say about boston?  "); err != nil {
		t.Fatalf("embed: %v", err)
	}

	if got := requests.Load(); got != 1 {
		t.Errorf("expected 1 server request with cache hit, got %d", got)
	}
}

func TestLocalEmbedder_ServerDown(t *testing.T) {
	var requests atomic.Int64
	srv := fakeEmbeddingServer(t, 8, &requests)
	srv.Close() // immediately unreachable

	e := newTestLocalEmbedder(t, srv.URL, 8)

	_, err := e.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestLocalEmbedder_DimensionMismatch(t *testing.T) {
	var requests atomic.Int64
	srv := fakeEmbeddingServer(t, 8, &requests)
	defer srv.Close()

	// Expecting 16 dims but the server returns 8.
	e := newTestLocalEmbedder(t, srv.URL, 16)

	if _, err := e.Embed(context.Background(), "hello"); !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable on dimension mismatch, got %v", err)
	}
}

func TestLocalEmbedder_EmbedBatch(t *testing.T) {
	var requests atomic.Int64
	srv := fakeEmbeddingServer(t, 8, &requests)
	defer srv.Close()

	e := newTestLocalEmbedder(t, srv.URL, 8)

	texts := []string{"first text", "second text", "third text"}
	vectors, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("embed batch: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vectors))
	}
	for i, vec := range vectors {
		if len(vec) != 8 {
			t.Errorf("vector %d: expected 8 dims, got %d", i, len(vec))
		}
	}
}

func TestLocalEmbedder_EmbedBatchAllFail(t *testing.T) {
	var requests atomic.Int64
	srv := fakeEmbeddingServer(t, 8, &requests)
	srv.Close()

	e := newTestLocalEmbedder(t, srv.URL, 8)

	if _, err := e.EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error when every text fails to embed")
	}
}

func TestLocalEmbedder_Preload(t *testing.T) {
	var requests atomic.Int64
	srv := fakeEmbeddingServer(t, 8, &requests)
	defer srv.Close()

	e := newTestLocalEmbedder(t, srv.URL, 8)
	ctx := context.Background()

	if err := e.Preload(ctx); err != nil {
		t.Fatalf("preload: %v", err)
	}
	if err := e.Preload(ctx); err != nil {
		t.Fatalf("second preload: %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("expected a single warmup request, got %d", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{"short unchanged", "hello", 10, "hello"},
		{"ascii exact cut", "hello world", 5, "hello"},
		{"cjk mid-rune backs off", "波士顿", 4, "波"},
		{"cjk clean boundary", "波士顿", 6, "波士"},
		{"zero max", "波", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateRunes(tt.input, tt.max)
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncated string %q is not valid UTF-8", got)
			}
		})
	}
}
