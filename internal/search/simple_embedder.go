package search

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// SimpleEmbedder is a deterministic embedder for development and testing.
// It generates pseudo-random unit vectors from text hashing, so identical
// texts always map to identical vectors.
type SimpleEmbedder struct {
	dims int
}

// NewSimpleEmbedder creates a SimpleEmbedder with the given dimensions.
func NewSimpleEmbedder(dims int) *SimpleEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &SimpleEmbedder{dims: dims}
}

// Embed generates a deterministic embedding vector for text. The vector
// is a bag of per-token hash vectors, so texts sharing words land closer
// together than unrelated texts.
func (e *SimpleEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &SearchError{Op: "embed", Err: ErrInvalidInput}
	}

	vec := make([]float32, e.dims)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		tokens = []string{strings.ToLower(strings.TrimSpace(text))}
	}

	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		seed := h.Sum64()
		for i := 0; i < e.dims; i++ {
			seed = seed*6364136223846793005 + 1442695040888963407
			vec[i] += float32(int64(seed>>32)&0x7FFFFFFF)/float32(0x7FFFFFFF)*2 - 1
		}
	}

	normalizeVector(vec)
	return vec, nil
}

// EmbedBatch generates embedding vectors for multiple texts.
func (e *SimpleEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *SimpleEmbedder) Dimensions() int {
	return e.dims
}

// normalizeVector normalizes a vector to unit length in-place.
func normalizeVector(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

var _ Embedder = (*SimpleEmbedder)(nil)
