package search

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestSimpleEmbedder_Deterministic(t *testing.T) {
	e := NewSimpleEmbedder(64)
	ctx := context.Background()

	a1, err := e.Embed(ctx, "the same text")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	a2, _ := e.Embed(ctx, "the same text")

	for i := range a1 {
		if a1[i] != a2[i] {
			t.Fatalf("expected identical vectors for identical text, differ at %d", i)
		}
	}
}

func TestSimpleEmbedder_SharedWordsLandCloser(t *testing.T) {
	e := NewSimpleEmbedder(128)
	ctx := context.Background()

	base, _ := e.Embed(ctx, "I moved to Boston last year")
	related, _ := e.Embed(ctx, "Boston has been my home since last year")
	unrelated, _ := e.Embed(ctx, "quantum entanglement experiment results")

	simRelated := CosineSimilarity(base, related)
	simUnrelated := CosineSimilarity(base, unrelated)
	if simRelated <= simUnrelated {
		t.Errorf("expected related text closer: related %.3f, unrelated %.3f", simRelated, simUnrelated)
	}
}

func TestSimpleEmbedder_EmptyInput(t *testing.T) {
	e := NewSimpleEmbedder(64)

	if _, err := e.Embed(context.Background(), "   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSimpleEmbedder_UnitNorm(t *testing.T) {
	e := NewSimpleEmbedder(64)

	vec, err := e.Embed(context.Background(), "check the norm")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(sum)-1.0) > 1e-5 {
		t.Errorf("expected unit vector, norm %f", math.Sqrt(sum))
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1.0},
		{"mismatched lengths", []float32{1, 0}, []float32{1, 0, 0}, 0.0},
		{"empty", nil, nil, 0.0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"basic", "Hello World", []string{"hello", "world"}},
		{"stopwords dropped", "the cat is on a mat", []string{"cat", "mat"}},
		{"punctuation stripped", "boston, ma: great city!", []string{"boston", "ma", "great", "city"}},
		{"duplicates removed", "go go gadget go", []string{"go", "gadget"}},
		{"digits kept", "route 66 revisited", []string{"route", "66", "revisited"}},
		{"empty", "   ", nil},
		{"only stopwords", "the a an", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tokenize(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token %d: expected %q, got %q", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestTokenize_CJK(t *testing.T) {
	tokens := tokenize("波士顿 weather")
	want := []string{"波", "士", "顿", "weather"}
	if len(tokens) != len(want) {
		t.Fatalf("expected per-rune CJK tokens %v, got %v", want, tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token %d: expected %q, got %q", i, want[i], tokens[i])
		}
	}
}

func TestTokenize_CJKSubstringMatches(t *testing.T) {
	// A short CJK query must share tokens with a longer phrase that
	// contains it; per-rune tokens make that hold without segmentation.
	phrase := tokenize("我住在波士顿市中心")
	query := tokenize("波士顿")

	inPhrase := make(map[string]struct{}, len(phrase))
	for _, tok := range phrase {
		inPhrase[tok] = struct{}{}
	}
	for _, tok := range query {
		if _, ok := inPhrase[tok]; !ok {
			t.Errorf("query token %q not found in phrase tokens %v", tok, phrase)
		}
	}
}
