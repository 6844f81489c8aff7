package vector

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"
)

func TestCosine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		a, b   []float32
		expect float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, expect: 1},
		{name: "scaled", a: []float32{1, 0}, b: []float32{5, 0}, expect: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, expect: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, expect: -1},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, expect: 0},
		{name: "diagonal", a: []float32{1, 0}, b: []float32{1, 1}, expect: 1 / math.Sqrt2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Cosine(tt.a, tt.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.expect) > 1e-6 {
				t.Fatalf("expected %v, got %v", tt.expect, got)
			}
		})
	}
}

func TestCosineDimensionMismatch(t *testing.T) {
	_, err := Cosine([]float32{1, 2}, []float32{1})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestSimilarityRefusesMixedModels(t *testing.T) {
	a := Embedding{Values: []float32{1, 0}, Model: "minilm@2"}
	b := Embedding{Values: []float32{1, 0}, Model: "gemini@2"}

	if _, err := Similarity(a, b); !errors.Is(err, ErrModelMismatch) {
		t.Fatalf("expected model mismatch, got %v", err)
	}

	b.Model = a.Model
	sim, err := Similarity(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sim != 1 {
		t.Fatalf("expected 1, got %v", sim)
	}
}

func TestClamp01(t *testing.T) {
	cases := map[float64]float64{-0.3: 0, 0: 0, 0.5: 0.5, 1: 1, 1.0000001: 1, math.NaN(): 0}
	for in, want := range cases {
		if got := Clamp01(in); got != want {
			t.Fatalf("Clamp01(%v) = %v, want %v", in, got, want)
		}
	}
}

type stubProvider struct {
	values []float32
	err    error
	calls  int
}

func (s *stubProvider) Embed(context.Context, string) ([]float32, error) {
	s.calls++
	return s.values, s.err
}

func (s *stubProvider) Model() string { return "stub-model" }

func TestTaggedEmbedder(t *testing.T) {
	provider := &stubProvider{values: []float32{0.1, 0.2, 0.3}}
	embedder, err := NewTaggedEmbedder(provider, TaggedEmbedderConfig{Dimension: 3}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if embedder.Version() != "stub-model@3" {
		t.Fatalf("unexpected default version %q", embedder.Version())
	}

	got, err := embedder.Embed(context.Background(), "  réseau cisco ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Model != "stub-model@3" || got.Dim() != 3 {
		t.Fatalf("unexpected embedding: %+v", got)
	}

	if _, err := embedder.Embed(context.Background(), "   "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected empty text error, got %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("blank text must not reach the provider, got %d calls", provider.calls)
	}
}

func TestTaggedEmbedderRejectsWrongDimension(t *testing.T) {
	provider := &stubProvider{values: []float32{0.1, 0.2}}
	embedder, err := NewTaggedEmbedder(provider, TaggedEmbedderConfig{Dimension: 384, Version: "minilm-v2"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := embedder.Embed(context.Background(), "text"); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestNewTaggedEmbedderValidation(t *testing.T) {
	if _, err := NewTaggedEmbedder(nil, TaggedEmbedderConfig{Dimension: 3}, nil); err == nil {
		t.Fatal("expected error for nil provider")
	}
	if _, err := NewTaggedEmbedder(&stubProvider{}, TaggedEmbedderConfig{}, nil); err == nil {
		t.Fatal("expected error for zero dimension")
	}
}
