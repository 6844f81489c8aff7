// Package vector holds the embedding type shared by stores and the match engine,
// together with the similarity math and the model-version tagging wrapper.
package vector

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimensionMismatch is returned when two vectors (or a vector and the configured
	// dimension) disagree on length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrModelMismatch is returned when two embeddings were produced by different model versions.
	ErrModelMismatch = errors.New("embedding model version mismatch")
)

// Embedding is a fixed-length vector tagged with the model version that produced it.
type Embedding struct {
	Values []float32 `json:"values"`
	Model  string    `json:"model"`
}

// Dim returns the number of components.
func (e Embedding) Dim() int {
	return len(e.Values)
}

// IsZero reports whether the embedding carries no values.
func (e Embedding) IsZero() bool {
	return len(e.Values) == 0
}

// Compatible reports whether a and b can be compared: same model version, same dimension.
func Compatible(a, b Embedding) error {
	if a.Model != b.Model {
		return fmt.Errorf("%w: %q vs %q", ErrModelMismatch, a.Model, b.Model)
	}
	if a.Dim() != b.Dim() {
		return fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, a.Dim(), b.Dim())
	}
	return nil
}

// Cosine returns the cosine similarity of a and b in [-1, 1].
// Zero-length or zero-norm inputs yield 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim, nil
}

// Similarity compares two tagged embeddings, refusing mismatched model versions.
func Similarity(a, b Embedding) (float64, error) {
	if err := Compatible(a, b); err != nil {
		return 0, err
	}
	return Cosine(a.Values, b.Values)
}

// Clamp01 bounds a similarity to the [0, 1] range promised by retrieval results.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
