// Package embedding provides text encoders used for semantic caching,
// hybrid local search, and ranking.
package embedding

import (
	"context"
	"math"
)

// Encoder embeds text into a fixed-dimension vector representation.
type Encoder interface {
	// EmbedText embeds a single text string. The returned vector has the
	// encoder's configured dimension and is L2-normalized.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds multiple texts in one call. The result slice is
	// index-aligned with the input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector dimension produced by this encoder.
	Dimension() int
}

// CosineSimilarity computes the cosine similarity of two vectors.
// Returns 0 for mismatched lengths or zero vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// normalize scales a vector to unit length in place and returns it.
// Zero vectors are returned unchanged.
func normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	inv := 1.0 / math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
