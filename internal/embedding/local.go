package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// DefaultDimension is the default vector size for the local encoder.
const DefaultDimension = 384

// LocalEncoder is a deterministic, dependency-free feature-hashing encoder.
// It hashes word unigrams and bigrams into a fixed-dimension bag-of-features
// vector and L2-normalizes the result. Identical input always yields an
// identical vector.
//
// It serves two roles: the default encoder when no embedding API is
// configured, and the budget-capped lazy encode path during ranking for
// papers whose persisted embedding does not exist yet.
type LocalEncoder struct {
	dimension int
}

// NewLocalEncoder creates a local encoder with the given dimension.
// A non-positive dimension falls back to DefaultDimension.
func NewLocalEncoder(dimension int) *LocalEncoder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &LocalEncoder{dimension: dimension}
}

// Compile-time check that LocalEncoder implements Encoder.
var _ Encoder = (*LocalEncoder)(nil)

// EmbedText embeds a single text string.
func (e *LocalEncoder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, e.dimension)
	tokens := tokenize(text)

	for i, tok := range tokens {
		vec[e.bucket(tok)]++
		if i+1 < len(tokens) {
			vec[e.bucket(tok+" "+tokens[i+1])]++
		}
	}

	return normalize(vec), nil
}

// EmbedBatch embeds multiple texts, checking for cancellation between items.
func (e *LocalEncoder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimension returns the vector dimension produced by this encoder.
func (e *LocalEncoder) Dimension() int {
	return e.dimension
}

// bucket maps a token to a vector index via FNV-1a hashing.
func (e *LocalEncoder) bucket(token string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return int(h.Sum32() % uint32(e.dimension))
}

// tokenize lowercases text and splits it into alphanumeric word tokens.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
