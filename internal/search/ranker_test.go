package search

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reslab/paper-search/internal/domain"
	"github.com/reslab/paper-search/internal/embedding"
)

func newTestRanker(cfg RankerConfig) *HybridRanker {
	return NewHybridRanker(cfg, embedding.NewLocalEncoder(64), nil, zerolog.Nop())
}

func TestHybridRanker_ScoreComposition(t *testing.T) {
	t.Parallel()

	r := newTestRanker(RankerConfig{})
	query := []float32{1, 0, 0}

	perfect := &domain.Paper{
		Title:         "Perfect match",
		Embedding:     []float32{1, 0, 0},
		CitationCount: 10_000,
	}
	unrelated := &domain.Paper{
		Title:         "Unrelated",
		Embedding:     []float32{0, 1, 0},
		CitationCount: 0,
	}

	ranked := r.Rank(context.Background(), query, "query", []*domain.Paper{unrelated, perfect}, 10)
	require.Len(t, ranked, 2)

	assert.Equal(t, "Perfect match", ranked[0].Title)
	assert.InDelta(t, 1.0, ranked[0].Scores.Hybrid, 1e-9, "0.7*1 + 0.3*1")
	assert.InDelta(t, 0.0, ranked[1].Scores.Hybrid, 1e-9)
}

func TestHybridRanker_CitationSaturation(t *testing.T) {
	t.Parallel()

	r := newTestRanker(RankerConfig{})
	query := []float32{1, 0}

	moderate := &domain.Paper{Title: "a", Embedding: []float32{1, 0}, CitationCount: 10_000}
	massive := &domain.Paper{Title: "b", Embedding: []float32{1, 0}, CitationCount: 500_000}

	ranked := r.Rank(context.Background(), query, "q", []*domain.Paper{moderate, massive}, 10)

	// Citation impact saturates; both papers score the same.
	assert.InDelta(t, ranked[0].Scores.Hybrid, ranked[1].Scores.Hybrid, 1e-9)
}

func TestHybridRanker_StableSortPreservesInputOrder(t *testing.T) {
	t.Parallel()

	r := newTestRanker(RankerConfig{})
	query := []float32{1, 0}

	first := &domain.Paper{Title: "arrived first", Embedding: []float32{1, 0}, CitationCount: 100}
	second := &domain.Paper{Title: "arrived second", Embedding: []float32{1, 0}, CitationCount: 100}

	ranked := r.Rank(context.Background(), query, "q", []*domain.Paper{first, second}, 10)

	assert.Equal(t, "arrived first", ranked[0].Title)
	assert.Equal(t, "arrived second", ranked[1].Title)
}

func TestHybridRanker_TopK(t *testing.T) {
	t.Parallel()

	r := newTestRanker(RankerConfig{})
	papers := []*domain.Paper{
		{Title: "low", Embedding: []float32{0, 1}, CitationCount: 0},
		{Title: "high", Embedding: []float32{1, 0}, CitationCount: 5000},
		{Title: "mid", Embedding: []float32{1, 1}, CitationCount: 100},
	}

	ranked := r.Rank(context.Background(), []float32{1, 0}, "q", papers, 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, "high", ranked[0].Title)
}

func TestHybridRanker_LazyEncodesMissingEmbeddings(t *testing.T) {
	t.Parallel()

	enc := embedding.NewLocalEncoder(64)
	r := NewHybridRanker(RankerConfig{}, enc, nil, zerolog.Nop())

	queryVec, err := enc.EmbedText(context.Background(), "deep learning")
	require.NoError(t, err)

	// Identical text embeds to the identical vector, so the lazily encoded
	// paper must score a perfect semantic match.
	paper := &domain.Paper{Title: "deep learning"}
	ranked := r.Rank(context.Background(), queryVec, "deep learning", []*domain.Paper{paper}, 10)

	require.Len(t, ranked, 1)
	assert.NotEmpty(t, ranked[0].Embedding)
	assert.InDelta(t, 1.0, ranked[0].Scores.Semantic, 1e-6)
}

func TestHybridRanker_LazyEncodeBudget(t *testing.T) {
	t.Parallel()

	r := newTestRanker(RankerConfig{LazyEncodeBudget: 1, LazyTimeout: time.Second})

	a := &domain.Paper{Title: "first missing"}
	b := &domain.Paper{Title: "second missing"}

	r.Rank(context.Background(), []float32{1, 0}, "q", []*domain.Paper{a, b}, 10)

	encoded := 0
	for _, p := range []*domain.Paper{a, b} {
		if len(p.Embedding) > 0 {
			encoded++
		}
	}
	assert.Equal(t, 1, encoded, "budget caps on-the-fly encodes")
}

func TestHybridRanker_LexicalFlag(t *testing.T) {
	t.Parallel()

	r := newTestRanker(RankerConfig{})

	match := &domain.Paper{Title: "Advances in Quantum Computing", Embedding: []float32{1, 0}}
	abstractMatch := &domain.Paper{
		Title:     "Unrelated title",
		Abstract:  "This survey covers quantum computing at depth.",
		Embedding: []float32{1, 0},
	}
	miss := &domain.Paper{Title: "Classical algorithms", Embedding: []float32{1, 0}}

	r.Rank(context.Background(), []float32{1, 0}, "Quantum Computing",
		[]*domain.Paper{match, abstractMatch, miss}, 10)

	assert.Equal(t, 1.0, match.Scores.Lexical)
	assert.Equal(t, 1.0, abstractMatch.Scores.Lexical)
	assert.Equal(t, 0.0, miss.Scores.Lexical)
}

func TestHybridRanker_EmptyInput(t *testing.T) {
	t.Parallel()

	r := newTestRanker(RankerConfig{})
	ranked := r.Rank(context.Background(), []float32{1, 0}, "q", nil, 10)
	assert.Empty(t, ranked)
}
