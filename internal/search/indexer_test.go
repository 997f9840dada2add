package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reslab/paper-search/internal/domain"
	"github.com/reslab/paper-search/internal/embedding"
)

type failingEncoder struct{}

func (failingEncoder) EmbedText(context.Context, string) ([]float32, error) {
	return nil, errors.New("encoder down")
}

func (failingEncoder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("encoder down")
}

func (failingEncoder) Dimension() int { return 8 }

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestBackgroundIndexer_PersistsAndEmbeds(t *testing.T) {
	t.Parallel()

	st := &fakeStore{}
	idx := NewBackgroundIndexer(IndexerConfig{}, st, embedding.NewLocalEncoder(8), nil, zerolog.Nop())

	batch := []*domain.Paper{
		externalPaper("Attention is all you need", "10.1/a", domain.SourceTypeArXiv, 90000),
		externalPaper("BERT", "10.1/b", domain.SourceTypeSemanticScholar, 50000),
	}
	require.True(t, idx.Enqueue(batch))

	waitFor(t, func() bool { return st.embeddedCount() == 2 }, "batch never fully indexed")
	assert.Equal(t, 2, st.upsertCount())

	require.NoError(t, idx.Shutdown(context.Background()))
}

func TestBackgroundIndexer_EmptyBatchAccepted(t *testing.T) {
	t.Parallel()

	st := &fakeStore{}
	idx := NewBackgroundIndexer(IndexerConfig{}, st, embedding.NewLocalEncoder(8), nil, zerolog.Nop())
	defer idx.Shutdown(context.Background())

	assert.True(t, idx.Enqueue(nil))
	assert.Zero(t, st.upsertCount())
}

func TestBackgroundIndexer_QueueFullDropsBatch(t *testing.T) {
	t.Parallel()

	st := &fakeStore{}
	idx := &BackgroundIndexer{
		cfg:     IndexerConfig{Workers: 1, QueueSize: 1, EmbedBatchSize: 50},
		store:   st,
		encoder: embedding.NewLocalEncoder(8),
		logger:  zerolog.Nop(),
		queue:   make(chan []*domain.Paper, 1),
	}
	// No workers started: the queue fills and stays full.
	batch := []*domain.Paper{externalPaper("a", "10.1/a", domain.SourceTypeArXiv, 0)}

	assert.True(t, idx.Enqueue(batch))
	assert.False(t, idx.Enqueue(batch), "saturated queue must reject, not block")
}

func TestBackgroundIndexer_UpsertFailureSkipsPaper(t *testing.T) {
	t.Parallel()

	st := &fakeStore{upsertErr: errors.New("connection refused")}
	idx := NewBackgroundIndexer(IndexerConfig{}, st, embedding.NewLocalEncoder(8), nil, zerolog.Nop())

	require.True(t, idx.Enqueue([]*domain.Paper{
		externalPaper("a", "10.1/a", domain.SourceTypeArXiv, 0),
	}))
	require.NoError(t, idx.Shutdown(context.Background()))

	assert.Zero(t, st.upsertCount())
	assert.Zero(t, st.embeddedCount())
}

func TestBackgroundIndexer_EmbedFailureKeepsMetadata(t *testing.T) {
	t.Parallel()

	st := &fakeStore{}
	idx := NewBackgroundIndexer(IndexerConfig{}, st, failingEncoder{}, nil, zerolog.Nop())

	require.True(t, idx.Enqueue([]*domain.Paper{
		externalPaper("a", "10.1/a", domain.SourceTypeArXiv, 0),
		externalPaper("b", "10.1/b", domain.SourceTypeOpenAlex, 0),
	}))
	require.NoError(t, idx.Shutdown(context.Background()))

	assert.Equal(t, 2, st.upsertCount(), "metadata persists without vectors")
	assert.Zero(t, st.embeddedCount())
}

func TestBackgroundIndexer_EmbeddingStoreFailureKeepsMetadata(t *testing.T) {
	t.Parallel()

	// The vector is computed but writing it fails; the paper's metadata
	// row survives and the batch does not abort.
	st := &fakeStore{embedErr: errors.New("vector index down")}
	idx := NewBackgroundIndexer(IndexerConfig{}, st, embedding.NewLocalEncoder(8), nil, zerolog.Nop())

	require.True(t, idx.Enqueue([]*domain.Paper{
		externalPaper("a", "10.1/a", domain.SourceTypeArXiv, 0),
		externalPaper("b", "10.1/b", domain.SourceTypeOpenAlex, 0),
	}))
	require.NoError(t, idx.Shutdown(context.Background()))

	assert.Equal(t, 2, st.upsertCount(), "metadata persists without vectors")
	assert.Zero(t, st.embeddedCount())
}

func TestBackgroundIndexer_ShutdownDrainsQueue(t *testing.T) {
	t.Parallel()

	st := &fakeStore{}
	idx := NewBackgroundIndexer(IndexerConfig{Workers: 1}, st, embedding.NewLocalEncoder(8), nil, zerolog.Nop())

	for n := 0; n < 5; n++ {
		require.True(t, idx.Enqueue([]*domain.Paper{
			externalPaper("paper", "10.1/x", domain.SourceTypeArXiv, 0),
		}))
	}
	require.NoError(t, idx.Shutdown(context.Background()))

	assert.Equal(t, 5, st.upsertCount())
	assert.False(t, idx.Enqueue([]*domain.Paper{
		externalPaper("late", "10.1/late", domain.SourceTypeArXiv, 0),
	}), "closed indexer rejects new batches")
}
