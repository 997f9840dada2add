package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reslab/paper-search/internal/domain"
)

type fakeRepo struct {
	PaperRepository

	lexical    []*domain.Paper
	lexicalErr error
	byID       map[uuid.UUID]*domain.Paper
	marked     []uuid.UUID
}

func (f *fakeRepo) LexicalSearch(ctx context.Context, term, category string, limit int) ([]*domain.Paper, error) {
	if f.lexicalErr != nil {
		return nil, f.lexicalErr
	}
	return f.lexical, nil
}

func (f *fakeRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Paper, error) {
	papers := make([]*domain.Paper, 0, len(ids))
	for _, id := range ids {
		if p, ok := f.byID[id]; ok {
			papers = append(papers, p)
		}
	}
	return papers, nil
}

func (f *fakeRepo) MarkEmbedded(ctx context.Context, id uuid.UUID) error {
	f.marked = append(f.marked, id)
	return nil
}

type fakeVectors struct {
	matches  []VectorMatch
	err      error
	upserted []PaperPoint
}

func (f *fakeVectors) EnsureCollection(ctx context.Context) error { return nil }

func (f *fakeVectors) UpsertBatch(ctx context.Context, points []PaperPoint) error {
	f.upserted = append(f.upserted, points...)
	return nil
}

func (f *fakeVectors) Search(ctx context.Context, vector []float32, category string, topK uint64) ([]VectorMatch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

func (f *fakeVectors) Close() error { return nil }

type fakePinger struct{ err error }

func (f *fakePinger) Ping(ctx context.Context) error { return f.err }

func TestLocalStore_HybridSearch_VectorFirstNoDuplicates(t *testing.T) {
	t.Parallel()

	vecID := uuid.New()
	bothID := uuid.New()
	lexID := uuid.New()

	vecPaper := &domain.Paper{ID: vecID, Title: "vector only"}
	bothPaper := &domain.Paper{ID: bothID, Title: "in both legs"}
	lexPaper := &domain.Paper{ID: lexID, Title: "lexical only"}

	repo := &fakeRepo{
		lexical: []*domain.Paper{bothPaper, lexPaper},
		byID:    map[uuid.UUID]*domain.Paper{vecID: vecPaper, bothID: bothPaper},
	}
	vectors := &fakeVectors{matches: []VectorMatch{
		{PaperID: vecID, Score: 0.92, Embedding: []float32{1, 0}},
		{PaperID: bothID, Score: 0.85, Embedding: []float32{0, 1}},
	}}

	s := NewLocalStore(repo, vectors, &fakePinger{}, zerolog.Nop())

	papers, err := s.HybridSearch(context.Background(), []float32{1, 0}, "query", "ai_cs", 10)
	require.NoError(t, err)
	require.Len(t, papers, 3)

	// Vector matches first, then novel lexical matches, no duplicates.
	assert.Equal(t, vecID, papers[0].ID)
	assert.Equal(t, bothID, papers[1].ID)
	assert.Equal(t, lexID, papers[2].ID)

	// The stored vector and similarity rode along for the ranker.
	assert.Equal(t, []float32{1, 0}, papers[0].Embedding)
	assert.InDelta(t, 0.92, papers[0].Scores.Semantic, 1e-6)
}

func TestLocalStore_HybridSearch_VectorFailureDegradesToLexical(t *testing.T) {
	t.Parallel()

	lexPaper := &domain.Paper{ID: uuid.New(), Title: "lexical"}
	repo := &fakeRepo{lexical: []*domain.Paper{lexPaper}}
	vectors := &fakeVectors{err: errors.New("qdrant down")}

	s := NewLocalStore(repo, vectors, &fakePinger{}, zerolog.Nop())

	papers, err := s.HybridSearch(context.Background(), []float32{1, 0}, "query", "", 10)
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Equal(t, lexPaper.ID, papers[0].ID)
}

func TestLocalStore_HybridSearch_LexicalFailureIsFatal(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{lexicalErr: errors.New("connection refused")}
	s := NewLocalStore(repo, &fakeVectors{}, &fakePinger{}, zerolog.Nop())

	_, err := s.HybridSearch(context.Background(), nil, "query", "", 10)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
}

func TestLocalStore_HybridSearch_LimitApplied(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{lexical: []*domain.Paper{
		{ID: uuid.New()}, {ID: uuid.New()}, {ID: uuid.New()},
	}}
	s := NewLocalStore(repo, &fakeVectors{}, &fakePinger{}, zerolog.Nop())

	papers, err := s.HybridSearch(context.Background(), nil, "query", "", 2)
	require.NoError(t, err)
	assert.Len(t, papers, 2)
}

func TestLocalStore_UpdateEmbedding(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	vectors := &fakeVectors{}
	s := NewLocalStore(repo, vectors, &fakePinger{}, zerolog.Nop())

	id := uuid.New()
	err := s.UpdateEmbedding(context.Background(), id, "medicine", []float32{0.5, 0.5})
	require.NoError(t, err)

	require.Len(t, vectors.upserted, 1)
	assert.Equal(t, id, vectors.upserted[0].PaperID)
	assert.Equal(t, "medicine", vectors.upserted[0].Category)
	assert.Equal(t, []uuid.UUID{id}, repo.marked)
}

func TestLocalStore_Ping(t *testing.T) {
	t.Parallel()

	t.Run("healthy", func(t *testing.T) {
		t.Parallel()
		s := NewLocalStore(&fakeRepo{}, &fakeVectors{}, &fakePinger{}, zerolog.Nop())
		assert.NoError(t, s.Ping(context.Background()))
	})

	t.Run("unavailable", func(t *testing.T) {
		t.Parallel()
		s := NewLocalStore(&fakeRepo{}, &fakeVectors{}, &fakePinger{err: errors.New("refused")}, zerolog.Nop())
		err := s.Ping(context.Background())
		assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
	})
}

func TestVectorConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     VectorConfig
		wantErr bool
	}{
		{
			name:    "valid",
			cfg:     VectorConfig{Address: "localhost:6334", CollectionName: "papers", VectorSize: 384},
			wantErr: false,
		},
		{
			name:    "missing address",
			cfg:     VectorConfig{CollectionName: "papers", VectorSize: 384},
			wantErr: true,
		},
		{
			name:    "missing collection",
			cfg:     VectorConfig{Address: "localhost:6334", VectorSize: 384},
			wantErr: true,
		},
		{
			name:    "zero vector size",
			cfg:     VectorConfig{Address: "localhost:6334", CollectionName: "papers"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseAddress(t *testing.T) {
	t.Parallel()

	host, port, err := parseAddress("qdrant.internal:6334")
	require.NoError(t, err)
	assert.Equal(t, "qdrant.internal", host)
	assert.Equal(t, 6334, port)

	_, _, err = parseAddress("no-port")
	assert.Error(t, err)

	_, _, err = parseAddress("host:notaport")
	assert.Error(t, err)
}
