package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/reslab/paper-search/internal/domain"
)

// Store is the local search and persistence facade combining the PostgreSQL
// metadata store with the Qdrant vector index.
type Store interface {
	// HybridSearch unions a category-filtered nearest-neighbor search with
	// a lexical title/abstract match, vector matches first, no duplicates.
	HybridSearch(ctx context.Context, queryEmbedding []float32, lexicalTerm, category string, limit int) ([]*domain.Paper, error)
	// UpsertByIdentifier persists the paper, gap-filling any stored row
	// that shares one of its identifiers, and returns the stored row.
	UpsertByIdentifier(ctx context.Context, paper *domain.Paper) (*domain.Paper, error)
	// UpdateEmbedding stores the paper's vector in the index and marks the
	// metadata row embedded.
	UpdateEmbedding(ctx context.Context, id uuid.UUID, category string, embedding []float32) error
	// Ping verifies the metadata store is reachable.
	Ping(ctx context.Context) error
}

// Compile-time check that *LocalStore implements Store.
var _ Store = (*LocalStore)(nil)

// Pinger is the connectivity probe of the underlying database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LocalStore implements Store over a paper repository and a vector store.
type LocalStore struct {
	repo    PaperRepository
	vectors VectorStore
	pinger  Pinger
	logger  zerolog.Logger
}

// NewLocalStore creates the store facade.
func NewLocalStore(repo PaperRepository, vectors VectorStore, pinger Pinger, logger zerolog.Logger) *LocalStore {
	return &LocalStore{
		repo:    repo,
		vectors: vectors,
		pinger:  pinger,
		logger:  logger.With().Str("component", "store").Logger(),
	}
}

// HybridSearch runs the vector and lexical legs and merges them. A vector
// index failure degrades to lexical-only results rather than failing the
// search; a metadata store failure is fatal.
func (s *LocalStore) HybridSearch(ctx context.Context, queryEmbedding []float32, lexicalTerm, category string, limit int) ([]*domain.Paper, error) {
	if limit <= 0 {
		return nil, domain.NewValidationError("limit", "limit must be positive")
	}

	vectorPapers, err := s.vectorSearch(ctx, queryEmbedding, category, limit)
	if err != nil {
		s.logger.Warn().Err(err).Msg("vector search failed, falling back to lexical only")
		vectorPapers = nil
	}

	lexicalPapers, err := s.repo.LexicalSearch(ctx, lexicalTerm, category, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	seen := make(map[uuid.UUID]bool, len(vectorPapers)+len(lexicalPapers))
	merged := make([]*domain.Paper, 0, len(vectorPapers)+len(lexicalPapers))
	for _, p := range vectorPapers {
		if !seen[p.ID] {
			seen[p.ID] = true
			merged = append(merged, p)
		}
	}
	for _, p := range lexicalPapers {
		if !seen[p.ID] {
			seen[p.ID] = true
			merged = append(merged, p)
		}
	}

	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// vectorSearch runs the nearest-neighbor leg and hydrates matched IDs from
// the metadata store, carrying stored vectors and similarity scores onto
// the papers so the ranker can reuse them.
func (s *LocalStore) vectorSearch(ctx context.Context, queryEmbedding []float32, category string, limit int) ([]*domain.Paper, error) {
	if len(queryEmbedding) == 0 || s.vectors == nil {
		return nil, nil
	}

	matches, err := s.vectors.Search(ctx, queryEmbedding, category, uint64(limit))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(matches))
	byID := make(map[uuid.UUID]VectorMatch, len(matches))
	for _, m := range matches {
		ids = append(ids, m.PaperID)
		byID[m.PaperID] = m
	}

	papers, err := s.repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	// Preserve similarity order from the vector index.
	paperByID := make(map[uuid.UUID]*domain.Paper, len(papers))
	for _, p := range papers {
		paperByID[p.ID] = p
	}

	ordered := make([]*domain.Paper, 0, len(papers))
	for _, m := range matches {
		p, ok := paperByID[m.PaperID]
		if !ok {
			// Vector point without a metadata row; skip.
			continue
		}
		p.Embedding = m.Embedding
		p.Scores.Semantic = float64(m.Score)
		ordered = append(ordered, p)
	}
	return ordered, nil
}

// UpsertByIdentifier persists the paper and returns the stored row.
func (s *LocalStore) UpsertByIdentifier(ctx context.Context, paper *domain.Paper) (*domain.Paper, error) {
	return s.repo.UpsertByIdentifier(ctx, paper)
}

// UpdateEmbedding upserts the qdrant point with the category payload and
// marks the metadata row embedded.
func (s *LocalStore) UpdateEmbedding(ctx context.Context, id uuid.UUID, category string, embedding []float32) error {
	if s.vectors == nil {
		return fmt.Errorf("vector store not configured")
	}

	err := s.vectors.UpsertBatch(ctx, []PaperPoint{{
		PaperID:   id,
		Category:  category,
		Embedding: embedding,
	}})
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}

	return s.repo.MarkEmbedded(ctx, id)
}

// Ping verifies the metadata store is reachable. Failures wrap
// domain.ErrStoreUnavailable, the one dependency error that surfaces to
// callers.
func (s *LocalStore) Ping(ctx context.Context) error {
	if err := s.pinger.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}
