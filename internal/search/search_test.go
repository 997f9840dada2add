package search

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reslab/paper-search/internal/category"
	"github.com/reslab/paper-search/internal/domain"
	"github.com/reslab/paper-search/internal/rewrite"
	"github.com/reslab/paper-search/internal/store"
)

// Shared fakes for the search package tests.

type fakeStore struct {
	mu        sync.Mutex
	hybrid    []*domain.Paper
	hybridErr error
	upserts   []*domain.Paper
	upsertErr error
	embedded  []uuid.UUID
	embedErr  error
	pingErr   error
}

func (f *fakeStore) HybridSearch(ctx context.Context, queryEmbedding []float32, lexicalTerm, category string, limit int) ([]*domain.Paper, error) {
	if f.hybridErr != nil {
		return nil, f.hybridErr
	}
	return f.hybrid, nil
}

func (f *fakeStore) UpsertByIdentifier(ctx context.Context, paper *domain.Paper) (*domain.Paper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	stored := *paper
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.Source = domain.SourceTypeLocal
	f.upserts = append(f.upserts, &stored)
	return &stored, nil
}

func (f *fakeStore) UpdateEmbedding(ctx context.Context, id uuid.UUID, category string, embedding []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.embedErr != nil {
		return f.embedErr
	}
	f.embedded = append(f.embedded, id)
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeStore) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

func (f *fakeStore) embeddedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.embedded)
}

var _ store.Store = (*fakeStore)(nil)

type fakeSource struct {
	name    string
	papers  []*domain.Paper
	err     error
	enabled bool
	delay   time.Duration

	mu    sync.Mutex
	calls int
}

func (f *fakeSource) Search(ctx context.Context, query string, limit int) ([]*domain.Paper, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.papers, nil
}

func (f *fakeSource) SourceType() domain.SourceType { return domain.SourceType(f.name) }
func (f *fakeSource) Name() string                  { return f.name }
func (f *fakeSource) IsEnabled() bool               { return f.enabled }

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// newTestRouter builds the routing table the tests exercise.
func newTestRouter() *category.Router {
	router, err := category.NewRouter([]category.Profile{
		{
			ID:              "ai_cs",
			DisplayName:     "AI & Computer Science",
			SourceHierarchy: []string{"semantic_scholar", "arxiv", "openalex"},
			Keywords:        []string{"machine learning", "neural", "transformer", "algorithm"},
		},
		{
			ID:              "medicine",
			DisplayName:     "Medicine",
			SourceHierarchy: []string{"pubmed", "semantic_scholar", "openalex"},
			Keywords:        []string{"disease", "clinical", "patient", "drug"},
		},
		{
			ID:              "general",
			DisplayName:     "General",
			SourceHierarchy: []string{"semantic_scholar", "openalex"},
		},
	}, "general")
	if err != nil {
		panic(err)
	}
	return router
}

// externalPaper builds an externally sourced paper with a DOI.
func externalPaper(title, doi string, source domain.SourceType, citations int) *domain.Paper {
	return &domain.Paper{
		DOI:           doi,
		Title:         title,
		Source:        source,
		CitationCount: citations,
	}
}

type fakeOptimizer struct {
	result *rewrite.Result
	err    error
	calls  int
}

func (f *fakeOptimizer) Optimize(ctx context.Context, query string, categories []string) (*rewrite.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]*domain.Paper
	stored  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]*domain.Paper)}
}

func (f *fakeCache) Lookup(category string, queryEmbedding []float32) ([]*domain.Paper, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	papers, ok := f.entries[category]
	return papers, ok
}

func (f *fakeCache) Store(category string, queryEmbedding []float32, results []*domain.Paper) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[category] = results
	f.stored++
}

type fakeFetcher struct {
	result FetchResult
	err    error

	mu        sync.Mutex
	lastQuery string
	calls     int
}

func (f *fakeFetcher) Fetch(ctx context.Context, query, categoryID string, queryEmbedding []float32, limit, minResults int) (FetchResult, error) {
	f.mu.Lock()
	f.lastQuery = query
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return FetchResult{}, f.err
	}
	return f.result, nil
}

type passthroughRanker struct{}

func (passthroughRanker) Rank(ctx context.Context, queryEmbedding []float32, rawQuery string, papers []*domain.Paper, topK int) []*domain.Paper {
	if topK > len(papers) {
		topK = len(papers)
	}
	return papers[:topK]
}

type fakeIndexer struct {
	mu      sync.Mutex
	batches [][]*domain.Paper
}

func (f *fakeIndexer) Enqueue(papers []*domain.Paper) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, papers)
	return true
}

func (f *fakeIndexer) enqueued() [][]*domain.Paper {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches
}
