package search

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/reslab/paper-search/internal/category"
	"github.com/reslab/paper-search/internal/domain"
	"github.com/reslab/paper-search/internal/embedding"
	"github.com/reslab/paper-search/internal/observability"
	"github.com/reslab/paper-search/internal/rewrite"
)

// Search modes.
const (
	// ModeQuick sends the query to the providers verbatim.
	ModeQuick = "quick"
	// ModeAI rewrites the query through the optimizer first.
	ModeAI = "ai"
	// ModeAuto picks quick or ai from the query's shape.
	ModeAuto = "auto"
)

// Orchestrator defaults.
const (
	// DefaultRequestTimeout bounds one search request end to end,
	// covering the worst case of every provider timing out in sequence.
	DefaultRequestTimeout = 25 * time.Second
	// DefaultAIWordThreshold is the word count above which auto mode
	// resolves to AI mode.
	DefaultAIWordThreshold = 8
	// MinOptimizerConfidence is the confidence below which the
	// optimizer's detected category is ignored.
	MinOptimizerConfidence = 0.5
)

// interrogativePrefixes mark a query as a natural-language question.
var interrogativePrefixes = []string{
	"what", "how", "why", "when", "where", "which", "who", "whose",
	"can", "could", "does", "do", "is", "are", "should", "will",
}

// Request is one search request.
type Request struct {
	// Query is the raw user query.
	Query string
	// Mode is quick, ai, or auto (default auto).
	Mode string
	// Category optionally pins the category, bypassing detection.
	Category string
	// Limit caps the number of results; 0 means the configured default.
	Limit int
}

// Response is the outcome of one search.
type Response struct {
	Papers         []*domain.Paper `json:"papers"`
	Total          int             `json:"total"`
	Query          string          `json:"query"`
	OptimizedQuery string          `json:"optimized_query,omitempty"`
	Mode           string          `json:"mode"`
	Category       string          `json:"category"`
	SourcesTried   []string        `json:"sources_tried,omitempty"`
	APICalls       int             `json:"api_calls"`
	LocalHit       bool            `json:"local_hit"`
	Cached         bool            `json:"cached"`
	TookMS         int64           `json:"took_ms"`
}

// Cache is the semantic result cache consumed by the orchestrator.
type Cache interface {
	Lookup(category string, queryEmbedding []float32) ([]*domain.Paper, bool)
	Store(category string, queryEmbedding []float32, results []*domain.Paper)
}

// OrchestratorConfig holds orchestrator settings.
type OrchestratorConfig struct {
	// DefaultLimit is the result count when the request omits one.
	DefaultLimit int
	// MaxLimit caps the requested result count.
	MaxLimit int
	// MinResults is the cascade sufficiency threshold.
	MinResults int
	// RequestTimeout bounds the whole request.
	RequestTimeout time.Duration
	// AIWordThreshold is the auto-mode word count cutoff.
	AIWordThreshold int
}

// applyDefaults sets default values for unset configuration fields.
func (c *OrchestratorConfig) applyDefaults() {
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 20
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = 100
	}
	if c.MinResults <= 0 {
		c.MinResults = 10
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.AIWordThreshold <= 0 {
		c.AIWordThreshold = DefaultAIWordThreshold
	}
}

// Orchestrator runs the full search pipeline: mode and category
// resolution, optional AI rewrite, semantic cache, cascading fetch,
// ranking, and asynchronous indexing of fresh results.
type Orchestrator struct {
	cfg       OrchestratorConfig
	router    *category.Router
	optimizer rewrite.Optimizer
	encoder   embedding.Encoder
	cache     Cache
	fetcher   Fetcher
	ranker    Ranker
	indexer   Indexer
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// NewOrchestrator creates the search orchestrator. optimizer may be nil,
// in which case AI mode degrades to the raw query.
func NewOrchestrator(
	cfg OrchestratorConfig,
	router *category.Router,
	optimizer rewrite.Optimizer,
	encoder embedding.Encoder,
	cache Cache,
	fetcher Fetcher,
	ranker Ranker,
	indexer Indexer,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{
		cfg:       cfg,
		router:    router,
		optimizer: optimizer,
		encoder:   encoder,
		cache:     cache,
		fetcher:   fetcher,
		ranker:    ranker,
		indexer:   indexer,
		metrics:   metrics,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Search runs one search request. Provider and optimizer failures degrade
// to a valid response; only local store connectivity failure returns an
// error.
func (o *Orchestrator) Search(ctx context.Context, req Request) (*Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.NewValidationError("query", "query is required")
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	limit := o.clampLimit(req.Limit)
	mode := o.resolveMode(req.Mode, query)

	if o.metrics != nil {
		o.metrics.SearchesTotal.WithLabelValues(mode).Inc()
	}

	searchQuery := query
	var optimized *rewrite.Result
	if mode == ModeAI && o.optimizer != nil {
		result, err := o.optimizer.Optimize(ctx, query, o.router.IDs())
		if err != nil {
			o.logger.Warn().Err(err).Msg("query optimization failed, using raw query")
		} else {
			searchQuery = result.OptimizedQuery
			optimized = result
		}
	}

	categoryID := o.resolveCategory(req.Category, optimized, query)

	resp := &Response{
		Query:    query,
		Mode:     mode,
		Category: categoryID,
	}
	if optimized != nil {
		resp.OptimizedQuery = optimized.OptimizedQuery
	}

	queryEmbedding := o.embedQuery(ctx, searchQuery)

	if cached, ok := o.lookupCache(categoryID, queryEmbedding); ok {
		resp.Cached = true
		resp.Papers = firstN(cached, limit)
		resp.Total = len(resp.Papers)
		o.finish(resp, start)
		return resp, nil
	}

	fetched, err := o.fetcher.Fetch(ctx, searchQuery, categoryID, queryEmbedding, limit, o.cfg.MinResults)
	if err != nil {
		return nil, err
	}

	ranked := o.ranker.Rank(ctx, queryEmbedding, searchQuery, fetched.Papers, limit)

	resp.Papers = ranked
	resp.Total = len(ranked)
	resp.SourcesTried = fetched.SourcesTried
	resp.APICalls = fetched.APICalls
	resp.LocalHit = fetched.LocalHit

	if len(queryEmbedding) > 0 && o.cache != nil && len(ranked) > 0 {
		o.cache.Store(categoryID, queryEmbedding, ranked)
	}

	o.indexFresh(categoryID, fetched.Papers)

	if o.metrics != nil && fetched.LocalHit {
		o.metrics.LocalHits.Inc()
	}
	o.finish(resp, start)
	return resp, nil
}

// clampLimit applies the default and maximum result counts.
func (o *Orchestrator) clampLimit(limit int) int {
	if limit <= 0 {
		return o.cfg.DefaultLimit
	}
	if limit > o.cfg.MaxLimit {
		return o.cfg.MaxLimit
	}
	return limit
}

// resolveMode maps the requested mode to quick or ai. Auto resolves to ai
// for question-shaped queries: an interrogative first word or more words
// than the threshold.
func (o *Orchestrator) resolveMode(requested, query string) string {
	switch strings.ToLower(requested) {
	case ModeQuick:
		return ModeQuick
	case ModeAI:
		return ModeAI
	}

	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return ModeQuick
	}
	first := strings.TrimRight(words[0], "?,.!")
	for _, prefix := range interrogativePrefixes {
		if first == prefix {
			return ModeAI
		}
	}
	if len(words) > o.cfg.AIWordThreshold {
		return ModeAI
	}
	return ModeQuick
}

// resolveCategory picks the category: an explicit known id wins, then the
// optimizer's detection at sufficient confidence, then keyword detection.
func (o *Orchestrator) resolveCategory(explicit string, optimized *rewrite.Result, query string) string {
	if explicit != "" && o.router.Known(explicit) {
		return explicit
	}
	if optimized != nil &&
		optimized.Confidence >= MinOptimizerConfidence &&
		o.router.Known(optimized.DetectedCategory) {
		return optimized.DetectedCategory
	}
	return o.router.Resolve(query)
}

// embedQuery encodes the search query, degrading to nil on failure: the
// cache is bypassed and the local vector leg is skipped.
func (o *Orchestrator) embedQuery(ctx context.Context, query string) []float32 {
	if o.encoder == nil {
		return nil
	}
	vec, err := o.encoder.EmbedText(ctx, query)
	if err != nil {
		o.logger.Warn().Err(err).Msg("query embedding failed, skipping cache and vector search")
		return nil
	}
	return vec
}

// lookupCache checks the semantic cache, recording hit/miss metrics.
func (o *Orchestrator) lookupCache(categoryID string, queryEmbedding []float32) ([]*domain.Paper, bool) {
	if o.cache == nil || len(queryEmbedding) == 0 {
		return nil, false
	}
	papers, ok := o.cache.Lookup(categoryID, queryEmbedding)
	if o.metrics != nil {
		if ok {
			o.metrics.CacheHits.Inc()
		} else {
			o.metrics.CacheMisses.Inc()
		}
	}
	return papers, ok
}

// indexFresh enqueues the not-yet-persisted papers for background
// indexing, stamping the resolved category on records that lack one.
func (o *Orchestrator) indexFresh(categoryID string, papers []*domain.Paper) {
	if o.indexer == nil {
		return
	}

	fresh := make([]*domain.Paper, 0, len(papers))
	for _, p := range papers {
		if p.Source == domain.SourceTypeLocal {
			continue
		}
		if p.Category == "" {
			p.Category = categoryID
		}
		fresh = append(fresh, p)
	}
	if len(fresh) > 0 {
		o.indexer.Enqueue(fresh)
	}
}

// finish stamps timing and records response metrics.
func (o *Orchestrator) finish(resp *Response, start time.Time) {
	took := time.Since(start)
	resp.TookMS = took.Milliseconds()
	if o.metrics != nil {
		o.metrics.SearchDuration.Observe(took.Seconds())
		o.metrics.SearchResults.Observe(float64(resp.Total))
	}
	searchLog := observability.WithSearchContext(o.logger, resp.Query, resp.Category, resp.Mode)
	searchLog.Info().
		Int("results", resp.Total).
		Bool("cached", resp.Cached).
		Int64("took_ms", resp.TookMS).
		Msg("search completed")
}

// firstN returns up to n papers.
func firstN(papers []*domain.Paper, n int) []*domain.Paper {
	if len(papers) <= n {
		return papers
	}
	return papers[:n]
}
