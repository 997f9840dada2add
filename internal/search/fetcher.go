// Package search implements the search pipeline: cascading fetch over the
// local store and external providers, hybrid ranking, background indexing,
// and the orchestrator tying them together.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/reslab/paper-search/internal/category"
	"github.com/reslab/paper-search/internal/dedup"
	"github.com/reslab/paper-search/internal/domain"
	"github.com/reslab/paper-search/internal/observability"
	"github.com/reslab/paper-search/internal/sources"
	"github.com/reslab/paper-search/internal/store"
)

// DefaultSourceTimeout caps a single provider call when no per-source
// timeout is configured.
const DefaultSourceTimeout = 10 * time.Second

// FetchResult is the outcome of one cascading fetch.
type FetchResult struct {
	// Papers is the deduplicated accumulator across all consulted legs.
	Papers []*domain.Paper
	// SourcesTried lists the external sources actually called, in order.
	SourcesTried []string
	// APICalls is the number of external provider calls made.
	APICalls int
	// LocalHit is true when the local store alone satisfied the fetch.
	LocalHit bool
}

// Fetcher runs the cascading fetch.
type Fetcher interface {
	Fetch(ctx context.Context, query, categoryID string, queryEmbedding []float32, limit, minResults int) (FetchResult, error)
}

// FetcherConfig holds cascading fetch settings.
type FetcherConfig struct {
	// SourceTimeouts overrides the per-call timeout for named sources.
	SourceTimeouts map[string]time.Duration
	// DefaultTimeout is the per-call timeout for sources without an
	// override.
	DefaultTimeout time.Duration
}

// applyDefaults sets default values for unset configuration fields.
func (c *FetcherConfig) applyDefaults() {
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = DefaultSourceTimeout
	}
}

// Compile-time check that *CascadingFetcher implements Fetcher.
var _ Fetcher = (*CascadingFetcher)(nil)

// CascadingFetcher consults the local store first, then walks the
// category's source hierarchy until enough results accumulate. Provider
// failures and timeouts are logged and skipped; only a local store failure
// aborts the fetch.
type CascadingFetcher struct {
	cfg      FetcherConfig
	store    store.Store
	registry *sources.Registry
	router   *category.Router
	merger   *dedup.Merger
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// NewCascadingFetcher creates a cascading fetcher.
func NewCascadingFetcher(
	cfg FetcherConfig,
	st store.Store,
	registry *sources.Registry,
	router *category.Router,
	merger *dedup.Merger,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *CascadingFetcher {
	cfg.applyDefaults()
	return &CascadingFetcher{
		cfg:      cfg,
		store:    st,
		registry: registry,
		router:   router,
		merger:   merger,
		metrics:  metrics,
		logger:   logger.With().Str("component", "fetcher").Logger(),
	}
}

// Fetch runs the cascade. Local results seed the accumulator; external
// sources are consulted in the category's hierarchy order until the
// deduplicated accumulator reaches minResults or the hierarchy is
// exhausted. The accumulator is re-deduplicated after every source so the
// sufficiency check counts distinct papers.
func (f *CascadingFetcher) Fetch(ctx context.Context, query, categoryID string, queryEmbedding []float32, limit, minResults int) (FetchResult, error) {
	if limit <= 0 {
		return FetchResult{}, fmt.Errorf("fetch: limit must be positive")
	}
	if minResults <= 0 {
		minResults = limit
	}

	result := FetchResult{}

	local, err := f.store.HybridSearch(ctx, queryEmbedding, query, categoryID, limit)
	if err != nil {
		return FetchResult{}, err
	}
	result.Papers = local

	if len(result.Papers) >= minResults {
		result.LocalHit = true
		f.logger.Debug().
			Str("category", categoryID).
			Int("results", len(result.Papers)).
			Msg("local store satisfied the fetch")
		return result, nil
	}

	for _, name := range f.router.SourceOrder(categoryID) {
		client, ok := f.registry.Get(name)
		if !ok {
			continue
		}

		papers, err := f.callSource(ctx, client, query, limit)
		result.APICalls++
		result.SourcesTried = append(result.SourcesTried, name)
		if err != nil {
			kind := "error"
			if domain.IsProviderTimeout(err) {
				kind = "timeout"
			}
			if f.metrics != nil {
				f.metrics.ProviderFailures.WithLabelValues(name, kind).Inc()
			}
			srcLog := observability.WithSourceContext(f.logger, name)
			srcLog.Warn().
				Err(err).
				Str("kind", kind).
				Msg("provider call failed, continuing cascade")
			continue
		}

		before := len(result.Papers)
		result.Papers = f.merger.Merge(append(result.Papers, papers...))
		if f.metrics != nil {
			merged := before + len(papers) - len(result.Papers)
			if merged > 0 {
				f.metrics.PapersMerged.Add(float64(merged))
			}
		}

		if len(result.Papers) >= minResults {
			break
		}

		// The whole request deadline may have expired mid-cascade.
		if ctx.Err() != nil {
			break
		}
	}

	return result, nil
}

// callSource invokes one provider under its configured per-call timeout.
func (f *CascadingFetcher) callSource(ctx context.Context, client sources.SourceClient, query string, limit int) ([]*domain.Paper, error) {
	timeout := f.cfg.DefaultTimeout
	if t, ok := f.cfg.SourceTimeouts[client.Name()]; ok && t > 0 {
		timeout = t
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	papers, err := client.Search(callCtx, query, limit)
	if f.metrics != nil {
		f.metrics.ProviderCalls.WithLabelValues(client.Name()).Inc()
		f.metrics.ProviderDuration.WithLabelValues(client.Name()).Observe(time.Since(start).Seconds())
	}
	return papers, err
}
