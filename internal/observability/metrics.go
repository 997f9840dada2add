package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the paper search engine.
// Metrics are organized by subsystem: searches, cache, providers, dedup,
// ranking, and the background indexer. All counters and histograms are
// registered via promauto.
type Metrics struct {
	// SearchesTotal counts search requests, labeled by resolved mode.
	SearchesTotal *prometheus.CounterVec

	// SearchDuration observes end-to-end search duration in seconds.
	SearchDuration prometheus.Histogram

	// SearchResults observes the number of papers returned per search.
	SearchResults prometheus.Histogram

	// LocalHits counts searches satisfied entirely from the local store.
	LocalHits prometheus.Counter

	// CacheHits counts semantic cache hits.
	CacheHits prometheus.Counter

	// CacheMisses counts semantic cache misses.
	CacheMisses prometheus.Counter

	// ProviderCalls counts external provider calls, labeled by source.
	ProviderCalls *prometheus.CounterVec

	// ProviderFailures counts failed provider calls, labeled by source and
	// error kind (timeout, error).
	ProviderFailures *prometheus.CounterVec

	// ProviderDuration observes provider call duration in seconds, labeled by source.
	ProviderDuration *prometheus.HistogramVec

	// PapersMerged counts records collapsed away by deduplication.
	PapersMerged prometheus.Counter

	// PapersIndexed counts papers persisted by the background indexer.
	PapersIndexed prometheus.Counter

	// EmbeddingsComputed counts embeddings computed, labeled by path
	// (background, lazy).
	EmbeddingsComputed *prometheus.CounterVec

	// EmbeddingFailures counts per-paper embedding failures in the indexer.
	EmbeddingFailures prometheus.Counter

	// IndexerQueueDepth reports the current number of queued index batches.
	IndexerQueueDepth prometheus.Gauge

	// IndexerBatchesDropped counts batches rejected because the queue was full.
	IndexerBatchesDropped prometheus.Counter
}

// NewMetrics creates a new Metrics instance registered with the default
// Prometheus registry. The namespace prefixes all metric names.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith creates a Metrics instance registered with the given
// registerer. Tests use this with a fresh registry to avoid duplicate
// registration panics.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SearchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of search requests by resolved mode",
		}, []string{"mode"}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end search request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}),
		SearchResults: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of papers returned per search",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
		}),
		LocalHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "local_hits_total",
			Help:      "Searches satisfied from the local store without external calls",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Semantic cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Semantic cache misses",
		}),
		ProviderCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "External provider calls by source",
		}, []string{"source"}),
		ProviderFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failures_total",
			Help:      "Failed provider calls by source and error kind",
		}, []string{"source", "kind"}),
		ProviderDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_duration_seconds",
			Help:      "Provider call duration in seconds by source",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		PapersMerged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_merged_total",
			Help:      "Duplicate records collapsed by deduplication",
		}),
		PapersIndexed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_indexed_total",
			Help:      "Papers persisted by the background indexer",
		}),
		EmbeddingsComputed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embeddings_computed_total",
			Help:      "Embeddings computed by path (background, lazy)",
		}, []string{"path"}),
		EmbeddingFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_failures_total",
			Help:      "Per-paper embedding failures inside the background indexer",
		}),
		IndexerQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexer_queue_depth",
			Help:      "Current number of queued index batches",
		}),
		IndexerBatchesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexer_batches_dropped_total",
			Help:      "Index batches rejected because the queue was full",
		}),
	}
}
