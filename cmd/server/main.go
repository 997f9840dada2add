// Package main provides the entry point for the paper search service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reslab/paper-search/internal/cache"
	"github.com/reslab/paper-search/internal/category"
	"github.com/reslab/paper-search/internal/config"
	"github.com/reslab/paper-search/internal/dedup"
	"github.com/reslab/paper-search/internal/domain"
	"github.com/reslab/paper-search/internal/embedding"
	"github.com/reslab/paper-search/internal/observability"
	"github.com/reslab/paper-search/internal/rewrite"
	"github.com/reslab/paper-search/internal/search"
	"github.com/reslab/paper-search/internal/server"
	"github.com/reslab/paper-search/internal/sources"
	"github.com/reslab/paper-search/internal/sources/arxiv"
	"github.com/reslab/paper-search/internal/sources/openalex"
	"github.com/reslab/paper-search/internal/sources/pubmed"
	"github.com/reslab/paper-search/internal/sources/semanticscholar"
	"github.com/reslab/paper-search/internal/store"
)

const metricsNamespace = "papersearch"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("paper-search service starting")

	metrics := observability.NewMetrics(metricsNamespace)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := store.NewDB(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	if cfg.Database.MigrationAutoRun {
		migrator, err := store.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	// Connect to the vector store.
	vectors, err := store.NewQdrantStore(store.VectorConfig{
		Address:        cfg.Qdrant.Address,
		CollectionName: cfg.Qdrant.CollectionName,
		VectorSize:     cfg.Qdrant.VectorSize,
	})
	if err != nil {
		return fmt.Errorf("connect to qdrant: %w", err)
	}
	defer func() {
		if closeErr := vectors.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close qdrant client")
		}
	}()
	if err := vectors.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure qdrant collection: %w", err)
	}
	logger.Info().
		Str("collection", cfg.Qdrant.CollectionName).
		Msg("vector store ready")

	repo := store.NewPgPaperRepository(db)
	localStore := store.NewLocalStore(repo, vectors, db, logger)

	encoder, err := embedding.NewEncoder(embedding.FactoryConfig{
		Provider:  cfg.Embedding.Provider,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   cfg.Embedding.Timeout,
		OpenAI: embedding.OpenAIConfig{
			APIKey:    cfg.Embedding.APIKey,
			Model:     cfg.Embedding.Model,
			BaseURL:   cfg.Embedding.BaseURL,
			Dimension: cfg.Embedding.Dimension,
		},
	})
	if err != nil {
		return fmt.Errorf("create encoder: %w", err)
	}

	registry := buildRegistry(cfg)
	router, err := buildRouter(cfg)
	if err != nil {
		return fmt.Errorf("build category router: %w", err)
	}

	semanticCache, err := cache.New(cache.Config{
		SimilarityThreshold: cfg.Cache.SimilarityThreshold,
		TTL:                 cfg.Cache.TTL,
		MaxEntries:          cfg.Cache.MaxEntries,
	})
	if err != nil {
		return fmt.Errorf("create semantic cache: %w", err)
	}

	merger := dedup.NewMerger(dedup.Config{
		TitleThreshold:        cfg.Dedup.TitleSimilarityThreshold,
		MaxPairwiseCandidates: cfg.Dedup.MaxPairwiseCandidates,
		TrustOrder:            trustOrder(cfg.Search.TrustOrder),
	})

	fetcher := search.NewCascadingFetcher(search.FetcherConfig{
		SourceTimeouts: sourceTimeouts(cfg),
	}, localStore, registry, router, merger, metrics, logger)

	ranker := search.NewHybridRanker(search.RankerConfig{
		LazyTimeout: cfg.Embedding.LazyTimeout,
	}, encoder, metrics, logger)

	indexer := search.NewBackgroundIndexer(search.IndexerConfig{
		Workers:        cfg.Indexer.Workers,
		QueueSize:      cfg.Indexer.QueueSize,
		EmbedBatchSize: cfg.Indexer.EmbedBatchSize,
	}, localStore, encoder, metrics, logger)

	var optimizer rewrite.Optimizer
	if cfg.Rewrite.Enabled {
		optimizer = rewrite.NewOpenAIOptimizer(rewrite.Config{
			APIKey:  cfg.Rewrite.APIKey,
			Model:   cfg.Rewrite.Model,
			BaseURL: cfg.Rewrite.BaseURL,
		}, cfg.Rewrite.Timeout, 2)
		logger.Info().Str("model", cfg.Rewrite.Model).Msg("query optimizer enabled")
	}

	orchestrator := search.NewOrchestrator(search.OrchestratorConfig{
		DefaultLimit:    cfg.Search.DefaultLimit,
		MaxLimit:        cfg.Search.MaxLimit,
		MinResults:      cfg.Search.DefaultMinResults,
		RequestTimeout:  cfg.Search.RequestTimeout,
		AIWordThreshold: cfg.Search.AIWordThreshold,
	}, router, optimizer, encoder, semanticCache, fetcher, ranker, indexer, metrics, logger)

	httpSrv := server.NewServer(server.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, orchestrator, localStore, router, logger)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	errCh := make(chan error, 2)

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			logger.Info().Str("address", metricsServer.Addr).Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().
		Str("http_address", cfg.Server.HTTPAddress()).
		Int("sources_enabled", registry.EnabledCount())
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("paper-search service is ready")

	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down paper-search service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	// Drain the background indexer so in-flight papers get persisted.
	if err := indexer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("indexer did not drain before deadline")
	}

	logger.Info().Msg("paper-search service shutdown complete")
	return nil
}

// buildRegistry creates provider clients from configuration and registers
// them under the names the category routing table uses.
func buildRegistry(cfg *config.Config) *sources.Registry {
	registry := sources.NewRegistry()

	registry.Register(semanticscholar.New(semanticscholar.Config{
		BaseURL:    cfg.Sources.SemanticScholar.BaseURL,
		APIKey:     cfg.Sources.SemanticScholar.APIKey,
		Timeout:    cfg.Sources.SemanticScholar.Timeout,
		RateLimit:  cfg.Sources.SemanticScholar.RateLimit,
		MaxResults: cfg.Sources.SemanticScholar.MaxResults,
		Enabled:    cfg.Sources.SemanticScholar.Enabled,
	}))
	registry.Register(arxiv.New(arxiv.Config{
		BaseURL:    cfg.Sources.ArXiv.BaseURL,
		Timeout:    cfg.Sources.ArXiv.Timeout,
		RateLimit:  cfg.Sources.ArXiv.RateLimit,
		MaxResults: cfg.Sources.ArXiv.MaxResults,
		Enabled:    cfg.Sources.ArXiv.Enabled,
	}))
	registry.Register(pubmed.New(pubmed.Config{
		BaseURL:    cfg.Sources.PubMed.BaseURL,
		APIKey:     cfg.Sources.PubMed.APIKey,
		Timeout:    cfg.Sources.PubMed.Timeout,
		RateLimit:  cfg.Sources.PubMed.RateLimit,
		MaxResults: cfg.Sources.PubMed.MaxResults,
		Enabled:    cfg.Sources.PubMed.Enabled,
	}))
	registry.Register(openalex.New(openalex.Config{
		BaseURL:    cfg.Sources.OpenAlex.BaseURL,
		Timeout:    cfg.Sources.OpenAlex.Timeout,
		RateLimit:  cfg.Sources.OpenAlex.RateLimit,
		MaxResults: cfg.Sources.OpenAlex.MaxResults,
		Enabled:    cfg.Sources.OpenAlex.Enabled,
	}))

	return registry
}

// buildRouter converts the configured category table into a router.
func buildRouter(cfg *config.Config) (*category.Router, error) {
	profiles := make([]category.Profile, 0, len(cfg.Categories))
	for _, c := range cfg.Categories {
		profiles = append(profiles, category.Profile{
			ID:              c.ID,
			DisplayName:     c.DisplayName,
			SourceHierarchy: c.Sources,
			Keywords:        c.Keywords,
		})
	}
	return category.NewRouter(profiles, "general")
}

// sourceTimeouts maps each provider to its configured per-call timeout.
func sourceTimeouts(cfg *config.Config) map[string]time.Duration {
	return map[string]time.Duration{
		string(domain.SourceTypeSemanticScholar): cfg.Sources.SemanticScholar.Timeout,
		string(domain.SourceTypeArXiv):           cfg.Sources.ArXiv.Timeout,
		string(domain.SourceTypePubMed):          cfg.Sources.PubMed.Timeout,
		string(domain.SourceTypeOpenAlex):        cfg.Sources.OpenAlex.Timeout,
	}
}

// trustOrder converts configured source names into a trust ranking,
// falling back to the built-in order when the list is empty.
func trustOrder(names []string) domain.TrustOrder {
	if len(names) == 0 {
		return nil
	}
	order := make(domain.TrustOrder, 0, len(names))
	for _, n := range names {
		order = append(order, domain.SourceType(n))
	}
	return order
}
