package search

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/reslab/paper-search/internal/domain"
	"github.com/reslab/paper-search/internal/embedding"
	"github.com/reslab/paper-search/internal/observability"
	"github.com/reslab/paper-search/internal/store"
)

// Background indexer defaults.
const (
	// DefaultIndexerWorkers is the worker pool size.
	DefaultIndexerWorkers = 2
	// DefaultIndexerQueueSize bounds the pending batch queue.
	DefaultIndexerQueueSize = 256
	// DefaultEmbedBatchSize is how many papers are embedded per encoder call.
	DefaultEmbedBatchSize = 50

	// batchTimeout bounds the processing of one enqueued batch.
	batchTimeout = 60 * time.Second
)

// Indexer accepts papers for asynchronous persistence and embedding.
type Indexer interface {
	// Enqueue hands a batch to the worker pool without blocking. It
	// reports false when the queue is saturated and the batch was dropped.
	Enqueue(papers []*domain.Paper) bool
}

// IndexerConfig holds background indexer settings.
type IndexerConfig struct {
	// Workers is the worker pool size.
	Workers int
	// QueueSize bounds the pending batch queue.
	QueueSize int
	// EmbedBatchSize is how many papers are embedded per encoder call.
	EmbedBatchSize int
}

// applyDefaults sets default values for unset configuration fields.
func (c *IndexerConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = DefaultIndexerWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultIndexerQueueSize
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = DefaultEmbedBatchSize
	}
}

// Compile-time check that *BackgroundIndexer implements Indexer.
var _ Indexer = (*BackgroundIndexer)(nil)

// BackgroundIndexer persists externally fetched papers off the request
// path: a bounded queue feeds a fixed worker pool that upserts metadata,
// embeds papers in batches, and stores vectors in the index. A full queue
// rejects new batches rather than blocking the caller.
type BackgroundIndexer struct {
	cfg     IndexerConfig
	store   store.Store
	encoder embedding.Encoder
	metrics *observability.Metrics
	logger  zerolog.Logger

	queue chan []*domain.Paper
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewBackgroundIndexer creates the indexer and starts its worker pool.
func NewBackgroundIndexer(
	cfg IndexerConfig,
	st store.Store,
	encoder embedding.Encoder,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *BackgroundIndexer {
	cfg.applyDefaults()

	idx := &BackgroundIndexer{
		cfg:     cfg,
		store:   st,
		encoder: encoder,
		metrics: metrics,
		logger:  logger.With().Str("component", "indexer").Logger(),
		queue:   make(chan []*domain.Paper, cfg.QueueSize),
	}

	idx.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go idx.worker(i)
	}

	return idx
}

// Enqueue hands a batch to the worker pool. It never blocks: when the
// queue is full the batch is dropped and false is returned. Searches keep
// working either way; dropped papers are re-discovered on a later search.
func (i *BackgroundIndexer) Enqueue(papers []*domain.Paper) bool {
	if len(papers) == 0 {
		return true
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return false
	}

	select {
	case i.queue <- papers:
		if i.metrics != nil {
			i.metrics.IndexerQueueDepth.Set(float64(len(i.queue)))
		}
		return true
	default:
		if i.metrics != nil {
			i.metrics.IndexerBatchesDropped.Inc()
		}
		i.logger.Warn().
			Int("batch_size", len(papers)).
			Msg("indexer queue full, dropping batch")
		return false
	}
}

// Shutdown stops accepting new batches and waits for the workers to drain
// the queue, up to the context deadline.
func (i *BackgroundIndexer) Shutdown(ctx context.Context) error {
	i.mu.Lock()
	if !i.closed {
		i.closed = true
		close(i.queue)
	}
	i.mu.Unlock()

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// worker drains the queue until it is closed.
func (i *BackgroundIndexer) worker(id int) {
	defer i.wg.Done()

	for batch := range i.queue {
		if i.metrics != nil {
			i.metrics.IndexerQueueDepth.Set(float64(len(i.queue)))
		}

		ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
		i.processBatch(ctx, batch)
		cancel()
	}

	i.logger.Debug().Int("worker", id).Msg("indexer worker stopped")
}

// processBatch upserts each paper's metadata, then embeds the stored rows
// in batches and writes their vectors. A per-paper embedding failure
// leaves the metadata persisted; the vector is computed on a later pass.
func (i *BackgroundIndexer) processBatch(ctx context.Context, batch []*domain.Paper) {
	stored := make([]*domain.Paper, 0, len(batch))
	for _, paper := range batch {
		row, err := i.store.UpsertByIdentifier(ctx, paper)
		if err != nil {
			i.logger.Warn().
				Err(err).
				Str("title", paper.Title).
				Msg("failed to persist paper")
			continue
		}
		// Keep the incoming category; stored rows may predate routing.
		if row.Category == "" {
			row.Category = paper.Category
		}
		stored = append(stored, row)
		if i.metrics != nil {
			i.metrics.PapersIndexed.Inc()
		}
	}

	for start := 0; start < len(stored); start += i.cfg.EmbedBatchSize {
		end := start + i.cfg.EmbedBatchSize
		if end > len(stored) {
			end = len(stored)
		}
		i.embedAndStore(ctx, stored[start:end])
	}
}

// embedAndStore embeds one batch and writes each vector to the index.
func (i *BackgroundIndexer) embedAndStore(ctx context.Context, papers []*domain.Paper) {
	texts := make([]string, len(papers))
	for n, p := range papers {
		texts[n] = p.EmbeddingText()
	}

	vectors, err := i.encoder.EmbedBatch(ctx, texts)
	if err != nil || len(vectors) != len(papers) {
		if i.metrics != nil {
			i.metrics.EmbeddingFailures.Add(float64(len(papers)))
		}
		i.logger.Warn().
			Err(err).
			Int("papers", len(papers)).
			Msg("embedding batch failed, metadata stays persisted")
		return
	}

	for n, p := range papers {
		if err := i.store.UpdateEmbedding(ctx, p.ID, p.Category, vectors[n]); err != nil {
			if i.metrics != nil {
				i.metrics.EmbeddingFailures.Inc()
			}
			paperLog := observability.WithPaperContext(i.logger, p.ID.String(), p.Title)
			paperLog.Warn().
				Err(err).
				Msg("failed to store embedding")
			continue
		}
		if i.metrics != nil {
			i.metrics.EmbeddingsComputed.WithLabelValues("background").Inc()
		}
	}
}
