package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/reslab/paper-search/internal/domain"
	"github.com/reslab/paper-search/internal/embedding"
	"github.com/reslab/paper-search/internal/observability"
)

// Hybrid score composition.
const (
	// SemanticWeight weighs query-paper cosine similarity.
	SemanticWeight = 0.7
	// CitationWeight weighs the normalized citation count.
	CitationWeight = 0.3
	// CitationSaturation is the citation count at which the citation term
	// reaches its maximum.
	CitationSaturation = 10_000

	// defaultLazyEncodeBudget caps how many papers without an embedding
	// are encoded synchronously during one ranking pass.
	defaultLazyEncodeBudget = 64
	// defaultLazyTimeout caps the whole on-the-fly encode phase.
	defaultLazyTimeout = 2 * time.Second
	// lazyEncodeConcurrency is the number of concurrent lazy encodes.
	lazyEncodeConcurrency = 4
)

// Ranker orders papers by hybrid relevance.
type Ranker interface {
	Rank(ctx context.Context, queryEmbedding []float32, rawQuery string, papers []*domain.Paper, topK int) []*domain.Paper
}

// RankerConfig holds hybrid ranking settings.
type RankerConfig struct {
	// LazyEncodeBudget caps the number of on-the-fly embeddings per pass.
	LazyEncodeBudget int
	// LazyTimeout bounds the on-the-fly encode phase.
	LazyTimeout time.Duration
}

// applyDefaults sets default values for unset configuration fields.
func (c *RankerConfig) applyDefaults() {
	if c.LazyEncodeBudget == 0 {
		c.LazyEncodeBudget = defaultLazyEncodeBudget
	}
	if c.LazyTimeout == 0 {
		c.LazyTimeout = defaultLazyTimeout
	}
}

// Compile-time check that *HybridRanker implements Ranker.
var _ Ranker = (*HybridRanker)(nil)

// HybridRanker scores papers by a weighted blend of semantic similarity
// and citation impact, with a lexical substring flag carried alongside.
type HybridRanker struct {
	cfg     RankerConfig
	encoder embedding.Encoder
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewHybridRanker creates a hybrid ranker. The encoder fills in embeddings
// for papers that arrived without one, within a bounded budget.
func NewHybridRanker(cfg RankerConfig, encoder embedding.Encoder, metrics *observability.Metrics, logger zerolog.Logger) *HybridRanker {
	cfg.applyDefaults()
	return &HybridRanker{
		cfg:     cfg,
		encoder: encoder,
		metrics: metrics,
		logger:  logger.With().Str("component", "ranker").Logger(),
	}
}

// Rank scores and orders papers, returning the top topK. The input slice
// is not reordered; scores are written onto the papers. Ties keep the
// input order, so equal-scoring trusted results stay ahead.
func (r *HybridRanker) Rank(ctx context.Context, queryEmbedding []float32, rawQuery string, papers []*domain.Paper, topK int) []*domain.Paper {
	if len(papers) == 0 {
		return []*domain.Paper{}
	}
	if topK <= 0 || topK > len(papers) {
		topK = len(papers)
	}

	r.fillMissingEmbeddings(ctx, papers)

	loweredQuery := strings.ToLower(rawQuery)
	for _, p := range papers {
		p.Scores.Semantic = embedding.CosineSimilarity(queryEmbedding, p.Embedding)
		p.Scores.Lexical = lexicalScore(loweredQuery, p)

		citation := float64(p.CitationCount) / CitationSaturation
		if citation > 1 {
			citation = 1
		}
		p.Scores.Hybrid = SemanticWeight*p.Scores.Semantic + CitationWeight*citation
	}

	ranked := make([]*domain.Paper, len(papers))
	copy(ranked, papers)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Scores.Hybrid > ranked[j].Scores.Hybrid
	})

	return ranked[:topK]
}

// fillMissingEmbeddings encodes papers that arrived without a vector,
// bounded by the encode budget and the lazy timeout. Encode failures
// leave the paper with a zero semantic score.
func (r *HybridRanker) fillMissingEmbeddings(ctx context.Context, papers []*domain.Paper) {
	if r.encoder == nil || ctx.Err() != nil {
		return
	}

	var missing []*domain.Paper
	for _, p := range papers {
		if len(p.Embedding) == 0 {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return
	}
	if len(missing) > r.cfg.LazyEncodeBudget {
		missing = missing[:r.cfg.LazyEncodeBudget]
	}

	encodeCtx, cancel := context.WithTimeout(ctx, r.cfg.LazyTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(encodeCtx)
	g.SetLimit(lazyEncodeConcurrency)
	for _, p := range missing {
		g.Go(func() error {
			vec, err := r.encoder.EmbedText(gctx, p.EmbeddingText())
			if err != nil {
				// Zero semantic score is an acceptable degradation.
				return nil
			}
			p.Embedding = vec
			if r.metrics != nil {
				r.metrics.EmbeddingsComputed.WithLabelValues("lazy").Inc()
			}
			return nil
		})
	}
	// Workers never return errors; Wait only synchronizes completion.
	_ = g.Wait()
}

// lexicalScore is 1 when the paper's title or abstract contains the raw
// query as a substring, 0 otherwise.
func lexicalScore(loweredQuery string, p *domain.Paper) float64 {
	if loweredQuery == "" {
		return 0
	}
	if strings.Contains(strings.ToLower(p.Title), loweredQuery) {
		return 1
	}
	if strings.Contains(strings.ToLower(p.Abstract), loweredQuery) {
		return 1
	}
	return 0
}
