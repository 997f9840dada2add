// Package cache implements a semantic result cache: entries are matched by
// query-embedding cosine similarity rather than exact string equality.
package cache

import (
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/reslab/paper-search/internal/domain"
	"github.com/reslab/paper-search/internal/embedding"
)

// Default cache parameters.
const (
	// DefaultSimilarityThreshold is the cosine similarity at or above
	// which a cached entry answers a lookup.
	DefaultSimilarityThreshold = 0.88

	// DefaultTTL is how long an entry stays valid.
	DefaultTTL = 15 * time.Minute

	// DefaultMaxEntries bounds the cache size. TTL alone does not bound
	// growth under high query diversity.
	DefaultMaxEntries = 512
)

// Config holds the cache configuration.
type Config struct {
	// SimilarityThreshold is the minimum cosine similarity for a hit.
	SimilarityThreshold float64

	// TTL is the entry lifetime.
	TTL time.Duration

	// MaxEntries is the LRU capacity bound.
	MaxEntries int
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = DefaultMaxEntries
	}
}

// entry is one cached result set keyed by its query embedding.
type entry struct {
	queryEmbedding []float32
	category       string
	results        []*domain.Paper
	createdAt      time.Time
}

// SemanticCache caches search results per category, looked up by cosine
// similarity of query embeddings. It is safe for concurrent use; two
// concurrent writers for semantically equal queries race and the last
// writer wins, which the overwrite semantics tolerate.
type SemanticCache struct {
	cfg     Config
	entries *lru.Cache[uint64, *entry]
	nextKey atomic.Uint64
	now     func() time.Time
}

// New creates a semantic cache with the given configuration.
func New(cfg Config) (*SemanticCache, error) {
	cfg.applyDefaults()

	entries, err := lru.New[uint64, *entry](cfg.MaxEntries)
	if err != nil {
		return nil, err
	}

	return &SemanticCache{
		cfg:     cfg,
		entries: entries,
		now:     time.Now,
	}, nil
}

// Lookup returns the result set of the most similar non-expired entry in
// the category, if its similarity meets the threshold. The second return
// reports whether a hit occurred.
func (c *SemanticCache) Lookup(category string, queryEmbedding []float32) ([]*domain.Paper, bool) {
	key, candidate, ok := c.bestMatch(category, queryEmbedding)
	if !ok {
		return nil, false
	}

	// Touch the winning entry so the LRU keeps hot queries resident.
	c.entries.Get(key)
	return candidate.results, true
}

// Store caches results for the query embedding. If a semantically matching
// entry already exists in the category it is overwritten rather than
// appended, keeping one entry per semantic bucket.
func (c *SemanticCache) Store(category string, queryEmbedding []float32, results []*domain.Paper) {
	e := &entry{
		queryEmbedding: queryEmbedding,
		category:       category,
		results:        results,
		createdAt:      c.now(),
	}

	if key, _, ok := c.bestMatch(category, queryEmbedding); ok {
		c.entries.Add(key, e)
		return
	}

	c.entries.Add(c.nextKey.Add(1), e)
}

// Len returns the number of resident entries, expired or not.
func (c *SemanticCache) Len() int {
	return c.entries.Len()
}

// Purge drops all entries.
func (c *SemanticCache) Purge() {
	c.entries.Purge()
}

// bestMatch scans the category's entries and returns the key and entry of
// the highest-similarity non-expired match at or above the threshold.
// Expired entries encountered during the scan are evicted.
func (c *SemanticCache) bestMatch(category string, queryEmbedding []float32) (uint64, *entry, bool) {
	now := c.now()

	var bestKey uint64
	var bestEntry *entry
	bestScore := -1.0

	for _, key := range c.entries.Keys() {
		e, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		if e.category != category {
			continue
		}
		if now.Sub(e.createdAt) > c.cfg.TTL {
			c.entries.Remove(key)
			continue
		}

		score := embedding.CosineSimilarity(queryEmbedding, e.queryEmbedding)
		if score > bestScore {
			bestKey = key
			bestEntry = e
			bestScore = score
		}
	}

	if bestEntry == nil || bestScore < c.cfg.SimilarityThreshold {
		return 0, nil, false
	}
	return bestKey, bestEntry, true
}
