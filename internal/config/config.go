// Package config provides configuration management for the paper search engine.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
)

// Config holds all configuration for the paper search engine.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Qdrant contains vector store settings.
	Qdrant QdrantConfig `mapstructure:"qdrant"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Embedding contains encoder settings.
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	// Rewrite contains the AI-mode query optimizer settings.
	Rewrite RewriteConfig `mapstructure:"rewrite"`
	// Sources contains per-provider API configurations.
	Sources SourcesConfig `mapstructure:"sources"`
	// Cache contains semantic cache settings.
	Cache CacheConfig `mapstructure:"cache"`
	// Dedup contains deduplication settings.
	Dedup DedupConfig `mapstructure:"dedup"`
	// Search contains orchestrator and cascade settings.
	Search SearchConfig `mapstructure:"search"`
	// Indexer contains background indexer settings.
	Indexer IndexerConfig `mapstructure:"indexer"`
	// Categories is the static category-to-source routing table.
	Categories []CategoryConfig `mapstructure:"categories"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading the request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (set via environment variable).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool.
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open.
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum idle time before a connection closes.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files.
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup.
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Address is the Qdrant gRPC address (host:port).
	Address string `mapstructure:"address"`
	// CollectionName is the collection holding paper embeddings.
	CollectionName string `mapstructure:"collection_name"`
	// VectorSize is the embedding dimension; must match the encoder.
	VectorSize uint64 `mapstructure:"vector_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// EmbeddingConfig holds encoder configuration.
type EmbeddingConfig struct {
	// Provider is the encoder provider ("openai" or "local").
	Provider string `mapstructure:"provider"`
	// APIKey is the provider API key (loaded from PAPERSEARCH_EMBEDDING_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the embeddings API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Model is the embedding model name.
	Model string `mapstructure:"model"`
	// Dimension is the embedding vector dimension.
	Dimension int `mapstructure:"dimension"`
	// Timeout is the timeout for a single embedding API call.
	Timeout time.Duration `mapstructure:"timeout"`
	// LazyTimeout caps the synchronous on-the-fly encode used during
	// ranking so a slow encode cannot stall the ranking step.
	LazyTimeout time.Duration `mapstructure:"lazy_timeout"`
}

// RewriteConfig holds the AI-mode query optimizer settings.
type RewriteConfig struct {
	// Enabled controls whether AI mode invokes the optimizer at all.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the provider API key (loaded from PAPERSEARCH_REWRITE_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the chat completions API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Model is the chat model used for query optimization.
	Model string `mapstructure:"model"`
	// Timeout is the timeout for the optimize call.
	Timeout time.Duration `mapstructure:"timeout"`
}

// SourcesConfig holds configuration for all provider APIs.
type SourcesConfig struct {
	// SemanticScholar contains Semantic Scholar API settings.
	SemanticScholar SourceConfig `mapstructure:"semantic_scholar"`
	// OpenAlex contains OpenAlex API settings.
	OpenAlex SourceConfig `mapstructure:"openalex"`
	// ArXiv contains arXiv API settings.
	ArXiv SourceConfig `mapstructure:"arxiv"`
	// PubMed contains PubMed API settings.
	PubMed SourceConfig `mapstructure:"pubmed"`
}

// SourceConfig holds configuration for a single provider API.
type SourceConfig struct {
	// Enabled controls whether this source is used.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the API key, loaded from an environment variable
	// (e.g. PAPERSEARCH_SOURCES_SEMANTIC_SCHOLAR_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the fixed per-call timeout for this source.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxResults caps the results requested per call.
	MaxResults int `mapstructure:"max_results"`
}

// CacheConfig holds semantic cache settings.
type CacheConfig struct {
	// SimilarityThreshold is the minimum cosine similarity for a cache hit.
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	// TTL is how long an entry stays valid.
	TTL time.Duration `mapstructure:"ttl"`
	// MaxEntries bounds the cache size (LRU eviction beyond TTL expiry).
	MaxEntries int `mapstructure:"max_entries"`
}

// DedupConfig holds deduplication settings.
type DedupConfig struct {
	// TitleSimilarityThreshold is the minimum normalized-title similarity
	// ratio at which two identifier-less papers merge.
	TitleSimilarityThreshold float64 `mapstructure:"title_similarity_threshold"`
	// MaxPairwiseCandidates caps the pass-2 pairwise comparison set; the
	// remainder beyond the cap skips title matching.
	MaxPairwiseCandidates int `mapstructure:"max_pairwise_candidates"`
}

// SearchConfig holds orchestrator and cascade settings.
type SearchConfig struct {
	// DefaultLimit is the result count returned when the caller omits one.
	DefaultLimit int `mapstructure:"default_limit"`
	// MaxLimit caps the caller-requested result count.
	MaxLimit int `mapstructure:"max_limit"`
	// DefaultMinResults is the cascade sufficiency threshold.
	DefaultMinResults int `mapstructure:"default_min_results"`
	// RequestTimeout bounds the whole search request, including a worst
	// case where every provider times out sequentially.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// AIWordThreshold is the word count above which auto mode becomes AI mode.
	AIWordThreshold int `mapstructure:"ai_word_threshold"`
	// TrustOrder lists source names from most to least trusted.
	TrustOrder []string `mapstructure:"trust_order"`
}

// IndexerConfig holds background indexer settings.
type IndexerConfig struct {
	// Workers is the number of indexing workers.
	Workers int `mapstructure:"workers"`
	// QueueSize bounds the pending batch queue; enqueue on a full queue
	// rejects the new batch rather than blocking the request path.
	QueueSize int `mapstructure:"queue_size"`
	// EmbedBatchSize is how many papers are embedded per encoder call batch.
	EmbedBatchSize int `mapstructure:"embed_batch_size"`
}

// CategoryConfig declares one category profile. Declaration order matters:
// keyword-detection ties break toward the first declared profile.
type CategoryConfig struct {
	// ID is the category identifier (e.g. "ai_cs").
	ID string `mapstructure:"id"`
	// DisplayName is the human-readable category name.
	DisplayName string `mapstructure:"display_name"`
	// Sources is the ordered provider hierarchy: primary, backup, fallback.
	Sources []string `mapstructure:"sources"`
	// Keywords drive auto-detection by substring match.
	Keywords []string `mapstructure:"keywords"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PAPERSEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paper-search")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultCategories()
	}

	// Secrets use mapstructure:"-" and load exclusively from environment.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.Embedding.APIKey = os.Getenv("PAPERSEARCH_EMBEDDING_API_KEY")
	cfg.Rewrite.APIKey = os.Getenv("PAPERSEARCH_REWRITE_API_KEY")

	cfg.Sources.SemanticScholar.APIKey = os.Getenv("PAPERSEARCH_SOURCES_SEMANTIC_SCHOLAR_API_KEY")
	cfg.Sources.OpenAlex.APIKey = os.Getenv("PAPERSEARCH_SOURCES_OPENALEX_API_KEY")
	cfg.Sources.ArXiv.APIKey = os.Getenv("PAPERSEARCH_SOURCES_ARXIV_API_KEY")
	cfg.Sources.PubMed.APIKey = os.Getenv("PAPERSEARCH_SOURCES_PUBMED_API_KEY")
}

// DefaultCategories returns the built-in category routing table.
// Declaration order is significant for keyword-detection tie-breaking;
// the "general" profile must come last and acts as the zero-score fallback.
func DefaultCategories() []CategoryConfig {
	return []CategoryConfig{
		{
			ID:          "ai_cs",
			DisplayName: "AI & Computer Science",
			Sources:     []string{"semantic_scholar", "arxiv", "openalex"},
			Keywords: []string{
				"machine learning", "deep learning", "neural", "artificial intelligence",
				"algorithm", "computer", "software", "nlp", "natural language",
				"transformer", "reinforcement learning", "computer vision",
			},
		},
		{
			ID:          "medicine",
			DisplayName: "Medicine & Life Sciences",
			Sources:     []string{"pubmed", "semantic_scholar", "openalex"},
			Keywords: []string{
				"disease", "clinical", "patient", "drug", "cancer", "medicine",
				"medical", "health", "therapy", "treatment", "vaccine", "diagnosis",
				"gene", "protein", "cell",
			},
		},
		{
			ID:          "physics",
			DisplayName: "Physics & Mathematics",
			Sources:     []string{"arxiv", "semantic_scholar", "openalex"},
			Keywords: []string{
				"quantum", "particle", "relativity", "cosmology", "physics",
				"gravitational", "topology", "theorem", "manifold",
			},
		},
		{
			ID:          "general",
			DisplayName: "General",
			Sources:     []string{"semantic_scholar", "openalex", "arxiv"},
			Keywords:    nil,
		},
	}
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "papersearch")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "paper_search")
	// Default to "require" for production security. Use PAPERSEARCH_DATABASE_SSL_MODE=disable locally.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 4)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Qdrant defaults
	v.SetDefault("qdrant.address", "localhost:6334")
	v.SetDefault("qdrant.collection_name", "paper_embeddings")
	v.SetDefault("qdrant.vector_size", 384)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Embedding defaults
	v.SetDefault("embedding.provider", "local")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 384)
	v.SetDefault("embedding.timeout", "30s")
	v.SetDefault("embedding.lazy_timeout", "2s")

	// Rewrite defaults
	v.SetDefault("rewrite.enabled", false)
	v.SetDefault("rewrite.base_url", "https://api.openai.com/v1")
	v.SetDefault("rewrite.model", "gpt-4o-mini")
	v.SetDefault("rewrite.timeout", "10s")

	// Source defaults - Semantic Scholar
	v.SetDefault("sources.semantic_scholar.enabled", true)
	v.SetDefault("sources.semantic_scholar.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("sources.semantic_scholar.timeout", "10s")
	v.SetDefault("sources.semantic_scholar.rate_limit", 10.0)
	v.SetDefault("sources.semantic_scholar.max_results", 100)

	// Source defaults - OpenAlex
	v.SetDefault("sources.openalex.enabled", true)
	v.SetDefault("sources.openalex.base_url", "https://api.openalex.org")
	v.SetDefault("sources.openalex.timeout", "10s")
	v.SetDefault("sources.openalex.rate_limit", 10.0)
	v.SetDefault("sources.openalex.max_results", 100)

	// Source defaults - arXiv
	v.SetDefault("sources.arxiv.enabled", true)
	v.SetDefault("sources.arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("sources.arxiv.timeout", "10s")
	v.SetDefault("sources.arxiv.rate_limit", 3.0) // arXiv recommends max 3 req/sec
	v.SetDefault("sources.arxiv.max_results", 100)

	// Source defaults - PubMed
	v.SetDefault("sources.pubmed.enabled", true)
	v.SetDefault("sources.pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("sources.pubmed.timeout", "10s")
	v.SetDefault("sources.pubmed.rate_limit", 3.0) // NCBI recommends max 3 req/sec without API key
	v.SetDefault("sources.pubmed.max_results", 100)

	// Cache defaults
	v.SetDefault("cache.similarity_threshold", 0.88)
	v.SetDefault("cache.ttl", "15m")
	v.SetDefault("cache.max_entries", 512)

	// Dedup defaults
	v.SetDefault("dedup.title_similarity_threshold", 0.85)
	v.SetDefault("dedup.max_pairwise_candidates", 500)

	// Search defaults
	v.SetDefault("search.default_limit", 20)
	v.SetDefault("search.max_limit", 100)
	v.SetDefault("search.default_min_results", 10)
	v.SetDefault("search.request_timeout", "25s")
	v.SetDefault("search.ai_word_threshold", 8)
	v.SetDefault("search.trust_order", []string{
		"semantic_scholar", "pubmed", "arxiv", "openalex",
	})

	// Indexer defaults
	v.SetDefault("indexer.workers", 2)
	v.SetDefault("indexer.queue_size", 256)
	v.SetDefault("indexer.embed_batch_size", 50)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Qdrant.VectorSize == 0 {
		return fmt.Errorf("qdrant vector size must be > 0")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be > 0")
	}
	if uint64(c.Embedding.Dimension) != c.Qdrant.VectorSize {
		return fmt.Errorf("embedding dimension (%d) must match qdrant vector size (%d)",
			c.Embedding.Dimension, c.Qdrant.VectorSize)
	}
	switch strings.ToLower(c.Embedding.Provider) {
	case "local":
	case "openai":
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("embedding provider %q requires PAPERSEARCH_EMBEDDING_API_KEY to be set", c.Embedding.Provider)
		}
	default:
		return fmt.Errorf("unsupported embedding provider: %q (supported: openai, local)", c.Embedding.Provider)
	}

	if c.Rewrite.Enabled && c.Rewrite.APIKey == "" {
		return fmt.Errorf("rewrite is enabled but PAPERSEARCH_REWRITE_API_KEY is not set")
	}

	if c.Cache.SimilarityThreshold <= 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("cache similarity threshold must be in (0, 1]")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max_entries must be > 0")
	}
	if c.Dedup.TitleSimilarityThreshold <= 0 || c.Dedup.TitleSimilarityThreshold > 1 {
		return fmt.Errorf("dedup title similarity threshold must be in (0, 1]")
	}
	if c.Search.DefaultLimit <= 0 || c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search default_limit must be in [1, max_limit]")
	}
	if c.Indexer.Workers <= 0 {
		return fmt.Errorf("indexer workers must be > 0")
	}
	if c.Indexer.QueueSize <= 0 {
		return fmt.Errorf("indexer queue_size must be > 0")
	}
	if c.Indexer.EmbedBatchSize <= 0 {
		return fmt.Errorf("indexer embed_batch_size must be > 0")
	}

	if len(c.Categories) == 0 {
		return fmt.Errorf("at least one category profile is required")
	}
	seen := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.ID == "" {
			return fmt.Errorf("category id is required")
		}
		if seen[cat.ID] {
			return fmt.Errorf("duplicate category id: %s", cat.ID)
		}
		seen[cat.ID] = true
		if len(cat.Sources) == 0 {
			return fmt.Errorf("category %s must declare at least one source", cat.ID)
		}
	}
	if !seen["general"] {
		return fmt.Errorf("a \"general\" fallback category is required")
	}

	return nil
}
