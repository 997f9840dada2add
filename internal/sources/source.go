// Package sources defines the provider abstraction for external
// academic-metadata services and the shared plumbing (HTTP client, rate
// limiting, registry) their clients are built on.
//
// Each provider (Semantic Scholar, arXiv, OpenAlex, PubMed) implements the
// SourceClient interface in its own subpackage, allowing the fetch cascade
// to walk a category's provider hierarchy with a unified API.
//
// Example usage:
//
//	client := arxiv.New(cfg, httpClient)
//	papers, err := client.Search(ctx, "CRISPR gene editing", 20)
package sources

import (
	"context"

	"github.com/reslab/paper-search/internal/domain"
)

// SourceClient is the contract every provider adapter implements.
//
// Implementations must:
//   - Respect context cancellation and deadlines
//   - Apply their own rate limiting internally
//   - Transform source-specific responses to domain.Paper
//   - Treat an empty result set as a valid response, never an error
type SourceClient interface {
	// Search queries the provider for papers matching the query,
	// returning at most limit results. An empty slice with a nil error
	// is a legitimate outcome.
	Search(ctx context.Context, query string, limit int) ([]*domain.Paper, error)

	// SourceType returns the type identifier for this provider.
	// Used for attribution, trust ranking, and registry keys.
	SourceType() domain.SourceType

	// Name returns a human-readable name for logging and metrics.
	Name() string

	// IsEnabled reports whether this provider is available for searches.
	// A provider may be disabled by configuration or a missing API key.
	IsEnabled() bool
}
