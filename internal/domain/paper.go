// Package domain provides the canonical paper model and error taxonomy for
// the paper search engine.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceType identifies the external provider that supplied a paper record.
type SourceType string

const (
	SourceTypeSemanticScholar SourceType = "semantic_scholar"
	SourceTypeArXiv           SourceType = "arxiv"
	SourceTypeOpenAlex        SourceType = "openalex"
	SourceTypePubMed          SourceType = "pubmed"
	SourceTypeLocal           SourceType = "local"
)

// IdentifierType represents the type of academic paper identifier.
type IdentifierType string

const (
	IdentifierTypeDOI               IdentifierType = "doi"
	IdentifierTypeArXivID           IdentifierType = "arxiv_id"
	IdentifierTypeSemanticScholarID IdentifierType = "semantic_scholar_id"
	IdentifierTypeOpenAlexID        IdentifierType = "openalex_id"
)

// Author represents a paper author.
type Author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
}

// Scores holds the transient ranking scores for a paper. They are populated
// during a ranking pass and never persisted.
type Scores struct {
	Semantic float64 `json:"semantic_score"`
	Lexical  float64 `json:"lexical_score"`
	Hybrid   float64 `json:"hybrid_score"`
}

// Paper is the canonical, provider-agnostic paper record.
type Paper struct {
	// ID is the local surrogate key, assigned on first persistence.
	// It is uuid.Nil for not-yet-saved externally fetched results.
	ID uuid.UUID `json:"id,omitempty"`

	// External identifiers. Each is optional and globally unique when
	// present; they are the primary deduplication keys.
	DOI               string `json:"doi,omitempty"`
	ArXivID           string `json:"arxiv_id,omitempty"`
	SemanticScholarID string `json:"semantic_scholar_id,omitempty"`
	OpenAlexID        string `json:"openalex_id,omitempty"`

	Title           string     `json:"title"`
	Abstract        string     `json:"abstract,omitempty"`
	Authors         []Author   `json:"authors,omitempty"`
	PublicationDate *time.Time `json:"publication_date,omitempty"`
	Venue           string     `json:"venue,omitempty"`
	CitationCount   int        `json:"citation_count"`
	PDFURL          string     `json:"pdf_url,omitempty"`
	Category        string     `json:"category,omitempty"`
	Source          SourceType `json:"source"`

	// Embedding is nil until computed by the background indexer. During a
	// hybrid local search it may be populated transiently from the vector
	// store so the ranker can reuse it.
	Embedding []float32 `json:"-"`

	Scores Scores `json:"scores"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// HasIdentifier returns true if the paper carries at least one external
// identifier.
func (p *Paper) HasIdentifier() bool {
	return p.DOI != "" || p.ArXivID != "" || p.SemanticScholarID != "" || p.OpenAlexID != ""
}

// Identifiers returns the paper's non-empty identifiers keyed by type.
// DOIs are normalized so identifier comparison is case-insensitive.
func (p *Paper) Identifiers() map[IdentifierType]string {
	ids := make(map[IdentifierType]string, 4)
	if p.DOI != "" {
		ids[IdentifierTypeDOI] = NormalizeDOI(p.DOI)
	}
	if p.ArXivID != "" {
		ids[IdentifierTypeArXivID] = p.ArXivID
	}
	if p.SemanticScholarID != "" {
		ids[IdentifierTypeSemanticScholarID] = p.SemanticScholarID
	}
	if p.OpenAlexID != "" {
		ids[IdentifierTypeOpenAlexID] = p.OpenAlexID
	}
	return ids
}

// NormalizeDOI strips resolver prefixes and lowercases a DOI, matching how
// registrars treat DOIs.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	doi = strings.TrimPrefix(doi, "https://doi.org/")
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	return strings.ToLower(doi)
}

// EmbeddingText returns the text used to embed a paper: the title and
// abstract joined by a newline.
func (p *Paper) EmbeddingText() string {
	if p.Abstract == "" {
		return p.Title
	}
	return p.Title + "\n" + p.Abstract
}

// TrustOrder is an ordered list of source types, most trusted first. It is
// used to resolve field conflicts when duplicate records are merged.
type TrustOrder []SourceType

// DefaultTrustOrder is the built-in provider trust ranking.
var DefaultTrustOrder = TrustOrder{
	SourceTypeSemanticScholar,
	SourceTypePubMed,
	SourceTypeArXiv,
	SourceTypeOpenAlex,
}

// Rank returns the trust rank of a source: lower is more trusted. Sources
// not present in the order rank below every listed source. Local records
// always rank most trusted so persisted data wins over fresh fetches.
func (t TrustOrder) Rank(s SourceType) int {
	if s == SourceTypeLocal {
		return -1
	}
	for i, st := range t {
		if st == s {
			return i
		}
	}
	return len(t)
}
