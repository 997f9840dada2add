// Package openalex provides a client for the OpenAlex works API.
//
// OpenAlex is a free, open catalog of scholarly papers, authors, venues,
// and institutions.
//
// API documentation: https://docs.openalex.org/
package openalex

// searchResponse represents the top-level response from the works endpoint.
type searchResponse struct {
	Meta    meta   `json:"meta"`
	Results []work `json:"results"`
}

// meta contains result metadata including pagination info.
type meta struct {
	Count   int `json:"count"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// work represents an academic work (paper) in OpenAlex.
type work struct {
	ID              string       `json:"id"`
	DOI             string       `json:"doi"`
	Title           string       `json:"title"`
	DisplayName     string       `json:"display_name"`
	PublicationDate string       `json:"publication_date"`
	CitedByCount    int          `json:"cited_by_count"`
	OpenAccess      *openAccess  `json:"open_access"`
	Authorships     []authorship `json:"authorships"`
	PrimaryLocation *location    `json:"primary_location"`
	IDs             workIDs      `json:"ids"`

	// Abstracts arrive as an inverted index and are reconstructed.
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}

// openAccess contains open access information for a work.
type openAccess struct {
	IsOA  bool   `json:"is_oa"`
	OAURL string `json:"oa_url"`
}

// authorship represents an author's contribution to a work.
type authorship struct {
	Author       authorInfo    `json:"author"`
	Institutions []institution `json:"institutions"`
}

// authorInfo contains basic author information.
type authorInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// institution represents an academic institution.
type institution struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// location represents where a work is available.
type location struct {
	Source *venueSource `json:"source"`
	PDFURL string       `json:"pdf_url"`
}

// venueSource represents a publication venue (journal, repository).
type venueSource struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// workIDs contains the identifiers OpenAlex knows for a work.
type workIDs struct {
	OpenAlex string `json:"openalex"`
	DOI      string `json:"doi"`
}
