// Package semanticscholar provides a client for the Semantic Scholar Graph API.
//
// API documentation: https://api.semanticscholar.org/api-docs/
package semanticscholar

// searchResponse represents the response from the paper search endpoint.
type searchResponse struct {
	// Total is the total number of papers matching the query.
	Total int `json:"total"`

	// Offset is the current offset in the result set.
	Offset int `json:"offset"`

	// Next is the offset for the next page; 0 means no more results.
	Next int `json:"next"`

	// Data contains the papers returned by the search.
	Data []paperResult `json:"data"`
}

// paperResult represents a single paper in the API response.
type paperResult struct {
	// PaperID is the Semantic Scholar unique identifier.
	PaperID string `json:"paperId"`

	Title    string `json:"title"`
	Abstract string `json:"abstract"`

	// Year is the publication year.
	Year int `json:"year"`

	// PublicationDate is the full date in YYYY-MM-DD format.
	PublicationDate string `json:"publicationDate"`

	// Venue is the publication venue (conference, journal name).
	Venue string `json:"venue"`

	// Journal contains journal-specific information when present.
	Journal *journal `json:"journal,omitempty"`

	Authors []author `json:"authors"`

	CitationCount int `json:"citationCount"`

	// OpenAccessPDF carries the open access PDF location if available.
	OpenAccessPDF *openAccessPDF `json:"openAccessPdf,omitempty"`

	// ExternalIDs contains external identifiers (DOI, ArXiv, ...).
	ExternalIDs *externalIDs `json:"externalIds,omitempty"`
}

// externalIDs contains external identifiers for a paper.
type externalIDs struct {
	DOI   string `json:"DOI,omitempty"`
	ArXiv string `json:"ArXiv,omitempty"`
}

// journal contains journal-specific information.
type journal struct {
	Name string `json:"name,omitempty"`
}

// author represents a paper author in the API response.
type author struct {
	AuthorID string `json:"authorId,omitempty"`
	Name     string `json:"name"`
}

// openAccessPDF holds an open access PDF location.
type openAccessPDF struct {
	URL    string `json:"url,omitempty"`
	Status string `json:"status,omitempty"`
}

// errorResponse represents an error response from the API.
type errorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}
