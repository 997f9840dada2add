// Package pubmed provides a client for the NCBI PubMed E-utilities API.
//
// PubMed is a biomedical literature database maintained by NCBI. Searching
// is a two-step protocol: esearch.fcgi returns matching PMIDs, then
// efetch.fcgi returns the full article metadata.
//
// E-utilities documentation: https://www.ncbi.nlm.nih.gov/books/NBK25499/
package pubmed

import "encoding/xml"

// eSearchResult represents the response from the esearch.fcgi endpoint.
type eSearchResult struct {
	XMLName  xml.Name `xml:"eSearchResult"`
	Count    int      `xml:"Count"`
	RetMax   int      `xml:"RetMax"`
	RetStart int      `xml:"RetStart"`
	IDList   idList   `xml:"IdList"`
}

// idList contains the PMIDs returned by a search.
type idList struct {
	IDs []string `xml:"Id"`
}

// pubmedArticleSet represents the response from the efetch.fcgi endpoint.
type pubmedArticleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

// pubmedArticle represents a single article in the PubMed database.
type pubmedArticle struct {
	MedlineCitation medlineCitation `xml:"MedlineCitation"`
	PubmedData      pubmedData      `xml:"PubmedData"`
}

// medlineCitation contains the core bibliographic information.
type medlineCitation struct {
	PMID    pmid    `xml:"PMID"`
	Article article `xml:"Article"`
}

// pmid represents the PubMed identifier.
type pmid struct {
	Value string `xml:",chardata"`
}

// article contains the article metadata.
type article struct {
	Journal      journal       `xml:"Journal"`
	ArticleTitle string        `xml:"ArticleTitle"`
	ELocationID  []eLocationID `xml:"ELocationID,omitempty"`
	Abstract     *abstract     `xml:"Abstract,omitempty"`
	AuthorList   *authorList   `xml:"AuthorList,omitempty"`
	ArticleDate  []articleDate `xml:"ArticleDate,omitempty"`
}

// journal contains journal information.
type journal struct {
	JournalIssue    journalIssue `xml:"JournalIssue"`
	Title           string       `xml:"Title,omitempty"`
	ISOAbbreviation string       `xml:"ISOAbbreviation,omitempty"`
}

// journalIssue contains the issue-level publication date.
type journalIssue struct {
	PubDate pubDate `xml:"PubDate"`
}

// pubDate represents the publication date, which may take several formats.
type pubDate struct {
	Year        string `xml:"Year,omitempty"`
	Month       string `xml:"Month,omitempty"`
	Day         string `xml:"Day,omitempty"`
	MedlineDate string `xml:"MedlineDate,omitempty"`
}

// eLocationID represents an electronic location identifier (DOI or PII).
type eLocationID struct {
	EIdType string `xml:"EIdType,attr"`
	Valid   string `xml:"ValidYN,attr,omitempty"`
	Value   string `xml:",chardata"`
}

// abstract contains the article abstract, possibly in labeled sections.
type abstract struct {
	AbstractTexts []abstractText `xml:"AbstractText"`
}

// abstractText is one section of a structured abstract.
type abstractText struct {
	Label string `xml:"Label,attr,omitempty"`
	Value string `xml:",chardata"`
}

// authorList contains the list of authors.
type authorList struct {
	Authors []author `xml:"Author"`
}

// author represents a single author.
type author struct {
	ValidYN         string            `xml:"ValidYN,attr,omitempty"`
	LastName        string            `xml:"LastName,omitempty"`
	ForeName        string            `xml:"ForeName,omitempty"`
	CollectiveName  string            `xml:"CollectiveName,omitempty"`
	AffiliationInfo []affiliationInfo `xml:"AffiliationInfo,omitempty"`
}

// affiliationInfo contains author affiliation information.
type affiliationInfo struct {
	Affiliation string `xml:"Affiliation"`
}

// articleDate represents an article-level publication date.
type articleDate struct {
	DateType string `xml:"DateType,attr,omitempty"`
	Year     string `xml:"Year"`
	Month    string `xml:"Month,omitempty"`
	Day      string `xml:"Day,omitempty"`
}

// pubmedData contains additional PubMed-specific data.
type pubmedData struct {
	ArticleIdList articleIdList `xml:"ArticleIdList"`
}

// articleIdList contains the identifiers PubMed knows for an article.
type articleIdList struct {
	ArticleIds []articleID `xml:"ArticleId"`
}

// articleID represents one article identifier (pubmed, doi, pmc, ...).
type articleID struct {
	IdType string `xml:"IdType,attr"`
	Value  string `xml:",chardata"`
}
