package openalex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reslab/paper-search/internal/domain"
	"github.com/reslab/paper-search/internal/sources"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	httpClient := sources.NewHTTPClient(sources.HTTPClientConfig{
		RateLimit: 100,
		BurstSize: 50,
	})
	return NewWithHTTPClient(Config{BaseURL: serverURL, Email: "dev@example.org", Enabled: true}, httpClient)
}

func TestNew(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		client := New(Config{Enabled: true})

		require.NotNil(t, client)
		assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
		assert.Equal(t, DefaultMaxResults, client.config.MaxResults)
		assert.Equal(t, domain.SourceTypeOpenAlex, client.SourceType())
		assert.Equal(t, "OpenAlex", client.Name())
	})
}

func TestClient_Search(t *testing.T) {
	t.Run("converts works to papers", func(t *testing.T) {
		response := searchResponse{
			Meta: meta{Count: 1},
			Results: []work{
				{
					ID:              "https://openalex.org/W2741809807",
					DOI:             "https://doi.org/10.7717/PEERJ.4375",
					DisplayName:     "The state of OA",
					PublicationDate: "2018-02-13",
					CitedByCount:    1200,
					OpenAccess: &openAccess{
						IsOA:  true,
						OAURL: "https://peerj.com/articles/4375.pdf",
					},
					Authorships: []authorship{
						{
							Author: authorInfo{DisplayName: "Heather Piwowar"},
							Institutions: []institution{
								{DisplayName: "Impactstory"},
							},
						},
					},
					PrimaryLocation: &location{
						Source: &venueSource{DisplayName: "PeerJ"},
					},
					AbstractInvertedIndex: map[string][]int{
						"Despite": {0},
						"growing": {1},
						"interest": {2},
					},
				},
			},
		}

		var receivedMailto string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/works", r.URL.Path)
			receivedMailto = r.URL.Query().Get("mailto")
			json.NewEncoder(w).Encode(response)
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)
		papers, err := client.Search(context.Background(), "open access", 25)
		require.NoError(t, err)
		require.Len(t, papers, 1)

		assert.Equal(t, "dev@example.org", receivedMailto)

		p := papers[0]
		assert.Equal(t, "W2741809807", p.OpenAlexID)
		assert.Equal(t, "10.7717/peerj.4375", p.DOI)
		assert.Equal(t, "The state of OA", p.Title)
		assert.Equal(t, "Despite growing interest", p.Abstract)
		assert.Equal(t, "PeerJ", p.Venue)
		assert.Equal(t, 1200, p.CitationCount)
		assert.Equal(t, "https://peerj.com/articles/4375.pdf", p.PDFURL)
		assert.Equal(t, domain.SourceTypeOpenAlex, p.Source)
		require.NotNil(t, p.PublicationDate)
		assert.Equal(t, 2018, p.PublicationDate.Year())
		require.Len(t, p.Authors, 1)
		assert.Equal(t, "Heather Piwowar", p.Authors[0].Name)
		assert.Equal(t, "Impactstory", p.Authors[0].Affiliation)
	})

	t.Run("skips works without any identifier", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(searchResponse{
				Results: []work{{DisplayName: "Anonymous Work"}},
			})
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)
		papers, err := client.Search(context.Background(), "anything", 25)
		require.NoError(t, err)
		assert.Empty(t, papers)
	})

	t.Run("non-200 yields a provider error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		httpClient := sources.NewHTTPClient(sources.HTTPClientConfig{
			RateLimit:  100,
			BurstSize:  50,
			MaxRetries: 1,
			RetryDelay: 1,
		})
		client := NewWithHTTPClient(Config{BaseURL: server.URL, Enabled: true}, httpClient)

		_, err := client.Search(context.Background(), "anything", 25)
		require.Error(t, err)
	})

	t.Run("per_page is capped at the API limit", func(t *testing.T) {
		var receivedPerPage string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			receivedPerPage = r.URL.Query().Get("per_page")
			json.NewEncoder(w).Encode(searchResponse{})
		}))
		defer server.Close()

		httpClient := sources.NewHTTPClient(sources.HTTPClientConfig{RateLimit: 100, BurstSize: 50})
		client := NewWithHTTPClient(Config{BaseURL: server.URL, MaxResults: 1000, Enabled: true}, httpClient)

		_, err := client.Search(context.Background(), "anything", 500)
		require.NoError(t, err)
		assert.Equal(t, "200", receivedPerPage)
	})
}

func TestReconstructAbstract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		index map[string][]int
		want  string
	}{
		{
			name: "orders words by position",
			index: map[string][]int{
				"learning": {1},
				"deep":     {0},
				"works":    {2},
			},
			want: "deep learning works",
		},
		{
			name: "repeated words appear at each position",
			index: map[string][]int{
				"the": {0, 2},
				"cat": {1},
				"sat": {3},
			},
			want: "the cat the sat",
		},
		{
			name:  "empty index yields empty string",
			index: nil,
			want:  "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, reconstructAbstract(tt.index))
		})
	}
}
