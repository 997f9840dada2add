package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reslab/paper-search/internal/domain"
	"github.com/reslab/paper-search/internal/sources"
)

const atomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <opensearch:totalResults>2</opensearch:totalResults>
  <entry>
    <id>http://arxiv.org/abs/2301.12345v2</id>
    <title>Attention Is Not All You
      Need</title>
    <summary>  We revisit the role of attention
      in transformer architectures.  </summary>
    <published>2023-01-15T18:30:00Z</published>
    <author><name>Ada Lovelace</name></author>
    <author><name>Alan Turing</name></author>
    <link href="http://arxiv.org/abs/2301.12345v2" rel="alternate" type="text/html"/>
    <link href="http://arxiv.org/pdf/2301.12345v2" rel="related" type="application/pdf" title="pdf"/>
    <arxiv:doi>10.1000/TEST.DOI</arxiv:doi>
    <arxiv:journal_ref>NeurIPS 2023</arxiv:journal_ref>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/hep-th/9901001v1</id>
    <title>Old Style Identifier</title>
    <summary>A paper with a pre-2007 identifier.</summary>
    <published>1999-01-04T00:00:00Z</published>
    <author><name>Emmy Noether</name></author>
  </entry>
</feed>`

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	httpClient := sources.NewHTTPClient(sources.HTTPClientConfig{
		RateLimit: 100,
		BurstSize: 50,
	})
	return NewWithHTTPClient(Config{BaseURL: serverURL, Enabled: true}, httpClient)
}

func TestNew(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		client := New(Config{Enabled: true})

		require.NotNil(t, client)
		assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
		assert.Equal(t, DefaultRateLimit, client.config.RateLimit)
		assert.Equal(t, DefaultMaxResults, client.config.MaxResults)
		assert.Equal(t, domain.SourceTypeArXiv, client.SourceType())
		assert.Equal(t, "arXiv", client.Name())
		assert.True(t, client.IsEnabled())
	})
}

func TestClient_Search(t *testing.T) {
	t.Run("parses the Atom feed into papers", func(t *testing.T) {
		var receivedQuery string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			receivedQuery = r.URL.Query().Get("search_query")
			assert.Equal(t, "/query", r.URL.Path)
			w.Header().Set("Content-Type", "application/atom+xml")
			w.Write([]byte(atomFeed))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)
		papers, err := client.Search(context.Background(), "attention transformers", 10)
		require.NoError(t, err)
		require.Len(t, papers, 2)

		assert.Equal(t, "all:attention transformers", receivedQuery)

		first := papers[0]
		assert.Equal(t, "2301.12345", first.ArXivID)
		assert.Equal(t, "10.1000/test.doi", first.DOI)
		assert.Equal(t, "Attention Is Not All You Need", first.Title)
		assert.Equal(t, "We revisit the role of attention in transformer architectures.", first.Abstract)
		assert.Equal(t, "NeurIPS 2023", first.Venue)
		assert.Equal(t, "http://arxiv.org/pdf/2301.12345v2", first.PDFURL)
		assert.Equal(t, domain.SourceTypeArXiv, first.Source)
		require.NotNil(t, first.PublicationDate)
		assert.Equal(t, 2023, first.PublicationDate.Year())
		require.Len(t, first.Authors, 2)
		assert.Equal(t, "Ada Lovelace", first.Authors[0].Name)

		second := papers[1]
		assert.Equal(t, "hep-th/9901001", second.ArXivID)
		assert.Equal(t, "http://arxiv.org/pdf/hep-th/9901001", second.PDFURL)
	})

	t.Run("empty feed is not an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"></feed>`))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)
		papers, err := client.Search(context.Background(), "no such thing", 10)
		require.NoError(t, err)
		assert.Empty(t, papers)
	})

	t.Run("non-200 yields a provider error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("malformed query"))
		}))
		defer server.Close()

		client := newTestClient(t, server.URL)
		_, err := client.Search(context.Background(), "bad((query", 10)
		require.Error(t, err)

		var provErr *domain.ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, http.StatusBadRequest, provErr.StatusCode)
	})
}

func TestExtractArXivID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "modern id with version",
			url:  "http://arxiv.org/abs/2301.12345v1",
			want: "2301.12345",
		},
		{
			name: "modern id without version",
			url:  "https://arxiv.org/abs/2301.12345",
			want: "2301.12345",
		},
		{
			name: "legacy id",
			url:  "http://arxiv.org/abs/hep-th/9901001v1",
			want: "hep-th/9901001",
		},
		{
			name: "not an arxiv url",
			url:  "https://example.com/paper/123",
			want: "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, extractArXivID(tt.url))
		})
	}
}
