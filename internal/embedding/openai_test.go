package embedding

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEmbeddingsTestServer creates an httptest server backed by the given handler.
func newEmbeddingsTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// newOpenAITestEncoder creates an OpenAIEncoder pointed at the test server.
func newOpenAITestEncoder(t *testing.T, serverURL string, maxRetries int) *OpenAIEncoder {
	t.Helper()
	enc := NewOpenAIEncoder(OpenAIConfig{
		APIKey:    "test-api-key",
		Model:     "text-embedding-3-small",
		BaseURL:   serverURL,
		Dimension: 4,
	}, 10*time.Second, maxRetries)
	enc.retryDelay = time.Millisecond
	return enc
}

func TestOpenAIEncoder_EmbedBatch(t *testing.T) {
	t.Run("sends request and returns index-aligned vectors", func(t *testing.T) {
		var receivedReq embeddingsRequest
		var receivedAuthHeader string

		server := newEmbeddingsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			receivedAuthHeader = r.Header.Get("Authorization")

			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			defer r.Body.Close()
			require.NoError(t, json.Unmarshal(body, &receivedReq))

			// Return data out of order to verify index alignment.
			resp := embeddingsResponse{
				Model: "text-embedding-3-small",
				Data: []embeddingDatum{
					{Index: 1, Embedding: []float32{0, 1, 0, 0}},
					{Index: 0, Embedding: []float32{2, 0, 0, 0}},
				},
				Usage: embeddingsUsage{PromptTokens: 10, TotalTokens: 10},
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)
		})

		enc := newOpenAITestEncoder(t, server.URL, 0)
		vectors, err := enc.EmbedBatch(context.Background(), []string{"first", "second"})
		require.NoError(t, err)

		assert.Equal(t, "Bearer test-api-key", receivedAuthHeader)
		assert.Equal(t, "text-embedding-3-small", receivedReq.Model)
		assert.Equal(t, []string{"first", "second"}, receivedReq.Input)
		assert.Equal(t, 4, receivedReq.Dimensions)

		require.Len(t, vectors, 2)
		// Vectors come back normalized.
		assert.Equal(t, []float32{1, 0, 0, 0}, vectors[0])
		assert.Equal(t, []float32{0, 1, 0, 0}, vectors[1])
	})

	t.Run("retries transient errors then succeeds", func(t *testing.T) {
		var calls atomic.Int32

		server := newEmbeddingsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			resp := embeddingsResponse{
				Data: []embeddingDatum{{Index: 0, Embedding: []float32{1, 0, 0, 0}}},
			}
			json.NewEncoder(w).Encode(resp)
		})

		enc := newOpenAITestEncoder(t, server.URL, 2)
		vectors, err := enc.EmbedBatch(context.Background(), []string{"retry me"})
		require.NoError(t, err)
		require.Len(t, vectors, 1)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32

		server := newEmbeddingsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(openAIErrorResponse{
				Error: openAIErrorDetail{Message: "invalid api key", Type: "invalid_request_error"},
			})
		})

		enc := newOpenAITestEncoder(t, server.URL, 3)
		_, err := enc.EmbedBatch(context.Background(), []string{"text"})
		require.Error(t, err)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.Equal(t, "invalid api key", apiErr.Message)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("fails when the response is missing embeddings", func(t *testing.T) {
		server := newEmbeddingsTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(embeddingsResponse{})
		})

		enc := newOpenAITestEncoder(t, server.URL, 0)
		_, err := enc.EmbedBatch(context.Background(), []string{"text"})
		assert.ErrorContains(t, err, "expected 1 embeddings")
	})

	t.Run("empty input skips the API call", func(t *testing.T) {
		enc := newOpenAITestEncoder(t, "http://unreachable.invalid", 0)
		vectors, err := enc.EmbedBatch(context.Background(), nil)
		require.NoError(t, err)
		assert.Nil(t, vectors)
	})
}

func TestNewEncoder(t *testing.T) {
	t.Parallel()

	t.Run("defaults to the local provider", func(t *testing.T) {
		t.Parallel()

		enc, err := NewEncoder(FactoryConfig{Dimension: 64})
		require.NoError(t, err)
		assert.IsType(t, &LocalEncoder{}, enc)
		assert.Equal(t, 64, enc.Dimension())
	})

	t.Run("creates an openai encoder with a key", func(t *testing.T) {
		t.Parallel()

		enc, err := NewEncoder(FactoryConfig{
			Provider:  "openai",
			Dimension: 384,
			OpenAI:    OpenAIConfig{APIKey: "sk-test"},
		})
		require.NoError(t, err)
		assert.IsType(t, &OpenAIEncoder{}, enc)
		assert.Equal(t, 384, enc.Dimension())
	})

	t.Run("rejects openai without a key", func(t *testing.T) {
		t.Parallel()

		_, err := NewEncoder(FactoryConfig{Provider: "openai"})
		assert.ErrorContains(t, err, "API key")
	})

	t.Run("rejects unknown providers", func(t *testing.T) {
		t.Parallel()

		_, err := NewEncoder(FactoryConfig{Provider: "sbert"})
		assert.ErrorContains(t, err, "unknown provider")
	})
}
