package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Default values for the OpenAI-compatible embeddings encoder.
const (
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultOpenAIModel      = "text-embedding-3-small"
	defaultOpenAIRetryDelay = 2 * time.Second
)

// embeddingsRequest represents the OpenAI Embeddings API request body.
type embeddingsRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// embeddingsResponse represents the OpenAI Embeddings API response body.
type embeddingsResponse struct {
	Data  []embeddingDatum `json:"data"`
	Model string           `json:"model"`
	Usage embeddingsUsage  `json:"usage"`
}

// embeddingDatum is a single embedding in the response.
type embeddingDatum struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// embeddingsUsage contains token usage information.
type embeddingsUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// openAIErrorResponse represents an error response from the OpenAI API.
type openAIErrorResponse struct {
	Error openAIErrorDetail `json:"error"`
}

// openAIErrorDetail contains error details from the OpenAI API.
type openAIErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// APIError represents an error returned by an embedding provider's API.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Type       string
	Code       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// isTransientError reports whether an API error is worth retrying.
func isTransientError(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
}

// OpenAIEncoder implements Encoder using an OpenAI-compatible Embeddings API.
// Any service exposing the /embeddings endpoint works by overriding BaseURL.
type OpenAIEncoder struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
	dimension  int
	maxRetries int
	retryDelay time.Duration
}

// OpenAIConfig holds the parameters needed to create an OpenAI encoder.
type OpenAIConfig struct {
	// APIKey is the API key sent as a bearer token.
	APIKey string
	// Model is the embedding model identifier.
	Model string
	// BaseURL is the API base URL (empty means the OpenAI default).
	BaseURL string
	// Dimension is the requested output dimension. Models that support
	// dimension reduction honor it; it must match the vector store schema.
	Dimension int
}

// NewOpenAIEncoder creates an encoder backed by the OpenAI Embeddings API.
func NewOpenAIEncoder(cfg OpenAIConfig, timeout time.Duration, maxRetries int) *OpenAIEncoder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = DefaultDimension
	}

	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if maxRetries < 0 {
		maxRetries = 0
	}

	return &OpenAIEncoder{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    baseURL,
		dimension:  dimension,
		maxRetries: maxRetries,
		retryDelay: defaultOpenAIRetryDelay,
	}
}

// EmbedText embeds a single text string.
func (e *OpenAIEncoder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds multiple texts in one API call.
//
// Transient errors (5xx and 429) are retried up to maxRetries times with
// linear backoff. The returned vectors are L2-normalized and index-aligned
// with the input.
func (e *OpenAIEncoder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := embeddingsRequest{
		Model:      e.model,
		Input:      texts,
		Dimensions: e.dimension,
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			delay := e.retryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("openai: context cancelled during retry wait: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		vectors, err := e.doRequest(ctx, req)
		if err == nil {
			return vectors, nil
		}

		if !isTransientError(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("openai: exhausted %d retries: %w", e.maxRetries, lastErr)
}

// Dimension returns the vector dimension produced by this encoder.
func (e *OpenAIEncoder) Dimension() int {
	return e.dimension
}

// doRequest performs a single API request to the embeddings endpoint.
func (e *OpenAIEncoder) doRequest(ctx context.Context, embReq embeddingsRequest) ([][]float32, error) {
	body, err := json.Marshal(embReq)
	if err != nil {
		return nil, fmt.Errorf("openai: failed to marshal request: %w", err)
	}

	endpoint := e.baseURL + "/embeddings"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openai: failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 50<<20))
	if err != nil {
		return nil, fmt.Errorf("openai: failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseOpenAIAPIError(resp.StatusCode, respBody)
	}

	var embResp embeddingsResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("openai: failed to unmarshal response: %w", err)
	}

	if len(embResp.Data) != len(embReq.Input) {
		return nil, fmt.Errorf("openai: expected %d embeddings, got %d", len(embReq.Input), len(embResp.Data))
	}

	vectors := make([][]float32, len(embResp.Data))
	for _, datum := range embResp.Data {
		if datum.Index < 0 || datum.Index >= len(vectors) {
			return nil, fmt.Errorf("openai: embedding index %d out of range", datum.Index)
		}
		vectors[datum.Index] = normalize(datum.Embedding)
	}

	return vectors, nil
}

// parseOpenAIAPIError parses an OpenAI API error from the status code and body.
func parseOpenAIAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		Provider:   "openai",
		StatusCode: statusCode,
		Message:    string(body),
	}

	var errResp openAIErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Type = errResp.Error.Type
		apiErr.Code = errResp.Error.Code
	}

	return apiErr
}

var _ Encoder = (*OpenAIEncoder)(nil)
