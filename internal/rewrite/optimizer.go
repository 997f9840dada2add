// Package rewrite turns free-form research questions into keyword-style
// search queries via the OpenAI Chat Completions API.
package rewrite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Default values for the OpenAI optimizer.
const (
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultModel      = "gpt-4o-mini"
	defaultMaxTokens  = 256
	defaultRetryDelay = 2 * time.Second
)

// Result is the outcome of a query optimization.
type Result struct {
	// OptimizedQuery is the keyword-style query to send to the providers.
	OptimizedQuery string
	// DetectedCategory is the category the model assigned, or empty.
	DetectedCategory string
	// Confidence is the model's confidence in the detected category, 0 to 1.
	Confidence float64
}

// Optimizer rewrites a natural-language query for provider search.
type Optimizer interface {
	// Optimize rewrites the query. categories lists the known category IDs
	// the model may pick from.
	Optimize(ctx context.Context, query string, categories []string) (*Result, error)
}

// chatRequest represents the Chat Completions API request body.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse represents the Chat Completions API response body.
type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// optimizeResponse is the JSON object the model is instructed to emit.
type optimizeResponse struct {
	OptimizedQuery string  `json:"optimized_query"`
	Category       string  `json:"category"`
	Confidence     float64 `json:"confidence"`
}

type apiErrorResponse struct {
	Error apiErrorDetail `json:"error"`
}

type apiErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// APIError describes a failed Chat Completions API call.
type APIError struct {
	StatusCode int
	Message    string
	Type       string
	Code       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai API error (status %d): %s", e.StatusCode, e.Message)
}

// isTransientError reports whether an error is worth retrying.
func isTransientError(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
}

// Compile-time check that OpenAIOptimizer implements Optimizer.
var _ Optimizer = (*OpenAIOptimizer)(nil)

// OpenAIOptimizer implements Optimizer via the Chat Completions API with
// JSON response format.
type OpenAIOptimizer struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
	maxRetries int
	retryDelay time.Duration
}

// Config holds the parameters needed to create an OpenAI optimizer.
type Config struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model is the chat model identifier.
	Model string
	// BaseURL is the API base URL (empty means default).
	BaseURL string
}

// NewOpenAIOptimizer creates a query optimizer backed by the Chat
// Completions API. Transient errors (5xx, 429) are retried up to
// maxRetries times.
func NewOpenAIOptimizer(cfg Config, timeout time.Duration, maxRetries int) *OpenAIOptimizer {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if maxRetries < 0 {
		maxRetries = 0
	}

	return &OpenAIOptimizer{
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
		maxRetries: maxRetries,
		retryDelay: defaultRetryDelay,
	}
}

// systemPrompt instructs the model to emit the structured rewrite object.
const systemPrompt = `You are a research query optimizer for an academic paper search engine.
Rewrite the user's question into a concise keyword-style search query that academic APIs handle well: drop filler words, keep technical terms, add well-known synonyms only when they sharpen the query.
Also classify the query into exactly one of the category IDs provided and estimate your confidence in that classification between 0 and 1.
Respond with a JSON object: {"optimized_query": string, "category": string, "confidence": number}.`

// Optimize rewrites the query and classifies it into one of the given
// category IDs.
func (o *OpenAIOptimizer) Optimize(ctx context.Context, query string, categories []string) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("rewrite: query is empty")
	}

	userPrompt := fmt.Sprintf("Categories: %s\n\nQuery: %s", strings.Join(categories, ", "), query)

	chatReq := chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0,
		MaxTokens:   defaultMaxTokens,
		ResponseFormat: &responseFormat{
			Type: "json_object",
		},
	}

	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			delay := o.retryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("rewrite: context cancelled during retry wait: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		result, err := o.doRequest(ctx, chatReq)
		if err == nil {
			return result, nil
		}

		if !isTransientError(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("rewrite: exhausted %d retries: %w", o.maxRetries, lastErr)
}

// doRequest performs a single Chat Completions API call.
func (o *OpenAIOptimizer) doRequest(ctx context.Context, chatReq chatRequest) (*Result, error) {
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("rewrite: failed to marshal request: %w", err)
	}

	endpoint := o.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rewrite: failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("rewrite: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("rewrite: failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("rewrite: failed to unmarshal response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("rewrite: empty choices in response")
	}

	content := chatResp.Choices[0].Message.Content
	var opt optimizeResponse
	if err := json.Unmarshal([]byte(content), &opt); err != nil {
		return nil, fmt.Errorf("rewrite: failed to parse model JSON response: %w", err)
	}

	if strings.TrimSpace(opt.OptimizedQuery) == "" {
		return nil, fmt.Errorf("rewrite: model returned an empty query")
	}
	if opt.Confidence < 0 {
		opt.Confidence = 0
	}
	if opt.Confidence > 1 {
		opt.Confidence = 1
	}

	return &Result{
		OptimizedQuery:   strings.TrimSpace(opt.OptimizedQuery),
		DetectedCategory: opt.Category,
		Confidence:       opt.Confidence,
	}, nil
}

// parseAPIError parses an API error from the response status and body.
func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		Message:    string(body),
	}

	var errResp apiErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		apiErr.Message = errResp.Error.Message
		apiErr.Type = errResp.Error.Type
		apiErr.Code = errResp.Error.Code
	}

	return apiErr
}
