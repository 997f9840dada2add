package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited indicates that a request was rate limited.
	ErrRateLimited = errors.New("rate limited")

	// ErrStoreUnavailable indicates that the local store cannot be reached.
	// This is the one dependency failure that surfaces to callers.
	ErrStoreUnavailable = errors.New("local store unavailable")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// RateLimitError provides details about a rate limit error from a provider.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// ProviderError describes a failed call to an external metadata provider:
// a non-2xx response or an unparsable body. Provider errors are logged and
// swallowed at the cascade boundary; they never reach the caller.
type ProviderError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// EmbeddingError wraps a failure to compute an embedding for a paper.
// Inside the background indexer it is caught per paper: the paper's metadata
// stays persisted and the embedding is retried on a later pass.
type EmbeddingError struct {
	PaperID string
	Cause   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed for paper %s: %v", e.PaperID, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *EmbeddingError) Unwrap() error {
	return e.Cause
}

// IsProviderTimeout reports whether err represents a provider call that
// exceeded its per-call deadline. Timeouts are treated exactly like any
// other provider failure: log and continue the cascade.
func IsProviderTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NewRateLimitError creates a new RateLimitError.
func NewRateLimitError(source string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Source: source, RetryAfter: retryAfter}
}

// NewProviderError creates a new ProviderError.
func NewProviderError(source string, statusCode int, message string, cause error) *ProviderError {
	return &ProviderError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}
