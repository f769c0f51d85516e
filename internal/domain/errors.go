package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited indicates that the request was rejected by admission control.
	ErrRateLimited = errors.New("rate limited")

	// ErrSessionExpired indicates that an action referenced stale session state,
	// such as a Load More press for a superseded results page.
	ErrSessionExpired = errors.New("session expired")

	// ErrQuotaExceeded indicates that the user's daily transfer quota is spent.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrFileTooLarge indicates that a document exceeds the configured
	// single-file ceiling.
	ErrFileTooLarge = errors.New("file too large")

	// ErrTransferCeiling indicates that a document exceeds the messaging
	// platform's absolute transfer limit and can only be offered as a link.
	ErrTransferCeiling = errors.New("exceeds platform transfer ceiling")

	// ErrStoreUnavailable indicates that the persistence backend failed.
	// Fatal to the request, never to the process.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// SearchErrorKind enumerates the closed set of failure classes the search
// gateway can surface. The orchestrator's handling is a total switch over
// these kinds; no provider-specific error types leak past the adapter.
type SearchErrorKind string

// Search error kinds.
const (
	// SearchErrTimeout indicates the provider did not answer within the
	// adapter's request budget.
	SearchErrTimeout SearchErrorKind = "timeout"

	// SearchErrConnectionFailed indicates the provider could not be reached.
	SearchErrConnectionFailed SearchErrorKind = "connection_failed"

	// SearchErrUpstreamHTTP indicates the provider answered with an HTTP
	// error status after retries were exhausted.
	SearchErrUpstreamHTTP SearchErrorKind = "upstream_http_error"

	// SearchErrEmptyOrMalformed indicates the provider answered but the body
	// could not be interpreted. Distinct from an empty successful search.
	SearchErrEmptyOrMalformed SearchErrorKind = "empty_or_malformed_response"

	// SearchErrUnknown is the fallback for unclassified failures.
	SearchErrUnknown SearchErrorKind = "unknown"
)

// SearchError is a classified failure from the search gateway adapter.
type SearchError struct {
	Kind       SearchErrorKind
	Source     string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *SearchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s search failed (%s, status %d): %v", e.Source, e.Kind, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s search failed (%s): %v", e.Source, e.Kind, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *SearchError) Unwrap() error {
	return e.Cause
}

// UserMessage returns the user-facing text for this failure class. Phrasing
// is stable per kind so retry guidance stays consistent across surfaces.
func (e *SearchError) UserMessage() string {
	switch e.Kind {
	case SearchErrTimeout:
		return "The paper search timed out. Please try again later."
	case SearchErrConnectionFailed:
		return "Could not reach the paper index. Please try again in a moment."
	case SearchErrUpstreamHTTP:
		return "The paper index returned an error. The service might be temporarily unavailable."
	case SearchErrEmptyOrMalformed:
		return "The paper index returned an unreadable response. Please try a different search query."
	default:
		return "An unexpected error occurred while searching. Please try again later."
	}
}

// NewSearchError creates a new SearchError.
func NewSearchError(kind SearchErrorKind, source string, statusCode int, cause error) *SearchError {
	return &SearchError{
		Kind:       kind,
		Source:     source,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// AsSearchError unwraps err to a *SearchError if one is in the chain.
func AsSearchError(err error) (*SearchError, bool) {
	var se *SearchError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
