package providers

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCategory classifies a provider failure. The set is closed: routing
// decisions (retry, advance, skip) key off the category alone.
type ErrorCategory string

const (
	CategoryNetwork     ErrorCategory = "network"
	CategoryTimeout     ErrorCategory = "timeout"
	CategoryRateLimited ErrorCategory = "rate_limited"
	CategoryAuth        ErrorCategory = "auth"
	CategoryServerError ErrorCategory = "server_error"
	CategoryCancelled   ErrorCategory = "cancelled"
	CategoryUnknown     ErrorCategory = "unknown"
)

// Retryable reports whether a failure of this category is worth retrying
// within the same routing call. Auth and upstream rate limits won't be fixed
// by an immediate retry; cancellation must propagate, not retry.
func (c ErrorCategory) Retryable() bool {
	switch c {
	case CategoryNetwork, CategoryTimeout, CategoryServerError:
		return true
	default:
		return false
	}
}

// ProviderError is a typed failure from one provider invocation.
type ProviderError struct {
	// Category classifies the failure
	Category ErrorCategory

	// Message is the human-readable description
	Message string

	// ProviderID identifies the originating provider
	ProviderID string

	// RetryAfter is the upstream-suggested wait before retrying, when known
	RetryAfter *time.Duration

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Unwrap implements errors.Unwrap.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is matches two provider errors on category, so callers can compare
// against a category template with errors.Is.
func (e *ProviderError) Is(target error) bool {
	t, ok := target.(*ProviderError)
	if !ok {
		return false
	}
	return e.Category == t.Category
}

// Retryable reports whether the routing layer may retry after this error.
func (e *ProviderError) Retryable() bool {
	return e.Category.Retryable()
}

// NewProviderError creates a typed provider failure.
func NewProviderError(providerID string, category ErrorCategory, message string, cause error) *ProviderError {
	return &ProviderError{
		Category:   category,
		Message:    message,
		ProviderID: providerID,
		Cause:      cause,
	}
}

// WithRetryAfter attaches an upstream-suggested retry delay.
func (e *ProviderError) WithRetryAfter(d time.Duration) *ProviderError {
	e.RetryAfter = &d
	return e
}

// IsRetryable checks whether an arbitrary error is a retryable provider
// failure. Non-provider errors are not retryable.
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable()
	}
	return false
}

// CategoryOf returns the category of a provider error, or CategoryUnknown
// when the error is not a ProviderError.
func CategoryOf(err error) ErrorCategory {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Category
	}
	return CategoryUnknown
}

// SuggestedRetryAfter returns the upstream-suggested delay, if any.
func SuggestedRetryAfter(err error) (time.Duration, bool) {
	var provErr *ProviderError
	if errors.As(err, &provErr) && provErr.RetryAfter != nil {
		return *provErr.RetryAfter, true
	}
	return 0, false
}
