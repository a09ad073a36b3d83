package routing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/modelgrid/provider-router/services/providers"
)

var (
	// ErrNoProviderAvailable is returned when the candidate list is empty
	// after filtering.
	ErrNoProviderAvailable = errors.New("no available providers")

	// ErrEmptyRequest is returned when Route is called without messages.
	ErrEmptyRequest = errors.New("routing request has no messages")
)

// RoutingRequest is the immutable input to one Route call.
type RoutingRequest struct {
	// UserID identifies the requesting user, passed through opaquely
	UserID string

	// ConversationID and Topic are opaque correlation identifiers
	ConversationID string
	Topic          string

	// Messages is the conversation to complete
	Messages []providers.Message

	// MaxTokens and Temperature are generation parameters
	MaxTokens   int
	Temperature float64

	// Model optionally pins an explicit model
	Model string
}

// RoutingContext carries per-call overrides. The zero value means no
// preference, no exclusions, and the default attempt budget.
type RoutingContext struct {
	// PreferredProvider, when set and present among candidates, is tried first
	PreferredProvider string

	// ExcludedProviders removes candidates whose ID or Kind matches
	ExcludedProviders []string

	// MaxAttempts caps candidates considered across the whole call (default 3)
	MaxAttempts int
}

// RoutingResult is the successful outcome of a Route call.
type RoutingResult struct {
	// Provider is the descriptor snapshot of the provider that answered
	Provider providers.ProviderDescriptor

	// Response is the provider's completion payload
	Response *providers.ChatResponse

	// Attempts is the number of candidates considered, the winner included
	Attempts int

	// FallbacksUsed lists one human-readable reason per skipped or failed
	// candidate, in the order they were passed over
	FallbacksUsed []string
}

// ExhaustedError is the aggregate failure surfaced when every candidate has
// been tried or skipped. It embeds the last concrete provider error and the
// full fallback trail for diagnostics.
type ExhaustedError struct {
	Attempts      int
	FallbacksUsed []string
	LastErr       error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	msg := fmt.Sprintf("all providers exhausted after %d attempts", e.Attempts)
	if len(e.FallbacksUsed) > 0 {
		msg += ": " + strings.Join(e.FallbacksUsed, ", ")
	}
	if e.LastErr != nil {
		msg += fmt.Sprintf("; last error: %v", e.LastErr)
	}
	return msg
}

// Unwrap exposes the last concrete provider error for errors.As/Is.
func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}
