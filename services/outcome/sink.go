package outcome

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelgrid/provider-router/services/providers"
)

// Event is the per-attempt accounting record handed to a sink. The router
// emits exactly one event per invoked attempt; admission skips do not produce
// events.
type Event struct {
	// ID uniquely identifies this attempt record
	ID uuid.UUID `json:"id"`

	// RouteID groups the attempts of one Route call
	RouteID uuid.UUID `json:"route_id"`

	// ProviderID and ProviderKind identify the upstream tried
	ProviderID   string         `json:"provider_id"`
	ProviderKind providers.Kind `json:"provider_kind"`

	// Model that served (or would have served) the completion
	Model string `json:"model,omitempty"`

	// Attempt is the 1-based attempt counter within the route call
	Attempt int `json:"attempt"`

	// Success flags whether the invocation returned a response
	Success bool `json:"success"`

	// ErrorCategory is set on failed attempts
	ErrorCategory providers.ErrorCategory `json:"error_category,omitempty"`

	// PromptTokens/CompletionTokens/Cost carry usage figures when available
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	Cost             float64 `json:"cost,omitempty"`

	// Latency of the invocation
	Latency time.Duration `json:"latency"`

	// Timestamp of the attempt
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives outcome events. Record is fire-and-forget: implementations
// must never block routing for long and their failures must stay internal.
type Sink interface {
	Record(event Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event Event)

// Record implements Sink.
func (f SinkFunc) Record(event Event) {
	f(event)
}

// NopSink discards every event.
type NopSink struct{}

// Record implements Sink.
func (NopSink) Record(Event) {}

// MemorySink buffers events in memory. Useful for tests and for the stats
// endpoint in deployments without a database.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record implements Sink.
func (s *MemorySink) Record(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
}

// Events returns a copy of everything recorded so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Clear drops all buffered events.
func (s *MemorySink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = nil
}
