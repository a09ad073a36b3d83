package providers

import (
	"time"
)

// Kind identifies the API family a provider speaks.
type Kind string

const (
	KindOpenAI    Kind = "openai"
	KindAnthropic Kind = "anthropic"
	KindGoogle    Kind = "google"
	KindLocal     Kind = "local"
)

// HealthStatus is the advisory health classification for a provider.
// It affects candidate ordering; it is not a hard admission gate.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// ProviderDescriptor is the configuration snapshot for one upstream provider.
// The catalog owns the authoritative copy; routing code treats a descriptor
// as read-only for the duration of a single route call.
type ProviderDescriptor struct {
	// ID is the stable provider identifier (e.g., "openai-primary")
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Kind is the API family this provider speaks
	Kind Kind `json:"kind"`

	// Enabled gates whether the provider participates in routing at all
	Enabled bool `json:"enabled"`

	// Priority orders candidates; lower values are preferred
	Priority int `json:"priority"`

	// Models lists the model identifiers this provider serves
	Models []string `json:"models"`

	// MaxRequestsPerMinute caps admissions in a 60-second window
	MaxRequestsPerMinute int `json:"max_requests_per_minute"`

	// Timeout bounds a single invocation against this provider
	Timeout time.Duration `json:"timeout"`

	// MaxRetries is the per-provider retry budget hint
	MaxRetries int `json:"max_retries"`

	// BaseURL is the API endpoint (used by the HTTP invoker)
	BaseURL string `json:"base_url,omitempty"`

	// APIKey authenticates against the upstream (never serialized)
	APIKey string `json:"-"`

	// CostPerThousandTokens prices usage for outcome accounting
	CostPerThousandTokens float64 `json:"cost_per_1k_tokens,omitempty"`
}

// SupportsModel reports whether the descriptor lists the given model.
// An empty model is treated as supported (caller accepts the default).
func (d ProviderDescriptor) SupportsModel(model string) bool {
	if model == "" {
		return true
	}
	for _, m := range d.Models {
		if m == model {
			return true
		}
	}
	return false
}

// Message is a single message in a conversation.
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content"`
}

// ChatRequest is the unified completion request handed to an invoker.
type ChatRequest struct {
	// Model identifier (e.g., "gpt-4", "claude-3-opus"); empty means
	// the provider's first listed model
	Model string `json:"model,omitempty"`

	// Messages in the conversation
	Messages []Message `json:"messages"`

	// MaxTokens limits the response length
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 to 2.0)
	Temperature float64 `json:"temperature,omitempty"`

	// User identifier for abuse monitoring, passed through opaquely
	User string `json:"user,omitempty"`
}

// Usage holds token accounting reported by the upstream.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is one completion alternative in a response.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// ChatResponse is the unified completion response returned by an invoker.
type ChatResponse struct {
	// ID is the upstream completion identifier
	ID string `json:"id"`

	// Model that actually served the completion
	Model string `json:"model"`

	// Choices contains the completion results
	Choices []Choice `json:"choices"`

	// Usage statistics as reported by the upstream
	Usage Usage `json:"usage"`

	// ProviderID that handled the request
	ProviderID string `json:"provider_id"`

	// Latency of the upstream call
	Latency time.Duration `json:"latency"`

	// Created timestamp
	Created time.Time `json:"created"`
}
