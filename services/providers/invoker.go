package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Invoker performs the actual completion call against one provider. The
// context carries the per-invocation deadline set by the routing layer;
// implementations must honor it. Failures are reported as *ProviderError.
type Invoker interface {
	Invoke(ctx context.Context, provider ProviderDescriptor, req *ChatRequest) (*ChatResponse, error)
}

// InvokerFunc adapts a plain function to the Invoker interface.
type InvokerFunc func(ctx context.Context, provider ProviderDescriptor, req *ChatRequest) (*ChatResponse, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, provider ProviderDescriptor, req *ChatRequest) (*ChatResponse, error) {
	return f(ctx, provider, req)
}

// HTTPInvoker calls OpenAI-wire-compatible chat completion endpoints and maps
// transport and status failures into the closed error taxonomy.
type HTTPInvoker struct {
	client *http.Client
	logger *zap.Logger
}

// NewHTTPInvoker creates an invoker backed by the given HTTP client.
// A nil client falls back to a default with no client-level timeout; the
// per-invocation context deadline bounds each call instead.
func NewHTTPInvoker(client *http.Client, logger *zap.Logger) *HTTPInvoker {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPInvoker{
		client: client,
		logger: logger,
	}
}

// wireRequest is the request body on the OpenAI-compatible wire.
type wireRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	User        string    `json:"user,omitempty"`
}

// wireResponse is the response body on the OpenAI-compatible wire.
type wireResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Created int64    `json:"created"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Invoke implements Invoker.
func (i *HTTPInvoker) Invoke(ctx context.Context, provider ProviderDescriptor, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" && len(provider.Models) > 0 {
		model = provider.Models[0]
	}

	body, err := json.Marshal(wireRequest{
		Model:       model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		User:        req.User,
	})
	if err != nil {
		return nil, NewProviderError(provider.ID, CategoryUnknown, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError(provider.ID, CategoryUnknown, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if provider.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+provider.APIKey)
	}

	httpResp, err := i.client.Do(httpReq)
	if err != nil {
		return nil, i.transportError(ctx, provider.ID, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, i.transportError(ctx, provider.ID, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, i.statusError(provider.ID, httpResp, respBody)
	}

	var wire wireResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return nil, NewProviderError(provider.ID, CategoryUnknown, "failed to decode response", err)
	}

	i.logger.Debug("provider invocation succeeded",
		zap.String("provider_id", provider.ID),
		zap.String("model", wire.Model),
		zap.Duration("latency", time.Since(start)))

	return &ChatResponse{
		ID:         wire.ID,
		Model:      wire.Model,
		Choices:    wire.Choices,
		Usage:      wire.Usage,
		ProviderID: provider.ID,
		Latency:    time.Since(start),
		Created:    time.Unix(wire.Created, 0),
	}, nil
}

// transportError classifies a client-level failure. A context deadline is a
// timeout; an outer cancellation is cancelled; anything else is network.
func (i *HTTPInvoker) transportError(ctx context.Context, providerID string, err error) *ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return NewProviderError(providerID, CategoryTimeout, "invocation timed out", err)
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return NewProviderError(providerID, CategoryCancelled, "invocation cancelled", err)
	default:
		return NewProviderError(providerID, CategoryNetwork, "transport failure", err)
	}
}

// statusError maps a non-200 upstream status into the error taxonomy.
func (i *HTTPInvoker) statusError(providerID string, resp *http.Response, body []byte) *ProviderError {
	message := fmt.Sprintf("upstream returned status %d", resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		provErr := NewProviderError(providerID, CategoryRateLimited, message, nil)
		if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
			provErr.WithRetryAfter(time.Duration(seconds) * time.Second)
		}
		return provErr
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return NewProviderError(providerID, CategoryAuth, message, nil)
	case resp.StatusCode >= 500:
		return NewProviderError(providerID, CategoryServerError, message, nil)
	default:
		return NewProviderError(providerID, CategoryUnknown, fmt.Sprintf("%s: %s", message, truncate(body, 200)), nil)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// HTTPProbe builds a Probe that classifies a provider by listing its models
// endpoint: 2xx is healthy, 5xx or transport failure is unhealthy, anything
// else is degraded.
func HTTPProbe(client *http.Client) Probe {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return func(ctx context.Context, d ProviderDescriptor) HealthStatus {
		if d.BaseURL == "" {
			return HealthUnknown
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+"/models", nil)
		if err != nil {
			return HealthUnknown
		}
		if d.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+d.APIKey)
		}

		resp, err := client.Do(req)
		if err != nil {
			return HealthUnhealthy
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return HealthHealthy
		case resp.StatusCode >= 500:
			return HealthUnhealthy
		default:
			return HealthDegraded
		}
	}
}
