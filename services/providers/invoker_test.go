package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testDescriptor(baseURL string) ProviderDescriptor {
	return ProviderDescriptor{
		ID:      "openai",
		Name:    "OpenAI",
		Kind:    KindOpenAI,
		Enabled: true,
		Models:  []string{"gpt-4"},
		BaseURL: baseURL,
		APIKey:  "sk-test",
	}
}

func TestHTTPInvoker_Success(t *testing.T) {
	var captured wireRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(wireResponse{
			ID:      "cmpl-123",
			Model:   "gpt-4",
			Created: time.Now().Unix(),
			Choices: []Choice{{Message: Message{Role: "assistant", Content: "hello"}, FinishReason: "stop"}},
			Usage:   Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
		})
	}))
	defer server.Close()

	invoker := NewHTTPInvoker(server.Client(), zap.NewNop())
	resp, err := invoker.Invoke(context.Background(), testDescriptor(server.URL), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "cmpl-123", resp.ID)
	assert.Equal(t, "openai", resp.ProviderID)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	// An unset model falls back to the provider's first listed model.
	assert.Equal(t, "gpt-4", captured.Model)
}

func TestHTTPInvoker_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		category ErrorCategory
	}{
		{"rate limited", http.StatusTooManyRequests, CategoryRateLimited},
		{"unauthorized", http.StatusUnauthorized, CategoryAuth},
		{"forbidden", http.StatusForbidden, CategoryAuth},
		{"server error", http.StatusInternalServerError, CategoryServerError},
		{"bad gateway", http.StatusBadGateway, CategoryServerError},
		{"unexpected", http.StatusTeapot, CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			invoker := NewHTTPInvoker(server.Client(), zap.NewNop())
			_, err := invoker.Invoke(context.Background(), testDescriptor(server.URL), &ChatRequest{
				Messages: []Message{{Role: "user", Content: "hi"}},
			})

			require.Error(t, err)
			assert.Equal(t, tt.category, CategoryOf(err))
		})
	}
}

func TestHTTPInvoker_RetryAfterHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	invoker := NewHTTPInvoker(server.Client(), zap.NewNop())
	_, err := invoker.Invoke(context.Background(), testDescriptor(server.URL), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	require.Error(t, err)
	delay, ok := SuggestedRetryAfter(err)
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, delay)
}

func TestHTTPInvoker_DeadlineMapsToTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server can detect the client disconnect
		// and unblock; otherwise server.Close hangs forever.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	invoker := NewHTTPInvoker(server.Client(), zap.NewNop())
	_, err := invoker.Invoke(ctx, testDescriptor(server.URL), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	require.Error(t, err)
	assert.Equal(t, CategoryTimeout, CategoryOf(err))
	assert.True(t, IsRetryable(err))
}

func TestHTTPInvoker_CancellationMapsToCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	invoker := NewHTTPInvoker(server.Client(), zap.NewNop())
	_, err := invoker.Invoke(ctx, testDescriptor(server.URL), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	require.Error(t, err)
	assert.Equal(t, CategoryCancelled, CategoryOf(err))
	assert.False(t, IsRetryable(err))
}

func TestHTTPInvoker_UnreachableHostIsNetworkError(t *testing.T) {
	invoker := NewHTTPInvoker(&http.Client{Timeout: 100 * time.Millisecond}, zap.NewNop())
	_, err := invoker.Invoke(context.Background(), testDescriptor("http://127.0.0.1:1"), &ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	require.Error(t, err)
	assert.Equal(t, CategoryNetwork, CategoryOf(err))
	assert.True(t, IsRetryable(err))
}

func TestHTTPProbe(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   HealthStatus
	}{
		{"ok", http.StatusOK, HealthHealthy},
		{"server error", http.StatusInternalServerError, HealthUnhealthy},
		{"auth required", http.StatusUnauthorized, HealthDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/models", r.URL.Path)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			probe := HTTPProbe(server.Client())
			assert.Equal(t, tt.want, probe(context.Background(), testDescriptor(server.URL)))
		})
	}

	t.Run("unreachable host", func(t *testing.T) {
		probe := HTTPProbe(&http.Client{Timeout: 100 * time.Millisecond})
		assert.Equal(t, HealthUnhealthy, probe(context.Background(), testDescriptor("http://127.0.0.1:1")))
	})

	t.Run("no base url", func(t *testing.T) {
		probe := HTTPProbe(nil)
		assert.Equal(t, HealthUnknown, probe(context.Background(), testDescriptor("")))
	})
}
