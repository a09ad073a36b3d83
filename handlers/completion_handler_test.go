package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/modelgrid/provider-router/services/providers"
	"github.com/modelgrid/provider-router/services/routing"
	"github.com/modelgrid/provider-router/utils"
)

// stubRouteService returns a canned result or error and captures its input.
type stubRouteService struct {
	result *routing.RoutingResult
	err    error

	gotReq  *routing.RoutingRequest
	gotRctx *routing.RoutingContext
}

func (s *stubRouteService) Route(ctx context.Context, req *routing.RoutingRequest, rctx *routing.RoutingContext) (*routing.RoutingResult, error) {
	s.gotReq = req
	s.gotRctx = rctx
	return s.result, s.err
}

func completionBody(t *testing.T, body map[string]interface{}) *bytes.Reader {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return bytes.NewReader(raw)
}

func postCompletion(t *testing.T, h *CompletionHandler, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", completionBody(t, body))
	rec := httptest.NewRecorder()
	h.HandleChatCompletion(rec, req)
	return rec
}

func validBody() map[string]interface{} {
	return map[string]interface{}{
		"model": "gpt-4",
		"messages": []map[string]string{
			{"role": "user", "content": "hello"},
		},
	}
}

func TestHandleChatCompletion_Success(t *testing.T) {
	stub := &stubRouteService{
		result: &routing.RoutingResult{
			Provider: providers.ProviderDescriptor{ID: "openai-primary"},
			Response: &providers.ChatResponse{
				ID:      "cmpl-1",
				Model:   "gpt-4",
				Choices: []providers.Choice{{Message: providers.Message{Role: "assistant", Content: "hi"}}},
				Usage:   providers.Usage{TotalTokens: 15},
				Latency: 120 * time.Millisecond,
				Created: time.Unix(1700000000, 0),
			},
			Attempts:      2,
			FallbacksUsed: []string{"Alpha (circuit open)"},
		},
	}
	handler := NewCompletionHandler(stub, zap.NewNop())

	body := validBody()
	body["provider"] = "openai-primary"
	body["exclude_providers"] = []string{"local"}
	rec := postCompletion(t, handler, body)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatCompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cmpl-1", resp.ID)
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, "openai-primary", resp.Provider)
	assert.Equal(t, 2, resp.Attempts)
	assert.Equal(t, []string{"Alpha (circuit open)"}, resp.FallbacksUsed)
	assert.Equal(t, int64(120), resp.LatencyMs)

	// Routing options pass through from the request body.
	require.NotNil(t, stub.gotRctx)
	assert.Equal(t, "openai-primary", stub.gotRctx.PreferredProvider)
	assert.Equal(t, []string{"local"}, stub.gotRctx.ExcludedProviders)
	assert.Equal(t, "gpt-4", stub.gotReq.Model)
}

func TestHandleChatCompletion_InvalidJSON(t *testing.T) {
	handler := NewCompletionHandler(&stubRouteService{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	handler.HandleChatCompletion(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChatCompletion_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]interface{})
	}{
		{"no messages", func(b map[string]interface{}) { delete(b, "messages") }},
		{"bad role", func(b map[string]interface{}) {
			b["messages"] = []map[string]string{{"role": "robot", "content": "hi"}}
		}},
		{"temperature too high", func(b map[string]interface{}) { b["temperature"] = 3.5 }},
		{"negative max tokens", func(b map[string]interface{}) { b["max_tokens"] = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubRouteService{}
			handler := NewCompletionHandler(stub, zap.NewNop())

			body := validBody()
			tt.mutate(body)
			rec := postCompletion(t, handler, body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Nil(t, stub.gotReq, "router must not be called on invalid input")
		})
	}
}

func TestHandleChatCompletion_NoProviders(t *testing.T) {
	handler := NewCompletionHandler(&stubRouteService{err: routing.ErrNoProviderAvailable}, zap.NewNop())

	rec := postCompletion(t, handler, validBody())

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp utils.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "service_unavailable", resp.Error)
}

func TestHandleChatCompletion_Exhausted(t *testing.T) {
	handler := NewCompletionHandler(&stubRouteService{
		err: &routing.ExhaustedError{
			Attempts:      3,
			FallbacksUsed: []string{"Alpha (auth)", "Beta (auth)", "Gamma (auth)"},
		},
	}, zap.NewNop())

	rec := postCompletion(t, handler, validBody())

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var resp utils.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "all_providers_failed", resp.Error)
	assert.Equal(t, float64(3), resp.Details["attempts"])
}

func TestHandleChatCompletion_ClientCancellation(t *testing.T) {
	handler := NewCompletionHandler(&stubRouteService{err: context.Canceled}, zap.NewNop())

	rec := postCompletion(t, handler, validBody())

	// Nothing is written for a client that went away.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestHandleChatCompletion_UnexpectedError(t *testing.T) {
	handler := NewCompletionHandler(&stubRouteService{err: assert.AnError}, zap.NewNop())

	rec := postCompletion(t, handler, validBody())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
