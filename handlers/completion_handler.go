package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/modelgrid/provider-router/services/providers"
	"github.com/modelgrid/provider-router/services/routing"
	"github.com/modelgrid/provider-router/utils"
)

// ChatCompletionRequest is the wire-level completion request.
type ChatCompletionRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Temperature float64       `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   int           `json:"max_tokens,omitempty" validate:"omitempty,gt=0"`
	User        string        `json:"user,omitempty"`

	// Conversation and Topic are opaque correlation identifiers
	Conversation string `json:"conversation,omitempty"`
	Topic        string `json:"topic,omitempty"`

	// Provider optionally pins the preferred provider
	Provider string `json:"provider,omitempty"`

	// ExcludeProviders removes providers (by ID or kind) from routing
	ExcludeProviders []string `json:"exclude_providers,omitempty"`

	// MaxAttempts overrides the routing attempt budget
	MaxAttempts int `json:"max_attempts,omitempty" validate:"omitempty,gt=0"`
}

// ChatMessage is a single wire-level message.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

// ChatCompletionResponse is the wire-level completion response with routing
// provenance attached.
type ChatCompletionResponse struct {
	ID            string             `json:"id"`
	Object        string             `json:"object"`
	Created       int64              `json:"created"`
	Model         string             `json:"model"`
	Choices       []providers.Choice `json:"choices"`
	Usage         providers.Usage    `json:"usage"`
	Provider      string             `json:"provider"`
	Attempts      int                `json:"attempts"`
	FallbacksUsed []string           `json:"fallbacks_used,omitempty"`
	LatencyMs     int64              `json:"latency_ms"`
}

// RouteService is the routing surface the handler depends on.
type RouteService interface {
	Route(ctx context.Context, req *routing.RoutingRequest, rctx *routing.RoutingContext) (*routing.RoutingResult, error)
}

// CompletionHandler handles chat completion HTTP requests.
type CompletionHandler struct {
	router RouteService
	logger *zap.Logger
}

// NewCompletionHandler creates a new CompletionHandler.
func NewCompletionHandler(router RouteService, logger *zap.Logger) *CompletionHandler {
	return &CompletionHandler{
		router: router,
		logger: logger,
	}
}

// HandleChatCompletion handles POST /v1/chat/completions.
func (h *CompletionHandler) HandleChatCompletion(w http.ResponseWriter, r *http.Request) {
	var req ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(req); err != nil {
		var validationErr *utils.ValidationError
		if errors.As(err, &validationErr) {
			_ = utils.WriteBadRequest(w, validationErr.Message, validationErr.FieldDetails())
			return
		}
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	messages := make([]providers.Message, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = providers.Message{Role: m.Role, Content: m.Content}
	}

	routingReq := &routing.RoutingRequest{
		UserID:         req.User,
		ConversationID: req.Conversation,
		Topic:          req.Topic,
		Messages:       messages,
		MaxTokens:      req.MaxTokens,
		Temperature:    req.Temperature,
		Model:          req.Model,
	}
	routingCtx := &routing.RoutingContext{
		PreferredProvider: req.Provider,
		ExcludedProviders: req.ExcludeProviders,
		MaxAttempts:       req.MaxAttempts,
	}

	result, err := h.router.Route(r.Context(), routingReq, routingCtx)
	if err != nil {
		h.writeRouteError(w, r, err)
		return
	}

	resp := ChatCompletionResponse{
		ID:            result.Response.ID,
		Object:        "chat.completion",
		Created:       result.Response.Created.Unix(),
		Model:         result.Response.Model,
		Choices:       result.Response.Choices,
		Usage:         result.Response.Usage,
		Provider:      result.Provider.ID,
		Attempts:      result.Attempts,
		FallbacksUsed: result.FallbacksUsed,
		LatencyMs:     result.Response.Latency.Milliseconds(),
	}
	_ = utils.WriteJSON(w, http.StatusOK, resp)
}

// writeRouteError maps routing failures onto HTTP statuses.
func (h *CompletionHandler) writeRouteError(w http.ResponseWriter, r *http.Request, err error) {
	var exhausted *routing.ExhaustedError
	switch {
	case errors.Is(err, routing.ErrNoProviderAvailable):
		_ = utils.WriteServiceUnavailable(w, err.Error())
	case errors.Is(err, routing.ErrEmptyRequest):
		_ = utils.WriteBadRequest(w, err.Error(), nil)
	case errors.As(err, &exhausted):
		h.logger.Warn("completion exhausted all providers",
			zap.Int("attempts", exhausted.Attempts),
			zap.Strings("fallbacks", exhausted.FallbacksUsed))
		_ = utils.WriteBadGateway(w, exhausted.Error(), map[string]interface{}{
			"attempts":  exhausted.Attempts,
			"fallbacks": exhausted.FallbacksUsed,
		})
	case errors.Is(err, context.Canceled) || r.Context().Err() != nil:
		// Client went away; nothing meaningful to write.
		h.logger.Debug("completion cancelled by client")
	default:
		h.logger.Error("completion failed", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
	}
}
