package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modelgrid/provider-router/services/circuit"
	"github.com/modelgrid/provider-router/services/outcome"
	"github.com/modelgrid/provider-router/services/providers"
	"github.com/modelgrid/provider-router/services/ratelimit"
)

// Config holds configuration for the Router.
type Config struct {
	// DefaultMaxAttempts caps candidates per call when the routing context
	// does not override it
	DefaultMaxAttempts int

	// DefaultTimeout bounds an invocation when the descriptor carries none
	DefaultTimeout time.Duration

	// BackoffBase and BackoffMax shape the exponential inter-attempt backoff
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		DefaultMaxAttempts: 3,
		DefaultTimeout:     30 * time.Second,
		BackoffBase:        500 * time.Millisecond,
		BackoffMax:         10 * time.Second,
	}
}

// Router orchestrates provider selection, admission control, circuit
// breaking, invocation, and fallback for completion requests. One Router is
// constructed by the composition root and shared by all callers; Route is
// safe for concurrent use.
type Router struct {
	config  Config
	catalog providers.Catalog
	oracle  providers.HealthOracle
	invoker providers.Invoker
	sink    outcome.Sink
	limiter *ratelimit.Limiter
	breaker *circuit.Breaker
	logger  *zap.Logger

	// sleep is injectable for tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRouter creates a router with fresh rate-limit and circuit state.
func NewRouter(
	config Config,
	catalog providers.Catalog,
	oracle providers.HealthOracle,
	invoker providers.Invoker,
	sink outcome.Sink,
	logger *zap.Logger,
) *Router {
	return &Router{
		config:  config,
		catalog: catalog,
		oracle:  oracle,
		invoker: invoker,
		sink:    sink,
		limiter: ratelimit.NewLimiter(logger),
		breaker: circuit.NewBreaker(logger),
		logger:  logger,
		sleep:   sleepContext,
	}
}

// Limiter exposes the router's admission controller, for test harnesses that
// need to pre-load window state.
func (r *Router) Limiter() *ratelimit.Limiter {
	return r.limiter
}

// Breaker exposes the router's circuit breaker, for test harnesses that need
// to pre-trip circuits.
func (r *Router) Breaker() *circuit.Breaker {
	return r.breaker
}

// Route selects a provider for the request and invokes it, falling back
// through the candidate ordering on failure. It returns either a result with
// full provenance or a single aggregate error once every candidate within
// the attempt budget has been tried or skipped.
func (r *Router) Route(ctx context.Context, req *RoutingRequest, rctx *RoutingContext) (*RoutingResult, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, ErrEmptyRequest
	}

	opts := RoutingContext{}
	if rctx != nil {
		opts = *rctx
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = r.config.DefaultMaxAttempts
	}

	routeID := uuid.New()

	// Snapshot catalog and health once; the ordering is fixed for the call.
	descriptors, err := r.catalog.EnabledProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	candidates := orderCandidates(descriptors, opts, r.oracle)
	if len(candidates) == 0 {
		return nil, ErrNoProviderAvailable
	}

	r.logger.Debug("routing request",
		zap.String("route_id", routeID.String()),
		zap.String("user_id", req.UserID),
		zap.Int("candidates", len(candidates)),
		zap.Int("max_attempts", opts.MaxAttempts))

	attempts := 0
	fallbacks := []string{}
	var lastErr error

	for _, provider := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempts >= opts.MaxAttempts {
			break
		}
		attempts++

		if !r.limiter.Allow(provider.ID, provider.MaxRequestsPerMinute) {
			fallbacks = append(fallbacks, provider.Name+" (rate limited)")
			continue
		}
		if r.breaker.IsOpen(provider.ID) {
			fallbacks = append(fallbacks, provider.Name+" (circuit open)")
			continue
		}

		start := time.Now()
		resp, invokeErr := r.invoke(ctx, provider, req)
		if invokeErr == nil {
			r.breaker.RecordSuccess(provider.ID)
			r.limiter.RecordAdmission(provider.ID)
			r.recordSuccess(routeID, provider, resp, attempts)

			r.logger.Info("routing succeeded",
				zap.String("route_id", routeID.String()),
				zap.String("provider_id", provider.ID),
				zap.Int("attempts", attempts),
				zap.Duration("latency", resp.Latency))

			return &RoutingResult{
				Provider:      provider,
				Response:      resp,
				Attempts:      attempts,
				FallbacksUsed: fallbacks,
			}, nil
		}

		category := providers.CategoryOf(invokeErr)

		// Caller cancellation is not a provider fault: record the attempt
		// as cancelled and propagate rather than falling back.
		if category == providers.CategoryCancelled {
			r.recordFailure(routeID, provider, req.Model, category, attempts, time.Since(start))
			return nil, invokeErr
		}

		r.breaker.RecordFailure(provider.ID)
		r.recordFailure(routeID, provider, req.Model, category, attempts, time.Since(start))
		lastErr = invokeErr
		fallbacks = append(fallbacks, fmt.Sprintf("%s (%s)", provider.Name, category))

		r.logger.Warn("provider attempt failed",
			zap.String("route_id", routeID.String()),
			zap.String("provider_id", provider.ID),
			zap.String("category", string(category)),
			zap.Int("attempt", attempts),
			zap.Error(invokeErr))

		// A retryable failure still advances to the next candidate; the
		// backoff only throttles pressure before trying it.
		if providers.IsRetryable(invokeErr) && attempts < opts.MaxAttempts {
			delay, ok := providers.SuggestedRetryAfter(invokeErr)
			if !ok {
				delay = r.backoff(attempts)
			}
			if err := r.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	return nil, &ExhaustedError{
		Attempts:      attempts,
		FallbacksUsed: fallbacks,
		LastErr:       lastErr,
	}
}

// Stats is the introspection snapshot for dashboards and tests.
type Stats struct {
	// RequestCounts is the current in-window admission count per provider
	RequestCounts map[string]int `json:"request_counts"`

	// CircuitStates is the breaker snapshot per provider
	CircuitStates map[string]circuit.State `json:"circuit_states"`
}

// Stats returns per-provider request counts and circuit states.
func (r *Router) Stats() Stats {
	return Stats{
		RequestCounts: r.limiter.Usage(),
		CircuitStates: r.breaker.States(),
	}
}

// Reset clears all rate-limit and circuit-breaker state. Intended for test
// harnesses and administrative reset.
func (r *Router) Reset() {
	r.limiter.Reset()
	r.breaker.Reset()
	r.logger.Info("router state reset")
}

// invoke races one provider invocation against the descriptor's timeout.
// The invoker runs in its own goroutine so a stuck invocation cannot wedge
// the routing loop; when the timer fires first the attempt surfaces as a
// retryable timeout.
func (r *Router) invoke(ctx context.Context, provider providers.ProviderDescriptor, req *RoutingRequest) (*providers.ChatResponse, error) {
	timeout := provider.Timeout
	if timeout <= 0 {
		timeout = r.config.DefaultTimeout
	}
	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	chatReq := &providers.ChatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		User:        req.UserID,
	}

	type invocation struct {
		resp *providers.ChatResponse
		err  error
	}
	done := make(chan invocation, 1)
	go func() {
		resp, err := r.invoker.Invoke(ictx, provider, chatReq)
		done <- invocation{resp: resp, err: err}
	}()

	select {
	case inv := <-done:
		if inv.err != nil {
			return nil, r.classify(ctx, provider.ID, inv.err)
		}
		return inv.resp, nil
	case <-ictx.Done():
		if ctx.Err() != nil {
			return nil, providers.NewProviderError(provider.ID, providers.CategoryCancelled, "routing cancelled", ctx.Err())
		}
		return nil, providers.NewProviderError(provider.ID, providers.CategoryTimeout, "invocation timed out", ictx.Err())
	}
}

// classify normalizes an invoker error into the closed taxonomy. Typed
// provider errors pass through; context errors map to timeout/cancelled;
// anything else is unknown.
func (r *Router) classify(ctx context.Context, providerID string, err error) error {
	var provErr *providers.ProviderError
	if errors.As(err, &provErr) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return providers.NewProviderError(providerID, providers.CategoryTimeout, "invocation timed out", err)
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		return providers.NewProviderError(providerID, providers.CategoryCancelled, "routing cancelled", err)
	default:
		return providers.NewProviderError(providerID, providers.CategoryUnknown, "provider invocation failed", err)
	}
}

// backoff returns the exponential inter-attempt delay: base doubled per
// completed attempt, capped at the configured maximum.
func (r *Router) backoff(attempts int) time.Duration {
	d := r.config.BackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= r.config.BackoffMax {
			return r.config.BackoffMax
		}
	}
	if d > r.config.BackoffMax {
		return r.config.BackoffMax
	}
	return d
}

func (r *Router) recordSuccess(routeID uuid.UUID, provider providers.ProviderDescriptor, resp *providers.ChatResponse, attempt int) {
	r.sink.Record(outcome.Event{
		ID:               uuid.New(),
		RouteID:          routeID,
		ProviderID:       provider.ID,
		ProviderKind:     provider.Kind,
		Model:            resp.Model,
		Attempt:          attempt,
		Success:          true,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Cost:             float64(resp.Usage.TotalTokens) / 1000 * provider.CostPerThousandTokens,
		Latency:          resp.Latency,
		Timestamp:        time.Now(),
	})
}

func (r *Router) recordFailure(routeID uuid.UUID, provider providers.ProviderDescriptor, model string, category providers.ErrorCategory, attempt int, latency time.Duration) {
	r.sink.Record(outcome.Event{
		ID:            uuid.New(),
		RouteID:       routeID,
		ProviderID:    provider.ID,
		ProviderKind:  provider.Kind,
		Model:         model,
		Attempt:       attempt,
		Success:       false,
		ErrorCategory: category,
		Latency:       latency,
		Timestamp:     time.Now(),
	})
}

// sleepContext waits for the duration or the context, whichever ends first,
// so a cancelled caller never leaves an orphaned timer running.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
