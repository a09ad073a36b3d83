package circuit

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// defaultOpenThreshold is the consecutive-failure count that opens a breaker.
	defaultOpenThreshold = 3

	// defaultCooldown is how long an open breaker excludes a provider.
	defaultCooldown = 60 * time.Second
)

// State is a point-in-time snapshot of one provider's breaker, safe to
// serialize for dashboards.
type State struct {
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"last_failure"`
	Open        bool      `json:"open"`
}

// circuitState is the live per-provider record. Invariant: open implies
// failures >= threshold and now-lastFailure < cooldown at the time it was
// last checked; IsOpen restores the invariant lazily by self-healing.
type circuitState struct {
	failures    int
	lastFailure time.Time
	open        bool
}

// Breaker is a per-provider failure-counting circuit breaker. There is no
// half-open probe state: after the cooldown elapses the breaker closes on the
// next check and a subsequent run of real failures must re-open it.
type Breaker struct {
	mu        sync.Mutex
	states    map[string]*circuitState
	threshold int
	cooldown  time.Duration
	logger    *zap.Logger

	// now is injectable for tests
	now func() time.Time
}

// NewBreaker creates a breaker with the default threshold (3 consecutive
// failures) and cooldown (60s).
func NewBreaker(logger *zap.Logger) *Breaker {
	return &Breaker{
		states:    make(map[string]*circuitState),
		threshold: defaultOpenThreshold,
		cooldown:  defaultCooldown,
		logger:    logger,
		now:       time.Now,
	}
}

// IsOpen reports whether requests to the provider should be skipped. An open
// breaker whose cooldown has elapsed self-heals to closed (failures reset)
// before answering.
func (b *Breaker) IsOpen(providerID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, exists := b.states[providerID]
	if !exists || !s.open {
		return false
	}

	if b.now().Sub(s.lastFailure) >= b.cooldown {
		s.open = false
		s.failures = 0
		b.logger.Info("circuit closed after cooldown", zap.String("provider_id", providerID))
		return false
	}
	return true
}

// RecordFailure counts one failure against the provider and opens the
// breaker once the consecutive-failure threshold is reached.
func (b *Breaker) RecordFailure(providerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, exists := b.states[providerID]
	if !exists {
		s = &circuitState{}
		b.states[providerID] = s
	}

	s.failures++
	s.lastFailure = b.now()

	if !s.open && s.failures >= b.threshold {
		s.open = true
		b.logger.Warn("circuit opened",
			zap.String("provider_id", providerID),
			zap.Int("failures", s.failures))
	}
}

// RecordSuccess discards the provider's breaker state entirely. A single
// success fully trusts the provider again.
func (b *Breaker) RecordSuccess(providerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.states, providerID)
}

// States returns a snapshot of every tracked provider's breaker state.
func (b *Breaker) States() map[string]State {
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot := make(map[string]State, len(b.states))
	for id, s := range b.states {
		snapshot[id] = State{
			Failures:    s.failures,
			LastFailure: s.lastFailure,
			Open:        s.open,
		}
	}
	return snapshot
}

// Reset clears all breaker state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.states = make(map[string]*circuitState)
}

// SetClock overrides the breaker's time source. Test use only.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.now = now
}
