package ratelimit

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// windowLength is the fixed admission window per provider.
const windowLength = 60 * time.Second

// window is the per-provider admission state.
type window struct {
	count       int
	start       time.Time
	lastRequest time.Time
}

// Limiter is a per-provider fixed-window admission controller. Allow is a
// non-consuming check; RecordAdmission commits one admission after the caller
// has actually invoked the provider, so a dry-run check never burns budget.
// All map access is serialized; readers never observe torn state.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	logger  *zap.Logger

	// now is injectable for tests
	now func() time.Time
}

// NewLimiter creates an empty limiter.
func NewLimiter(logger *zap.Logger) *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		logger:  logger,
		now:     time.Now,
	}
}

// Allow reports whether a request against the provider may proceed now,
// given its requests-per-minute ceiling. A missing or expired window is reset
// and admits. A non-positive ceiling means the provider is uncapped.
func (l *Limiter) Allow(providerID string, maxPerMinute int) bool {
	if maxPerMinute <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, exists := l.windows[providerID]
	if !exists || now.Sub(w.start) >= windowLength {
		l.windows[providerID] = &window{start: now}
		return true
	}

	if w.count >= maxPerMinute {
		l.logger.Debug("admission rejected",
			zap.String("provider_id", providerID),
			zap.Int("count", w.count),
			zap.Int("max_per_minute", maxPerMinute))
		return false
	}
	return true
}

// RecordAdmission commits one admission for the provider: the window counter
// increments and the last-request stamp refreshes. Called after the provider
// has actually been invoked.
func (l *Limiter) RecordAdmission(providerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, exists := l.windows[providerID]
	if !exists || now.Sub(w.start) >= windowLength {
		w = &window{start: now}
		l.windows[providerID] = w
	}
	w.count++
	w.lastRequest = now
}

// Usage returns the current in-window admission count per provider. Expired
// windows report zero.
func (l *Limiter) Usage() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	usage := make(map[string]int, len(l.windows))
	for id, w := range l.windows {
		if now.Sub(w.start) >= windowLength {
			usage[id] = 0
			continue
		}
		usage[id] = w.count
	}
	return usage
}

// Reset clears all admission state.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.windows = make(map[string]*window)
}

// SetClock overrides the limiter's time source. Test use only.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.now = now
}
