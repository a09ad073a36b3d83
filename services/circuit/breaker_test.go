package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestBreaker(t *testing.T) (*Breaker, *time.Time) {
	t.Helper()

	current := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	breaker := NewBreaker(zap.NewNop())
	breaker.SetClock(func() time.Time { return current })
	return breaker, &current
}

func TestBreaker_ClosedByDefault(t *testing.T) {
	breaker, _ := newTestBreaker(t)

	assert.False(t, breaker.IsOpen("openai"))
	assert.Empty(t, breaker.States())
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	breaker, _ := newTestBreaker(t)

	breaker.RecordFailure("openai")
	assert.False(t, breaker.IsOpen("openai"))
	breaker.RecordFailure("openai")
	assert.False(t, breaker.IsOpen("openai"))
	breaker.RecordFailure("openai")
	assert.True(t, breaker.IsOpen("openai"))

	state := breaker.States()["openai"]
	assert.Equal(t, 3, state.Failures)
	assert.True(t, state.Open)
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	breaker, _ := newTestBreaker(t)

	breaker.RecordFailure("openai")
	breaker.RecordFailure("openai")
	breaker.RecordSuccess("openai")

	// The streak restarts: two more failures are not enough to open.
	breaker.RecordFailure("openai")
	breaker.RecordFailure("openai")
	assert.False(t, breaker.IsOpen("openai"))

	breaker.RecordFailure("openai")
	assert.True(t, breaker.IsOpen("openai"))
}

func TestBreaker_SelfHealsAfterCooldown(t *testing.T) {
	breaker, clock := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		breaker.RecordFailure("openai")
	}
	assert.True(t, breaker.IsOpen("openai"))

	*clock = clock.Add(59 * time.Second)
	assert.True(t, breaker.IsOpen("openai"))

	*clock = clock.Add(time.Second)
	assert.False(t, breaker.IsOpen("openai"))

	// Healing resets the failure count, so the full streak is required again.
	breaker.RecordFailure("openai")
	breaker.RecordFailure("openai")
	assert.False(t, breaker.IsOpen("openai"))
	breaker.RecordFailure("openai")
	assert.True(t, breaker.IsOpen("openai"))
}

func TestBreaker_ProvidersAreIndependent(t *testing.T) {
	breaker, _ := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		breaker.RecordFailure("openai")
	}
	assert.True(t, breaker.IsOpen("openai"))
	assert.False(t, breaker.IsOpen("anthropic"))
}

func TestBreaker_Reset(t *testing.T) {
	breaker, _ := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		breaker.RecordFailure("openai")
	}
	breaker.Reset()

	assert.False(t, breaker.IsOpen("openai"))
	assert.Empty(t, breaker.States())
}
