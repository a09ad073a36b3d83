package providers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestStaticOracle(t *testing.T) {
	oracle := NewStaticOracle(map[string]HealthStatus{
		"alpha": HealthHealthy,
		"beta":  HealthDegraded,
	})

	assert.Equal(t, HealthHealthy, oracle.Classify("alpha"))
	assert.Equal(t, HealthDegraded, oracle.Classify("beta"))
	assert.Equal(t, HealthUnknown, oracle.Classify("never-seen"))

	assert.True(t, oracle.IsHealthy("alpha"))
	assert.False(t, oracle.IsHealthy("beta"))
	assert.False(t, oracle.IsHealthy("never-seen"))

	oracle.Set("beta", HealthHealthy)
	assert.True(t, oracle.IsHealthy("beta"))
}

func TestProbeOracle_SweepCachesClassifications(t *testing.T) {
	catalog := NewStaticCatalog(
		ProviderDescriptor{ID: "alpha", Enabled: true},
		ProviderDescriptor{ID: "beta", Enabled: true},
		ProviderDescriptor{ID: "disabled", Enabled: false},
	)

	var mu sync.Mutex
	probed := make(map[string]int)
	probe := func(ctx context.Context, d ProviderDescriptor) HealthStatus {
		mu.Lock()
		probed[d.ID]++
		mu.Unlock()
		if d.ID == "alpha" {
			return HealthHealthy
		}
		return HealthUnhealthy
	}

	oracle := NewProbeOracle(catalog, probe, time.Minute, zap.NewNop())
	assert.Equal(t, HealthUnknown, oracle.Classify("alpha"))

	oracle.sweep(context.Background())

	assert.True(t, oracle.IsHealthy("alpha"))
	assert.Equal(t, HealthUnhealthy, oracle.Classify("beta"))
	assert.Equal(t, HealthUnknown, oracle.Classify("disabled"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, probed["alpha"])
	assert.Equal(t, 1, probed["beta"])
	assert.Zero(t, probed["disabled"])
}

func TestProbeOracle_StartRunsImmediateSweep(t *testing.T) {
	catalog := NewStaticCatalog(ProviderDescriptor{ID: "alpha", Enabled: true})

	swept := make(chan struct{}, 1)
	probe := func(ctx context.Context, d ProviderDescriptor) HealthStatus {
		select {
		case swept <- struct{}{}:
		default:
		}
		return HealthHealthy
	}

	oracle := NewProbeOracle(catalog, probe, time.Hour, zap.NewNop())
	oracle.Start(context.Background())
	defer oracle.Stop()

	select {
	case <-swept:
	case <-time.After(time.Second):
		t.Fatal("expected an immediate sweep after Start")
	}

	assert.Eventually(t, func() bool {
		return oracle.IsHealthy("alpha")
	}, time.Second, 10*time.Millisecond)
}

func TestProbeOracle_StopIsIdempotent(t *testing.T) {
	catalog := NewStaticCatalog()
	oracle := NewProbeOracle(catalog, func(ctx context.Context, d ProviderDescriptor) HealthStatus {
		return HealthHealthy
	}, time.Hour, zap.NewNop())

	// Stop without Start is a no-op.
	oracle.Stop()

	oracle.Start(context.Background())
	oracle.Start(context.Background())
	oracle.Stop()
	oracle.Stop()
}
