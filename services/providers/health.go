package providers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthOracle classifies the current health of a provider. The classification
// is advisory: routing uses it to order candidates, not to hard-exclude them.
type HealthOracle interface {
	// Classify returns the current classification for a provider ID.
	// Providers the oracle has never observed classify as HealthUnknown.
	Classify(providerID string) HealthStatus

	// IsHealthy reports whether the provider currently classifies as healthy.
	IsHealthy(providerID string) bool
}

// StaticOracle is a manually-driven HealthOracle, useful for tests and for
// operator overrides.
type StaticOracle struct {
	mu       sync.RWMutex
	statuses map[string]HealthStatus
}

// NewStaticOracle creates an oracle with the given initial classifications.
func NewStaticOracle(statuses map[string]HealthStatus) *StaticOracle {
	copied := make(map[string]HealthStatus, len(statuses))
	for id, s := range statuses {
		copied[id] = s
	}
	return &StaticOracle{statuses: copied}
}

// Set records a classification for a provider.
func (o *StaticOracle) Set(providerID string, status HealthStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses[providerID] = status
}

// Classify implements HealthOracle.
func (o *StaticOracle) Classify(providerID string) HealthStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if s, ok := o.statuses[providerID]; ok {
		return s
	}
	return HealthUnknown
}

// IsHealthy implements HealthOracle.
func (o *StaticOracle) IsHealthy(providerID string) bool {
	return o.Classify(providerID) == HealthHealthy
}

// Probe checks one provider and returns its classification. Probes should
// honor the context deadline; a probe that cannot decide returns HealthUnknown.
type Probe func(ctx context.Context, d ProviderDescriptor) HealthStatus

// ProbeOracle periodically probes every cataloged provider in the background
// and serves the cached classification to routing calls.
type ProbeOracle struct {
	catalog  Catalog
	probe    Probe
	interval time.Duration
	logger   *zap.Logger

	mu       sync.RWMutex
	statuses map[string]HealthStatus

	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewProbeOracle creates a probe-driven oracle. It does not probe until
// Start is called; until then every provider classifies as HealthUnknown.
func NewProbeOracle(catalog Catalog, probe Probe, interval time.Duration, logger *zap.Logger) *ProbeOracle {
	return &ProbeOracle{
		catalog:  catalog,
		probe:    probe,
		interval: interval,
		logger:   logger,
		statuses: make(map[string]HealthStatus),
	}
}

// Start begins the periodic probe loop in a goroutine. An immediate sweep
// runs before the first tick so routing does not start blind.
func (o *ProbeOracle) Start(ctx context.Context) {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return
	}
	o.started = true
	ctx, o.cancel = context.WithCancel(ctx)
	o.done = make(chan struct{})
	o.mu.Unlock()

	o.logger.Info("started health probe worker", zap.Duration("interval", o.interval))

	go func() {
		defer close(o.done)

		o.sweep(ctx)

		ticker := time.NewTicker(o.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				o.sweep(ctx)
			case <-ctx.Done():
				o.logger.Info("stopping health probe worker")
				return
			}
		}
	}()
}

// Stop terminates the probe loop and waits for it to exit.
func (o *ProbeOracle) Stop() {
	o.mu.Lock()
	cancel, done, started := o.cancel, o.done, o.started
	o.started = false
	o.mu.Unlock()

	if !started {
		return
	}
	cancel()
	<-done
}

// sweep probes every enabled provider once and caches the results.
func (o *ProbeOracle) sweep(ctx context.Context) {
	descriptors, err := o.catalog.EnabledProviders(ctx)
	if err != nil {
		o.logger.Error("health sweep failed to list providers", zap.Error(err))
		return
	}

	for _, d := range descriptors {
		status := o.probe(ctx, d)

		o.mu.Lock()
		previous := o.statuses[d.ID]
		o.statuses[d.ID] = status
		o.mu.Unlock()

		if previous != "" && previous != status {
			o.logger.Warn("provider health changed",
				zap.String("provider_id", d.ID),
				zap.String("from", string(previous)),
				zap.String("to", string(status)))
		}
	}
}

// Classify implements HealthOracle.
func (o *ProbeOracle) Classify(providerID string) HealthStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if s, ok := o.statuses[providerID]; ok {
		return s
	}
	return HealthUnknown
}

// IsHealthy implements HealthOracle.
func (o *ProbeOracle) IsHealthy(providerID string) bool {
	return o.Classify(providerID) == HealthHealthy
}
