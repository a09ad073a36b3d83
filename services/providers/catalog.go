package providers

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrProviderNotFound is returned when a provider is not in the catalog
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when upserting a duplicate ID
	// through Register rather than Upsert
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Catalog supplies the set of enabled providers and their configuration.
// Implementations must return a consistent snapshot: the returned slice and
// descriptors are copies the caller may hold for the duration of a route call.
type Catalog interface {
	// EnabledProviders returns all enabled providers in catalog order.
	EnabledProviders(ctx context.Context) ([]ProviderDescriptor, error)

	// Get returns the descriptor for a provider ID, enabled or not.
	Get(ctx context.Context, id string) (ProviderDescriptor, error)
}

// StaticCatalog is an in-memory, admin-updatable Catalog. Registration order
// is preserved: EnabledProviders returns descriptors in the order they were
// first registered, which is the routing tie-break order.
type StaticCatalog struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]ProviderDescriptor
}

// NewStaticCatalog creates a catalog pre-populated with the given descriptors.
func NewStaticCatalog(descriptors ...ProviderDescriptor) *StaticCatalog {
	c := &StaticCatalog{
		byID: make(map[string]ProviderDescriptor),
	}
	for _, d := range descriptors {
		_ = c.Register(d)
	}
	return c
}

// Register adds a new provider. Registering an existing ID is an error;
// use Upsert to replace.
func (c *StaticCatalog) Register(d ProviderDescriptor) error {
	if d.ID == "" {
		return errors.New("provider ID cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byID[d.ID]; exists {
		return ErrProviderAlreadyRegistered
	}
	c.byID[d.ID] = d
	c.order = append(c.order, d.ID)
	return nil
}

// Upsert inserts or replaces a provider descriptor, keeping its original
// position in catalog order when it already exists.
func (c *StaticCatalog) Upsert(d ProviderDescriptor) error {
	if d.ID == "" {
		return errors.New("provider ID cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byID[d.ID]; !exists {
		c.order = append(c.order, d.ID)
	}
	c.byID[d.ID] = d
	return nil
}

// Remove deletes a provider from the catalog.
func (c *StaticCatalog) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byID[id]; !exists {
		return ErrProviderNotFound
	}
	delete(c.byID, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetEnabled toggles a provider's participation in routing.
func (c *StaticCatalog) SetEnabled(id string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, exists := c.byID[id]
	if !exists {
		return ErrProviderNotFound
	}
	d.Enabled = enabled
	c.byID[id] = d
	return nil
}

// EnabledProviders implements Catalog.
func (c *StaticCatalog) EnabledProviders(ctx context.Context) ([]ProviderDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	enabled := make([]ProviderDescriptor, 0, len(c.order))
	for _, id := range c.order {
		if d := c.byID[id]; d.Enabled {
			enabled = append(enabled, d)
		}
	}
	return enabled, nil
}

// Get implements Catalog.
func (c *StaticCatalog) Get(ctx context.Context, id string) (ProviderDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, exists := c.byID[id]
	if !exists {
		return ProviderDescriptor{}, ErrProviderNotFound
	}
	return d, nil
}

// All returns every descriptor in catalog order, enabled or not.
func (c *StaticCatalog) All() []ProviderDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	all := make([]ProviderDescriptor, 0, len(c.order))
	for _, id := range c.order {
		all = append(all, c.byID[id])
	}
	return all
}

// Count returns the number of registered providers.
func (c *StaticCatalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.byID)
}
