package module

import (
	"fmt"
	"sort"
	"sync"
)

// Config represents module-specific configuration (opaque to the runtime).
type Config map[string]any

// String returns a string option, or def when it is unset or not a string.
func (c Config) String(key, def string) string {
	if v, ok := c[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Bool returns a boolean option, or def when it is unset or not a bool.
func (c Config) Bool(key string, def bool) bool {
	if v, ok := c[key].(bool); ok {
		return v
	}
	return def
}

// Factory constructs a module with the provided configuration.
type Factory func(Config) (Module, error)

// Registry maintains known module factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register installs a module factory. Returns an error if the ID already exists.
func (r *Registry) Register(id string, factory Factory) error {
	if id == "" {
		return fmt.Errorf("module: id is required")
	}
	if factory == nil {
		return fmt.Errorf("module: factory is required for %s", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("module: %s already registered", id)
	}
	r.factories[id] = factory
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(id string, factory Factory) {
	if err := r.Register(id, factory); err != nil {
		panic(err)
	}
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[id]
	return ok
}

// Resolve constructs a module by ID and checks that it reports the same ID.
func (r *Registry) Resolve(id string, cfg Config) (Module, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("module: unknown id %s", id)
	}
	mod, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("module: build %s: %w", id, err)
	}
	info := mod.Info()
	if err := info.Validate(); err != nil {
		return nil, err
	}
	if info.ID != id {
		return nil, fmt.Errorf("module: factory for %s built %s", id, info.ID)
	}
	return mod, nil
}

// IDs returns a sorted list of registered module identifiers.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Describe builds every registered module with default configuration and
// returns their info blocks sorted by ID.
func (r *Registry) Describe() ([]Info, error) {
	ids := r.IDs()
	infos := make([]Info, 0, len(ids))
	for _, id := range ids {
		mod, err := r.Resolve(id, nil)
		if err != nil {
			return nil, err
		}
		infos = append(infos, mod.Info())
	}
	return infos, nil
}
