package embed

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry manages embedding backends and supports fallback embedding. It
// satisfies Embedder itself.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
	primary  string
	fallback string
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
	}
}

// Register adds a backend to the registry. The first registered backend
// becomes the primary by default.
func (r *Registry) Register(name string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = b
	if r.primary == "" {
		r.primary = name
	}
}

// SetPrimary sets the primary backend by name.
func (r *Registry) SetPrimary(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.primary = name
}

// SetFallback sets the fallback backend by name.
func (r *Registry) SetFallback(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = name
}

// Get returns a backend by name, or false if not found.
func (r *Registry) Get(name string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	return b, ok
}

// Primary returns the primary backend, or nil if none configured.
func (r *Registry) Primary() Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backends[r.primary]
}

// Fallback returns the fallback backend, or nil if none configured.
func (r *Registry) Fallback() Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.fallback == "" {
		return nil
	}
	return r.backends[r.fallback]
}

// Backends returns the sorted names of all registered backends.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Embed tries the primary backend first, falling back on error. A cancelled
// context is returned as-is without trying the fallback.
func (r *Registry) Embed(ctx context.Context, text string) ([]float32, error) {
	primary := r.Primary()
	if primary == nil {
		return nil, fmt.Errorf("embed: no primary backend configured")
	}

	vec, err := primary.Embed(ctx, text)
	if err == nil {
		return vec, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("embed: primary %q: %w", primary.Name(), err)
	}

	fallback := r.Fallback()
	if fallback == nil {
		return nil, fmt.Errorf("embed: primary backend %q failed: %w", primary.Name(), err)
	}

	vec, fbErr := fallback.Embed(ctx, text)
	if fbErr != nil {
		return nil, fmt.Errorf("embed: primary %q failed (%v), fallback %q also failed: %w", primary.Name(), err, fallback.Name(), fbErr)
	}
	return vec, nil
}

// HealthCheck runs HealthCheck on every registered backend in name order.
func (r *Registry) HealthCheck(ctx context.Context) []*HealthStatus {
	var out []*HealthStatus
	for _, name := range r.Backends() {
		b, _ := r.Get(name)
		st, err := b.HealthCheck(ctx)
		if err != nil {
			st = &HealthStatus{Backend: b.Name(), Message: err.Error()}
		}
		out = append(out, st)
	}
	return out
}
