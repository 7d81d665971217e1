package auth

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kbukum/webquery/query"
)

// Registry is a thread-safe set of named authorizers. A client that talks
// to several services with different credentials registers one per
// service and requests select it by name.
//
// Usage:
//
//	reg := auth.NewRegistry()
//	reg.Register("billing", auth.Bearer(token))
//	reg.Register("search", auth.APIKey("X-API-Key", key, auth.InHeader))
//
//	a, ok := reg.Get("billing")
type Registry struct {
	mu          sync.RWMutex
	authorizers map[string]query.Authorizer
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{authorizers: make(map[string]query.Authorizer)}
}

// NewRegistryFromConfig builds an authorizer for every named config.
func NewRegistryFromConfig(ctx context.Context, configs map[string]Config) (*Registry, error) {
	r := NewRegistry()
	for name, cfg := range configs {
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("auth: credentials %q: %w", name, err)
		}
		a, err := cfg.Authorizer(ctx)
		if err != nil {
			return nil, fmt.Errorf("auth: credentials %q: %w", name, err)
		}
		if a != nil {
			r.Register(name, a)
		}
	}
	return r, nil
}

// Register adds or replaces the authorizer stored under name.
func (r *Registry) Register(name string, a query.Authorizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authorizers[name] = a
}

// Get returns the authorizer registered under name.
func (r *Registry) Get(name string) (query.Authorizer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.authorizers[name]
	return a, ok
}

// MustGet returns the authorizer registered under name.
// Panics if the name is not registered.
func (r *Registry) MustGet(name string) query.Authorizer {
	a, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("auth: credentials %q not registered", name))
	}
	return a
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.authorizers))
	for name := range r.authorizers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
