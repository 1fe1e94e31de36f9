// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Faro Contributors

package router

import (
	"context"
	"sync"

	"github.com/faro-dev/faro/internal/catalog"
	faroerr "github.com/faro-dev/faro/pkg/errors"
)

// Adapter translates a generic request into one provider family's actual
// API call and normalizes the result. Adapters own all wire-protocol and
// authentication knowledge; the router never inspects payloads. An adapter
// is expected to carry its own timeout and return an error like any other
// failure, which triggers fallback to the next candidate.
type Adapter interface {
	Invoke(ctx context.Context, candidate catalog.Candidate, req Request) (any, error)
}

// AdapterFunc adapts a plain function to the Adapter interface.
type AdapterFunc func(ctx context.Context, candidate catalog.Candidate, req Request) (any, error)

func (f AdapterFunc) Invoke(ctx context.Context, candidate catalog.Candidate, req Request) (any, error) {
	return f(ctx, candidate, req)
}

// AdapterRegistry maps provider names to their adapters. It implements
// Adapter itself by dispatching on the candidate's provider, so a registry
// can be passed directly to Dispatch. A missing adapter surfaces as a
// per-candidate failure and feeds fallback like any other error.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewAdapterRegistry creates an empty AdapterRegistry.
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter for a provider. Registering the same provider
// twice replaces the earlier adapter.
func (r *AdapterRegistry) Register(provider string, a Adapter) {
	r.mu.Lock()
	r.adapters[provider] = a
	r.mu.Unlock()
}

// Get retrieves the adapter for a provider.
func (r *AdapterRegistry) Get(provider string) (Adapter, error) {
	r.mu.RLock()
	a, ok := r.adapters[provider]
	r.mu.RUnlock()
	if !ok {
		return nil, faroerr.New(faroerr.CodeRouterAdapterNotRegistered,
			"no adapter registered for provider",
			faroerr.FieldProvider(provider))
	}
	return a, nil
}

// Invoke implements Adapter by routing to the candidate provider's
// registered adapter.
func (r *AdapterRegistry) Invoke(ctx context.Context, candidate catalog.Candidate, req Request) (any, error) {
	a, err := r.Get(candidate.Provider)
	if err != nil {
		return nil, err
	}
	return a.Invoke(ctx, candidate, req)
}
