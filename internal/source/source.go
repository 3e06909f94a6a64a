// Package source defines the plug-in contract every scholarship site
// scraper implements, plus a registry sources are looked up by ID
// (SPEC_FULL.md §4.8).
package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/scholargate/scholargate/internal/types"
)

// Adapter is the three-method contract each source implements.
// Adapters are constructed without a store handle, so they cannot
// touch the store even by mistake — the anti-synthesis and
// rate-limiting invariants of spec.md §4.8 are enforced by the types
// an adapter is given access to, not by convention.
type Adapter interface {
	// Identifier returns the source's stable ID.
	Identifier() string

	// Fetch extracts candidate records from the upstream source. It
	// must route every HTTP call through the fetcher/rate-limiter pair
	// it was constructed with, never dial out directly.
	Fetch(ctx context.Context) ([]*types.CandidateRecord, error)

	// BaseURL is used to resolve relative application URLs.
	BaseURL() string
}

// Registry looks adapters up by source ID, grounded on the teacher's
// plugin registry shape (register-by-name, lookup-by-name).
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its own Identifier().
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Identifier()] = a
}

// Get returns the adapter for id, or an error if none is registered.
func (r *Registry) Get(id string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrNoAdapter, id)
	}
	return a, nil
}

// IDs returns every registered source ID.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		out = append(out, id)
	}
	return out
}
