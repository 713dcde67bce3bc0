package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/ramadascd1-rgb/FUNtastic/internal/content"
	"github.com/ramadascd1-rgb/FUNtastic/pkg/provider/live"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// LiveFactory builds a live provider from its config entry.
type LiveFactory func(ctx context.Context, entry ProviderEntry) (live.Provider, error)

// ContentFactory builds a content backend from its config entry. cfg carries
// the shared content settings such as the video poll interval.
type ContentFactory func(ctx context.Context, entry ProviderEntry, cfg ContentConfig) (content.Backend, error)

// Registry maps provider names to constructors. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	live    map[string]LiveFactory
	content map[string]ContentFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		live:    make(map[string]LiveFactory),
		content: make(map[string]ContentFactory),
	}
}

// RegisterLive registers a live provider factory under name. A later call
// with the same name replaces the earlier one.
func (r *Registry) RegisterLive(name string, factory LiveFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = factory
}

// RegisterContent registers a content backend factory under name.
func (r *Registry) RegisterContent(name string, factory ContentFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.content[name] = factory
}

// CreateLive instantiates the live provider registered under entry.Name.
// Returns [ErrProviderNotRegistered] if there is none.
func (r *Registry) CreateLive(ctx context.Context, entry ProviderEntry) (live.Provider, error) {
	r.mu.RLock()
	factory, ok := r.live[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: live/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(ctx, entry)
}

// CreateContent instantiates the content backend registered under
// entry.Name.
func (r *Registry) CreateContent(ctx context.Context, entry ProviderEntry, cfg ContentConfig) (content.Backend, error) {
	r.mu.RLock()
	factory, ok := r.content[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: content/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(ctx, entry, cfg)
}

// LiveNames returns the registered live provider names.
func (r *Registry) LiveNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.live))
}

// ContentNames returns the registered content backend names.
func (r *Registry) ContentNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.content))
}
