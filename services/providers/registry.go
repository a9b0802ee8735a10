package providers

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")

	// ErrNilProvider is returned when registering a nil provider
	ErrNilProvider = errors.New("provider cannot be nil")
)

// Registry holds the provider variants available to the process, keyed by kind.
// It is populated at startup and read by the router.
type Registry struct {
	mu        sync.RWMutex
	providers map[Kind]Provider
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[Kind]Provider),
	}
}

// Register registers a provider instance under its kind
func (r *Registry) Register(provider Provider) error {
	if provider == nil {
		return ErrNilProvider
	}

	kind := provider.Kind()
	if kind == "" {
		return errors.New("provider kind cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[kind]; exists {
		return ErrProviderAlreadyRegistered
	}
	r.providers[kind] = provider

	return nil
}

// Get retrieves a provider by kind
func (r *Registry) Get(kind Kind) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.providers[kind]
	if !exists {
		return nil, ErrProviderNotFound
	}

	return provider, nil
}

// Has reports whether a provider of the given kind is registered
func (r *Registry) Has(kind Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.providers[kind]
	return exists
}

// Kinds returns the registered kinds in sorted order
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.providers))
	for kind := range r.providers {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return kinds
}

// Count returns the number of registered providers
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}

// Summary reports, per registered kind, whether its credential is configured
func (r *Registry) Summary() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]bool, len(r.providers))
	for kind, provider := range r.providers {
		out[string(kind)] = provider.HasCredential()
	}
	return out
}
