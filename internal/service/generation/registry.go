package generation

import (
	"fmt"
	"sync"

	"vellum/internal/domain/services"
)

// ProviderRegistry routes model names to the provider that serves them.
// Providers are registered once at startup; lookups take a read lock only.
type ProviderRegistry struct {
	providers []services.Provider
	mu        sync.RWMutex
}

// NewProviderRegistry creates an empty provider registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{}
}

// Register adds a provider to the registry.
func (r *ProviderRegistry) Register(p services.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers = append(r.providers, p)
}

// ForModel returns the first registered provider that supports the model.
//
// Examples:
//   - "claude-haiku-4-5-20251001" → anthropic
//   - "lorem-fast" → lorem
func (r *ProviderRegistry) ForModel(model string) (services.Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.providers {
		if p.SupportsModel(model) {
			return p, nil
		}
	}

	return nil, fmt.Errorf("no provider registered for model '%s'", model)
}

// Names returns the names of all registered providers.
func (r *ProviderRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name())
	}
	return names
}
