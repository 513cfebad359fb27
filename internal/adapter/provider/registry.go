// Package provider holds the registry that maps provider ids to their
// clients. The clients themselves are external adapters; the core only
// depends on the domain.ProviderClient contract.
package provider

import (
	"github.com/patrimo/valuation-backend/internal/domain"
)

// Registry is a static provider id → client mapping, populated at wiring
// time. Lookups after that point are read-only, so no locking is needed.
type Registry struct {
	clients map[string]domain.ProviderClient
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]domain.ProviderClient)}
}

// Register adds a client under the given provider id, replacing any previous
// registration.
func (r *Registry) Register(providerID string, client domain.ProviderClient) {
	r.clients[providerID] = client
}

// ClientFor implements domain.ProviderRegistry.
func (r *Registry) ClientFor(providerID string) (domain.ProviderClient, error) {
	client, ok := r.clients[providerID]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}
	return client, nil
}
