// Package llmclient is a provider-agnostic LLM client with per-call retry.
// Tier selection and escalation across tiers is the Agent Tier Router's
// job (internal/tier); this package only knows how to resolve a single
// tier to an endpoint and execute one completion call against it.
package llmclient

import "sync"

// EndpointConfig describes one backend a tier can be routed to.
type EndpointConfig struct {
	Tier      string
	Provider  string
	Model     string
	URL       string
	MaxTokens int
}

// Registry resolves a tier name to its configured endpoint.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]*EndpointConfig
}

// NewRegistry builds a Registry from a tier->endpoint map.
func NewRegistry(endpoints map[string]*EndpointConfig) *Registry {
	r := &Registry{endpoints: make(map[string]*EndpointConfig, len(endpoints))}
	for tier, ep := range endpoints {
		r.endpoints[tier] = ep
	}
	return r
}

// GetEndpoint returns the endpoint configured for tier, or nil.
func (r *Registry) GetEndpoint(tier string) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.endpoints[tier]
}

// Set registers or replaces the endpoint for a tier.
func (r *Registry) Set(tier string, ep *EndpointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[tier] = ep
}

// Tiers returns the set of tier names this registry has endpoints for.
func (r *Registry) Tiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tiers := make([]string, 0, len(r.endpoints))
	for t := range r.endpoints {
		tiers = append(tiers, t)
	}
	return tiers
}
