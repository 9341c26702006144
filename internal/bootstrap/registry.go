package bootstrap

import (
	"fmt"
	"sync"

	"github.com/benjaminabbitt/angzarr-core/internal/aggregate"
)

// ClientLogicRegistry is the in-process form of the Resolver seam: a
// domain-keyed table an embedding Go program populates directly, grounded
// on discovery.StaticDiscovery's map-table shape. This is the "embedded"
// deployment mode from spec §6 — the engine and the business logic share
// one process and one binary.
type ClientLogicRegistry struct {
	mu    sync.RWMutex
	table map[string]aggregate.ClientLogic
}

// NewClientLogicRegistry builds an empty registry.
func NewClientLogicRegistry() *ClientLogicRegistry {
	return &ClientLogicRegistry{table: map[string]aggregate.ClientLogic{}}
}

// Register adds or replaces the ClientLogic serving domain.
func (r *ClientLogicRegistry) Register(domain string, logic aggregate.ClientLogic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table[domain] = logic
}

// Resolve implements Resolver against the registry table.
func (r *ClientLogicRegistry) Resolve(domain string) (aggregate.ClientLogic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	logic, ok := r.table[domain]
	if !ok {
		return nil, fmt.Errorf("bootstrap: no client logic registered for domain %q", domain)
	}
	return logic, nil
}
