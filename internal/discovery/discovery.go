// Package discovery resolves a logical component (an aggregate domain, a
// saga, a projector, a process manager) to the network endpoint that
// serves it (spec §2, §4.10). Kubernetes label-watch discovery is the
// abstract collaborator spec.md names but explicitly leaves
// unimplemented; this package only defines the interface it must satisfy
// plus the two concrete forms this runtime actually ships: a static table
// for standalone/embedded mode, and single-target env-based discovery for
// sidecar mode.
//
// Grounded on original_source/src/discovery/unified.rs's static-table
// resolution path and on internal/config's ANGZARR__TARGET__* env surface.
package discovery

import (
	"fmt"

	"github.com/benjaminabbitt/angzarr-core/internal/config"
)

// ComponentKind discriminates what Resolve is being asked to locate.
type ComponentKind string

const (
	KindAggregate      ComponentKind = "aggregate"
	KindSaga           ComponentKind = "saga"
	KindProjector      ComponentKind = "projector"
	KindProcessManager ComponentKind = "process_manager"
)

// Endpoint is a resolved network address plus the transport it expects.
type Endpoint struct {
	Address   string
	Transport config.TransportType
}

// Discovery resolves a (kind, domain) pair to the Endpoint serving it.
type Discovery interface {
	Resolve(kind ComponentKind, domain string) (Endpoint, error)
}

// StaticDiscovery resolves from an in-memory table, populated at process
// startup from whatever wiring the deployment mode (standalone, embedded)
// already knows about.
type StaticDiscovery struct {
	table map[string]Endpoint
}

// NewStaticDiscovery builds an empty StaticDiscovery; use Register to
// populate it.
func NewStaticDiscovery() *StaticDiscovery {
	return &StaticDiscovery{table: map[string]Endpoint{}}
}

// Register adds or replaces the endpoint for (kind, domain).
func (d *StaticDiscovery) Register(kind ComponentKind, domain string, ep Endpoint) {
	d.table[key(kind, domain)] = ep
}

func (d *StaticDiscovery) Resolve(kind ComponentKind, domain string) (Endpoint, error) {
	ep, ok := d.table[key(kind, domain)]
	if !ok {
		return Endpoint{}, fmt.Errorf("discovery: no static endpoint registered for %s %q", kind, domain)
	}
	return ep, nil
}

func key(kind ComponentKind, domain string) string {
	return string(kind) + "/" + domain
}

// EnvDiscovery always resolves to the single ANGZARR__TARGET__* endpoint,
// for single-target sidecar deployments where exactly one ClientLogic
// process is ever reachable (spec §6).
type EnvDiscovery struct {
	target config.TargetConfig
}

// NewEnvDiscovery builds an EnvDiscovery over an already-loaded
// TargetConfig.
func NewEnvDiscovery(target config.TargetConfig) *EnvDiscovery {
	return &EnvDiscovery{target: target}
}

func (d *EnvDiscovery) Resolve(kind ComponentKind, domain string) (Endpoint, error) {
	if d.target.Address == "" {
		return Endpoint{}, fmt.Errorf("discovery: ANGZARR__TARGET__ADDRESS not configured")
	}
	if d.target.Domain != "" && domain != d.target.Domain {
		return Endpoint{}, fmt.Errorf("discovery: single target is configured for domain %q, not %q", d.target.Domain, domain)
	}
	return Endpoint{Address: d.target.Address, Transport: config.TransportTCP}, nil
}
