package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benjaminabbitt/angzarr-core/internal/config"
)

func TestStaticDiscovery_ResolvesRegistered(t *testing.T) {
	d := NewStaticDiscovery()
	d.Register(KindAggregate, "game", Endpoint{Address: "localhost:9001", Transport: config.TransportTCP})

	ep, err := d.Resolve(KindAggregate, "game")
	require.NoError(t, err)
	assert.Equal(t, "localhost:9001", ep.Address)
}

func TestStaticDiscovery_ErrorsOnUnregistered(t *testing.T) {
	d := NewStaticDiscovery()
	_, err := d.Resolve(KindAggregate, "missing")
	assert.Error(t, err)
}

func TestEnvDiscovery_ResolvesConfiguredTarget(t *testing.T) {
	d := NewEnvDiscovery(config.TargetConfig{Address: "localhost:9002", Domain: "game"})
	ep, err := d.Resolve(KindAggregate, "game")
	require.NoError(t, err)
	assert.Equal(t, "localhost:9002", ep.Address)
}

func TestEnvDiscovery_RejectsMismatchedDomain(t *testing.T) {
	d := NewEnvDiscovery(config.TargetConfig{Address: "localhost:9002", Domain: "game"})
	_, err := d.Resolve(KindAggregate, "other")
	assert.Error(t, err)
}

func TestEnvDiscovery_ErrorsWithoutAddress(t *testing.T) {
	d := NewEnvDiscovery(config.TargetConfig{})
	_, err := d.Resolve(KindAggregate, "game")
	assert.Error(t, err)
}
