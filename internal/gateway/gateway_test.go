package gateway

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/benjaminabbitt/angzarr-core/pb"
)

func TestEnsureCorrelationID_PreservesExisting(t *testing.T) {
	cmd := pb.CommandBook{Cover: pb.NewCover("game", uuid.New(), "explicit-id")}
	got, id := EnsureCorrelationID(cmd)
	assert.Equal(t, "explicit-id", id)
	assert.Equal(t, "explicit-id", got.Cover.CorrelationID)
}

func TestEnsureCorrelationID_SynthesizesDeterministically(t *testing.T) {
	root := uuid.New()
	cmd := pb.CommandBook{
		Cover: pb.NewCover("game", root, ""),
		Pages: []pb.CommandPage{{Command: nil}},
	}
	_, idA := EnsureCorrelationID(cmd)
	_, idB := EnsureCorrelationID(cmd)
	assert.Equal(t, idA, idB)
	assert.NotEmpty(t, idA)
}

func TestCount_ZeroMeansUnlimited(t *testing.T) {
	stop := Count(0)
	assert.False(t, stop(1000))
}

func TestCount_StopsAtThreshold(t *testing.T) {
	stop := Count(3)
	assert.False(t, stop(1))
	assert.False(t, stop(2))
	assert.True(t, stop(3))
	assert.True(t, stop(4))
}

func TestUnlimited_NeverStops(t *testing.T) {
	stop := Unlimited()
	assert.False(t, stop(0))
	assert.False(t, stop(1_000_000))
}
