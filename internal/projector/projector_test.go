package projector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/benjaminabbitt/angzarr-core/pb"
)

func newTestProjector() *Base {
	b := &Base{}
	b.Init("output-projector", []string{"player", "table"})
	b.Projects("PlayerRegistered", func(event *anypb.Any) (*anypb.Any, error) {
		return &anypb.Any{TypeUrl: "projection.PlayerSummary", Value: []byte("ok")}, nil
	})
	return b
}

func TestBase_Handle_ReturnsMatchedProjection(t *testing.T) {
	b := newTestProjector()
	book := pb.EventBook{
		Pages: []pb.EventPage{{Sequence: 3, Event: &anypb.Any{TypeUrl: "player.v1.PlayerRegistered"}}},
	}
	proj, err := b.Handle(context.Background(), book)
	require.NoError(t, err)
	assert.Equal(t, "output-projector", proj.Projector)
	require.NotNil(t, proj.Projection)
	assert.Equal(t, "projection.PlayerSummary", proj.Projection.TypeUrl)
	assert.Equal(t, uint64(3), proj.Sequence)
}

func TestBase_Handle_DefaultsWhenNoHandlerMatches(t *testing.T) {
	b := newTestProjector()
	book := pb.EventBook{
		Pages: []pb.EventPage{{Sequence: 5, Event: &anypb.Any{TypeUrl: "table.v1.TableCreated"}}},
	}
	proj, err := b.Handle(context.Background(), book)
	require.NoError(t, err)
	assert.Nil(t, proj.Projection)
	assert.Equal(t, uint64(5), proj.Sequence)
}

func TestBase_Domains(t *testing.T) {
	b := newTestProjector()
	assert.ElementsMatch(t, []string{"player", "table"}, b.Domains())
}
