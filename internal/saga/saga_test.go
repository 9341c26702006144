package saga

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/benjaminabbitt/angzarr-core/pb"
)

func newTestSaga() *Base {
	s := &Base{}
	s.Init("table-hand-saga", "table", "hand")
	s.Prepares("HandStarted", func(event *anypb.Any) []pb.Cover {
		return []pb.Cover{pb.NewCover("hand", uuid.Nil, "")}
	})
	s.ReactsTo("HandStarted", func(event *anypb.Any, dests []pb.EventBook) ([]pb.CommandBook, error) {
		return []pb.CommandBook{{
			Cover: pb.NewCover("hand", uuid.Nil, ""),
			Pages: []pb.CommandPage{{Command: &anypb.Any{TypeUrl: "hand.DealCards"}}},
		}}, nil
	})
	return s
}

func TestBase_PrepareDestinations_MatchesBySuffix(t *testing.T) {
	s := newTestSaga()
	source := pb.EventBook{
		Pages: []pb.EventPage{{Event: &anypb.Any{TypeUrl: "table.v1.HandStarted"}}},
	}
	covers := s.PrepareDestinations(source)
	require.Len(t, covers, 1)
	assert.Equal(t, "hand", covers[0].Domain)
}

func TestBase_Execute_ProducesCommands(t *testing.T) {
	s := newTestSaga()
	source := pb.EventBook{
		Pages: []pb.EventPage{{Event: &anypb.Any{TypeUrl: "table.v1.HandStarted"}}},
	}
	cmds, err := s.Execute(source, nil)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "hand", cmds[0].Cover.Domain)
}

func TestBase_Execute_IgnoresUnregisteredEventTypes(t *testing.T) {
	s := newTestSaga()
	source := pb.EventBook{
		Pages: []pb.EventPage{{Event: &anypb.Any{TypeUrl: "table.v1.TableCreated"}}},
	}
	cmds, err := s.Execute(source, nil)
	require.NoError(t, err)
	assert.Empty(t, cmds)
}

func TestBase_HandledTypes(t *testing.T) {
	s := newTestSaga()
	assert.Equal(t, []string{"HandStarted"}, s.HandledTypes())
}
