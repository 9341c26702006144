package sqlitestore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/benjaminabbitt/angzarr-core/internal/model"
	"github.com/benjaminabbitt/angzarr-core/pb"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.db.Close() })
	return s
}

func TestAppendAndLoad_BasicRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	root := uuid.New()

	pages := []pb.EventPage{
		{Event: &anypb.Any{TypeUrl: "type.googleapis.com/orders.Created", Value: []byte("p0")}},
		{Event: &anypb.Any{TypeUrl: "type.googleapis.com/orders.Updated", Value: []byte("p1")}},
	}
	require.NoError(t, s.Append(ctx, "orders", "", root, pages, "corr-1"))

	book, err := s.Load(ctx, "orders", "", root, 0)
	require.NoError(t, err)
	require.Len(t, book.Pages, 2)
	require.Equal(t, uint64(0), book.Pages[0].Sequence)
	require.Equal(t, uint64(1), book.Pages[1].Sequence)
	require.Equal(t, "p0", string(book.Pages[0].Event.Value))
}

func TestAppend_ConflictingSequence(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	root := uuid.New()

	require.NoError(t, s.Append(ctx, "orders", "", root, []pb.EventPage{
		{Event: &anypb.Any{TypeUrl: "t", Value: []byte("a")}},
		{Event: &anypb.Any{TypeUrl: "t", Value: []byte("b")}},
		{Event: &anypb.Any{TypeUrl: "t", Value: []byte("c")}},
	}, "corr-1"))

	err := s.Append(ctx, "orders", "", root, []pb.EventPage{
		{Sequence: 2, Event: &anypb.Any{TypeUrl: "t", Value: []byte("d")}},
	}, "corr-2")
	require.Error(t, err)
	var conflict *model.ConflictingSequenceError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, uint64(3), conflict.Expected)
	require.Equal(t, uint64(2), conflict.Actual)
}

func TestLoad_EditionCompositeRead(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	root := uuid.New()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, "orders", "", root, []pb.EventPage{
			{Event: &anypb.Any{TypeUrl: "t", Value: []byte{byte(i)}}},
		}, "corr-main"))
	}

	// edition "trial" diverges at sequence 3: append 3,4,5 under the edition.
	require.NoError(t, s.Append(ctx, "orders", "trial", root, []pb.EventPage{
		{Sequence: 3, Event: &anypb.Any{TypeUrl: "t", Value: []byte("t3")}},
	}, "corr-trial"))
	require.NoError(t, s.Append(ctx, "orders", "trial", root, []pb.EventPage{
		{Sequence: 4, Event: &anypb.Any{TypeUrl: "t", Value: []byte("t4")}},
	}, "corr-trial"))
	require.NoError(t, s.Append(ctx, "orders", "trial", root, []pb.EventPage{
		{Sequence: 5, Event: &anypb.Any{TypeUrl: "t", Value: []byte("t5")}},
	}, "corr-trial"))

	book, err := s.Load(ctx, "orders", "trial", root, 0)
	require.NoError(t, err)
	require.Len(t, book.Pages, 6)
	for i, p := range book.Pages {
		require.Equal(t, uint64(i), p.Sequence)
	}
	require.Equal(t, "t3", string(book.Pages[3].Event.Value))
}

func TestDeleteEdition_RefusesMainTimeline(t *testing.T) {
	s := openTest(t)
	err := s.DeleteEdition(context.Background(), "orders", "")
	require.Error(t, err)
}
