package aggregate

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/benjaminabbitt/angzarr-core/internal/bus"
	"github.com/benjaminabbitt/angzarr-core/internal/dlq"
	"github.com/benjaminabbitt/angzarr-core/internal/model"
	"github.com/benjaminabbitt/angzarr-core/pb"
)

// echoLogic appends one event per invocation and never fails. These tests
// target the merge-strategy dispatch and correlation-id helpers directly.
type echoLogic struct{}

func (echoLogic) Handle(ctx context.Context, cmd ContextualCommand) (BusinessResponse, error) {
	return BusinessResponse{Events: []pb.EventPage{{Event: &anypb.Any{TypeUrl: "test.Echo"}}}}, nil
}

func (echoLogic) Replay(ctx context.Context, req ReplayRequest) (*anypb.Any, error) {
	return nil, ErrReplayUnimplemented
}

func TestResolveConflict_StrictRejectsMismatch(t *testing.T) {
	p := &Pipeline{deps: &Context{}}
	cmd := pb.CommandBook{
		Cover: pb.NewCover("game", uuid.New(), "corr-1"),
		Pages: []pb.CommandPage{{Sequence: 5, MergeStrategy: pb.MergeStrict}},
	}
	err := p.resolveConflict(context.Background(), echoLogic{}, cmd, pb.EventBook{}, 5, 3)
	require.Error(t, err)
	var st *model.Status
	require.ErrorAs(t, err, &st)
	assert.Equal(t, model.CodeFailedPrecondition, st.Code)
}

func TestResolveConflict_AggregateHandlesSkipsValidation(t *testing.T) {
	p := &Pipeline{deps: &Context{}}
	cmd := pb.CommandBook{
		Cover: pb.NewCover("game", uuid.New(), "corr-1"),
		Pages: []pb.CommandPage{{Sequence: 5, MergeStrategy: pb.MergeAggregateHandles}},
	}
	err := p.resolveConflict(context.Background(), echoLogic{}, cmd, pb.EventBook{}, 5, 3)
	assert.NoError(t, err)
}

func TestResolveConflict_CommutativeDegradesWhenReplayUnimplemented(t *testing.T) {
	p := &Pipeline{deps: &Context{}}
	cmd := pb.CommandBook{
		Cover: pb.NewCover("game", uuid.New(), "corr-1"),
		Pages: []pb.CommandPage{{Sequence: 5, MergeStrategy: pb.MergeCommutative}},
	}
	err := p.resolveConflict(context.Background(), echoLogic{}, cmd, pb.EventBook{}, 5, 3)
	require.Error(t, err)
	var st *model.Status
	require.ErrorAs(t, err, &st)
	assert.Equal(t, model.CodeFailedPrecondition, st.Code)
}

// manualBus implements bus.EventBus, routing SendToDLQ to a captured
// publisher and panicking if Publish/Subscribe are ever called — this test
// only exercises the MANUAL merge-strategy's DLQ path.
type manualBus struct {
	publisher dlq.Publisher
}

func (manualBus) Publish(ctx context.Context, book pb.EventBook) error { panic("unused in this test") }
func (manualBus) Subscribe(pattern string, opts bus.SubscriptionOptions, handler bus.Handler) (func(), error) {
	panic("unused in this test")
}
func (b manualBus) SendToDLQ(ctx context.Context, letter pb.DeadLetter) error {
	return b.publisher.Publish(ctx, letter)
}

func TestResolveConflict_ManualRoutesToDLQ(t *testing.T) {
	var published *pb.DeadLetter
	publisher := dlq.NewBusPublisher(func(ctx context.Context, domain string, letter pb.DeadLetter) error {
		published = &letter
		return nil
	})
	deps := &Context{Bus: manualBus{publisher: publisher}}
	p := &Pipeline{deps: deps}
	cmd := pb.CommandBook{
		Cover: pb.NewCover("game", uuid.New(), "corr-1"),
		Pages: []pb.CommandPage{{Sequence: 5, MergeStrategy: pb.MergeManual}},
	}
	err := p.resolveConflict(context.Background(), echoLogic{}, cmd, pb.EventBook{}, 5, 3)
	require.Error(t, err)
	var st *model.Status
	require.ErrorAs(t, err, &st)
	assert.Equal(t, model.CodeAborted, st.Code)
	require.NotNil(t, published)
}

func TestSynthesizeCorrelationID_Deterministic(t *testing.T) {
	root := uuid.New()
	cmd := pb.CommandBook{
		Cover: pb.NewCover("game", root, ""),
		Pages: []pb.CommandPage{{Command: &anypb.Any{TypeUrl: "test.Cmd", Value: []byte("x")}}},
	}
	a := synthesizeCorrelationID(cmd)
	b := synthesizeCorrelationID(cmd)
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a)
}

func TestValidateEditionName_RejectsWhitespace(t *testing.T) {
	assert.NoError(t, validateEditionName(""))
	assert.NoError(t, validateEditionName("promo-2026"))
	assert.Error(t, validateEditionName("has space"))
}
