// Package gateway implements the thin external command surface (spec
// §4.10): a unary execute, and three streaming variants that differ only
// in their termination predicate. The gateway subscribes to the
// correlation-filtered event stream before forwarding the command, so no
// event published between subscribe and forward is missed.
package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"
	grpcstatuspkg "google.golang.org/grpc/status"

	"github.com/benjaminabbitt/angzarr-core/internal/aggregate"
	"github.com/benjaminabbitt/angzarr-core/internal/bus"
	"github.com/benjaminabbitt/angzarr-core/internal/logging"
	"github.com/benjaminabbitt/angzarr-core/internal/transport/grpcstatus"
	"github.com/benjaminabbitt/angzarr-core/pb"
)

// correlationNamespace is uuid_v5(DNS, "angzarr.dev"), matching the same
// derivation the aggregate pipeline falls back to (spec §4.10).
var correlationNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("angzarr.dev"))

// defaultStreamTimeout bounds execute_stream when the caller doesn't
// specify one.
const defaultStreamTimeout = 30 * time.Second

// Gateway is the thin unary/streaming entry point in front of one
// Pipeline.
type Gateway struct {
	pipeline *aggregate.Pipeline
	bus      bus.EventBus
}

// New builds a Gateway over an aggregate Pipeline and the EventBus used to
// subscribe streaming callers to live delivery.
func New(pipeline *aggregate.Pipeline, b bus.EventBus) *Gateway {
	return &Gateway{pipeline: pipeline, bus: b}
}

// EnsureCorrelationID synthesizes cover.CorrelationID via
// uuid_v5(angzarr.dev-namespace, canonical(command)) when the caller left
// it empty, returning the (possibly unchanged) command and the id callers
// should use to filter subsequent streams.
func EnsureCorrelationID(cmd pb.CommandBook) (pb.CommandBook, string) {
	if cmd.Cover.CorrelationID != "" {
		return cmd, cmd.Cover.CorrelationID
	}
	id := synthesize(cmd)
	cmd.Cover.CorrelationID = id
	return cmd, id
}

func synthesize(cmd pb.CommandBook) string {
	var payload []byte
	payload = append(payload, []byte(cmd.Cover.Domain)...)
	payload = append(payload, cmd.Cover.Root[:]...)
	for _, p := range cmd.Pages {
		if p.Command != nil {
			payload = append(payload, []byte(p.Command.TypeUrl)...)
			payload = append(payload, p.Command.Value...)
		}
	}
	return uuid.NewSHA1(correlationNamespace, payload).String()
}

// Execute is the unary entry point: forward and return only the immediate
// response.
func (g *Gateway) Execute(ctx context.Context, cmd pb.CommandBook) (pb.CommandResponse, string, error) {
	cmd, correlationID := EnsureCorrelationID(cmd)
	resp, err := g.pipeline.ExecuteDurable(ctx, cmd)
	return resp, correlationID, err
}

// ExecuteStatus adapts Execute for a gRPC-facing caller: the error, if
// any, is pre-converted to a *status.Status via grpcstatus so a handler
// can call resp.Err() (or status.FromError) without re-deriving the code.
func (g *Gateway) ExecuteStatus(ctx context.Context, cmd pb.CommandBook) (pb.CommandResponse, string, *grpcstatuspkg.Status) {
	resp, correlationID, err := g.Execute(ctx, cmd)
	return resp, correlationID, grpcstatus.ToGRPCStatus(err)
}

// StopPredicate decides whether a streaming call should terminate after
// having delivered n total responses (including the immediate one).
type StopPredicate func(n int) bool

// Unlimited never stops on its own (the stream still ends on ctx
// cancellation or the caller's deadline).
func Unlimited() StopPredicate { return func(int) bool { return false } }

// Count stops once n total responses have been delivered; 0 means
// unlimited, matching execute_stream_response_count's documented
// semantics (spec §4.10).
func Count(n int) StopPredicate {
	if n <= 0 {
		return Unlimited()
	}
	return func(delivered int) bool { return delivered >= n }
}

// StreamItem is one element of an execute_stream response: either the
// immediate unary response (Response set, Event unset) or a subsequent
// matching event book.
type StreamItem struct {
	Response *pb.CommandResponse
	Event    *pb.EventBook
}

// ExecuteStream forwards cmd and streams subsequent matching events on the
// returned channel — the immediate response first, then live events with
// a matching correlation_id — until stop(n) is true, ctx is cancelled, or
// timeout elapses (0 means defaultStreamTimeout). It subscribes before
// forwarding, per spec §4.10's ordering requirement, so no event racing
// the command response is missed. The channel is closed when the stream
// ends; a non-nil error from Execute itself is returned directly instead.
func (g *Gateway) ExecuteStream(ctx context.Context, cmd pb.CommandBook, stop StopPredicate, timeout time.Duration) (<-chan StreamItem, string, error) {
	if timeout <= 0 {
		timeout = defaultStreamTimeout
	}
	cmd, correlationID := EnsureCorrelationID(cmd)
	log := logging.WithCorrelation(logging.Component("gateway"), correlationID)

	streamCtx, cancel := context.WithTimeout(ctx, timeout)

	delivered := make(chan pb.EventBook, 16)
	unsubscribe, err := g.bus.Subscribe(cmd.Cover.Domain, bus.DefaultSubscriptionOptions(), func(_ context.Context, book pb.EventBook, _ bus.DeliveryMode) error {
		if book.Cover.CorrelationID != correlationID {
			return nil
		}
		select {
		case delivered <- book:
		case <-streamCtx.Done():
		}
		return nil
	})
	if err != nil {
		cancel()
		return nil, correlationID, err
	}

	resp, err := g.pipeline.ExecuteDurable(streamCtx, cmd)
	if err != nil {
		unsubscribe()
		cancel()
		return nil, correlationID, err
	}

	out := make(chan StreamItem, 16)
	go func() {
		defer close(out)
		defer unsubscribe()
		defer cancel()

		out <- StreamItem{Response: &resp}
		n := 1
		if stop(n) {
			return
		}
		for {
			select {
			case <-streamCtx.Done():
				log.Debug().Msg("execute_stream ended: context done or timeout elapsed")
				return
			case book := <-delivered:
				out <- StreamItem{Event: &book}
				n++
				if stop(n) {
					return
				}
			}
		}
	}()

	return out, correlationID, nil
}
