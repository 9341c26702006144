package aggregate

import (
	"context"

	"github.com/google/uuid"

	"github.com/benjaminabbitt/angzarr-core/internal/bus"
	"github.com/benjaminabbitt/angzarr-core/internal/dlq"
	"github.com/benjaminabbitt/angzarr-core/internal/eventstore"
	"github.com/benjaminabbitt/angzarr-core/internal/snapshotstore"
	"github.com/benjaminabbitt/angzarr-core/pb"
)

// SyncProjector is invoked directly by the pipeline's fanout step, in
// parallel with all other registered sync projectors for the domain
// (spec §4.6, §4.7).
type SyncProjector interface {
	Name() string
	Handle(ctx context.Context, book pb.EventBook) (pb.Projection, error)
}

// Context is the pluggable surface over EventStore/SnapshotStore/EventBus
// the pipeline is built against (spec §2's AggregateContext). Concrete
// wiring lives in internal/bootstrap, whose Build constructs one Context
// per process from the configured storage/messaging backends.
type Context struct {
	Events         eventstore.EventStore
	Snapshots      snapshotstore.SnapshotStore
	Bus            bus.EventBus
	DLQ            dlq.Publisher
	SyncProjectors map[string][]SyncProjector // keyed by domain
	Resolve        func(domain string) (ClientLogic, error)
}

// PreValidateSequence is the optional fast path from spec §4.6: it compares
// the store's NextSequence for the aggregate with expected. The sqlite and
// postgres backends compute NextSequence with a full Load, so this check is
// no cheaper than loading; Pipeline.Execute does not call it.
func (c *Context) PreValidateSequence(ctx context.Context, domain, edition string, root uuid.UUID, expected uint64) (actual uint64, matches bool, err error) {
	actual, err = c.Events.NextSequence(ctx, domain, edition, root)
	if err != nil {
		return 0, false, err
	}
	return actual, actual == expected, nil
}
