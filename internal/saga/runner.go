package saga

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/benjaminabbitt/angzarr-core/internal/bus"
	"github.com/benjaminabbitt/angzarr-core/internal/dlq"
	"github.com/benjaminabbitt/angzarr-core/internal/eventstore"
	"github.com/benjaminabbitt/angzarr-core/internal/logging"
	"github.com/benjaminabbitt/angzarr-core/internal/positionstore"
	"github.com/benjaminabbitt/angzarr-core/internal/retry"
	"github.com/benjaminabbitt/angzarr-core/pb"
)

// CommandExecutor dispatches a prepared command book into the aggregate
// pipeline (in-process or by looping back over the bus/gateway) and applies
// its merge strategy end-to-end; spec §4.8 step 4.
type CommandExecutor interface {
	Execute(ctx context.Context, cmd pb.CommandBook) (pb.CommandResponse, error)
}

// Handler is the stateless saga logic; Base satisfies it.
type Handler interface {
	Name() string
	InputDomain() string
	PrepareDestinations(source pb.EventBook) []pb.Cover
	Execute(source pb.EventBook, destinations []pb.EventBook) ([]pb.CommandBook, error)
}

// Runner drives one saga against the bus: prepare destinations, execute,
// dispatch commands, advance position (spec §4.8).
type Runner struct {
	handler   Handler
	bus       bus.EventBus
	events    eventstore.EventStore
	executor  CommandExecutor
	positions positionstore.PositionStore
	dlq       dlq.Publisher
	opts      bus.SubscriptionOptions
}

// NewRunner builds a saga Runner. A nil dlqPublisher defaults to
// dlq.NoopPublisher.
func NewRunner(handler Handler, b bus.EventBus, events eventstore.EventStore, executor CommandExecutor, positions positionstore.PositionStore, dlqPublisher dlq.Publisher, opts bus.SubscriptionOptions) *Runner {
	if dlqPublisher == nil {
		dlqPublisher = dlq.NoopPublisher{}
	}
	return &Runner{handler: handler, bus: b, events: events, executor: executor, positions: positions, dlq: dlqPublisher, opts: opts}
}

// Start subscribes to the saga's input domain.
func (r *Runner) Start() (func(), error) {
	return r.bus.Subscribe(r.handler.InputDomain(), r.opts, r.onDeliver)
}

func (r *Runner) onDeliver(ctx context.Context, source pb.EventBook, mode bus.DeliveryMode) error {
	log := logging.WithDomain(logging.Component("saga-runner"), source.Cover.Domain)

	position, found, err := r.positions.Get(ctx, r.handler.Name(), source.Cover.Domain, source.Cover.EditionOrMain(), source.Cover.Root)
	if err != nil {
		return err
	}
	from := uint64(0)
	if found {
		from = position + 1
	}
	scoped := source
	scoped.Pages = source.PagesFrom(from)
	if len(scoped.Pages) == 0 {
		return nil
	}

	destinations := r.resolveDestinations(ctx, log, r.handler.PrepareDestinations(scoped))

	commands, err := r.handler.Execute(scoped, destinations)
	if err != nil {
		return err
	}

	for _, cmd := range commands {
		if cmd.Cover.CorrelationID == "" {
			cmd.Cover.CorrelationID = source.Cover.CorrelationID
		}
		cmd.SagaOrigin = r.handler.Name()

		attempt := 0
		_, execErr := retry.Do(ctx, retry.DefaultPolicy(), "saga", func(ctx context.Context) (pb.CommandResponse, error) {
			attempt++
			return r.executor.Execute(ctx, cmd)
		})
		if execErr != nil {
			log.Warn().Err(execErr).Str("saga", r.handler.Name()).Msg("saga command dispatch exhausted retries, routing to DLQ")
			letter := pb.FromSequenceMismatch(cmd.Cover, cmd, cmd.ExpectedSequence(), 0, cmd.Pages[0].MergeStrategy, r.handler.Name())
			_ = r.dlq.Publish(ctx, letter)
		}
	}

	last := scoped.Pages[len(scoped.Pages)-1].Sequence
	return r.positions.Put(ctx, r.handler.Name(), source.Cover.Domain, source.Cover.EditionOrMain(), source.Cover.Root, last)
}

// resolveDestinations loads every prepared cover via the event store,
// dropping any that fail to resolve with a warning (spec §4.8 step 1).
func (r *Runner) resolveDestinations(ctx context.Context, log zerolog.Logger, covers []pb.Cover) []pb.EventBook {
	out := make([]pb.EventBook, 0, len(covers))
	for _, c := range covers {
		book, err := r.events.Load(ctx, c.Domain, c.EditionOrMain(), c.Root, 0)
		if err != nil {
			log.Warn().Err(err).Str("dest_domain", c.Domain).Str("dest_root", c.Root.String()).Msg("saga destination cover failed to resolve, proceeding short")
			continue
		}
		out = append(out, book)
	}
	return out
}
