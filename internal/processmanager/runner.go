package processmanager

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/benjaminabbitt/angzarr-core/internal/bus"
	"github.com/benjaminabbitt/angzarr-core/internal/dlq"
	"github.com/benjaminabbitt/angzarr-core/internal/eventstore"
	"github.com/benjaminabbitt/angzarr-core/internal/logging"
	"github.com/benjaminabbitt/angzarr-core/internal/model"
	"github.com/benjaminabbitt/angzarr-core/internal/retry"
	"github.com/benjaminabbitt/angzarr-core/internal/saga"
	"github.com/benjaminabbitt/angzarr-core/pb"
)

// Runner drives one Definition against the bus, implementing the fan-in
// algorithm in spec §4.9.
type Runner struct {
	def      Definition
	bus      bus.EventBus
	events   eventstore.EventStore
	executor saga.CommandExecutor
	dlq      dlq.Publisher
	opts     bus.SubscriptionOptions
}

// NewRunner builds a process manager Runner. A nil dlqPublisher defaults to
// dlq.NoopPublisher.
func NewRunner(def Definition, b bus.EventBus, events eventstore.EventStore, executor saga.CommandExecutor, dlqPublisher dlq.Publisher, opts bus.SubscriptionOptions) *Runner {
	if dlqPublisher == nil {
		dlqPublisher = dlq.NoopPublisher{}
	}
	return &Runner{def: def, bus: b, events: events, executor: executor, dlq: dlqPublisher, opts: opts}
}

// Start subscribes to every input domain the PM tracks.
func (r *Runner) Start() (func(), error) {
	var unsubs []func()
	for _, domain := range r.def.InputDomains {
		unsub, err := r.bus.Subscribe(domain, r.opts, r.onDeliver)
		if err != nil {
			for _, u := range unsubs {
				u()
			}
			return nil, err
		}
		unsubs = append(unsubs, unsub)
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}, nil
}

func (r *Runner) onDeliver(ctx context.Context, trigger pb.EventBook, mode bus.DeliveryMode) error {
	log := logging.WithDomain(logging.Component("pm-runner"), r.def.Name)
	correlationID := trigger.Cover.CorrelationID
	if correlationID == "" {
		return nil // a PM can only fan in on a shared correlation id
	}

	for _, page := range trigger.Pages {
		if page.Event == nil {
			continue
		}
		name, ok := r.def.Classify(page.Event)
		if !ok {
			continue
		}
		if err := r.handleOnePrerequisite(ctx, log, correlationID, name); err != nil {
			return err
		}
	}
	return nil
}

// handleOnePrerequisite runs spec §4.9 steps 1-5 for a single classified
// prerequisite arrival. The EventStore's per-aggregate append lock gives
// exactly-once dispatch: of two concurrent triggers completing the last
// two prerequisites, the loser observes DispatchIssued already appended by
// the winner on reload and short-circuits.
func (r *Runner) handleOnePrerequisite(ctx context.Context, log zerolog.Logger, correlationID, prerequisiteName string) error {
	root := DerivedRoot(correlationID)

	book, err := r.events.Load(ctx, r.def.Name, pb.MainTimeline, root, 0)
	if err != nil {
		return err
	}
	state := Fold(book)

	if state.DispatchIssued {
		return nil // idempotent: already dispatched for this correlation
	}
	if state.Completed[prerequisiteName] {
		return nil // already recorded, nothing new to do
	}

	state.Completed[prerequisiteName] = true
	completed := completedNames(state.Completed)
	pages := []pb.EventPage{{
		Event: encodePrerequisiteCompleted(prerequisiteName, completed, remaining(r.def, state.Completed)),
	}}

	if allComplete(r.def, state.Completed) {
		pages = append(pages, pb.EventPage{Event: encodeDispatchIssued(completed)})
	}

	next := book.NextSequence()
	for i := range pages {
		pages[i].Sequence = next + uint64(i)
	}
	if err := r.events.Append(ctx, r.def.Name, pb.MainTimeline, root, pages, correlationID); err != nil {
		var conflict *model.ConflictingSequenceError
		if errors.As(err, &conflict) {
			// Another trigger appended first: reload and re-evaluate.
			return r.handleOnePrerequisite(ctx, log, correlationID, prerequisiteName)
		}
		return err
	}

	if len(pages) == 1 {
		return nil // only the prerequisite was recorded; not yet complete
	}

	commands, err := r.def.Dispatch(correlationID, completed)
	if err != nil {
		return err
	}
	for _, cmd := range commands {
		cmd.Cover.CorrelationID = correlationID
		cmd.SagaOrigin = r.def.Name

		attempt := 0
		_, execErr := retry.Do(ctx, retry.DefaultPolicy(), "processmanager", func(ctx context.Context) (pb.CommandResponse, error) {
			attempt++
			return r.executor.Execute(ctx, cmd)
		})
		if execErr != nil {
			log.Warn().Err(execErr).Str("correlation_id", correlationID).Msg("pm dispatch exhausted retries, routing to DLQ")
			expected := cmd.ExpectedSequence()
			strategy := pb.MergeStrict
			if len(cmd.Pages) > 0 {
				strategy = cmd.Pages[0].MergeStrategy
			}
			letter := pb.FromSequenceMismatch(cmd.Cover, cmd, expected, 0, strategy, r.def.Name)
			_ = r.dlq.Publish(ctx, letter)
		}
	}
	return nil
}
