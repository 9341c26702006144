package projector

import (
	"context"
	"time"

	"github.com/benjaminabbitt/angzarr-core/internal/bus"
	"github.com/benjaminabbitt/angzarr-core/internal/dlq"
	"github.com/benjaminabbitt/angzarr-core/internal/logging"
	"github.com/benjaminabbitt/angzarr-core/internal/metrics"
	"github.com/benjaminabbitt/angzarr-core/internal/positionstore"
	"github.com/benjaminabbitt/angzarr-core/internal/retry"
	"github.com/benjaminabbitt/angzarr-core/pb"
)

// Handler is the async runner's invokee; Base.Handle satisfies it.
type Handler interface {
	Name() string
	Domains() []string
	Handle(ctx context.Context, book pb.EventBook) (pb.Projection, error)
}

// Runner drives one async projector against the bus, implementing the
// position-filtered at-least-once delivery loop from spec §4.7.
type Runner struct {
	handler   Handler
	bus       bus.EventBus
	positions positionstore.PositionStore
	dlq       dlq.Publisher
	opts      bus.SubscriptionOptions
}

// NewRunner builds a Runner for handler, subscribing via b and tracking
// progress in positions. A nil dlqPublisher defaults to dlq.NoopPublisher.
func NewRunner(handler Handler, b bus.EventBus, positions positionstore.PositionStore, dlqPublisher dlq.Publisher, opts bus.SubscriptionOptions) *Runner {
	if dlqPublisher == nil {
		dlqPublisher = dlq.NoopPublisher{}
	}
	return &Runner{handler: handler, bus: b, positions: positions, dlq: dlqPublisher, opts: opts}
}

// Start subscribes to every domain the projector declared, returning a
// combined unsubscribe func.
func (r *Runner) Start() (func(), error) {
	var unsubs []func()
	for _, domain := range r.handler.Domains() {
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

func (r *Runner) onDeliver(ctx context.Context, book pb.EventBook, mode bus.DeliveryMode) error {
	log := logging.WithDomain(logging.Component("projector-runner"), book.Cover.Domain)

	position, found, err := r.positions.Get(ctx, r.handler.Name(), book.Cover.Domain, book.Cover.EditionOrMain(), book.Cover.Root)
	if err != nil {
		return err
	}

	from := uint64(0)
	if found {
		from = position + 1
	}
	filtered := book.PagesFrom(from)
	if len(filtered) == 0 {
		return nil
	}
	scoped := book
	scoped.Pages = filtered

	attempt := 0
	_, err = retry.Do(ctx, retry.DefaultPolicy(), "projector", func(ctx context.Context) (struct{}, error) {
		attempt++
		_, handleErr := r.handler.Handle(ctx, scoped)
		return struct{}{}, handleErr
	})
	if err != nil {
		log.Warn().Err(err).Str("projector", r.handler.Name()).Msg("projector exhausted retries, routing to DLQ")
		letter := pb.FromEventProcessingFailure(book.Cover, scoped, err, attempt, true, r.handler.Name(), "projector")
		_ = r.dlq.Publish(ctx, letter)
		return nil // ack regardless: DLQ has the failure, runner must not redeliver forever
	}

	lastPage := filtered[len(filtered)-1]
	if err := r.positions.Put(ctx, r.handler.Name(), book.Cover.Domain, book.Cover.EditionOrMain(), book.Cover.Root, lastPage.Sequence); err != nil {
		return err
	}
	if !lastPage.CreatedAt.IsZero() {
		metrics.ProjectorLagSeconds.WithLabelValues(r.handler.Name()).Set(time.Since(lastPage.CreatedAt).Seconds())
	}
	return nil
}
