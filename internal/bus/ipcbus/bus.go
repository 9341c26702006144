// Package ipcbus implements an in-process EventBus: a router that applies
// bus.MatchPattern to dispatch published books directly to in-memory
// subscriber handlers, per spec §4.4 ("IPC fanout uses a router that
// applies the same pattern-match algorithm in-process"). Used for
// standalone/embedded-mode deployments with no external broker.
package ipcbus

import (
	"context"
	"sync"

	"github.com/benjaminabbitt/angzarr-core/internal/bus"
	"github.com/benjaminabbitt/angzarr-core/internal/dlq"
	"github.com/benjaminabbitt/angzarr-core/internal/retry"
	"github.com/benjaminabbitt/angzarr-core/pb"
)

type subscription struct {
	id      int
	pattern string
	opts    bus.SubscriptionOptions
	handler bus.Handler
}

// Bus is a goroutine-safe in-process EventBus.
type Bus struct {
	mu            sync.RWMutex
	subs          map[int]*subscription
	nextID        int
	dlqPublisher  dlq.Publisher
}

// New builds an in-process Bus. publisher may be nil, in which case
// dlq.NoopPublisher is used (logs at WARN, per spec §4.5).
func New(publisher dlq.Publisher) *Bus {
	if publisher == nil {
		publisher = dlq.NoopPublisher{}
	}
	return &Bus{subs: map[int]*subscription{}, dlqPublisher: publisher}
}

var _ bus.EventBus = (*Bus)(nil)

func (b *Bus) Publish(ctx context.Context, book pb.EventBook) error {
	b.mu.RLock()
	matched := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if bus.MatchPattern(s.pattern, book.Cover.Domain) {
			matched = append(matched, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range matched {
		s := s
		go b.deliver(ctx, s, book)
	}
	return nil
}

func (b *Bus) deliver(ctx context.Context, s *subscription, book pb.EventBook) {
	policy := retry.DefaultPolicy()
	policy.MaxRetries = s.opts.MaxRetries

	attempt := 0
	_, err := retry.Do(ctx, policy, "ipcbus", func(ctx context.Context) (struct{}, error) {
		attempt++
		return struct{}{}, s.handler(ctx, book, bus.ModeLive)
	})
	if err != nil {
		letter := pb.FromEventProcessingFailure(book.Cover, book, err, attempt, true, "ipcbus", "bus-subscription")
		_ = b.dlqPublisher.Publish(ctx, letter)
	}
}

func (b *Bus) Subscribe(pattern string, opts bus.SubscriptionOptions, handler bus.Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[id] = &subscription{id: id, pattern: pattern, opts: opts, handler: handler}
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}, nil
}

func (b *Bus) SendToDLQ(ctx context.Context, letter pb.DeadLetter) error {
	return b.dlqPublisher.Publish(ctx, letter)
}
