// Package dlq defines the dead-letter publisher contract and a couple of
// concrete implementations, grounded on
// original_source/src/dlq/mod.rs's DeadLetterPublisher trait,
// NoopDeadLetterPublisher, and ChannelDeadLetterPublisher.
package dlq

import (
	"context"

	"github.com/benjaminabbitt/angzarr-core/internal/logging"
	"github.com/benjaminabbitt/angzarr-core/internal/metrics"
	"github.com/benjaminabbitt/angzarr-core/pb"
)

// Publisher routes a DeadLetter to its topic. Implementations must never
// drop a letter silently except NoopPublisher, whose whole purpose is to be
// the explicit, operator-visible "no DLQ configured" choice (spec §4.5, §7).
type Publisher interface {
	Publish(ctx context.Context, letter pb.DeadLetter) error
	IsConfigured() bool
}

// NoopPublisher logs every dead letter at WARN and drops it. This is the
// only legitimate silent drop the system permits, and only because the
// absence of a real DLQ backend is itself an operator-visible
// configuration choice (spec §7).
type NoopPublisher struct{}

func (NoopPublisher) IsConfigured() bool { return false }

func (NoopPublisher) Publish(_ context.Context, letter pb.DeadLetter) error {
	logging.Component("dlq").Warn().
		Str("domain", letter.Cover.Domain).
		Str("topic", letter.Topic()).
		Str("source_component", letter.SourceComponent).
		Msg("dead letter dropped: no DLQ backend configured")
	metrics.DLQTotal.WithLabelValues(letter.Cover.Domain, letter.SourceComponent).Inc()
	return nil
}

// ChannelPublisher delivers dead letters to an in-process Go channel,
// useful for standalone-mode deployments and tests that want to assert on
// DLQ contents without a broker.
type ChannelPublisher struct {
	ch chan pb.DeadLetter
}

// NewChannelPublisher builds a ChannelPublisher with the given buffer size.
func NewChannelPublisher(buffer int) *ChannelPublisher {
	return &ChannelPublisher{ch: make(chan pb.DeadLetter, buffer)}
}

func (p *ChannelPublisher) IsConfigured() bool { return true }

func (p *ChannelPublisher) Publish(ctx context.Context, letter pb.DeadLetter) error {
	select {
	case p.ch <- letter:
		metrics.DLQTotal.WithLabelValues(letter.Cover.Domain, letter.SourceComponent).Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Letters exposes the channel for a consumer loop to drain.
func (p *ChannelPublisher) Letters() <-chan pb.DeadLetter { return p.ch }

// BusPublisher hands each dead letter, with its cover's domain, to a
// caller-supplied publish func; the topic it lands on and its encoding are
// up to that func.
type BusPublisher struct {
	publish func(ctx context.Context, domain string, letter pb.DeadLetter) error
}

// NewBusPublisher takes a narrow publish func rather than the full
// bus.EventBus interface.
func NewBusPublisher(publish func(ctx context.Context, domain string, letter pb.DeadLetter) error) *BusPublisher {
	return &BusPublisher{publish: publish}
}

func (p *BusPublisher) IsConfigured() bool { return true }

func (p *BusPublisher) Publish(ctx context.Context, letter pb.DeadLetter) error {
	if err := p.publish(ctx, letter.Cover.Domain, letter); err != nil {
		return err
	}
	metrics.DLQTotal.WithLabelValues(letter.Cover.Domain, letter.SourceComponent).Inc()
	return nil
}
