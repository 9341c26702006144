// Package bus defines the EventBus contract (spec §4.4): publish/subscribe
// of event batches with hierarchical domain-scoped topics, at-least-once
// delivery, and per-(domain,root) ordering only.
package bus

import (
	"context"
	"strings"

	"github.com/benjaminabbitt/angzarr-core/pb"
)

// DeliveryMode tells a subscriber's Handler whether it's seeing a live bus
// delivery or a cold-start catchup replay (spec §4.7).
type DeliveryMode int

const (
	ModeLive DeliveryMode = iota
	ModeCatchup
)

// Handler processes one delivered EventBook. A non-nil error triggers the
// subscription's retry-then-DLQ policy.
type Handler func(ctx context.Context, book pb.EventBook, mode DeliveryMode) error

// SubscriptionOptions configures per-subscription retry/DLQ behavior
// (spec §4.4).
type SubscriptionOptions struct {
	MaxRetries int
	TTLSeconds int
}

// DefaultSubscriptionOptions matches the spec's stated default.
func DefaultSubscriptionOptions() SubscriptionOptions {
	return SubscriptionOptions{MaxRetries: 3, TTLSeconds: 60}
}

// EventBus publishes EventBooks to subscribers matched by hierarchical
// topic pattern, and routes exhausted failures to the DLQ.
type EventBus interface {
	Publish(ctx context.Context, book pb.EventBook) error
	Subscribe(pattern string, opts SubscriptionOptions, handler Handler) (unsubscribe func(), err error)
	SendToDLQ(ctx context.Context, letter pb.DeadLetter) error
}

// MatchPattern implements the hierarchical segment matcher from spec §4.4:
// a literal segment matches itself, "*" matches exactly one segment, and
// "#" matches zero or more trailing segments. Segments are "."-delimited.
func MatchPattern(pattern, domain string) bool {
	pSegs := strings.Split(pattern, ".")
	dSegs := strings.Split(domain, ".")
	return matchSegs(pSegs, dSegs)
}

func matchSegs(pattern, segs []string) bool {
	if len(pattern) == 0 {
		return len(segs) == 0
	}
	head := pattern[0]
	switch head {
	case "#":
		// "#" matches zero or more trailing segments: try consuming 0..len(segs)
		// segments and see if the rest of the pattern matches what remains.
		for i := 0; i <= len(segs); i++ {
			if matchSegs(pattern[1:], segs[i:]) {
				return true
			}
		}
		return false
	case "*":
		if len(segs) == 0 {
			return false
		}
		return matchSegs(pattern[1:], segs[1:])
	default:
		if len(segs) == 0 || segs[0] != head {
			return false
		}
		return matchSegs(pattern[1:], segs[1:])
	}
}
