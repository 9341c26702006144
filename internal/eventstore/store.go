// Package eventstore defines the append-only EventStore contract (spec
// §4.1) and its composite-edition-read algorithm, with sqlite and postgres
// backends.
package eventstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/benjaminabbitt/angzarr-core/pb"
)

// EventStore is the append-only log keyed by (domain, edition, root,
// sequence), with composite reads for forked editions.
type EventStore interface {
	// Append persists pages atomically, acquiring an exclusive per-aggregate
	// lock for the duration. Unset (zero) sequences are assigned densely
	// from the current tail; set sequences must equal the tail or Append
	// fails with *model.ConflictingSequenceError.
	Append(ctx context.Context, domain, edition string, root uuid.UUID, pages []pb.EventPage, correlationID string) error

	// Load returns ordered pages from `from` onward. For a named edition
	// this performs the composite read described in spec §4.1.
	Load(ctx context.Context, domain, edition string, root uuid.UUID, from uint64) (pb.EventBook, error)

	// LoadRange returns ordered pages in [from, toExclusive).
	LoadRange(ctx context.Context, domain, edition string, root uuid.UUID, from, toExclusive uint64) (pb.EventBook, error)

	// LoadUntilTimestamp returns all pages with CreatedAt <= until, in
	// sequence order.
	LoadUntilTimestamp(ctx context.Context, domain, edition string, root uuid.UUID, until time.Time) (pb.EventBook, error)

	// NextSequence returns 0 if no events exist. An edition with no local
	// events inherits the main timeline's next sequence.
	NextSequence(ctx context.Context, domain, edition string, root uuid.UUID) (uint64, error)

	// LoadByCorrelation groups all persisted pages sharing correlationID
	// into EventBooks keyed by (domain, edition, root).
	LoadByCorrelation(ctx context.Context, correlationID string) ([]pb.EventBook, error)

	// DeleteEdition removes only edition-local events; refuses to operate
	// on the main timeline.
	DeleteEdition(ctx context.Context, domain, edition string) error
}

// aggregateKey identifies one append-serialized stream.
type aggregateKey struct {
	domain, edition, root string
}
