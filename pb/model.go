// Package pb defines the wire-shaped data model the core pipeline operates
// on: covers, event/command pages, books and snapshots. Payloads are opaque
// to the pipeline — carried as type_url/value pairs via anypb.Any — exactly
// as client logic sees them; only client logic ever unmarshals Event/Value.
package pb

import (
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/anypb"
)

// MainTimeline is the reserved edition name for the canonical log.
const MainTimeline = "angzarr"

// MergeStrategy selects how the aggregate pipeline resolves a sequence
// mismatch found after loading prior events, before client logic runs.
type MergeStrategy int

const (
	// MergeStrict rejects any mismatch; the caller must reload and retry.
	MergeStrict MergeStrategy = iota
	// MergeCommutative attempts a field-disjointness check via ClientLogic.Replay.
	MergeCommutative
	// MergeManual routes the conflict to the dead-letter queue for human review.
	MergeManual
	// MergeAggregateHandles skips pipeline-level validation; client logic owns it.
	MergeAggregateHandles
)

func (m MergeStrategy) String() string {
	switch m {
	case MergeStrict:
		return "STRICT"
	case MergeCommutative:
		return "COMMUTATIVE"
	case MergeManual:
		return "MANUAL"
	case MergeAggregateHandles:
		return "AGGREGATE_HANDLES"
	default:
		return "UNKNOWN"
	}
}

// Cover is the routing envelope shared by commands and events.
type Cover struct {
	Domain        string
	Root          uuid.UUID
	CorrelationID string
	Edition       string
}

// EditionOrMain returns the effective edition, substituting MainTimeline
// for an empty value per the Cover invariant in spec §3.
func (c Cover) EditionOrMain() string {
	if c.Edition == "" {
		return MainTimeline
	}
	return c.Edition
}

// IsMainTimeline reports whether this cover targets the canonical log.
func (c Cover) IsMainTimeline() bool {
	return c.Edition == "" || c.Edition == MainTimeline
}

// NewCover builds a Cover for the main timeline.
func NewCover(domain string, root uuid.UUID, correlationID string) Cover {
	return Cover{Domain: domain, Root: root, CorrelationID: correlationID}
}

// NewCoverWithEdition builds a Cover targeting a named edition.
func NewCoverWithEdition(domain string, root uuid.UUID, correlationID, edition string) Cover {
	return Cover{Domain: domain, Root: root, CorrelationID: correlationID, Edition: edition}
}

// ExternalPayload references a blob offloaded to external storage instead of
// being inlined in the page. The bus-adjacent offloading layer hydrates it
// before the pipeline sees the page; a failure to hydrate routes to the DLQ
// as PayloadRetrievalFailed.
type ExternalPayload struct {
	StorageType  string
	URI          string
	ContentHash  string
	OriginalSize int64
	StoredAt     time.Time
}

// EventPage is one persisted event.
type EventPage struct {
	Sequence  uint64
	CreatedAt time.Time
	Event     *anypb.Any // inline typed payload; nil if External is set
	External  *ExternalPayload
}

// IsExternal reports whether this page's payload was offloaded.
func (p EventPage) IsExternal() bool { return p.External != nil }

// CommandPage is one command attempt.
type CommandPage struct {
	Sequence      uint64
	MergeStrategy MergeStrategy
	Command       *anypb.Any
	External      *ExternalPayload
}

// RetentionPolicy governs how long a snapshot stays valid/kept.
type RetentionPolicy int

const (
	RetentionLatestOnly RetentionPolicy = iota
	RetentionHistorical
)

// Snapshot is cached replayed state at some sequence.
type Snapshot struct {
	Sequence  uint64
	State     *anypb.Any
	Retention RetentionPolicy
}

// EventBook is a self-contained batch of events for one aggregate.
type EventBook struct {
	Cover    Cover
	Pages    []EventPage
	Snapshot *Snapshot // optional base snapshot
}

// NextSequence computes the sequence the next appended page would take: the
// last page's sequence + 1, or the snapshot's sequence + 1 if there are no
// pages, or 0 if the book is entirely empty.
func (b EventBook) NextSequence() uint64 {
	if n := len(b.Pages); n > 0 {
		return b.Pages[n-1].Sequence + 1
	}
	if b.Snapshot != nil {
		return b.Snapshot.Sequence + 1
	}
	return 0
}

// PagesFrom returns the subset of pages with Sequence >= from.
func (b EventBook) PagesFrom(from uint64) []EventPage {
	out := make([]EventPage, 0, len(b.Pages))
	for _, p := range b.Pages {
		if p.Sequence >= from {
			out = append(out, p)
		}
	}
	return out
}

// CommandBook is a cover plus an ordered batch of command attempts.
type CommandBook struct {
	Cover      Cover
	Pages      []CommandPage
	SagaOrigin string // identifies the saga instance that emitted this command, if any
}

// ExpectedSequence is the sequence the first page expects, or 0 if the book
// carries no pages.
func (b CommandBook) ExpectedSequence() uint64 {
	if len(b.Pages) == 0 {
		return 0
	}
	return b.Pages[0].Sequence
}

// Projection is the output of a projector handling one event book.
type Projection struct {
	Projector  string
	Cover      Cover
	Projection *anypb.Any
	Sequence   uint64
}

// CommandResponse is the unary response the gateway returns for execute().
type CommandResponse struct {
	Events      []EventPage
	Projections []Projection
}
