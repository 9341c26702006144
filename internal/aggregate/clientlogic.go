// Package aggregate implements the aggregate command pipeline (spec §4.6):
// parse → validate → load → invoke → merge-resolve → persist → fanout.
// Grounded on original_source/src/orchestration/aggregate/mod.rs for the
// pipeline algorithm and on clientsdk's CommandRouter/StateRouter for the
// Go idiom ClientLogic implementations are expected to follow.
package aggregate

import (
	"context"

	"google.golang.org/protobuf/types/known/anypb"

	"github.com/benjaminabbitt/angzarr-core/pb"
)

// ContextualCommand bundles the prior events and the command being applied,
// the input to ClientLogic.Handle.
type ContextualCommand struct {
	Events  pb.EventBook
	Command pb.CommandBook
}

// BusinessResponse is what client logic computes: the events to append
// (and, optionally, a refreshed snapshot).
type BusinessResponse struct {
	Events   []pb.EventPage
	Snapshot *pb.Snapshot
}

// ReplayRequest asks client logic to fold a batch of events (optionally on
// top of a base snapshot) into a typed state, used only by the COMMUTATIVE
// merge strategy's field-disjointness check.
type ReplayRequest struct {
	Pages        []pb.EventPage
	BaseSnapshot *pb.Snapshot
}

// ClientLogic is the opaque, stateless invokee: given prior events and a
// command, it returns new events. It is reachable over gRPC (TCP or UDS) or
// in-process; this interface is transport-agnostic (spec §6).
type ClientLogic interface {
	Handle(ctx context.Context, cmd ContextualCommand) (BusinessResponse, error)

	// Replay reconstructs state for the COMMUTATIVE merge strategy's
	// field-disjointness check. Implementations that don't support replay
	// should return ErrReplayUnimplemented; the pipeline then degrades
	// COMMUTATIVE to STRICT for that aggregate (spec §4.6, §7).
	Replay(ctx context.Context, req ReplayRequest) (*anypb.Any, error)
}

// CommutativeSupport is an optional capability a ClientLogic can also
// implement to give the pipeline real field-level reflection instead of
// the whole-message "*" fallback (spec §9's "Field-level reflection used
// by COMMUTATIVE is an optional capability").
type CommutativeSupport interface {
	// DiffFields returns the set of top-level field names that differ
	// between two replayed states of the same message type.
	DiffFields(a, b *anypb.Any) (map[string]bool, error)

	// CommandFields returns the set of field names a command intends to
	// modify, or (nil, false) if unknown (pipeline then treats it as "*").
	CommandFields(command *anypb.Any) (fields map[string]bool, ok bool)
}
