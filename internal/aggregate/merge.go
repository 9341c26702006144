package aggregate

import (
	"bytes"
	"context"

	"google.golang.org/protobuf/types/known/anypb"

	"github.com/benjaminabbitt/angzarr-core/internal/metrics"
	"github.com/benjaminabbitt/angzarr-core/internal/model"
	"github.com/benjaminabbitt/angzarr-core/pb"
)

// wildcardField is the sentinel used when field-level reflection isn't
// available and the whole message must be treated as one field (spec §4.6
// step 3, §9).
const wildcardField = "*"

// resolveConflict implements the merge-strategy dispatch in spec §4.6. It
// returns nil if the command may proceed as if sequences had matched, or a
// *model.Status (FailedPrecondition/Aborted) describing why it can't.
func (p *Pipeline) resolveConflict(ctx context.Context, logic ClientLogic, cmd pb.CommandBook, events pb.EventBook, expected, actual uint64) (err error) {
	strategy := pb.MergeStrict
	if len(cmd.Pages) > 0 {
		strategy = cmd.Pages[0].MergeStrategy
	}

	defer func() {
		resolution := "resolved"
		if err != nil {
			resolution = "rejected"
		}
		metrics.MergeConflictsTotal.WithLabelValues(cmd.Cover.Domain, resolution).Inc()
	}()

	switch strategy {
	case pb.MergeStrict:
		return (&model.FailedPreconditionError{Domain: cmd.Cover.Domain, Expected: expected, Actual: actual}).Status()

	case pb.MergeCommutative:
		return p.resolveCommutative(ctx, logic, cmd, events, expected, actual)

	case pb.MergeManual:
		letter := pb.FromSequenceMismatch(cmd.Cover, cmd, expected, actual, pb.MergeManual, "aggregate-pipeline")
		_ = p.deps.Bus.SendToDLQ(ctx, letter)
		return model.Aborted("sequence mismatch under MANUAL strategy: expected %d, actual %d", expected, actual)

	case pb.MergeAggregateHandles:
		// Skip pipeline-level validation entirely; client logic owns its
		// own concurrency control.
		return nil

	default:
		return (&model.FailedPreconditionError{Domain: cmd.Cover.Domain, Expected: expected, Actual: actual}).Status()
	}
}

func (p *Pipeline) resolveCommutative(ctx context.Context, logic ClientLogic, cmd pb.CommandBook, events pb.EventBook, expected, actual uint64) error {
	expectedBook := events
	expectedBook.Pages = eventsUpTo(events.Pages, expected)

	sExpected, err := logic.Replay(ctx, ReplayRequest{Pages: expectedBook.Pages, BaseSnapshot: events.Snapshot})
	if err != nil {
		if err == ErrReplayUnimplemented {
			return (&model.FailedPreconditionError{Domain: cmd.Cover.Domain, Expected: expected, Actual: actual}).Status()
		}
		return model.Internal(err, "commutative merge: replay(expected) failed")
	}
	sActual, err := logic.Replay(ctx, ReplayRequest{Pages: events.Pages, BaseSnapshot: events.Snapshot})
	if err != nil {
		if err == ErrReplayUnimplemented {
			return (&model.FailedPreconditionError{Domain: cmd.Cover.Domain, Expected: expected, Actual: actual}).Status()
		}
		return model.Internal(err, "commutative merge: replay(actual) failed")
	}

	var diffFields, cmdFields map[string]bool
	var support CommutativeSupport
	if cs, ok := logic.(CommutativeSupport); ok {
		support = cs
	}

	if support != nil {
		diffFields, err = support.DiffFields(sExpected, sActual)
		if err != nil {
			diffFields = map[string]bool{wildcardField: true}
		}
	} else {
		diffFields = wholeMessageDiff(sExpected, sActual)
	}

	if support != nil {
		if fields, ok := support.CommandFields(firstCommandPayload(cmd)); ok {
			cmdFields = fields
		}
	}
	if cmdFields == nil {
		cmdFields = map[string]bool{wildcardField: true}
	}

	if intersects(diffFields, cmdFields) {
		return (&model.FailedPreconditionError{Domain: cmd.Cover.Domain, Expected: expected, Actual: actual}).Status()
	}
	return nil
}

func eventsUpTo(pages []pb.EventPage, expected uint64) []pb.EventPage {
	out := make([]pb.EventPage, 0, len(pages))
	for _, p := range pages {
		if p.Sequence < expected {
			out = append(out, p)
		}
	}
	return out
}

func firstCommandPayload(cmd pb.CommandBook) *anypb.Any {
	if len(cmd.Pages) == 0 {
		return nil
	}
	return cmd.Pages[0].Command
}

// wholeMessageDiff is the fallback when no CommutativeSupport is available:
// the two states are compared as opaque bytes and, if different, the
// entire message is reported as changed via the wildcard sentinel
// (spec §4.6 step 3).
func wholeMessageDiff(a, b *anypb.Any) map[string]bool {
	if a == nil || b == nil {
		return map[string]bool{wildcardField: true}
	}
	if bytes.Equal(a.Value, b.Value) && a.TypeUrl == b.TypeUrl {
		return map[string]bool{}
	}
	return map[string]bool{wildcardField: true}
}

func intersects(a, b map[string]bool) bool {
	if a[wildcardField] || b[wildcardField] {
		return len(a) > 0 && len(b) > 0
	}
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}
