// Package processmanager implements the fan-in Process Manager runner
// (spec §4.9): a PM is a saga that reacts only once N prerequisite events
// have all arrived for the same correlation_id. Its own progress is itself
// event-sourced under a synthetic `domain = pm_name`, `root =
// v5(ns_oid, correlation_id)` stream, giving exactly-once dispatch for free
// from the EventStore's per-aggregate append serialization.
//
// Grounded on clientsdk's ProcessManagerBase[S] (Prepares/Handles/Applies,
// generic over PM state) for the Go shape, and on spec.md §4.9's algorithm
// for the fan-in semantics — this runtime has no generated PM-state proto,
// so the two internal state events are JSON-encoded into anypb.Any, the
// same opaque wire convention internal/bus's amqpbus/snssqsbus use.
package processmanager

import (
	"encoding/json"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/benjaminabbitt/angzarr-core/pb"
)

// namespaceOID is the fixed UUID namespace PMs derive their synthetic root
// from (spec §4.9: root = v5(ns_oid, correlation_id)).
var namespaceOID = uuid.MustParse("6ba7b814-9dad-11d1-80b4-00c04fd430c8")

// DerivedRoot computes the synthetic per-correlation PM aggregate root.
func DerivedRoot(correlationID string) uuid.UUID {
	return uuid.NewSHA1(namespaceOID, []byte(correlationID))
}

const (
	typeURLPrerequisiteCompleted = "angzarr.pm.PrerequisiteCompleted"
	typeURLDispatchIssued        = "angzarr.pm.DispatchIssued"
)

// prerequisiteCompleted is the PM's own event recording one arrived
// prerequisite.
type prerequisiteCompleted struct {
	Name      string   `json:"name"`
	Completed []string `json:"completed"`
	Remaining []string `json:"remaining"`
}

// dispatchIssued marks that this PM has already emitted its output
// command(s) for this correlation — idempotence guard (spec §4.9 step 2).
type dispatchIssued struct {
	Completed []string `json:"completed"`
}

func encodePrerequisiteCompleted(name string, completed, remaining []string) *anypb.Any {
	body, _ := json.Marshal(prerequisiteCompleted{Name: name, Completed: completed, Remaining: remaining})
	return &anypb.Any{TypeUrl: typeURLPrerequisiteCompleted, Value: body}
}

func encodeDispatchIssued(completed []string) *anypb.Any {
	body, _ := json.Marshal(dispatchIssued{Completed: completed})
	return &anypb.Any{TypeUrl: typeURLDispatchIssued, Value: body}
}

// State is the fold of a PM's own event log: which prerequisites have
// arrived and whether dispatch has already fired.
type State struct {
	Completed      map[string]bool
	DispatchIssued bool
}

// Fold reconstructs State from the PM's own EventBook (spec §4.9 step 1-2).
func Fold(book pb.EventBook) State {
	st := State{Completed: map[string]bool{}}
	for _, page := range book.Pages {
		if page.Event == nil {
			continue
		}
		switch page.Event.TypeUrl {
		case typeURLPrerequisiteCompleted:
			var evt prerequisiteCompleted
			if json.Unmarshal(page.Event.Value, &evt) == nil {
				st.Completed[evt.Name] = true
			}
		case typeURLDispatchIssued:
			st.DispatchIssued = true
		}
	}
	return st
}

// Definition configures one PM: its prerequisite set, how to classify a
// trigger event into a prerequisite name, and how to build the output
// command(s) once every prerequisite has arrived.
type Definition struct {
	Name          string
	InputDomains  []string
	OutputDomain  string
	Prerequisites []string

	// Classify maps a trigger event to a prerequisite name, or ("", false)
	// if the event isn't one this PM tracks.
	Classify func(event *anypb.Any) (name string, ok bool)

	// Dispatch builds the output command(s) once every prerequisite has
	// been observed. correlationID is already set on each returned
	// CommandBook's cover by the runner.
	Dispatch func(correlationID string, completed []string) ([]pb.CommandBook, error)
}

func remaining(def Definition, completed map[string]bool) []string {
	var out []string
	for _, p := range def.Prerequisites {
		if !completed[p] {
			out = append(out, p)
		}
	}
	return out
}

func allComplete(def Definition, completed map[string]bool) bool {
	return len(remaining(def, completed)) == 0
}

func completedNames(completed map[string]bool) []string {
	out := make([]string, 0, len(completed))
	for name := range completed {
		out = append(out, name)
	}
	return out
}
