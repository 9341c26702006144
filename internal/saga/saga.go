// Package saga implements the two-phase saga protocol (spec §4.7): a saga
// declares, per input event type, which destination aggregates it needs
// state from (Prepare), then turns the triggering event plus that state
// into commands for its output domain (Execute). Sagas are stateless:
// every event is handled independently of any other.
//
// Grounded on clientsdk's SagaBase (Prepares/ReactsTo/PrepareDestinations/
// Execute), generalized to this runtime's opaque anypb.Any payload model —
// handlers here receive the event's *anypb.Any directly rather than a
// reflection-unmarshaled typed pointer, since the pipeline never looks
// inside a payload.
package saga

import (
	"strings"

	"google.golang.org/protobuf/types/known/anypb"

	"github.com/benjaminabbitt/angzarr-core/pb"
)

// PrepareFunc declares the destination covers a saga needs loaded before it
// can react to an event of the registered type.
type PrepareFunc func(event *anypb.Any) []pb.Cover

// ReactFunc turns a triggering event plus its prepared destination books
// into zero or more outgoing commands.
type ReactFunc func(event *anypb.Any, dests []pb.EventBook) ([]pb.CommandBook, error)

// Base is embedded by a concrete saga implementation and registers its
// per-event-type handlers.
type Base struct {
	name         string
	inputDomain  string
	outputDomain string
	prepares     map[string]PrepareFunc
	reacts       map[string]ReactFunc
}

// Init configures the saga's identity and domain wiring.
func (s *Base) Init(name, inputDomain, outputDomain string) {
	s.name = name
	s.inputDomain = inputDomain
	s.outputDomain = outputDomain
	s.prepares = map[string]PrepareFunc{}
	s.reacts = map[string]ReactFunc{}
}

func (s *Base) Name() string         { return s.name }
func (s *Base) InputDomain() string  { return s.inputDomain }
func (s *Base) OutputDomain() string { return s.outputDomain }

// Prepares registers the destination-cover resolver for an event type_url
// suffix.
func (s *Base) Prepares(suffix string, fn PrepareFunc) {
	s.prepares[suffix] = fn
}

// ReactsTo registers the command-producing handler for an event type_url
// suffix.
func (s *Base) ReactsTo(suffix string, fn ReactFunc) {
	s.reacts[suffix] = fn
}

// PrepareDestinations computes every destination cover needed across all
// pages of source, driving the runner's Prepare phase.
func (s *Base) PrepareDestinations(source pb.EventBook) []pb.Cover {
	var covers []pb.Cover
	for _, page := range source.Pages {
		if page.Event == nil {
			continue
		}
		if fn, ok := lookup(s.prepares, page.Event.TypeUrl); ok {
			covers = append(covers, fn(page.Event)...)
		}
	}
	return covers
}

// Execute runs the saga's Execute phase: every page with a registered
// handler contributes its commands to the result.
func (s *Base) Execute(source pb.EventBook, destinations []pb.EventBook) ([]pb.CommandBook, error) {
	var commands []pb.CommandBook
	for _, page := range source.Pages {
		if page.Event == nil {
			continue
		}
		fn, ok := lookup(s.reacts, page.Event.TypeUrl)
		if !ok {
			continue
		}
		cmds, err := fn(page.Event, destinations)
		if err != nil {
			return nil, err
		}
		commands = append(commands, cmds...)
	}
	return commands, nil
}

// HandledTypes returns the registered event type_url suffixes. The saga
// Runner subscribes by input domain and does not consult it.
func (s *Base) HandledTypes() []string {
	out := make([]string, 0, len(s.reacts))
	for suffix := range s.reacts {
		out = append(out, suffix)
	}
	return out
}

func lookup[T any](m map[string]T, typeURL string) (T, bool) {
	for suffix, v := range m {
		if strings.HasSuffix(typeURL, suffix) {
			return v, true
		}
	}
	var zero T
	return zero, false
}
