// Package projector implements async and sync projectors (spec §4.7):
// stateless handlers that turn an event book into a Projection without
// emitting commands.
//
// Grounded on clientsdk's ProjectorBase (Projects/Handle dispatch by
// event type_url suffix), generalized to the opaque anypb.Any payload
// model — handlers receive the event's *anypb.Any directly.
package projector

import (
	"context"
	"strings"

	"google.golang.org/protobuf/types/known/anypb"

	"github.com/benjaminabbitt/angzarr-core/pb"
)

// HandleFunc computes a projection payload from one event; a nil payload
// means "use the default projection" (cover + sequence only, no Projection
// payload of its own).
type HandleFunc func(event *anypb.Any) (*anypb.Any, error)

// Base is embedded by a concrete projector and registers its per-event-type
// handlers.
type Base struct {
	name     string
	domains  []string
	handlers map[string]HandleFunc
}

// Init configures the projector's identity and the domains it subscribes
// to.
func (b *Base) Init(name string, domains []string) {
	b.name = name
	b.domains = domains
	b.handlers = map[string]HandleFunc{}
}

func (b *Base) Name() string      { return b.name }
func (b *Base) Domains() []string { return b.domains }

// Projects registers the handler for an event type_url suffix.
func (b *Base) Projects(suffix string, fn HandleFunc) {
	b.handlers[suffix] = fn
}

// Handle implements aggregate.SyncProjector and the async runner's
// ProjectorHandler: the first page with a matching handler that returns a
// non-nil payload wins; otherwise a default (payload-less) projection for
// the book's last sequence is returned.
func (b *Base) Handle(ctx context.Context, book pb.EventBook) (pb.Projection, error) {
	var lastSeq uint64
	for _, page := range book.Pages {
		if page.Event == nil {
			continue
		}
		lastSeq = page.Sequence
		handler, ok := lookup(b.handlers, page.Event.TypeUrl)
		if !ok {
			continue
		}
		payload, err := handler(page.Event)
		if err != nil {
			return pb.Projection{}, err
		}
		if payload != nil {
			return pb.Projection{Projector: b.name, Cover: book.Cover, Projection: payload, Sequence: page.Sequence}, nil
		}
	}
	return pb.Projection{Projector: b.name, Cover: book.Cover, Sequence: lastSeq}, nil
}

func lookup(m map[string]HandleFunc, typeURL string) (HandleFunc, bool) {
	for suffix, fn := range m {
		if strings.HasSuffix(typeURL, suffix) {
			return fn, true
		}
	}
	return nil, false
}
