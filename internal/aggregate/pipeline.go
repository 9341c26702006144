package aggregate

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/benjaminabbitt/angzarr-core/internal/logging"
	"github.com/benjaminabbitt/angzarr-core/internal/metrics"
	"github.com/benjaminabbitt/angzarr-core/internal/model"
	"github.com/benjaminabbitt/angzarr-core/internal/retry"
	"github.com/benjaminabbitt/angzarr-core/pb"
)

// ErrReplayUnimplemented is returned by ClientLogic.Replay when replay
// isn't supported; COMMUTATIVE then silently degrades to STRICT (spec §7).
var ErrReplayUnimplemented = errors.New("aggregate: replay not implemented")

// correlationNamespace is uuid_v5(DNS, "angzarr.dev"), the fixed namespace
// spec §4.10 derives synthesized correlation ids from when a command
// arrives without one.
var correlationNamespace = uuid.NewSHA1(uuid.NameSpaceDNS, []byte("angzarr.dev"))

// Pipeline is the aggregate command pipeline (spec §4.6): parse, validate,
// load, invoke, merge-resolve, persist, fan out.
type Pipeline struct {
	deps *Context
}

// New builds a Pipeline over the given Context.
func New(deps *Context) *Pipeline {
	return &Pipeline{deps: deps}
}

// Execute runs the full pipeline for one command book (spec §4.6 entry
// point). mode selects durable execute vs. speculative replay.
func (p *Pipeline) Execute(ctx context.Context, cmd pb.CommandBook, mode pb.PipelineMode) (result pb.CommandResponse, err error) {
	log := logging.Component("aggregate-pipeline")
	timer := metrics.NewTimer()
	domain := cmd.Cover.Domain
	defer func() {
		timer.ObserveDurationVec(metrics.CommandDuration, domain)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.CommandsTotal.WithLabelValues(domain, outcome).Inc()
	}()

	root := cmd.Cover.Root
	if domain == "" || root == uuid.Nil {
		return pb.CommandResponse{}, model.InvalidArgument("command cover missing domain or root")
	}
	edition := cmd.Cover.EditionOrMain()
	if edition != pb.MainTimeline {
		if err := validateEditionName(edition); err != nil {
			return pb.CommandResponse{}, err
		}
	}

	correlationID := cmd.Cover.CorrelationID
	if correlationID == "" {
		correlationID = synthesizeCorrelationID(cmd)
	}
	cmd.Cover.CorrelationID = correlationID
	cmd.Cover.Edition = edition

	log = logging.WithCorrelation(logging.WithDomain(log, domain), correlationID)

	logic, err := p.deps.Resolve(domain)
	if err != nil {
		return pb.CommandResponse{}, model.Unavailable(err, "resolving client logic for domain %q", domain)
	}

	expected := cmd.ExpectedSequence()

	var events pb.EventBook
	if mode.Speculative {
		events, err = p.loadForSpeculation(ctx, domain, edition, root, mode)
	} else {
		events, err = p.deps.Events.Load(ctx, domain, edition, root, 0)
	}
	if err != nil {
		return pb.CommandResponse{}, model.Unavailable(err, "loading events for (%s,%s,%s)", domain, edition, root)
	}

	actual := events.NextSequence()
	if expected != actual {
		if err := p.resolveConflict(ctx, logic, cmd, events, expected, actual); err != nil {
			return pb.CommandResponse{}, err
		}
	}

	resp, err := logic.Handle(ctx, ContextualCommand{Events: events, Command: cmd})
	if err != nil {
		return pb.CommandResponse{}, model.Internal(err, "client logic handle failed")
	}

	if mode.Speculative {
		return pb.CommandResponse{Events: resp.Events}, nil
	}

	persisted, err := p.persist(ctx, domain, edition, root, correlationID, actual, resp)
	if err != nil {
		return pb.CommandResponse{}, err
	}

	projections, err := p.fanout(ctx, pb.EventBook{Cover: cmd.Cover, Pages: persisted})
	if err != nil {
		log.Warn().Err(err).Msg("fanout encountered an error")
	}

	return pb.CommandResponse{Events: persisted, Projections: projections}, nil
}

// ExecuteDurable adapts Execute to the saga/process-manager
// CommandExecutor seam: a durable (non-speculative) run with the default
// pipeline mode and retry policy.
func (p *Pipeline) ExecuteDurable(ctx context.Context, cmd pb.CommandBook) (pb.CommandResponse, error) {
	return p.ExecuteWithRetry(ctx, cmd, pb.ExecuteMode, retry.DefaultPolicy())
}

// ExecuteWithRetry wraps Execute with the outer retry loop from spec §4.6:
// FailedPrecondition and Unavailable retry with backoff and jitter,
// reloading fresh state each attempt; everything else is fatal.
func (p *Pipeline) ExecuteWithRetry(ctx context.Context, cmd pb.CommandBook, mode pb.PipelineMode, policy retry.Policy) (pb.CommandResponse, error) {
	return retry.Do(ctx, policy, "aggregate-pipeline", func(ctx context.Context) (pb.CommandResponse, error) {
		return p.Execute(ctx, cmd, mode)
	})
}

func (p *Pipeline) loadForSpeculation(ctx context.Context, domain, edition string, root uuid.UUID, mode pb.PipelineMode) (pb.EventBook, error) {
	switch {
	case mode.AsOf.BySequence:
		return p.deps.Events.LoadRange(ctx, domain, edition, root, 0, mode.AsOf.Sequence+1)
	case mode.AsOf.ByTime:
		return p.deps.Events.LoadUntilTimestamp(ctx, domain, edition, root, mode.AsOf.Time)
	default:
		return p.deps.Events.Load(ctx, domain, edition, root, 0)
	}
}

// persist stores any snapshot client logic returned, then appends every
// page it returned, tagging each with the resolved correlation id (spec
// §4.6 "Persist").
func (p *Pipeline) persist(ctx context.Context, domain, edition string, root uuid.UUID, correlationID string, actual uint64, resp BusinessResponse) ([]pb.EventPage, error) {
	if resp.Snapshot != nil {
		if err := p.deps.Snapshots.Put(ctx, domain, edition, root, *resp.Snapshot); err != nil {
			return nil, model.Unavailable(err, "persisting snapshot")
		}
	}

	newPages := resp.Events
	if len(newPages) == 0 {
		return nil, nil
	}

	// Assign dense sequences starting at actual, rewriting whatever
	// client-suggested sequences arrived — the pipeline is the sole
	// authority on sequencing (spec §4.6 "Persist").
	for i := range newPages {
		newPages[i].Sequence = actual + uint64(i)
	}

	if err := p.deps.Events.Append(ctx, domain, edition, root, newPages, correlationID); err != nil {
		return nil, model.Unavailable(err, "appending events")
	}
	return newPages, nil
}

// fanout publishes the persisted book to the bus and invokes every
// registered sync projector for the domain in parallel (spec §4.6
// "Fanout", §5 ordering: sync projector side effects complete before the
// response returns).
func (p *Pipeline) fanout(ctx context.Context, book pb.EventBook) ([]pb.Projection, error) {
	if len(book.Pages) == 0 {
		return nil, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := p.deps.Bus.Publish(gctx, book); err != nil {
			return err
		}
		metrics.BusPublishTotal.WithLabelValues(book.Cover.Domain).Inc()
		return nil
	})

	projectors := p.deps.SyncProjectors[book.Cover.Domain]
	results := make([]pb.Projection, len(projectors))
	for i, proj := range projectors {
		i, proj := i, proj
		g.Go(func() error {
			out, err := proj.Handle(gctx, book)
			if err != nil {
				return fmt.Errorf("sync projector %s: %w", proj.Name(), err)
			}
			results[i] = out
			return nil
		})
	}

	err := g.Wait()
	// Partial results are still useful even if one projector or the bus
	// publish failed; the caller logs and returns what succeeded.
	out := make([]pb.Projection, 0, len(results))
	for _, r := range results {
		if r.Projector != "" {
			out = append(out, r)
		}
	}
	return out, err
}

func validateEditionName(edition string) error {
	if edition == "" {
		return nil
	}
	for _, r := range edition {
		if r == ' ' || r == '\t' || r == '\n' {
			return model.InvalidArgument("edition name %q contains whitespace", edition)
		}
	}
	return nil
}

func synthesizeCorrelationID(cmd pb.CommandBook) string {
	var payload []byte
	if len(cmd.Pages) > 0 && cmd.Pages[0].Command != nil {
		payload = append([]byte(cmd.Pages[0].Command.TypeUrl), cmd.Pages[0].Command.Value...)
	}
	payload = append([]byte(cmd.Cover.Domain+cmd.Cover.Root.String()), payload...)
	return uuid.NewSHA1(correlationNamespace, payload).String()
}
