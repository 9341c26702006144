// Package bootstrap wires the storage/messaging backends selected by
// internal/config into a running aggregate.Context, Pipeline, and Gateway;
// the cmd/ entrypoints serve it with internal/transport/grpcx. Both cmd/angzarr-standalone
// and cmd/angzarr-embedded share this: they differ only in how they supply
// the Resolver (client logic lookup), per spec §6's "reachable over gRPC …
// or in-process" and spec.md §1's exclusion of the standalone process
// orchestrator and concrete wire formats from core scope.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/benjaminabbitt/angzarr-core/database/schema"
	"github.com/benjaminabbitt/angzarr-core/internal/aggregate"
	"github.com/benjaminabbitt/angzarr-core/internal/bus"
	"github.com/benjaminabbitt/angzarr-core/internal/bus/amqpbus"
	"github.com/benjaminabbitt/angzarr-core/internal/bus/ipcbus"
	"github.com/benjaminabbitt/angzarr-core/internal/bus/snssqsbus"
	"github.com/benjaminabbitt/angzarr-core/internal/config"
	"github.com/benjaminabbitt/angzarr-core/internal/discovery"
	"github.com/benjaminabbitt/angzarr-core/internal/dlq"
	"github.com/benjaminabbitt/angzarr-core/internal/eventstore"
	pgevents "github.com/benjaminabbitt/angzarr-core/internal/eventstore/pgstore"
	sqliteevents "github.com/benjaminabbitt/angzarr-core/internal/eventstore/sqlitestore"
	"github.com/benjaminabbitt/angzarr-core/internal/gateway"
	"github.com/benjaminabbitt/angzarr-core/internal/logging"
	"github.com/benjaminabbitt/angzarr-core/internal/positionstore"
	pgpositions "github.com/benjaminabbitt/angzarr-core/internal/positionstore/pgstore"
	redispositions "github.com/benjaminabbitt/angzarr-core/internal/positionstore/redisstore"
	sqlitepositions "github.com/benjaminabbitt/angzarr-core/internal/positionstore/sqlitestore"
	"github.com/benjaminabbitt/angzarr-core/internal/snapshotstore"
	pgsnapshots "github.com/benjaminabbitt/angzarr-core/internal/snapshotstore/pgstore"
	sqlitesnapshots "github.com/benjaminabbitt/angzarr-core/internal/snapshotstore/sqlitestore"
)

// Resolver looks up the ClientLogic collaborator for a domain; it is the
// pluggable seam named in aggregate.Context.Resolve. Standalone and
// embedded entrypoints supply different implementations.
type Resolver = func(domain string) (aggregate.ClientLogic, error)

// Stores bundles the three storage contracts built from config.
type Stores struct {
	Events    eventstore.EventStore
	Snapshots snapshotstore.SnapshotStore
	Positions positionstore.PositionStore
}

// Core is the fully wired process: storage, bus, discovery, pipeline, and
// gateway, ready for a transport (grpcx) to be run over it.
type Core struct {
	Config    config.Config
	Stores    Stores
	Bus       bus.EventBus
	Discovery discovery.Discovery
	Pipeline  *aggregate.Pipeline
	Gateway   *gateway.Gateway
}

// BuildStores opens the configured storage backend(s). For sqlite and
// postgres this returns full Events+Snapshots+Positions triples. Selecting
// redis returns an error: it is a PositionStore-only backend (spec §9
// backend-feature-asymmetry — see SPEC_FULL.md's storage backend selection
// note) and cannot be the primary StorageType.
func BuildStores(ctx context.Context, cfg config.StorageConfig) (Stores, func() error, error) {
	switch cfg.Type {
	case config.StorageSQLite:
		events, err := sqliteevents.Open(ctx, cfg.DSN)
		if err != nil {
			return Stores{}, nil, fmt.Errorf("bootstrap: open sqlite eventstore: %w", err)
		}
		db := events.DB()
		return Stores{
			Events:    events,
			Snapshots: sqlitesnapshots.New(db),
			Positions: sqlitepositions.New(db),
		}, db.Close, nil

	case config.StoragePostgres:
		// sql.Open("pgx", …) uses the database/sql driver pgx/v5/stdlib
		// registers on import, purely to run the embedded schema.Apply
		// (which takes a *sql.DB); runtime queries go through the
		// separately constructed pgxpool.Pool below.
		sqlDB, err := sql.Open("pgx", cfg.DSN)
		if err != nil {
			return Stores{}, nil, fmt.Errorf("bootstrap: open postgres for migration: %w", err)
		}
		if err := schema.Apply(ctx, sqlDB, schema.DialectPostgres); err != nil {
			_ = sqlDB.Close()
			return Stores{}, nil, err
		}
		_ = sqlDB.Close()

		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return Stores{}, nil, fmt.Errorf("bootstrap: open postgres pool: %w", err)
		}
		return Stores{
			Events:    pgevents.New(pool),
			Snapshots: pgsnapshots.New(pool),
			Positions: pgpositions.New(pool),
		}, func() error { pool.Close(); return nil }, nil

	case config.StorageRedis:
		return Stores{}, nil, fmt.Errorf("bootstrap: %q is a PositionStore-only backend, not selectable as the primary storage type", cfg.Type)

	default:
		return Stores{}, nil, fmt.Errorf("bootstrap: unregistered storage backend %q (named for forward-compatibility in config parsing only)", cfg.Type)
	}
}

// BuildRedisPositions opens a redis-backed PositionStore, used by runners
// that want a lower-latency cursor store independent of the primary
// StorageType (spec's redis-as-PositionStore-only note).
func BuildRedisPositions(addr string) positionstore.PositionStore {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return redispositions.New(client)
}

// BuildBus constructs the configured EventBus backend.
func BuildBus(cfg config.MessagingConfig, dlqPublisher dlq.Publisher) (bus.EventBus, error) {
	switch cfg.Type {
	case config.MessagingIPC:
		return ipcbus.New(dlqPublisher), nil
	case config.MessagingAMQP:
		return amqpbus.Dial(cfg.AMQPURL, cfg.AMQPExchange, dlqPublisher)
	case config.MessagingSNSSQS:
		return nil, fmt.Errorf("bootstrap: sns_sqs backend requires AWS SDK clients constructed from the process's own credential chain; wire via snssqsbus.New(snsClient, sqsClient, cfg, dlqPublisher) in the entrypoint instead of BuildBus")
	default:
		return nil, fmt.Errorf("bootstrap: unrecognized messaging type %q", cfg.Type)
	}
}

// BuildDiscovery selects EnvDiscovery when a single sidecar target is
// configured (ANGZARR__TARGET__ADDRESS), else an empty StaticDiscovery an
// embedding application registers endpoints into directly.
func BuildDiscovery(cfg config.TargetConfig) discovery.Discovery {
	if cfg.Address != "" {
		return discovery.NewEnvDiscovery(cfg)
	}
	return discovery.NewStaticDiscovery()
}

// Build assembles a Core from cfg, the given Resolver, and an optional set
// of sync projectors (nil is fine — most deployments run projectors as
// separate async processes per spec §4.7).
func Build(ctx context.Context, cfg config.Config, resolve Resolver, syncProjectors map[string][]aggregate.SyncProjector) (*Core, func() error, error) {
	stores, closeStores, err := BuildStores(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, err
	}

	dlqPublisher := dlq.NoopPublisher{}
	eventBus, err := BuildBus(cfg.Messaging, dlqPublisher)
	if err != nil {
		if closeStores != nil {
			_ = closeStores()
		}
		return nil, nil, err
	}

	aggCtx := &aggregate.Context{
		Events:         stores.Events,
		Snapshots:      stores.Snapshots,
		Bus:            eventBus,
		DLQ:            dlqPublisher,
		SyncProjectors: syncProjectors,
		Resolve:        resolve,
	}
	pipeline := aggregate.New(aggCtx)
	gw := gateway.New(pipeline, eventBus)

	core := &Core{
		Config:    cfg,
		Stores:    stores,
		Bus:       eventBus,
		Discovery: BuildDiscovery(cfg.Target),
		Pipeline:  pipeline,
		Gateway:   gw,
	}

	cleanup := func() error {
		if closeStores != nil {
			return closeStores()
		}
		return nil
	}
	return core, cleanup, nil
}

// LogStartup emits the single structured "core started" line every
// entrypoint logs, with the resolved storage/transport/messaging choice.
func LogStartup(component string, cfg config.Config) {
	logging.Component(component).Info().
		Str("storage", string(cfg.Storage.Type)).
		Str("transport", string(cfg.Transport.Type)).
		Str("messaging", string(cfg.Messaging.Type)).
		Msg("angzarr-core starting")
}
