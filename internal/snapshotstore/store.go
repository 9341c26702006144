// Package snapshotstore defines the SnapshotStore contract (spec §4.2) and
// its sqlite/postgres backends.
package snapshotstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/benjaminabbitt/angzarr-core/pb"
)

// SnapshotStore caches the latest (and, on capable backends, historical)
// replayed state per aggregate.
type SnapshotStore interface {
	// Get returns the latest snapshot. found=false if none exists.
	Get(ctx context.Context, domain, edition string, root uuid.UUID) (snap pb.Snapshot, found bool, err error)

	// GetAtSeq returns the most recent snapshot with Sequence <= seq.
	// Backends without historical storage degrade to Get, which is sound
	// because the pipeline tolerates a missing/stale snapshot and falls
	// back to full replay (spec §9 backend-feature-asymmetry note).
	GetAtSeq(ctx context.Context, domain, edition string, root uuid.UUID, seq uint64) (snap pb.Snapshot, found bool, err error)

	// Put upserts the snapshot keyed by (domain, edition, root).
	Put(ctx context.Context, domain, edition string, root uuid.UUID, snap pb.Snapshot) error

	// Delete removes any snapshot for (domain, edition, root).
	Delete(ctx context.Context, domain, edition string, root uuid.UUID) error
}
