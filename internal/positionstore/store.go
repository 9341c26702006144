// Package positionstore defines the PositionStore contract (spec §4.3): a
// durable per-handler cursor used by projectors and sagas to resume after a
// crash.
package positionstore

import (
	"context"

	"github.com/google/uuid"
)

// PositionStore tracks the last sequence a named handler has successfully
// processed for a given (domain, edition, root).
type PositionStore interface {
	Get(ctx context.Context, handler, domain, edition string, root uuid.UUID) (seq uint64, found bool, err error)
	Put(ctx context.Context, handler, domain, edition string, root uuid.UUID, seq uint64) error
}
