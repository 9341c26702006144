// Package pgstore implements snapshotstore.SnapshotStore on
// github.com/jackc/pgx/v5/pgxpool. Unlike the sqlite backend, postgres's
// schema keys on (edition, domain, root, sequence) so this backend
// supports real historical snapshot lookups via GetAtSeq (spec §9's
// backend-feature-asymmetry note).
package pgstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/benjaminabbitt/angzarr-core/internal/snapshotstore"
	"github.com/benjaminabbitt/angzarr-core/pb"
)

type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-connected pool (schema must be applied).
func New(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

var _ snapshotstore.SnapshotStore = (*Store)(nil)

func (s *Store) Get(ctx context.Context, domain, edition string, root uuid.UUID) (pb.Snapshot, bool, error) {
	if edition == "" {
		edition = pb.MainTimeline
	}
	row := s.pool.QueryRow(ctx, `
		SELECT sequence, type_url, state_data FROM snapshots
		WHERE edition=$1 AND domain=$2 AND root=$3
		ORDER BY sequence DESC LIMIT 1`, edition, domain, root)
	var seq int64
	var typeURL string
	var data []byte
	if err := row.Scan(&seq, &typeURL, &data); err != nil {
		if err == pgx.ErrNoRows {
			return pb.Snapshot{}, false, nil
		}
		return pb.Snapshot{}, false, err
	}
	return pb.Snapshot{Sequence: uint64(seq), State: &anypb.Any{TypeUrl: typeURL, Value: data}}, true, nil
}

// GetAtSeq returns the most recent snapshot with Sequence <= seq, a real
// historical lookup on this backend (spec §9).
func (s *Store) GetAtSeq(ctx context.Context, domain, edition string, root uuid.UUID, seq uint64) (pb.Snapshot, bool, error) {
	if edition == "" {
		edition = pb.MainTimeline
	}
	row := s.pool.QueryRow(ctx, `
		SELECT sequence, type_url, state_data FROM snapshots
		WHERE edition=$1 AND domain=$2 AND root=$3 AND sequence<=$4
		ORDER BY sequence DESC LIMIT 1`, edition, domain, root, int64(seq))
	var gotSeq int64
	var typeURL string
	var data []byte
	if err := row.Scan(&gotSeq, &typeURL, &data); err != nil {
		if err == pgx.ErrNoRows {
			return pb.Snapshot{}, false, nil
		}
		return pb.Snapshot{}, false, err
	}
	return pb.Snapshot{Sequence: uint64(gotSeq), State: &anypb.Any{TypeUrl: typeURL, Value: data}}, true, nil
}

func (s *Store) Put(ctx context.Context, domain, edition string, root uuid.UUID, snap pb.Snapshot) error {
	if edition == "" {
		edition = pb.MainTimeline
	}
	var typeURL string
	var data []byte
	if snap.State != nil {
		typeURL, data = snap.State.TypeUrl, snap.State.Value
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO snapshots (edition, domain, root, sequence, type_url, state_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (edition, domain, root, sequence) DO UPDATE SET
			type_url=excluded.type_url, state_data=excluded.state_data, created_at=excluded.created_at
	`, edition, domain, root, snap.Sequence, typeURL, data, time.Now().UTC())
	return err
}

func (s *Store) Delete(ctx context.Context, domain, edition string, root uuid.UUID) error {
	if edition == "" {
		edition = pb.MainTimeline
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM snapshots WHERE edition=$1 AND domain=$2 AND root=$3`, edition, domain, root)
	return err
}
