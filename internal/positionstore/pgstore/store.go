// Package pgstore implements positionstore.PositionStore on
// github.com/jackc/pgx/v5/pgxpool.
package pgstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/benjaminabbitt/angzarr-core/internal/positionstore"
	"github.com/benjaminabbitt/angzarr-core/pb"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

var _ positionstore.PositionStore = (*Store)(nil)

func (s *Store) Get(ctx context.Context, handler, domain, edition string, root uuid.UUID) (uint64, bool, error) {
	if edition == "" {
		edition = pb.MainTimeline
	}
	row := s.pool.QueryRow(ctx, `SELECT sequence FROM positions WHERE handler=$1 AND edition=$2 AND domain=$3 AND root=$4`, handler, edition, domain, root)
	var seq int64
	if err := row.Scan(&seq); err != nil {
		if err == pgx.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(seq), true, nil
}

func (s *Store) Put(ctx context.Context, handler, domain, edition string, root uuid.UUID, seq uint64) error {
	if edition == "" {
		edition = pb.MainTimeline
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO positions (handler, edition, domain, root, sequence, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (handler, edition, domain, root) DO UPDATE SET
			sequence=excluded.sequence, updated_at=excluded.updated_at
	`, handler, edition, domain, root, seq, time.Now().UTC())
	return err
}
