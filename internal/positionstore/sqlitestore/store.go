package sqlitestore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/benjaminabbitt/angzarr-core/internal/positionstore"
	"github.com/benjaminabbitt/angzarr-core/pb"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store { return &Store{db: db} }

var _ positionstore.PositionStore = (*Store)(nil)

func (s *Store) Get(ctx context.Context, handler, domain, edition string, root uuid.UUID) (uint64, bool, error) {
	if edition == "" {
		edition = pb.MainTimeline
	}
	row := s.db.QueryRowContext(ctx, `SELECT sequence FROM positions WHERE handler=? AND edition=? AND domain=? AND root=?`, handler, edition, domain, root.String())
	var seq int64
	if err := row.Scan(&seq); err != nil {
		if err == sql.ErrNoRows {
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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (handler, edition, domain, root, sequence, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (handler, edition, domain, root) DO UPDATE SET
			sequence=excluded.sequence, updated_at=excluded.updated_at
	`, handler, edition, domain, root.String(), seq, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}
