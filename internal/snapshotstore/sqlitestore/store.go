// Package sqlitestore implements snapshotstore.SnapshotStore on
// modernc.org/sqlite, latest-only per the sqlite schema's primary key
// (edition, domain, root).
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/benjaminabbitt/angzarr-core/internal/snapshotstore"
	"github.com/benjaminabbitt/angzarr-core/pb"
)

type Store struct {
	db *sql.DB
}

// New wraps an already-opened sqlite *sql.DB (schema must be applied).
func New(db *sql.DB) *Store { return &Store{db: db} }

var _ snapshotstore.SnapshotStore = (*Store)(nil)

const timeLayout = time.RFC3339Nano

func (s *Store) Get(ctx context.Context, domain, edition string, root uuid.UUID) (pb.Snapshot, bool, error) {
	if edition == "" {
		edition = pb.MainTimeline
	}
	row := s.db.QueryRowContext(ctx, `SELECT sequence, type_url, state_data FROM snapshots WHERE edition=? AND domain=? AND root=?`, edition, domain, root.String())
	var seq int64
	var typeURL string
	var data []byte
	if err := row.Scan(&seq, &typeURL, &data); err != nil {
		if err == sql.ErrNoRows {
			return pb.Snapshot{}, false, nil
		}
		return pb.Snapshot{}, false, fmt.Errorf("sqlitestore(snapshot): scan: %w", err)
	}
	return pb.Snapshot{Sequence: uint64(seq), State: &anypb.Any{TypeUrl: typeURL, Value: data}}, true, nil
}

// GetAtSeq degrades to Get: the sqlite schema is latest-only (spec §9).
func (s *Store) GetAtSeq(ctx context.Context, domain, edition string, root uuid.UUID, seq uint64) (pb.Snapshot, bool, error) {
	snap, found, err := s.Get(ctx, domain, edition, root)
	if err != nil || !found || snap.Sequence > seq {
		return pb.Snapshot{}, false, err
	}
	return snap, true, nil
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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (edition, domain, root, sequence, type_url, state_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (edition, domain, root) DO UPDATE SET
			sequence=excluded.sequence, type_url=excluded.type_url,
			state_data=excluded.state_data, created_at=excluded.created_at
	`, edition, domain, root.String(), snap.Sequence, typeURL, data, time.Now().UTC().Format(timeLayout))
	return err
}

func (s *Store) Delete(ctx context.Context, domain, edition string, root uuid.UUID) error {
	if edition == "" {
		edition = pb.MainTimeline
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE edition=? AND domain=? AND root=?`, edition, domain, root.String())
	return err
}
