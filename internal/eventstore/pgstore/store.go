// Package pgstore implements eventstore.EventStore on jackc/pgx/v5,
// grounded on mickamy-go-event-sourcing/stores/pgx/pgx_store.go's
// Begin/SELECT-tail/insert-loop/Commit transaction shape and on
// original_source/src/storage/postgres/event_store.rs for per-aggregate
// locking (SELECT ... FOR UPDATE on a lazily-created lock row) and the
// composite-edition-read semantics.
package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/benjaminabbitt/angzarr-core/internal/eventstore"
	"github.com/benjaminabbitt/angzarr-core/internal/model"
	"github.com/benjaminabbitt/angzarr-core/pb"
)

// Store is a postgres-backed EventStore.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-configured pgxpool.Pool. Schema must already be
// applied (see database/schema).
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ eventstore.EventStore = (*Store)(nil)

func (s *Store) Append(ctx context.Context, domain, edition string, root uuid.UUID, pages []pb.EventPage, correlationID string) error {
	if edition == "" {
		edition = pb.MainTimeline
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgstore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lazily create and lock the per-aggregate row; FOR UPDATE holds the
	// lock for the duration of this transaction, serializing concurrent
	// appends to the same (domain, edition, root) per spec §5.
	if _, err := tx.Exec(ctx, `
		INSERT INTO aggregate_locks (edition, domain, root) VALUES ($1, $2, $3)
		ON CONFLICT (edition, domain, root) DO NOTHING
	`, edition, domain, root); err != nil {
		return fmt.Errorf("pgstore: lock upsert: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		SELECT 1 FROM aggregate_locks WHERE edition=$1 AND domain=$2 AND root=$3 FOR UPDATE
	`, edition, domain, root); err != nil {
		return fmt.Errorf("pgstore: lock acquire: %w", err)
	}

	var localMaxSeq int64 = -1
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence), -1) FROM events WHERE edition=$1 AND domain=$2 AND root=$3
	`, edition, domain, root).Scan(&localMaxSeq); err != nil {
		return fmt.Errorf("pgstore: tail query: %w", err)
	}

	var tail uint64
	switch {
	case localMaxSeq >= 0:
		// Edition (or main) already has local events: continue densely
		// from its own tail.
		tail = uint64(localMaxSeq) + 1
	case edition != pb.MainTimeline && len(pages) > 0 && pages[0].Sequence != 0:
		// First local event for this edition, with an explicit sequence:
		// this establishes the divergence point (spec §3's Edition
		// invariant — D is whatever the first local event's sequence is,
		// not constrained to equal main's current tail).
		tail = pages[0].Sequence
	case edition != pb.MainTimeline:
		// First local event for this edition with an unset sequence:
		// inherit the main timeline's tail, per the NextSequence contract
		// in spec §4.1.
		var mainMaxSeq int64 = -1
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(sequence), -1) FROM events WHERE edition=$1 AND domain=$2 AND root=$3
		`, pb.MainTimeline, domain, root).Scan(&mainMaxSeq); err != nil {
			return fmt.Errorf("pgstore: main tail query: %w", err)
		}
		if mainMaxSeq >= 0 {
			tail = uint64(mainMaxSeq) + 1
		}
	default:
		tail = 0
	}

	for i, p := range pages {
		expected := tail + uint64(i)
		if p.Sequence != 0 && p.Sequence != expected {
			return &model.ConflictingSequenceError{
				Domain: domain, Edition: edition, Root: root.String(),
				Expected: expected, Actual: p.Sequence,
			}
		}

		created := p.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}

		var typeURL string
		var data []byte
		if p.Event != nil {
			typeURL = p.Event.TypeUrl
			data = p.Event.Value
		}

		var extType, extURI, extHash *string
		var extSize *int64
		var extStoredAt *time.Time
		if p.External != nil {
			extType, extURI, extHash = &p.External.StorageType, &p.External.URI, &p.External.ContentHash
			extSize = &p.External.OriginalSize
			extStoredAt = &p.External.StoredAt
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO events (edition, domain, root, sequence, created_at, type_url, event_data,
				external_storage_type, external_uri, external_hash, external_size, external_stored_at, correlation_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, edition, domain, root, expected, created, typeURL, data,
			extType, extURI, extHash, extSize, extStoredAt, correlationID); err != nil {
			return fmt.Errorf("pgstore: insert event: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) queryPages(ctx context.Context, domain, edition string, root uuid.UUID) ([]pb.EventPage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sequence, created_at, type_url, event_data,
			external_storage_type, external_uri, external_hash, external_size, external_stored_at
		FROM events WHERE edition=$1 AND domain=$2 AND root=$3 ORDER BY sequence ASC
	`, edition, domain, root)
	if err != nil {
		return nil, fmt.Errorf("pgstore: query: %w", err)
	}
	defer rows.Close()

	var out []pb.EventPage
	for rows.Next() {
		var seq int64
		var createdAt time.Time
		var typeURL string
		var data []byte
		var extType, extURI, extHash *string
		var extSize *int64
		var extStoredAt *time.Time
		if err := rows.Scan(&seq, &createdAt, &typeURL, &data, &extType, &extURI, &extHash, &extSize, &extStoredAt); err != nil {
			return nil, fmt.Errorf("pgstore: scan: %w", err)
		}
		page := pb.EventPage{Sequence: uint64(seq), CreatedAt: createdAt}
		if extURI != nil {
			page.External = &pb.ExternalPayload{StorageType: derefStr(extType), URI: *extURI, ContentHash: derefStr(extHash)}
			if extSize != nil {
				page.External.OriginalSize = *extSize
			}
			if extStoredAt != nil {
				page.External.StoredAt = *extStoredAt
			}
		} else {
			page.Event = &anypb.Any{TypeUrl: typeURL, Value: data}
		}
		out = append(out, page)
	}
	return out, rows.Err()
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *Store) Load(ctx context.Context, domain, edition string, root uuid.UUID, from uint64) (pb.EventBook, error) {
	if edition == "" {
		edition = pb.MainTimeline
	}
	cover := pb.NewCoverWithEdition(domain, root, "", edition)

	if edition == pb.MainTimeline {
		pages, err := s.queryPages(ctx, domain, pb.MainTimeline, root)
		if err != nil {
			return pb.EventBook{}, err
		}
		return pb.EventBook{Cover: cover, Pages: eventstore.FilterFrom(pages, from)}, nil
	}

	editionPages, err := s.queryPages(ctx, domain, edition, root)
	if err != nil {
		return pb.EventBook{}, err
	}
	mainPages, err := s.queryPages(ctx, domain, pb.MainTimeline, root)
	if err != nil {
		return pb.EventBook{}, err
	}
	return pb.EventBook{Cover: cover, Pages: eventstore.CompositeRead(editionPages, mainPages, from)}, nil
}

func (s *Store) LoadRange(ctx context.Context, domain, edition string, root uuid.UUID, from, toExclusive uint64) (pb.EventBook, error) {
	book, err := s.Load(ctx, domain, edition, root, from)
	if err != nil {
		return pb.EventBook{}, err
	}
	var bounded []pb.EventPage
	for _, p := range book.Pages {
		if p.Sequence < toExclusive {
			bounded = append(bounded, p)
		}
	}
	book.Pages = bounded
	return book, nil
}

func (s *Store) LoadUntilTimestamp(ctx context.Context, domain, edition string, root uuid.UUID, until time.Time) (pb.EventBook, error) {
	book, err := s.Load(ctx, domain, edition, root, 0)
	if err != nil {
		return pb.EventBook{}, err
	}
	var bounded []pb.EventPage
	for _, p := range book.Pages {
		if !p.CreatedAt.After(until) {
			bounded = append(bounded, p)
		}
	}
	book.Pages = bounded
	return book, nil
}

func (s *Store) NextSequence(ctx context.Context, domain, edition string, root uuid.UUID) (uint64, error) {
	book, err := s.Load(ctx, domain, edition, root, 0)
	if err != nil {
		return 0, err
	}
	return book.NextSequence(), nil
}

func (s *Store) LoadByCorrelation(ctx context.Context, correlationID string) ([]pb.EventBook, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT edition, domain, root FROM events WHERE correlation_id=$1`, correlationID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: correlation query: %w", err)
	}
	type key struct {
		edition, domain string
		root            uuid.UUID
	}
	var keys []key
	for rows.Next() {
		var k key
		if err := rows.Scan(&k.edition, &k.domain, &k.root); err != nil {
			rows.Close()
			return nil, err
		}
		keys = append(keys, k)
	}
	rows.Close()

	var books []pb.EventBook
	for _, k := range keys {
		pages, err := s.queryPages(ctx, k.domain, k.edition, k.root)
		if err != nil {
			return nil, err
		}
		books = append(books, pb.EventBook{
			Cover: pb.NewCoverWithEdition(k.domain, k.root, correlationID, k.edition),
			Pages: pages,
		})
	}
	return books, nil
}

func (s *Store) DeleteEdition(ctx context.Context, domain, edition string) error {
	if edition == "" || edition == pb.MainTimeline {
		return model.InvalidArgument("pgstore: refusing to delete the main timeline")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM events WHERE domain=$1 AND edition=$2`, domain, edition)
	return err
}
