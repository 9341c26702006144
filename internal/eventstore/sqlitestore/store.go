// Package sqlitestore implements eventstore.EventStore on modernc.org/sqlite
// (pure Go, no cgo), grounded on randalmurphal-flowgraph's use of the same
// driver and on original_source/src/storage/sqlite/event_store.rs for the
// locking and composite-read semantics.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/benjaminabbitt/angzarr-core/database/schema"
	"github.com/benjaminabbitt/angzarr-core/internal/eventstore"
	"github.com/benjaminabbitt/angzarr-core/internal/model"
	"github.com/benjaminabbitt/angzarr-core/pb"
)

// Store is a sqlite-backed EventStore.
type Store struct {
	db *sql.DB
}

// New wraps an already-opened, schema-applied *sql.DB. Used by callers that
// share one connection across the event/snapshot/position sqlite stores.
func New(db *sql.DB) *Store { return &Store{db: db} }

// Open opens (creating if needed) a sqlite database at path and applies the
// schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite serializes writers anyway; avoid pool contention on BEGIN IMMEDIATE
	if err := schema.Apply(ctx, db, schema.DialectSQLite); err != nil {
		return nil, err
	}
	return New(db), nil
}

// DB exposes the underlying connection so other sqlite-backed stores
// (snapshot, position) can share it rather than opening their own.
func (s *Store) DB() *sql.DB { return s.db }

var _ eventstore.EventStore = (*Store)(nil)

const timeLayout = time.RFC3339Nano

func (s *Store) Append(ctx context.Context, domain, edition string, root uuid.UUID, pages []pb.EventPage, correlationID string) error {
	if edition == "" {
		edition = pb.MainTimeline
	}

	// BEGIN IMMEDIATE acquires the write lock up front, avoiding the
	// DEFERRED-transaction upgrade deadlock a plain BEGIN risks under
	// concurrent writers (spec §5). database/sql's Tx type can't issue a
	// raw BEGIN IMMEDIATE, so the transaction is driven with explicit
	// statements on the pooled connection instead (SetMaxOpenConns(1)
	// keeps this safe).
	if _, err := s.db.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("sqlitestore: begin immediate: %w", err)
	}
	commit := func(err error) error {
		if err != nil {
			_, _ = s.db.ExecContext(ctx, "ROLLBACK")
			return err
		}
		_, cErr := s.db.ExecContext(ctx, "COMMIT")
		return cErr
	}

	// localMaxSeq is the edition's own tail, independent of main.
	var localMaxSeq int64 = -1
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), -1) FROM events WHERE edition=? AND domain=? AND root=?`, edition, domain, root.String())
	if err := row.Scan(&localMaxSeq); err != nil {
		return commit(fmt.Errorf("sqlitestore: tail query: %w", err))
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
		mainRow := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), -1) FROM events WHERE edition=? AND domain=? AND root=?`, pb.MainTimeline, domain, root.String())
		if err := mainRow.Scan(&mainMaxSeq); err != nil {
			return commit(fmt.Errorf("sqlitestore: main tail query: %w", err))
		}
		if mainMaxSeq >= 0 {
			tail = uint64(mainMaxSeq) + 1
		}
	default:
		tail = 0
	}

	for i, p := range pages {
		seq := p.Sequence
		if seq == 0 && i == 0 && tail != 0 {
			// unset sequence: assign densely from tail
			seq = tail
		} else if i > 0 {
			seq = tail + uint64(i)
		}
		if p.Sequence != 0 && p.Sequence != tail+uint64(i) {
			return commit(&model.ConflictingSequenceError{
				Domain: domain, Edition: edition, Root: root.String(),
				Expected: tail + uint64(i), Actual: p.Sequence,
			})
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

		var extType, extURI, extHash sql.NullString
		var extSize sql.NullInt64
		var extStoredAt sql.NullString
		if p.External != nil {
			extType = sql.NullString{String: p.External.StorageType, Valid: true}
			extURI = sql.NullString{String: p.External.URI, Valid: true}
			extHash = sql.NullString{String: p.External.ContentHash, Valid: true}
			extSize = sql.NullInt64{Int64: p.External.OriginalSize, Valid: true}
			extStoredAt = sql.NullString{String: p.External.StoredAt.Format(timeLayout), Valid: true}
		}

		_, err := s.db.ExecContext(ctx, `
			INSERT INTO events (edition, domain, root, sequence, created_at, type_url, event_data,
				external_storage_type, external_uri, external_hash, external_size, external_stored_at, correlation_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, edition, domain, root.String(), seq, created.Format(timeLayout), typeURL, data,
			extType, extURI, extHash, extSize, extStoredAt, correlationID)
		if err != nil {
			return commit(fmt.Errorf("sqlitestore: insert event: %w", err))
		}
	}

	return commit(nil)
}

func (s *Store) queryPages(ctx context.Context, domain, edition string, root uuid.UUID) ([]pb.EventPage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, created_at, type_url, event_data,
			external_storage_type, external_uri, external_hash, external_size, external_stored_at
		FROM events WHERE edition=? AND domain=? AND root=? ORDER BY sequence ASC
	`, edition, domain, root.String())
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query: %w", err)
	}
	defer rows.Close()

	var out []pb.EventPage
	for rows.Next() {
		var seq int64
		var createdAt, typeURL string
		var data []byte
		var extType, extURI, extHash, extStoredAt sql.NullString
		var extSize sql.NullInt64
		if err := rows.Scan(&seq, &createdAt, &typeURL, &data, &extType, &extURI, &extHash, &extSize, &extStoredAt); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan: %w", err)
		}
		ts, _ := time.Parse(timeLayout, createdAt)
		page := pb.EventPage{Sequence: uint64(seq), CreatedAt: ts}
		if extURI.Valid {
			storedAt, _ := time.Parse(timeLayout, extStoredAt.String)
			page.External = &pb.ExternalPayload{
				StorageType: extType.String, URI: extURI.String, ContentHash: extHash.String,
				OriginalSize: extSize.Int64, StoredAt: storedAt,
			}
		} else {
			page.Event = &anypb.Any{TypeUrl: typeURL, Value: data}
		}
		out = append(out, page)
	}
	return out, rows.Err()
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
	merged := eventstore.CompositeRead(editionPages, mainPages, from)
	return pb.EventBook{Cover: cover, Pages: merged}, nil
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
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT edition, domain, root FROM events WHERE correlation_id=?
	`, correlationID)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: correlation query: %w", err)
	}
	type key struct{ edition, domain, root string }
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
		root, err := uuid.Parse(k.root)
		if err != nil {
			continue
		}
		pages, err := s.queryPages(ctx, k.domain, k.edition, root)
		if err != nil {
			return nil, err
		}
		var filtered []pb.EventPage
		for _, p := range pages {
			filtered = append(filtered, p)
		}
		books = append(books, pb.EventBook{
			Cover: pb.NewCoverWithEdition(k.domain, root, correlationID, k.edition),
			Pages: filtered,
		})
	}
	return books, nil
}

func (s *Store) DeleteEdition(ctx context.Context, domain, edition string) error {
	if edition == "" || edition == pb.MainTimeline {
		return model.InvalidArgument("sqlitestore: refusing to delete the main timeline")
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE domain=? AND edition=?`, domain, edition)
	return err
}
