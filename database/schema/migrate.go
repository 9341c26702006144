// Package schema embeds and applies the minimum persisted layout from spec
// §6. The schema is small and append-mostly, so a hand-rolled embed.FS apply
// is used rather than pulling in a migration framework.
package schema

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
)

//go:embed sqlite.sql postgres.sql
var files embed.FS

// Dialect selects which embedded schema file to apply.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite.sql"
	DialectPostgres Dialect = "postgres.sql"
)

// Apply executes the schema file for the given dialect against db.
func Apply(ctx context.Context, db *sql.DB, dialect Dialect) error {
	raw, err := files.ReadFile(string(dialect))
	if err != nil {
		return fmt.Errorf("schema: read %s: %w", dialect, err)
	}
	if _, err := db.ExecContext(ctx, string(raw)); err != nil {
		return fmt.Errorf("schema: apply %s: %w", dialect, err)
	}
	return nil
}
