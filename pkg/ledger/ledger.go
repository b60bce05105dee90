// Package ledger reads and repairs the migration history table kept by the
// schema diffing tool (_prisma_migrations). One row per applied migration,
// carrying the checksum of its SQL text recorded at apply time.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
)

// Execer is the minimal interface needed for ledger operations.
// Implemented by *sql.DB, *sql.Tx, and *sql.Conn.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Record is one row of the migration history table.
type Record struct {
	// Name is the timestamp-prefixed migration directory name.
	Name     string
	Checksum string
	// StartedAt is set when the tool begins applying the migration.
	StartedAt sql.NullTime
	// FinishedAt is null for a failed or incomplete application; such rows
	// need manual resolution before the tool will proceed.
	FinishedAt        sql.NullTime
	AppliedStepsCount int
}

// Applied reports whether the migration finished applying.
func (r Record) Applied() bool {
	return r.FinishedAt.Valid
}

// Client provides read and repair access to the history table.
type Client struct {
	db Execer
}

// NewClient creates a ledger client on top of db.
func NewClient(db Execer) *Client {
	return &Client{db: db}
}

// Records returns every row of the history table ordered by migration name.
// The timestamp prefix makes name order application order.
func (c *Client) Records(ctx context.Context) ([]Record, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT migration_name, checksum, started_at, finished_at, applied_steps_count
		FROM _prisma_migrations
		ORDER BY migration_name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying migration ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Name, &rec.Checksum, &rec.StartedAt, &rec.FinishedAt, &rec.AppliedStepsCount); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpdateChecksum issues the single conditional update that repairs a ledger
// checksum. Returns the number of rows affected: zero means the migration
// has no ledger row yet, which callers treat as informational.
func (c *Client) UpdateChecksum(ctx context.Context, name, sum string) (int64, error) {
	res, err := c.db.ExecContext(ctx, `
		UPDATE _prisma_migrations SET checksum = $1 WHERE migration_name = $2
	`, sum, name)
	if err != nil {
		return 0, fmt.Errorf("updating ledger checksum for %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows for %s: %w", name, err)
	}
	return n, nil
}
