// Package ledger provides the SQLite-backed deduplication ledger: every URL
// ever extracted, plus the registry of batches that carried them.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arnvik/raido/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS urls (
	url        TEXT PRIMARY KEY,
	batch      TEXT NOT NULL DEFAULT '',
	first_seen DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS batches (
	name       TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	count      INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_batches_kind ON batches(kind);
`

// DB wraps a sql.DB with ledger-specific operations.
type DB struct {
	conn *sql.DB
}

// BatchRow is one registered batch.
type BatchRow struct {
	Name      string
	Kind      models.Kind
	Count     int
	CreatedAt time.Time
}

// Open opens (or creates) the ledger database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ledger: open db: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Contains reports whether a URL was already extracted in some earlier run.
func (db *DB) Contains(url string) (bool, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(1) FROM urls WHERE url = ?`, url).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("ledger: contains: %w", err)
	}
	return n > 0, nil
}

// FilterNew returns the subset of entries whose URL is not yet in the ledger,
// preserving input order. Membership is set semantics over the normalized URL.
func (db *DB) FilterNew(entries []models.URLEntry) ([]models.URLEntry, error) {
	var out []models.URLEntry
	for _, e := range entries {
		known, err := db.Contains(e.URL)
		if err != nil {
			return nil, err
		}
		if !known {
			out = append(out, e)
		}
	}
	return out, nil
}

// AddBatch registers a batch and records every one of its URLs, within a
// single transaction. Re-adding a URL is a no-op, so replays stay idempotent.
func (db *DB) AddBatch(b models.Batch) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT OR IGNORE INTO batches (name, kind, count, created_at)
		VALUES (?, ?, ?, ?)
	`, b.Name, b.Kind.String(), len(b.Entries), b.CreatedAt)
	if err != nil {
		return fmt.Errorf("ledger: insert batch: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO urls (url, batch, first_seen) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("ledger: prepare url insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range b.Entries {
		if _, err := stmt.Exec(e.URL, b.Name, b.CreatedAt); err != nil {
			return fmt.Errorf("ledger: insert url: %w", err)
		}
	}

	return tx.Commit()
}

// Batches returns registered batches of one kind (or all kinds when kind is
// empty), most recent name last.
func (db *DB) Batches(kind models.Kind) ([]BatchRow, error) {
	query := `SELECT name, kind, count, created_at FROM batches ORDER BY name`
	args := []any{}
	if kind != "" {
		query = `SELECT name, kind, count, created_at FROM batches WHERE kind = ? ORDER BY name`
		args = append(args, kind.String())
	}
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: batches: %w", err)
	}
	defer rows.Close()

	var out []BatchRow
	for rows.Next() {
		var r BatchRow
		var k string
		if err := rows.Scan(&r.Name, &k, &r.Count, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Kind = models.Kind(k)
		out = append(out, r)
	}
	return out, rows.Err()
}

// URLCount returns the total number of URLs ever recorded.
func (db *DB) URLCount() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(1) FROM urls`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ledger: url count: %w", err)
	}
	return n, nil
}
