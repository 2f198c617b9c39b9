// Package sqlitekv is the SQLite-backed durable key-value mirror. It lives
// in its own database file so mirror writes stay available even when the
// primary chunk store is degraded or in-memory.
package sqlitekv

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/halfmoonlabs/engram/pkg/kv"
)

// Store implements kv.Store on a single SQLite table.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// New opens or creates the mirror database at dbPath.
// Use ":memory:" for tests.
func New(dbPath string, logger *zap.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening mirror database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			value BLOB NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating kv table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS kv_owner ON kv(owner)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating owner index: %w", err)
	}

	logger.Debug("sqlite kv mirror initialized", zap.String("db_path", dbPath))

	return &Store{db: db, logger: logger}, nil
}

// Put writes or replaces a record by key.
func (s *Store) Put(ctx context.Context, rec kv.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv(key, owner, value) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET owner = excluded.owner, value = excluded.value
	`, rec.Key, rec.Owner, rec.Value)
	if err != nil {
		return fmt.Errorf("putting record %s: %w", rec.Key, err)
	}
	return nil
}

// GetAllByOwner returns every record whose owner matches.
func (s *Store) GetAllByOwner(ctx context.Context, owner string) ([]kv.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, owner, value FROM kv WHERE owner = ?`, owner,
	)
	if err != nil {
		return nil, fmt.Errorf("querying records for owner %s: %w", owner, err)
	}
	defer rows.Close()

	var records []kv.Record
	for rows.Next() {
		var rec kv.Record
		if err := rows.Scan(&rec.Key, &rec.Owner, &rec.Value); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}

	return records, nil
}

// DeleteByOwner removes every record whose owner matches.
func (s *Store) DeleteByOwner(ctx context.Context, owner string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE owner = ?`, owner,
	); err != nil {
		return fmt.Errorf("deleting records for owner %s: %w", owner, err)
	}
	return nil
}

// Scan visits every record in key order.
func (s *Store) Scan(ctx context.Context, fn func(kv.Record) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, owner, value FROM kv ORDER BY key`,
	)
	if err != nil {
		return fmt.Errorf("scanning records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec kv.Record
		if err := rows.Scan(&rec.Key, &rec.Owner, &rec.Value); err != nil {
			return fmt.Errorf("scanning record: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ensure Store implements kv.Store
var _ kv.Store = (*Store)(nil)
