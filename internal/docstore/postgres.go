package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore persists documents in a single key/value table, one row per
// key, replaced whole on every Put. Backend for deployments that already run
// Postgres and want the dashboard state off the SD card.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates the documents table if needed.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	const ddl = `
		CREATE TABLE IF NOT EXISTS documents (
			key        TEXT PRIMARY KEY,
			value      BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("docstore: ensure table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Get reads the document for key.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	const query = `SELECT value FROM documents WHERE key = $1`
	var value []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: read %s: %w", key, err)
	}
	return value, nil
}

// Put replaces the document for key.
func (s *PostgresStore) Put(ctx context.Context, key string, value []byte) error {
	const query = `
		INSERT INTO documents (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("docstore: write %s: %w", key, err)
	}
	return nil
}
