package kv

import (
	"context"
	"database/sql"
	"errors"

	"github.com/draft-staging-api/internal/database"
)

// PostgresStore keeps every key as a row of the kv_entries table
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a Store backed by the kv_entries table. The table is
// created by the migrations under ./migrations.
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var (
	_ Store   = (*PostgresStore)(nil)
	_ Swapper = (*PostgresStore)(nil)
)

// Get retrieves the value stored under key
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv_entries WHERE key = $1", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get", key, err)
	}
	return value, nil
}

// Set upserts the value stored under key
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

// Delete removes key; deleting an absent key is not an error
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv_entries WHERE key = $1", key); err != nil {
		return unavailable("delete", key, err)
	}
	return nil
}

// CompareAndSwap replaces the value only if it still equals old
func (s *PostgresStore) CompareAndSwap(ctx context.Context, key string, old, new []byte) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if old == nil {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO kv_entries (key, value, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (key) DO NOTHING
		`, key, new)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE kv_entries SET value = $3, updated_at = NOW()
			WHERE key = $1 AND value = $2
		`, key, old, new)
	}
	if err != nil {
		return false, unavailable("compare-and-swap", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("compare-and-swap", key, err)
	}
	return n == 1, nil
}
