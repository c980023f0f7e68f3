package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// SQLiteStore is a KVStore persisted in the kv_entries table.
//
// Each Set bumps the row's version inside a single upsert statement, so
// versions are strictly increasing per key even with several writers.
type SQLiteStore struct {
	db        *sql.DB
	path      string
	now       func() time.Time
	closeOnce sync.Once
	closeErr  error
}

// OpenSQLiteStore migrates the database at path and opens a store on it.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := MigrateUpFromPath(path); err != nil {
		return nil, fmt.Errorf("failed to migrate %s: %w", path, err)
	}

	conn, err := NewSQLiteConnectionWithDefaults(path)
	if err != nil {
		return nil, err
	}

	return NewSQLiteStore(conn, path), nil
}

// NewSQLiteStore wraps an already migrated connection.
func NewSQLiteStore(conn *sql.DB, path string) *SQLiteStore {
	return &SQLiteStore{
		db:   conn,
		path: path,
		now:  time.Now,
	}
}

// Get implements KVStore.
func (s *SQLiteStore) Get(ctx context.Context, key string) (Entry, error) {
	var (
		entry     = Entry{Key: key}
		updatedAt int64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT value, version, updated_at FROM kv_entries WHERE key = ?`, key,
	).Scan(&entry.Value, &entry.Version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get %q: %w", key, err)
	}

	entry.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return entry, nil
}

// Set implements KVStore.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) (Entry, error) {
	now := s.now().UTC()

	entry := Entry{Key: key, Value: value, UpdatedAt: now.Truncate(time.Millisecond)}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO kv_entries (key, value, version, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			version = kv_entries.version + 1,
			updated_at = excluded.updated_at
		RETURNING version`,
		key, value, now.UnixMilli(),
	).Scan(&entry.Version)
	if err != nil {
		return Entry{}, fmt.Errorf("set %q: %w", key, err)
	}

	return entry, nil
}

// Ping implements KVStore.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite store: %w", err)
	}
	return nil
}

// Close implements KVStore.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}
