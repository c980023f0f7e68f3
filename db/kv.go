// Package db provides the key-value store backing the dashboard: the KVStore
// contract, a SQLite implementation with embedded migrations, and an
// in-memory implementation for development and tests.
package db

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("key not found")

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("store is closed")

// Entry is one stored value together with its write metadata.
//
// Version starts at 1 and increases by one on every Set of the same key,
// so readers can detect rewrites without comparing values.
type Entry struct {
	Key       string
	Value     string
	Version   int64
	UpdatedAt time.Time
}

// KVStore is the get/set/ping contract the dashboard relies on.
//
// Implementations must be safe for concurrent use. No transactions or
// read-modify-write atomicity are offered; last write wins.
type KVStore interface {
	// Get returns the current entry for key, or ErrNotFound.
	Get(ctx context.Context, key string) (Entry, error)

	// Set replaces the value for key and returns the new entry.
	Set(ctx context.Context, key, value string) (Entry, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources. It is safe to call more than once.
	Close() error
}
