package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"realtime_dashboard/db"
)

// Record is a raw stored value with the metadata the stream uses for diffing.
type Record struct {
	Value   string
	Version int64
}

// Repository is the typed view of the key-value store.
//
// It maps categories to store keys, applies defaults for missing or
// malformed values, and keeps the serialisation format in one place so
// the writer, the stream and the data endpoint agree on it.
//
// Usage:
//
//	repo := dashboard.NewRepository(store, logger)
//	snap, err := repo.Snapshot(ctx, dashboard.CategoryKPI)
type Repository struct {
	store  db.KVStore
	logger *zap.Logger
	now    func() time.Time
}

// NewRepository creates a Repository over store. A nil logger is replaced
// with a no-op logger.
func NewRepository(store db.KVStore, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Raw returns the stored value for c. found is false when the key has never
// been written. The value is not validated.
func (r *Repository) Raw(ctx context.Context, c Category) (rec Record, found bool, err error) {
	if !c.Valid() {
		return Record{}, false, fmt.Errorf("%w: %q", ErrUnknownCategory, string(c))
	}
	return r.get(ctx, c.Key())
}

// Snapshot returns the current snapshot of c, or its default when the key
// is missing or holds a malformed value. Only store failures are errors.
func (r *Repository) Snapshot(ctx context.Context, c Category) (Snapshot, error) {
	rec, found, err := r.Raw(ctx, c)
	if err != nil {
		return nil, err
	}
	if !found {
		r.logger.Debug("no stored snapshot, using default", zap.String("category", c.String()))
		return DefaultSnapshot(c, r.now())
	}

	snap, err := DecodeSnapshot(c, rec.Value)
	if err != nil {
		r.logger.Warn("stored snapshot is malformed, using default",
			zap.String("category", c.String()),
			zap.Error(err))
		return DefaultSnapshot(c, r.now())
	}
	return snap, nil
}

// SetSnapshot replaces the snapshot of its category.
func (r *Repository) SetSnapshot(ctx context.Context, s Snapshot) error {
	value, err := EncodeSnapshot(s)
	if err != nil {
		return err
	}
	if _, err := r.store.Set(ctx, s.Category().Key(), value); err != nil {
		return fmt.Errorf("failed to store %s snapshot: %w", s.Category(), err)
	}
	return nil
}

// LastUpdated returns the raw global timestamp record.
func (r *Repository) LastUpdated(ctx context.Context) (rec Record, found bool, err error) {
	return r.get(ctx, LastUpdatedKey)
}

// SetLastUpdated stores t as the global timestamp.
func (r *Repository) SetLastUpdated(ctx context.Context, t time.Time) error {
	if _, err := r.store.Set(ctx, LastUpdatedKey, FormatTimestamp(t)); err != nil {
		return fmt.Errorf("failed to store last updated: %w", err)
	}
	return nil
}

// SeedDefaults writes the default snapshot of every category whose key is
// absent. When overwrite is true every category is rewritten. It returns
// the categories that were written.
func (r *Repository) SeedDefaults(ctx context.Context, overwrite bool) ([]Category, error) {
	now := r.now()
	var seeded []Category

	for _, c := range Categories() {
		if !overwrite {
			_, found, err := r.Raw(ctx, c)
			if err != nil {
				return seeded, err
			}
			if found {
				continue
			}
		}

		snap, err := DefaultSnapshot(c, now)
		if err != nil {
			return seeded, err
		}
		if err := r.SetSnapshot(ctx, snap); err != nil {
			return seeded, err
		}
		seeded = append(seeded, c)
	}

	if len(seeded) > 0 {
		if err := r.SetLastUpdated(ctx, now); err != nil {
			return seeded, err
		}
		r.logger.Info("seeded default dashboard data", zap.Int("categories", len(seeded)))
	}
	return seeded, nil
}

// Ping checks that the underlying store is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

func (r *Repository) get(ctx context.Context, key string) (Record, bool, error) {
	entry, err := r.store.Get(ctx, key)
	if errors.Is(err, db.ErrNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return Record{Value: entry.Value, Version: entry.Version}, true, nil
}
