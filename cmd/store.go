package cmd

import (
	"go.uber.org/zap"

	"realtime_dashboard/core"
	"realtime_dashboard/db"
)

// openStore opens the configured backend. SQLite databases are migrated
// to the latest schema first. The caller closes the store.
func openStore(cfg *core.Config, logger *zap.Logger) (db.KVStore, error) {
	switch cfg.StoreBackend {
	case core.StoreBackendMemory:
		logger.Warn("Using in-memory store, data is lost on exit")
		return db.NewMemoryStore(), nil
	default:
		s, err := db.OpenSQLiteStore(cfg.DatabasePath)
		if err != nil {
			return nil, core.ErrStoreUnavailable(cfg.StoreBackend, err)
		}
		logger.Info("Opened SQLite store", zap.String("path", cfg.DatabasePath))
		return s, nil
	}
}
