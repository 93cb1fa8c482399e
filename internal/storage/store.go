package storage

import (
	"github.com/ignatij/blogflow/internal/config"
	"github.com/ignatij/blogflow/pkg/storage"
	"github.com/pkg/errors"
)

// InitStore opens the store selected by the configuration. SQLite databases
// are migrated on open; PostgreSQL is migrated by blogflow-migrate.
func InitStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return storage.NewMemoryStore(), nil
	case config.StoreSQLite:
		store, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := Migrate(DriverSQLite, cfg.SQLitePath); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case config.StorePostgres:
		if cfg.DBConnStr == "" {
			return nil, errors.New("postgres store needs --db, BLOGFLOW_DB or DB_* env vars")
		}
		return NewPostgresStore(cfg.DBConnStr)
	default:
		return nil, errors.Errorf("unknown store %q", cfg.Store)
	}
}
