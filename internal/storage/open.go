package storage

import (
	"context"

	"github.com/rohankatakam/sentryai/internal/config"
	"github.com/rohankatakam/sentryai/internal/errors"
)

// Open picks the backend named by cfg.Driver
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	var (
		s   Store
		err error
	)

	switch cfg.Driver {
	case "", "sqlite":
		s, err = NewSQLiteStore(cfg.SQLitePath)
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, errors.ConfigError("storage.postgres_dsn (or DATABASE_URL) is required for the postgres driver")
		}
		s, err = NewPostgresStore(ctx, cfg.PostgresDSN)
	case "bolt":
		s, err = NewBoltStore(cfg.BoltPath)
	default:
		return nil, errors.ConfigErrorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "open %s store", cfg.Driver)
	}
	return s, nil
}
