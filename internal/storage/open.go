package storage

import (
	"context"
	"fmt"

	"github.com/fixgsm/fixgsm-server/internal/config"
)

// Open creates the store selected by cfg.Storage.Driver. The postgres
// schema is applied when migrate is set; the sqlite schema is always applied.
func Open(ctx context.Context, cfg *config.Config, migrate bool) (Store, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverSQLite:
		return NewSQLiteStore(ctx, SQLiteOptions{
			Path:     cfg.Storage.SQLite.Path,
			PoolSize: cfg.Storage.SQLite.PoolSize,
		})
	case config.StorageDriverPostgres:
		pg, err := NewPostgresStore(ctx, cfg.Database.DSN, PoolOptions{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := pg.Migrate(ctx); err != nil {
				pg.Close()
				return nil, err
			}
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
