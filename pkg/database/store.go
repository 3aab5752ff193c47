package database

import (
	"context"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/echohealth/echo_backend/config"
	"github.com/echohealth/echo_backend/internal/repo"
)

// OpenStore opens the store selected by database.driver. The postgres store
// is migrated first when auto_migrate is set.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (repo.Store, error) {
	c := FromCentralConfig(cfg)
	switch c.Driver {
	case config.DriverMemory:
		slog.Warn("using in-memory store; data is lost on restart")
		return repo.NewMemory(), nil
	case config.DriverPostgres, "":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", c.Driver)
	}

	drv, err := OpenDriver(c)
	if err != nil {
		return nil, err
	}
	if c.AutoMigrate {
		if err := repo.Migrate(ctx, drv); err != nil {
			_ = drv.Close()
			return nil, err
		}
	}
	return repo.NewSQLClient(drv), nil
}

// OpenDriver returns an ent SQL driver for PostgreSQL. Statements are logged
// at debug level when query logging is enabled.
func OpenDriver(cfg Config) (dialect.Driver, error) {
	db, err := openSQLDB(cfg)
	if err != nil {
		return nil, err
	}

	var drv dialect.Driver = entsql.OpenDB(dialect.Postgres, db)
	if cfg.EnableLogging {
		drv = dialect.DebugWithContext(drv, func(ctx context.Context, v ...any) {
			slog.DebugContext(ctx, "sql", "statement", fmt.Sprint(v...))
		})
	}
	return drv, nil
}

// Migrate applies the schema using a dedicated connection.
func Migrate(ctx context.Context, cfg config.DatabaseConfig) error {
	drv, err := OpenDriver(FromCentralConfig(cfg))
	if err != nil {
		return err
	}
	defer drv.Close()
	return repo.Migrate(ctx, drv)
}
