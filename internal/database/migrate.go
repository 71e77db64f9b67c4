package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/fragenkreuzen/backend/internal/config"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Migrate applies all pending schema migrations for the configured driver.
// It opens its own connection because the migration driver closes the
// database handle when it is done.
func Migrate(cfg config.DatabaseConfig) error {
	db, err := sql.Open(cfg.Driver, dsnFor(cfg.Driver, cfg.DSN))
	if err != nil {
		return fmt.Errorf("migrate: open database: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+cfg.Driver)
	if err != nil {
		db.Close()
		return fmt.Errorf("migrate: load migrations: %w", err)
	}

	var drv migratedb.Driver
	switch cfg.Driver {
	case Postgres:
		drv, err = postgres.WithInstance(db, &postgres.Config{})
	case SQLite:
		drv, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		err = fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		src.Close()
		db.Close()
		return fmt.Errorf("migrate: init driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, cfg.Driver, drv)
	if err != nil {
		drv.Close()
		src.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: up: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migrate: version: %w", err)
	}
	slog.Info("database migrated", "driver", cfg.Driver, "version", version, "dirty", dirty)
	return nil
}
