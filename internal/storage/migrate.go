package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/proposalcore/pricing-engine/internal/config"
)

func sqlOpen(cfg config.DatabaseConfig) (*sql.DB, error) {
	return sql.Open("postgres", cfg.DSN())
}

// Migrate applies every pending migration under migrationsPath against
// cfg's database. It is idempotent: running it against an up-to-date
// schema is a no-op.
func Migrate(cfg config.DatabaseConfig, migrationsPath string) error {
	sqlDB, err := sqlOpen(cfg)
	if err != nil {
		return fmt.Errorf("open database for migration: %w", err)
	}
	defer sqlDB.Close()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("build migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("load migrations from %s: %w", migrationsPath, err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
