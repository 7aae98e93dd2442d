package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// NewMigrator builds a migrator over the embedded schema files bound to db.
// Closing the migrator closes db as well.
func NewMigrator(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	drv, err := migratemysql.WithInstance(db, &migratemysql.Config{})
	if err != nil {
		return nil, fmt.Errorf("init mysql migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "mysql", drv)
	if err != nil {
		return nil, fmt.Errorf("init migrator failed: %w", err)
	}
	return m, nil
}

// MigrateUp applies every pending migration.  Nothing to apply is not an error.
func MigrateUp(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back the given number of steps.
func MigrateDown(m *migrate.Migrate, steps int) error {
	if steps < 1 {
		steps = 1
	}
	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down failed: %w", err)
	}
	return nil
}
