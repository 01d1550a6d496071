package postgres

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var runMigrations embed.FS

// MigrationsTable tracks applied run history schema versions, kept apart
// from any other migrations sharing the database.
const MigrationsTable = "runplane_schema_migrations"

// runsSource opens the embedded run history migrations.
func runsSource() (source.Driver, error) {
	return iofs.New(runMigrations, "migrations")
}

// Migrate brings the runs table up to the latest embedded version.
func Migrate(db *sql.DB) error {
	src, err := runsSource()
	if err != nil {
		return fmt.Errorf("open run migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return fmt.Errorf("open migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("runs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create run migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate runs schema: %w", err)
	}
	return nil
}
