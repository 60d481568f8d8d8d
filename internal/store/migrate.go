// ABOUTME: Embedded SQL schema migrations applied with golang-migrate
// ABOUTME: One migration set per SQL dialect; runs automatically on store open

package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationFS embed.FS

// dialect names the migration set and the golang-migrate database driver
type dialect string

const (
	dialectSQLite   dialect = "sqlite"
	dialectSQLite3  dialect = "sqlite3"
	dialectPostgres dialect = "postgres"
)

// migrationDir returns the embedded directory holding the dialect's migrations.
// Both SQLite drivers share one migration set.
func (d dialect) migrationDir() string {
	if d == dialectPostgres {
		return "migrations/postgres"
	}
	return "migrations/sqlite"
}

func (d dialect) databaseDriver(db *sql.DB) (database.Driver, error) {
	switch d {
	case dialectSQLite:
		return sqlite.WithInstance(db, &sqlite.Config{})
	case dialectSQLite3:
		return sqlite3.WithInstance(db, &sqlite3.Config{})
	case dialectPostgres:
		return postgres.WithInstance(db, &postgres.Config{})
	default:
		return nil, fmt.Errorf("unknown dialect %q", d)
	}
}

// runMigrations brings the schema up to date. Safe to run on every start.
func runMigrations(db *sql.DB, d dialect) (uint, error) {
	src, err := iofs.New(migrationFS, d.migrationDir())
	if err != nil {
		return 0, fmt.Errorf("loading migrations: %w", err)
	}

	driver, err := d.databaseDriver(db)
	if err != nil {
		return 0, fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(d), driver)
	if err != nil {
		return 0, fmt.Errorf("instantiating migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("applying migrations: %w", err)
	}

	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}
