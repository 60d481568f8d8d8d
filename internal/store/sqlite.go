// ABOUTME: SQLite implementation of the Store interface
// ABOUTME: Uses modernc.org/sqlite by default, mattn/go-sqlite3 when requested

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// SQLite driver names accepted by NewSQLiteStore
const (
	DriverModernc = "sqlite"
	DriverMattn   = "sqlite3"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	*sqlStore
	path string
}

// SQLiteOption configures NewSQLiteStore
type SQLiteOption func(*sqliteOptions)

type sqliteOptions struct {
	driver string
	logger *slog.Logger
}

// WithSQLiteDriver selects the database/sql driver: "sqlite" (modernc, pure Go)
// or "sqlite3" (mattn, cgo).
func WithSQLiteDriver(driver string) SQLiteOption {
	return func(o *sqliteOptions) {
		if driver != "" {
			o.driver = driver
		}
	}
}

// WithSQLiteLogger sets the logger used by the store
func WithSQLiteLogger(logger *slog.Logger) SQLiteOption {
	return func(o *sqliteOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// sqliteDSN builds a DSN that sets the pragmas on every pooled connection.
// Writers take the lock up front so concurrent upserts queue on busy_timeout
// instead of failing with SQLITE_BUSY on lock upgrade.
func sqliteDSN(driver, path string) string {
	q := url.Values{}
	switch driver {
	case DriverMattn:
		q.Set("_busy_timeout", "5000")
		q.Set("_journal_mode", "WAL")
		q.Set("_txlock", "immediate")
	default:
		q.Add("_pragma", "busy_timeout(5000)")
		q.Add("_pragma", "journal_mode(WAL)")
		q.Set("_txlock", "immediate")
	}
	return "file:" + path + "?" + q.Encode()
}

// NewSQLiteStore creates a new SQLite store at the given path.
// Migrations are applied on open. Parent directories are created if needed.
func NewSQLiteStore(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	o := sqliteOptions{
		driver: DriverModernc,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("component", "store", "backend", "sqlite")

	var d dialect
	switch o.driver {
	case DriverModernc:
		d = dialectSQLite
	case DriverMattn:
		d = dialectSQLite3
	default:
		return nil, fmt.Errorf("unknown sqlite driver %q", o.driver)
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open(o.driver, sqliteDSN(o.driver, path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	version, err := runMigrations(db, d)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path, "driver", o.driver, "schema_version", version)
	return &SQLiteStore{
		sqlStore: &sqlStore{
			db:      db,
			dialect: d,
			q:       sqliteStatements,
			logger:  logger,
		},
		path: path,
	}, nil
}

// Path returns the database file path
func (s *SQLiteStore) Path() string {
	return s.path
}
