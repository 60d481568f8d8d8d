// ABOUTME: PostgreSQL implementation of the Store interface using lib/pq
// ABOUTME: Conditional writes call the upsert_vss_db routine installed by migrations

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements the Store interface using PostgreSQL
type PostgresStore struct {
	*sqlStore
}

// NewPostgresStore connects to the database at url and applies migrations.
func NewPostgresStore(ctx context.Context, url string, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "backend", "postgres")

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, unavailable("connecting to postgres", err)
	}

	version, err := runMigrations(db, dialectPostgres)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("Postgres store initialized", "schema_version", version)
	return &PostgresStore{
		sqlStore: &sqlStore{
			db:      db,
			dialect: dialectPostgres,
			q:       postgresStatements,
			logger:  logger,
		},
	}, nil
}
