// ABOUTME: Backend selection for the Store interface
// ABOUTME: Opens the configured backend and reports which ones can export windows

package store

import (
	"context"
	"fmt"
	"log/slog"
)

// Backend names
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

// Compile-time interface checks
var (
	_ Store    = (*SQLiteStore)(nil)
	_ Store    = (*PostgresStore)(nil)
	_ Store    = (*BoltStore)(nil)
	_ Store    = (*DynamoStore)(nil)
	_ Store    = (*MemoryStore)(nil)
	_ Exporter = (*SQLiteStore)(nil)
	_ Exporter = (*PostgresStore)(nil)
	_ Exporter = (*BoltStore)(nil)
	_ Exporter = (*MemoryStore)(nil)
)

// BackendConfig selects and parameterizes a backend
type BackendConfig struct {
	Backend string
	Driver  string // sqlite backend only
	Path    string // sqlite and bolt
	URL     string // postgres
	Dynamo  DynamoConfig
}

// Open opens the backend named by cfg.Backend.
func Open(ctx context.Context, cfg BackendConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendSQLite, "":
		return NewSQLiteStore(cfg.Path, WithSQLiteDriver(cfg.Driver), WithSQLiteLogger(logger))
	case BackendPostgres:
		return NewPostgresStore(ctx, cfg.URL, logger)
	case BackendBolt:
		return NewBoltStore(cfg.Path, logger)
	case BackendDynamoDB:
		return NewDynamoStore(ctx, cfg.Dynamo, logger)
	case BackendMemory:
		logger.Warn("using in-memory store; data is lost on restart", "component", "store")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
