// Package store provides versioned item persistence for the gateway.
//
// # Architecture
//
// Every backend implements the Store interface:
//
//   - SQLiteStore: modernc.org/sqlite (default) or mattn/go-sqlite3
//   - PostgresStore: lib/pq with the upsert_vss_db routine
//   - BoltStore: single-file bbolt database
//   - DynamoStore: DynamoDB table keyed by (store_id, key)
//   - MemoryStore: in-process maps, for tests and throwaway deployments
//
// SQL, bbolt and memory backends also implement Exporter, which the
// migration runner uses to copy one deployment into another.
//
// # Conditional writes
//
// A write at version v replaces the stored row only when v is strictly
// greater than the stored version, or when v is SentinelVersion and at least
// the stored version. A missing row always loses. Each backend evaluates that
// rule and applies the mutation in one atomic operation:
//
//	SQLite    INSERT ... ON CONFLICT DO UPDATE ... WHERE <rule>
//	Postgres  SELECT upsert_vss_db($1, $2, $3, $4, $5)
//	bbolt     read and put inside one Update transaction
//	DynamoDB  UpdateItem with a ConditionExpression
//
// Deletes are writes that clear the value and set Deleted. Rows are never
// removed, so a stale writer cannot resurrect a deleted key.
//
// # SQLite configuration
//
// Pragmas are carried in the DSN so every pooled connection gets them:
//
//	busy_timeout(5000)
//	journal_mode(WAL)
//
// Tests use a file under t.TempDir(); ":memory:" would give each pooled
// connection its own empty database.
//
// # Error handling
//
//   - ErrNotFound: no row for (store_id, key)
//   - ErrVersionConflict: the stored version won
//   - ErrUnavailable: the backend failed; retryable
//   - ErrInvalidPageToken: a list token could not be decoded
//
// All methods accept context.Context for cancellation support.
//
// # Migrations
//
// SQL migrations are embedded and applied with golang-migrate when a store
// is opened. Files live in migrations/sqlite and migrations/postgres.
package store
