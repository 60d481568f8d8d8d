// ABOUTME: Shared database/sql implementation of the Store interface
// ABOUTME: Dialect-specific statements cover SQLite upserts and the Postgres routine

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// sqlStore implements Store on top of database/sql. SQLite and Postgres
// differ only in their statements and in how timestamps are stored.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
	q       statements
	logger  *slog.Logger
}

// statements holds the dialect-specific SQL
type statements struct {
	// write returns the statement and arguments applying w at time now.
	// The statement reports "applied" either through rows affected (SQLite)
	// or a boolean result row (Postgres).
	write       func(w Write, now time.Time) (string, []any)
	writeReturn bool

	get         string
	listAll     string
	listLive    string
	exportRange string
}

// sqliteTimeLayout is used for created_date/updated_date TEXT columns
const sqliteTimeLayout = time.RFC3339Nano

// The admissibility predicate, evaluated against the pre-write row inside the
// upsert itself. 4294967295 is SentinelVersion.
const sqliteUpsert = `
	INSERT INTO vss_db (store_id, key, value, version, deleted, created_date, updated_date)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (store_id, key) DO UPDATE SET
		value = excluded.value,
		version = excluded.version,
		deleted = excluded.deleted,
		updated_date = excluded.updated_date
	WHERE excluded.version > vss_db.version
	   OR (excluded.version = 4294967295 AND excluded.version >= vss_db.version)
`

var sqliteStatements = statements{
	write: func(w Write, now time.Time) (string, []any) {
		ts := now.Format(sqliteTimeLayout)
		return sqliteUpsert, []any{w.StoreID, w.Key, writeValue(w), w.Version, w.Delete, ts, ts}
	},
	get: `
		SELECT store_id, key, value, version, deleted, created_date, updated_date
		FROM vss_db
		WHERE store_id = ? AND key = ?
	`,
	listAll: `
		SELECT key, version FROM vss_db
		WHERE store_id = ? AND key > ? AND substr(key, 1, length(?)) = ?
		ORDER BY key
		LIMIT ?
	`,
	listLive: `
		SELECT key, version FROM vss_db
		WHERE store_id = ? AND key > ? AND substr(key, 1, length(?)) = ? AND deleted = 0
		ORDER BY key
		LIMIT ?
	`,
	exportRange: `
		SELECT store_id, key, value, version, deleted, created_date, updated_date
		FROM vss_db
		ORDER BY store_id, key
		LIMIT ? OFFSET ?
	`,
}

// Postgres compares keys with the C collation so ordering is byte-wise and
// matches the other backends.
var postgresStatements = statements{
	write: func(w Write, _ time.Time) (string, []any) {
		return `SELECT upsert_vss_db($1, $2, $3, $4, $5)`,
			[]any{w.StoreID, w.Key, writeValue(w), w.Version, w.Delete}
	},
	writeReturn: true,
	get: `
		SELECT store_id, key, value, version, deleted, created_date, updated_date
		FROM vss_db
		WHERE store_id = $1 AND key = $2
	`,
	listAll: `
		SELECT key, version FROM vss_db
		WHERE store_id = $1 AND key COLLATE "C" > $2 AND left(key, length($3::text)) = $4::text
		ORDER BY key COLLATE "C"
		LIMIT $5
	`,
	listLive: `
		SELECT key, version FROM vss_db
		WHERE store_id = $1 AND key COLLATE "C" > $2 AND left(key, length($3::text)) = $4::text AND NOT deleted
		ORDER BY key COLLATE "C"
		LIMIT $5
	`,
	exportRange: `
		SELECT store_id, key, value, version, deleted, created_date, updated_date
		FROM vss_db
		ORDER BY store_id COLLATE "C", key COLLATE "C"
		LIMIT $1 OFFSET $2
	`,
}

// writeValue returns the value column for w; tombstones store NULL
func writeValue(w Write) any {
	if w.Delete {
		return nil
	}
	if w.Value == nil {
		return []byte{}
	}
	return w.Value
}

// execer is satisfied by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// applyWrite runs one conditional upsert and reports whether it was applied
func (s *sqlStore) applyWrite(ctx context.Context, ex execer, w Write) (bool, error) {
	query, args := s.q.write(w, nowUTC())

	if s.q.writeReturn {
		var applied bool
		if err := ex.QueryRowContext(ctx, query, args...).Scan(&applied); err != nil {
			return false, err
		}
		return applied, nil
	}

	result, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return n > 0, nil
}

// ConditionalWrite applies w as a single atomic upsert.
func (s *sqlStore) ConditionalWrite(ctx context.Context, w Write) error {
	applied, err := s.applyWrite(ctx, s.db, w)
	if err != nil {
		return unavailable("upserting item", err)
	}
	if !applied {
		s.logger.Debug("write rejected", "store_id", w.StoreID, "key", w.Key, "version", w.Version)
		return ErrVersionConflict
	}

	s.logger.Debug("write applied", "store_id", w.StoreID, "key", w.Key, "version", w.Version, "delete", w.Delete)
	return nil
}

// ApplyBatch runs all writes in one transaction. Any backend error rolls the
// whole batch back, so a failed batch leaves nothing applied.
func (s *sqlStore) ApplyBatch(ctx context.Context, writes []Write) (BatchResult, error) {
	var res BatchResult
	if len(writes) == 0 {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, unavailable("beginning batch", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, w := range writes {
		applied, err := s.applyWrite(ctx, tx, w)
		if err != nil {
			return BatchResult{}, unavailable("applying batch", err)
		}
		if applied {
			res.Applied++
		} else {
			res.Skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return BatchResult{}, unavailable("committing batch", err)
	}
	return res, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// scanItem reads a full row in the column order used by get and exportRange
func (s *sqlStore) scanItem(row rowScanner) (*Item, error) {
	var item Item
	if s.dialect == dialectPostgres {
		err := row.Scan(&item.StoreID, &item.Key, &item.Value, &item.Version, &item.Deleted, &item.CreatedAt, &item.UpdatedAt)
		if err != nil {
			return nil, err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		item.UpdatedAt = item.UpdatedAt.UTC()
		return &item, nil
	}

	var createdStr, updatedStr string
	if err := row.Scan(&item.StoreID, &item.Key, &item.Value, &item.Version, &item.Deleted, &createdStr, &updatedStr); err != nil {
		return nil, err
	}

	var err error
	item.CreatedAt, err = time.Parse(sqliteTimeLayout, createdStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_date: %w", err)
	}
	item.UpdatedAt, err = time.Parse(sqliteTimeLayout, updatedStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_date: %w", err)
	}
	return &item, nil
}

// GetItem retrieves a row by store and key.
// Returns ErrNotFound if the row doesn't exist.
func (s *sqlStore) GetItem(ctx context.Context, storeID, key string) (*Item, error) {
	item, err := s.scanItem(s.db.QueryRowContext(ctx, s.q.get, storeID, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("querying item", err)
	}
	if item.Deleted {
		item.Value = nil
	}
	return item, nil
}

// ListKeyVersions returns one page of (key, version) pairs ordered by key.
func (s *sqlStore) ListKeyVersions(ctx context.Context, params ListParams) (*KeyVersionPage, error) {
	after, err := DecodePageToken(params.PageToken)
	if err != nil {
		return nil, err
	}
	pageSize := normalizePageSize(params.PageSize)

	query := s.q.listLive
	if params.IncludeDeleted {
		query = s.q.listAll
	}

	// One extra row tells us whether another page exists
	rows, err := s.db.QueryContext(ctx, query, params.StoreID, after, params.Prefix, params.Prefix, pageSize+1)
	if err != nil {
		return nil, unavailable("listing keys", err)
	}
	defer rows.Close()

	page := &KeyVersionPage{KeyVersions: make([]KeyVersion, 0, pageSize)}
	for rows.Next() {
		var kv KeyVersion
		if err := rows.Scan(&kv.Key, &kv.Version); err != nil {
			return nil, unavailable("scanning key version", err)
		}
		page.KeyVersions = append(page.KeyVersions, kv)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating keys", err)
	}

	if len(page.KeyVersions) > pageSize {
		page.KeyVersions = page.KeyVersions[:pageSize]
		page.NextPageToken = EncodePageToken(page.KeyVersions[pageSize-1].Key)
	}
	return page, nil
}

// ExportWindow returns up to limit rows starting at offset in (store_id, key) order.
func (s *sqlStore) ExportWindow(ctx context.Context, offset, limit int) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, s.q.exportRange, limit, offset)
	if err != nil {
		return nil, unavailable("exporting window", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := s.scanItem(rows)
		if err != nil {
			return nil, unavailable("scanning export row", err)
		}
		if item.Deleted {
			item.Value = nil
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating export rows", err)
	}
	return items, nil
}

// Ping checks database connectivity
func (s *sqlStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("pinging database", err)
	}
	return nil
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	s.logger.Info("closing store", "dialect", string(s.dialect))
	return s.db.Close()
}
