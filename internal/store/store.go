// ABOUTME: Store interface and data types for versioned item persistence
// ABOUTME: Defines Item, Write, the admissibility rule and backend error values

package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested item does not exist
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned when a conditional write is rejected because
// the stored version already satisfies or exceeds the requested one.
var ErrVersionConflict = errors.New("version conflict")

// ErrUnavailable wraps failures of the storage backend itself. Callers should
// treat it as retryable and never confuse it with ErrVersionConflict.
var ErrUnavailable = errors.New("storage unavailable")

// ErrInvalidPageToken is returned when a list page token cannot be decoded
var ErrInvalidPageToken = errors.New("invalid page token")

// SentinelVersion forces a write through without the strict-increase check.
// Clients send it to overwrite unconditionally or to replay a write.
const SentinelVersion int64 = 1<<32 - 1

// MaxVersion is the largest version a client may send.
const MaxVersion = SentinelVersion

// List page size bounds
const (
	DefaultPageSize = 1000
	MaxPageSize     = 10000
)

// Item is one versioned key/value record within a store.
// Value is nil when Deleted is set.
type Item struct {
	StoreID   string
	Key       string
	Value     []byte
	Version   int64
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Write describes a single conditional mutation. Delete clears the value and
// marks the row as a tombstone; Value is ignored in that case.
type Write struct {
	StoreID string
	Key     string
	Value   []byte
	Version int64
	Delete  bool
}

// KeyVersion is a (key, version) pair returned by listings
type KeyVersion struct {
	Key     string
	Version int64
}

// ListParams scopes a key listing to one store
type ListParams struct {
	StoreID        string
	Prefix         string
	PageSize       int
	PageToken      string
	IncludeDeleted bool
}

// KeyVersionPage is one page of a listing. NextPageToken is empty on the last page.
type KeyVersionPage struct {
	KeyVersions   []KeyVersion
	NextPageToken string
}

// BatchResult counts the outcome of ApplyBatch
type BatchResult struct {
	Applied int
	Skipped int
}

// Store defines the persistence contract for versioned items.
// Every mutation goes through ConditionalWrite or ApplyBatch, which evaluate
// the admissibility rule and the mutation as one atomic backend operation.
type Store interface {
	// ConditionalWrite applies w if its version is admissible against the
	// stored row. Returns ErrVersionConflict and leaves the row untouched otherwise.
	ConditionalWrite(ctx context.Context, w Write) error

	// ApplyBatch applies each write as an independent conditional write.
	// Rejected writes are counted as skipped, not returned as errors.
	ApplyBatch(ctx context.Context, writes []Write) (BatchResult, error)

	// GetItem returns the row for (storeID, key), tombstones included.
	GetItem(ctx context.Context, storeID, key string) (*Item, error)

	// ListKeyVersions returns one page of keys ordered by key.
	ListKeyVersions(ctx context.Context, params ListParams) (*KeyVersionPage, error)

	// Ping checks that the backend is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}

// Exporter is implemented by backends that can walk every row in a stable
// (store_id, key) order. The migration runner uses it as a window source.
type Exporter interface {
	ExportWindow(ctx context.Context, offset, limit int) ([]*Item, error)
}

// Admissible reports whether a write at version next may replace a row at
// version existing. exists is false when there is no row yet, which compares
// lower than every real version.
func Admissible(existing int64, exists bool, next int64) bool {
	if !exists {
		return true
	}
	if next == SentinelVersion {
		return next >= existing
	}
	return next > existing
}

// normalizePageSize applies defaults and bounds to a requested page size
func normalizePageSize(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// EncodePageToken turns the last key of a page into an opaque token
func EncodePageToken(lastKey string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(lastKey))
}

// DecodePageToken returns the key after which the next page starts.
// An empty token decodes to an empty key.
func DecodePageToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return string(raw), nil
}

// unavailable wraps a backend error so callers can match ErrUnavailable
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// nowUTC is the clock used by backends to stamp created_at/updated_at
var nowUTC = func() time.Time {
	return time.Now().UTC()
}

// errClosed is wrapped in ErrUnavailable once a store has been closed
var errClosed = errors.New("store closed")
