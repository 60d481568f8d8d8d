// ABOUTME: Service is the versioned object layer between transport and storage
// ABOUTME: Validates requests and maps storage outcomes to object-level results

package vss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/vss-gateway/internal/store"
)

// ErrInvalidArgument is returned for requests that fail validation
var ErrInvalidArgument = errors.New("invalid argument")

// ConflictError reports which key lost a conditional write.
// It matches store.ErrVersionConflict with errors.Is.
type ConflictError struct {
	Key string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on key %q", e.Key)
}

func (e *ConflictError) Unwrap() error {
	return store.ErrVersionConflict
}

// KeyValue is one object as seen by clients
type KeyValue struct {
	Key     string
	Value   []byte
	Version int64
}

// ListRequest selects one page of a store's keys
type ListRequest struct {
	StoreID   string
	Prefix    string
	PageSize  int
	PageToken string
}

// Service applies the object operations on top of a Store.
type Service struct {
	store  store.Store
	logger *slog.Logger
}

// New creates a Service backed by s
func New(s store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  s,
		logger: logger.With("component", "vss"),
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func validateVersion(v int64) error {
	if v < 0 || v > store.MaxVersion {
		return invalid("version %d out of range [0, %d]", v, store.MaxVersion)
	}
	return nil
}

// GetObject returns the live object for key. Tombstoned and missing keys
// both return store.ErrNotFound.
func (s *Service) GetObject(ctx context.Context, storeID, key string) (*KeyValue, error) {
	if storeID == "" {
		return nil, invalid("store_id is required")
	}
	if key == "" {
		return nil, invalid("key is required")
	}

	item, err := s.store.GetItem(ctx, storeID, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("get failed", "store_id", storeID, "key", key, "error", err)
		}
		return nil, err
	}
	if item.Deleted {
		return nil, store.ErrNotFound
	}

	return &KeyValue{Key: item.Key, Value: item.Value, Version: item.Version}, nil
}

// PutObjects writes items in order, each as its own conditional write.
// Writing stops at the first rejected item; items before it stay applied.
func (s *Service) PutObjects(ctx context.Context, storeID string, items []KeyValue) error {
	if storeID == "" {
		return invalid("store_id is required")
	}
	for i, item := range items {
		if item.Key == "" {
			return invalid("transaction_items[%d]: key is required", i)
		}
		if item.Value == nil {
			return invalid("transaction_items[%d]: value is required", i)
		}
		if err := validateVersion(item.Version); err != nil {
			return fmt.Errorf("transaction_items[%d]: %w", i, err)
		}
	}

	for _, item := range items {
		err := s.store.ConditionalWrite(ctx, store.Write{
			StoreID: storeID,
			Key:     item.Key,
			Value:   item.Value,
			Version: item.Version,
		})
		if errors.Is(err, store.ErrVersionConflict) {
			s.logger.Debug("put rejected", "store_id", storeID, "key", item.Key, "version", item.Version)
			return &ConflictError{Key: item.Key}
		}
		if err != nil {
			s.logger.Error("put failed", "store_id", storeID, "key", item.Key, "error", err)
			return err
		}
	}
	return nil
}

// DeleteObject tombstones key at version.
func (s *Service) DeleteObject(ctx context.Context, storeID, key string, version int64) error {
	if storeID == "" {
		return invalid("store_id is required")
	}
	if key == "" {
		return invalid("key is required")
	}
	if err := validateVersion(version); err != nil {
		return err
	}

	err := s.store.ConditionalWrite(ctx, store.Write{
		StoreID: storeID,
		Key:     key,
		Version: version,
		Delete:  true,
	})
	if errors.Is(err, store.ErrVersionConflict) {
		s.logger.Debug("delete rejected", "store_id", storeID, "key", key, "version", version)
		return &ConflictError{Key: key}
	}
	if err != nil {
		s.logger.Error("delete failed", "store_id", storeID, "key", key, "error", err)
		return err
	}
	return nil
}

// ListKeyVersions returns one page of live keys.
func (s *Service) ListKeyVersions(ctx context.Context, req ListRequest) (*store.KeyVersionPage, error) {
	if req.StoreID == "" {
		return nil, invalid("store_id is required")
	}
	if req.PageSize < 0 {
		return nil, invalid("page_size must not be negative")
	}

	page, err := s.store.ListKeyVersions(ctx, store.ListParams{
		StoreID:   req.StoreID,
		Prefix:    req.Prefix,
		PageSize:  req.PageSize,
		PageToken: req.PageToken,
	})
	if errors.Is(err, store.ErrInvalidPageToken) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if err != nil {
		s.logger.Error("list failed", "store_id", req.StoreID, "error", err)
		return nil, err
	}
	return page, nil
}

// ListAllKeyVersions drains every page for storeID.
func (s *Service) ListAllKeyVersions(ctx context.Context, storeID, prefix string) ([]store.KeyVersion, error) {
	all := []store.KeyVersion{}
	token := ""
	for {
		page, err := s.ListKeyVersions(ctx, ListRequest{
			StoreID:   storeID,
			Prefix:    prefix,
			PageSize:  store.MaxPageSize,
			PageToken: token,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page.KeyVersions...)
		if page.NextPageToken == "" {
			return all, nil
		}
		token = page.NextPageToken
	}
}

// Ping reports storage health
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
