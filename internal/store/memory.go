// ABOUTME: In-memory Store implementation for tests and ephemeral deployments
// ABOUTME: Mirrors the SQL backends' conditional write and listing semantics

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[string]map[string]*Item // store_id -> key -> item
	closed bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]map[string]*Item),
	}
}

// copyItem returns a deep copy so callers never alias stored slices
func copyItem(item *Item) *Item {
	c := *item
	if item.Value != nil {
		c.Value = append([]byte(nil), item.Value...)
	}
	return &c
}

// put applies w with m.mu held. Reports false when the stored version wins.
func (m *MemoryStore) put(w Write) bool {
	bucket, ok := m.items[w.StoreID]
	if !ok {
		bucket = make(map[string]*Item)
		m.items[w.StoreID] = bucket
	}

	now := nowUTC()
	existing, exists := bucket[w.Key]
	var current int64
	if exists {
		current = existing.Version
	}
	if !Admissible(current, exists, w.Version) {
		return false
	}

	item := &Item{
		StoreID:   w.StoreID,
		Key:       w.Key,
		Version:   w.Version,
		Deleted:   w.Delete,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if exists {
		item.CreatedAt = existing.CreatedAt
	}
	if !w.Delete {
		item.Value = append([]byte{}, w.Value...)
	}
	bucket[w.Key] = item
	return true
}

// ConditionalWrite applies w if admissible.
func (m *MemoryStore) ConditionalWrite(ctx context.Context, w Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return unavailable("writing item", errClosed)
	}
	if !m.put(w) {
		return ErrVersionConflict
	}
	return nil
}

// ApplyBatch applies each write under one lock acquisition.
func (m *MemoryStore) ApplyBatch(ctx context.Context, writes []Write) (BatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res BatchResult
	if m.closed {
		return res, unavailable("applying batch", errClosed)
	}
	for _, w := range writes {
		if m.put(w) {
			res.Applied++
		} else {
			res.Skipped++
		}
	}
	return res, nil
}

// GetItem retrieves an item by store and key.
func (m *MemoryStore) GetItem(ctx context.Context, storeID, key string) (*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, unavailable("reading item", errClosed)
	}
	item, ok := m.items[storeID][key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyItem(item), nil
}

// ListKeyVersions returns one page of keys ordered by key.
func (m *MemoryStore) ListKeyVersions(ctx context.Context, params ListParams) (*KeyVersionPage, error) {
	after, err := DecodePageToken(params.PageToken)
	if err != nil {
		return nil, err
	}
	pageSize := normalizePageSize(params.PageSize)

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, unavailable("listing keys", errClosed)
	}

	var matched []KeyVersion
	for key, item := range m.items[params.StoreID] {
		if !strings.HasPrefix(key, params.Prefix) || (after != "" && key <= after) {
			continue
		}
		if item.Deleted && !params.IncludeDeleted {
			continue
		}
		matched = append(matched, KeyVersion{Key: key, Version: item.Version})
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Key < matched[j].Key
	})

	page := &KeyVersionPage{KeyVersions: make([]KeyVersion, 0, min(len(matched), pageSize))}
	if len(matched) > pageSize {
		page.KeyVersions = append(page.KeyVersions, matched[:pageSize]...)
		page.NextPageToken = EncodePageToken(matched[pageSize-1].Key)
	} else {
		page.KeyVersions = append(page.KeyVersions, matched...)
	}
	return page, nil
}

// ExportWindow returns up to limit items starting at offset in (store_id, key) order.
func (m *MemoryStore) ExportWindow(ctx context.Context, offset, limit int) ([]*Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, unavailable("exporting window", errClosed)
	}

	var all []*Item
	for _, bucket := range m.items {
		for _, item := range bucket {
			all = append(all, item)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].StoreID != all[j].StoreID {
			return all[i].StoreID < all[j].StoreID
		}
		return all[i].Key < all[j].Key
	})

	if offset >= len(all) {
		return nil, nil
	}
	end := min(offset+limit, len(all))
	out := make([]*Item, 0, end-offset)
	for _, item := range all[offset:end] {
		out = append(out, copyItem(item))
	}
	return out, nil
}

// Ping fails once the store is closed
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return unavailable("pinging memory store", errClosed)
	}
	return nil
}

// Close marks the store closed. Subsequent calls report ErrUnavailable.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
