// ABOUTME: bbolt implementation of the Store interface for single-node deployments
// ABOUTME: One nested bucket per store id; records are JSON encoded under their key

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var storesBucket = []byte("stores")

// boltRecord is the value stored under each key
type boltRecord struct {
	Value     []byte    `json:"value"`
	Version   int64     `json:"version"`
	Deleted   bool      `json:"deleted,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *boltRecord) item(storeID, key string) *Item {
	return &Item{
		StoreID:   storeID,
		Key:       key,
		Value:     r.Value,
		Version:   r.Version,
		Deleted:   r.Deleted,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// BoltStore implements the Store interface on a bbolt file.
// bbolt serializes writers, so check-and-put inside one Update is atomic.
type BoltStore struct {
	db     *bolt.DB
	logger *slog.Logger
}

// NewBoltStore opens (or creates) the bbolt file at path.
func NewBoltStore(path string, logger *slog.Logger) (*BoltStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "backend", "bolt")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(storesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating root bucket: %w", err)
	}

	logger.Info("bolt store initialized", "path", path)
	return &BoltStore{db: db, logger: logger}, nil
}

// put applies w inside tx. Reports false when the stored version wins.
func (s *BoltStore) put(tx *bolt.Tx, w Write) (bool, error) {
	bucket, err := tx.Bucket(storesBucket).CreateBucketIfNotExists([]byte(w.StoreID))
	if err != nil {
		return false, fmt.Errorf("creating store bucket: %w", err)
	}

	now := nowUTC()
	rec := boltRecord{CreatedAt: now}

	raw := bucket.Get([]byte(w.Key))
	if raw != nil {
		var existing boltRecord
		if err := json.Unmarshal(raw, &existing); err != nil {
			return false, fmt.Errorf("decoding record %q: %w", w.Key, err)
		}
		if !Admissible(existing.Version, true, w.Version) {
			return false, nil
		}
		rec.CreatedAt = existing.CreatedAt
	}

	rec.Version = w.Version
	rec.Deleted = w.Delete
	rec.UpdatedAt = now
	if !w.Delete {
		rec.Value = w.Value
		if rec.Value == nil {
			rec.Value = []byte{}
		}
	}

	data, err := json.Marshal(&rec)
	if err != nil {
		return false, fmt.Errorf("encoding record: %w", err)
	}
	if err := bucket.Put([]byte(w.Key), data); err != nil {
		return false, err
	}
	return true, nil
}

// ConditionalWrite applies w if admissible.
func (s *BoltStore) ConditionalWrite(ctx context.Context, w Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var applied bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		applied, err = s.put(tx, w)
		return err
	})
	if err != nil {
		return unavailable("writing item", err)
	}
	if !applied {
		s.logger.Debug("write rejected", "store_id", w.StoreID, "key", w.Key, "version", w.Version)
		return ErrVersionConflict
	}
	return nil
}

// ApplyBatch applies writes in a single bbolt transaction.
func (s *BoltStore) ApplyBatch(ctx context.Context, writes []Write) (BatchResult, error) {
	var res BatchResult
	if err := ctx.Err(); err != nil {
		return res, err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, w := range writes {
			applied, err := s.put(tx, w)
			if err != nil {
				return err
			}
			if applied {
				res.Applied++
			} else {
				res.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, unavailable("applying batch", err)
	}
	return res, nil
}

// GetItem retrieves a record by store and key.
func (s *BoltStore) GetItem(ctx context.Context, storeID, key string) (*Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var item *Item
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(storesBucket).Bucket([]byte(storeID))
		if bucket == nil {
			return nil
		}
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return nil
		}
		var rec boltRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decoding record %q: %w", key, err)
		}
		item = rec.item(storeID, key)
		return nil
	})
	if err != nil {
		return nil, unavailable("reading item", err)
	}
	if item == nil {
		return nil, ErrNotFound
	}
	return item, nil
}

// ListKeyVersions walks the store bucket with a cursor starting at the
// later of the page token and the prefix.
func (s *BoltStore) ListKeyVersions(ctx context.Context, params ListParams) (*KeyVersionPage, error) {
	after, err := DecodePageToken(params.PageToken)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pageSize := normalizePageSize(params.PageSize)
	prefix := []byte(params.Prefix)

	page := &KeyVersionPage{KeyVersions: make([]KeyVersion, 0)}
	more := false

	err = s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(storesBucket).Bucket([]byte(params.StoreID))
		if bucket == nil {
			return nil
		}

		start := prefix
		if after != "" && bytes.Compare([]byte(after), prefix) >= 0 {
			start = []byte(after)
		}

		c := bucket.Cursor()
		for k, v := c.Seek(start); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if after != "" && string(k) <= after {
				continue
			}
			var rec boltRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding record %q: %w", k, err)
			}
			if rec.Deleted && !params.IncludeDeleted {
				continue
			}
			if len(page.KeyVersions) == pageSize {
				more = true
				return nil
			}
			page.KeyVersions = append(page.KeyVersions, KeyVersion{Key: string(k), Version: rec.Version})
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("listing keys", err)
	}

	if more {
		page.NextPageToken = EncodePageToken(page.KeyVersions[len(page.KeyVersions)-1].Key)
	}
	return page, nil
}

// ExportWindow returns up to limit records starting at offset in
// (store_id, key) order. bbolt keeps both levels sorted byte-wise.
func (s *BoltStore) ExportWindow(ctx context.Context, offset, limit int) ([]*Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var items []*Item
	err := s.db.View(func(tx *bolt.Tx) error {
		pos := 0
		stores := tx.Bucket(storesBucket).Cursor()
		for storeID, _ := stores.First(); storeID != nil; storeID, _ = stores.Next() {
			bucket := tx.Bucket(storesBucket).Bucket(storeID)
			if bucket == nil {
				continue
			}
			c := bucket.Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				if pos < offset {
					pos++
					continue
				}
				if len(items) == limit {
					return nil
				}
				var rec boltRecord
				if err := json.Unmarshal(v, &rec); err != nil {
					return fmt.Errorf("decoding record %q: %w", k, err)
				}
				items = append(items, rec.item(string(storeID), string(k)))
				pos++
			}
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("exporting window", err)
	}
	return items, nil
}

// Ping reports whether the database file is still open
func (s *BoltStore) Ping(ctx context.Context) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(storesBucket) == nil {
			return fmt.Errorf("root bucket missing")
		}
		return nil
	})
	if err != nil {
		return unavailable("pinging bolt", err)
	}
	return nil
}

// Close closes the database file
func (s *BoltStore) Close() error {
	s.logger.Info("closing store")
	return s.db.Close()
}
