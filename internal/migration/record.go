// ABOUTME: Legacy export record format shared by migration sources and the export endpoint
// ABOUTME: Values travel base64-encoded and timestamps use a space-separated UTC layout

package migration

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/vss-gateway/internal/store"
)

// LegacyTimeLayout is the timestamp format of the v1 export protocol
const LegacyTimeLayout = "2006-01-02 15:04:05"

// LegacyTime marshals as LegacyTimeLayout in UTC. JSON null decodes to the zero time.
type LegacyTime struct {
	time.Time
}

// MarshalJSON implements json.Marshaler.
func (t LegacyTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(LegacyTimeLayout))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *LegacyTime) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.ParseInLocation(LegacyTimeLayout, *s, time.UTC)
	if err != nil {
		return fmt.Errorf("parsing legacy timestamp %q: %w", *s, err)
	}
	t.Time = parsed
	return nil
}

// Record is one row of the export protocol. Deleted is an extension the
// legacy server never sends, so absent means a live row.
type Record struct {
	StoreID     string     `json:"store_id"`
	Key         string     `json:"key"`
	Value       string     `json:"value"`
	Version     int64      `json:"version"`
	Deleted     bool       `json:"deleted,omitempty"`
	CreatedDate LegacyTime `json:"created_date"`
	UpdatedDate LegacyTime `json:"updated_date"`
}

// RecordFromItem encodes a stored item for export.
func RecordFromItem(item *store.Item) Record {
	return Record{
		StoreID:     item.StoreID,
		Key:         item.Key,
		Value:       base64.StdEncoding.EncodeToString(item.Value),
		Version:     item.Version,
		Deleted:     item.Deleted,
		CreatedDate: LegacyTime{item.CreatedAt},
		UpdatedDate: LegacyTime{item.UpdatedAt},
	}
}

// Write converts the record into a conditional store write. Timestamps are
// not carried over; the destination stamps its own.
func (r Record) Write() (store.Write, error) {
	if r.StoreID == "" || r.Key == "" {
		return store.Write{}, fmt.Errorf("record missing store_id or key")
	}
	if r.Version < 0 || r.Version > store.MaxVersion {
		return store.Write{}, fmt.Errorf("record %s/%s: version %d out of range", r.StoreID, r.Key, r.Version)
	}
	w := store.Write{StoreID: r.StoreID, Key: r.Key, Version: r.Version, Delete: r.Deleted}
	if r.Deleted {
		return w, nil
	}
	value, err := base64.StdEncoding.DecodeString(r.Value)
	if err != nil {
		return store.Write{}, fmt.Errorf("record %s/%s: decoding value: %w", r.StoreID, r.Key, err)
	}
	w.Value = value
	return w, nil
}
