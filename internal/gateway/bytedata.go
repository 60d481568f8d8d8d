// ABOUTME: JSON wire types for the object API
// ABOUTME: ByteData accepts a byte array or base64 string and always emits a byte array

package gateway

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/2389/vss-gateway/internal/vss"
)

// ByteData is an object value. Clients may send it as a JSON array of
// byte values or as a base64 string; it is written back as an array.
type ByteData []byte

// UnmarshalJSON implements json.Unmarshaler.
func (b *ByteData) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*b = nil
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("value is not valid base64: %w", err)
		}
		*b = decoded
		return nil
	}

	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return fmt.Errorf("value must be a byte array or a base64 string")
	}
	out := make([]byte, len(ints))
	for i, n := range ints {
		if n < 0 || n > 255 {
			return fmt.Errorf("value byte %d out of range: %d", i, n)
		}
		out[i] = byte(n)
	}
	*b = out
	return nil
}

// MarshalJSON implements json.Marshaler.
func (b ByteData) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 2+len(b)*4)
	buf = append(buf, '[')
	for i, c := range b {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendUint(buf, uint64(c), 10)
	}
	return append(buf, ']'), nil
}

// KeyValue is the v2 object representation and the input shape for puts.
type KeyValue struct {
	Key     string   `json:"key"`
	Value   ByteData `json:"value"`
	Version int64    `json:"version"`
}

// KeyValueV1 is the v1 object representation with a base64 value.
type KeyValueV1 struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Version int64  `json:"version"`
}

// KeyVersion is one listing entry
type KeyVersion struct {
	Key     string `json:"key"`
	Version int64  `json:"version"`
}

func keyValueV2(kv *vss.KeyValue) *KeyValue {
	return &KeyValue{Key: kv.Key, Value: ByteData(kv.Value), Version: kv.Version}
}

func keyValueV1(kv *vss.KeyValue) *KeyValueV1 {
	return &KeyValueV1{Key: kv.Key, Value: base64.StdEncoding.EncodeToString(kv.Value), Version: kv.Version}
}

// GetObjectRequest is the body of getObject
type GetObjectRequest struct {
	StoreID string `json:"store_id"`
	Key     string `json:"key"`
}

// PutObjectsRequest is the body of putObjects. GlobalVersion is accepted
// for compatibility and ignored.
type PutObjectsRequest struct {
	StoreID          string     `json:"store_id"`
	GlobalVersion    *int64     `json:"global_version,omitempty"`
	TransactionItems []KeyValue `json:"transaction_items"`
}

// DeleteObjectRequest is the body of deleteObject. Only the key and
// version of KeyValue are used.
type DeleteObjectRequest struct {
	StoreID  string   `json:"store_id"`
	KeyValue KeyValue `json:"key_value"`
}

// ListKeyVersionsRequest is the body of both listKeyVersions routes
type ListKeyVersionsRequest struct {
	StoreID   string `json:"store_id"`
	KeyPrefix string `json:"key_prefix"`
	PageSize  int    `json:"page_size"`
	PageToken string `json:"page_token"`
}

// ListKeyVersionsResponse is one v2 listing page
type ListKeyVersionsResponse struct {
	KeyVersions   []KeyVersion `json:"key_versions"`
	NextPageToken string       `json:"next_page_token"`
}

// MigrationWindowRequest optionally overrides the configured window
type MigrationWindowRequest struct {
	StartIndex *int `json:"start_index,omitempty"`
	BatchSize  *int `json:"batch_size,omitempty"`
}
