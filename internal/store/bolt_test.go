// ABOUTME: Tests for the bbolt store implementation
// ABOUTME: Runs the shared conformance suite against a temp file

package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "vss.bolt"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltStore_Conformance(t *testing.T) {
	runConformance(t, func(t *testing.T) Store {
		return newTestBoltStore(t)
	})
}

func TestBoltStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vss.bolt")

	s, err := NewBoltStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, put(t, s, "s1", "k", 9, "kept"))
	require.NoError(t, s.Close())

	s, err = NewBoltStore(path, nil)
	require.NoError(t, err)
	defer s.Close()

	got := mustGet(t, s, "s1", "k")
	assert.Equal(t, int64(9), got.Version)
	assert.Equal(t, []byte("kept"), got.Value)
}

func TestBoltStore_ListTokenBeforePrefix(t *testing.T) {
	s := newTestBoltStore(t)
	require.NoError(t, put(t, s, "s1", "a", 1, "x"))
	require.NoError(t, put(t, s, "s1", "m/1", 1, "x"))
	require.NoError(t, put(t, s, "s1", "m/2", 1, "x"))

	page, err := s.ListKeyVersions(t.Context(), ListParams{StoreID: "s1", Prefix: "m/", PageToken: EncodePageToken("a")})
	require.NoError(t, err)
	assert.Equal(t, []KeyVersion{{Key: "m/1", Version: 1}, {Key: "m/2", Version: 1}}, page.KeyVersions)
}
