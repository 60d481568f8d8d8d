// ABOUTME: Backend-independent behaviour checks run against every Store implementation
// ABOUTME: Covers conditional writes, tombstones, listing, batches and export windows

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ignoreTimestamps drops the storage-maintained clock fields from comparisons
var ignoreTimestamps = cmpopts.IgnoreFields(Item{}, "CreatedAt", "UpdatedAt")

func put(t *testing.T, s Store, storeID, key string, version int64, value string) error {
	t.Helper()
	return s.ConditionalWrite(context.Background(), Write{
		StoreID: storeID,
		Key:     key,
		Value:   []byte(value),
		Version: version,
	})
}

func del(t *testing.T, s Store, storeID, key string, version int64) error {
	t.Helper()
	return s.ConditionalWrite(context.Background(), Write{
		StoreID: storeID,
		Key:     key,
		Version: version,
		Delete:  true,
	})
}

func mustGet(t *testing.T, s Store, storeID, key string) *Item {
	t.Helper()
	item, err := s.GetItem(context.Background(), storeID, key)
	require.NoError(t, err)
	return item
}

// runConformance exercises the Store contract. newStore must return a fresh,
// empty store; cleanup is the caller's job.
func runConformance(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("NewKeyAcceptsVersionZero", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, put(t, s, "s1", "k", 0, "zero"))

		got := mustGet(t, s, "s1", "k")
		assert.Equal(t, int64(0), got.Version)
		assert.Equal(t, []byte("zero"), got.Value)
		assert.False(t, got.Deleted)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("GetMissingReturnsNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetItem(context.Background(), "s1", "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Monotonicity", func(t *testing.T) {
		s := newStore(t)
		for v := int64(1); v <= 5; v++ {
			require.NoError(t, put(t, s, "s1", "k", v, fmt.Sprintf("v%d", v)))
		}
		got := mustGet(t, s, "s1", "k")
		assert.Equal(t, int64(5), got.Version)
		assert.Equal(t, []byte("v5"), got.Value)
	})

	t.Run("ConflictLeavesRowUnchanged", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, put(t, s, "s1", "k", 7, "original"))
		before := mustGet(t, s, "s1", "k")

		for _, v := range []int64{0, 3, 6, 7} {
			err := put(t, s, "s1", "k", v, "intruder")
			assert.ErrorIs(t, err, ErrVersionConflict, "version %d", v)
			assert.NotErrorIs(t, err, ErrUnavailable)
		}
		require.ErrorIs(t, del(t, s, "s1", "k", 7), ErrVersionConflict)

		after := mustGet(t, s, "s1", "k")
		if diff := cmp.Diff(before, after); diff != "" {
			t.Errorf("row changed after rejected writes (-before +after):\n%s", diff)
		}
	})

	t.Run("SentinelForcesOverwrite", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, put(t, s, "s1", "k", 100, "old"))
		require.NoError(t, put(t, s, "s1", "k", SentinelVersion, "forced"))
		require.NoError(t, put(t, s, "s1", "k", SentinelVersion, "forced-again"))

		got := mustGet(t, s, "s1", "k")
		assert.Equal(t, SentinelVersion, got.Version)
		assert.Equal(t, []byte("forced-again"), got.Value)

		// Nothing below the sentinel can follow it
		assert.ErrorIs(t, put(t, s, "s1", "k", SentinelVersion-1, "late"), ErrVersionConflict)
	})

	t.Run("TombstoneSemantics", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, put(t, s, "s1", "k", 4, "live"))
		created := mustGet(t, s, "s1", "k").CreatedAt

		require.NoError(t, del(t, s, "s1", "k", 5))
		got := mustGet(t, s, "s1", "k")
		assert.True(t, got.Deleted)
		assert.Nil(t, got.Value)
		assert.Equal(t, int64(5), got.Version)
		assert.True(t, got.CreatedAt.Equal(created), "created_at must survive the delete")

		assert.ErrorIs(t, del(t, s, "s1", "k", 5), ErrVersionConflict)
		assert.ErrorIs(t, del(t, s, "s1", "k", 2), ErrVersionConflict)
		assert.ErrorIs(t, put(t, s, "s1", "k", 5, "resurrect"), ErrVersionConflict)

		// A later put revives the key
		require.NoError(t, put(t, s, "s1", "k", 6, "back"))
		got = mustGet(t, s, "s1", "k")
		assert.False(t, got.Deleted)
		assert.Equal(t, []byte("back"), got.Value)
	})

	t.Run("EmptyValueIsNotATombstone", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, put(t, s, "s1", "k", 1, ""))
		got := mustGet(t, s, "s1", "k")
		assert.False(t, got.Deleted)
		assert.Empty(t, got.Value)
	})

	t.Run("StoresAreIsolated", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, put(t, s, "alice", "k", 10, "a"))
		require.NoError(t, put(t, s, "bob", "k", 1, "b"))

		assert.Equal(t, []byte("a"), mustGet(t, s, "alice", "k").Value)
		assert.Equal(t, []byte("b"), mustGet(t, s, "bob", "k").Value)
	})

	t.Run("RaceSafety", func(t *testing.T) {
		s := newStore(t)
		for round := 0; round < 10; round++ {
			key := fmt.Sprintf("race-%d", round)

			var wg sync.WaitGroup
			errs := make([]error, 2)
			for i, v := range []int64{1, 2} {
				wg.Add(1)
				go func(i int, v int64) {
					defer wg.Done()
					errs[i] = put(t, s, "s1", key, v, fmt.Sprintf("v%d", v))
				}(i, v)
			}
			wg.Wait()

			// v2 always lands; v1 lands only if it arrived first
			require.NoError(t, errs[1])
			if errs[0] != nil {
				require.ErrorIs(t, errs[0], ErrVersionConflict)
			}
			got := mustGet(t, s, "s1", key)
			assert.Equal(t, int64(2), got.Version)
			assert.Equal(t, []byte("v2"), got.Value)
		}
	})

	t.Run("SameVersionOnlyOneWins", func(t *testing.T) {
		s := newStore(t)
		const writers = 8

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := put(t, s, "s1", "contended", 1, fmt.Sprintf("writer-%d", i))
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
					return
				}
				if !errors.Is(err, ErrVersionConflict) {
					t.Errorf("writer %d: unexpected error %v", i, err)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("WalletScenario", func(t *testing.T) {
		s := newStore(t)
		const storeID, key = "wallet-42", "state"

		require.NoError(t, put(t, s, storeID, key, 1, "v1"))
		assert.Equal(t, int64(1), mustGet(t, s, storeID, key).Version)

		assert.ErrorIs(t, put(t, s, storeID, key, 1, "v1-dup"), ErrVersionConflict)
		assert.Equal(t, []byte("v1"), mustGet(t, s, storeID, key).Value)

		require.NoError(t, put(t, s, storeID, key, 2, "v2"))
		require.NoError(t, del(t, s, storeID, key, 3))

		got := mustGet(t, s, storeID, key)
		assert.True(t, got.Deleted)
		assert.Nil(t, got.Value)
		assert.Equal(t, int64(3), got.Version)
	})

	t.Run("ListOrderingAndPrefix", func(t *testing.T) {
		s := newStore(t)
		for i, k := range []string{"b/2", "a/1", "b/1", "c", "B/upper"} {
			require.NoError(t, put(t, s, "s1", k, int64(i+1), "x"))
		}
		require.NoError(t, put(t, s, "other", "b/9", 1, "x"))

		page, err := s.ListKeyVersions(context.Background(), ListParams{StoreID: "s1"})
		require.NoError(t, err)
		assert.Equal(t, []KeyVersion{
			{Key: "B/upper", Version: 5},
			{Key: "a/1", Version: 2},
			{Key: "b/1", Version: 3},
			{Key: "b/2", Version: 1},
			{Key: "c", Version: 4},
		}, page.KeyVersions)
		assert.Empty(t, page.NextPageToken)

		page, err = s.ListKeyVersions(context.Background(), ListParams{StoreID: "s1", Prefix: "b/"})
		require.NoError(t, err)
		assert.Equal(t, []KeyVersion{{Key: "b/1", Version: 3}, {Key: "b/2", Version: 1}}, page.KeyVersions)
	})

	t.Run("ListPagination", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 7; i++ {
			require.NoError(t, put(t, s, "s1", fmt.Sprintf("key-%02d", i), int64(i), "x"))
		}

		var keys []string
		token := ""
		pages := 0
		for {
			page, err := s.ListKeyVersions(context.Background(), ListParams{StoreID: "s1", PageSize: 3, PageToken: token})
			require.NoError(t, err)
			pages++
			for _, kv := range page.KeyVersions {
				keys = append(keys, kv.Key)
			}
			if page.NextPageToken == "" {
				break
			}
			token = page.NextPageToken
		}
		assert.Equal(t, 3, pages)
		assert.Equal(t, []string{"key-00", "key-01", "key-02", "key-03", "key-04", "key-05", "key-06"}, keys)
	})

	t.Run("ListExactPageHasNoToken", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 3; i++ {
			require.NoError(t, put(t, s, "s1", fmt.Sprintf("k%d", i), 1, "x"))
		}
		page, err := s.ListKeyVersions(context.Background(), ListParams{StoreID: "s1", PageSize: 3})
		require.NoError(t, err)
		assert.Len(t, page.KeyVersions, 3)
		assert.Empty(t, page.NextPageToken)
	})

	t.Run("ListTombstones", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, put(t, s, "s1", "live", 1, "x"))
		require.NoError(t, put(t, s, "s1", "gone", 1, "x"))
		require.NoError(t, del(t, s, "s1", "gone", 2))

		page, err := s.ListKeyVersions(context.Background(), ListParams{StoreID: "s1"})
		require.NoError(t, err)
		assert.Equal(t, []KeyVersion{{Key: "live", Version: 1}}, page.KeyVersions)

		page, err = s.ListKeyVersions(context.Background(), ListParams{StoreID: "s1", IncludeDeleted: true})
		require.NoError(t, err)
		assert.Equal(t, []KeyVersion{{Key: "gone", Version: 2}, {Key: "live", Version: 1}}, page.KeyVersions)
	})

	t.Run("ListEmptyStore", func(t *testing.T) {
		s := newStore(t)
		page, err := s.ListKeyVersions(context.Background(), ListParams{StoreID: "nobody"})
		require.NoError(t, err)
		assert.Empty(t, page.KeyVersions)
		assert.Empty(t, page.NextPageToken)
	})

	t.Run("ListInvalidToken", func(t *testing.T) {
		s := newStore(t)
		_, err := s.ListKeyVersions(context.Background(), ListParams{StoreID: "s1", PageToken: "!!not-base64!!"})
		assert.ErrorIs(t, err, ErrInvalidPageToken)
	})

	t.Run("ApplyBatchCountsConflicts", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, put(t, s, "s1", "existing", 5, "keep"))

		res, err := s.ApplyBatch(context.Background(), []Write{
			{StoreID: "s1", Key: "existing", Value: []byte("stale"), Version: 3},
			{StoreID: "s1", Key: "fresh", Value: []byte("new"), Version: 1},
			{StoreID: "s2", Key: "other", Value: []byte("new"), Version: 0},
		})
		require.NoError(t, err)
		assert.Equal(t, BatchResult{Applied: 2, Skipped: 1}, res)
		assert.Equal(t, []byte("keep"), mustGet(t, s, "s1", "existing").Value)
		assert.Equal(t, []byte("new"), mustGet(t, s, "s1", "fresh").Value)

		// Replaying the same batch changes nothing
		res, err = s.ApplyBatch(context.Background(), []Write{
			{StoreID: "s1", Key: "fresh", Value: []byte("new"), Version: 1},
			{StoreID: "s2", Key: "other", Value: []byte("new"), Version: 0},
		})
		require.NoError(t, err)
		assert.Equal(t, BatchResult{Skipped: 2}, res)
	})

	t.Run("ExportWindow", func(t *testing.T) {
		s := newStore(t)
		exp, ok := s.(Exporter)
		if !ok {
			t.Skip("backend does not export")
		}
		require.NoError(t, put(t, s, "b", "k1", 1, "b1"))
		require.NoError(t, put(t, s, "a", "k2", 2, "a2"))
		require.NoError(t, put(t, s, "a", "k1", 3, "a1"))
		require.NoError(t, del(t, s, "b", "k1", 2))

		first, err := exp.ExportWindow(context.Background(), 0, 2)
		require.NoError(t, err)
		want := []*Item{
			{StoreID: "a", Key: "k1", Value: []byte("a1"), Version: 3},
			{StoreID: "a", Key: "k2", Value: []byte("a2"), Version: 2},
		}
		if diff := cmp.Diff(want, first, ignoreTimestamps); diff != "" {
			t.Errorf("first window mismatch (-want +got):\n%s", diff)
		}

		second, err := exp.ExportWindow(context.Background(), 2, 2)
		require.NoError(t, err)
		want = []*Item{{StoreID: "b", Key: "k1", Version: 2, Deleted: true}}
		if diff := cmp.Diff(want, second, ignoreTimestamps); diff != "" {
			t.Errorf("second window mismatch (-want +got):\n%s", diff)
		}

		empty, err := exp.ExportWindow(context.Background(), 10, 2)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("PingAndClose", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Ping(context.Background()))
	})
}
