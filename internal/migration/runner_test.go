// ABOUTME: Tests for the windowed migration runner
// ABOUTME: Covers single windows, full drains, idempotent replays, failures and background runs

package migration

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/vss-gateway/internal/store"
)

// sliceSource serves windows from a fixed record list
type sliceSource struct {
	mu      sync.Mutex
	records []Record
	fetches []int
	failAt  map[int]error
	block   chan struct{}
}

func (s *sliceSource) Fetch(ctx context.Context, offset, limit int) ([]Record, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches = append(s.fetches, offset)
	if err := s.failAt[offset]; err != nil {
		return nil, err
	}
	if offset >= len(s.records) {
		return nil, nil
	}
	end := min(offset+limit, len(s.records))
	return append([]Record(nil), s.records[offset:end]...), nil
}

func makeRecords(n int) []Record {
	records := make([]Record, n)
	for i := range records {
		records[i] = Record{
			StoreID: "wallet",
			Key:     fmt.Sprintf("k%03d", i),
			Value:   base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("v%d", i))),
			Version: int64(i + 1),
		}
	}
	return records
}

// snapshot returns key -> (version, value) for one store
func snapshot(t *testing.T, s store.Store, storeID string) map[string]string {
	t.Helper()
	ctx := context.Background()
	page, err := s.ListKeyVersions(ctx, store.ListParams{StoreID: storeID, PageSize: store.MaxPageSize, IncludeDeleted: true})
	require.NoError(t, err)
	out := make(map[string]string)
	for _, kv := range page.KeyVersions {
		item, err := s.GetItem(ctx, storeID, kv.Key)
		require.NoError(t, err)
		out[kv.Key] = fmt.Sprintf("%d:%s:%t", item.Version, item.Value, item.Deleted)
	}
	return out
}

// failingBatchStore fails ApplyBatch while fail is set
type failingBatchStore struct {
	store.Store
	fail bool
}

func (f *failingBatchStore) ApplyBatch(ctx context.Context, writes []store.Write) (store.BatchResult, error) {
	if f.fail {
		return store.BatchResult{}, fmt.Errorf("applying batch: %w: disk full", store.ErrUnavailable)
	}
	return f.Store.ApplyBatch(ctx, writes)
}

func TestRunner_StepProcessesOneWindow(t *testing.T) {
	src := &sliceSource{records: makeRecords(25)}
	dest := store.NewMemoryStore()
	r := NewRunner(src, dest, nil)

	res, err := r.Step(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, StepResult{StartIndex: 0, BatchSize: 10, Fetched: 10, Applied: 10, NextStartIndex: 10}, res)
	assert.Equal(t, []int{0}, src.fetches)
	assert.Len(t, snapshot(t, dest, "wallet"), 10)

	res, err = r.Step(context.Background(), res.NextStartIndex, 10)
	require.NoError(t, err)
	assert.Equal(t, 20, res.NextStartIndex)
	assert.False(t, res.Done)

	res, err = r.Step(context.Background(), res.NextStartIndex, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Fetched)
	assert.Equal(t, 25, res.NextStartIndex)
	assert.True(t, res.Done)
}

func TestRunner_RunDrainsSource(t *testing.T) {
	src := &sliceSource{records: makeRecords(30)}
	dest := store.NewMemoryStore()

	res, err := NewRunner(src, dest, nil).Run(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Equal(t, 30, res.Fetched)
	assert.Equal(t, 30, res.NextStartIndex)
	// An exact multiple needs one empty window to observe the end
	assert.Equal(t, []int{0, 10, 20, 30}, src.fetches)
	assert.Len(t, snapshot(t, dest, "wallet"), 30)
}

func TestRunner_RunFromStartIndex(t *testing.T) {
	src := &sliceSource{records: makeRecords(12)}
	dest := store.NewMemoryStore()

	res, err := NewRunner(src, dest, nil).Run(context.Background(), 5, 4)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Applied)
	_, err = dest.GetItem(context.Background(), "wallet", "k004")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRunner_WindowReplayIsIdempotent(t *testing.T) {
	records := makeRecords(6)
	records[2].Version = store.SentinelVersion
	records[4].Deleted = true
	records[4].Value = ""

	src := &sliceSource{records: records}
	dest := store.NewMemoryStore()
	r := NewRunner(src, dest, nil)

	first, err := r.Step(context.Background(), 0, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, first.Applied)
	before := snapshot(t, dest, "wallet")

	second, err := r.Step(context.Background(), 0, 6)
	require.NoError(t, err)
	assert.Equal(t, first.NextStartIndex, second.NextStartIndex)
	// Sentinel rows are rewritten with identical content; the rest conflict
	assert.Equal(t, 1, second.Applied)
	assert.Equal(t, 5, second.Skipped)
	assert.Equal(t, before, snapshot(t, dest, "wallet"))
}

func TestRunner_ReplayDoesNotRegressNewerWrites(t *testing.T) {
	src := &sliceSource{records: makeRecords(3)}
	dest := store.NewMemoryStore()
	r := NewRunner(src, dest, nil)
	ctx := context.Background()

	_, err := r.Step(ctx, 0, 3)
	require.NoError(t, err)
	require.NoError(t, dest.ConditionalWrite(ctx, store.Write{StoreID: "wallet", Key: "k000", Value: []byte("fresh"), Version: 50}))

	_, err = r.Step(ctx, 0, 3)
	require.NoError(t, err)
	item, err := dest.GetItem(ctx, "wallet", "k000")
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), item.Value)
	assert.Equal(t, int64(50), item.Version)
}

func TestRunner_FetchFailureKeepsStartIndex(t *testing.T) {
	src := &sliceSource{records: makeRecords(20), failAt: map[int]error{10: errors.New("connection refused")}}
	dest := store.NewMemoryStore()
	r := NewRunner(src, dest, nil)

	res, err := r.Run(context.Background(), 0, 10)
	require.ErrorIs(t, err, ErrBatchFailed)
	assert.Equal(t, 10, res.NextStartIndex)
	assert.False(t, res.Done)

	delete(src.failAt, 10)
	res, err = r.Run(context.Background(), res.NextStartIndex, 10)
	require.NoError(t, err)
	assert.True(t, res.Done)
	assert.Len(t, snapshot(t, dest, "wallet"), 20)
}

func TestRunner_ApplyFailureLeavesWindowUnapplied(t *testing.T) {
	src := &sliceSource{records: makeRecords(5)}
	dest := &failingBatchStore{Store: store.NewMemoryStore(), fail: true}
	r := NewRunner(src, dest, nil)

	res, err := r.Step(context.Background(), 0, 5)
	require.ErrorIs(t, err, ErrBatchFailed)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Equal(t, 0, res.NextStartIndex)
	assert.Empty(t, snapshot(t, dest, "wallet"))

	dest.fail = false
	res, err = r.Step(context.Background(), 0, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Applied)
}

func TestRunner_SkipsUndecodableRecords(t *testing.T) {
	records := makeRecords(4)
	records[1].Value = "%%%"
	src := &sliceSource{records: records}
	dest := store.NewMemoryStore()

	res, err := NewRunner(src, dest, nil).Step(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Fetched)
	assert.Equal(t, 3, res.Applied)
	assert.Equal(t, 1, res.Invalid)
	assert.Equal(t, 4, res.NextStartIndex)
}

func TestRunner_InvalidWindow(t *testing.T) {
	r := NewRunner(&sliceSource{}, store.NewMemoryStore(), nil)
	_, err := r.Step(context.Background(), -1, 10)
	assert.Error(t, err)
	_, err = r.Step(context.Background(), 0, 0)
	assert.Error(t, err)
}

func TestRunner_NoSource(t *testing.T) {
	r := NewRunner(nil, store.NewMemoryStore(), nil)
	_, err := r.Step(context.Background(), 0, 10)
	assert.ErrorIs(t, err, ErrNoSource)
	_, err = r.Start(0, 10)
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestRunner_StartInBackground(t *testing.T) {
	src := &sliceSource{records: makeRecords(15), block: make(chan struct{})}
	dest := store.NewMemoryStore()
	r := NewRunner(src, dest, nil)
	assert.Equal(t, StateIdle, r.Status().State)

	runID, err := r.Start(0, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, runID)

	st := r.Status()
	assert.Equal(t, runID, st.RunID)
	assert.Equal(t, StateRunning, st.State)

	_, err = r.Start(0, 10)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(src.block)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))

	st = r.Status()
	assert.Equal(t, StateSucceeded, st.State)
	assert.Equal(t, 15, st.NextStartIndex)
	assert.Equal(t, 15, st.Applied)
	assert.Equal(t, 2, st.Windows)
	assert.False(t, st.FinishedAt.IsZero())

	// A finished run frees the slot
	next, err := r.Start(15, 10)
	require.NoError(t, err)
	assert.NotEqual(t, runID, next)
	require.NoError(t, r.Wait(ctx))
}

func TestRunner_BackgroundFailureRecorded(t *testing.T) {
	src := &sliceSource{records: makeRecords(15), failAt: map[int]error{10: errors.New("boom")}}
	r := NewRunner(src, store.NewMemoryStore(), nil)

	_, err := r.Start(0, 10)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))

	st := r.Status()
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, 10, st.NextStartIndex)
	assert.Contains(t, st.Error, "boom")
}

func TestRunner_StopCancelsRun(t *testing.T) {
	src := &sliceSource{records: makeRecords(5), block: make(chan struct{})}
	r := NewRunner(src, store.NewMemoryStore(), nil)

	_, err := r.Start(0, 10)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))

	st := r.Status()
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, 0, st.NextStartIndex)
}
