// ABOUTME: Windowed backfill runner copying records from a Source into a Store
// ABOUTME: Each window is one ApplyBatch call, so a failed window can be retried from the same index

package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/vss-gateway/internal/store"
)

// DefaultBatchSize is the window size used when none is configured
const DefaultBatchSize = 100

var (
	// ErrBatchFailed is returned when a window could not be fetched or
	// applied. The start index does not advance past the failed window.
	ErrBatchFailed = errors.New("migration batch failed")

	// ErrAlreadyRunning is returned by Start while another run is active
	ErrAlreadyRunning = errors.New("migration already running")

	// ErrNoSource is returned when the runner has nothing to read from
	ErrNoSource = errors.New("migration source not configured")
)

// StepResult reports the outcome of one window.
type StepResult struct {
	StartIndex     int  `json:"start_index"`
	BatchSize      int  `json:"batch_size"`
	Fetched        int  `json:"fetched"`
	Applied        int  `json:"applied"`
	Skipped        int  `json:"skipped"`
	Invalid        int  `json:"invalid"`
	NextStartIndex int  `json:"next_start_index"`
	Done           bool `json:"done"`
}

// Run states
const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

// Status describes the current or most recent background run.
type Status struct {
	RunID          string    `json:"run_id,omitempty"`
	State          string    `json:"state"`
	StartIndex     int       `json:"start_index"`
	BatchSize      int       `json:"batch_size"`
	NextStartIndex int       `json:"next_start_index"`
	Windows        int       `json:"windows"`
	Applied        int       `json:"applied"`
	Skipped        int       `json:"skipped"`
	Invalid        int       `json:"invalid"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at,omitzero"`
	FinishedAt     time.Time `json:"finished_at,omitzero"`
}

// Runner drains a Source into a Store window by window.
type Runner struct {
	source Source
	dest   store.Store
	logger *slog.Logger

	mu      sync.Mutex
	status  Status
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRunner creates a Runner. source may be nil when no migration is
// configured; every call then fails with ErrNoSource.
func NewRunner(source Source, dest store.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		source: source,
		dest:   dest,
		logger: logger.With("component", "migration"),
		status: Status{State: StateIdle},
	}
}

// Step processes exactly one window starting at start.
func (r *Runner) Step(ctx context.Context, start, size int) (StepResult, error) {
	res := StepResult{StartIndex: start, BatchSize: size, NextStartIndex: start}
	if r.source == nil {
		return res, ErrNoSource
	}
	if start < 0 || size <= 0 {
		return res, fmt.Errorf("invalid window start=%d size=%d", start, size)
	}

	r.logger.Info("fetching window", "offset", start, "limit", size)
	records, err := r.source.Fetch(ctx, start, size)
	if err != nil {
		return res, fmt.Errorf("%w: window at %d: %w", ErrBatchFailed, start, err)
	}

	writes := make([]store.Write, 0, len(records))
	for _, rec := range records {
		w, err := rec.Write()
		if err != nil {
			r.logger.Warn("skipping undecodable record", "error", err)
			res.Invalid++
			continue
		}
		writes = append(writes, w)
	}

	if len(writes) > 0 {
		batch, err := r.dest.ApplyBatch(ctx, writes)
		if err != nil {
			return res, fmt.Errorf("%w: window at %d: %w", ErrBatchFailed, start, err)
		}
		res.Applied = batch.Applied
		res.Skipped = batch.Skipped
	}

	res.Fetched = len(records)
	res.NextStartIndex = start + len(records)
	res.Done = len(records) < size
	r.logger.Info("window applied",
		"offset", start,
		"fetched", res.Fetched,
		"applied", res.Applied,
		"skipped", res.Skipped,
		"invalid", res.Invalid,
	)
	return res, nil
}

// Run repeats Step until the source is drained. On failure the returned
// result's NextStartIndex is the start of the failed window.
func (r *Runner) Run(ctx context.Context, start, size int) (StepResult, error) {
	return r.run(ctx, start, size, nil)
}

func (r *Runner) run(ctx context.Context, start, size int, onWindow func(StepResult)) (StepResult, error) {
	total := StepResult{StartIndex: start, BatchSize: size, NextStartIndex: start}
	for {
		res, err := r.Step(ctx, total.NextStartIndex, size)
		if err != nil {
			return total, err
		}
		total.Fetched += res.Fetched
		total.Applied += res.Applied
		total.Skipped += res.Skipped
		total.Invalid += res.Invalid
		total.NextStartIndex = res.NextStartIndex
		if onWindow != nil {
			onWindow(res)
		}
		if res.Done {
			total.Done = true
			return total, nil
		}
	}
}

// Start launches Run in the background and returns its run id.
func (r *Runner) Start(start, size int) (string, error) {
	if r.source == nil {
		return "", ErrNoSource
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return "", ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	runID := uuid.New().String()
	r.running = true
	r.cancel = cancel
	r.done = make(chan struct{})
	r.status = Status{
		RunID:          runID,
		State:          StateRunning,
		StartIndex:     start,
		BatchSize:      size,
		NextStartIndex: start,
		StartedAt:      time.Now().UTC(),
	}

	go r.runBackground(ctx, runID, start, size, r.done)
	return runID, nil
}

func (r *Runner) runBackground(ctx context.Context, runID string, start, size int, done chan struct{}) {
	defer close(done)
	logger := r.logger.With("run_id", runID)
	logger.Info("migration started", "start_index", start, "batch_size", size)

	res, err := r.run(ctx, start, size, r.recordWindow)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	r.cancel = nil
	r.status.NextStartIndex = res.NextStartIndex
	r.status.FinishedAt = time.Now().UTC()
	if err != nil {
		r.status.State = StateFailed
		r.status.Error = err.Error()
		logger.Error("migration failed", "next_start_index", res.NextStartIndex, "error", err)
		return
	}
	r.status.State = StateSucceeded
	logger.Info("migration complete", "windows", r.status.Windows, "applied", r.status.Applied)
}

// recordWindow folds a completed window into the background status
func (r *Runner) recordWindow(res StepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Windows++
	r.status.Applied += res.Applied
	r.status.Skipped += res.Skipped
	r.status.Invalid += res.Invalid
	r.status.NextStartIndex = res.NextStartIndex
}

// Status returns a snapshot of the current or last background run.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Wait blocks until the active background run finishes or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels the active background run and waits for it to exit.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return r.Wait(ctx)
}
