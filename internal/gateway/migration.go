// ABOUTME: Handlers for the administrative migration endpoints
// ABOUTME: Starts background drains, runs single windows, reports status and exports windows

package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/2389/vss-gateway/internal/migration"
	"github.com/2389/vss-gateway/internal/store"
	"github.com/2389/vss-gateway/internal/vss"
)

// migrationFailure is the body returned when a window fails
type migrationFailure struct {
	Error          string `json:"error"`
	NextStartIndex int    `json:"next_start_index"`
}

// migrationWindow applies request overrides to the configured window
func (g *Gateway) migrationWindow(w http.ResponseWriter, r *http.Request) (int, int, error) {
	var req MigrationWindowRequest
	if err := decodeBody(w, r, &req); err != nil {
		return 0, 0, err
	}
	start, size := g.config.Migration.StartIndex, g.config.Migration.BatchSize
	if req.StartIndex != nil {
		start = *req.StartIndex
	}
	if req.BatchSize != nil {
		size = *req.BatchSize
	}
	if start < 0 {
		return 0, 0, fmt.Errorf("%w: start_index must not be negative", vss.ErrInvalidArgument)
	}
	if size <= 0 {
		return 0, 0, fmt.Errorf("%w: batch_size must be positive", vss.ErrInvalidArgument)
	}
	return start, size, nil
}

func (g *Gateway) handleMigrationStart(w http.ResponseWriter, r *http.Request) {
	start, size, err := g.migrationWindow(w, r)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}

	runID, err := g.runner.Start(start, size)
	switch {
	case errors.Is(err, migration.ErrAlreadyRunning):
		g.sendJSONError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, migration.ErrNoSource):
		g.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	case err != nil:
		g.writeServiceError(w, r, err)
		return
	}

	g.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (g *Gateway) handleMigrationStep(w http.ResponseWriter, r *http.Request) {
	start, size, err := g.migrationWindow(w, r)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}

	res, err := g.runner.Step(r.Context(), start, size)
	switch {
	case errors.Is(err, migration.ErrBatchFailed):
		g.logger.Error("migration window failed", "start_index", start, "error", err)
		g.writeJSON(w, http.StatusInternalServerError, migrationFailure{
			Error:          err.Error(),
			NextStartIndex: res.NextStartIndex,
		})
		return
	case errors.Is(err, migration.ErrNoSource):
		g.sendJSONError(w, http.StatusInternalServerError, err.Error())
		return
	case err != nil:
		g.writeServiceError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, res)
}

func (g *Gateway) handleMigrationStatus(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, g.runner.Status())
}

// handleMigrationExport serves the legacy export protocol from the local store.
func (g *Gateway) handleMigrationExport(w http.ResponseWriter, r *http.Request) {
	exporter, ok := g.store.(store.Exporter)
	if !ok {
		g.sendJSONError(w, http.StatusNotImplemented, "storage backend does not support export")
		return
	}

	var req migration.ExportRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	if req.Limit <= 0 || req.Limit > store.MaxPageSize || req.Offset < 0 {
		g.sendJSONError(w, http.StatusBadRequest, "limit must be in [1, 10000] and offset must not be negative")
		return
	}

	records, err := migration.NewStoreSource(exporter).Fetch(r.Context(), req.Offset, req.Limit)
	if err != nil {
		g.writeServiceError(w, r, err)
		return
	}
	g.writeJSON(w, http.StatusOK, records)
}
