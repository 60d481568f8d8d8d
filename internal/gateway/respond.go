// ABOUTME: Response helpers mapping service outcomes to HTTP status codes
// ABOUTME: Keeps conflict, auth, validation and storage failures distinguishable for clients

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389/vss-gateway/internal/auth"
	"github.com/2389/vss-gateway/internal/store"
	"github.com/2389/vss-gateway/internal/vss"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 64 << 20

// errorResponse is the JSON error body
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes v as a JSON response.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, errorResponse{Error: message})
}

// decodeBody reads a JSON request body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: invalid JSON body: %v", vss.ErrInvalidArgument, err)
	}
	return nil
}

// writeServiceError maps an error from the service layer to a response.
func (g *Gateway) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := g.logger.With("path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))

	var conflict *vss.ConflictError
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		logger.Debug("request unauthorized", "reason", err)
		g.sendJSONError(w, http.StatusUnauthorized, "unauthorized")
	case errors.As(err, &conflict):
		logger.Debug("version conflict", "key", conflict.Key)
		g.sendJSONError(w, http.StatusConflict, conflict.Error())
	case errors.Is(err, store.ErrVersionConflict):
		logger.Debug("version conflict")
		g.sendJSONError(w, http.StatusConflict, "version conflict")
	case errors.Is(err, vss.ErrInvalidArgument), errors.Is(err, store.ErrInvalidPageToken):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		logger.Error("storage unavailable", "error", err)
		w.Header().Set("Retry-After", "1")
		g.sendJSONError(w, http.StatusServiceUnavailable, "storage unavailable")
	case errors.Is(err, context.Canceled):
		logger.Debug("request canceled")
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		logger.Error("request failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal error")
	}
}
