// ABOUTME: Sources that yield windows of export records for the migration runner
// ABOUTME: HTTPSource speaks the legacy export protocol; StoreSource reads a local Exporter

package migration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/2389/vss-gateway/internal/store"
)

// Source yields one window of records ordered by (store_id, key).
// A window shorter than limit means the source is drained.
type Source interface {
	Fetch(ctx context.Context, offset, limit int) ([]Record, error)
}

// ExportRequest is the body of an export call
type ExportRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// HTTPSourceConfig configures an HTTPSource.
type HTTPSourceConfig struct {
	URL      string
	AdminKey string
	Timeout  time.Duration
	RetryMax int
	Logger   *slog.Logger
}

// HTTPSource fetches windows from a remote export endpoint.
type HTTPSource struct {
	url      string
	adminKey string
	client   *retryablehttp.Client
}

// NewHTTPSource creates an HTTPSource. Transient failures and 5xx responses
// are retried by the underlying client.
func NewHTTPSource(cfg HTTPSourceConfig) *HTTPSource {
	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	if client.RetryMax == 0 {
		client.RetryMax = 3
	}
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}
	if cfg.Logger != nil {
		client.Logger = cfg.Logger.With("component", "migration-http")
	} else {
		client.Logger = nil
	}

	return &HTTPSource{url: cfg.URL, adminKey: cfg.AdminKey, client: client}
}

// Fetch posts {"limit","offset"} and decodes the JSON array response.
func (s *HTTPSource) Fetch(ctx context.Context, offset, limit int) ([]Record, error) {
	body, err := json.Marshal(ExportRequest{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building export request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.adminKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching window at %d: %w", offset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetching window at %d: status %d: %s", offset, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var records []Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding window at %d: %w", offset, err)
	}
	return records, nil
}

// StoreSource reads windows from a local backend.
type StoreSource struct {
	exporter store.Exporter
}

// NewStoreSource wraps an Exporter as a Source.
func NewStoreSource(exporter store.Exporter) *StoreSource {
	return &StoreSource{exporter: exporter}
}

// Fetch returns the window [offset, offset+limit).
func (s *StoreSource) Fetch(ctx context.Context, offset, limit int) ([]Record, error) {
	items, err := s.exporter.ExportWindow(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(items))
	for _, item := range items {
		records = append(records, RecordFromItem(item))
	}
	return records, nil
}
