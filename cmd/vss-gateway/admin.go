// ABOUTME: Client-side commands that talk to a running gateway over HTTP
// ABOUTME: Starts and steps migrations, reports their status, and checks readiness

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/2389/vss-gateway/internal/auth"
	"github.com/2389/vss-gateway/internal/gateway"
	"github.com/2389/vss-gateway/internal/migration"
)

// adminFlags locate a gateway and authenticate against its admin routes
type adminFlags struct {
	Addr     string `help:"Gateway base URL. Defaults to server.http_addr from the config."`
	AdminKey string `help:"Admin key. Defaults to auth.admin_key from the config." env:"ADMIN_KEY"`
}

// adminClient issues requests to a running gateway.
type adminClient struct {
	baseURL  string
	adminKey string
	http     *retryablehttp.Client
}

func (f adminFlags) client(rc *runContext) (*adminClient, error) {
	base, key := f.Addr, f.AdminKey
	if base == "" || key == "" {
		cfg, err := rc.loadConfig()
		if err != nil {
			return nil, err
		}
		if base == "" {
			base = dialableAddr(cfg.Server.HTTPAddr)
		}
		if key == "" {
			key = cfg.Auth.AdminKey
		}
	}
	return newAdminClient(base, key), nil
}

// newAdminClient targets base, sending key on every request when it is set.
func newAdminClient(base, key string) *adminClient {
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.HTTPClient.Timeout = 30 * time.Second
	c.Logger = nil
	return &adminClient{baseURL: strings.TrimRight(base, "/"), adminKey: key, http: c}
}

// dialableAddr turns a wildcard listen address into one a client can dial.
func dialableAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

// do sends body as JSON and decodes a 2xx response into out.
func (c *adminClient) do(rc *runContext, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(rc.ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.adminKey != "" {
		req.Header.Set(auth.AdminKeyHeader, c.adminKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

type migrateCmd struct {
	Start  migrateStartCmd  `cmd:"" help:"Drain the configured source in the background."`
	Step   migrateStepCmd   `cmd:"" help:"Apply a single window and print the result."`
	Status migrateStatusCmd `cmd:"" help:"Show progress of the current or last run."`
}

// windowFlags override the gateway's configured migration window
type windowFlags struct {
	StartIndex *int `help:"Offset of the first window."`
	BatchSize  *int `help:"Records per window."`
}

func (w windowFlags) request() gateway.MigrationWindowRequest {
	return gateway.MigrationWindowRequest{StartIndex: w.StartIndex, BatchSize: w.BatchSize}
}

type migrateStartCmd struct {
	Admin  adminFlags  `embed:""`
	Window windowFlags `embed:""`
}

func (m *migrateStartCmd) Run(rc *runContext) error {
	c, err := m.Admin.client(rc)
	if err != nil {
		return err
	}
	var out struct {
		RunID string `json:"run_id"`
	}
	if err := c.do(rc, http.MethodPost, "/migration/", m.Window.request(), &out); err != nil {
		return err
	}
	color.New(color.FgGreen).Print("  ✓ ")
	fmt.Printf("Migration started: %s\n", out.RunID)
	return nil
}

type migrateStepCmd struct {
	Admin  adminFlags  `embed:""`
	Window windowFlags `embed:""`
}

func (m *migrateStepCmd) Run(rc *runContext) error {
	c, err := m.Admin.client(rc)
	if err != nil {
		return err
	}
	var res migration.StepResult
	if err := c.do(rc, http.MethodPost, "/migration/step", m.Window.request(), &res); err != nil {
		return err
	}
	fmt.Printf("window %d+%d: fetched=%d applied=%d skipped=%d invalid=%d next_start_index=%d done=%t\n",
		res.StartIndex, res.BatchSize, res.Fetched, res.Applied, res.Skipped, res.Invalid, res.NextStartIndex, res.Done)
	return nil
}

type migrateStatusCmd struct {
	Admin adminFlags `embed:""`
}

func (m *migrateStatusCmd) Run(rc *runContext) error {
	c, err := m.Admin.client(rc)
	if err != nil {
		return err
	}
	var st migration.Status
	if err := c.do(rc, http.MethodGet, "/migration/status", nil, &st); err != nil {
		return err
	}

	stateColor := color.New(color.FgCyan)
	switch st.State {
	case migration.StateSucceeded:
		stateColor = color.New(color.FgGreen)
	case migration.StateFailed:
		stateColor = color.New(color.FgRed, color.Bold)
	}
	fmt.Print("State:            ")
	stateColor.Println(st.State)
	if st.RunID != "" {
		fmt.Printf("Run:              %s\n", st.RunID)
	}
	fmt.Printf("Next start index: %d\n", st.NextStartIndex)
	fmt.Printf("Windows:          %d\n", st.Windows)
	fmt.Printf("Applied/skipped:  %d/%d (invalid %d)\n", st.Applied, st.Skipped, st.Invalid)
	if st.Error != "" {
		fmt.Printf("Error:            %s\n", st.Error)
	}
	return nil
}

type healthCmd struct {
	Addr string `help:"Gateway base URL. Defaults to server.http_addr from the config."`
}

func (h *healthCmd) Run(rc *runContext) error {
	base := h.Addr
	if base == "" {
		cfg, err := rc.loadConfig()
		if err != nil {
			return err
		}
		base = dialableAddr(cfg.Server.HTTPAddr)
	}
	c := newAdminClient(base, "")
	if err := c.do(rc, http.MethodGet, "/health/ready", nil, nil); err != nil {
		return fmt.Errorf("unhealthy: %w", err)
	}
	fmt.Println("healthy")
	return nil
}
