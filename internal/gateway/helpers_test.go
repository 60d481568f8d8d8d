// ABOUTME: Shared helpers for gateway handler tests
// ABOUTME: Builds a gateway on an in-memory store and issues requests through its handler

package gateway

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/vss-gateway/internal/auth"
	"github.com/2389/vss-gateway/internal/config"
	"github.com/2389/vss-gateway/internal/store"
)

const testAdminKey = "admin-key"

type testServer struct {
	gw    *Gateway
	store *store.MemoryStore
	key   *ecdsa.PrivateKey
}

// newTestServer builds a token-authenticated gateway on a memory store.
// mutate may adjust the config before the gateway is built.
func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	cfg := testConfig(t)
	cfg.Database.Backend = store.BackendMemory
	cfg.Auth.AdminKey = testAdminKey
	key := withClientKey(t, cfg)
	if mutate != nil {
		mutate(cfg)
	}
	return newTestServerWithStore(t, cfg, key, store.NewMemoryStore())
}

func newTestServerWithStore(t *testing.T, cfg *config.Config, key *ecdsa.PrivateKey, mem *store.MemoryStore) *testServer {
	t.Helper()
	gw, err := newGateway(cfg, mem, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })
	return &testServer{gw: gw, store: mem, key: key}
}

// token mints a client token bound to storeID
func (ts *testServer) token(t *testing.T, storeID string) string {
	t.Helper()
	tok, err := auth.NewSigner(ts.key).Sign(storeID, time.Hour)
	require.NoError(t, err)
	return tok
}

// do sends body (a string is sent verbatim, anything else as JSON) with an
// optional bearer token.
func (ts *testServer) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	ts.gw.Handler().ServeHTTP(rec, req)
	return rec
}

// admin sends a request carrying the admin key in the legacy header
func (ts *testServer) admin(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(auth.AdminKeyHeader, testAdminKey)
	rec := httptest.NewRecorder()
	ts.gw.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func kv(key string, value []byte, version int64) map[string]any {
	return map[string]any{"key": key, "value": ByteData(value), "version": version}
}

func putBody(items ...map[string]any) map[string]any {
	return map[string]any{"transaction_items": items}
}

func assertStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, rec.Code, "body: %s", rec.Body.String())
}
