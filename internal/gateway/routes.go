// ABOUTME: HTTP route table for the gateway
// ABOUTME: Client object routes sit behind the token gate, migration routes behind the admin key

package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389/vss-gateway/internal/auth"
)

func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health-check", g.handleHealthCheck)
	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)

	r.Group(func(r chi.Router) {
		r.Use(auth.HTTPMiddleware(g.gate))

		r.Post("/getObject", g.handleGetObject)
		r.Post("/v2/getObject", g.handleGetObjectV2)
		r.Post("/putObjects", g.handlePutObjects)
		r.Post("/deleteObject", g.handleDeleteObject)
		r.Post("/listKeyVersions", g.handleListKeyVersions)
		r.Post("/v2/listKeyVersions", g.handleListKeyVersionsV2)
	})

	r.Route("/migration", func(r chi.Router) {
		r.Use(auth.RequireAdminKey(g.admin))

		r.Post("/", g.handleMigrationStart)
		r.Post("/step", g.handleMigrationStep)
		r.Get("/status", g.handleMigrationStatus)
		r.Post("/export", g.handleMigrationExport)
	})

	return r
}

// handleHealthCheck mirrors the legacy liveness route, which answers null.
func (g *Gateway) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, nil)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK when the store answers a ping.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := g.service.Ping(r.Context()); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("storage unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
