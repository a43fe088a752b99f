package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/refresh", s.handleRefreshDevices)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/state", s.handleGetDeviceState)
				r.Put("/state", s.handleSetDeviceState)
				r.Get("/history", s.handleGetDeviceHistory)
			})
		})

		r.Route("/automations", func(r chi.Router) {
			r.Get("/", s.handleListAutomations)
			r.Post("/", s.handleCreateAutomation)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetAutomation)
				r.Patch("/", s.handleUpdateAutomation)
				r.Delete("/", s.handleDeleteAutomation)
			})
		})

		r.Get(s.wsPath(), s.handleWebSocket)
	})

	return r
}

// defaultWSPath is used when websocket.path is unset.
const defaultWSPath = "/ws"

// wsPath returns the WebSocket route, relative to /api/v1.
func (s *Server) wsPath() string {
	p := s.wsCfg.Path
	if p == "" {
		return defaultWSPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"version":      s.version,
		"bridge_state": s.bridge.BridgeState(),
		"devices":      len(s.bridge.Devices()),
		"automations":  len(s.engine.GetAll()),
	})
}
