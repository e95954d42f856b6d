package api

import (
	"net/http"

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

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Device endpoints
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{hostname}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Delete("/", s.handleDeleteDevice)
				r.Get("/users", s.handleListDeviceUsers)
				r.Post("/sync-users", s.handleSyncUsers)
			})
		})

		// User endpoints
		r.Route("/users", func(r chi.Router) {
			r.Get("/", s.handleListUsers)
			r.Post("/", s.handleCreateUser)
			r.Delete("/{uid}", s.handleDeleteUser)
		})

		// History endpoints
		r.Get("/access-logs", s.handleListAccessLogs)
		r.Get("/events", s.handleListEvents)

		// Card registration workflow
		r.Route("/card-registrations", func(r chi.Router) {
			r.Get("/", s.handleListRegistrations)
			r.Post("/{id}/complete", s.handleCompleteRegistration)
			r.Post("/{id}/cancel", s.handleCancelRegistration)
		})
		r.Route("/detection", func(r chi.Router) {
			r.Post("/start", s.handleDetectionStart)
			r.Post("/stop", s.handleDetectionStop)
			r.Get("/", s.handleDetectionStatus)
		})

		// Door commands
		r.Post("/doors/open", s.handleOpenDoor)

		// WebSocket event stream
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storage := "disabled"
	if s.db != nil {
		storage = "ok"
		if err := s.db.HealthCheck(r.Context()); err != nil {
			storage = "error"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"storage": storage,
	})
}
