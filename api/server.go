/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the grid frontend

ROUTE GROUPS:
  /api/grid/*         Grid snapshot and mutations
  /api/suggestions/*  Suggestion lifecycle
  /api/workflows/*    Workflow execution and audit

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Grid routes
		r.Route("/grid", func(r chi.Router) {
			r.Get("/", h.GetGrid)
			r.Post("/cells", h.EditCell)
			r.Post("/rows", h.AddRow)
			r.Delete("/rows/{id}", h.DeleteRow)
			r.Post("/columns", h.AddColumn)
			r.Delete("/columns/{id}", h.DeleteColumn)
			r.Post("/reload", h.ReloadGrid)
		})

		// Suggestion routes
		r.Route("/suggestions", func(r chi.Router) {
			r.Get("/", h.ListSuggestions)
			r.Post("/{id}/accept", h.AcceptSuggestion)
			r.Post("/{id}/reject", h.RejectSuggestion)
			r.Post("/accept-batch", h.AcceptBatch)
		})

		// Workflow routes
		r.Route("/workflows", func(r chi.Router) {
			r.Post("/", h.RunWorkflow)
			r.Get("/runs", h.ListRuns)
		})
	})

	return r
}
