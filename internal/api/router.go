// Package api wires the HTTP edge: router, middleware, handlers.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/atriumhq/atrium/internal/api/handlers"
	"github.com/atriumhq/atrium/internal/api/middleware"
	"github.com/atriumhq/atrium/internal/config"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers, auth *middleware.Authenticator) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// Everything under /api requires a bearer credential.
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Handler)

		r.Route("/users", func(r chi.Router) {
			r.Get("/me", h.Me)
			r.With(middleware.RequireAdmin).Get("/", h.ListUsers)
			r.With(middleware.RequireAdmin).Patch("/{userId}/role", h.UpdateUserRole)
		})

		r.Route("/agents", func(r chi.Router) {
			r.Get("/", h.ListAgents)
			r.With(middleware.RequireAdmin).Post("/", h.CreateAgent)

			r.Route("/{agentId}", func(r chi.Router) {
				r.Get("/", h.GetAgent)
				r.With(middleware.RequireAdmin).Patch("/", h.UpdateAgent)
				r.With(middleware.RequireAdmin).Delete("/", h.DeleteAgent)

				r.Route("/documents", func(r chi.Router) {
					r.Get("/", h.ListDocuments)
					r.With(middleware.RequireAdmin).Post("/", h.UploadDocuments)
					r.Get("/{docId}", h.GetDocument)
					r.Get("/{docId}/download", h.DownloadDocument)
					r.With(middleware.RequireAdmin).Delete("/{docId}", h.DeleteDocument)
				})

				r.Route("/chat", func(r chi.Router) {
					r.Post("/stream", h.ChatStream)
					r.Delete("/history", h.ClearHistory)
				})
			})
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "atrium-server",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
		})
	}
}
