/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/accounts/*   Budget tree (read, aggregate)
  /api/npd/*        NPD documents, lines, lifecycle transitions
  /api/sp2d/*       SP2D warrants and realizations
  /api/rka/*        Budget allocation import
  /api/audit        Audit trail queries
  /api/dashboard    Fiscal-year summary

SECURITY NOTE:
  Actor identity arrives in headers set by the upstream gateway after
  authentication. This service trusts those headers; it must not be
  exposed without the gateway in front.

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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID", "X-User-Role", "X-Organization-ID"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Budget tree routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/aggregate", h.AggregateAccounts)
			r.Get("/{id}", h.GetAccount)
		})

		// NPD document routes
		r.Route("/npd", func(r chi.Router) {
			r.Get("/", h.ListNPD)
			r.Post("/", h.CreateNPD)
			r.Get("/{id}", h.GetNPD)
			r.Post("/{id}/lines", h.AddLine)
			r.Put("/lines/{lineId}", h.UpdateLine)
			r.Delete("/lines/{lineId}", h.RemoveLine)
			r.Post("/{id}/submit", h.SubmitNPD)
			r.Post("/{id}/verify", h.VerifyNPD)
			r.Post("/{id}/reject", h.RejectNPD)
			r.Post("/{id}/finalize", h.FinalizeNPD)
			r.Post("/{id}/lock", h.LockNPD)
			r.Post("/{id}/unlock", h.UnlockNPD)
		})

		// SP2D warrant routes
		r.Route("/sp2d", func(r chi.Router) {
			r.Get("/", h.ListSP2D)
			r.Post("/", h.CreateSP2D)
			r.Put("/{id}", h.UpdateSP2D)
			r.Delete("/{id}", h.SoftDeleteSP2D)
			r.Post("/{id}/restore", h.RestoreSP2D)
			r.Get("/{id}/realizations", h.GetSP2DRealizations)
		})

		// Import routes
		r.Route("/rka", func(r chi.Router) {
			r.Post("/import", h.ImportRKA)
		})

		// Audit and reporting
		r.Get("/audit", h.QueryAudit)
		r.Get("/dashboard", h.Dashboard)
	})

	return r
}
