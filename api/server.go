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
  4. CORS:       Cross-origin requests for dashboards

ROUTE GROUPS:
  /api/stages/*      Stage record lifecycle
  /api/batches/*     Per-batch chain operations and analytics
  /api/tracking/*    Tracking-code journeys
  /api/quality/*     Quality gate queries
  /api/losses/*      Loss queries
  /api/stats/*       Fleet statistics
  /api/scenarios/*   Demo scenarios
  /api/admin/*       Retention cleanup

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

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
		// Stage record routes
		r.Route("/stages", func(r chi.Router) {
			r.Get("/", h.SearchStages)
			r.Post("/", h.CreateStage)
			r.Post("/bulk", h.CreateStagesBulk)
			r.Put("/bulk", h.UpdateStagesBulk)
			r.Get("/transaction/{txId}", h.GetStageByTransaction)
			r.Get("/{id}", h.GetStage)
			r.Put("/{id}", h.UpdateStage)
			r.Delete("/{id}", h.DeleteStage)
			r.Post("/{id}/complete", h.CompleteStage)
			r.Post("/{id}/quality", h.UpdateQuality)
			r.Post("/{id}/loss", h.UpdateLoss)
		})

		// Batch routes
		r.Route("/batches/{batchId}", func(r chi.Router) {
			r.Get("/", h.ListBatchStages)
			r.Post("/next-stage", h.CreateNextStage)
			r.Get("/summary", h.GetChainSummary)
			r.Get("/metrics", h.GetProductionMetrics)
			r.Get("/performance", h.GetPerformanceAnalysis)
		})

		// Tracking routes
		r.Get("/tracking/{code}", h.GetTrackingInfo)

		// Quality and loss routes
		r.Get("/quality/issues", h.ListQualityIssues)
		r.Get("/losses", h.ListLosses)
		r.Get("/losses/high", h.ListHighLosses)

		// Statistics routes
		r.Route("/stats", func(r chi.Router) {
			r.Get("/stages", h.GetStageStats)
			r.Get("/quality", h.GetQualityStats)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/cleanup", h.TriggerCleanup)
		})

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
