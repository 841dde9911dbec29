/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the AP frontend

ROUTE GROUPS:
  /api/shipments/*      Rate ledger read/write/edit
  /api/comparison       Ad-hoc invoice vs system comparison
  /api/uploads/*        Invoice uploads and the approval workflow
  /api/scenarios/*      Demo scenarios and reset (dev only)
  /api/health           Liveness

SECURITY NOTE:
  No authentication middleware. Actors are taken from request bodies.

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

// NewRouter creates a new router with all routes configured. An empty
// origins list falls back to the local frontend ports.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Route("/shipments/{id}", func(r chi.Router) {
			r.Get("/rates", h.GetRates)
			r.Put("/rates", h.SaveRates)
			r.Post("/rates/edits", h.EditRates)
		})

		r.Post("/comparison", h.Compare)

		r.Route("/uploads", func(r chi.Router) {
			r.Get("/", h.ListUploads)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetUpload)
				r.Put("/", h.PutUpload)
				r.Get("/items", h.ListItems)
				r.Get("/items/{itemId}/comparison", h.ItemComparison)
				r.Post("/items/{itemId}/exception", h.MarkException)
				r.Post("/match", h.MatchUpload)
				r.Post("/approve", h.ApproveUpload)
				r.Post("/reject", h.RejectUpload)
			})
		})

		if h.Seeder != nil {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
				r.Post("/reset", h.ResetDatabase)
			})
		}
	})

	return r
}
