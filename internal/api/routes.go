package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all routes. hc may be nil.
func SetupRoutes(h *Handlers, hc *HealthChecker) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Functions are called from browser dashboards on any origin.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "apikey", "x-client-info", "X-Webhook-Signature"},
		MaxAge:         300,
	}))

	if hc != nil {
		r.Get("/health", hc.HandleHealth)
		r.Get("/health/live", hc.HandleLiveness)
		r.Get("/health/ready", hc.HandleReadiness)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			respondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
		})
	}

	r.Route("/functions", func(r chi.Router) {
		r.Post("/backfill-prospect-podcasts", h.Backfill)
		r.Post("/score-podcast-compatibility", h.ScoreCompatibility)
		r.Post("/get-cached-podcast", h.GetCachedPodcast)
		r.Post("/get-cached-podcasts", h.GetCachedPodcasts)
		r.Post("/generate-pitch", h.GeneratePitch)
		r.Post("/backfill-runs", h.ListRuns)
	})

	r.Post("/webhooks/email", h.EmailWebhook)

	return r
}
