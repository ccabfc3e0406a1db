package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/CodeTutor/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router. limiter
// guards task submission and metrics serves /metrics; both may be nil.
func MountRoutes(r chi.Router, h *Handlers, limiter *middleware.RateLimiter, metrics http.Handler) {
	r.Get("/health", h.Health)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	if limiter != nil {
		r.With(limiter.Handler).Post("/analyze", h.Analyze)
	} else {
		r.Post("/analyze", h.Analyze)
	}
	r.Get("/status/{id}", h.GetStatus)
	r.Get("/results/{id}", h.GetResults)
	r.Get("/export/{id}/{format}", h.Export)
	if h.Hub != nil {
		r.Get("/ws/{id}", h.Watch)
	}
}
