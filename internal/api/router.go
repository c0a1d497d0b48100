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

	r.Get("/healthz", s.handleHealth)
	r.Get("/shadow", s.handleShadow)
	r.Method(http.MethodGet, "/metrics", s.metrics)

	r.Route("/journal", func(r chi.Router) {
		r.Get("/deltas", s.handleDeltaHistory)
		r.Get("/acks", s.handleAckCounts)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeNotFound(w, "no route for "+r.URL.Path)
	})

	return r
}
