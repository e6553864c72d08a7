// Package api serves the run history over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hoanghai1803/distill/internal/api/handlers"
)

// NewRouter creates the read-only history API router.
func NewRouter(store handlers.RunStore) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestLogger)
	r.Use(Recovery)
	r.Use(CORS)

	r.Route("/api", func(api chi.Router) {
		api.Get("/runs", handlers.ListRuns(store))
		api.Get("/runs/{id}", handlers.GetRun(store))
		api.Get("/runs/{id}/items", handlers.ListRunItems(store))
		api.Get("/runs/{id}/digest", handlers.GetRunDigest(store))
		api.Get("/runs/{id}/feed.atom", handlers.GetRunFeed(store))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})

	return r
}
