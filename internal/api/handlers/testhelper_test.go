package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hoanghai1803/distill/internal/models"
	"github.com/hoanghai1803/distill/internal/storage"
)

// newTestStore creates an in-memory history store with migrations applied.
// It registers a cleanup function to close the database when the test
// completes.
func newTestStore(t *testing.T) *storage.Store {
	t.Helper()

	db, err := storage.OpenDatabase(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := storage.RunMigrations(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return storage.NewStore(db)
}

// seedRun saves a run with one summarized and one failed item.
func seedRun(t *testing.T, store *storage.Store, id string) {
	t.Helper()
	published := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	report := &models.RunReport{
		RunID:     id,
		Timestamp: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
		LLM:       models.RunLLM{Model: "gpt-4o-mini", PromptVersion: "1.0"},
		Items: []models.ItemResult{
			{
				Status:  models.StatusSummarized,
				URL:     "https://example.com/go",
				Title:   "Go Release",
				Date:    &published,
				Summary: &models.ArticleSummary{Title: "Go Release", OneSentence: "Go shipped."},
			},
			{Status: models.StatusFailed, URL: "https://example.com/broken", Error: "http_error:404"},
		},
		SuccessCount: 1,
		FailureCount: 1,
	}
	digest := "# Digest 2026-03-04\n\n## Go Release\n\nGo shipped.\n"
	if err := store.SaveRun(context.Background(), report, "digest-20260304.md", digest); err != nil {
		t.Fatalf("seeding run: %v", err)
	}
}

// serve routes a request through a chi router so URL parameters resolve.
func serve(pattern string, h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get(pattern, h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}
