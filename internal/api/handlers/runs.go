// Package handlers implements the read-only HTTP handlers for run history.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/hoanghai1803/distill/internal/models"
	"github.com/hoanghai1803/distill/internal/output"
	"github.com/hoanghai1803/distill/internal/storage"
)

// RunStore is the history storage the handlers read from.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error)
	GetRun(ctx context.Context, runID string) (*storage.StoredRun, error)
	ListItems(ctx context.Context, runID string, status models.ItemStatus) ([]models.ItemResult, error)
}

var _ RunStore = (*storage.Store)(nil)

// ListRuns handles GET /api/runs?limit=N.
func ListRuns(store RunStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		runs, err := store.ListRuns(r.Context(), limit)
		if err != nil {
			slog.Error("failed to list runs", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to list runs")
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

// GetRun handles GET /api/runs/{id} and returns the full run report.
func GetRun(store RunStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := loadRun(w, r, store)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, run.Report)
	}
}

// ListRunItems handles GET /api/runs/{id}/items?status=S.
func ListRunItems(store RunStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := runIDParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		status := models.ItemStatus(r.URL.Query().Get("status"))
		switch status {
		case "", models.StatusSelected, models.StatusSummarized, models.StatusSkipped, models.StatusFailed:
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", status))
			return
		}

		items, err := store.ListItems(r.Context(), id, status)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Run not found")
				return
			}
			slog.Error("failed to list run items", "run_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to list run items")
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// GetRunDigest handles GET /api/runs/{id}/digest. The digest is rendered to
// HTML unless ?format=md asks for the stored Markdown.
func GetRunDigest(store RunStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := loadRun(w, r, store)
		if !ok {
			return
		}

		if r.URL.Query().Get("format") == "md" {
			w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(run.Digest))
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(renderHTML(run.Digest))
	}
}

// GetRunFeed handles GET /api/runs/{id}/feed.atom.
func GetRunFeed(store RunStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := loadRun(w, r, store)
		if !ok {
			return
		}

		link := fmt.Sprintf("%s/api/runs/%s/digest", baseURL(r), run.Report.RunID)
		atom, err := output.BuildAtom(run.Report, link)
		if err != nil {
			slog.Error("failed to build atom feed", "run_id", run.Report.RunID, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to build feed")
			return
		}

		w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(atom))
	}
}

// loadRun fetches the run named by the {id} parameter, writing the error
// response itself when it cannot.
func loadRun(w http.ResponseWriter, r *http.Request, store RunStore) (*storage.StoredRun, bool) {
	id, err := runIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	run, err := store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return nil, false
		}
		slog.Error("failed to load run", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load run")
		return nil, false
	}
	return run, true
}

// renderHTML converts a Markdown digest to a standalone HTML page.
func renderHTML(digest string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.CompletePage | mdhtml.HrefTargetBlank,
		Title: "distill digest",
	})
	return markdown.Render(p.Parse([]byte(digest)), renderer)
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
