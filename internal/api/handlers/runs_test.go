package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/hoanghai1803/distill/internal/models"
)

func TestListRuns(t *testing.T) {
	store := newTestStore(t)
	seedRun(t, store, "run-1")

	w := serve("/api/runs", ListRuns(store), "/api/runs")
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var runs []models.RunSummary
	if err := json.NewDecoder(w.Body).Decode(&runs); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-1" || runs[0].SuccessCount != 1 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestListRuns_EmptyIsArray(t *testing.T) {
	store := newTestStore(t)

	w := serve("/api/runs", ListRuns(store), "/api/runs")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", w.Body.String())
	}
}

func TestListRuns_InvalidLimit(t *testing.T) {
	store := newTestStore(t)

	w := serve("/api/runs", ListRuns(store), "/api/runs?limit=abc")
	if w.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestGetRun(t *testing.T) {
	store := newTestStore(t)
	seedRun(t, store, "run-1")

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"found", "/api/runs/run-1", http.StatusOK},
		{"not found", "/api/runs/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve("/api/runs/{id}", GetRun(store), tt.target)
			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var report models.RunReport
			if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
				t.Fatalf("decoding report: %v", err)
			}
			if report.RunID != "run-1" || len(report.Items) != 2 {
				t.Errorf("report = %+v", report)
			}
		})
	}
}

func TestListRunItems(t *testing.T) {
	store := newTestStore(t)
	seedRun(t, store, "run-1")

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantCount  int
	}{
		{"all items", "/api/runs/run-1/items", http.StatusOK, 2},
		{"failed only", "/api/runs/run-1/items?status=failed", http.StatusOK, 1},
		{"skipped none", "/api/runs/run-1/items?status=skipped", http.StatusOK, 0},
		{"invalid status", "/api/runs/run-1/items?status=bogus", http.StatusBadRequest, 0},
		{"unknown run", "/api/runs/nope/items", http.StatusNotFound, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve("/api/runs/{id}/items", ListRunItems(store), tt.target)
			if w.Code != tt.wantStatus {
				t.Fatalf("got status %d, want %d; body: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var items []models.ItemResult
			if err := json.NewDecoder(w.Body).Decode(&items); err != nil {
				t.Fatalf("decoding items: %v", err)
			}
			if len(items) != tt.wantCount {
				t.Errorf("got %d items, want %d", len(items), tt.wantCount)
			}
		})
	}
}

func TestGetRunDigest(t *testing.T) {
	store := newTestStore(t)
	seedRun(t, store, "run-1")

	w := serve("/api/runs/{id}/digest", GetRunDigest(store), "/api/runs/run-1/digest")
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<h1") || !strings.Contains(body, "Go Release</h2>") {
		t.Errorf("body is not rendered HTML:\n%s", body)
	}
	if !strings.Contains(body, "<title>distill digest</title>") {
		t.Error("expected a complete HTML page")
	}
}

func TestGetRunDigest_Markdown(t *testing.T) {
	store := newTestStore(t)
	seedRun(t, store, "run-1")

	w := serve("/api/runs/{id}/digest", GetRunDigest(store), "/api/runs/run-1/digest?format=md")
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.HasPrefix(w.Body.String(), "# Digest 2026-03-04") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestGetRunFeed(t *testing.T) {
	store := newTestStore(t)
	seedRun(t, store, "run-1")

	w := serve("/api/runs/{id}/feed.atom", GetRunFeed(store), "/api/runs/run-1/feed.atom")
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/atom+xml") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "https://example.com/go") {
		t.Error("feed missing the summarized item")
	}
	if strings.Contains(body, "https://example.com/broken") {
		t.Error("feed should not include failed items")
	}
	if !strings.Contains(body, "/api/runs/run-1/digest") {
		t.Error("feed link should point at the digest")
	}

	w = serve("/api/runs/{id}/feed.atom", GetRunFeed(store), "/api/runs/nope/feed.atom")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown run status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
