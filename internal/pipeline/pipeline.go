// Package pipeline runs a digest: it discovers candidates from feeds and
// direct URLs, selects what to process, fetches, extracts and summarizes
// each selected article, and writes the digest and run report.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hoanghai1803/distill/internal/ai"
	"github.com/hoanghai1803/distill/internal/cache"
	"github.com/hoanghai1803/distill/internal/config"
	"github.com/hoanghai1803/distill/internal/feeds"
	"github.com/hoanghai1803/distill/internal/httpclient"
	"github.com/hoanghai1803/distill/internal/models"
	"github.com/hoanghai1803/distill/internal/output"
)

// Summarizer turns article text into a structured summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string, meta ai.Metadata) (*models.ArticleSummary, models.TokenUsage, error)
	APIUsed() models.APIUsed
}

var _ Summarizer = (*ai.Client)(nil)

// HistoryRecorder persists finished runs.
type HistoryRecorder interface {
	SaveRun(ctx context.Context, report *models.RunReport, digestPath, digest string) error
}

// Result is the outcome of a run.
type Result struct {
	Report     *models.RunReport
	Digest     string
	DigestPath string
	AtomPath   string
}

// Runner executes digest runs for a configuration.
type Runner struct {
	cfg     *config.Config
	cache   cache.Store
	fetcher *feeds.Fetcher
	llm     Summarizer
	history HistoryRecorder

	now func() time.Time
}

// New creates a Runner for cfg. The LLM client is left unset when no API
// key is configured; items then fail with missing_api_key after extraction.
// A nil history disables run recording.
func New(cfg *config.Config, history HistoryRecorder) (*Runner, error) {
	store, err := cache.New(cfg.Cache.Dir, cfg.Cache.MaxHTMLBytes)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	client := httpclient.New(cfg.TimeoutDuration())
	fetcher := feeds.NewFetcher(client, store, feeds.FetchOptions{
		Retries:      cfg.Fetch.Retries,
		Timeout:      cfg.TimeoutDuration(),
		HostInterval: cfg.HostInterval(),
	})

	r := &Runner{
		cfg:     cfg,
		cache:   store,
		fetcher: fetcher,
		history: history,
		now:     time.Now,
	}

	llm, err := ai.NewClient(ai.Config{
		BaseURL:         cfg.LLM.BaseURL,
		APIKey:          cfg.LLM.APIKey,
		Model:           cfg.LLM.Model,
		Temperature:     cfg.LLM.Temperature,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		PromptPreset:    cfg.LLM.PromptPreset,
		MaxInputChars:   cfg.LLM.MaxInputChars,
		Retries:         cfg.Fetch.Retries,
	}, client)
	switch {
	case errors.Is(err, ai.ErrMissingAPIKey):
		slog.Debug("no API key configured, summaries disabled")
	case err != nil:
		return nil, fmt.Errorf("creating LLM client: %w", err)
	default:
		r.llm = llm
	}

	return r, nil
}

// Run executes one digest run. Per-item failures are recorded on the item
// and never abort the run; an error is returned only when the digest
// cannot be produced at all.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	timestamp := r.now().UTC()

	since, err := feeds.ParseSince(r.cfg.Since)
	if err != nil {
		return nil, err
	}

	slog.Info("starting run", "run_id", runID, "feeds", len(r.cfg.Feeds), "urls", len(r.cfg.URLs))

	candidates := r.fetcher.ParseFeeds(ctx, r.cfg.Feeds)
	candidates = append(candidates, feeds.DirectItems(r.cfg.URLs)...)
	candidates = feeds.Deduplicate(candidates)

	selected, skipped := feeds.Select(candidates, since, r.cfg.MaxItems)
	slog.Info("selected items", "selected", len(selected), "skipped", len(skipped))

	records := make([]models.ItemResult, 0, len(selected)+len(skipped))
	for _, s := range skipped {
		records = append(records, models.NewSkippedResult(s))
	}

	var apiUsed models.APIUsed
	if r.cfg.DryRun {
		for _, item := range selected {
			records = append(records, models.NewSelectedResult(item))
		}
	} else {
		records = append(records, r.processAll(ctx, selected)...)
		if r.llm != nil {
			apiUsed = r.llm.APIUsed()
		}
	}

	report := output.BuildReport(records, output.ReportParams{
		RunID:         runID,
		Timestamp:     timestamp,
		Feeds:         r.cfg.Feeds,
		URLs:          r.cfg.URLs,
		Since:         r.cfg.Since,
		MaxItems:      r.cfg.MaxItems,
		BaseURL:       r.cfg.LLM.BaseURL,
		Model:         r.cfg.LLM.Model,
		APIUsed:       apiUsed,
		PromptVersion: ai.PromptVersion,
	})

	digest := output.RenderDigest(report)
	digestPath, err := output.WriteDigest(digest, r.cfg.Out, timestamp)
	if err != nil {
		return nil, err
	}

	result := &Result{Report: report, Digest: digest, DigestPath: digestPath}

	if r.cfg.Atom {
		atomPath, err := output.WriteAtom(report, r.cfg.Out, timestamp)
		if err != nil {
			return nil, err
		}
		result.AtomPath = atomPath
	}

	if r.history != nil {
		if err := r.history.SaveRun(ctx, report, digestPath, digest); err != nil {
			slog.Warn("failed to record run history", "run_id", runID, "error", err)
		}
	}

	slog.Info("run finished",
		"run_id", runID,
		"summarized", report.SuccessCount,
		"failed", report.FailureCount,
		"skipped", report.SkipCount,
		"digest", digestPath,
	)
	return result, nil
}

// processAll processes selected items concurrently, bounded by the
// configured concurrency. Results are returned in completion order.
func (r *Runner) processAll(ctx context.Context, items []models.FeedItem) []models.ItemResult {
	var (
		mu      sync.Mutex
		results = make([]models.ItemResult, 0, len(items))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.cfg.Fetch.Concurrency, 1))

	for _, item := range items {
		g.Go(func() error {
			res := r.processOne(gctx, item)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// processOne moves a single item through fetch, extract and summarize. The
// first failing stage sets the item's error and stops processing.
func (r *Runner) processOne(ctx context.Context, item models.FeedItem) models.ItemResult {
	result := models.NewSelectedResult(item)
	result.Status = models.StatusFailed

	fetchStarted := time.Now()
	fetch := r.fetcher.FetchArticle(ctx, item.URL)
	result.Timings["fetch_ms"] = sinceMS(fetchStarted)
	result.Fetch = &fetch
	if fetch.Error != "" || fetch.HTML == "" {
		result.Error = orDefault(fetch.Error, "fetch_failed")
		slog.Debug("fetch failed", "url", item.URL, "error", result.Error)
		return result
	}

	extractStarted := time.Now()
	extraction := r.extract(item, fetch.HTML)
	result.Timings["extract_ms"] = sinceMS(extractStarted)
	result.Extraction = &extraction
	if extraction.Error != "" || extraction.Content == "" {
		result.Error = orDefault(extraction.Error, "extract_failed")
		slog.Debug("extraction failed", "url", item.URL, "error", result.Error)
		return result
	}

	if r.llm == nil {
		result.Error = ai.ErrMissingAPIKey.Error()
		return result
	}

	summarizeStarted := time.Now()
	summary, usage, err := r.summarize(ctx, item, extraction)
	result.Timings["summarize_ms"] = sinceMS(summarizeStarted)
	if err != nil {
		result.Error = err.Error()
		slog.Warn("summarization failed", "url", item.URL, "error", err)
		return result
	}

	result.Status = models.StatusSummarized
	result.Summary = summary
	result.TokenUsage = usage
	result.Title = summary.Title
	return result
}

// extract returns cached article text when present, and otherwise runs the
// extractor and caches its text on success.
func (r *Runner) extract(item models.FeedItem, html string) models.ExtractionResult {
	if text, ok := r.cache.Get(cache.NamespaceText, item.URL, ""); ok && text != "" {
		n := runeLen(text)
		return models.ExtractionResult{
			URL:           item.URL,
			Title:         item.Title,
			Content:       text,
			ContentLength: n,
			QualityScore:  models.QualityScore(n, runeLen(html)),
			FromCache:     true,
		}
	}

	extraction := feeds.Extract(item.URL, html, item.Title)
	if extraction.Error == "" && extraction.Content != "" {
		r.cache.Put(cache.NamespaceText, item.URL, extraction.Content, "")
	}
	return extraction
}

// summarize returns the cached summary for the item when one parses, and
// otherwise calls the model and caches the result. Token usage is nil for
// cached summaries.
func (r *Runner) summarize(ctx context.Context, item models.FeedItem, extraction models.ExtractionResult) (*models.ArticleSummary, *models.TokenUsage, error) {
	if cached, ok := r.cache.Get(cache.NamespaceSummary, item.URL, ai.PromptVersion); ok {
		summary, err := ai.ParseSummary(cached)
		if err == nil {
			return summary, nil, nil
		}
		slog.Debug("ignoring unparseable cached summary", "url", item.URL, "error", err)
	}

	meta := ai.Metadata{
		Title:     orDefault(extraction.Title, item.Title),
		URL:       item.URL,
		FeedTitle: item.FeedTitle,
	}
	if d := item.SortDate(); d != nil {
		meta.Published = d.UTC().Format(time.RFC3339)
	}

	summary, usage, err := r.llm.Summarize(ctx, extraction.Content, meta)
	if err != nil {
		return nil, nil, err
	}

	if data, err := json.Marshal(summary); err == nil {
		r.cache.Put(cache.NamespaceSummary, item.URL, string(data), ai.PromptVersion)
	}
	return summary, &usage, nil
}

func sinceMS(started time.Time) float64 {
	return float64(time.Since(started).Microseconds()) / 1000
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
