package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hoanghai1803/distill/internal/ai"
	"github.com/hoanghai1803/distill/internal/config"
	"github.com/hoanghai1803/distill/internal/output"
	"github.com/hoanghai1803/distill/internal/pipeline"
	"github.com/hoanghai1803/distill/internal/storage"
)

// digestFlags holds the raw values of the digest command's flags.
type digestFlags struct {
	feeds     []string
	feedsFile string
	urls      []string
	urlsFile  string

	since           string
	maxItems        int
	out             string
	jsonOutput      bool
	atom            bool
	baseURL         string
	apiKey          string
	model           string
	temperature     float64
	maxOutputTokens int
	promptPreset    string
	timeout         float64
	concurrency     int
	retries         int
	cacheDir        string
	historyDB       string
	dryRun          bool
	verbose         bool
	usage           bool
}

func newDigestCmd(configPath *string, stdout, stderr io.Writer) *cobra.Command {
	var f digestFlags

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Build a digest from feed and article URLs",
		Run: func(cmd *cobra.Command, args []string) {
			if f.usage {
				fmt.Fprint(stdout, usageGuide)
				return
			}
			runDigest(cmd, *configPath, f, stdout, stderr)
		},
	}

	fl := cmd.Flags()
	fl.StringArrayVar(&f.feeds, "feed", nil, "RSS/Atom feed URL (repeatable)")
	fl.StringVar(&f.feedsFile, "feeds-file", "", "File containing feed URLs (one per line)")
	fl.StringArrayVar(&f.urls, "url", nil, "Direct article URL (repeatable)")
	fl.StringVar(&f.urlsFile, "urls-file", "", "File containing direct URLs (one per line)")
	fl.StringVar(&f.since, "since", "", "RFC3339 or YYYY-MM-DD cutoff for dated items")
	fl.IntVar(&f.maxItems, "max-items", 0, "Global max items across all sources")
	fl.StringVar(&f.out, "out", "", "Markdown output base path")
	fl.BoolVar(&f.jsonOutput, "json", false, "Emit run report JSON on stdout")
	fl.BoolVar(&f.atom, "atom", false, "Also write an Atom feed of the summaries")
	fl.StringVar(&f.baseURL, "base-url", "", "OpenAI-compatible or Gemini base URL")
	fl.StringVar(&f.apiKey, "api-key", "", "API key (prefer env)")
	fl.StringVar(&f.model, "model", "", "Model identifier")
	fl.Float64Var(&f.temperature, "temperature", 0, "Sampling temperature 0.0-2.0")
	fl.IntVar(&f.maxOutputTokens, "max-output-tokens", 0, "Max output tokens")
	fl.StringVar(&f.promptPreset, "prompt-preset", "", "Prompt preset ("+strings.Join(ai.Presets(), ", ")+")")
	fl.Float64Var(&f.timeout, "timeout", 0, "Timeout seconds for network calls")
	fl.IntVar(&f.concurrency, "concurrency", 0, "Concurrency for processing")
	fl.IntVar(&f.retries, "retries", 0, "Attempts per request for retryable failures")
	fl.StringVar(&f.cacheDir, "cache-dir", "", "Cache directory path")
	fl.StringVar(&f.historyDB, "history-db", "", "SQLite file for run history")
	fl.BoolVar(&f.dryRun, "dry-run", false, "Skip fetching and LLM calls, report planned work")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "Verbose stderr logs")
	fl.BoolVar(&f.usage, "usage", false, "Show usage guide and examples")

	return cmd
}

// runDigest executes a digest run. Errors are reported on stderr and never
// change the exit status.
func runDigest(cmd *cobra.Command, configPath string, f digestFlags, stdout, stderr io.Writer) {
	setupLogger(stderr, f.verbose)

	ov, err := buildOverrides(cmd, f)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return
	}

	cfg, err := config.Load(configPath, ov)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return
	}
	setupLogger(stderr, cfg.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := executeRun(ctx, cfg, stdout); err != nil {
		fmt.Fprintf(stderr, "pipeline error: %v\n", err)
	}
}

// executeRun runs the pipeline for cfg, recording history when configured.
func executeRun(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	var history pipeline.HistoryRecorder
	if cfg.History.DB != "" {
		store, err := storage.Open(cfg.History.DB)
		if err != nil {
			return err
		}
		defer store.Close()
		history = store
	}

	runner, err := pipeline.New(cfg, history)
	if err != nil {
		return err
	}

	result, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	if cfg.JSONOutput {
		return output.EmitReport(stdout, result.Report)
	}
	return nil
}

// buildOverrides turns the flags that were set on the command line into
// config overrides. URL list files are read here.
func buildOverrides(cmd *cobra.Command, f digestFlags) (config.Overrides, error) {
	ov := config.Overrides{
		Feeds: append([]string(nil), f.feeds...),
		URLs:  append([]string(nil), f.urls...),
	}

	if f.feedsFile != "" {
		lines, err := readURLFile(f.feedsFile)
		if err != nil {
			return ov, err
		}
		ov.Feeds = append(ov.Feeds, lines...)
	}
	if f.urlsFile != "" {
		lines, err := readURLFile(f.urlsFile)
		if err != nil {
			return ov, err
		}
		ov.URLs = append(ov.URLs, lines...)
	}

	changed := cmd.Flags().Changed
	if changed("since") {
		ov.Since = &f.since
	}
	if changed("max-items") {
		ov.MaxItems = &f.maxItems
	}
	if changed("out") {
		ov.Out = &f.out
	}
	if changed("json") {
		ov.JSONOutput = &f.jsonOutput
	}
	if changed("atom") {
		ov.Atom = &f.atom
	}
	if changed("base-url") {
		ov.BaseURL = &f.baseURL
	}
	if changed("api-key") {
		ov.APIKey = &f.apiKey
	}
	if changed("model") {
		ov.Model = &f.model
	}
	if changed("temperature") {
		ov.Temperature = &f.temperature
	}
	if changed("max-output-tokens") {
		ov.MaxOutputTokens = &f.maxOutputTokens
	}
	if changed("prompt-preset") {
		ov.PromptPreset = &f.promptPreset
	}
	if changed("timeout") {
		ov.Timeout = &f.timeout
	}
	if changed("concurrency") {
		ov.Concurrency = &f.concurrency
	}
	if changed("retries") {
		ov.Retries = &f.retries
	}
	if changed("cache-dir") {
		ov.CacheDir = &f.cacheDir
	}
	if changed("history-db") {
		ov.HistoryDB = &f.historyDB
	}
	if changed("dry-run") {
		ov.DryRun = &f.dryRun
	}
	if changed("verbose") {
		ov.Verbose = &f.verbose
	}
	return ov, nil
}

// readURLFile reads one URL per line, skipping blank lines and lines
// starting with "#".
func readURLFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading url file: %w", err)
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading url file %s: %w", path, err)
	}
	return urls, nil
}
