package feeds

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hoanghai1803/distill/internal/cache"
	"github.com/hoanghai1803/distill/internal/httpclient"
	"github.com/hoanghai1803/distill/internal/models"
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 32 << 20

// FetchOptions controls article retrieval.
type FetchOptions struct {
	// Retries is the total number of attempts per URL. Values below 1 mean 1.
	Retries int

	// Timeout bounds each attempt.
	Timeout time.Duration

	// HostInterval is the minimum delay between two requests to the same
	// host. Zero disables per-host pacing.
	HostInterval time.Duration
}

// Fetcher retrieves article HTML with retry/backoff, a cache-first
// short-circuit, and optional per-host pacing. It is safe for concurrent use.
type Fetcher struct {
	client *http.Client
	cache  cache.Store
	opts   FetchOptions

	backoffBase time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter // per-host pacing
}

// NewFetcher creates a Fetcher that sends requests through client. A nil
// store disables caching.
func NewFetcher(client *http.Client, store cache.Store, opts FetchOptions) *Fetcher {
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	return &Fetcher{
		client:      client,
		cache:       store,
		opts:        opts,
		backoffBase: httpclient.DefaultBackoffBase,
		limiters:    make(map[string]*rate.Limiter),
	}
}

// FetchArticle returns the HTML for articleURL. Cached HTML is returned
// without a network call. Otherwise the URL is fetched up to Retries times,
// retrying 429, 5xx, and transport errors with exponential backoff. Any
// other status >= 400 stops immediately with http_error:<status>. A
// successful body is cached before it is returned.
//
// Exactly one of HTML and Error is set on the result.
func (f *Fetcher) FetchArticle(ctx context.Context, articleURL string) models.FetchResult {
	started := time.Now()
	result := models.FetchResult{URL: articleURL}

	if f.cache != nil {
		if html, ok := f.cache.Get(cache.NamespaceHTML, articleURL, ""); ok && html != "" {
			result.StatusCode = http.StatusOK
			result.HTML = html
			result.FromCache = true
			result.DurationMS = elapsedMS(started)
			return result
		}
	}

	var lastErr string
	for attempt := 1; attempt <= f.opts.Retries; attempt++ {
		final := attempt == f.opts.Retries

		status, body, err := f.get(ctx, articleURL)
		if err != nil {
			lastErr = err.Error()
			slog.Debug("fetch attempt failed",
				"url", articleURL,
				"attempt", attempt,
				"error", err,
			)
			if final || ctx.Err() != nil {
				break
			}
			if err := httpclient.Sleep(ctx, httpclient.Backoff(f.backoffBase, attempt)); err != nil {
				break
			}
			continue
		}

		result.StatusCode = status
		if httpclient.Retryable(status) && !final {
			slog.Debug("retrying fetch",
				"url", articleURL,
				"attempt", attempt,
				"status", status,
			)
			if err := httpclient.Sleep(ctx, httpclient.Backoff(f.backoffBase, attempt)); err != nil {
				lastErr = fmt.Sprintf("http_error:%d", status)
				break
			}
			continue
		}
		if status >= 400 {
			lastErr = fmt.Sprintf("http_error:%d", status)
			break
		}
		if body == "" {
			lastErr = "fetch_failed"
			break
		}

		if f.cache != nil {
			f.cache.Put(cache.NamespaceHTML, articleURL, body, "")
		}
		result.HTML = body
		result.DurationMS = elapsedMS(started)
		return result
	}

	if lastErr == "" {
		lastErr = "fetch_failed"
	}
	result.Error = lastErr
	result.DurationMS = elapsedMS(started)
	return result
}

// get performs a single GET bounded by the configured timeout. Error
// statuses are returned as a status, not an error.
func (f *Fetcher) get(ctx context.Context, articleURL string) (int, string, error) {
	if err := f.waitForHost(ctx, articleURL); err != nil {
		return 0, "", err
	}

	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return 0, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return resp.StatusCode, "", nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, "", fmt.Errorf("reading body: %w", err)
	}
	return resp.StatusCode, string(body), nil
}

// waitForHost blocks until the host of rawURL may be contacted again.
func (f *Fetcher) waitForHost(ctx context.Context, rawURL string) error {
	if f.opts.HostInterval <= 0 {
		return nil
	}

	host := extractDomain(rawURL)
	f.mu.Lock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(f.opts.HostInterval), 1)
		f.limiters[host] = lim
	}
	f.mu.Unlock()

	if err := lim.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// extractDomain parses a URL and returns its hostname. If parsing fails, it
// returns the raw URL as a fallback key.
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}

func elapsedMS(started time.Time) float64 {
	return float64(time.Since(started).Microseconds()) / 1000
}
