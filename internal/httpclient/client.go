// Package httpclient provides the pooled HTTP client shared by article
// fetching, feed parsing, and completion API calls, plus the retry policy
// they have in common.
//
// Callers must close response bodies, including on non-2xx statuses.
package httpclient

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Version is reported in the User-Agent header.
const Version = "0.1.0"

// UserAgent identifies requests made by distill.
const UserAgent = "distill/" + Version

// DefaultBackoffBase is the delay before the second attempt. Each further
// attempt doubles it.
const DefaultBackoffBase = 500 * time.Millisecond

// New returns a client with connection pooling and the distill User-Agent.
// Every request is bounded by timeout.
func New(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{base: transport},
	}
}

// userAgentTransport wraps an http.RoundTripper to inject the distill
// User-Agent on requests that do not set one.
type userAgentTransport struct {
	base http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", UserAgent)
	return t.base.RoundTrip(req)
}

// Retryable reports whether a response status should be retried: 429 and
// every 5xx.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || (status >= 500 && status < 600)
}

// Backoff returns the delay after the given 1-based attempt:
// base * 2^(attempt-1).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
