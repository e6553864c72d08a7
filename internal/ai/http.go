package ai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hoanghai1803/distill/internal/httpclient"
)

// maxResponseBytes bounds how much of an API response is read.
const maxResponseBytes = 8 << 20

// StatusError is returned when a completion API answers with an error
// status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// poster sends JSON POST requests, retrying 429, 5xx, and transport errors
// with exponential backoff.
type poster struct {
	client      *http.Client
	retries     int
	backoffBase time.Duration
}

func newPoster(client *http.Client, retries int) poster {
	return poster{
		client:      client,
		retries:     max(retries, 1),
		backoffBase: httpclient.DefaultBackoffBase,
	}
}

// post sends body to endpoint and returns the final status and response
// body. Error statuses are returned as a status, not an error; the error is
// set only when no response was received.
func (p poster) post(ctx context.Context, endpoint string, body []byte, header http.Header) (int, []byte, error) {
	var lastErr error
	for attempt := 1; attempt <= p.retries; attempt++ {
		final := attempt == p.retries

		status, respBody, err := p.once(ctx, endpoint, body, header)
		if err != nil {
			lastErr = err
			if final || ctx.Err() != nil {
				break
			}
			slog.Debug("retrying completion request", "attempt", attempt, "error", err)
			if err := httpclient.Sleep(ctx, httpclient.Backoff(p.backoffBase, attempt)); err != nil {
				break
			}
			continue
		}

		if httpclient.Retryable(status) && !final {
			slog.Debug("retrying completion request", "attempt", attempt, "status", status)
			if err := httpclient.Sleep(ctx, httpclient.Backoff(p.backoffBase, attempt)); err != nil {
				return status, respBody, nil
			}
			continue
		}
		return status, respBody, nil
	}
	return 0, nil, lastErr
}

func (p poster) once(ctx context.Context, endpoint string, body []byte, header http.Header) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("reading response body: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
