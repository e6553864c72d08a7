package ai

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/hoanghai1803/distill/internal/models"
)

// ErrMissingAPIKey is returned when no credential is configured for the
// completion endpoint.
var ErrMissingAPIKey = errors.New("missing_api_key")

// geminiHost is the host of the native Gemini API.
const geminiHost = "generativelanguage.googleapis.com"

// Provider sends a single prompt to a completion endpoint and returns the
// raw model text with its token usage.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, models.TokenUsage, error)

	// APIUsed reports the API shape that served the most recent successful
	// call, or "" before any call has succeeded.
	APIUsed() models.APIUsed
}

// Config holds the settings needed to talk to a completion endpoint.
type Config struct {
	BaseURL         string
	APIKey          string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	PromptPreset    string
	MaxInputChars   int

	// Retries is the total number of attempts for retryable HTTP failures.
	Retries int
}

// NewProvider creates the provider for cfg.BaseURL: the native Gemini
// dialect for Gemini hosts without an OpenAI compatibility path, and the
// OpenAI-compatible dialect otherwise. It returns ErrMissingAPIKey when
// cfg.APIKey is empty.
func NewProvider(cfg Config, client *http.Client) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if IsGeminiNative(cfg.BaseURL) {
		return NewGeminiProvider(cfg, client), nil
	}
	return NewOpenAIProvider(cfg, client), nil
}

// IsGeminiNative reports whether baseURL points at the native Gemini API:
// the host contains generativelanguage.googleapis.com (case-insensitive) and
// no path segment is "openai".
func IsGeminiNative(baseURL string) bool {
	u, err := url.Parse(strings.ToLower(baseURL))
	if err != nil {
		return false
	}
	if !strings.Contains(u.Host, geminiHost) {
		return false
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if seg == "openai" {
			return false
		}
	}
	return true
}
