package ai

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hoanghai1803/distill/internal/models"
)

// Client summarizes articles through a Provider. Model output that does not
// parse gets exactly one repair round-trip.
type Client struct {
	provider      Provider
	preset        string
	maxInputChars int
}

// NewClient creates a Client for cfg. It returns ErrMissingAPIKey when no
// credential is configured.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	provider, err := NewProvider(cfg, httpClient)
	if err != nil {
		return nil, err
	}
	return NewClientWithProvider(provider, cfg.PromptPreset, cfg.MaxInputChars), nil
}

// NewClientWithProvider creates a Client around an existing provider.
func NewClientWithProvider(p Provider, preset string, maxInputChars int) *Client {
	return &Client{provider: p, preset: preset, maxInputChars: maxInputChars}
}

// APIUsed reports the API shape used by the provider.
func (c *Client) APIUsed() models.APIUsed {
	return c.provider.APIUsed()
}

// Summarize builds the prompt for text, calls the model, and parses the
// reply. When the reply does not parse, the invalid output is sent back once
// for repair; a second parse failure returns a *ParseError with stage
// json_parse_error_after_repair. The returned usage is that of the first
// call.
func (c *Client) Summarize(ctx context.Context, text string, meta Metadata) (*models.ArticleSummary, models.TokenUsage, error) {
	prompt := BuildPrompt(meta, text, c.preset, c.maxInputChars)

	raw, usage, err := c.provider.Complete(ctx, prompt)
	if err != nil {
		return nil, models.TokenUsage{}, err
	}

	summary, err := ParseSummary(raw)
	if err == nil {
		return summary, usage, nil
	}

	slog.Debug("summary did not parse, requesting repair", "url", meta.URL, "error", err)

	repaired, _, err := c.provider.Complete(ctx, RepairPrompt(raw))
	if err != nil {
		return nil, usage, err
	}

	summary, err = ParseSummary(repaired)
	if err != nil {
		return nil, usage, &ParseError{Stage: StageAfterRepair, Detail: err.Error()}
	}
	return summary, usage, nil
}
