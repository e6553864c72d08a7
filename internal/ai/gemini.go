package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/hoanghai1803/distill/internal/models"
)

// Compile-time interface check.
var _ Provider = (*GeminiProvider)(nil)

// GeminiProvider implements Provider using the native Gemini
// generateContent API. The API key travels as the key query parameter.
type GeminiProvider struct {
	cfg    Config
	poster poster

	mu     sync.Mutex
	called bool
}

// NewGeminiProvider creates a GeminiProvider that sends requests through
// client.
func NewGeminiProvider(cfg Config, client *http.Client) *GeminiProvider {
	return &GeminiProvider{
		cfg:    cfg,
		poster: newPoster(client, cfg.Retries),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType"`
}

// geminiRequest is the request body for generateContent.
type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

// geminiResponse is the response body from generateContent.
type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// APIUsed reports chat_completions once a call has succeeded, so run
// reports keep the same two API values for every dialect.
func (p *GeminiProvider) APIUsed() models.APIUsed {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.called {
		return ""
	}
	return models.APIChatCompletions
}

// endpoint returns the generateContent URL for the configured model.
func (p *GeminiProvider) endpoint() string {
	model := p.cfg.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	q := url.Values{"key": {p.cfg.APIKey}}
	return fmt.Sprintf("%s/%s:generateContent?%s", p.cfg.BaseURL, model, q.Encode())
}

// Complete sends prompt to generateContent. Failures carry a gemini_*
// prefix naming the stage that failed.
func (p *GeminiProvider) Complete(ctx context.Context, prompt string) (string, models.TokenUsage, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      p.cfg.Temperature,
			MaxOutputTokens:  p.cfg.MaxOutputTokens,
			ResponseMimeType: "application/json",
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", models.TokenUsage{}, fmt.Errorf("gemini_request_error:%v", err)
	}

	slog.Debug("calling Gemini API", "model", p.cfg.Model)

	status, respBody, err := p.poster.post(ctx, p.endpoint(), body, nil)
	if err != nil {
		return "", models.TokenUsage{}, fmt.Errorf("gemini_request_error:%v", redactKey(err.Error(), p.cfg.APIKey))
	}
	if status < 200 || status >= 300 {
		return "", models.TokenUsage{}, &geminiStatusError{StatusError{StatusCode: status}}
	}

	var resp geminiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", models.TokenUsage{}, fmt.Errorf("gemini_invalid_json:%v", err)
	}

	if len(resp.Candidates) == 0 {
		return "", models.TokenUsage{}, fmt.Errorf("gemini_no_candidates")
	}

	var parts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			parts = append(parts, part.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(parts, "\n"))
	if text == "" {
		return "", models.TokenUsage{}, fmt.Errorf("gemini_empty_text")
	}

	p.mu.Lock()
	p.called = true
	p.mu.Unlock()

	usage := models.TokenUsage{
		PromptTokens:     max(resp.UsageMetadata.PromptTokenCount, 0),
		CompletionTokens: max(resp.UsageMetadata.CandidatesTokenCount, 0),
		TotalTokens:      max(resp.UsageMetadata.TotalTokenCount, 0),
	}
	return text, usage, nil
}

// geminiStatusError formats a status failure as gemini_http_error:<code>
// while still exposing the status through StatusError.
type geminiStatusError struct {
	StatusError
}

func (e *geminiStatusError) Error() string {
	return fmt.Sprintf("gemini_http_error:%d", e.StatusCode)
}

func (e *geminiStatusError) Unwrap() error {
	return &e.StatusError
}

// redactKey removes the API key from transport error text, which embeds
// the request URL.
func redactKey(s, key string) string {
	if key == "" {
		return s
	}
	s = strings.ReplaceAll(s, url.QueryEscape(key), "REDACTED")
	return strings.ReplaceAll(s, key, "REDACTED")
}
