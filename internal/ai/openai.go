package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/hoanghai1803/distill/internal/models"
)

// Compile-time interface check.
var _ Provider = (*OpenAIProvider)(nil)

// OpenAIProvider implements Provider for OpenAI-compatible endpoints. It
// speaks two API shapes: the Responses API (POST /responses) and the Chat
// Completions API (POST /chat/completions). The first call tries Responses
// and falls back to Chat Completions when the endpoint does not support it.
// The shape that succeeded is remembered for the life of the provider.
type OpenAIProvider struct {
	cfg    Config
	poster poster

	mu      sync.Mutex
	apiUsed models.APIUsed
}

// NewOpenAIProvider creates an OpenAIProvider that sends requests through
// client.
func NewOpenAIProvider(cfg Config, client *http.Client) *OpenAIProvider {
	return &OpenAIProvider{
		cfg:    cfg,
		poster: newPoster(client, cfg.Retries),
	}
}

// responseFormat asks for a JSON-only reply.
type responseFormat struct {
	Type string `json:"type"`
}

// responsesRequest is the request body for the Responses API.
type responsesRequest struct {
	Model           string  `json:"model"`
	Input           string  `json:"input"`
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens"`
	Text            struct {
		Format responseFormat `json:"format"`
	} `json:"text"`
}

// responsesResponse is the response body from the Responses API.
type responsesResponse struct {
	OutputText string `json:"output_text"`
	Output     []struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Usage *usagePayload `json:"usage"`
}

// chatRequest is the request body for the Chat Completions API.
type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
	ResponseFormat responseFormat `json:"response_format"`
}

// chatMessage is a single message in the Chat Completions request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the response body from the Chat Completions API.
type chatResponse struct {
	Choices []struct {
		Message struct {
			// Content is either a string or a list of parts with text.
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *usagePayload `json:"usage"`
}

// usagePayload accepts both the Chat Completions and the Responses API
// spellings of token counts.
type usagePayload struct {
	PromptTokens     int `json:"prompt_tokens"`
	InputTokens      int `json:"input_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	OutputTokens     int `json:"output_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// apiErrorBody is the error envelope returned with error statuses.
type apiErrorBody struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (u *usagePayload) tokenUsage() models.TokenUsage {
	if u == nil {
		return models.TokenUsage{}
	}
	prompt := u.PromptTokens
	if prompt == 0 {
		prompt = u.InputTokens
	}
	completion := u.CompletionTokens
	if completion == 0 {
		completion = u.OutputTokens
	}
	total := u.TotalTokens
	if total == 0 {
		total = prompt + completion
	}
	return models.TokenUsage{
		PromptTokens:     max(prompt, 0),
		CompletionTokens: max(completion, 0),
		TotalTokens:      max(total, 0),
	}
}

// APIUsed returns the shape that served the last successful call.
func (p *OpenAIProvider) APIUsed() models.APIUsed {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.apiUsed
}

func (p *OpenAIProvider) setAPIUsed(api models.APIUsed) {
	p.mu.Lock()
	p.apiUsed = api
	p.mu.Unlock()
}

// Complete sends prompt using the remembered API shape, or tries Responses
// then Chat Completions when no shape has succeeded yet. Errors other than
// an unsupported-endpoint failure are returned without a fallback.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, models.TokenUsage, error) {
	switch p.APIUsed() {
	case models.APIChatCompletions:
		return p.callChat(ctx, prompt)
	case models.APIResponses:
		return p.callResponses(ctx, prompt)
	}

	text, usage, err := p.callResponses(ctx, prompt)
	if err == nil {
		return text, usage, nil
	}
	if !shouldFallback(err) {
		return "", models.TokenUsage{}, err
	}

	slog.Info("responses API unavailable, falling back to chat completions",
		"base_url", p.cfg.BaseURL,
		"error", err,
	)
	return p.callChat(ctx, prompt)
}

// shouldFallback reports whether err means the Responses API is not
// available on this endpoint.
func shouldFallback(err error) bool {
	var se *StatusError
	if errors.As(err, &se) && (se.StatusCode == http.StatusNotFound || se.StatusCode == http.StatusMethodNotAllowed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not supported") || strings.Contains(msg, "unsupported")
}

func (p *OpenAIProvider) callResponses(ctx context.Context, prompt string) (string, models.TokenUsage, error) {
	reqBody := responsesRequest{
		Model:           p.cfg.Model,
		Input:           prompt,
		Temperature:     p.cfg.Temperature,
		MaxOutputTokens: p.cfg.MaxOutputTokens,
	}
	reqBody.Text.Format = responseFormat{Type: "json_object"}

	var resp responsesResponse
	if err := p.call(ctx, "/responses", reqBody, &resp); err != nil {
		return "", models.TokenUsage{}, fmt.Errorf("responses API: %w", err)
	}

	p.setAPIUsed(models.APIResponses)
	return responsesText(resp), resp.Usage.tokenUsage(), nil
}

func (p *OpenAIProvider) callChat(ctx context.Context, prompt string) (string, models.TokenUsage, error) {
	reqBody := chatRequest{
		Model:          p.cfg.Model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		Temperature:    p.cfg.Temperature,
		MaxTokens:      p.cfg.MaxOutputTokens,
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	var resp chatResponse
	if err := p.call(ctx, "/chat/completions", reqBody, &resp); err != nil {
		return "", models.TokenUsage{}, fmt.Errorf("chat completions API: %w", err)
	}

	p.setAPIUsed(models.APIChatCompletions)
	return chatText(resp), resp.Usage.tokenUsage(), nil
}

// call posts reqBody to path under the base URL and decodes the reply into
// out.
func (p *OpenAIProvider) call(ctx context.Context, path string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	slog.Debug("calling completion API", "endpoint", path, "model", p.cfg.Model)

	status, respBody, err := p.poster.post(ctx, p.cfg.BaseURL+path, body, header)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	if status < 200 || status >= 300 {
		var apiErr apiErrorBody
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != nil {
			msg = apiErr.Error.Message
		}
		return &StatusError{StatusCode: status, Message: truncate(msg, 500)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response (status %d): %w", status, err)
	}
	return nil
}

// responsesText returns output_text, or the joined text parts of every
// output item.
func responsesText(resp responsesResponse) string {
	if resp.OutputText != "" {
		return resp.OutputText
	}
	var parts []string
	for _, item := range resp.Output {
		for _, c := range item.Content {
			if c.Text != "" {
				parts = append(parts, c.Text)
			}
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// chatText returns the content of the first choice.
func chatText(resp chatResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	raw := resp.Choices[0].Message.Content
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var chunks []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &chunks); err == nil {
		var parts []string
		for _, c := range chunks {
			if c.Text != "" {
				parts = append(parts, c.Text)
			}
		}
		return strings.TrimSpace(strings.Join(parts, "\n"))
	}
	return string(raw)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
