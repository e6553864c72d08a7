package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hoanghai1803/distill/internal/models"
)

func newTestGemini(baseURL string, retries int) *GeminiProvider {
	p := NewGeminiProvider(Config{
		BaseURL:         baseURL,
		APIKey:          "gem-key",
		Model:           "gemini-2.0-flash",
		Temperature:     0.1,
		MaxOutputTokens: 512,
		Retries:         retries,
	}, &http.Client{Timeout: 5 * time.Second})
	p.poster.backoffBase = time.Millisecond
	return p
}

func TestIsGeminiNative(t *testing.T) {
	tests := []struct {
		baseURL string
		want    bool
	}{
		{"https://generativelanguage.googleapis.com/v1beta", true},
		{"https://GenerativeLanguage.GoogleAPIs.com/v1beta", true},
		{"https://generativelanguage.googleapis.com/v1beta/openai", false},
		{"https://generativelanguage.googleapis.com/v1beta/openai/", false},
		{"https://api.openai.com/v1", false},
		{"http://localhost:11434/v1", false},
	}
	for _, tt := range tests {
		if got := IsGeminiNative(tt.baseURL); got != tt.want {
			t.Errorf("IsGeminiNative(%q) = %v, want %v", tt.baseURL, got, tt.want)
		}
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantErr  error
		wantType string
	}{
		{
			name:     "openai compatible",
			cfg:      Config{BaseURL: "https://api.openai.com/v1", APIKey: "k"},
			wantType: "*ai.OpenAIProvider",
		},
		{
			name:     "gemini native",
			cfg:      Config{BaseURL: "https://generativelanguage.googleapis.com/v1beta", APIKey: "k"},
			wantType: "*ai.GeminiProvider",
		},
		{
			name:     "gemini openai compatibility path",
			cfg:      Config{BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai", APIKey: "k"},
			wantType: "*ai.OpenAIProvider",
		},
		{
			name:    "missing key",
			cfg:     Config{BaseURL: "https://api.openai.com/v1"},
			wantErr: ErrMissingAPIKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg, http.DefaultClient)
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := typeName(p); got != tt.wantType {
				t.Errorf("provider type = %s, want %s", got, tt.wantType)
			}
		})
	}
}

func typeName(p Provider) string {
	switch p.(type) {
	case *OpenAIProvider:
		return "*ai.OpenAIProvider"
	case *GeminiProvider:
		return "*ai.GeminiProvider"
	}
	return "unknown"
}

func TestGemini_Complete(t *testing.T) {
	var gotPath, gotKey string
	var gotBody geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{
			"candidates": [{"content": {"parts": [{"text": "{\"a\":"}, {"text": "1}"}]}}],
			"usageMetadata": {"promptTokenCount": 11, "candidatesTokenCount": 4, "totalTokenCount": 15}
		}`))
	}))
	defer srv.Close()

	p := newTestGemini(srv.URL, 3)
	if p.APIUsed() != "" {
		t.Errorf("APIUsed before any call = %q, want empty", p.APIUsed())
	}

	text, usage, err := p.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}

	if gotPath != "/models/gemini-2.0-flash:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "gem-key" {
		t.Errorf("key param = %q, want gem-key", gotKey)
	}
	if gotBody.GenerationConfig.ResponseMimeType != "application/json" || gotBody.GenerationConfig.MaxOutputTokens != 512 {
		t.Errorf("generationConfig = %+v", gotBody.GenerationConfig)
	}
	if len(gotBody.Contents) != 1 || gotBody.Contents[0].Role != "user" || gotBody.Contents[0].Parts[0].Text != "prompt" {
		t.Errorf("contents = %+v", gotBody.Contents)
	}
	if text != "{\"a\":\n1}" {
		t.Errorf("text = %q", text)
	}
	if usage != (models.TokenUsage{PromptTokens: 11, CompletionTokens: 4, TotalTokens: 15}) {
		t.Errorf("usage = %+v", usage)
	}
	if p.APIUsed() != models.APIChatCompletions {
		t.Errorf("APIUsed = %q, want %q", p.APIUsed(), models.APIChatCompletions)
	}
}

func TestGemini_ModelPrefixKept(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"x"}]}}]}`))
	}))
	defer srv.Close()

	p := newTestGemini(srv.URL, 1)
	p.cfg.Model = "models/gemini-pro"
	if _, _, err := p.Complete(context.Background(), "prompt"); err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if gotPath != "/models/gemini-pro:generateContent" {
		t.Errorf("path = %q, want single models/ prefix", gotPath)
	}
}

func TestGemini_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retries   int
		wantErr   string
		wantCalls int32
	}{
		{name: "non-retryable status", status: 400, body: `{}`, retries: 3, wantErr: "gemini_http_error:400", wantCalls: 1},
		{name: "retryable status exhausted", status: 503, body: `{}`, retries: 3, wantErr: "gemini_http_error:503", wantCalls: 3},
		{name: "invalid json", status: 200, body: `not json`, retries: 3, wantErr: "gemini_invalid_json:", wantCalls: 1},
		{name: "no candidates", status: 200, body: `{"candidates": []}`, retries: 3, wantErr: "gemini_no_candidates", wantCalls: 1},
		{name: "empty text", status: 200, body: `{"candidates": [{"content": {"parts": [{"text": "  "}]}}]}`, retries: 3, wantErr: "gemini_empty_text", wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, _, err := newTestGemini(srv.URL, tt.retries).Complete(context.Background(), "prompt")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.HasPrefix(err.Error(), tt.wantErr) {
				t.Errorf("err = %q, want prefix %q", err.Error(), tt.wantErr)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestGemini_RequestErrorRedactsKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, _, err := newTestGemini(url, 2).Complete(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.HasPrefix(err.Error(), "gemini_request_error:") {
		t.Errorf("err = %q, want gemini_request_error prefix", err)
	}
	if strings.Contains(err.Error(), "gem-key") {
		t.Errorf("error leaks the API key: %q", err)
	}
}

func TestGemini_NeverCallsOpenAIPaths(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"title\":\"T\",\"one_sentence\":\"S\"}"}]}}]}`))
	}))
	defer srv.Close()

	p := newTestGemini(srv.URL, 1)
	c := NewClientWithProvider(p, DefaultPreset, 1000)
	if _, _, err := c.Summarize(context.Background(), "text", Metadata{}); err != nil {
		t.Fatalf("Summarize error: %v", err)
	}

	for _, path := range paths {
		if strings.HasSuffix(path, "/responses") || strings.HasSuffix(path, "/chat/completions") {
			t.Errorf("native provider called OpenAI path %q", path)
		}
	}
	if len(paths) != 1 {
		t.Errorf("calls = %d, want 1", len(paths))
	}
}
