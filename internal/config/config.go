package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/hoanghai1803/distill/internal/ai"
	"github.com/hoanghai1803/distill/internal/feeds"
)

// Config holds all settings for a digest run and the history server.
type Config struct {
	Feeds    []string `toml:"feeds" yaml:"feeds"`
	URLs     []string `toml:"urls" yaml:"urls"`
	Since    string   `toml:"since" yaml:"since"`
	MaxItems int      `toml:"max_items" yaml:"max_items"`
	Out      string   `toml:"out" yaml:"out"`

	JSONOutput bool `toml:"json" yaml:"json"`
	Atom       bool `toml:"atom" yaml:"atom"`
	DryRun     bool `toml:"dry_run" yaml:"dry_run"`
	Verbose    bool `toml:"verbose" yaml:"verbose"`

	LLM     LLMConfig     `toml:"llm" yaml:"llm"`
	Fetch   FetchConfig   `toml:"fetch" yaml:"fetch"`
	Cache   CacheConfig   `toml:"cache" yaml:"cache"`
	History HistoryConfig `toml:"history" yaml:"history"`
	Server  ServerConfig  `toml:"server" yaml:"server"`
}

// LLMConfig holds completion endpoint settings.
type LLMConfig struct {
	BaseURL         string  `toml:"base_url" yaml:"base_url"`
	APIKey          string  `toml:"api_key" yaml:"api_key"`
	Model           string  `toml:"model" yaml:"model"`
	Temperature     float64 `toml:"temperature" yaml:"temperature"`
	MaxOutputTokens int     `toml:"max_output_tokens" yaml:"max_output_tokens"`
	PromptPreset    string  `toml:"prompt_preset" yaml:"prompt_preset"`
	MaxInputChars   int     `toml:"max_input_chars" yaml:"max_input_chars"`
}

// FetchConfig holds network and concurrency settings shared by article
// fetching and LLM calls.
type FetchConfig struct {
	// Timeout is the per-request timeout in seconds.
	Timeout     float64 `toml:"timeout" yaml:"timeout"`
	Concurrency int     `toml:"concurrency" yaml:"concurrency"`
	Retries     int     `toml:"retries" yaml:"retries"`

	// HostIntervalMS is the minimum delay between two requests to the same
	// host. Zero disables per-host pacing.
	HostIntervalMS int `toml:"host_interval_ms" yaml:"host_interval_ms"`
}

// CacheConfig holds content cache settings.
type CacheConfig struct {
	Dir          string `toml:"dir" yaml:"dir"`
	MaxHTMLBytes int    `toml:"max_html_bytes" yaml:"max_html_bytes"`
}

// HistoryConfig holds run history settings. An empty DB disables history.
type HistoryConfig struct {
	DB string `toml:"db" yaml:"db"`
}

// ServerConfig holds settings for the history API server.
type ServerConfig struct {
	Port int `toml:"port" yaml:"port"`
}

// TimeoutDuration returns the per-request timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Fetch.Timeout * float64(time.Second))
}

// HostInterval returns the per-host pacing delay.
func (c *Config) HostInterval() time.Duration {
	return time.Duration(c.Fetch.HostIntervalMS) * time.Millisecond
}

const (
	DefaultBaseURL      = "https://api.openai.com/v1"
	DefaultModel        = "gpt-4o-mini"
	DefaultOut          = "./digest.md"
	DefaultCacheDir     = "~/.cache/distill-feed"
	DefaultMaxHTMLBytes = 5 * 1024 * 1024
)

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Out: DefaultOut,
		LLM: LLMConfig{
			BaseURL:         DefaultBaseURL,
			Model:           DefaultModel,
			Temperature:     0.2,
			MaxOutputTokens: 1024,
			PromptPreset:    ai.DefaultPreset,
			MaxInputChars:   12000,
		},
		Fetch: FetchConfig{
			Timeout:     30,
			Concurrency: 4,
			Retries:     3,
		},
		Cache: CacheConfig{
			Dir:          DefaultCacheDir,
			MaxHTMLBytes: DefaultMaxHTMLBytes,
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}

const defaultConfigContent = `# feeds = ["https://example.com/rss"]
# urls = []
out = "./digest.md"

[llm]
base_url = "https://api.openai.com/v1"   # or https://generativelanguage.googleapis.com/v1beta
api_key = ""                             # or set DISTILL_FEED_API_KEY
model = "gpt-4o-mini"
temperature = 0.2
max_output_tokens = 1024
prompt_preset = "default"
max_input_chars = 12000

[fetch]
timeout = 30.0
concurrency = 4
retries = 3
host_interval_ms = 0

[cache]
dir = "~/.cache/distill-feed"
max_html_bytes = 5242880

[history]
db = ""                                  # e.g. "~/.cache/distill-feed/history.db"

[server]
port = 8080
`

// Overrides carries explicitly supplied values (usually CLI flags). Nil
// fields are left untouched. Feeds and URLs are appended, not replaced.
type Overrides struct {
	Feeds []string
	URLs  []string

	Since           *string
	MaxItems        *int
	Out             *string
	JSONOutput      *bool
	Atom            *bool
	DryRun          *bool
	Verbose         *bool
	BaseURL         *string
	APIKey          *string
	Model           *string
	Temperature     *float64
	MaxOutputTokens *int
	PromptPreset    *string
	Timeout         *float64
	Concurrency     *int
	Retries         *int
	CacheDir        *string
	HistoryDB       *string
	Port            *int
}

// Load builds the configuration in layers: defaults, then the config file at
// path (TOML, or YAML for .yaml/.yml), then environment variables, then the
// explicit overrides. A missing config file is not an error. The merged
// result is validated before it is returned.
func Load(path string, ov Overrides) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if ov.MaxItems != nil && *ov.MaxItems < 1 {
		return nil, fmt.Errorf("validating config: invalid max_items %d: must be >= 1", *ov.MaxItems)
	}
	applyOverrides(cfg, ov)
	applyProviderKey(cfg, ov)
	normalize(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFile decodes the config file at path on top of cfg.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("no config file, using defaults", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
		var explicit struct {
			MaxItems *int `yaml:"max_items"`
		}
		if err := yaml.Unmarshal(data, &explicit); err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
		if explicit.MaxItems != nil && *explicit.MaxItems < 1 {
			return fmt.Errorf("validating config: invalid max_items %d: must be >= 1", *explicit.MaxItems)
		}
	default:
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
		// Validate explicitly-set values here, since "max_items = 0" is
		// otherwise indistinguishable from "no limit".
		if err := validateExplicit(cfg, md); err != nil {
			return fmt.Errorf("validating config: %w", err)
		}
	}
	return nil
}

// validateExplicit checks values that were explicitly set in the TOML file.
func validateExplicit(cfg *Config, md toml.MetaData) error {
	if md.IsDefined("max_items") && cfg.MaxItems < 1 {
		return fmt.Errorf("invalid max_items %d: must be >= 1", cfg.MaxItems)
	}
	return nil
}

// WriteDefault writes the default config content to the given path,
// creating any parent directories as needed. It refuses to overwrite an
// existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %q already exists", path)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigContent), 0o644); err != nil {
		return fmt.Errorf("writing default config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies DISTILL_FEED_* environment variables. Empty
// variables are ignored.
//
// Priority for llm.api_key:
//  1. explicit override
//  2. DISTILL_FEED_API_KEY
//  3. GEMINI_API_KEY (when base_url points at the Gemini API), see applyProviderKey
//  4. OPENAI_API_KEY (otherwise)
//  5. the config file
func applyEnvOverrides(cfg *Config) error {
	strVars := map[string]*string{
		"DISTILL_FEED_BASE_URL":      &cfg.LLM.BaseURL,
		"DISTILL_FEED_MODEL":         &cfg.LLM.Model,
		"DISTILL_FEED_PROMPT_PRESET": &cfg.LLM.PromptPreset,
		"DISTILL_FEED_CACHE_DIR":     &cfg.Cache.Dir,
		"DISTILL_FEED_OUT":           &cfg.Out,
		"DISTILL_FEED_HISTORY_DB":    &cfg.History.DB,
	}
	for name, dst := range strVars {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	intVars := map[string]*int{
		"DISTILL_FEED_MAX_OUTPUT_TOKENS":    &cfg.LLM.MaxOutputTokens,
		"DISTILL_FEED_MAX_INPUT_CHARS":      &cfg.LLM.MaxInputChars,
		"DISTILL_FEED_CONCURRENCY":          &cfg.Fetch.Concurrency,
		"DISTILL_FEED_RETRIES":              &cfg.Fetch.Retries,
		"DISTILL_FEED_CACHE_MAX_HTML_BYTES": &cfg.Cache.MaxHTMLBytes,
	}
	for name, dst := range intVars {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
		*dst = n
	}

	floatVars := map[string]*float64{
		"DISTILL_FEED_TEMPERATURE": &cfg.LLM.Temperature,
		"DISTILL_FEED_TIMEOUT":     &cfg.Fetch.Timeout,
	}
	for name, dst := range floatVars {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
		*dst = f
	}

	if v := os.Getenv("DISTILL_FEED_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	return nil
}

// applyProviderKey sets llm.api_key from GEMINI_API_KEY or OPENAI_API_KEY,
// chosen by the final base_url. It runs after overrides and does nothing
// when the key came from DISTILL_FEED_API_KEY or an explicit override.
func applyProviderKey(cfg *Config, ov Overrides) {
	if ov.APIKey != nil || os.Getenv("DISTILL_FEED_API_KEY") != "" {
		return
	}
	name := "OPENAI_API_KEY"
	if isGeminiHost(cfg.LLM.BaseURL) {
		name = "GEMINI_API_KEY"
	}
	if v := os.Getenv(name); v != "" {
		cfg.LLM.APIKey = v
	}
}

func isGeminiHost(baseURL string) bool {
	return strings.Contains(strings.ToLower(baseURL), "generativelanguage.googleapis.com")
}

// applyOverrides copies every non-nil override onto cfg.
func applyOverrides(cfg *Config, ov Overrides) {
	cfg.Feeds = append(cfg.Feeds, ov.Feeds...)
	cfg.URLs = append(cfg.URLs, ov.URLs...)

	setString(&cfg.Since, ov.Since)
	setInt(&cfg.MaxItems, ov.MaxItems)
	setString(&cfg.Out, ov.Out)
	setBool(&cfg.JSONOutput, ov.JSONOutput)
	setBool(&cfg.Atom, ov.Atom)
	setBool(&cfg.DryRun, ov.DryRun)
	setBool(&cfg.Verbose, ov.Verbose)
	setString(&cfg.LLM.BaseURL, ov.BaseURL)
	setString(&cfg.LLM.APIKey, ov.APIKey)
	setString(&cfg.LLM.Model, ov.Model)
	setFloat(&cfg.LLM.Temperature, ov.Temperature)
	setInt(&cfg.LLM.MaxOutputTokens, ov.MaxOutputTokens)
	setString(&cfg.LLM.PromptPreset, ov.PromptPreset)
	setFloat(&cfg.Fetch.Timeout, ov.Timeout)
	setInt(&cfg.Fetch.Concurrency, ov.Concurrency)
	setInt(&cfg.Fetch.Retries, ov.Retries)
	setString(&cfg.Cache.Dir, ov.CacheDir)
	setString(&cfg.History.DB, ov.HistoryDB)
	setInt(&cfg.Server.Port, ov.Port)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// normalize cleans up values that have a canonical form.
func normalize(cfg *Config) {
	cfg.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.LLM.BaseURL), "/")
	cfg.Cache.Dir = expandHome(cfg.Cache.Dir)
	cfg.History.DB = expandHome(cfg.History.DB)
	if cfg.Out == "" {
		cfg.Out = DefaultOut
	}
	if cfg.LLM.PromptPreset == "" {
		cfg.LLM.PromptPreset = ai.DefaultPreset
	}
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// validate checks that configuration values are within acceptable ranges.
func validate(cfg *Config) error {
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return fmt.Errorf("invalid llm.temperature %v: must be between 0.0 and 2.0", cfg.LLM.Temperature)
	}
	if cfg.LLM.MaxOutputTokens < 1 {
		return fmt.Errorf("invalid llm.max_output_tokens %d: must be >= 1", cfg.LLM.MaxOutputTokens)
	}
	if cfg.LLM.MaxInputChars < 1 {
		return fmt.Errorf("invalid llm.max_input_chars %d: must be >= 1", cfg.LLM.MaxInputChars)
	}

	u, err := url.Parse(cfg.LLM.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid llm.base_url %q: must be an absolute http(s) URL", cfg.LLM.BaseURL)
	}

	if cfg.Fetch.Concurrency < 1 {
		return fmt.Errorf("invalid fetch.concurrency %d: must be >= 1", cfg.Fetch.Concurrency)
	}
	if cfg.Fetch.Retries < 1 {
		return fmt.Errorf("invalid fetch.retries %d: must be >= 1", cfg.Fetch.Retries)
	}
	if cfg.Fetch.Timeout <= 0 {
		return fmt.Errorf("invalid fetch.timeout %v: must be > 0", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.HostIntervalMS < 0 {
		return fmt.Errorf("invalid fetch.host_interval_ms %d: must be >= 0", cfg.Fetch.HostIntervalMS)
	}
	if cfg.Cache.MaxHTMLBytes < 0 {
		return fmt.Errorf("invalid cache.max_html_bytes %d: must be >= 0", cfg.Cache.MaxHTMLBytes)
	}
	if cfg.MaxItems < 0 {
		return fmt.Errorf("invalid max_items %d: must be >= 1", cfg.MaxItems)
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", cfg.Server.Port)
	}

	if _, err := feeds.ParseSince(cfg.Since); err != nil {
		return err
	}

	if !slices.Contains(ai.Presets(), cfg.LLM.PromptPreset) {
		slog.Warn("unknown llm.prompt_preset, using default",
			"preset", cfg.LLM.PromptPreset,
			"available", strings.Join(ai.Presets(), ", "),
		)
	}

	if cfg.LLM.APIKey == "" && !cfg.DryRun {
		slog.Warn("llm.api_key is empty: set it in the config file or via DISTILL_FEED_API_KEY")
	}

	return nil
}
