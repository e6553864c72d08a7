package models

import "time"

// APIUsed names the completion API shape that served a run.
type APIUsed string

const (
	APIResponses       APIUsed = "responses"
	APIChatCompletions APIUsed = "chat_completions"
)

// RunInputs records what the run was asked to process.
type RunInputs struct {
	FeedCount int      `json:"feed_count"`
	URLCount  int      `json:"url_count"`
	Feeds     []string `json:"feeds"`
	URLs      []string `json:"urls"`
}

// RunSelection records the selection parameters.
type RunSelection struct {
	TotalSelected int    `json:"total_selected"`
	Since         string `json:"since,omitempty"`
	MaxItems      int    `json:"max_items,omitempty"`
}

// RunLLM records the completion endpoint used for the run.
type RunLLM struct {
	BaseURL       string  `json:"base_url"`
	Model         string  `json:"model"`
	APIUsed       APIUsed `json:"api_used,omitempty"`
	PromptVersion string  `json:"prompt_version"`
}

// RunReport is the machine-readable record of a finished run.
type RunReport struct {
	RunID        string       `json:"run_id"`
	Timestamp    time.Time    `json:"timestamp"`
	Inputs       RunInputs    `json:"inputs"`
	Selection    RunSelection `json:"selection"`
	LLM          RunLLM       `json:"llm"`
	Items        []ItemResult `json:"items"`
	SuccessCount int          `json:"success_count"`
	FailureCount int          `json:"failure_count"`
	SkipCount    int          `json:"skip_count"`
}

// RunSummary is a compact view of a stored run, used for listings.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	Timestamp    time.Time `json:"timestamp"`
	Model        string    `json:"model"`
	APIUsed      string    `json:"api_used,omitempty"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	SkipCount    int       `json:"skip_count"`
	DigestPath   string    `json:"digest_path,omitempty"`
}
