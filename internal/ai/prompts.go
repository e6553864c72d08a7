package ai

import (
	"fmt"
	"sort"
	"strings"
)

// PromptVersion identifies the prompt template and summary schema. It keys
// cached summaries and is recorded in run reports, so it must change
// whenever either changes.
const PromptVersion = "1.0"

// DefaultPreset is used when the configured preset is unknown.
const DefaultPreset = "default"

// summarySchema is the JSON shape the model is asked to return.
const summarySchema = `{
  "title": "string",
  "one_sentence": "string",
  "summary_bullets": [
    "string"
  ],
  "key_takeaways": [
    "string"
  ],
  "why_it_matters": [
    "string"
  ],
  "notable_quotes": [
    {
      "quote": "string",
      "context": "string"
    }
  ],
  "tags": [
    "string"
  ],
  "confidence": 0.0
}`

const defaultTemplate = `You are a precise technical editor.
Summarize the article into strict JSON that matches this schema exactly:
{schema}

Rules:
- Output must be valid JSON only.
- Keep factual grounding in the provided content.
- If uncertain, lower confidence.
`

const briefTemplate = `You are a concise news editor.
Summarize the article for a busy reader into strict JSON that matches this schema exactly:
{schema}

Rules:
- Output must be valid JSON only.
- Use at most three entries in each list.
- Keep factual grounding in the provided content.
- If uncertain, lower confidence.
`

var presets = map[string]string{
	DefaultPreset: defaultTemplate,
	"brief":       briefTemplate,
}

// truncationMarker is appended to article content cut at the input limit.
const truncationMarker = "\n[...truncated]"

const repairPromptPrefix = "The following output is invalid JSON for the required schema. " +
	"Fix it and return only valid JSON.\n\n"

// Metadata describes the article being summarized.
type Metadata struct {
	Title     string
	URL       string
	FeedTitle string
	Published string
}

// BuildPrompt renders the summarization prompt for the given preset. The
// article text is cut to maxInputChars characters, with a marker appended
// when it is cut. Unknown presets fall back to the default.
func BuildPrompt(meta Metadata, text, preset string, maxInputChars int) string {
	template, ok := presets[preset]
	if !ok {
		template = defaultTemplate
	}

	content := text
	if runes := []rune(text); maxInputChars > 0 && len(runes) > maxInputChars {
		content = string(runes[:maxInputChars]) + truncationMarker
	}

	feed := meta.FeedTitle
	if feed == "" {
		feed = "direct"
	}
	published := meta.Published
	if published == "" {
		published = "unknown"
	}

	var b strings.Builder
	b.WriteString(strings.Replace(template, "{schema}", summarySchema, 1))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Prompt version: %s\n\n", PromptVersion)
	b.WriteString("Article metadata:\n")
	fmt.Fprintf(&b, "title: %s\n", meta.Title)
	fmt.Fprintf(&b, "url: %s\n", meta.URL)
	fmt.Fprintf(&b, "feed: %s\n", feed)
	fmt.Fprintf(&b, "published: %s\n\n", published)
	b.WriteString("Article content:\n")
	b.WriteString(content)
	b.WriteString("\n")
	return b.String()
}

// RepairPrompt asks the model to fix output that failed to parse.
func RepairPrompt(invalid string) string {
	return repairPromptPrefix + invalid
}

// Presets returns the sorted names of the available prompt presets.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
