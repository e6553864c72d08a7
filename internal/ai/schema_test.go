package ai

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

const validSummaryJSON = `{
  "title": "Go 1.25 Released",
  "one_sentence": "Go 1.25 ships with a new GC.",
  "summary_bullets": ["faster GC", "new APIs"],
  "key_takeaways": ["upgrade soon"],
  "why_it_matters": ["lower latency"],
  "notable_quotes": [{"quote": "fast", "context": "release notes"}],
  "tags": ["go"],
  "confidence": 0.8
}`

func TestParseSummary_Variants(t *testing.T) {
	want, err := ParseSummary(validSummaryJSON)
	if err != nil {
		t.Fatalf("ParseSummary(valid) error: %v", err)
	}

	tests := []struct {
		name string
		raw  string
	}{
		{name: "fenced with language", raw: "```json\n" + validSummaryJSON + "\n```"},
		{name: "fenced uppercase language", raw: "```JSON\n" + validSummaryJSON + "\n```"},
		{name: "fenced without language", raw: "```\n" + validSummaryJSON + "\n```"},
		{name: "embedded in prose", raw: "Here is the summary:\n" + validSummaryJSON + "\nHope it helps!"},
		{name: "surrounding whitespace", raw: "\n\n  " + validSummaryJSON + "  \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSummary(tt.raw)
			if err != nil {
				t.Fatalf("ParseSummary error: %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("ParseSummary = %+v, want %+v", got, want)
			}
		})
	}
}

func TestParseSummary_Fields(t *testing.T) {
	got, err := ParseSummary(validSummaryJSON)
	if err != nil {
		t.Fatalf("ParseSummary error: %v", err)
	}
	if got.Title != "Go 1.25 Released" || got.Confidence != 0.8 {
		t.Errorf("summary = %+v", got)
	}
	if len(got.NotableQuotes) != 1 || got.NotableQuotes[0].Context != "release notes" {
		t.Errorf("NotableQuotes = %+v", got.NotableQuotes)
	}
}

func TestParseSummary_Defaults(t *testing.T) {
	got, err := ParseSummary(`{"title": "T", "one_sentence": "S"}`)
	if err != nil {
		t.Fatalf("ParseSummary error: %v", err)
	}
	if got.SummaryBullets == nil || got.KeyTakeaways == nil || got.WhyItMatters == nil || got.Tags == nil || got.NotableQuotes == nil {
		t.Errorf("lists should default to empty, got %+v", got)
	}
	if got.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", got.Confidence)
	}
}

func TestParseSummary_ConfidenceNotClamped(t *testing.T) {
	got, err := ParseSummary(`{"title": "T", "one_sentence": "S", "confidence": 1.7}`)
	if err != nil {
		t.Fatalf("ParseSummary error: %v", err)
	}
	if got.Confidence != 1.7 {
		t.Errorf("Confidence = %v, want 1.7 as reported", got.Confidence)
	}
}

func TestParseSummary_Errors(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantStage string
	}{
		{name: "malformed json", raw: `{"title": "T", "one_sentence": }`, wantStage: StageDecode},
		{name: "not json at all", raw: "I cannot summarize this.", wantStage: StageDecode},
		{name: "missing title", raw: `{"one_sentence": "S"}`, wantStage: StageValidation},
		{name: "empty one_sentence", raw: `{"title": "T", "one_sentence": "  "}`, wantStage: StageValidation},
		{name: "wrong list type", raw: `{"title": "T", "one_sentence": "S", "tags": "go"}`, wantStage: StageValidation},
		{name: "wrong title type", raw: `{"title": 42, "one_sentence": "S"}`, wantStage: StageValidation},
		{name: "array instead of object", raw: `["title"]`, wantStage: StageValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSummary(tt.raw)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error %T is not *ParseError", err)
			}
			if pe.Stage != tt.wantStage {
				t.Errorf("Stage = %q, want %q", pe.Stage, tt.wantStage)
			}
			if !strings.HasPrefix(err.Error(), tt.wantStage+":") {
				t.Errorf("Error() = %q, want %q prefix", err.Error(), tt.wantStage)
			}
		})
	}
}
