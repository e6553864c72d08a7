package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hoanghai1803/distill/internal/models"
)

// Parse failure stages.
const (
	StageDecode      = "json_decode_error"
	StageValidation  = "schema_validation_error"
	StageAfterRepair = "json_parse_error_after_repair"
)

// ParseError reports model output that is not a valid article summary.
// Stage records whether decoding or validation failed.
type ParseError struct {
	Stage  string
	Detail string
}

func (e *ParseError) Error() string {
	return e.Stage + ":" + e.Detail
}

var jsonFence = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)\\s*```")

// extractJSON returns the JSON blob inside s: the content of the first
// fenced code block, else the span from the first '{' to the last '}',
// else s itself.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)

	if m := jsonFence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}

	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first != -1 && last != -1 && first < last {
		return s[first : last+1]
	}
	return s
}

// ParseSummary parses raw model output into an ArticleSummary. title and
// one_sentence are required; lists default to empty and confidence to 0.
// Confidence is taken as reported, without range checks.
func ParseSummary(raw string) (*models.ArticleSummary, error) {
	blob := extractJSON(raw)

	var payload any
	if err := json.Unmarshal([]byte(blob), &payload); err != nil {
		return nil, &ParseError{Stage: StageDecode, Detail: err.Error()}
	}
	if _, ok := payload.(map[string]any); !ok {
		return nil, &ParseError{Stage: StageValidation, Detail: "summary must be a JSON object"}
	}

	var summary models.ArticleSummary
	if err := json.Unmarshal([]byte(blob), &summary); err != nil {
		return nil, &ParseError{Stage: StageValidation, Detail: validationDetail(err)}
	}

	if strings.TrimSpace(summary.Title) == "" {
		return nil, &ParseError{Stage: StageValidation, Detail: "title: field required"}
	}
	if strings.TrimSpace(summary.OneSentence) == "" {
		return nil, &ParseError{Stage: StageValidation, Detail: "one_sentence: field required"}
	}

	for _, list := range []*[]string{
		&summary.SummaryBullets,
		&summary.KeyTakeaways,
		&summary.WhyItMatters,
		&summary.Tags,
	} {
		if *list == nil {
			*list = []string{}
		}
	}
	if summary.NotableQuotes == nil {
		summary.NotableQuotes = []models.Quote{}
	}

	return &summary, nil
}

func validationDetail(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("%s: expected %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value)
	}
	return err.Error()
}
