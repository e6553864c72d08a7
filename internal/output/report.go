package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hoanghai1803/distill/internal/models"
)

// ReportParams carries the run provenance recorded in a report.
type ReportParams struct {
	RunID         string
	Timestamp     time.Time
	Feeds         []string
	URLs          []string
	Since         string
	MaxItems      int
	BaseURL       string
	Model         string
	APIUsed       models.APIUsed
	PromptVersion string
}

// BuildReport assembles the run report from the final item records. Counts
// are derived from item statuses; every non-skipped item counts as
// selected.
func BuildReport(items []models.ItemResult, p ReportParams) *models.RunReport {
	report := &models.RunReport{
		RunID:     p.RunID,
		Timestamp: p.Timestamp.UTC(),
		Inputs: models.RunInputs{
			FeedCount: len(p.Feeds),
			URLCount:  len(p.URLs),
			Feeds:     nonNil(p.Feeds),
			URLs:      nonNil(p.URLs),
		},
		Selection: models.RunSelection{
			Since:    p.Since,
			MaxItems: p.MaxItems,
		},
		LLM: models.RunLLM{
			BaseURL:       p.BaseURL,
			Model:         p.Model,
			APIUsed:       p.APIUsed,
			PromptVersion: p.PromptVersion,
		},
		Items: items,
	}
	if report.Items == nil {
		report.Items = []models.ItemResult{}
	}

	for _, item := range items {
		switch item.Status {
		case models.StatusSummarized:
			report.SuccessCount++
		case models.StatusFailed:
			report.FailureCount++
		case models.StatusSkipped:
			report.SkipCount++
		}
		if item.Status != models.StatusSkipped {
			report.Selection.TotalSelected++
		}
	}
	return report
}

// EmitReport writes the report to w as indented JSON.
func EmitReport(w io.Writer, report *models.RunReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
