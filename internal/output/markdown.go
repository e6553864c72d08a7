// Package output renders a finished run: the Markdown digest, the JSON run
// report, and an Atom feed of the summarized articles.
package output

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hoanghai1803/distill/internal/models"
)

// wordsPerMinute is the reading speed used for read-time estimates.
const wordsPerMinute = 238

// RenderDigest renders the Markdown digest for a run. Summarized items come
// first, followed by "Skipped" and "Failed" sections when they have entries.
func RenderDigest(report *models.RunReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Digest %s\n\n", report.Timestamp.UTC().Format(time.DateOnly))
	fmt.Fprintf(&b, "%d summarized, %d failed, %d skipped.\n\n",
		report.SuccessCount, report.FailureCount, report.SkipCount)

	var skipped, failed []models.ItemResult
	for _, item := range report.Items {
		switch item.Status {
		case models.StatusSummarized:
			if item.Summary != nil {
				renderItem(&b, item)
			}
		case models.StatusSkipped:
			skipped = append(skipped, item)
		case models.StatusFailed:
			failed = append(failed, item)
		case models.StatusSelected:
			renderSelected(&b, item)
		}
	}

	if len(skipped) > 0 {
		b.WriteString("## Skipped\n\n")
		for _, item := range skipped {
			fmt.Fprintf(&b, "* [%s](%s) (%s)\n", displayTitle(item), item.URL, item.SkipReason)
		}
		b.WriteString("\n")
	}

	if len(failed) > 0 {
		b.WriteString("## Failed\n\n")
		for _, item := range failed {
			fmt.Fprintf(&b, "* [%s](%s): `%s`\n", displayTitle(item), item.URL, item.Error)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func renderItem(b *strings.Builder, item models.ItemResult) {
	s := item.Summary

	title := s.Title
	if title == "" {
		title = displayTitle(item)
	}
	fmt.Fprintf(b, "## %s\n", title)
	fmt.Fprintf(b, "* Source: %s\n", item.URL)
	if item.FeedTitle != "" {
		fmt.Fprintf(b, "* Feed: %s\n", item.FeedTitle)
	}
	fmt.Fprintf(b, "* Published: %s\n", formatDate(item.Date))
	if ex := item.Extraction; ex != nil {
		fmt.Fprintf(b, "* Extracted: %d chars, quality %.2f, ~%d min read\n",
			ex.ContentLength, ex.QualityScore, readingMinutes(ex.ContentLength))
	}
	b.WriteString("\n")

	b.WriteString(orNone(strings.TrimSpace(s.OneSentence)))
	b.WriteString("\n\n")

	section(b, "Summary", paragraph(s.SummaryBullets))
	section(b, "Key takeaways", paragraph(s.KeyTakeaways))
	section(b, "Why it matters", paragraph(s.WhyItMatters))

	if len(s.NotableQuotes) > 0 {
		b.WriteString("#### Notable quotes\n")
		for _, q := range s.NotableQuotes {
			quote := strings.TrimSpace(q.Quote)
			if ctx := strings.TrimSpace(q.Context); ctx != "" {
				fmt.Fprintf(b, "> \"%s\" -- %s\n\n", quote, ctx)
			} else {
				fmt.Fprintf(b, "> \"%s\"\n\n", quote)
			}
		}
	}

	if len(s.Tags) > 0 {
		fmt.Fprintf(b, "Tags: %s\n\n", strings.Join(s.Tags, ", "))
	}
	fmt.Fprintf(b, "Confidence: %.2f\n\n", s.Confidence)
}

// renderSelected lists an item that was selected but not processed, as in
// a dry run.
func renderSelected(b *strings.Builder, item models.ItemResult) {
	fmt.Fprintf(b, "## %s\n", displayTitle(item))
	fmt.Fprintf(b, "* Source: %s\n", item.URL)
	fmt.Fprintf(b, "* Published: %s\n\n", formatDate(item.Date))
}

func section(b *strings.Builder, heading, body string) {
	fmt.Fprintf(b, "#### %s\n%s\n\n", heading, body)
}

// paragraph joins list entries into one paragraph, or "(none)".
func paragraph(values []string) string {
	var parts []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return orNone(strings.Join(parts, " "))
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func displayTitle(item models.ItemResult) string {
	if item.Title != "" {
		return item.Title
	}
	if item.URL != "" {
		return item.URL
	}
	return "Untitled"
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "unknown"
	}
	return t.UTC().Format(time.DateOnly)
}

// readingMinutes estimates reading time for text of the given character
// length, assuming an average of six characters per word including spacing.
// It returns at least 1 for non-empty text.
func readingMinutes(chars int) int {
	if chars <= 0 {
		return 0
	}
	words := float64(chars) / 6
	return max(int(math.Ceil(words/wordsPerMinute)), 1)
}

// DatedPath returns <dir>/<stem>-<YYYYMMDD><ext> for base, where ext
// replaces the base extension when non-empty.
func DatedPath(base string, date time.Time, ext string) string {
	dir := filepath.Dir(base)
	name := filepath.Base(base)
	suffix := filepath.Ext(name)
	stem := strings.TrimSuffix(name, suffix)
	if ext != "" {
		suffix = ext
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", stem, date.UTC().Format("20060102"), suffix))
}

// WriteDigest writes content to the dated digest path derived from out,
// creating parent directories, and returns the path written.
func WriteDigest(content, out string, date time.Time) (string, error) {
	path := DatedPath(out, date, "")
	if err := writeFile(path, []byte(content)); err != nil {
		return "", fmt.Errorf("writing digest: %w", err)
	}
	return path, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
