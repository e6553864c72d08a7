package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"github.com/hoanghai1803/distill/internal/models"
)

// BuildAtom renders the summarized items of a run as an Atom feed.
func BuildAtom(report *models.RunReport, link string) (string, error) {
	feed := &feeds.Feed{
		Title:       fmt.Sprintf("distill digest %s", report.Timestamp.UTC().Format(time.DateOnly)),
		Link:        &feeds.Link{Href: link},
		Description: fmt.Sprintf("%d summarized articles", report.SuccessCount),
		Id:          "urn:uuid:" + report.RunID,
		Created:     report.Timestamp,
		Updated:     report.Timestamp,
	}

	for _, item := range report.Items {
		if item.Status != models.StatusSummarized || item.Summary == nil {
			continue
		}

		created := report.Timestamp
		if item.Date != nil {
			created = *item.Date
		}

		feed.Items = append(feed.Items, &feeds.Item{
			Title:       item.Summary.Title,
			Link:        &feeds.Link{Href: item.URL},
			Id:          item.URL,
			Description: item.Summary.OneSentence,
			Content:     atomContent(item.Summary),
			Created:     created,
			Updated:     created,
		})
	}

	atom, err := feed.ToAtom()
	if err != nil {
		return "", fmt.Errorf("rendering atom feed: %w", err)
	}
	return atom, nil
}

// atomContent renders a summary as a small HTML fragment.
func atomContent(s *models.ArticleSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>%s</p>", escape(s.OneSentence))
	if len(s.SummaryBullets) > 0 {
		b.WriteString("<ul>")
		for _, bullet := range s.SummaryBullets {
			fmt.Fprintf(&b, "<li>%s</li>", escape(bullet))
		}
		b.WriteString("</ul>")
	}
	if len(s.Tags) > 0 {
		fmt.Fprintf(&b, "<p>Tags: %s</p>", escape(strings.Join(s.Tags, ", ")))
	}
	return b.String()
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func escape(s string) string {
	return htmlEscaper.Replace(s)
}

// WriteAtom writes the Atom feed beside the digest as <stem>-<YYYYMMDD>.atom
// and returns the path written.
func WriteAtom(report *models.RunReport, out string, date time.Time) (string, error) {
	atom, err := BuildAtom(report, "")
	if err != nil {
		return "", err
	}
	path := DatedPath(out, date, ".atom")
	if err := writeFile(path, []byte(atom)); err != nil {
		return "", fmt.Errorf("writing atom feed: %w", err)
	}
	return path, nil
}
