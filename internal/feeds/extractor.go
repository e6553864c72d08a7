package feeds

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/hoanghai1803/distill/internal/models"
)

// Extract turns fetched HTML into readable article text. go-readability is
// tried first; when it fails or finds no text, a goquery pass over the page
// body is used instead. The title falls back to fallbackTitle when the page
// has none.
//
// Failures are reported on the result: empty_extraction when no text was
// found, extract_error:<detail> when the HTML could not be processed.
func Extract(articleURL, html, fallbackTitle string) (result models.ExtractionResult) {
	started := time.Now()
	result = models.ExtractionResult{URL: articleURL, Title: fallbackTitle}

	defer func() {
		if r := recover(); r != nil {
			result = models.ExtractionResult{
				URL:        articleURL,
				Title:      fallbackTitle,
				Error:      fmt.Sprintf("extract_error:%v", r),
				DurationMS: elapsedMS(started),
			}
		}
	}()

	text, title, err := readableText(articleURL, html)
	if err != nil || text == "" {
		if err != nil {
			slog.Debug("readability failed, using fallback", "url", articleURL, "error", err)
		}
		text, title, err = fallbackExtract(html)
		if err != nil {
			result.Error = fmt.Sprintf("extract_error:%v", err)
			result.DurationMS = elapsedMS(started)
			return result
		}
	}

	if text == "" {
		result.Error = "empty_extraction"
		result.DurationMS = elapsedMS(started)
		return result
	}

	if title != "" {
		result.Title = title
	}
	result.Content = text
	result.ContentLength = utf8.RuneCountInString(text)
	result.QualityScore = models.QualityScore(result.ContentLength, utf8.RuneCountInString(html))
	result.DurationMS = elapsedMS(started)
	return result
}

// readableText runs go-readability over html.
func readableText(articleURL, html string) (string, string, error) {
	pageURL, err := url.Parse(articleURL)
	if err != nil {
		return "", "", fmt.Errorf("parsing url: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err != nil {
		return "", "", fmt.Errorf("readability extraction: %w", err)
	}
	return strings.TrimSpace(article.TextContent), strings.TrimSpace(article.Title), nil
}

// fallbackExtract collapses the visible text of the page body, with
// scripts and styles removed.
func fallbackExtract(html string) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("parsing html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, template").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	return strings.Join(strings.Fields(root.Text()), " "), title, nil
}
