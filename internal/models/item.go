// Package models defines the records that flow through a distill run: the
// candidates discovered from feeds and direct links, the per-stage results
// collected while an item is processed, and the final run report.
package models

import "time"

// SourceType records where a candidate URL came from.
type SourceType string

const (
	SourceFeed   SourceType = "feed"
	SourceDirect SourceType = "direct"
)

// ItemStatus is the processing state of a single article.
type ItemStatus string

const (
	StatusSelected   ItemStatus = "selected"
	StatusSummarized ItemStatus = "summarized"
	StatusSkipped    ItemStatus = "skipped"
	StatusFailed     ItemStatus = "failed"
)

// Skip reasons assigned by the selector.
const (
	SkipOlderThanSince = "older_than_since"
	SkipMaxItemsLimit  = "max_items_limit"
)

// FeedItem is a candidate article discovered from a feed or supplied as a
// direct URL.
type FeedItem struct {
	URL           string     `json:"url"`
	NormalizedURL string     `json:"normalized_url"`
	Title         string     `json:"title,omitempty"`
	FeedTitle     string     `json:"feed_title,omitempty"`
	Published     *time.Time `json:"published,omitempty"`
	Updated       *time.Time `json:"updated,omitempty"`
	Author        string     `json:"author,omitempty"`
	SourceType    SourceType `json:"source_type"`
}

// SortDate returns the published time, falling back to the updated time.
// It returns nil for undated items.
func (f FeedItem) SortDate() *time.Time {
	if f.Published != nil {
		return f.Published
	}
	return f.Updated
}

// SkippedItem is a candidate the selector dropped before processing.
type SkippedItem struct {
	URL           string     `json:"url"`
	NormalizedURL string     `json:"normalized_url"`
	Title         string     `json:"title,omitempty"`
	FeedTitle     string     `json:"feed_title,omitempty"`
	Date          *time.Time `json:"date,omitempty"`
	Reason        string     `json:"reason"`
}

// FetchResult is the outcome of retrieving an article's HTML.
type FetchResult struct {
	URL        string  `json:"url"`
	StatusCode int     `json:"status_code,omitempty"`
	HTML       string  `json:"-"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms"`
	FromCache  bool    `json:"from_cache"`
}

// ExtractionResult is the outcome of turning fetched HTML into article text.
type ExtractionResult struct {
	URL           string  `json:"url"`
	Title         string  `json:"title,omitempty"`
	Content       string  `json:"-"`
	ContentLength int     `json:"content_length"`
	QualityScore  float64 `json:"quality_score"`
	Error         string  `json:"error,omitempty"`
	DurationMS    float64 `json:"duration_ms"`
	FromCache     bool    `json:"from_cache"`
}

// QualityScore is the ratio of extracted text length to HTML length.
func QualityScore(contentLen, htmlLen int) float64 {
	return float64(contentLen) / float64(max(htmlLen, 1))
}

// Quote is a notable quote with a short note on where it appears.
type Quote struct {
	Quote   string `json:"quote"`
	Context string `json:"context"`
}

// ArticleSummary is the structured summary the model must return.
type ArticleSummary struct {
	Title          string   `json:"title"`
	OneSentence    string   `json:"one_sentence"`
	SummaryBullets []string `json:"summary_bullets"`
	KeyTakeaways   []string `json:"key_takeaways"`
	WhyItMatters   []string `json:"why_it_matters"`
	NotableQuotes  []Quote  `json:"notable_quotes"`
	Tags           []string `json:"tags"`
	Confidence     float64  `json:"confidence"`
}

// TokenUsage counts tokens reported by the completion API. Fields are zero
// when the API does not report them.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ItemResult is the full processing record for one article.
type ItemResult struct {
	Status     ItemStatus         `json:"status"`
	URL        string             `json:"url"`
	Title      string             `json:"title,omitempty"`
	FeedTitle  string             `json:"feed_title,omitempty"`
	Date       *time.Time         `json:"date,omitempty"`
	SkipReason string             `json:"skip_reason,omitempty"`
	Fetch      *FetchResult       `json:"fetch,omitempty"`
	Extraction *ExtractionResult  `json:"extraction,omitempty"`
	Summary    *ArticleSummary    `json:"summary,omitempty"`
	Error      string             `json:"error,omitempty"`
	TokenUsage *TokenUsage        `json:"token_usage,omitempty"`
	Timings    map[string]float64 `json:"timings"`
}

// NewSelectedResult creates the initial record for an item that passed
// selection.
func NewSelectedResult(item FeedItem) ItemResult {
	return ItemResult{
		Status:    StatusSelected,
		URL:       item.URL,
		Title:     item.Title,
		FeedTitle: item.FeedTitle,
		Date:      item.SortDate(),
		Timings:   map[string]float64{},
	}
}

// NewSkippedResult creates the terminal record for a skipped candidate.
func NewSkippedResult(s SkippedItem) ItemResult {
	return ItemResult{
		Status:     StatusSkipped,
		URL:        s.URL,
		Title:      s.Title,
		FeedTitle:  s.FeedTitle,
		Date:       s.Date,
		SkipReason: s.Reason,
		Timings:    map[string]float64{},
	}
}
