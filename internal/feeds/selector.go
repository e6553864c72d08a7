package feeds

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hoanghai1803/distill/internal/models"
)

// sinceLayouts are the timestamp forms accepted for a since value containing
// a "T". Layouts without a zone are interpreted as UTC.
var sinceLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseSince parses a cutoff given either as a date (YYYY-MM-DD, taken as
// midnight UTC) or as an RFC 3339 timestamp. An empty value means no cutoff
// and returns nil.
func ParseSince(raw string) (*time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, nil
	}

	if strings.Contains(s, "T") {
		for _, layout := range sinceLayouts {
			if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return &t, nil
			}
		}
		return nil, fmt.Errorf("invalid --since value: %s", raw)
	}

	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid --since value: %s", raw)
	}
	return &t, nil
}

// Select orders items newest first (undated last, ties broken by normalized
// URL) and splits them into the items to process and the items skipped.
// Dated items older than since are skipped with older_than_since; undated
// items are never filtered by date. When maxItems is positive, items beyond
// the cap are skipped with max_items_limit, so the most recent are kept.
func Select(items []models.FeedItem, since *time.Time, maxItems int) ([]models.FeedItem, []models.SkippedItem) {
	sorted := make([]models.FeedItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return lessByDate(sorted[i], sorted[j])
	})

	var (
		filtered []models.FeedItem
		skipped  []models.SkippedItem
	)
	for _, item := range sorted {
		if d := item.SortDate(); since != nil && d != nil && d.Before(*since) {
			skipped = append(skipped, skippedFrom(item, models.SkipOlderThanSince))
			continue
		}
		filtered = append(filtered, item)
	}

	if maxItems <= 0 || len(filtered) <= maxItems {
		return filtered, skipped
	}
	for _, item := range filtered[maxItems:] {
		skipped = append(skipped, skippedFrom(item, models.SkipMaxItemsLimit))
	}
	return filtered[:maxItems], skipped
}

func lessByDate(a, b models.FeedItem) bool {
	da, db := a.SortDate(), b.SortDate()
	switch {
	case da != nil && db == nil:
		return true
	case da == nil && db != nil:
		return false
	case da != nil && db != nil && !da.Equal(*db):
		return da.After(*db)
	}
	return a.NormalizedURL < b.NormalizedURL
}

func skippedFrom(item models.FeedItem, reason string) models.SkippedItem {
	return models.SkippedItem{
		URL:           item.URL,
		NormalizedURL: item.NormalizedURL,
		Title:         item.Title,
		FeedTitle:     item.FeedTitle,
		Date:          item.SortDate(),
		Reason:        reason,
	}
}
