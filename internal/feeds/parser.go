package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/hoanghai1803/distill/internal/models"
)

// maxConcurrentFeeds bounds how many feeds are downloaded at once.
const maxConcurrentFeeds = 10

// ParseFeeds downloads and parses every feed URL concurrently and returns
// their entries as candidates, in feed order. A feed that cannot be fetched
// or parsed is logged and contributes no items.
func (f *Fetcher) ParseFeeds(ctx context.Context, feedURLs []string) []models.FeedItem {
	if len(feedURLs) == 0 {
		return nil
	}

	perFeed := make([][]models.FeedItem, len(feedURLs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFeeds)

	for i, feedURL := range feedURLs {
		g.Go(func() error {
			items, err := f.parseSingleFeed(ctx, feedURL)
			if err != nil {
				slog.Warn("failed to fetch feed",
					"url", feedURL,
					"error", err,
				)
				return nil // skip failures, don't fail the batch
			}

			perFeed[i] = items
			slog.Info("fetched feed",
				"url", feedURL,
				"items", len(items),
			)
			return nil
		})
	}
	g.Wait()

	var merged []models.FeedItem
	for _, items := range perFeed {
		merged = append(merged, items...)
	}
	return merged
}

// parseSingleFeed retrieves and parses one RSS or Atom feed.
func (f *Fetcher) parseSingleFeed(ctx context.Context, feedURL string) ([]models.FeedItem, error) {
	if err := f.waitForHost(ctx, feedURL); err != nil {
		return nil, err
	}

	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	fp := gofeed.NewParser()
	fp.Client = f.client

	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed %q: %w", feedURL, err)
	}

	return feedItems(feed), nil
}

// feedItems converts gofeed entries into candidates. Entries without a link
// are skipped. Timestamps are normalized to UTC.
func feedItems(feed *gofeed.Feed) []models.FeedItem {
	var items []models.FeedItem
	for _, entry := range feed.Items {
		link := strings.TrimSpace(entry.Link)
		if link == "" {
			continue
		}

		items = append(items, models.FeedItem{
			URL:           link,
			NormalizedURL: NormalizeURL(link),
			Title:         strings.TrimSpace(entry.Title),
			FeedTitle:     strings.TrimSpace(feed.Title),
			Published:     toUTC(entry.PublishedParsed),
			Updated:       toUTC(entry.UpdatedParsed),
			Author:        authorName(entry),
			SourceType:    models.SourceFeed,
		})
	}
	return items
}

// DirectItems builds candidates for URLs supplied directly.
func DirectItems(urls []string) []models.FeedItem {
	items := make([]models.FeedItem, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		items = append(items, models.FeedItem{
			URL:           u,
			NormalizedURL: NormalizeURL(u),
			SourceType:    models.SourceDirect,
		})
	}
	return items
}

func authorName(entry *gofeed.Item) string {
	if entry.Author != nil && entry.Author.Name != "" {
		return entry.Author.Name
	}
	for _, a := range entry.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return ""
}

func toUTC(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
