package feeds

import (
	"testing"

	"github.com/hoanghai1803/distill/internal/models"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "tracking params, case and fragment",
			input: "HTTPS://Example.COM/path/?utm_source=x&b=2&a=1#frag",
			want:  "https://example.com/path?a=1&b=2",
		},
		{
			name:  "root slash is preserved",
			input: "https://example.com/",
			want:  "https://example.com/",
		},
		{
			name:  "trailing slash is stripped",
			input: "https://example.com/path/",
			want:  "https://example.com/path",
		},
		{
			name:  "repeated trailing slashes are stripped",
			input: "https://example.com/a/b///",
			want:  "https://example.com/a/b",
		},
		{
			name:  "root of only slashes",
			input: "https://example.com//",
			want:  "https://example.com/",
		},
		{
			name:  "malformed escapes are kept",
			input: "https://example.com/a?x=%zz&y=1",
			want:  "https://example.com/a?x=%25zz&y=1",
		},
		{
			name:  "empty path becomes root",
			input: "https://example.com",
			want:  "https://example.com/",
		},
		{
			name:  "missing scheme defaults to https",
			input: "example.com/post",
			want:  "https://example.com/post",
		},
		{
			name:  "deny-listed keys are case-insensitive",
			input: "https://example.com/a?REF=hn&FbClid=1&gclid=2&mc_cid=3&mc_eid=4&source=rss&UTM_Medium=x&id=7",
			want:  "https://example.com/a?id=7",
		},
		{
			name:  "pairs sorted by key then value",
			input: "https://example.com/a?tag=b&tag=a&page=2",
			want:  "https://example.com/a?page=2&tag=a&tag=b",
		},
		{
			name:  "blank values are kept",
			input: "https://example.com/a?flag=&x=1",
			want:  "https://example.com/a?flag=&x=1",
		},
		{
			name:  "path case is preserved",
			input: "https://Example.com/Some/Post",
			want:  "https://example.com/Some/Post",
		},
		{
			name:  "surrounding whitespace trimmed",
			input: "  https://example.com/post  ",
			want:  "https://example.com/post",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeURL(tt.input)
			if got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeURL_Idempotent(t *testing.T) {
	inputs := []string{
		"HTTPS://Example.COM/path/?utm_source=x&b=2&a=1#frag",
		"https://example.com/",
		"http://example.com/a%20b/?q=hello+world&z=%2F",
		"example.com/post?ref=x",
		"https://user@example.com:8443/p/?k=v",
		"https://example.com/a//",
		"https://example.com/a/b///",
		"https://example.com/a?x=%zz",
	}

	for _, in := range inputs {
		once := NormalizeURL(in)
		twice := NormalizeURL(once)
		if once != twice {
			t.Errorf("NormalizeURL not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizeURL_MalformedEscapesStayDistinct(t *testing.T) {
	a := NormalizeURL("https://example.com/a?x=%zz")
	b := NormalizeURL("https://example.com/a")
	if a == b {
		t.Errorf("NormalizeURL dropped the malformed pair: both %q", a)
	}
}

func TestDeduplicate(t *testing.T) {
	direct := models.FeedItem{
		URL:        "https://example.com/post/?utm_source=x",
		SourceType: models.SourceDirect,
	}
	feed := models.FeedItem{
		URL:        "https://example.com/post",
		Title:      "From the feed",
		FeedTitle:  "Example Blog",
		SourceType: models.SourceFeed,
	}

	tests := []struct {
		name  string
		items []models.FeedItem
	}{
		{name: "direct then feed", items: []models.FeedItem{direct, feed}},
		{name: "feed then direct", items: []models.FeedItem{feed, direct}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Deduplicate(tt.items)
			if len(got) != 1 {
				t.Fatalf("Deduplicate returned %d items, want 1", len(got))
			}
			if got[0].SourceType != models.SourceFeed {
				t.Errorf("SourceType = %q, want %q", got[0].SourceType, models.SourceFeed)
			}
			if got[0].Title != "From the feed" {
				t.Errorf("Title = %q, want feed metadata", got[0].Title)
			}
			if got[0].NormalizedURL != "https://example.com/post" {
				t.Errorf("NormalizedURL = %q, want %q", got[0].NormalizedURL, "https://example.com/post")
			}
		})
	}
}

func TestDeduplicate_KeepsFirstSeenOrder(t *testing.T) {
	items := []models.FeedItem{
		{URL: "https://b.example/1", SourceType: models.SourceFeed, Title: "first"},
		{URL: "https://a.example/1", SourceType: models.SourceDirect},
		{URL: "https://b.example/1/", SourceType: models.SourceFeed, Title: "second"},
		{URL: "https://a.example/1#top", SourceType: models.SourceFeed},
	}

	got := Deduplicate(items)
	if len(got) != 2 {
		t.Fatalf("Deduplicate returned %d items, want 2", len(got))
	}
	if got[0].NormalizedURL != "https://b.example/1" || got[1].NormalizedURL != "https://a.example/1" {
		t.Errorf("order = [%s %s], want first-seen order", got[0].NormalizedURL, got[1].NormalizedURL)
	}
	if got[0].Title != "first" {
		t.Errorf("feed item replaced by later feed item: title = %q", got[0].Title)
	}
	if got[1].SourceType != models.SourceFeed {
		t.Errorf("direct item not replaced by feed item")
	}
}
