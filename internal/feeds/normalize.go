package feeds

import (
	"net/url"
	"sort"
	"strings"

	"github.com/hoanghai1803/distill/internal/models"
)

// trackingKeys are query parameters dropped during normalization, in
// addition to every utm_* parameter.
var trackingKeys = map[string]bool{
	"ref":    true,
	"source": true,
	"fbclid": true,
	"gclid":  true,
	"mc_cid": true,
	"mc_eid": true,
}

type queryPair struct {
	key   string
	value string
}

// NormalizeURL returns the canonical form of rawURL used for deduplication:
// lower-case scheme and host (https when missing), trailing slashes removed
// except on the root path, tracking parameters dropped, remaining query
// pairs sorted by key then value, and no fragment. Unparseable input is
// returned trimmed but otherwise unchanged.
func NormalizeURL(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if !strings.Contains(s, "://") && !strings.HasPrefix(s, "//") {
		s = "//" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return strings.TrimSpace(rawURL)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "https"
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if path = strings.TrimRight(path, "/"); path == "" {
		path = "/"
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	if u.User != nil {
		b.WriteString(u.User.String())
		b.WriteByte('@')
	}
	b.WriteString(strings.ToLower(u.Host))
	b.WriteString(path)

	if q := normalizeQuery(u.RawQuery); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}
	return b.String()
}

// normalizeQuery filters and sorts raw query pairs. Blank values are kept.
func normalizeQuery(raw string) string {
	if raw == "" {
		return ""
	}

	var pairs []queryPair
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		key := unescapeOrRaw(k)
		value := unescapeOrRaw(v)

		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") || trackingKeys[lower] {
			continue
		}
		pairs = append(pairs, queryPair{key: key, value: value})
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].key != pairs[j].key {
			return pairs[i].key < pairs[j].key
		}
		return pairs[i].value < pairs[j].value
	})

	encoded := make([]string, 0, len(pairs))
	for _, p := range pairs {
		encoded = append(encoded, url.QueryEscape(p.key)+"="+url.QueryEscape(p.value))
	}
	return strings.Join(encoded, "&")
}

// unescapeOrRaw decodes a query component, keeping malformed escapes as-is.
func unescapeOrRaw(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// Deduplicate sets NormalizedURL on every item and merges items that share
// it, keeping first-seen order. A feed item replaces an earlier direct item
// for the same URL; a direct item never replaces a feed item.
func Deduplicate(items []models.FeedItem) []models.FeedItem {
	index := make(map[string]int, len(items))
	var out []models.FeedItem

	for _, item := range items {
		item.NormalizedURL = NormalizeURL(item.URL)

		i, ok := index[item.NormalizedURL]
		if !ok {
			index[item.NormalizedURL] = len(out)
			out = append(out, item)
			continue
		}
		if out[i].SourceType == models.SourceDirect && item.SourceType == models.SourceFeed {
			out[i] = item
		}
	}
	return out
}
