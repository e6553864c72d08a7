// Package cache stores fetched HTML, extracted text, and summaries on disk
// so repeated runs over the same articles avoid network and model calls.
//
// The cache is best-effort: every I/O failure is logged at debug level and
// reported to callers as a miss or a no-op.
package cache

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Namespace separates cached content by kind.
type Namespace string

const (
	NamespaceHTML    Namespace = "html"
	NamespaceText    Namespace = "text"
	NamespaceSummary Namespace = "summary"
	NamespaceMeta    Namespace = "meta"
)

// DefaultMaxHTMLBytes is the largest HTML payload stored when no ceiling is
// configured.
const DefaultMaxHTMLBytes = 5 * 1024 * 1024

var extensions = map[Namespace]string{
	NamespaceHTML:    ".html",
	NamespaceText:    ".txt",
	NamespaceSummary: ".json",
	NamespaceMeta:    ".json",
}

// FileCache is a content-addressed file cache. Entries live at
// <dir>/<namespace>/<sha256(url+discriminator)><ext>. It is safe for
// concurrent use: writes go through a temp file and an atomic rename, and a
// key always maps to the same logical content.
type FileCache struct {
	dir          string
	maxHTMLBytes int
}

// New creates a FileCache rooted at dir and creates every namespace
// directory. A maxHTMLBytes of zero or less selects DefaultMaxHTMLBytes.
func New(dir string, maxHTMLBytes int) (*FileCache, error) {
	if maxHTMLBytes <= 0 {
		maxHTMLBytes = DefaultMaxHTMLBytes
	}
	for ns := range extensions {
		if err := os.MkdirAll(filepath.Join(dir, string(ns)), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}
	return &FileCache{dir: dir, maxHTMLBytes: maxHTMLBytes}, nil
}

// Key returns the SHA-256 hex digest of url followed by discriminator.
func Key(url, discriminator string) string {
	h := sha256.Sum256([]byte(url + discriminator))
	return fmt.Sprintf("%x", h)
}

func (c *FileCache) path(ns Namespace, url, discriminator string) string {
	ext, ok := extensions[ns]
	if !ok {
		ext = ".txt"
	}
	return filepath.Join(c.dir, string(ns), Key(url, discriminator)+ext)
}

// Get returns the cached content for url in ns. The boolean is false when
// the entry is missing or unreadable.
func (c *FileCache) Get(ns Namespace, url, discriminator string) (string, bool) {
	data, err := os.ReadFile(c.path(ns, url, discriminator))
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("cache read failed", "namespace", ns, "url", url, "error", err)
		}
		return "", false
	}
	return string(data), true
}

// Put stores data for url in ns. HTML payloads larger than the configured
// ceiling are dropped silently.
func (c *FileCache) Put(ns Namespace, url, data, discriminator string) {
	if ns == NamespaceHTML && len(data) > c.maxHTMLBytes {
		slog.Debug("html too large to cache", "url", url, "bytes", len(data))
		return
	}

	path := c.path(ns, url, discriminator)
	if err := writeFileAtomic(path, []byte(data)); err != nil {
		slog.Debug("cache write failed", "namespace", ns, "url", url, "error", err)
	}
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
