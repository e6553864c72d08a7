package feeds

import (
	"strings"
	"testing"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head><title>Understanding Go Schedulers</title></head>
<body>
  <nav>Home | About</nav>
  <article>
    <h1>Understanding Go Schedulers</h1>
    <p>The Go runtime multiplexes goroutines onto operating system threads using an M:N scheduler.
    Each logical processor keeps a local run queue, and idle processors steal work from busy ones.</p>
    <p>This design keeps context switches cheap and lets programs run hundreds of thousands of
    goroutines without exhausting memory. Blocking system calls hand their processor off so other
    goroutines keep running while the call completes.</p>
    <p>Understanding these mechanics helps explain latency spikes under heavy load and guides how
    to size worker pools for network services that fan out many concurrent requests.</p>
  </article>
  <script>console.log("tracking")</script>
</body>
</html>`

func TestExtract(t *testing.T) {
	res := Extract("https://example.com/go", articleHTML, "Feed Title")

	if res.Error != "" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
	if !strings.Contains(res.Content, "M:N scheduler") {
		t.Errorf("Content missing article text: %q", res.Content)
	}
	if strings.Contains(res.Content, "tracking") {
		t.Error("Content contains script text")
	}
	if res.Title == "" {
		t.Error("Title is empty")
	}
	if res.ContentLength == 0 || res.QualityScore <= 0 || res.QualityScore > 1 {
		t.Errorf("ContentLength = %d, QualityScore = %v", res.ContentLength, res.QualityScore)
	}
}

func TestExtract_Empty(t *testing.T) {
	res := Extract("https://example.com/empty", "<html><head></head><body></body></html>", "Fallback")

	if res.Error != "empty_extraction" {
		t.Errorf("Error = %q, want empty_extraction", res.Error)
	}
	if res.Title != "Fallback" {
		t.Errorf("Title = %q, want fallback title", res.Title)
	}
	if res.Content != "" {
		t.Errorf("Content = %q, want empty", res.Content)
	}
}

func TestFallbackExtract(t *testing.T) {
	html := `<html><head><title> Short </title><style>p{}</style></head>
<body><p>one   two</p><script>var x</script><p>three</p></body></html>`

	text, title, err := fallbackExtract(html)
	if err != nil {
		t.Fatalf("fallbackExtract error: %v", err)
	}
	if text != "one two three" {
		t.Errorf("text = %q, want %q", text, "one two three")
	}
	if title != "Short" {
		t.Errorf("title = %q, want %q", title, "Short")
	}
}
