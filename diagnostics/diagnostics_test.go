package diagnostics

import (
	"strings"
	"testing"
)

func TestCaptureInvalidURLReturnsNil(t *testing.T) {
	if snap := Capture("<html><body>hi</body></html>", "://not-a-url"); snap != nil {
		t.Errorf("expected nil snapshot for invalid url, got %+v", snap)
	}
}

func TestCaptureProducesMarkdownExcerpt(t *testing.T) {
	html := `<html><head><title>Example</title></head><body>
		<article>
			<h1>Hello world</h1>
			<p>This is enough body text for readability to treat the page as an article rather than discarding it as boilerplate.</p>
		</article>
	</body></html>`

	snap := Capture(html, "https://example.com/article")
	if snap == nil {
		t.Fatal("expected a snapshot, got nil")
	}
	if snap.URL != "https://example.com/article" {
		t.Errorf("URL = %q", snap.URL)
	}
	if snap.CapturedAt.IsZero() {
		t.Error("CapturedAt should be set")
	}
	if len(snap.MarkdownExcerpt) == 0 {
		t.Error("expected non-empty markdown excerpt")
	}
}

func TestCaptureTruncatesExcerpt(t *testing.T) {
	var body strings.Builder
	body.WriteString("<html><body><article><h1>Title</h1>")
	for i := 0; i < 2000; i++ {
		body.WriteString("<p>Repeated paragraph content to exceed the excerpt cap many times over.</p>")
	}
	body.WriteString("</article></body></html>")

	snap := Capture(body.String(), "https://example.com/long")
	if snap == nil {
		t.Fatal("expected a snapshot for long article")
	}
	if len(snap.MarkdownExcerpt) > maxExcerptBytes {
		t.Errorf("MarkdownExcerpt length %d exceeds cap %d", len(snap.MarkdownExcerpt), maxExcerptBytes)
	}
}
