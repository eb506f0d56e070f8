package outlinks

import "testing"

func TestExtractResolvesAndDedupes(t *testing.T) {
	html := `
	<html><body>
		<a href="/a">A</a>
		<a href="/a">A again</a>
		<a href="https://other.example.com/b">B</a>
		<a href="javascript:void(0)">ignored</a>
		<a href="mailto:x@example.com">ignored</a>
		<a href="#frag">ignored</a>
	</body></html>`

	links := Extract(html, "https://example.com/page")

	want := map[string]bool{
		"https://example.com/a":         false,
		"https://other.example.com/b":   false,
	}
	if len(links) != len(want) {
		t.Fatalf("got %d links, want %d: %v", len(links), len(want), links)
	}
	for _, l := range links {
		if _, ok := want[l]; !ok {
			t.Errorf("unexpected link %q", l)
		}
		want[l] = true
	}
	for l, seen := range want {
		if !seen {
			t.Errorf("expected link %q not found", l)
		}
	}
}

func TestExtractInvalidBaseURL(t *testing.T) {
	if links := Extract("<a href='/a'>a</a>", "://not-a-url"); links != nil {
		t.Errorf("expected nil for unparsable base url, got %v", links)
	}
}

func TestFallbackInvocationsCounts(t *testing.T) {
	before := FallbackInvocations()
	Extract("<a href='/x'>x</a>", "https://example.com/")
	if got := FallbackInvocations(); got != before+1 {
		t.Errorf("FallbackInvocations() = %d, want %d", got, before+1)
	}
}
