// Package outlinks implements the third-tier outlink fallback extractor:
// a goquery scan of the page HTML, only invoked when both in-page outlink
// mechanisms have errored (spec SPEC_FULL §4.12).
package outlinks

import (
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/PuerkitoBio/goquery"
)

// fallbackInvocations counts how many times Extract actually ran, so tests
// can assert the fallback is only reached on double failure (SPEC_FULL
// property 10).
var fallbackInvocations atomic.Int64

// FallbackInvocations returns the number of times Extract has been called.
func FallbackInvocations() int64 { return fallbackInvocations.Load() }

// Extract scans rawHTML for a[href] nodes, resolving each against
// currentURL, and returns the deduplicated absolute http(s) links.
// Fragment-only hrefs ("#...") point back at the same page and are skipped.
func Extract(rawHTML, currentURL string) []string {
	fallbackInvocations.Add(1)

	base, err := url.Parse(currentURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		abs := resolved.String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links
}
