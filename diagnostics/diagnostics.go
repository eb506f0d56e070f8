// Package diagnostics captures an ephemeral, operator-log-only snapshot of
// a page on navigation failure or timeout: HTML -> readability -> markdown,
// truncated and attached to a slog record. It never persists to Redis or
// disk (SPEC_FULL §4.11).
package diagnostics

import (
	"log/slog"
	nurl "net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	readability "github.com/go-shiori/go-readability"

	"github.com/use-agent/autodriver/models"
)

const maxExcerptBytes = 2 * 1024

// mdConverter is goroutine-safe and reused across captures, the way the
// teacher's cleaner package builds one Converter per Cleaner.
var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

// Capture best-efforts a DiagnosticSnapshot from rawHTML. Any failure at the
// readability or markdown stage degrades gracefully: a nil snapshot is
// returned rather than propagating the error, so callers can log without a
// snapshot field instead of aborting (SPEC_FULL property 11).
func Capture(rawHTML, sourceURL string) *models.DiagnosticSnapshot {
	parsed, err := nurl.Parse(sourceURL)
	if err != nil {
		slog.Warn("diagnostics: invalid source url, skipping snapshot", "url", sourceURL, "error", err)
		return nil
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsed)
	if err != nil {
		slog.Warn("diagnostics: readability extraction failed, skipping snapshot", "url", sourceURL, "error", err)
		return nil
	}

	md, err := mdConverter.ConvertString(article.Content, converter.WithDomain(sourceURL))
	if err != nil {
		slog.Warn("diagnostics: markdown conversion failed, skipping snapshot", "url", sourceURL, "error", err)
		return nil
	}

	if len(md) > maxExcerptBytes {
		md = md[:maxExcerptBytes]
	}

	return &models.DiagnosticSnapshot{
		URL:             sourceURL,
		Title:           article.Title,
		MarkdownExcerpt: md,
		CapturedAt:      time.Now(),
	}
}
