package tab

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/autodriver/behavior"
	"github.com/use-agent/autodriver/frontier"
	"github.com/use-agent/autodriver/metrics"
	"github.com/use-agent/autodriver/models"
	"github.com/use-agent/autodriver/outlinks"
)

const (
	outlinksReadExpr  = "window.$wbOutlinks$"
	outlinksClearExpr = "window.$wbOutlinkSet$.clear()"
)

// Crawler hosts the crawl loop: dequeue -> navigate -> run behavior ->
// harvest outlinks, per spec §4.6.
type Crawler struct {
	*Base

	frontier        *frontier.Frontier
	manager         behavior.Manager
	waitForQ        bool
	maxBehaviorTime time.Duration
	frames          *frameManager

	shuttingDown atomic.Bool
	loopDone     chan struct{}

	mu sync.Mutex
}

// NewCrawlerTab constructs a CrawlerTab.
func NewCrawlerTab(base *Base, fr *frontier.Frontier, manager behavior.Manager, waitForQ bool, maxBehaviorTime time.Duration) *Crawler {
	return &Crawler{
		Base:            base,
		frontier:        fr,
		manager:         manager,
		waitForQ:        waitForQ,
		maxBehaviorTime: maxBehaviorTime,
		frames:          newFrameManager(),
		loopDone:        make(chan struct{}),
	}
}

// Init performs the crawler-specific Running-entry steps spec §4.6 adds on
// top of Base.AttachPage's generic sequence (lifecycle events, frame tree),
// initializes the frontier, and starts the crawl loop goroutine.
func (t *Crawler) Init(ctx context.Context) error {
	if err := t.frames.refresh(t.Page()); err != nil {
		slog.Warn("crawler_tab: frame manager init failed, outlink fallback tier will be unavailable", "tab_id", t.ID(), "error", err)
	}
	if err := t.frontier.Init(ctx); err != nil {
		return err
	}
	go t.crawlLoop(ctx)
	return nil
}

func (t *Crawler) crawlLoop(ctx context.Context) {
	defer close(t.loopDone)

	if t.waitForQ {
		if err := t.frontier.WaitForPopulatedQ(ctx, 2*time.Second); err != nil {
			return
		}
	}

	for {
		if t.shuttingDown.Load() {
			return
		}
		exhausted, err := t.frontier.Exhausted(ctx)
		if err != nil {
			slog.Error("crawler_tab: checking exhausted failed", "tab_id", t.ID(), "error", err)
			return
		}
		if exhausted {
			break
		}

		url, err := t.frontier.NextURL(ctx)
		if err != nil {
			slog.Error("crawler_tab: next_url failed", "tab_id", t.ID(), "error", err)
			return
		}
		if url == "" {
			continue
		}

		metrics.FrontierQueueLength.WithLabelValues(t.frontierLabel()).Set(float64(t.qLenOrZero(ctx)))

		// Proceed even on navigation error; it's recorded but never aborts
		// the crawl loop, per spec §4.6/§7.
		t.Goto(ctx, url)
		if err := t.frames.refresh(t.Page()); err != nil {
			slog.Warn("crawler_tab: refreshing frame tree failed", "tab_id", t.ID(), "url", url, "error", err)
		}

		mainFrameURL, err := t.currentPageURL(ctx)
		if err != nil || mainFrameURL == "" {
			mainFrameURL = url
		}

		host := pageHostAdapter{Base: t.Base, collect: t.collectOutlinksForFrontier(ctx)}
		b, err := t.manager.BehaviorForURL(ctx, mainFrameURL, host)
		if err != nil {
			slog.Error("crawler_tab: fetching behavior failed", "tab_id", t.ID(), "url", mainFrameURL, "error", err)
		} else {
			runner := behavior.NewRunner(host, b, true)
			if err := runner.Init(ctx); err != nil {
				slog.Error("crawler_tab: behavior init failed", "tab_id", t.ID(), "url", mainFrameURL, "error", err)
			} else if err := runner.TimedRun(ctx, t.maxBehaviorTime); err != nil {
				slog.Error("crawler_tab: behavior run failed", "tab_id", t.ID(), "url", mainFrameURL, "error", err)
			}
		}

		if err := t.CollectOutlinks(ctx); err != nil {
			slog.Warn("crawler_tab: outlink collection failed", "tab_id", t.ID(), "url", mainFrameURL, "error", err)
		}
	}

	if !t.shuttingDown.Load() {
		t.EmitClosed(models.CloseCrawlEnd)
	}
}

func (t *Crawler) frontierLabel() string {
	return t.ID()
}

func (t *Crawler) qLenOrZero(ctx context.Context) int64 {
	n, err := t.frontier.QLen(ctx)
	if err != nil {
		return 0
	}
	return n
}

func (t *Crawler) currentPageURL(ctx context.Context) (string, error) {
	raw, err := t.EvalExpression(ctx, "window.location.href")
	if err != nil {
		return "", err
	}
	var url string
	if err := json.Unmarshal(raw, &url); err != nil {
		return "", err
	}
	return url, nil
}

// collectOutlinksForFrontier returns a closure bound to ctx, usable as the
// behavior.PageHost CollectOutlinks implementation so a behavior's
// "collect_outlinks after each non-terminal action" requirement reuses the
// exact same tiered harvest as the end-of-URL collection.
func (t *Crawler) collectOutlinksForFrontier(ctx context.Context) func(context.Context) error {
	return func(_ context.Context) error {
		return t.CollectOutlinks(ctx)
	}
}

// CollectOutlinks tries, in order: (a) window.$wbOutlinks$ through
// Base.EvalExpression, (b) the same expression through the frame manager's
// Runtime.evaluate path, and (c) — only if both error — a goquery-based
// scan of page.HTML(), per spec §4.6
// and SPEC_FULL §4.12. Results are added to the frontier at the next depth.
func (t *Crawler) CollectOutlinks(ctx context.Context) error {
	links, err := t.readOutlinksPrimary(ctx)
	if err != nil {
		slog.Warn("crawler_tab: primary outlink read failed, falling back", "tab_id", t.ID(), "error", err)
		links, err = t.readOutlinksSecondary(ctx)
	}
	if err != nil {
		slog.Warn("crawler_tab: secondary outlink read failed, using goquery fallback", "tab_id", t.ID(), "error", err)
		links = t.readOutlinksFallback(ctx)
	}

	if err := t.InjectScript(ctx, outlinksClearExpr); err != nil {
		slog.Warn("crawler_tab: clearing outlink set failed", "tab_id", t.ID(), "error", err)
	}

	if len(links) == 0 {
		return nil
	}
	err = t.frontier.AddAll(ctx, links)
	metrics.FrontierQueueLength.WithLabelValues(t.frontierLabel()).Set(float64(t.qLenOrZero(ctx)))
	return err
}

func (t *Crawler) readOutlinksPrimary(ctx context.Context) ([]string, error) {
	raw, err := t.EvalExpression(ctx, outlinksReadExpr)
	if err != nil {
		return nil, err
	}
	return decodeLinkSlice(raw)
}

// readOutlinksSecondary is the spec'd "fall back to evaluate_in_page" path:
// the same expression re-evaluated through the frame manager's
// Runtime.evaluate primitive (command-line API enabled), which is a
// genuinely distinct evaluation path from the primary tier's
// Base.EvalExpression (callFunctionOn-based).
func (t *Crawler) readOutlinksSecondary(ctx context.Context) ([]string, error) {
	raw, err := t.frames.evalInPage(ctx, outlinksReadExpr)
	if err != nil {
		return nil, err
	}
	return decodeLinkSlice(raw)
}

func (t *Crawler) readOutlinksFallback(ctx context.Context) []string {
	html, err := t.Page().HTML()
	if err != nil {
		return nil
	}
	currentURL, err := t.currentPageURL(ctx)
	if err != nil {
		return nil
	}
	return outlinks.Extract(html, currentURL)
}

func decodeLinkSlice(raw []byte) ([]string, error) {
	var links []string
	if err := json.Unmarshal(raw, &links); err != nil {
		return nil, err
	}
	return links, nil
}

// ShutdownGracefully sets the cooperative flag, awaits the crawl loop to
// end, then closes.
func (t *Crawler) ShutdownGracefully(ctx context.Context) error {
	t.shuttingDown.Store(true)
	select {
	case <-t.loopDone:
	case <-ctx.Done():
	}
	return t.Close(ctx)
}
