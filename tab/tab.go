package tab

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/use-agent/autodriver/diagnostics"
	"github.com/use-agent/autodriver/metrics"
	"github.com/use-agent/autodriver/models"
	"github.com/use-agent/autodriver/netidle"
)

// Data identifies one CDP target discovered via shepherd's /json or
// /json/new, per spec §4.8.
type Data struct {
	TargetID            proto.TargetID
	WebSocketDebuggerURL string
	Type                string
}

// Tab is the capability set shared by all three variants, per spec §9:
// {init, close, shutdown_gracefully, evaluate_in_page, goto,
// wait_for_net_idle, capture_screenshot, collect_outlinks}.
type Tab interface {
	ID() string
	Init(ctx context.Context) error
	Close(ctx context.Context) error
	ShutdownGracefully(ctx context.Context) error
	Goto(ctx context.Context, url string) (errorOccurred bool)
	InjectScript(ctx context.Context, js string) error
	EvalExpression(ctx context.Context, js string) ([]byte, error)
	WaitForNetIdle(ctx context.Context)
	CaptureScreenshot(ctx context.Context) ([]byte, error)
	CollectOutlinks(ctx context.Context) error
	OnClosed(ClosedListener)
	State() State
}

// Base owns one CDP session (one *rod.Page) and implements the shared
// capability set directly usable by BehaviorTab and CrawlerTab via
// embedding. It has no behavior/crawl-loop responsibilities of its own.
type Base struct {
	id               string
	page             *rod.Page
	data             Data
	stealthEnabled   bool
	netCacheDisabled bool
	navigationTimeout time.Duration
	netIdle          netidle.Monitor
	tabType          string

	mu        sync.Mutex
	state     State
	listeners []ClosedListener
	closeOnce sync.Once

	reconnectCancel context.CancelFunc
}

// NewBase constructs a Base bound to an already-discovered CDP target. The
// actual *rod.Page session is bound later by AttachPage, which the driver's
// buildBrowser calls after obtaining the page via PageFromTarget.
func NewBase(id string, data Data, stealthEnabled, netCacheDisabled bool, navigationTimeout time.Duration, tabType string) *Base {
	return &Base{
		id:                id,
		data:              data,
		stealthEnabled:    stealthEnabled,
		netCacheDisabled:  netCacheDisabled,
		navigationTimeout: navigationTimeout,
		netIdle:           netidle.Default(),
		tabType:           tabType,
		state:             StateNew,
	}
}

func (b *Base) ID() string  { return b.id }
func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Base) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

func (b *Base) OnClosed(l ClosedListener) {
	b.mu.Lock()
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()
}

// AttachPage binds the *rod.Page session obtained by the owning Browser and
// runs the Running-entry init sequence from spec §4.6: subscribe to
// Inspector events, enable Page/Network/Runtime, neutralize
// beforeunload/unload, optionally disable the network cache and inject
// stealth evasions.
func (b *Base) AttachPage(ctx context.Context, page *rod.Page) error {
	b.setState(StateConnecting)
	b.page = page

	if b.stealthEnabled {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("tab: stealth injection failed, continuing without it", "tab_id", b.id, "error", err)
		}
	}

	if err := (proto.PageEnable{}).Call(page); err != nil {
		b.setState(StateClosed)
		return fmt.Errorf("tab: Page.enable failed: %w", err)
	}
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		b.setState(StateClosed)
		return fmt.Errorf("tab: Network.enable failed: %w", err)
	}
	if err := (proto.RuntimeEnable{}).Call(page); err != nil {
		b.setState(StateClosed)
		return fmt.Errorf("tab: Runtime.enable failed: %w", err)
	}

	if b.netCacheDisabled {
		if err := (proto.NetworkSetCacheDisabled{CacheDisabled: true}).Call(page); err != nil {
			slog.Warn("tab: failed to disable network cache", "tab_id", b.id, "error", err)
		}
	}

	if _, err := page.EvalOnNewDocument(neutralizeUnloadJS); err != nil {
		slog.Warn("tab: failed to install unload-neutralizing script", "tab_id", b.id, "error", err)
	}

	b.watchInspectorEvents(ctx)
	go b.watchConnectionClosed(page)

	b.setState(StateRunning)
	metrics.TabsActive.WithLabelValues(b.tabType).Inc()
	return nil
}

// watchConnectionClosed blocks until the CDP session behind page goes away
// (websocket drop, browser crash, or our own Close/ShutdownGracefully) and
// reports it as CONNECTION_CLOSED. emitClosed is once-guarded, so this is a
// no-op when the tab already closed through another path, and harmless when
// a reconnect later re-attaches a new page from its own watcher, per spec
// §4.6's Running-entry "install close-callback that emits connection-closed".
func (b *Base) watchConnectionClosed(page *rod.Page) {
	if err := page.WaitClose()(); err != nil {
		slog.Warn("tab: connection closed with error", "tab_id", b.id, "error", err)
	}
	b.ConnectionClosed()
}

const neutralizeUnloadJS = `(() => {
	window.addEventListener('beforeunload', (e) => { e.stopImmediatePropagation(); }, true);
	window.addEventListener('unload', (e) => { e.stopImmediatePropagation(); }, true);
})();`

// watchInspectorEvents subscribes to Inspector.detached/targetCrashed and
// drives the Reconnecting/Crashed transitions, per spec §4.6's state table.
func (b *Base) watchInspectorEvents(ctx context.Context) {
	watchCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.reconnectCancel = cancel
	b.mu.Unlock()

	p := b.page.Context(watchCtx)
	go p.EachEvent(
		func(e *proto.InspectorDetached) {
			if e.Reason == proto.InspectorDetachedReasonReplacedWithDevtools {
				b.enterReconnecting(watchCtx)
			}
		},
		func(e *proto.InspectorTargetCrashed) {
			b.setState(StateCrashed)
			b.emitClosed(models.CloseTargetCrashed)
		},
	)()
}

func (b *Base) enterReconnecting(ctx context.Context) {
	b.setState(StateReconnecting)
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if b.State() != StateReconnecting {
				return
			}
			if err := b.AttachPage(ctx, b.page); err == nil {
				return
			}
		}
	}
}

// Goto navigates to url and waits for network idle through the tab's
// netidle.Monitor (netidle.Default: idle once at most 2 requests have been
// in flight for 2s), converting timeouts/failures into errorOccurred rather
// than propagating past the crawl loop. It does not wait for zero requests
// in flight.
func (b *Base) Goto(ctx context.Context, url string) bool {
	navCtx, cancel := context.WithTimeout(ctx, b.navigationTimeout)
	defer cancel()

	p := b.page.Context(navCtx)
	if err := p.Navigate(url); err != nil {
		slog.Warn("tab: navigation failed", "tab_id", b.id, "url", url, "error", err)
		b.captureNavigationDiagnostics(url)
		return true
	}

	b.netIdle.WaitIdle(navCtx, b.page)
	if navCtx.Err() != nil {
		slog.Warn("tab: navigation timed out waiting for net idle", "tab_id", b.id, "url", url, "error", navCtx.Err())
		b.captureNavigationDiagnostics(url)
		return true
	}
	return false
}

func (b *Base) captureNavigationDiagnostics(url string) {
	html, err := b.page.HTML()
	if err != nil {
		return
	}
	if snap := diagnostics.Capture(html, url); snap != nil {
		slog.Warn("tab: navigation error snapshot", "tab_id", b.id, "url", url, "snapshot", snap.MarkdownExcerpt)
	}
}

// InjectScript evaluates js for side effect only.
func (b *Base) InjectScript(ctx context.Context, js string) error {
	p := b.page.Context(ctx)
	_, err := p.Eval(fmt.Sprintf("() => { %s }", js))
	if err != nil {
		return fmt.Errorf("tab: inject script failed: %w", err)
	}
	return nil
}

// EvalExpression evaluates js as an expression and returns its JSON-encoded
// result value. It goes through rod's Page.Eval, which issues
// Runtime.callFunctionOn rather than Runtime.evaluate.
func (b *Base) EvalExpression(ctx context.Context, js string) ([]byte, error) {
	p := b.page.Context(ctx)
	res, err := p.Eval(fmt.Sprintf("() => { return (%s); }", js))
	if err != nil {
		return nil, fmt.Errorf("tab: eval expression failed: %w", err)
	}
	raw, err := json.Marshal(res.Value)
	if err != nil {
		return nil, fmt.Errorf("tab: encoding eval result: %w", err)
	}
	return raw, nil
}

// WaitForNetIdle blocks until network idle or ctx expiry.
func (b *Base) WaitForNetIdle(ctx context.Context) {
	b.netIdle.WaitIdle(ctx, b.page)
}

// CaptureScreenshot returns a PNG screenshot of the current page.
func (b *Base) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	p := b.page.Context(ctx)
	return p.Screenshot(false, nil)
}

// CollectOutlinks is a no-op on Base; only CrawlerTab meaningfully harvests
// outlinks back into a frontier, but the capability is part of the shared
// interface per spec §9.
func (b *Base) CollectOutlinks(ctx context.Context) error {
	return nil
}

// Close cancels any reconnect loop, disposes the CDP session and emits
// Closed(CLOSED) exactly once.
func (b *Base) Close(ctx context.Context) error {
	b.setState(StateClosing)
	b.mu.Lock()
	if b.reconnectCancel != nil {
		b.reconnectCancel()
	}
	b.mu.Unlock()

	if b.page != nil {
		_ = proto.PageClose{}.Call(b.page)
	}
	b.setState(StateClosed)
	b.emitClosed(models.CloseClosed)
	return nil
}

// ShutdownGracefully is the base-level no-op: there is no crawl loop or
// behavior to drain, so it degrades to Close.
func (b *Base) ShutdownGracefully(ctx context.Context) error {
	return b.Close(ctx)
}

// emitClosed delivers TabClosedInfo to every registered listener exactly
// once, the way spec §9 requires Closed to fire exactly once per tab.
func (b *Base) emitClosed(reason models.CloseReason) {
	b.closeOnce.Do(func() {
		metrics.TabsActive.WithLabelValues(b.tabType).Dec()
		metrics.TabClosedTotal.WithLabelValues(string(reason)).Inc()
		b.mu.Lock()
		listeners := append([]ClosedListener(nil), b.listeners...)
		b.mu.Unlock()
		info := models.TabClosedInfo{TabID: b.id, Reason: reason}
		for _, l := range listeners {
			l(info)
		}
	})
}

// EmitClosed is exported so BehaviorTab/CrawlerTab (which wrap Base and may
// reach a terminal state through their own paths, e.g. CRAWL_END) can
// deliver the Closed event through the same once-guarded path.
func (b *Base) EmitClosed(reason models.CloseReason) {
	b.emitClosed(reason)
}

// ConnectionClosed marks the tab Closed with CONNECTION_CLOSED. It is called
// by watchConnectionClosed once the page's CDP session goes away.
func (b *Base) ConnectionClosed() {
	b.setState(StateClosed)
	b.emitClosed(models.CloseConnectionClosed)
}

// Page exposes the underlying *rod.Page for variants that need lower-level
// access (e.g. CrawlerTab's frame-tree refresh and page.HTML() read).
func (b *Base) Page() *rod.Page { return b.page }
