// Package browserproc implements Browser: the owner of one remote Chrome
// and its N tabs, aggregating tab-closed reasons into a single Exiting
// event, per spec §4.7.
package browserproc

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"

	"github.com/use-agent/autodriver/metrics"
	"github.com/use-agent/autodriver/models"
	"github.com/use-agent/autodriver/tab"
)

// ExitingListener is notified exactly once when a Browser finishes closing
// all its tabs.
type ExitingListener func(models.BrowserExitInfo)

// Browser owns a map tab_id -> Tab, a list of observed close reasons, and a
// running flag.
type Browser struct {
	rodBrowser *rod.Browser
	autoInfo   models.AutoInfo

	mu          sync.Mutex
	tabs        map[string]tab.Tab
	closeReasons []models.TabClosedInfo
	running     bool
	exitingOnce sync.Once
	listeners   []ExitingListener
}

// New constructs a Browser bound to an already-connected *rod.Browser.
func New(rodBrowser *rod.Browser, autoInfo models.AutoInfo) *Browser {
	return &Browser{rodBrowser: rodBrowser, autoInfo: autoInfo, tabs: map[string]tab.Tab{}}
}

// OnExiting registers a listener for the single Exiting event.
func (b *Browser) OnExiting(l ExitingListener) {
	b.mu.Lock()
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()
}

// Init replaces any prior tabs with tabs (already constructed and attached
// by the caller), registers a Closed listener per tab, calls each tab's
// Init, and yields one scheduler tick.
func (b *Browser) Init(ctx context.Context, tabs map[string]tab.Tab) error {
	b.mu.Lock()
	b.tabs = tabs
	b.closeReasons = nil
	b.running = true
	count := len(tabs)
	b.mu.Unlock()

	metrics.BrowsersActive.Inc()

	for id, t := range tabs {
		t.OnClosed(b.onTabClosed(id))
		if err := t.Init(ctx); err != nil {
			slog.Error("browser: tab init failed", "tab_id", id, "error", err)
		}
	}

	_ = count
	yieldTick()
	return nil
}

func (b *Browser) onTabClosed(tabID string) tab.ClosedListener {
	return func(info models.TabClosedInfo) {
		b.mu.Lock()
		b.closeReasons = append(b.closeReasons, info)
		delete(b.tabs, tabID)
		remaining := len(b.tabs)
		running := b.running
		b.mu.Unlock()

		if running && remaining == 0 {
			b.finish()
		}
	}
}

// Close shuts every tab down (gracefully or forcefully) and waits for the
// single Exiting event, which fires as soon as the last tab reports Closed.
func (b *Browser) Close(ctx context.Context, gracefully bool) {
	b.mu.Lock()
	tabs := make([]tab.Tab, 0, len(b.tabs))
	for _, t := range b.tabs {
		tabs = append(tabs, t)
	}
	b.mu.Unlock()

	if len(tabs) == 0 {
		b.finish()
		return
	}

	var wg sync.WaitGroup
	for _, t := range tabs {
		wg.Add(1)
		go func(t tab.Tab) {
			defer wg.Done()
			var err error
			if gracefully {
				err = t.ShutdownGracefully(ctx)
			} else {
				err = t.Close(ctx)
			}
			if err != nil {
				slog.Warn("browser: tab close failed", "tab_id", t.ID(), "error", err)
			}
		}(t)
	}
	wg.Wait()
}

// finish emits Exiting(BrowserExitInfo) exactly once.
func (b *Browser) finish() {
	b.exitingOnce.Do(func() {
		b.mu.Lock()
		b.running = false
		reasons := append([]models.TabClosedInfo(nil), b.closeReasons...)
		listeners := append([]ExitingListener(nil), b.listeners...)
		b.mu.Unlock()

		metrics.BrowsersActive.Dec()

		info := models.BrowserExitInfo{AutoInfo: b.autoInfo, TabClosedReasons: reasons}
		if b.rodBrowser != nil {
			_ = b.rodBrowser.Close()
		}
		for _, l := range listeners {
			l(info)
		}
	})
}

// TabCount returns the number of tabs this browser currently owns, used by
// the AdminServer's /stats endpoint.
func (b *Browser) TabCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tabs)
}

// Tabs returns a snapshot of the currently-owned tabs, keyed by tab id. Used
// by the driver's control-plane handlers to fan stop/start commands out to
// BehaviorTabs.
func (b *Browser) Tabs() map[string]tab.Tab {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]tab.Tab, len(b.tabs))
	for id, t := range b.tabs {
		out[id] = t
	}
	return out
}

func yieldTick() {
	// a deliberate scheduler yield, matching spec §5's one-tick-after-init rule.
	ch := make(chan struct{})
	go func() { close(ch) }()
	<-ch
}
