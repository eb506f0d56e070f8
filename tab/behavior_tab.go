package tab

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/autodriver/behavior"
)

// Behavior hosts one behavior run at a time, replaced on URL change or
// resume (spec §5's "one behavior run task per BehaviorTab").
type Behavior struct {
	*Base

	manager         behavior.Manager
	maxBehaviorTime time.Duration

	mu          sync.Mutex
	runningURL  string
	runner      *behavior.Runner // non-owning: Tab holds a reference, never owns the lifecycle
	runCancel   context.CancelFunc
	pausedFlag  bool
}

// NewBehaviorTab constructs a BehaviorTab.
func NewBehaviorTab(base *Base, manager behavior.Manager, maxBehaviorTime time.Duration) *Behavior {
	return &Behavior{Base: base, manager: manager, maxBehaviorTime: maxBehaviorTime}
}

// Init performs the shared Running-entry sequence; AttachPage is called by
// the driver when it builds the browser, so Behavior.Init here is a thin
// pass-through kept for
// interface symmetry with Crawler, which does additional frame-tree setup.
func (t *Behavior) Init(ctx context.Context) error {
	return nil
}

// pageHostAdapter satisfies behavior.PageHost for a *Behavior/*Crawler tab.
type pageHostAdapter struct {
	*Base
	collect func(ctx context.Context) error
}

func (a pageHostAdapter) CollectOutlinks(ctx context.Context) error {
	if a.collect == nil {
		return nil
	}
	return a.collect(ctx)
}

// StartBehaviorFor launches a fresh behavior run for url, cancelling any
// prior run in flight. It runs in its own goroutine and is the tab's "one
// behavior run task", replaced wholesale rather than multiplexed.
func (t *Behavior) StartBehaviorFor(ctx context.Context, url string) {
	t.mu.Lock()
	if t.runCancel != nil {
		t.runCancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.runningURL = url
	t.runCancel = cancel
	t.mu.Unlock()

	go t.runBehavior(runCtx, url)
}

func (t *Behavior) runBehavior(ctx context.Context, url string) {
	host := pageHostAdapter{Base: t.Base}
	b, err := t.manager.BehaviorForURL(ctx, url, host)
	if err != nil {
		slog.Error("behavior_tab: fetching behavior failed", "tab_id", t.ID(), "url", url, "error", err)
		return
	}

	runner := behavior.NewRunner(host, b, false)
	t.mu.Lock()
	t.runner = runner
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.runner = nil
		t.mu.Unlock()
	}()

	if err := runner.Init(ctx); err != nil {
		slog.Error("behavior_tab: init failed", "tab_id", t.ID(), "url", url, "error", err)
		return
	}
	if err := runner.TimedRun(ctx, t.maxBehaviorTime); err != nil {
		slog.Error("behavior_tab: run failed", "tab_id", t.ID(), "url", url, "error", err)
	}
}

// PauseBehaviors sets window.$WBBehaviorPaused in-page and the host-side flag.
func (t *Behavior) PauseBehaviors(ctx context.Context) {
	t.mu.Lock()
	t.pausedFlag = true
	t.mu.Unlock()
	if err := t.InjectScript(ctx, "window.$WBBehaviorPaused = true"); err != nil {
		slog.Warn("behavior_tab: failed to set pause flag", "tab_id", t.ID(), "error", err)
	}
}

// ResumeBehaviors clears the pause flag and, if the page URL changed, no
// behavior is currently running, or the paused-flag global does not exist
// in-page (meaning init/injection never ran for the current document),
// starts a fresh behavior for the new URL.
func (t *Behavior) ResumeBehaviors(ctx context.Context) {
	flagMissing, err := t.pausedFlagAbsent(ctx)
	if err != nil {
		slog.Warn("behavior_tab: failed to check pause flag presence", "tab_id", t.ID(), "error", err)
	}

	t.mu.Lock()
	t.pausedFlag = false
	t.mu.Unlock()
	if err := t.InjectScript(ctx, "window.$WBBehaviorPaused = false"); err != nil {
		slog.Warn("behavior_tab: failed to clear pause flag", "tab_id", t.ID(), "error", err)
	}

	currentURL, err := t.currentPageURL(ctx)
	if err != nil {
		slog.Warn("behavior_tab: failed to read page url on resume", "tab_id", t.ID(), "error", err)
		return
	}

	t.mu.Lock()
	needsRestart := currentURL != t.runningURL || t.runner == nil || flagMissing
	t.mu.Unlock()

	if needsRestart {
		t.StartBehaviorFor(ctx, currentURL)
	}
}

// pausedFlagAbsent reports whether window.$WBBehaviorPaused does not exist
// in the current document, checked before ResumeBehaviors clears it.
func (t *Behavior) pausedFlagAbsent(ctx context.Context) (bool, error) {
	raw, err := t.EvalExpression(ctx, "typeof window.$WBBehaviorPaused === 'undefined'")
	if err != nil {
		return false, err
	}
	var missing bool
	if err := json.Unmarshal(raw, &missing); err != nil {
		return false, err
	}
	return missing, nil
}

func (t *Behavior) currentPageURL(ctx context.Context) (string, error) {
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

// ShutdownGracefully cancels the running behavior's context and closes. It
// does not wait for the behavior goroutine to return, and puts no time
// bound on that cancellation.
func (t *Behavior) ShutdownGracefully(ctx context.Context) error {
	t.mu.Lock()
	if t.runCancel != nil {
		t.runCancel()
	}
	t.mu.Unlock()
	return t.Close(ctx)
}
