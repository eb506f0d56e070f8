package behavior

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/use-agent/autodriver/metrics"
)

// Default in-page expressions. NewRunner always uses DefaultNextActionExpr
// and Init always uses DefaultPausedFlagSet; the package exposes no way to
// replace either.
const (
	DefaultNextActionExpr = "window.$WRIteratorHandler$()"
	DefaultPausedFlagSet  = "window.$WBBehaviorPaused = %v"
	networkIdleWaitCap    = 30 * time.Second
)

// Runner drives one behavior to completion inside a tab, per spec §4.4.
type Runner struct {
	tab      PageHost
	behavior *Behavior

	nextActionExpr  string
	collectOutlinks bool

	mu       sync.Mutex
	initDone bool
	finished bool
}

// NewRunner constructs a Runner bound to tab and behavior. collectOutlinks
// mirrors whether the behavior's config requests outlink harvesting after
// each non-terminal action.
func NewRunner(tab PageHost, behavior *Behavior, collectOutlinks bool) *Runner {
	return &Runner{
		tab:            tab,
		behavior:       behavior,
		nextActionExpr: DefaultNextActionExpr,
		collectOutlinks: collectOutlinks,
	}
}

// Init is idempotent: it evaluates the behavior JS and clears the pause
// flag exactly once, then yields a scheduler tick.
func (r *Runner) Init(ctx context.Context) error {
	r.mu.Lock()
	if r.initDone {
		r.mu.Unlock()
		return nil
	}
	r.initDone = true
	r.mu.Unlock()

	if err := r.tab.InjectScript(ctx, r.behavior.JS); err != nil {
		return fmt.Errorf("behavior: init eval failed: %w", err)
	}
	if err := r.tab.InjectScript(ctx, fmt.Sprintf(DefaultPausedFlagSet, false)); err != nil {
		return fmt.Errorf("behavior: clearing pause flag failed: %w", err)
	}
	yieldTick()
	return nil
}

// Run loops calling PerformAction until done, harvesting outlinks after
// each non-terminal action when configured, yielding a tick between
// iterations. The running-behavior reference is the caller's
// responsibility to set/clear (Tab owns that back-reference per spec §9);
// Run itself always returns, error or not.
func (r *Runner) Run(ctx context.Context) error {
	for {
		if r.isFinished() {
			return nil
		}
		done, err := r.PerformAction(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if r.collectOutlinks {
			if err := r.tab.CollectOutlinks(ctx); err != nil {
				slog.Warn("behavior: outlink collection failed mid-run", "error", err)
			}
		}
		yieldTick()
	}
}

// PerformAction evaluates the next-action expression. If the result
// requests a wait, it awaits the tab's network-idle signal (capped at
// 30s) before returning. If the result is done, Run's next check exits.
func (r *Runner) PerformAction(ctx context.Context) (done bool, err error) {
	raw, err := r.tab.EvalExpression(ctx, r.nextActionExpr)
	if err != nil {
		return false, fmt.Errorf("behavior: perform_action eval failed: %w", err)
	}

	var action struct {
		Done bool `json:"done"`
		Wait bool `json:"wait"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &action); err != nil {
			return false, fmt.Errorf("behavior: decoding action result: %w", err)
		}
	}

	if action.Wait {
		waitCtx, cancel := context.WithTimeout(ctx, networkIdleWaitCap)
		r.tab.WaitForNetIdle(waitCtx)
		cancel()
	}

	if action.Done {
		r.markFinished()
		return true, nil
	}
	return false, nil
}

// End unconditionally marks the behavior finished; Run exits at its next check.
func (r *Runner) End() {
	r.markFinished()
}

// TimedRun runs with a wall-clock budget. On budget expiry the running
// evaluation is cancelled and no error is reported to the caller.
func (r *Runner) TimedRun(ctx context.Context, maxBehaviorTime time.Duration) error {
	start := time.Now()
	defer func() { metrics.BehaviorDuration.Observe(time.Since(start).Seconds()) }()

	if maxBehaviorTime <= 0 {
		return r.Run(ctx)
	}
	runCtx, cancel := context.WithTimeout(ctx, maxBehaviorTime)
	defer cancel()

	err := r.Run(runCtx)
	if err != nil && runCtx.Err() != nil {
		// Budget expired (or parent ctx cancelled); swallow per spec §4.4/§7.
		return nil
	}
	return err
}

func (r *Runner) isFinished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

func (r *Runner) markFinished() {
	r.mu.Lock()
	r.finished = true
	r.mu.Unlock()
}

// yieldTick yields one scheduler tick between behavior iterations, the way
// spec §5 requires at cooperative suspension points.
func yieldTick() {
	runtime.Gosched()
}
