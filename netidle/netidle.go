// Package netidle watches CDP network events on a page and resolves once
// "network idle" is reached: at most NumInflight requests in flight for
// IdleTime, capped by a GlobalWait hard timeout and a short safety timer
// for pages that never generate any traffic at all.
package netidle

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Monitor holds the tunables for one WaitIdle call. Defaults match spec §4.5.
type Monitor struct {
	NumInflight int           // default 2
	IdleTime    time.Duration // default 2s
	GlobalWait  time.Duration // default 60s
}

// Default returns a Monitor with spec-default tunables.
func Default() Monitor {
	return Monitor{NumInflight: 2, IdleTime: 2 * time.Second, GlobalWait: 60 * time.Second}
}

// WaitIdle blocks until network idle is reached on page, or until ctx is
// cancelled. Exactly one idle condition is ever signaled; all event
// listeners and timers are released before this returns.
func (m Monitor) WaitIdle(ctx context.Context, page *rod.Page) {
	idleCtx, emit := context.WithCancel(ctx)
	defer emit()

	var mu sync.Mutex
	active := map[proto.NetworkRequestID]struct{}{}
	var idleTimer *time.Timer
	seenAnyTraffic := false

	stopIdleTimer := func() {
		if idleTimer != nil {
			idleTimer.Stop()
			idleTimer = nil
		}
	}
	maybeArmIdleTimer := func() {
		if len(active) <= m.NumInflight && idleTimer == nil {
			idleTimer = time.AfterFunc(m.IdleTime, emit)
		}
	}

	globalTimer := time.AfterFunc(m.GlobalWait, emit)
	defer globalTimer.Stop()

	safetyTimer := time.AfterFunc(5*time.Second, func() {
		mu.Lock()
		fired := seenAnyTraffic
		mu.Unlock()
		if !fired {
			emit()
		}
	})
	defer safetyTimer.Stop()

	p := page.Context(idleCtx)
	wait := p.EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			mu.Lock()
			defer mu.Unlock()
			seenAnyTraffic = true
			active[e.RequestID] = struct{}{}
			if len(active) > m.NumInflight {
				stopIdleTimer()
			}
		},
		func(e *proto.NetworkLoadingFinished) {
			mu.Lock()
			defer mu.Unlock()
			delete(active, e.RequestID)
			maybeArmIdleTimer()
		},
		func(e *proto.NetworkLoadingFailed) {
			mu.Lock()
			defer mu.Unlock()
			delete(active, e.RequestID)
			maybeArmIdleTimer()
		},
	)
	wait()

	mu.Lock()
	stopIdleTimer()
	mu.Unlock()
}
