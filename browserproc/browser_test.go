package browserproc

import (
	"context"
	"testing"
	"time"

	"github.com/use-agent/autodriver/models"
	"github.com/use-agent/autodriver/tab"
)

// fakeTab is a minimal tab.Tab double driven entirely by test code; it never
// touches a real CDP session.
type fakeTab struct {
	id        string
	state     tab.State
	listeners []tab.ClosedListener
	closeErr  error
}

func (f *fakeTab) ID() string                  { return f.id }
func (f *fakeTab) Init(ctx context.Context) error { return nil }
func (f *fakeTab) Close(ctx context.Context) error {
	f.emit(models.CloseClosed)
	return f.closeErr
}
func (f *fakeTab) ShutdownGracefully(ctx context.Context) error {
	f.emit(models.CloseClosed)
	return nil
}
func (f *fakeTab) Goto(ctx context.Context, url string) bool             { return false }
func (f *fakeTab) InjectScript(ctx context.Context, js string) error     { return nil }
func (f *fakeTab) EvalExpression(ctx context.Context, js string) ([]byte, error) {
	return nil, nil
}
func (f *fakeTab) WaitForNetIdle(ctx context.Context)            {}
func (f *fakeTab) CaptureScreenshot(ctx context.Context) ([]byte, error) { return nil, nil }
func (f *fakeTab) CollectOutlinks(ctx context.Context) error     { return nil }
func (f *fakeTab) OnClosed(l tab.ClosedListener)                 { f.listeners = append(f.listeners, l) }
func (f *fakeTab) State() tab.State                              { return f.state }

func (f *fakeTab) emit(reason models.CloseReason) {
	for _, l := range f.listeners {
		l(models.TabClosedInfo{TabID: f.id, Reason: reason})
	}
}

func TestBrowserFinishFiresExactlyOnceAfterAllTabsClose(t *testing.T) {
	b := New(nil, models.AutoInfo{AutoID: "a1", ReqID: "r1"})
	t1 := &fakeTab{id: "t1"}
	t2 := &fakeTab{id: "t2"}

	if err := b.Init(context.Background(), map[string]tab.Tab{"t1": t1, "t2": t2}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var exits []models.BrowserExitInfo
	b.OnExiting(func(info models.BrowserExitInfo) { exits = append(exits, info) })

	t1.emit(models.CloseClosed)
	if len(exits) != 0 {
		t.Fatalf("Exiting should not fire until all tabs close, got %d", len(exits))
	}
	t2.emit(models.CloseTargetCrashed)

	if len(exits) != 1 {
		t.Fatalf("expected exactly 1 Exiting event, got %d", len(exits))
	}
	if len(exits[0].TabClosedReasons) != 2 {
		t.Errorf("expected 2 aggregated close reasons, got %d", len(exits[0].TabClosedReasons))
	}
	if exits[0].AutoInfo.AutoID != "a1" {
		t.Errorf("AutoInfo not carried through, got %+v", exits[0].AutoInfo)
	}
}

func TestBrowserCloseWithNoTabsFinishesImmediately(t *testing.T) {
	b := New(nil, models.AutoInfo{})
	if err := b.Init(context.Background(), map[string]tab.Tab{}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	done := make(chan struct{})
	b.OnExiting(func(models.BrowserExitInfo) { close(done) })
	b.Close(context.Background(), true)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Exiting to fire immediately for a tab-less browser")
	}
}

func TestBrowserTabCountAndTabsSnapshot(t *testing.T) {
	b := New(nil, models.AutoInfo{})
	t1 := &fakeTab{id: "t1"}
	t2 := &fakeTab{id: "t2"}
	_ = b.Init(context.Background(), map[string]tab.Tab{"t1": t1, "t2": t2})

	if got := b.TabCount(); got != 2 {
		t.Errorf("TabCount() = %d, want 2", got)
	}
	snapshot := b.Tabs()
	if len(snapshot) != 2 {
		t.Fatalf("Tabs() len = %d, want 2", len(snapshot))
	}
	if _, ok := snapshot["t1"]; !ok {
		t.Error("expected t1 in snapshot")
	}

	t1.emit(models.CloseClosed)
	if got := b.TabCount(); got != 1 {
		t.Errorf("TabCount() after one close = %d, want 1", got)
	}
}
