package behavior

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// fakeHost is an in-memory PageHost for exercising Runner without a real
// browser: EvalExpression replays a scripted sequence of action results.
type fakeHost struct {
	actions         []string
	idx             int
	injected        []string
	netIdleCalls    int
	collectCalls    int
	collectErr      error
	blockNetIdle    time.Duration
}

func (f *fakeHost) InjectScript(ctx context.Context, js string) error {
	f.injected = append(f.injected, js)
	return nil
}

func (f *fakeHost) EvalExpression(ctx context.Context, js string) ([]byte, error) {
	if f.idx >= len(f.actions) {
		return []byte(`{"done":true}`), nil
	}
	a := f.actions[f.idx]
	f.idx++
	return []byte(a), nil
}

func (f *fakeHost) WaitForNetIdle(ctx context.Context) {
	f.netIdleCalls++
	if f.blockNetIdle > 0 {
		select {
		case <-time.After(f.blockNetIdle):
		case <-ctx.Done():
		}
	}
}

func (f *fakeHost) CollectOutlinks(ctx context.Context) error {
	f.collectCalls++
	return f.collectErr
}

func TestRunnerInitIsIdempotent(t *testing.T) {
	host := &fakeHost{}
	r := NewRunner(host, &Behavior{JS: "window.foo = 1"}, false)

	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := r.Init(context.Background()); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if len(host.injected) != 2 {
		t.Fatalf("expected exactly 2 injections across both Init calls, got %d: %v", len(host.injected), host.injected)
	}
}

func TestRunnerPerformActionDoneStopsRun(t *testing.T) {
	host := &fakeHost{actions: []string{`{"done":false,"wait":false}`, `{"done":true}`}}
	r := NewRunner(host, &Behavior{JS: ""}, false)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if host.idx != 2 {
		t.Errorf("expected 2 PerformAction evaluations, got %d", host.idx)
	}
}

func TestRunnerPerformActionWaitTriggersNetIdle(t *testing.T) {
	host := &fakeHost{actions: []string{`{"done":false,"wait":true}`, `{"done":true}`}}
	r := NewRunner(host, &Behavior{JS: ""}, false)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if host.netIdleCalls != 1 {
		t.Errorf("expected WaitForNetIdle called once, got %d", host.netIdleCalls)
	}
}

func TestRunnerCollectsOutlinksWhenConfigured(t *testing.T) {
	host := &fakeHost{actions: []string{`{"done":false}`, `{"done":false}`, `{"done":true}`}}
	r := NewRunner(host, &Behavior{JS: ""}, true)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if host.collectCalls != 2 {
		t.Errorf("expected outlinks collected after each non-terminal action, got %d", host.collectCalls)
	}
}

func TestRunnerTimedRunSwallowsBudgetExpiry(t *testing.T) {
	host := &fakeHost{blockNetIdle: 200 * time.Millisecond}
	host.actions = []string{`{"done":false,"wait":true}`}
	r := NewRunner(host, &Behavior{JS: ""}, false)

	err := r.TimedRun(context.Background(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("TimedRun should swallow budget expiry, got %v", err)
	}
}

func TestRunnerTimedRunDisabledWithNegativeBudget(t *testing.T) {
	host := &fakeHost{actions: []string{`{"done":true}`}}
	r := NewRunner(host, &Behavior{JS: ""}, false)

	if err := r.TimedRun(context.Background(), -time.Second); err != nil {
		t.Fatalf("TimedRun with disabled budget: %v", err)
	}
}

func TestRunnerEndMarksFinished(t *testing.T) {
	host := &fakeHost{}
	r := NewRunner(host, &Behavior{JS: ""}, false)
	r.End()
	if !r.isFinished() {
		t.Error("End() should mark the runner finished")
	}
}

func ExampleRunner_PerformAction() {
	host := &fakeHost{actions: []string{`{"done":true}`}}
	r := NewRunner(host, &Behavior{JS: ""}, false)
	done, err := r.PerformAction(context.Background())
	fmt.Println(done, err)
	// Output: true <nil>
}
