package tab

import (
	"context"
	"testing"
	"time"

	"github.com/use-agent/autodriver/models"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateNew:          "New",
		StateConnecting:   "Connecting",
		StateRunning:      "Running",
		StateReconnecting: "Reconnecting",
		StateCrashed:      "Crashed",
		StateClosing:      "Closing",
		StateClosed:       "Closed",
		State(99):         "Unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestBaseCloseEmitsClosedExactlyOnce(t *testing.T) {
	b := NewBase("tab-1", Data{}, false, false, time.Second, "behavior")

	var events []models.TabClosedInfo
	b.OnClosed(func(info models.TabClosedInfo) { events = append(events, info) })

	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("expected exactly 1 Closed event, got %d: %+v", len(events), events)
	}
	if events[0].Reason != models.CloseClosed {
		t.Errorf("reason = %v, want CloseClosed", events[0].Reason)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want StateClosed", b.State())
	}
}

func TestBaseConnectionClosedEmitsConnectionClosedReason(t *testing.T) {
	b := NewBase("tab-2", Data{}, false, false, time.Second, "crawler")

	var got models.CloseReason
	b.OnClosed(func(info models.TabClosedInfo) { got = info.Reason })
	b.ConnectionClosed()

	if got != models.CloseConnectionClosed {
		t.Errorf("reason = %v, want CloseConnectionClosed", got)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want StateClosed", b.State())
	}
}

func TestBaseEmitClosedOnceAcrossCloseAndConnectionClosed(t *testing.T) {
	b := NewBase("tab-3", Data{}, false, false, time.Second, "behavior")

	count := 0
	b.OnClosed(func(models.TabClosedInfo) { count++ })

	b.ConnectionClosed()
	_ = b.Close(context.Background())

	if count != 1 {
		t.Errorf("expected exactly 1 delivered Closed event across both paths, got %d", count)
	}
}

func TestBaseCollectOutlinksIsNoop(t *testing.T) {
	b := NewBase("tab-4", Data{}, false, false, time.Second, "behavior")
	if err := b.CollectOutlinks(context.Background()); err != nil {
		t.Errorf("CollectOutlinks should be a no-op on Base, got %v", err)
	}
}

func TestBaseIDAndInitialState(t *testing.T) {
	b := NewBase("tab-5", Data{}, false, false, time.Second, "behavior")
	if b.ID() != "tab-5" {
		t.Errorf("ID() = %q", b.ID())
	}
	if b.State() != StateNew {
		t.Errorf("initial State() = %v, want StateNew", b.State())
	}
}
