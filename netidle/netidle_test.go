package netidle

import "testing"

func TestDefaultTunables(t *testing.T) {
	m := Default()
	if m.NumInflight != 2 {
		t.Errorf("NumInflight = %d, want 2", m.NumInflight)
	}
	if m.IdleTime.Seconds() != 2 {
		t.Errorf("IdleTime = %v, want 2s", m.IdleTime)
	}
	if m.GlobalWait.Seconds() != 60 {
		t.Errorf("GlobalWait = %v, want 60s", m.GlobalWait)
	}
}
