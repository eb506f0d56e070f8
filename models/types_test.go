package models

import "testing"

func TestExitReasonCodeEmpty(t *testing.T) {
	var info BrowserExitInfo
	if got := info.ExitReasonCode(); got != 0 {
		t.Errorf("ExitReasonCode() on no tabs = %d, want 0", got)
	}
}

func TestExitReasonCodeSingleCrash(t *testing.T) {
	info := BrowserExitInfo{TabClosedReasons: []TabClosedInfo{
		{TabID: "t1", Reason: CloseTargetCrashed},
	}}
	if got := info.ExitReasonCode(); got != 2 {
		t.Errorf("ExitReasonCode() = %d, want 2", got)
	}
}

func TestExitReasonCodePlurality(t *testing.T) {
	info := BrowserExitInfo{TabClosedReasons: []TabClosedInfo{
		{TabID: "t1", Reason: CloseClosed},
		{TabID: "t2", Reason: CloseTargetCrashed},
		{TabID: "t3", Reason: CloseTargetCrashed},
	}}
	if got := info.ExitReasonCode(); got != 2 {
		t.Errorf("ExitReasonCode() = %d, want 2 (crashed is the plurality reason)", got)
	}
}

func TestExitReasonCodeTieBreaksFirstSeen(t *testing.T) {
	// CLOSED and CONNECTION_CLOSED both occur once; CLOSED appears first and
	// wins the tie, so the overall code is 0 rather than 2.
	info := BrowserExitInfo{TabClosedReasons: []TabClosedInfo{
		{TabID: "t1", Reason: CloseClosed},
		{TabID: "t2", Reason: CloseConnectionClosed},
	}}
	if got := info.ExitReasonCode(); got != 0 {
		t.Errorf("ExitReasonCode() = %d, want 0 (first-seen tie-break)", got)
	}
}
