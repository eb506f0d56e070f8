package driver

import (
	"testing"

	"github.com/use-agent/autodriver/models"
)

func TestDetermineExitCodeBySignal(t *testing.T) {
	if got := DetermineExitCode(true, nil); got != 1 {
		t.Errorf("got %d, want 1", got)
	}
}

func TestDetermineExitCodeNoExits(t *testing.T) {
	if got := DetermineExitCode(false, nil); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

func TestDetermineExitCodeSingleExit(t *testing.T) {
	exits := []models.BrowserExitInfo{
		{TabClosedReasons: []models.TabClosedInfo{{Reason: models.CloseTargetCrashed}}},
	}
	if got := DetermineExitCode(false, exits); got != 2 {
		t.Errorf("got %d, want 2", got)
	}
}

func TestDetermineExitCodeMultiExitPlurality(t *testing.T) {
	exits := []models.BrowserExitInfo{
		{TabClosedReasons: []models.TabClosedInfo{{Reason: models.CloseClosed}}},
		{TabClosedReasons: []models.TabClosedInfo{{Reason: models.CloseTargetCrashed}}},
		{TabClosedReasons: []models.TabClosedInfo{{Reason: models.CloseTargetCrashed}}},
	}
	if got := DetermineExitCode(false, exits); got != 2 {
		t.Errorf("got %d, want 2 (plurality of exit codes across browsers)", got)
	}
}

func TestDetermineExitCodeSignalOverridesExits(t *testing.T) {
	exits := []models.BrowserExitInfo{
		{TabClosedReasons: []models.TabClosedInfo{{Reason: models.CloseTargetCrashed}}},
	}
	if got := DetermineExitCode(true, exits); got != 1 {
		t.Errorf("got %d, want 1 (signal always wins)", got)
	}
}
