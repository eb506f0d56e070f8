package adminserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeStats struct {
	browsers  int
	tabCounts map[string]int
}

func (f fakeStats) BrowserCount() int          { return f.browsers }
func (f fakeStats) TabCounts() map[string]int  { return f.tabCounts }

func decodeEnvelope(t *testing.T, body []byte) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	return env
}

func TestHealthzReportsUptime(t *testing.T) {
	srv := New("", nil, fakeStats{}, time.Now().Add(-time.Minute))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	env := decodeEnvelope(t, rec.Body.Bytes())
	if !env.Success {
		t.Error("expected success=true")
	}
}

func TestStatsHandlerNeverPanicsOnEmptyBrowserMap(t *testing.T) {
	srv := New("", nil, fakeStats{browsers: 0, tabCounts: nil}, time.Now())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	srv.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	env := decodeEnvelope(t, rec.Body.Bytes())
	if !env.Success {
		t.Fatal("expected success=true")
	}
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected data shape: %#v", env.Data)
	}
	tabCounts, ok := data["tab_counts"].(map[string]any)
	if !ok {
		t.Fatalf("expected tab_counts to be an empty object, got %#v", data["tab_counts"])
	}
	if len(tabCounts) != 0 {
		t.Errorf("expected empty tab_counts, got %v", tabCounts)
	}
}

func TestStatsHandlerReportsCounts(t *testing.T) {
	srv := New("", nil, fakeStats{browsers: 2, tabCounts: map[string]int{"req-1": 3, "req-2": 1}}, time.Now())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	srv.engine.ServeHTTP(rec, req)

	env := decodeEnvelope(t, rec.Body.Bytes())
	data := env.Data.(map[string]any)
	if got := data["browsers"].(float64); got != 2 {
		t.Errorf("browsers = %v, want 2", got)
	}
}

func TestControlRejectsMissingCmd(t *testing.T) {
	srv := New("", nil, fakeStats{}, time.Now())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/control/req-1", nil)
	srv.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	env := decodeEnvelope(t, rec.Body.Bytes())
	if env.Success {
		t.Error("expected success=false for missing cmd")
	}
}
