package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/fieldcrew/crewclock/internal/offline"
	"github.com/fieldcrew/crewclock/internal/timeclock"
)

// Metrics must satisfy the engine's observer.
var _ timeclock.Observer = (*Metrics)(nil)

func TestObserver(t *testing.T) {
	m := New(Gauges{})
	m.ClockEvent("clock_in", "online")
	m.ClockEvent("clock_in", "online")
	m.ClockEvent("clock_out", "offline")
	m.GPSDenied("clock_in")
	m.EntryFinalized(8, 160)
	m.EntryFinalized(2.5, 50)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"clock_in online", testutil.ToFloat64(m.clockEvents.WithLabelValues("clock_in", "online")), 2},
		{"clock_out offline", testutil.ToFloat64(m.clockEvents.WithLabelValues("clock_out", "offline")), 1},
		{"gps denied", testutil.ToFloat64(m.gpsDenied.WithLabelValues("clock_in")), 1},
		{"entries", testutil.ToFloat64(m.entries), 2},
		{"hours", testutil.ToFloat64(m.hoursWorked), 10.5},
		{"cost", testutil.ToFloat64(m.laborCost), 210},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestObserveDrain(t *testing.T) {
	m := New(Gauges{})
	m.ObserveDrain(offline.DrainResult{Synced: 5, Conflicts: 2, Failed: 1, Unresolved: 1}, nil)
	m.ObserveDrain(offline.DrainResult{}, offline.ErrDrainInProgress)
	m.ObserveDrain(offline.DrainResult{Synced: 1}, errors.New("scan failed"))

	if got := testutil.ToFloat64(m.drains.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok drains = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.drains.WithLabelValues("skipped")); got != 1 {
		t.Errorf("skipped drains = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.syncedEvents.WithLabelValues("applied")); got != 4 {
		t.Errorf("applied = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.syncedEvents.WithLabelValues("conflict")); got != 2 {
		t.Errorf("conflict = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.unresolvedHeld); got != 1 {
		t.Errorf("unresolved = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New(Gauges{
		ActiveSessions: func() float64 { return 3 },
		QueueDepth:     func() float64 { return 7 },
	})
	m.ClockEvent("break_start", "online")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`crewclock_clock_events_total{kind="break_start",source="online"} 1`,
		"crewclock_active_sessions 3",
		"crewclock_sync_queue_depth 7",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
