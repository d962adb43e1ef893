package timeclock

import (
	"errors"
	"testing"
	"time"
)

func TestStopBreakWithoutStart(t *testing.T) {
	s := &ActiveSession{MemberID: "m1", ClockInTime: t0}
	e := &TimeEntry{Breaks: []BreakRecord{}}

	_, err := StopBreak(s, e, t0.Add(time.Hour))
	if !errors.Is(err, ErrNoActiveBreak) {
		t.Fatalf("StopBreak() = %v, want ErrNoActiveBreak", err)
	}
	if len(e.Breaks) != 0 || e.TotalBreakMinutes != 0 {
		t.Errorf("entry changed: %d breaks, %d minutes", len(e.Breaks), e.TotalBreakMinutes)
	}
}

func TestBreakLifecycle(t *testing.T) {
	s := &ActiveSession{MemberID: "m1", ClockInTime: t0}
	e := &TimeEntry{}

	start := t0.Add(2 * time.Hour)
	if err := StartBreak(s, start); err != nil {
		t.Fatalf("StartBreak: %v", err)
	}
	if !s.OnBreak() {
		t.Fatal("session should be on break")
	}
	if err := StartBreak(s, start.Add(time.Minute)); !errors.Is(err, ErrAlreadyOnBreak) {
		t.Errorf("second StartBreak = %v, want ErrAlreadyOnBreak", err)
	}

	rec, err := StopBreak(s, e, start.Add(14*time.Minute+59*time.Second))
	if err != nil {
		t.Fatalf("StopBreak: %v", err)
	}
	if rec.DurationMinutes != 14 {
		t.Errorf("DurationMinutes = %d, want 14 (floored)", rec.DurationMinutes)
	}
	if s.OnBreak() {
		t.Error("break should be closed")
	}
	if len(e.Breaks) != 1 || e.TotalBreakMinutes != 14 {
		t.Errorf("entry = %d breaks / %d minutes, want 1 / 14", len(e.Breaks), e.TotalBreakMinutes)
	}

	// A second break accumulates.
	if err := StartBreak(s, start.Add(time.Hour)); err != nil {
		t.Fatalf("StartBreak: %v", err)
	}
	if _, err := StopBreak(s, e, start.Add(time.Hour+30*time.Minute)); err != nil {
		t.Fatalf("StopBreak: %v", err)
	}
	if e.TotalBreakMinutes != 44 {
		t.Errorf("TotalBreakMinutes = %d, want 44", e.TotalBreakMinutes)
	}
}

func TestBreakTimeValidation(t *testing.T) {
	s := &ActiveSession{MemberID: "m1", ClockInTime: t0}
	if err := StartBreak(s, t0.Add(-time.Minute)); !errors.Is(err, ErrInvalidTime) {
		t.Errorf("StartBreak before clock-in = %v, want ErrInvalidTime", err)
	}

	if err := StartBreak(s, t0.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	e := &TimeEntry{}
	if _, err := StopBreak(s, e, t0.Add(30*time.Minute)); !errors.Is(err, ErrInvalidTime) {
		t.Errorf("StopBreak before start = %v, want ErrInvalidTime", err)
	}
	if !s.OnBreak() || len(e.Breaks) != 0 {
		t.Error("failed StopBreak must not modify session or entry")
	}
}
