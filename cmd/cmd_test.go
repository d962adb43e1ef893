package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/fieldcrew/crewclock/internal/config"
	"github.com/fieldcrew/crewclock/internal/kv"
	"github.com/fieldcrew/crewclock/internal/location"
	"github.com/fieldcrew/crewclock/internal/offline"
	"github.com/fieldcrew/crewclock/internal/report"
	"github.com/fieldcrew/crewclock/internal/settings"
	"github.com/fieldcrew/crewclock/internal/timeclock"
)

const testRoster = `
members:
  - id: m1
    name: Ana Reyes
    hourly_rate: 20
  - id: boss
    name: Pat Lee
    hourly_rate: 40
    role: admin
crews:
  - id: c1
    name: Framing
    leader_id: m1
    member_ids: [m1]
    active_job_ids: [j1]
jobs:
  - id: j1
    name: Oak St Remodel
    assigned_crew_ids: [c1]
`

const testPolicy = `overtime_threshold_hours: 10
allow_gpsless_exceptions: false
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	roster := filepath.Join(dir, "roster.yaml")
	policy := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(roster, []byte(testRoster), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(policy, []byte(testPolicy), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Store = "sqlite:" + filepath.Join(dir, "data", "crewclock.db")
	cfg.QueueStore = "sqlite:" + filepath.Join(dir, "data", "queue.db")
	cfg.Roster = roster
	cfg.SettingsFile = policy
	cfg.JWTSecret = "test-secret"
	return cfg
}

func openTestApp(t *testing.T, cfg *config.Config, p location.Provider) *app {
	t.Helper()
	a, err := newApp(context.Background(), cfg, appOptions{Location: p, LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	return a
}

func TestNewAppWiresEngine(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	fix := &location.Fix{Latitude: 40.71, Longitude: -74.0, Accuracy: 10, Timestamp: time.Now()}
	a := openTestApp(t, cfg, location.Static{Fix: fix})
	defer a.Close()

	s := a.settings.Get()
	if s.OvertimeThresholdHours != 10 || s.AllowGPSlessExceptions {
		t.Fatalf("settings not seeded from policy file: %+v", s)
	}

	in := location.Succeeded(*fix)
	if _, err := a.manager.ClockIn(ctx, timeclock.ClockInRequest{
		MemberID: "m1",
		JobID:    "j1",
		At:       time.Now().Add(-2 * time.Hour),
		Capture:  &in,
		Source:   timeclock.SourceOnline,
		Actor:    "m1",
	}); err != nil {
		t.Fatalf("ClockIn: %v", err)
	}

	out, err := a.gateway.ClockOut(ctx, "m1", "done", nil)
	if err != nil {
		t.Fatalf("ClockOut: %v", err)
	}
	if out.Queued || out.Entry == nil {
		t.Fatalf("outcome = %+v, want applied online", out)
	}
	if out.Entry.Status != timeclock.StatusCompleted {
		t.Errorf("Status = %q, want completed", out.Entry.Status)
	}
	if out.Entry.TotalHours < 1.99 || out.Entry.TotalHours > 2.01 {
		t.Errorf("TotalHours = %v, want ~2", out.Entry.TotalHours)
	}

	r, err := a.reports.Generate(ctx, time.Now().Add(-24*time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if r.Totals.Entries != 1 || r.Totals.TotalCost != out.Entry.TotalCost {
		t.Errorf("report totals = %+v, want one entry costing %v", r.Totals, out.Entry.TotalCost)
	}
	if len(r.ByCrew) != 1 || r.ByCrew[0].ID != "c1" {
		t.Errorf("ByCrew = %+v, want c1", r.ByCrew)
	}
}

func TestNewAppGPSDeniedWithoutFix(t *testing.T) {
	cfg := testConfig(t)
	a := openTestApp(t, cfg, location.Static{})
	defer a.Close()

	_, err := a.gateway.ClockIn(context.Background(), "m1", "j1", "", nil)
	if !errors.Is(err, timeclock.ErrGPSRequired) {
		t.Fatalf("ClockIn error = %v, want gps required", err)
	}
	if h := hint(err); !strings.Contains(h, "--lat") {
		t.Errorf("hint = %q, want it to mention --lat", h)
	}
}

func TestSettingsFileSeedsOnlyOnce(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a := openTestApp(t, cfg, nil)
	nine := 9.0
	if _, err := a.settings.Update(ctx, settings.Patch{OvertimeThresholdHours: &nine}, "boss"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	a.Close()

	a = openTestApp(t, cfg, nil)
	defer a.Close()
	if got := a.settings.Get(); got.OvertimeThresholdHours != 9 || got.UpdatedBy != "boss" {
		t.Errorf("settings after reopen = %v by %q, want 9 by boss", got.OvertimeThresholdHours, got.UpdatedBy)
	}
}

func TestNewAppQueuesWhenStoreDownAtStartup(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Store = "redis://127.0.0.1:1/0"

	fix := &location.Fix{Latitude: 40.71, Longitude: -74.0, Accuracy: 10, Timestamp: time.Now()}
	a := openTestApp(t, cfg, location.Static{Fix: fix})
	defer a.Close()

	if got := a.settings.Get(); got.OvertimeThresholdHours != settings.Defaults().OvertimeThresholdHours {
		t.Errorf("settings = %+v, want defaults while the store is down", got)
	}

	out, err := a.gateway.ClockIn(ctx, "m1", "j1", "", nil)
	if err != nil {
		t.Fatalf("ClockIn: %v", err)
	}
	if !out.Queued || out.Event == nil {
		t.Fatalf("outcome = %+v, want queued", out)
	}
	if out.Event.Location == nil || !out.Event.Location.Success {
		t.Errorf("queued location = %+v, want the fix captured at clock in", out.Event.Location)
	}

	pending, err := a.queue.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0].MemberID != "m1" {
		t.Errorf("pending = %+v, want one event for m1", pending)
	}
}

func TestNewAppMissingRoster(t *testing.T) {
	cfg := testConfig(t)
	cfg.Roster = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := newApp(context.Background(), cfg, appOptions{LogOutput: io.Discard}); err == nil {
		t.Fatal("newApp should fail without a roster")
	}
}

func TestEnsureSQLiteDir(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		dsn     string
		created string
	}{
		{"sqlite:" + filepath.Join(dir, "a", "x.db"), filepath.Join(dir, "a")},
		{"sqlite://" + filepath.Join(dir, "b", "x.db"), filepath.Join(dir, "b")},
		{filepath.Join(dir, "c", "x.db"), filepath.Join(dir, "c")},
		{"memory:", ""},
		{"redis://localhost:6379/0", ""},
	}
	for _, tt := range tests {
		if err := ensureSQLiteDir(tt.dsn); err != nil {
			t.Errorf("ensureSQLiteDir(%q) error = %v", tt.dsn, err)
			continue
		}
		if tt.created == "" {
			continue
		}
		if _, err := os.Stat(tt.created); err != nil {
			t.Errorf("ensureSQLiteDir(%q) did not create %s", tt.dsn, tt.created)
		}
	}
}

func TestMintToken(t *testing.T) {
	cfg := testConfig(t)

	token, err := mintToken(cfg, "boss")
	if err != nil {
		t.Fatalf("mintToken: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("token = %q, want a JWT", token)
	}

	if _, err := mintToken(cfg, "ghost"); err == nil {
		t.Error("mintToken should reject unknown members")
	}

	cfg.JWTSecret = ""
	if _, err := mintToken(cfg, "boss"); err == nil {
		t.Error("mintToken should require a secret")
	}
}

func TestHint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"already clocked in", timeclock.ErrAlreadyClockedIn, "already clocked in"},
		{"not clocked in", fmt.Errorf("replay: %w", timeclock.ErrNoActiveSession), "not clocked in"},
		{"job", timeclock.ErrJobNotAssigned, "crew's jobs"},
		{"storage", timeclock.ErrStorage, "please retry"},
		{"drain", offline.ErrDrainInProgress, "already running"},
		{"plain", errors.New("boom"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hint(tt.err)
			if tt.want == "" {
				if got != "" {
					t.Errorf("hint = %q, want none", got)
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("hint = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestReportRange(t *testing.T) {
	start, end, err := reportRange("2025-06-02", "")
	if err != nil {
		t.Fatalf("reportRange: %v", err)
	}
	if got := end.Sub(start); got != 24*time.Hour {
		t.Errorf("default range = %v, want 24h", got)
	}

	start, end, err = reportRange("2025-06-02T00:00:00Z", "2025-06-09T00:00:00Z")
	if err != nil {
		t.Fatalf("reportRange: %v", err)
	}
	if got := end.Sub(start); got != 7*24*time.Hour {
		t.Errorf("range = %v, want a week", got)
	}

	for _, bad := range [][2]string{{"", ""}, {"June 2", ""}, {"2025-06-02", "soon"}} {
		if _, _, err := reportRange(bad[0], bad[1]); err == nil {
			t.Errorf("reportRange(%q, %q) should fail", bad[0], bad[1])
		}
	}
}

func TestWriteReportFormats(t *testing.T) {
	r := report.LaborCostReport{
		Start: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
		ByMember: []report.Line{{ID: "m1", Name: "Ana Reyes", Totals: report.Totals{
			Entries: 1, TotalHours: 8, RegularHours: 8, RegularCost: 160, TotalCost: 160,
		}}},
		Totals: report.Totals{Entries: 1, TotalHours: 8, RegularHours: 8, RegularCost: 160, TotalCost: 160},
	}

	tests := []struct {
		format string
		want   string
	}{
		{"table", "Ana Reyes"},
		{"json", `"total_cost": 160`},
		{"csv", "160.00"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		if err := writeReport(&buf, r, tt.format); err != nil {
			t.Errorf("writeReport(%s): %v", tt.format, err)
			continue
		}
		if !strings.Contains(buf.String(), tt.want) {
			t.Errorf("writeReport(%s) missing %q:\n%s", tt.format, tt.want, buf.String())
		}
	}

	if err := writeReport(io.Discard, r, "pdf"); err == nil {
		t.Error("writeReport should reject unknown formats")
	}
}

func TestSettingsPatchFromFlags(t *testing.T) {
	fs := pflag.NewFlagSet("set", pflag.ContinueOnError)
	addSettingFlags(fs)
	if err := fs.Parse([]string{
		"--overtime-threshold-hours=40",
		"--break-deduction-policy=auto_30min",
		"--require-gps-for-clock-out=false",
		"--rounding-interval-minutes=15",
	}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	p, err := settingsPatch(fs)
	if err != nil {
		t.Fatalf("settingsPatch: %v", err)
	}
	if p.OvertimeThresholdHours == nil || *p.OvertimeThresholdHours != 40 {
		t.Errorf("OvertimeThresholdHours = %v, want 40", p.OvertimeThresholdHours)
	}
	if p.BreakDeductionPolicy == nil || *p.BreakDeductionPolicy != settings.BreakPolicyAuto30 {
		t.Errorf("BreakDeductionPolicy = %v, want auto_30min", p.BreakDeductionPolicy)
	}
	if p.RequireGPSForClockOut == nil || *p.RequireGPSForClockOut {
		t.Errorf("RequireGPSForClockOut = %v, want false", p.RequireGPSForClockOut)
	}
	if p.RoundingIntervalMinutes == nil || *p.RoundingIntervalMinutes != 15 {
		t.Errorf("RoundingIntervalMinutes = %v, want 15", p.RoundingIntervalMinutes)
	}
	if p.OvertimeMultiplier != nil || p.RequireGPSForClockIn != nil {
		t.Error("unset flags should stay nil")
	}

	empty := pflag.NewFlagSet("set", pflag.ContinueOnError)
	addSettingFlags(empty)
	if p, err := settingsPatch(empty); err != nil || !p.IsEmpty() {
		t.Errorf("settingsPatch with no flags = %+v, %v, want empty", p, err)
	}
}

type toggleConn struct {
	mu     sync.Mutex
	online bool
}

func (c *toggleConn) Online(context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *toggleConn) set(v bool) {
	c.mu.Lock()
	c.online = v
	c.mu.Unlock()
}

type nopReplayer struct{}

func (nopReplayer) Replay(context.Context, offline.Event) error { return nil }

func TestWatchConnectivityTriggersDrainOnReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	drained := make(chan struct{}, 4)
	q := offline.NewQueue(offline.QueueConfig{Store: kv.NewMemory(), Replayer: nopReplayer{}})
	syncer := offline.NewSyncer(offline.SyncerConfig{
		Queue:    q,
		Interval: time.Hour,
		OnDrain: func(offline.DrainResult, error) {
			drained <- struct{}{}
		},
	})
	go func() { _ = syncer.Start(ctx) }()

	conn := &toggleConn{}
	go watchConnectivity(ctx, conn, syncer, 10*time.Millisecond)

	select {
	case <-drained:
		t.Fatal("drained while still offline")
	case <-time.After(50 * time.Millisecond):
	}

	conn.set(true)
	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("no drain after connectivity came back")
	}
}

func TestCommandLine(t *testing.T) {
	if err := clockInCmd.Flags().Set("job", "j1"); err != nil {
		t.Fatal(err)
	}
	got := commandLine(clockInCmd, nil)
	if !strings.HasPrefix(got, "crewclock clock in") || !strings.Contains(got, "--job=j1") {
		t.Errorf("commandLine = %q", got)
	}
}
