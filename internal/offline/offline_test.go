package offline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fieldcrew/crewclock/internal/directory"
	"github.com/fieldcrew/crewclock/internal/kv"
	"github.com/fieldcrew/crewclock/internal/location"
	"github.com/fieldcrew/crewclock/internal/settings"
	"github.com/fieldcrew/crewclock/internal/timeclock"
)

var t0 = time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)

var fix = location.Succeeded(location.Fix{Latitude: 47.6, Longitude: -122.3, Accuracy: 10})

// mockReplayer records replays and fails on demand.
type mockReplayer struct {
	mu      sync.Mutex
	calls   []Event
	failFor map[string]error
	block   chan struct{}
}

func (m *mockReplayer) Replay(ctx context.Context, ev Event) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, ev)
	if err, ok := m.failFor[ev.ID]; ok {
		return err
	}
	return nil
}

func (m *mockReplayer) callsFor(member string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, ev := range m.calls {
		if ev.MemberID == member {
			ids = append(ids, ev.ID)
		}
	}
	return ids
}

func newEngine(t *testing.T, store kv.Store) *timeclock.Manager {
	t.Helper()
	roster, err := directory.NewRoster(
		[]directory.Member{{ID: "m1", Name: "Ana", HourlyRate: 20}, {ID: "m2", Name: "Ben", HourlyRate: 25}},
		nil,
		[]directory.Job{{ID: "j1", Name: "Oak St"}},
	)
	if err != nil {
		t.Fatal(err)
	}
	mgr, err := timeclock.NewManager(timeclock.Config{
		Store:       store,
		Settings:    settings.NewStore(settings.StoreConfig{KV: store}),
		Crews:       roster,
		Jobs:        roster,
		Assignments: directory.NewResolver(roster, roster),
		Now:         func() time.Time { return t0.Add(12 * time.Hour) },
	})
	if err != nil {
		t.Fatal(err)
	}
	return mgr
}

func enqueue(t *testing.T, q *Queue, ev Event) Event {
	t.Helper()
	out, err := q.Enqueue(context.Background(), ev)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return out
}

func TestEnqueueValidates(t *testing.T) {
	q := NewQueue(QueueConfig{Store: kv.NewMemory()})
	tests := []Event{
		{Kind: "lunch", MemberID: "m1", Timestamp: t0},
		{Kind: timeclock.EventClockOut, Timestamp: t0},
		{Kind: timeclock.EventClockOut, MemberID: "m1"},
		{Kind: timeclock.EventClockIn, MemberID: "m1", Timestamp: t0},
	}
	for _, ev := range tests {
		if _, err := q.Enqueue(context.Background(), ev); !errors.Is(err, ErrInvalidEvent) {
			t.Errorf("Enqueue(%+v) = %v, want ErrInvalidEvent", ev, err)
		}
	}
}

func TestEnqueueIsDurableAndOrdered(t *testing.T) {
	path := t.TempDir() + "/queue.db"
	store, err := kv.OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	q := NewQueue(QueueConfig{Store: store})
	enqueue(t, q, Event{ID: "b", Kind: timeclock.EventClockOut, MemberID: "m1", Timestamp: t0.Add(time.Hour)})
	enqueue(t, q, Event{ID: "a", Kind: timeclock.EventClockIn, MemberID: "m1", JobID: "j1", Timestamp: t0})
	store.Close()

	reopened, err := kv.OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	pending, err := NewQueue(QueueConfig{Store: reopened}).Pending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 || pending[0].ID != "a" || pending[1].ID != "b" {
		t.Errorf("Pending = %+v, want a then b", pending)
	}
	if pending[0].EnqueuedAt.IsZero() {
		t.Error("EnqueuedAt should be stamped")
	}
}

func TestDrainReplaysThroughManager(t *testing.T) {
	store := kv.NewMemory()
	mgr := newEngine(t, store)
	q := NewQueue(QueueConfig{Store: kv.NewMemory(), Replayer: ManagerReplayer{Clock: mgr}})
	ctx := context.Background()

	enqueue(t, q, Event{ID: "e1", Kind: timeclock.EventClockIn, MemberID: "m1", JobID: "j1", Timestamp: t0, Location: &fix})
	enqueue(t, q, Event{ID: "e2", Kind: timeclock.EventBreakStart, MemberID: "m1", Timestamp: t0.Add(4 * time.Hour)})
	enqueue(t, q, Event{ID: "e3", Kind: timeclock.EventBreakEnd, MemberID: "m1", Timestamp: t0.Add(4*time.Hour + 30*time.Minute)})
	enqueue(t, q, Event{ID: "e4", Kind: timeclock.EventClockOut, MemberID: "m1", Timestamp: t0.Add(8*time.Hour + 30*time.Minute), Location: &fix})

	res, err := q.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if res.Synced != 4 || res.Failed != 0 {
		t.Errorf("DrainResult = %+v, want 4 synced", res)
	}
	if pending, _ := q.Pending(ctx); len(pending) != 0 {
		t.Errorf("%d events still queued", len(pending))
	}

	entries, err := mgr.Entries(ctx, timeclock.EntryFilter{MemberID: "m1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	e := entries[0]
	if !e.ClockInTime.Equal(t0) || e.TotalBreakMinutes != 30 || e.TotalHours != 8 {
		t.Errorf("entry = in %v, %d break min, %vh; want t0, 30, 8", e.ClockInTime, e.TotalBreakMinutes, e.TotalHours)
	}

	events, _ := mgr.Events(ctx, "m1")
	for _, ev := range events {
		if ev.Source != timeclock.SourceOffline {
			t.Errorf("event %s source = %s, want offline", ev.Kind, ev.Source)
		}
	}
}

func TestDrainReplayIsIdempotent(t *testing.T) {
	store := kv.NewMemory()
	mgr := newEngine(t, store)
	q := NewQueue(QueueConfig{Store: kv.NewMemory(), Replayer: ManagerReplayer{Clock: mgr}})
	ctx := context.Background()

	in := Event{ID: "evt-in", Kind: timeclock.EventClockIn, MemberID: "m1", JobID: "j1", Timestamp: t0, Location: &fix}
	enqueue(t, q, in)
	if _, err := q.Drain(ctx); err != nil {
		t.Fatal(err)
	}

	// Same event delivered again, e.g. from a second device.
	enqueue(t, q, in)
	res, err := q.Drain(ctx)
	if err != nil {
		t.Fatalf("second Drain: %v", err)
	}
	if res.Synced != 1 || res.Conflicts != 1 || res.Failed != 0 {
		t.Errorf("DrainResult = %+v, want 1 synced conflict", res)
	}

	entries, _ := mgr.Entries(ctx, timeclock.EntryFilter{MemberID: "m1"})
	if len(entries) != 1 {
		t.Errorf("len(entries) = %d, want 1", len(entries))
	}
}

func TestDrainTreatsStateConflictsAsSynced(t *testing.T) {
	store := kv.NewMemory()
	mgr := newEngine(t, store)
	q := NewQueue(QueueConfig{Store: kv.NewMemory(), Replayer: ManagerReplayer{Clock: mgr}})
	ctx := context.Background()

	// Recorded online already.
	if _, err := mgr.ClockIn(ctx, timeclock.ClockInRequest{MemberID: "m1", JobID: "j1", At: t0, Capture: &fix}); err != nil {
		t.Fatal(err)
	}
	enqueue(t, q, Event{Kind: timeclock.EventClockIn, MemberID: "m1", JobID: "j1", Timestamp: t0.Add(time.Minute), Location: &fix})
	enqueue(t, q, Event{Kind: timeclock.EventBreakEnd, MemberID: "m1", Timestamp: t0.Add(time.Hour)})
	enqueue(t, q, Event{Kind: timeclock.EventClockOut, MemberID: "m2", Timestamp: t0.Add(time.Hour)})

	res, err := q.Drain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Synced != 3 || res.Conflicts != 3 {
		t.Errorf("DrainResult = %+v, want 3 synced conflicts", res)
	}
}

func TestDrainFailureStopsMemberStream(t *testing.T) {
	rep := &mockReplayer{failFor: map[string]error{"m1-2": errors.New("validation failed")}}
	q := NewQueue(QueueConfig{Store: kv.NewMemory(), Replayer: rep, MaxAttempts: 2})
	ctx := context.Background()

	enqueue(t, q, Event{ID: "m1-1", Kind: timeclock.EventClockIn, MemberID: "m1", JobID: "j1", Timestamp: t0})
	enqueue(t, q, Event{ID: "m1-2", Kind: timeclock.EventBreakStart, MemberID: "m1", Timestamp: t0.Add(time.Hour)})
	enqueue(t, q, Event{ID: "m1-3", Kind: timeclock.EventBreakEnd, MemberID: "m1", Timestamp: t0.Add(2 * time.Hour)})
	enqueue(t, q, Event{ID: "m2-1", Kind: timeclock.EventClockIn, MemberID: "m2", JobID: "j1", Timestamp: t0.Add(30 * time.Minute)})

	res, err := q.Drain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Synced != 2 || res.Failed != 1 || res.Blocked != 1 || res.Unresolved != 0 {
		t.Errorf("first DrainResult = %+v", res)
	}
	if got := rep.callsFor("m1"); len(got) != 2 || got[0] != "m1-1" || got[1] != "m1-2" {
		t.Errorf("m1 replays = %v, want [m1-1 m1-2]", got)
	}

	pending, _ := q.Pending(ctx)
	if len(pending) != 2 || pending[0].ID != "m1-2" || pending[0].SyncAttempts != 1 || pending[0].LastError == "" {
		t.Fatalf("pending = %+v", pending)
	}

	// Second failure hits the limit.
	res, _ = q.Drain(ctx)
	if res.Unresolved != 1 {
		t.Errorf("second DrainResult = %+v, want 1 unresolved", res)
	}
	unresolved, _ := q.Unresolved(ctx)
	if len(unresolved) != 1 || unresolved[0].ID != "m1-2" {
		t.Fatalf("Unresolved = %+v", unresolved)
	}

	// Unresolved events hold the stream without being replayed.
	before := len(rep.callsFor("m1"))
	res, _ = q.Drain(ctx)
	if res.Blocked != 2 || len(rep.callsFor("m1")) != before {
		t.Errorf("third DrainResult = %+v, replays %d -> %d", res, before, len(rep.callsFor("m1")))
	}

	// Operator retries after fixing the cause.
	delete(rep.failFor, "m1-2")
	if _, err := q.Retry(ctx, "m1-2"); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	res, _ = q.Drain(ctx)
	if res.Synced != 2 {
		t.Errorf("after retry DrainResult = %+v, want 2 synced", res)
	}
	if pending, _ := q.Pending(ctx); len(pending) != 0 {
		t.Errorf("%d events still queued", len(pending))
	}
}

func TestDiscard(t *testing.T) {
	q := NewQueue(QueueConfig{Store: kv.NewMemory()})
	ctx := context.Background()
	ev := enqueue(t, q, Event{Kind: timeclock.EventClockOut, MemberID: "m1", Timestamp: t0})

	if err := q.Discard(ctx, ev.ID); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if err := q.Discard(ctx, ev.ID); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("second Discard = %v, want ErrEventNotFound", err)
	}
	if _, err := q.Retry(ctx, "nope"); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("Retry(nope) = %v, want ErrEventNotFound", err)
	}
}

func TestDrainSingleInFlight(t *testing.T) {
	rep := &mockReplayer{block: make(chan struct{})}
	q := NewQueue(QueueConfig{Store: kv.NewMemory(), Replayer: rep})
	ctx := context.Background()
	enqueue(t, q, Event{Kind: timeclock.EventClockOut, MemberID: "m1", Timestamp: t0})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := q.Drain(ctx); err != nil {
			t.Errorf("first Drain: %v", err)
		}
	}()

	// Wait for the first drain to claim the flag.
	deadline := time.Now().Add(2 * time.Second)
	for !q.draining.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if _, err := q.Drain(ctx); !errors.Is(err, ErrDrainInProgress) {
		t.Errorf("concurrent Drain = %v, want ErrDrainInProgress", err)
	}

	close(rep.block)
	<-done
}

func TestSyncerTriggerIsRateLimited(t *testing.T) {
	rep := &mockReplayer{}
	q := NewQueue(QueueConfig{Store: kv.NewMemory(), Replayer: rep})
	s := NewSyncer(SyncerConfig{Queue: q, Interval: time.Hour, TriggerRate: 0.001, TriggerBurst: 1})

	if !s.Trigger() {
		t.Error("first Trigger should be allowed")
	}
	if s.Trigger() {
		t.Error("second Trigger should be rate limited")
	}
}

func TestSyncerDrainsOnTrigger(t *testing.T) {
	rep := &mockReplayer{}
	q := NewQueue(QueueConfig{Store: kv.NewMemory(), Replayer: rep})
	enqueue(t, q, Event{Kind: timeclock.EventClockOut, MemberID: "m1", Timestamp: t0})

	drained := make(chan DrainResult, 1)
	s := NewSyncer(SyncerConfig{
		Queue:    q,
		Interval: time.Hour,
		OnDrain: func(r DrainResult, err error) {
			if err == nil {
				select {
				case drained <- r:
				default:
				}
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()

	s.Trigger()
	select {
	case r := <-drained:
		if r.Synced != 1 {
			t.Errorf("Synced = %d, want 1", r.Synced)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not drain")
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Start() = %v, want context.Canceled", err)
	}
}

func TestSyncOnce(t *testing.T) {
	q := NewQueue(QueueConfig{Store: kv.NewMemory(), Replayer: &mockReplayer{}})
	enqueue(t, q, Event{Kind: timeclock.EventBreakStart, MemberID: "m1", Timestamp: t0})
	s := NewSyncer(SyncerConfig{Queue: q})
	if r := s.SyncOnce(context.Background()); r.Synced != 1 {
		t.Errorf("SyncOnce().Synced = %d, want 1", r.Synced)
	}
}

// switchConn is a Connectivity the test can flip.
type switchConn struct {
	mu     sync.Mutex
	online bool
}

func (c *switchConn) Online(context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *switchConn) set(v bool) {
	c.mu.Lock()
	c.online = v
	c.mu.Unlock()
}

// flakyKV fails batch writes while failing is set.
type flakyKV struct {
	*kv.Memory
	failing bool
}

func (f *flakyKV) Write(ctx context.Context, b *kv.Batch) error {
	if f.failing {
		return errors.New("connection refused")
	}
	return f.Memory.Write(ctx, b)
}

func TestGateway(t *testing.T) {
	main := &flakyKV{Memory: kv.NewMemory()}
	mgr := newEngine(t, main)
	q := NewQueue(QueueConfig{Store: kv.NewMemory(), Replayer: ManagerReplayer{Clock: mgr}})
	conn := &switchConn{online: false}
	now := t0
	g := NewGateway(GatewayConfig{
		Clock:        mgr,
		Queue:        q,
		Connectivity: conn,
		Location:     location.Static{Fix: &location.Fix{Latitude: 1, Longitude: 1, Accuracy: 5}},
		Now:          func() time.Time { return now },
	})
	ctx := context.Background()

	// Offline: queued with the location captured now.
	out, err := g.ClockIn(ctx, "m1", "j1", "", nil)
	if err != nil {
		t.Fatalf("offline ClockIn: %v", err)
	}
	if !out.Queued || out.Event.Location == nil || !out.Event.Location.Success {
		t.Fatalf("offline outcome = %+v, want queued with location", out)
	}

	// Back online, but m1 has queued events: still queued to keep order.
	conn.set(true)
	now = t0.Add(time.Hour)
	out, err = g.StartBreak(ctx, "m1")
	if err != nil || !out.Queued {
		t.Fatalf("StartBreak with pending = %+v, %v; want queued", out, err)
	}

	// A member with nothing queued goes straight through.
	out, err = g.ClockIn(ctx, "m2", "j1", "", nil)
	if err != nil || out.Queued || out.Entry == nil {
		t.Fatalf("online ClockIn = %+v, %v; want direct entry", out, err)
	}

	// Expected errors are returned, not queued.
	if _, err := g.ClockIn(ctx, "m2", "j1", "", nil); !errors.Is(err, timeclock.ErrAlreadyClockedIn) {
		t.Errorf("duplicate ClockIn = %v, want ErrAlreadyClockedIn", err)
	}

	// Store failures fall back to the queue.
	main.failing = true
	now = t0.Add(2 * time.Hour)
	out, err = g.ClockOut(ctx, "m2", "", nil)
	if err != nil || !out.Queued {
		t.Fatalf("ClockOut during store failure = %+v, %v; want queued", out, err)
	}
	main.failing = false

	res, err := q.Drain(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Synced != 3 || res.Failed != 0 {
		t.Errorf("DrainResult = %+v, want 3 synced", res)
	}
	s, err := mgr.ActiveSession(ctx, "m1")
	if err != nil || !s.OnBreak() {
		t.Errorf("m1 session = %+v, %v; want on break", s, err)
	}
	if _, err := mgr.ActiveSession(ctx, "m2"); !errors.Is(err, timeclock.ErrNoActiveSession) {
		t.Errorf("m2 should be clocked out, got %v", err)
	}
}

func TestPingConnectivity(t *testing.T) {
	store := kv.NewMemory()
	c := PingConnectivity{Store: store}
	if !c.Online(context.Background()) {
		t.Error("open store should be online")
	}
	store.Close()
	if c.Online(context.Background()) {
		t.Error("closed store should be offline")
	}
}
