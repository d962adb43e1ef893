// Package offline captures clock events while the authoritative store is
// unreachable and replays them, in order per member, once it is back.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/fieldcrew/crewclock/internal/kv"
	"github.com/fieldcrew/crewclock/internal/location"
	"github.com/fieldcrew/crewclock/internal/timeclock"
)

const keyPrefix = "offline:"

// DefaultMaxAttempts is how many failed replays an event gets before it is
// held for an operator.
const DefaultMaxAttempts = 5

// Queue errors
var (
	// ErrDrainInProgress indicates another drain is already running
	ErrDrainInProgress = errors.New("drain already in progress")

	// ErrEventNotFound indicates no queued event has the given id
	ErrEventNotFound = errors.New("queued event not found")

	// ErrInvalidEvent indicates an event missing its kind, member or timestamp
	ErrInvalidEvent = errors.New("invalid offline event")
)

// Event is a clock action captured without connectivity.
type Event struct {
	ID        string              `json:"id"`
	Kind      timeclock.EventKind `json:"kind"`
	MemberID  string              `json:"member_id"`
	JobID     string              `json:"job_id,omitempty"`
	Notes     string              `json:"notes,omitempty"`
	Timestamp time.Time           `json:"timestamp"`

	// Location is the capture taken when the action happened.
	Location *location.Result `json:"location,omitempty"`

	IsSynced     bool      `json:"is_synced"`
	SyncAttempts int       `json:"sync_attempts"`
	LastError    string    `json:"last_error,omitempty"`
	Unresolved   bool      `json:"unresolved"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

func (e Event) key() string {
	return fmt.Sprintf("%s%020d:%s", keyPrefix, e.Timestamp.UnixNano(), e.ID)
}

// Replayer applies a queued event to the authoritative state.
type Replayer interface {
	Replay(ctx context.Context, ev Event) error
}

// DrainResult summarizes one drain.
type DrainResult struct {
	// Synced counts events applied or found already applied.
	Synced int `json:"synced"`

	// Conflicts counts synced events that were no-ops against current state.
	Conflicts int `json:"conflicts"`

	// Failed counts events whose replay failed this time.
	Failed int `json:"failed"`

	// Unresolved counts events that reached the attempt limit this time.
	Unresolved int `json:"unresolved"`

	// Blocked counts events held back behind an earlier failure.
	Blocked int `json:"blocked"`
}

func (r *DrainResult) add(o DrainResult) {
	r.Synced += o.Synced
	r.Conflicts += o.Conflicts
	r.Failed += o.Failed
	r.Unresolved += o.Unresolved
	r.Blocked += o.Blocked
}

// QueueConfig holds configuration for the queue.
type QueueConfig struct {
	// Store is the local durable store (required)
	Store kv.Store

	// Replayer applies events during Drain (required for Drain)
	Replayer Replayer

	// MaxAttempts before an event is marked unresolved (default: 5)
	MaxAttempts int

	// Now returns the current time (default: time.Now)
	Now func() time.Time

	// LogFn is called for log messages (optional)
	LogFn func(level, msg string)
}

// Queue is a durable, per-member ordered queue of offline clock events.
type Queue struct {
	store       kv.Store
	replayer    Replayer
	maxAttempts int
	now         func() time.Time
	logFn       func(level, msg string)
	draining    atomic.Bool
}

// NewQueue creates a queue.
func NewQueue(cfg QueueConfig) *Queue {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Queue{
		store:       cfg.Store,
		replayer:    cfg.Replayer,
		maxAttempts: maxAttempts,
		now:         now,
		logFn:       cfg.LogFn,
	}
}

// Enqueue durably appends an event. The id and enqueue time are assigned if
// empty.
func (q *Queue) Enqueue(ctx context.Context, ev Event) (Event, error) {
	if !ev.Kind.Valid() || ev.MemberID == "" || ev.Timestamp.IsZero() {
		return Event{}, fmt.Errorf("%w: kind=%q member=%q", ErrInvalidEvent, ev.Kind, ev.MemberID)
	}
	if ev.Kind == timeclock.EventClockIn && ev.JobID == "" {
		return Event{}, fmt.Errorf("%w: clock_in needs a job", ErrInvalidEvent)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.EnqueuedAt.IsZero() {
		ev.EnqueuedAt = q.now().UTC()
	}
	ev.Timestamp = ev.Timestamp.UTC()

	if err := q.put(ctx, ev); err != nil {
		return Event{}, err
	}
	q.log("info", fmt.Sprintf("offline: queued %s for %s", ev.Kind, ev.MemberID))
	return ev, nil
}

// Pending returns every queued event, oldest first.
func (q *Queue) Pending(ctx context.Context) ([]Event, error) {
	raw, err := q.store.Scan(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("scan offline queue: %w", err)
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Event, 0, len(keys))
	for _, k := range keys {
		var ev Event
		if err := json.Unmarshal(raw[k], &ev); err != nil {
			q.log("warn", fmt.Sprintf("offline: skipping corrupt event %s: %v", k, err))
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// HasPending reports whether the member has queued events.
func (q *Queue) HasPending(ctx context.Context, memberID string) (bool, error) {
	events, err := q.Pending(ctx)
	if err != nil {
		return false, err
	}
	for _, ev := range events {
		if ev.MemberID == memberID {
			return true, nil
		}
	}
	return false, nil
}

// Unresolved returns the events held for an operator.
func (q *Queue) Unresolved(ctx context.Context) ([]Event, error) {
	events, err := q.Pending(ctx)
	if err != nil {
		return nil, err
	}
	out := events[:0]
	for _, ev := range events {
		if ev.Unresolved {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Retry clears an event's failure state so the next drain tries it again.
func (q *Queue) Retry(ctx context.Context, id string) (Event, error) {
	ev, err := q.find(ctx, id)
	if err != nil {
		return Event{}, err
	}
	ev.Unresolved = false
	ev.SyncAttempts = 0
	ev.LastError = ""
	if err := q.put(ctx, ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Discard removes an event without replaying it.
func (q *Queue) Discard(ctx context.Context, id string) error {
	ev, err := q.find(ctx, id)
	if err != nil {
		return err
	}
	if err := q.store.Write(ctx, kv.NewBatch().Delete(ev.key())); err != nil {
		return fmt.Errorf("discard %s: %w", id, err)
	}
	q.log("warn", fmt.Sprintf("offline: discarded %s for %s", ev.Kind, ev.MemberID))
	return nil
}

// Drain replays every queued event. Members are processed in parallel, each
// member's events oldest first. A failure stops that member's stream for this
// drain so later events never overtake it; an unresolved event keeps blocking
// until it is retried or discarded.
func (q *Queue) Drain(ctx context.Context) (DrainResult, error) {
	if q.replayer == nil {
		return DrainResult{}, errors.New("offline: no replayer configured")
	}
	if !q.draining.CompareAndSwap(false, true) {
		return DrainResult{}, ErrDrainInProgress
	}
	defer q.draining.Store(false)

	events, err := q.Pending(ctx)
	if err != nil {
		return DrainResult{}, err
	}

	var order []string
	byMember := make(map[string][]Event)
	for _, ev := range events {
		if _, ok := byMember[ev.MemberID]; !ok {
			order = append(order, ev.MemberID)
		}
		byMember[ev.MemberID] = append(byMember[ev.MemberID], ev)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result DrainResult
	)
	for _, member := range order {
		wg.Add(1)
		go func(stream []Event) {
			defer wg.Done()
			r := q.drainMember(ctx, stream)
			mu.Lock()
			result.add(r)
			mu.Unlock()
		}(byMember[member])
	}
	wg.Wait()

	if result.Synced > 0 || result.Failed > 0 {
		q.log("info", fmt.Sprintf("offline: drain synced %d (%d conflicts), failed %d, blocked %d",
			result.Synced, result.Conflicts, result.Failed, result.Blocked))
	}
	return result, ctx.Err()
}

func (q *Queue) drainMember(ctx context.Context, stream []Event) DrainResult {
	var r DrainResult
	for i, ev := range stream {
		if ctx.Err() != nil {
			return r
		}
		if ev.Unresolved {
			r.Blocked += len(stream) - i
			return r
		}

		err := q.replayer.Replay(ctx, ev)
		if err == nil || isSyncConflict(ev.Kind, err) {
			if err != nil {
				r.Conflicts++
				q.log("debug", fmt.Sprintf("offline: %s for %s already applied: %v", ev.Kind, ev.MemberID, err))
			}
			if derr := q.store.Write(ctx, kv.NewBatch().Delete(ev.key())); derr != nil {
				// Left queued; the replay is idempotent so the next drain
				// resolves it as a conflict.
				q.log("error", fmt.Sprintf("offline: remove synced %s: %v", ev.ID, derr))
			}
			r.Synced++
			continue
		}

		ev.SyncAttempts++
		ev.LastError = err.Error()
		r.Failed++
		if ev.SyncAttempts >= q.maxAttempts {
			ev.Unresolved = true
			r.Unresolved++
			q.log("error", fmt.Sprintf("offline: %s for %s unresolved after %d attempts: %v", ev.Kind, ev.MemberID, ev.SyncAttempts, err))
		} else {
			q.log("warn", fmt.Sprintf("offline: replay %s for %s failed (attempt %d): %v", ev.Kind, ev.MemberID, ev.SyncAttempts, err))
		}
		if perr := q.put(ctx, ev); perr != nil {
			q.log("error", fmt.Sprintf("offline: record failure for %s: %v", ev.ID, perr))
		}
		r.Blocked += len(stream) - i - 1
		return r
	}
	return r
}

// isSyncConflict reports whether a replay error means the action is already
// reflected in the authoritative state.
func isSyncConflict(kind timeclock.EventKind, err error) bool {
	if timeclock.KindOf(err) == timeclock.KindSyncConflict {
		return true
	}
	switch kind {
	case timeclock.EventClockIn:
		return errors.Is(err, timeclock.ErrAlreadyClockedIn)
	case timeclock.EventClockOut:
		return errors.Is(err, timeclock.ErrNoActiveSession)
	case timeclock.EventBreakStart:
		return errors.Is(err, timeclock.ErrAlreadyOnBreak)
	case timeclock.EventBreakEnd:
		return errors.Is(err, timeclock.ErrNoActiveBreak)
	}
	return false
}

func (q *Queue) find(ctx context.Context, id string) (Event, error) {
	events, err := q.Pending(ctx)
	if err != nil {
		return Event{}, err
	}
	for _, ev := range events {
		if ev.ID == id {
			return ev, nil
		}
	}
	return Event{}, fmt.Errorf("%w: %s", ErrEventNotFound, id)
}

func (q *Queue) put(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode offline event: %w", err)
	}
	if err := q.store.Set(ctx, ev.key(), data); err != nil {
		return fmt.Errorf("store offline event: %w", err)
	}
	return nil
}

func (q *Queue) log(level, msg string) {
	if q.logFn != nil {
		q.logFn(level, msg)
	}
}
