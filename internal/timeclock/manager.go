package timeclock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldcrew/crewclock/internal/directory"
	"github.com/fieldcrew/crewclock/internal/kv"
	"github.com/fieldcrew/crewclock/internal/location"
	"github.com/fieldcrew/crewclock/internal/settings"
)

// SettingsSource provides the current settings snapshot.
type SettingsSource interface {
	Get() settings.Settings
}

// CrewDirectory looks up crew members.
type CrewDirectory interface {
	FindMember(id string) (directory.Member, bool)
}

// JobDirectory looks up job master data.
type JobDirectory interface {
	JobName(id string) (string, bool)
}

// AssignmentResolver decides which jobs a member may clock into.
type AssignmentResolver interface {
	CanClockInto(memberID, jobID string) error
}

// Observer receives engine activity, typically to update metrics.
type Observer interface {
	ClockEvent(kind string, source string)
	GPSDenied(kind string)
	EntryFinalized(hours, cost float64)
}

// Config holds the manager's collaborators.
type Config struct {
	// Store holds sessions, entries and audit events (required)
	Store kv.Store

	// Settings supplies the policy snapshot (required)
	Settings SettingsSource

	// Crews resolves member names and rates (required)
	Crews CrewDirectory

	// Jobs resolves job names (optional)
	Jobs JobDirectory

	// Assignments restricts which jobs a member may clock into (optional)
	Assignments AssignmentResolver

	// Location captures a fix when a request carries none (optional)
	Location location.Provider

	// GPSTimeout bounds each capture (default: location.DefaultTimeout)
	GPSTimeout time.Duration

	// Now returns the current time (default: time.Now)
	Now func() time.Time

	// NewID generates entry and event ids (default: uuid.NewString)
	NewID func() string

	// Observer is notified of engine activity (optional)
	Observer Observer

	// LogFn is called for log messages (optional)
	LogFn func(level, msg string)
}

// Manager owns the clock session state machine. Mutations are serialized per
// member; different members proceed in parallel.
type Manager struct {
	repo        repository
	settings    SettingsSource
	crews       CrewDirectory
	jobs        JobDirectory
	assignments AssignmentResolver
	provider    location.Provider
	gpsTimeout  time.Duration
	now         func() time.Time
	newID       func() string
	observer    Observer
	logFn       func(level, msg string)
	locks       *keyLock
}

// NewManager creates a manager from cfg.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("timeclock: store is required")
	}
	if cfg.Settings == nil {
		return nil, errors.New("timeclock: settings source is required")
	}
	if cfg.Crews == nil {
		return nil, errors.New("timeclock: crew directory is required")
	}

	m := &Manager{
		repo:        repository{kv: cfg.Store},
		settings:    cfg.Settings,
		crews:       cfg.Crews,
		jobs:        cfg.Jobs,
		assignments: cfg.Assignments,
		provider:    cfg.Location,
		gpsTimeout:  cfg.GPSTimeout,
		now:         cfg.Now,
		newID:       cfg.NewID,
		observer:    cfg.Observer,
		logFn:       cfg.LogFn,
		locks:       newKeyLock(),
	}
	if m.gpsTimeout == 0 {
		m.gpsTimeout = location.DefaultTimeout
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	return m, nil
}

// ClockInRequest starts a session.
type ClockInRequest struct {
	MemberID string
	JobID    string
	Notes    string

	// At is the clock-in time (default: now)
	At time.Time

	// Capture is a location result taken by the caller. When nil the
	// manager captures through its provider.
	Capture *location.Result

	// IdempotencyKey makes replays of the same request a no-op (optional)
	IdempotencyKey string

	Source Source
	Actor  string
}

// ClockOutRequest ends a session.
type ClockOutRequest struct {
	MemberID       string
	Notes          string
	At             time.Time
	Capture        *location.Result
	IdempotencyKey string
	Source         Source
	Actor          string
}

// BreakRequest starts or ends a break.
type BreakRequest struct {
	MemberID       string
	At             time.Time
	IdempotencyKey string
	Source         Source
	Actor          string
}

// EntryPatch is an admin correction. Nil fields are unchanged.
type EntryPatch struct {
	ClockInTime  *time.Time `json:"clock_in_time,omitempty"`
	ClockOutTime *time.Time `json:"clock_out_time,omitempty"`
	JobID        *string    `json:"job_id,omitempty"`
	Notes        *string    `json:"notes,omitempty"`
	AdminNotes   *string    `json:"admin_notes,omitempty"`
}

func (p EntryPatch) changesTime() bool {
	return p.ClockInTime != nil || p.ClockOutTime != nil
}

// ErrAlreadyApplied is returned when a request with a previously seen
// idempotency key is replayed.
var ErrAlreadyApplied = newError(KindSyncConflict, "already_applied", "request already applied")

// ClockIn opens a session and an active entry for the member.
func (m *Manager) ClockIn(ctx context.Context, req ClockInRequest) (TimeEntry, error) {
	if req.MemberID == "" || req.JobID == "" {
		return TimeEntry{}, ErrInvalidRequest.with("member and job are required")
	}
	member, ok := m.crews.FindMember(req.MemberID)
	if !ok {
		return TimeEntry{}, ErrMemberNotFound.with("%s", req.MemberID)
	}
	if m.assignments != nil {
		if err := m.assignments.CanClockInto(req.MemberID, req.JobID); err != nil {
			return TimeEntry{}, jobNotAssigned(err)
		}
	}

	unlock, err := m.locks.lock(ctx, req.MemberID)
	if err != nil {
		return TimeEntry{}, err
	}
	defer unlock()

	if err := m.checkApplied(ctx, req.IdempotencyKey); err != nil {
		return TimeEntry{}, err
	}
	existing, err := m.repo.session(ctx, req.MemberID)
	if err != nil {
		return TimeEntry{}, err
	}
	if existing != nil {
		return TimeEntry{}, ErrAlreadyClockedIn.with("since %s on job %s", existing.ClockInTime.Format(time.RFC3339), existing.JobID)
	}

	s := m.settings.Get()
	decision := EvaluateGPS(EventClockIn, m.capture(ctx, req.Capture), s)
	if !decision.Allow {
		m.observeGPSDenied(EventClockIn)
		return TimeEntry{}, gpsDenied(decision)
	}
	if decision.Reason != "" {
		m.log("warn", fmt.Sprintf("clock-in for %s allowed without location: %s", req.MemberID, decision.Reason))
	}

	now := m.now().UTC()
	at := req.At
	if at.IsZero() {
		at = now
	}
	at = at.UTC()

	entry := TimeEntry{
		ID:              m.newID(),
		MemberID:        req.MemberID,
		MemberName:      member.Name,
		JobID:           req.JobID,
		JobName:         m.jobName(req.JobID),
		HourlyRate:      member.HourlyRate,
		ClockInTime:     at,
		ClockInLocation: decision.Location,
		Notes:           req.Notes,
		Breaks:          []BreakRecord{},
		Status:          StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	session := ActiveSession{
		MemberID:        req.MemberID,
		MemberName:      member.Name,
		JobID:           req.JobID,
		EntryID:         entry.ID,
		ClockInTime:     at,
		ClockInLocation: decision.Location,
	}

	t := newTxn()
	t.putSession(session)
	t.putEntry(entry)
	t.putEvent(m.event(EventClockIn, session, at, decision.Location, req.Source, req.Actor, req.Notes))
	t.markApplied(req.IdempotencyKey, entry.ID)
	if err := m.commit(ctx, t); err != nil {
		return TimeEntry{}, err
	}

	m.observeEvent(EventClockIn, req.Source)
	m.log("info", fmt.Sprintf("%s clocked in to %s", req.MemberID, req.JobID))
	return entry, nil
}

// ClockOut closes the member's session, finalizing and costing the entry.
func (m *Manager) ClockOut(ctx context.Context, req ClockOutRequest) (TimeEntry, error) {
	if req.MemberID == "" {
		return TimeEntry{}, ErrInvalidRequest.with("member is required")
	}

	unlock, err := m.locks.lock(ctx, req.MemberID)
	if err != nil {
		return TimeEntry{}, err
	}
	defer unlock()

	if err := m.checkApplied(ctx, req.IdempotencyKey); err != nil {
		return TimeEntry{}, err
	}
	return m.clockOutLocked(ctx, req, nil)
}

type adminStamp struct {
	actor  string
	reason string
}

// AdminClockOut closes a member's session on their behalf. It shares the
// clock-out path with ClockOut except for the GPS check: the clock-out
// location requirement is never evaluated and no location is recorded, since
// the admin is not at the member's site. The actor and reason land in the
// entry's admin notes.
func (m *Manager) AdminClockOut(ctx context.Context, memberID, actor, reason string) (TimeEntry, error) {
	if memberID == "" || actor == "" {
		return TimeEntry{}, ErrInvalidRequest.with("member and actor are required")
	}

	unlock, err := m.locks.lock(ctx, memberID)
	if err != nil {
		return TimeEntry{}, err
	}
	defer unlock()

	req := ClockOutRequest{MemberID: memberID, Source: SourceOnline, Actor: actor}
	return m.clockOutLocked(ctx, req, &adminStamp{actor: actor, reason: reason})
}

func (m *Manager) clockOutLocked(ctx context.Context, req ClockOutRequest, admin *adminStamp) (TimeEntry, error) {
	session, entry, err := m.openSession(ctx, req.MemberID)
	if err != nil {
		return TimeEntry{}, err
	}

	now := m.now().UTC()
	at := req.At
	if at.IsZero() {
		at = now
	}
	at = at.UTC()
	if !at.After(session.ClockInTime) {
		return TimeEntry{}, ErrInvalidTime.with("clock-out must be after clock-in at %s", session.ClockInTime.Format(time.RFC3339))
	}
	if session.CurrentBreak != nil && at.Before(session.CurrentBreak.StartTime) {
		return TimeEntry{}, ErrInvalidTime.with("clock-out is before the open break started")
	}

	s := m.settings.Get()
	var loc *location.Fix
	if admin == nil {
		decision := EvaluateGPS(EventClockOut, m.capture(ctx, req.Capture), s)
		if !decision.Allow {
			m.observeGPSDenied(EventClockOut)
			return TimeEntry{}, gpsDenied(decision)
		}
		if decision.Reason != "" {
			m.log("warn", fmt.Sprintf("clock-out for %s allowed without location: %s", req.MemberID, decision.Reason))
		}
		loc = decision.Location
	}

	t := newTxn()
	if session.CurrentBreak != nil {
		if _, err := StopBreak(session, entry, at); err != nil {
			return TimeEntry{}, err
		}
		t.putEvent(m.event(EventBreakEnd, *session, at, nil, req.Source, req.Actor, "closed at clock-out"))
	}

	entry.ClockOutTime = timePtr(at)
	entry.ClockOutLocation = loc
	if req.Notes != "" {
		entry.Notes = joinNotes(entry.Notes, req.Notes)
	}
	cost, err := ComputeCost(*entry, s)
	if err != nil {
		return TimeEntry{}, err
	}
	entry.Cost = cost
	entry.SettingsVersion = s.UpdatedAt
	entry.Status = StatusCompleted
	entry.UpdatedAt = now
	if admin != nil {
		entry.IsEdited = true
		entry.EditedBy = admin.actor
		entry.EditedAt = timePtr(now)
		entry.AdminNotes = admin.reason
	}

	t.deleteSession(req.MemberID)
	t.putEntry(*entry)
	t.putEvent(m.event(EventClockOut, *session, at, loc, req.Source, req.Actor, req.Notes))
	t.markApplied(req.IdempotencyKey, entry.ID)
	if err := m.commit(ctx, t); err != nil {
		return TimeEntry{}, err
	}

	m.observeEvent(EventClockOut, req.Source)
	if m.observer != nil {
		m.observer.EntryFinalized(entry.TotalHours, entry.TotalCost)
	}
	m.log("info", fmt.Sprintf("%s clocked out of %s: %.2fh, $%.2f", req.MemberID, entry.JobID, entry.TotalHours, entry.TotalCost))
	return *entry, nil
}

// StartBreak opens a break in the member's session.
func (m *Manager) StartBreak(ctx context.Context, req BreakRequest) (ActiveSession, error) {
	if req.MemberID == "" {
		return ActiveSession{}, ErrInvalidRequest.with("member is required")
	}
	unlock, err := m.locks.lock(ctx, req.MemberID)
	if err != nil {
		return ActiveSession{}, err
	}
	defer unlock()

	if err := m.checkApplied(ctx, req.IdempotencyKey); err != nil {
		return ActiveSession{}, err
	}
	session, entry, err := m.openSession(ctx, req.MemberID)
	if err != nil {
		return ActiveSession{}, err
	}

	at := m.at(req.At)
	if at.Before(entry.lastBreakEnd()) {
		return ActiveSession{}, ErrInvalidTime.with("break cannot start before the previous break ended")
	}
	if err := StartBreak(session, at); err != nil {
		return ActiveSession{}, err
	}

	t := newTxn()
	t.putSession(*session)
	t.putEvent(m.event(EventBreakStart, *session, at, nil, req.Source, req.Actor, ""))
	t.markApplied(req.IdempotencyKey, entry.ID)
	if err := m.commit(ctx, t); err != nil {
		return ActiveSession{}, err
	}
	m.observeEvent(EventBreakStart, req.Source)
	return *session, nil
}

// EndBreak closes the open break and records it on the entry.
func (m *Manager) EndBreak(ctx context.Context, req BreakRequest) (TimeEntry, error) {
	if req.MemberID == "" {
		return TimeEntry{}, ErrInvalidRequest.with("member is required")
	}
	unlock, err := m.locks.lock(ctx, req.MemberID)
	if err != nil {
		return TimeEntry{}, err
	}
	defer unlock()

	if err := m.checkApplied(ctx, req.IdempotencyKey); err != nil {
		return TimeEntry{}, err
	}
	session, entry, err := m.openSession(ctx, req.MemberID)
	if err != nil {
		return TimeEntry{}, err
	}

	at := m.at(req.At)
	if _, err := StopBreak(session, entry, at); err != nil {
		return TimeEntry{}, err
	}
	entry.UpdatedAt = m.now().UTC()

	t := newTxn()
	t.putSession(*session)
	t.putEntry(*entry)
	t.putEvent(m.event(EventBreakEnd, *session, at, nil, req.Source, req.Actor, ""))
	t.markApplied(req.IdempotencyKey, entry.ID)
	if err := m.commit(ctx, t); err != nil {
		return TimeEntry{}, err
	}
	m.observeEvent(EventBreakEnd, req.Source)
	return *entry, nil
}

// EditEntry applies an admin correction. Time changes on a finalized entry
// recompute its cost and send it back for approval.
func (m *Manager) EditEntry(ctx context.Context, entryID string, p EntryPatch, actor string) (TimeEntry, error) {
	if actor == "" {
		return TimeEntry{}, ErrInvalidRequest.with("actor is required")
	}
	return m.mutateEntry(ctx, entryID, func(t *txn, e *TimeEntry, now time.Time) error {
		if p.JobID != nil && *p.JobID != e.JobID {
			if *p.JobID == "" {
				return ErrInvalidRequest.with("job cannot be empty")
			}
			if m.assignments != nil {
				if err := m.assignments.CanClockInto(e.MemberID, *p.JobID); err != nil {
					return jobNotAssigned(err)
				}
			}
			e.JobID = *p.JobID
			e.JobName = m.jobName(*p.JobID)
		}
		if p.Notes != nil {
			e.Notes = *p.Notes
		}
		if p.AdminNotes != nil {
			e.AdminNotes = *p.AdminNotes
		}

		switch e.Status {
		case StatusActive:
			if err := m.editActive(ctx, t, e, p); err != nil {
				return err
			}
		case StatusCompleted, StatusApproved, StatusRejected, StatusEdited:
			if p.ClockInTime != nil {
				e.ClockInTime = p.ClockInTime.UTC()
			}
			if p.ClockOutTime != nil {
				e.ClockOutTime = timePtr(p.ClockOutTime.UTC())
			}
			if p.changesTime() {
				if err := breaksWithin(*e); err != nil {
					return err
				}
				s := m.settings.Get()
				cost, err := ComputeCost(*e, s)
				if err != nil {
					return err
				}
				e.Cost = cost
				e.SettingsVersion = s.UpdatedAt
			}
			e.Status = StatusEdited
			e.ApprovedBy, e.ApprovedAt = "", nil
			e.RejectedBy, e.RejectedAt, e.RejectionReason = "", nil, ""
		default:
			return ErrInvalidTransition.with("unknown status %q", e.Status)
		}

		e.IsEdited = true
		e.EditedBy = actor
		e.EditedAt = timePtr(now)
		return nil
	})
}

// editActive applies a patch to an entry whose session is still open. The
// session is kept in step so the eventual clock-out sees the corrected values.
func (m *Manager) editActive(ctx context.Context, t *txn, e *TimeEntry, p EntryPatch) error {
	if p.ClockOutTime != nil {
		return ErrInvalidRequest.with("entry is still active; clock out instead of setting a clock-out time")
	}
	session, err := m.repo.session(ctx, e.MemberID)
	if err != nil {
		return err
	}
	if session == nil || session.EntryID != e.ID {
		return ErrNoActiveSession.with("entry %s has no open session", e.ID)
	}

	if p.ClockInTime != nil {
		in := p.ClockInTime.UTC()
		if in.After(m.now()) {
			return ErrInvalidTime.with("clock-in cannot be in the future")
		}
		if len(e.Breaks) > 0 && in.After(e.Breaks[0].StartTime) {
			return ErrInvalidTime.with("clock-in must precede the first break")
		}
		if session.CurrentBreak != nil && in.After(session.CurrentBreak.StartTime) {
			return ErrInvalidTime.with("clock-in must precede the open break")
		}
		e.ClockInTime = in
		session.ClockInTime = in
	}
	session.JobID = e.JobID
	t.putSession(*session)
	return nil
}

// Approve marks a completed or edited entry approved.
func (m *Manager) Approve(ctx context.Context, entryID, actor string) (TimeEntry, error) {
	if actor == "" {
		return TimeEntry{}, ErrInvalidRequest.with("actor is required")
	}
	return m.mutateEntry(ctx, entryID, func(_ *txn, e *TimeEntry, now time.Time) error {
		if !e.Status.Reviewable() {
			return ErrInvalidTransition.with("cannot approve a %s entry", e.Status)
		}
		e.Status = StatusApproved
		e.ApprovedBy = actor
		e.ApprovedAt = timePtr(now)
		return nil
	})
}

// Reject marks a completed or edited entry rejected. A reason is required.
func (m *Manager) Reject(ctx context.Context, entryID, actor, reason string) (TimeEntry, error) {
	if actor == "" {
		return TimeEntry{}, ErrInvalidRequest.with("actor is required")
	}
	if strings.TrimSpace(reason) == "" {
		return TimeEntry{}, ErrInvalidRequest.with("a rejection reason is required")
	}
	return m.mutateEntry(ctx, entryID, func(_ *txn, e *TimeEntry, now time.Time) error {
		if !e.Status.Reviewable() {
			return ErrInvalidTransition.with("cannot reject a %s entry", e.Status)
		}
		e.Status = StatusRejected
		e.RejectedBy = actor
		e.RejectedAt = timePtr(now)
		e.RejectionReason = reason
		return nil
	})
}

// mutateEntry loads an entry under its member's lock, applies fn and writes
// the entry together with anything fn added to the transaction.
func (m *Manager) mutateEntry(ctx context.Context, entryID string, fn func(t *txn, e *TimeEntry, now time.Time) error) (TimeEntry, error) {
	peek, err := m.repo.entry(ctx, entryID)
	if err != nil {
		return TimeEntry{}, err
	}
	if peek == nil {
		return TimeEntry{}, ErrEntryNotFound.with("%s", entryID)
	}

	unlock, err := m.locks.lock(ctx, peek.MemberID)
	if err != nil {
		return TimeEntry{}, err
	}
	defer unlock()

	// Reload under the lock.
	e, err := m.repo.entry(ctx, entryID)
	if err != nil {
		return TimeEntry{}, err
	}
	if e == nil {
		return TimeEntry{}, ErrEntryNotFound.with("%s", entryID)
	}

	now := m.now().UTC()
	t := newTxn()
	if err := fn(t, e, now); err != nil {
		return TimeEntry{}, err
	}
	e.UpdatedAt = now
	t.putEntry(*e)
	if err := m.commit(ctx, t); err != nil {
		return TimeEntry{}, err
	}
	return *e, nil
}

// ActiveSession returns the member's open session.
func (m *Manager) ActiveSession(ctx context.Context, memberID string) (ActiveSession, error) {
	s, err := m.repo.session(ctx, memberID)
	if err != nil {
		return ActiveSession{}, err
	}
	if s == nil {
		return ActiveSession{}, ErrNoActiveSession.with("%s", memberID)
	}
	return *s, nil
}

// ActiveSessions returns every open session, oldest first.
func (m *Manager) ActiveSessions(ctx context.Context) ([]ActiveSession, error) {
	return m.repo.sessions(ctx)
}

// Entry returns one time entry.
func (m *Manager) Entry(ctx context.Context, id string) (TimeEntry, error) {
	e, err := m.repo.entry(ctx, id)
	if err != nil {
		return TimeEntry{}, err
	}
	if e == nil {
		return TimeEntry{}, ErrEntryNotFound.with("%s", id)
	}
	return *e, nil
}

// Entries returns the entries matching f, ordered by clock-in time.
func (m *Manager) Entries(ctx context.Context, f EntryFilter) ([]TimeEntry, error) {
	all, err := m.repo.entries(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Events returns the audit trail for a member, or for everyone when memberID
// is empty.
func (m *Manager) Events(ctx context.Context, memberID string) ([]ClockEvent, error) {
	return m.repo.events(ctx, memberID)
}

// openSession loads the member's session and its entry.
func (m *Manager) openSession(ctx context.Context, memberID string) (*ActiveSession, *TimeEntry, error) {
	session, err := m.repo.session(ctx, memberID)
	if err != nil {
		return nil, nil, err
	}
	if session == nil {
		return nil, nil, ErrNoActiveSession.with("%s", memberID)
	}
	entry, err := m.repo.entry(ctx, session.EntryID)
	if err != nil {
		return nil, nil, err
	}
	if entry == nil {
		return nil, nil, ErrEntryNotFound.with("session for %s points at missing entry %s", memberID, session.EntryID)
	}
	return session, entry, nil
}

func (m *Manager) checkApplied(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	entryID, ok, err := m.repo.applied(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyApplied.with("%s (entry %s)", key, entryID)
	}
	return nil
}

func (m *Manager) capture(ctx context.Context, given *location.Result) location.Result {
	if given != nil {
		return *given
	}
	if m.provider == nil {
		return location.Failed("no location provider configured")
	}
	return location.Capture(ctx, m.provider, m.gpsTimeout)
}

func (m *Manager) commit(ctx context.Context, t *txn) error {
	if t.err != nil {
		return storageError("encode records", t.err)
	}
	if err := m.repo.write(ctx, t.batch); err != nil {
		m.log("error", err.Error())
		return err
	}
	return nil
}

func (m *Manager) event(kind EventKind, s ActiveSession, at time.Time, loc *location.Fix, src Source, actor, notes string) ClockEvent {
	if src == "" {
		src = SourceOnline
	}
	return ClockEvent{
		ID:        m.newID(),
		Kind:      kind,
		MemberID:  s.MemberID,
		JobID:     s.JobID,
		EntryID:   s.EntryID,
		Timestamp: at,
		Location:  loc,
		Source:    src,
		Actor:     actor,
		Notes:     notes,
	}
}

func (m *Manager) at(t time.Time) time.Time {
	if t.IsZero() {
		return m.now().UTC()
	}
	return t.UTC()
}

func (m *Manager) jobName(id string) string {
	if m.jobs == nil {
		return ""
	}
	name, _ := m.jobs.JobName(id)
	return name
}

func (m *Manager) observeEvent(kind EventKind, src Source) {
	if m.observer == nil {
		return
	}
	if src == "" {
		src = SourceOnline
	}
	m.observer.ClockEvent(string(kind), string(src))
}

func (m *Manager) observeGPSDenied(kind EventKind) {
	if m.observer != nil {
		m.observer.GPSDenied(string(kind))
	}
}

func (m *Manager) log(level, msg string) {
	if m.logFn != nil {
		m.logFn(level, msg)
	}
}

// breaksWithin checks that every break lies inside the entry's clock span.
func breaksWithin(e TimeEntry) error {
	for _, b := range e.Breaks {
		if b.StartTime.Before(e.ClockInTime) {
			return ErrInvalidTime.with("break at %s starts before clock-in", b.StartTime.Format(time.RFC3339))
		}
		if e.ClockOutTime != nil && b.EndTime != nil && b.EndTime.After(*e.ClockOutTime) {
			return ErrInvalidTime.with("break at %s ends after clock-out", b.StartTime.Format(time.RFC3339))
		}
	}
	return nil
}

func joinNotes(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n" + b
}
