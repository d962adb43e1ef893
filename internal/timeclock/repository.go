package timeclock

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fieldcrew/crewclock/internal/kv"
)

// Key layout:
//
//	session:<memberID>                        open session
//	entry:<entryID>                           time entry
//	event:<memberID>:<unix nanos>:<eventID>   audit event
//	applied:<idempotency key>                 entry id of an applied request
const (
	sessionPrefix = "session:"
	entryPrefix   = "entry:"
	eventPrefix   = "event:"
	appliedPrefix = "applied:"
)

func sessionKey(memberID string) string { return sessionPrefix + memberID }
func entryKey(id string) string         { return entryPrefix + id }
func appliedKey(key string) string      { return appliedPrefix + key }

func eventKey(ev ClockEvent) string {
	return fmt.Sprintf("%s%s:%020d:%s", eventPrefix, ev.MemberID, ev.Timestamp.UnixNano(), ev.ID)
}

// repository maps engine records onto the KV store as JSON documents.
type repository struct {
	kv kv.Store
}

func (r *repository) session(ctx context.Context, memberID string) (*ActiveSession, error) {
	var s ActiveSession
	ok, err := r.get(ctx, sessionKey(memberID), &s)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

func (r *repository) entry(ctx context.Context, id string) (*TimeEntry, error) {
	var e TimeEntry
	ok, err := r.get(ctx, entryKey(id), &e)
	if err != nil || !ok {
		return nil, err
	}
	return &e, nil
}

func (r *repository) applied(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := r.kv.Get(ctx, appliedKey(key))
	if err != nil {
		return "", false, storageError("read idempotency key", err)
	}
	return string(v), ok, nil
}

func (r *repository) sessions(ctx context.Context) ([]ActiveSession, error) {
	raw, err := r.kv.Scan(ctx, sessionPrefix)
	if err != nil {
		return nil, storageError("scan sessions", err)
	}
	out := make([]ActiveSession, 0, len(raw))
	for k, v := range raw {
		var s ActiveSession
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, storageError("decode "+k, err)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClockInTime.Equal(out[j].ClockInTime) {
			return out[i].MemberID < out[j].MemberID
		}
		return out[i].ClockInTime.Before(out[j].ClockInTime)
	})
	return out, nil
}

func (r *repository) entries(ctx context.Context) ([]TimeEntry, error) {
	raw, err := r.kv.Scan(ctx, entryPrefix)
	if err != nil {
		return nil, storageError("scan entries", err)
	}
	out := make([]TimeEntry, 0, len(raw))
	for k, v := range raw {
		var e TimeEntry
		if err := json.Unmarshal(v, &e); err != nil {
			return nil, storageError("decode "+k, err)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClockInTime.Equal(out[j].ClockInTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].ClockInTime.Before(out[j].ClockInTime)
	})
	return out, nil
}

func (r *repository) events(ctx context.Context, memberID string) ([]ClockEvent, error) {
	prefix := eventPrefix
	if memberID != "" {
		prefix += memberID + ":"
	}
	raw, err := r.kv.Scan(ctx, prefix)
	if err != nil {
		return nil, storageError("scan events", err)
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]ClockEvent, 0, len(keys))
	for _, k := range keys {
		var ev ClockEvent
		if err := json.Unmarshal(raw[k], &ev); err != nil {
			return nil, storageError("decode "+k, err)
		}
		// "event:a:" is also a prefix of member "a:x"'s keys
		if memberID != "" && ev.MemberID != memberID {
			continue
		}
		out = append(out, ev)
	}
	if memberID == "" {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Timestamp.Before(out[j].Timestamp)
		})
	}
	return out, nil
}

func (r *repository) get(ctx context.Context, key string, dst any) (bool, error) {
	v, ok, err := r.kv.Get(ctx, key)
	if err != nil {
		return false, storageError("read "+key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return false, storageError("decode "+key, err)
	}
	return true, nil
}

func (r *repository) write(ctx context.Context, b *kv.Batch) error {
	if err := r.kv.Write(ctx, b); err != nil {
		return storageError("write batch", err)
	}
	return nil
}

// txn accumulates the records one operation changes so they land in a single
// batch.
type txn struct {
	batch *kv.Batch
	err   error
}

func newTxn() *txn {
	return &txn{batch: kv.NewBatch()}
}

func (t *txn) put(key string, v any) {
	if t.err != nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		t.err = fmt.Errorf("encode %s: %w", key, err)
		return
	}
	t.batch.Set(key, data)
}

func (t *txn) putSession(s ActiveSession) { t.put(sessionKey(s.MemberID), s) }
func (t *txn) putEntry(e TimeEntry)       { t.put(entryKey(e.ID), e) }
func (t *txn) putEvent(ev ClockEvent)     { t.put(eventKey(ev), ev) }

func (t *txn) deleteSession(memberID string) {
	t.batch.Delete(sessionKey(memberID))
}

func (t *txn) markApplied(key, entryID string) {
	if key == "" {
		return
	}
	t.batch.Set(appliedKey(key), []byte(entryID))
}

// EntryFilter narrows an entry listing. Zero fields match everything.
type EntryFilter struct {
	MemberID string
	JobID    string
	Statuses []EntryStatus

	// From and To bound ClockInTime: From <= t < To.
	From time.Time
	To   time.Time
}

// Match reports whether e passes the filter.
func (f EntryFilter) Match(e TimeEntry) bool {
	if f.MemberID != "" && e.MemberID != f.MemberID {
		return false
	}
	if f.JobID != "" && e.JobID != f.JobID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if e.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && e.ClockInTime.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.ClockInTime.Before(f.To) {
		return false
	}
	return true
}

// ParseStatuses parses a comma-separated status list.
func ParseStatuses(s string) ([]EntryStatus, error) {
	if s == "" {
		return nil, nil
	}
	var out []EntryStatus
	for _, part := range strings.Split(s, ",") {
		st := EntryStatus(strings.TrimSpace(part))
		if !st.Valid() {
			return nil, ErrInvalidRequest.with("unknown status %q", st)
		}
		out = append(out, st)
	}
	return out, nil
}
