package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fieldcrew/crewclock/internal/location"
	"github.com/fieldcrew/crewclock/internal/offline"
	"github.com/fieldcrew/crewclock/internal/report"
	"github.com/fieldcrew/crewclock/internal/settings"
	"github.com/fieldcrew/crewclock/internal/timeclock"
)

// clockRequest is the body of the clock and break endpoints. The client
// reports its own position; LocationError explains a failed capture.
type clockRequest struct {
	MemberID      string        `json:"member_id,omitempty"`
	JobID         string        `json:"job_id,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	Location      *location.Fix `json:"location,omitempty"`
	LocationError string        `json:"location_error,omitempty"`
}

func (c clockRequest) capture() *location.Result {
	var r location.Result
	switch {
	case c.Location != nil:
		r = location.Succeeded(*c.Location)
	case c.LocationError != "":
		r = location.Failed(c.LocationError)
	default:
		r = location.Failed("no location supplied")
	}
	return &r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads an optional JSON body.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// subject resolves which member a request acts on: crew act for themselves,
// admins may name anyone.
func (s *Server) subject(w http.ResponseWriter, r *http.Request, requested string) (string, bool) {
	c := ClaimsFrom(r.Context())
	if requested == "" || requested == c.MemberID {
		return c.MemberID, true
	}
	if !c.IsAdmin() {
		writeJSONError(w, http.StatusForbidden, "forbidden", "cannot act for another member")
		return "", false
	}
	return requested, true
}

func (s *Server) clockAction(w http.ResponseWriter, r *http.Request, kind timeclock.EventKind) {
	var req clockRequest
	if err := decode(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	member, ok := s.subject(w, r, req.MemberID)
	if !ok {
		return
	}

	var (
		out offline.Outcome
		err error
	)
	switch kind {
	case timeclock.EventClockIn:
		out, err = s.gateway.ClockIn(r.Context(), member, req.JobID, req.Notes, req.capture())
	case timeclock.EventClockOut:
		out, err = s.gateway.ClockOut(r.Context(), member, req.Notes, req.capture())
	case timeclock.EventBreakStart:
		out, err = s.gateway.StartBreak(r.Context(), member)
	case timeclock.EventBreakEnd:
		out, err = s.gateway.EndBreak(r.Context(), member)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if out.Queued {
		status = http.StatusAccepted
	}
	writeJSON(w, status, out)
}

func (s *Server) clockIn(w http.ResponseWriter, r *http.Request) {
	s.clockAction(w, r, timeclock.EventClockIn)
}

func (s *Server) clockOut(w http.ResponseWriter, r *http.Request) {
	s.clockAction(w, r, timeclock.EventClockOut)
}

func (s *Server) startBreak(w http.ResponseWriter, r *http.Request) {
	s.clockAction(w, r, timeclock.EventBreakStart)
}

func (s *Server) endBreak(w http.ResponseWriter, r *http.Request) {
	s.clockAction(w, r, timeclock.EventBreakEnd)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	member, ok := s.subject(w, r, chi.URLParam(r, "memberID"))
	if !ok {
		return
	}
	session, err := s.engine.ActiveSession(r.Context(), member)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.engine.ActiveSessions(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	member, ok := s.subject(w, r, q.Get("member_id"))
	if !ok {
		return
	}
	// Admins list everyone unless they ask for a member.
	if ClaimsFrom(r.Context()).IsAdmin() && q.Get("member_id") == "" {
		member = ""
	}

	statuses, err := timeclock.ParseStatuses(q.Get("status"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f := timeclock.EntryFilter{MemberID: member, JobID: q.Get("job_id"), Statuses: statuses}
	if f.From, err = parseTime(q.Get("from")); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if f.To, err = parseTime(q.Get("to")); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	entries, err := s.engine.Entries(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.engine.Entry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c := ClaimsFrom(r.Context())
	if !c.IsAdmin() && e.MemberID != c.MemberID {
		// Not found rather than forbidden, so ids cannot be probed.
		s.writeError(w, r, timeclock.ErrEntryNotFound)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) editEntry(w http.ResponseWriter, r *http.Request) {
	var p timeclock.EntryPatch
	if err := decode(r, &p); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	e, err := s.engine.EditEntry(r.Context(), chi.URLParam(r, "id"), p, ClaimsFrom(r.Context()).MemberID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) approveEntry(w http.ResponseWriter, r *http.Request) {
	e, err := s.engine.Approve(r.Context(), chi.URLParam(r, "id"), ClaimsFrom(r.Context()).MemberID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) rejectEntry(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decode(r, &body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	e, err := s.engine.Reject(r.Context(), chi.URLParam(r, "id"), ClaimsFrom(r.Context()).MemberID, body.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) adminClockOut(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MemberID string `json:"member_id"`
		Reason   string `json:"reason"`
	}
	if err := decode(r, &body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	e, err := s.engine.AdminClockOut(r.Context(), body.MemberID, ClaimsFrom(r.Context()).MemberID, body.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) laborReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "reports are not configured")
		return
	}
	q := r.URL.Query()
	start, err := parseTime(q.Get("start"))
	if err != nil || start.IsZero() {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "start is required (RFC 3339 or YYYY-MM-DD)")
		return
	}
	end, err := parseTime(q.Get("end"))
	if err != nil || end.IsZero() {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "end is required (RFC 3339 or YYYY-MM-DD)")
		return
	}

	rep, err := s.reports.Generate(r.Context(), start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	name := fmt.Sprintf("labor_%s_%s", start.Format("20060102"), end.Format("20060102"))
	switch format := q.Get("format"); format {
	case "", "json":
		writeJSON(w, http.StatusOK, rep)
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
		if err := report.WriteCSV(w, rep); err != nil {
			s.log.Errorw("write csv report", "error", err)
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".xlsx"))
		if err := report.WriteXLSX(w, rep); err != nil {
			s.log.Errorw("write xlsx report", "error", err)
		}
	default:
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "format must be json, csv or xlsx")
	}
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, settings.Defaults())
		return
	}
	writeJSON(w, http.StatusOK, s.store.Get())
}

func (s *Server) patchSettings(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "settings store is not configured")
		return
	}
	var p settings.Patch
	if err := decode(r, &p); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if p.IsEmpty() {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "no settings to change")
		return
	}
	next, err := s.store.Update(r.Context(), p, ClaimsFrom(r.Context()).MemberID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) requireQueue(w http.ResponseWriter) bool {
	if s.queue == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "offline queue is not configured")
		return false
	}
	return true
}

func (s *Server) drain(w http.ResponseWriter, r *http.Request) {
	if !s.requireQueue(w) {
		return
	}
	res, err := s.queue.Drain(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) unresolved(w http.ResponseWriter, r *http.Request) {
	if !s.requireQueue(w) {
		return
	}
	events, err := s.queue.Unresolved(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) retryEvent(w http.ResponseWriter, r *http.Request) {
	if !s.requireQueue(w) {
		return
	}
	ev, err := s.queue.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) discardEvent(w http.ResponseWriter, r *http.Request) {
	if !s.requireQueue(w) {
		return
	}
	if err := s.queue.Discard(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseTime accepts RFC 3339 or a bare date (midnight UTC). Empty is zero.
func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use RFC 3339 or YYYY-MM-DD", v)
	}
	return t, nil
}
