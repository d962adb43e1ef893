package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fieldcrew/crewclock/internal/offline"
	"github.com/fieldcrew/crewclock/internal/report"
	"github.com/fieldcrew/crewclock/internal/settings"
	"github.com/fieldcrew/crewclock/internal/timeclock"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor maps an engine error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	var fe *settings.FieldError
	switch {
	case errors.As(err, &fe):
		return http.StatusBadRequest, "invalid_settings"
	case errors.Is(err, report.ErrInvalidRange):
		return http.StatusBadRequest, "invalid_range"
	case errors.Is(err, offline.ErrEventNotFound):
		return http.StatusNotFound, "event_not_found"
	case errors.Is(err, offline.ErrDrainInProgress):
		return http.StatusConflict, "drain_in_progress"
	}

	code := timeclock.CodeOf(err)
	switch timeclock.KindOf(err) {
	case timeclock.KindValidation:
		return http.StatusBadRequest, code
	case timeclock.KindConflict, timeclock.KindSyncConflict:
		return http.StatusConflict, code
	case timeclock.KindNotFound:
		return http.StatusNotFound, code
	case timeclock.KindPolicyDenied:
		return http.StatusForbidden, code
	case timeclock.KindStorage:
		return http.StatusServiceUnavailable, code
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	switch {
	case status == http.StatusServiceUnavailable:
		s.log.Warnw("storage unavailable", "path", r.URL.Path, "error", err)
		msg = "storage unavailable, please retry"
	case status >= 500:
		s.log.Errorw("request failed", "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSONError(w, status, code, msg)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
