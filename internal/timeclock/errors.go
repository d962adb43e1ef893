package timeclock

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error so callers can branch without string
// matching.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindNotFound     Kind = "not_found"
	KindPolicyDenied Kind = "policy_denied"
	KindStorage      Kind = "storage"
	KindSyncConflict Kind = "sync_conflict"
)

// Error is the typed error returned for every expected condition.
// Two Errors match under errors.Is when their codes match, so the sentinels
// below can be compared against errors that carry per-call detail.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// with returns a copy of e carrying extra detail in its message.
func (e *Error) with(format string, args ...any) *Error {
	c := *e
	c.Message = e.Message + ": " + fmt.Sprintf(format, args...)
	return &c
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Conflict errors
var (
	// ErrAlreadyClockedIn indicates the member already has an open session
	ErrAlreadyClockedIn = newError(KindConflict, "already_clocked_in", "already clocked in")

	// ErrAlreadyOnBreak indicates a break is already open on the session
	ErrAlreadyOnBreak = newError(KindConflict, "already_on_break", "already on break")
)

// Not found errors
var (
	// ErrNoActiveSession indicates the member is not clocked in
	ErrNoActiveSession = newError(KindNotFound, "no_active_session", "no active session")

	// ErrNoActiveBreak indicates there is no open break to end
	ErrNoActiveBreak = newError(KindNotFound, "no_active_break", "no active break")

	// ErrEntryNotFound indicates the time entry does not exist
	ErrEntryNotFound = newError(KindNotFound, "entry_not_found", "time entry not found")
)

// Policy errors
var (
	// ErrGPSRequired indicates the GPS policy denied the clock event
	ErrGPSRequired = newError(KindPolicyDenied, "gps_required", "GPS location required")
)

// Validation errors
var (
	// ErrMemberNotFound indicates the member is not in the crew directory
	ErrMemberNotFound = newError(KindValidation, "member_not_found", "crew member not found")

	// ErrJobNotAssigned indicates the member may not clock into the job
	ErrJobNotAssigned = newError(KindValidation, "job_not_assigned", "job is not assigned to the member's crew")

	// ErrInvalidTransition indicates a status change the entry is not eligible for
	ErrInvalidTransition = newError(KindValidation, "invalid_transition", "invalid status transition")

	// ErrInvalidTime indicates inconsistent clock-in, clock-out or break times
	ErrInvalidTime = newError(KindValidation, "invalid_time", "invalid time range")

	// ErrInvalidRequest indicates a missing or malformed request field
	ErrInvalidRequest = newError(KindValidation, "invalid_request", "invalid request")
)

// Storage errors
var (
	// ErrStorage indicates the underlying store failed
	ErrStorage = newError(KindStorage, "storage", "storage failure")
)

// storageError wraps a KV failure.
func storageError(op string, err error) error {
	return &Error{Kind: KindStorage, Code: ErrStorage.Code, Message: op, Err: err}
}

// KindOf returns the kind of err, or "" if err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the code of err, or "" if err is not an engine error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func gpsDenied(d Decision) error {
	return &Error{Kind: KindPolicyDenied, Code: ErrGPSRequired.Code, Message: d.Reason}
}

func jobNotAssigned(err error) error {
	return &Error{Kind: KindValidation, Code: ErrJobNotAssigned.Code, Message: ErrJobNotAssigned.Message, Err: err}
}
