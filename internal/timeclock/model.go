// Package timeclock is the time tracking engine: the per-member clock session
// state machine, break accounting, GPS attendance policy and labor cost
// computation.
package timeclock

import (
	"time"

	"github.com/fieldcrew/crewclock/internal/location"
)

// EntryStatus is the lifecycle state of a TimeEntry.
type EntryStatus string

const (
	StatusActive    EntryStatus = "active"
	StatusCompleted EntryStatus = "completed"
	StatusApproved  EntryStatus = "approved"
	StatusRejected  EntryStatus = "rejected"
	StatusEdited    EntryStatus = "edited"
)

// Valid reports whether s is a known status.
func (s EntryStatus) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusApproved, StatusRejected, StatusEdited:
		return true
	}
	return false
}

// Finalized reports whether the entry has a clock-out time and cost.
func (s EntryStatus) Finalized() bool {
	switch s {
	case StatusCompleted, StatusApproved, StatusRejected, StatusEdited:
		return true
	case StatusActive:
		return false
	}
	return false
}

// Reviewable reports whether the entry can be approved or rejected.
func (s EntryStatus) Reviewable() bool {
	switch s {
	case StatusCompleted, StatusEdited:
		return true
	case StatusActive, StatusApproved, StatusRejected:
		return false
	}
	return false
}

// Reportable reports whether the entry counts toward labor cost reports.
func (s EntryStatus) Reportable() bool {
	switch s {
	case StatusCompleted, StatusApproved:
		return true
	case StatusActive, StatusRejected, StatusEdited:
		return false
	}
	return false
}

// EventKind is the type of a clock event.
type EventKind string

const (
	EventClockIn    EventKind = "clock_in"
	EventClockOut   EventKind = "clock_out"
	EventBreakStart EventKind = "break_start"
	EventBreakEnd   EventKind = "break_end"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventClockIn, EventClockOut, EventBreakStart, EventBreakEnd:
		return true
	}
	return false
}

// Source records whether an event was applied live or replayed from the
// offline queue.
type Source string

const (
	SourceOnline  Source = "online"
	SourceOffline Source = "offline"
)

// OpenBreak is a break in progress.
type OpenBreak struct {
	StartTime time.Time `json:"start_time"`
}

// ActiveSession is the open clock session of one member. At most one exists
// per member.
type ActiveSession struct {
	MemberID        string        `json:"member_id"`
	MemberName      string        `json:"member_name,omitempty"`
	JobID           string        `json:"job_id"`
	EntryID         string        `json:"entry_id"`
	ClockInTime     time.Time     `json:"clock_in_time"`
	ClockInLocation *location.Fix `json:"clock_in_location,omitempty"`
	CurrentBreak    *OpenBreak    `json:"current_break,omitempty"`
}

// OnBreak reports whether a break is open.
func (s ActiveSession) OnBreak() bool {
	return s.CurrentBreak != nil
}

// BreakRecord is a closed break within an entry.
type BreakRecord struct {
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
}

// Cost is the output of ComputeCost. Every field is rounded to 2 decimals.
type Cost struct {
	TotalHours       float64 `json:"total_hours"`
	RegularHours     float64 `json:"regular_hours"`
	OvertimeHours    float64 `json:"overtime_hours"`
	DoubleTimeHours  float64 `json:"double_time_hours"`
	AutoBreakMinutes int     `json:"auto_break_minutes"`
	RegularCost      float64 `json:"regular_cost"`
	OvertimeCost     float64 `json:"overtime_cost"`
	DoubleTimeCost   float64 `json:"double_time_cost"`
	TotalCost        float64 `json:"total_cost"`
}

// TimeEntry is the durable record of one work session. Entries are never
// deleted, only moved between statuses.
type TimeEntry struct {
	ID         string  `json:"id"`
	MemberID   string  `json:"member_id"`
	MemberName string  `json:"member_name,omitempty"`
	JobID      string  `json:"job_id"`
	JobName    string  `json:"job_name,omitempty"`
	HourlyRate float64 `json:"hourly_rate"`

	ClockInTime      time.Time     `json:"clock_in_time"`
	ClockOutTime     *time.Time    `json:"clock_out_time,omitempty"`
	ClockInLocation  *location.Fix `json:"clock_in_location,omitempty"`
	ClockOutLocation *location.Fix `json:"clock_out_location,omitempty"`
	Notes            string        `json:"notes,omitempty"`

	Breaks            []BreakRecord `json:"breaks"`
	TotalBreakMinutes int           `json:"total_break_minutes"`

	Cost

	Status EntryStatus `json:"status"`

	IsEdited        bool       `json:"is_edited"`
	EditedBy        string     `json:"edited_by,omitempty"`
	EditedAt        *time.Time `json:"edited_at,omitempty"`
	AdminNotes      string     `json:"admin_notes,omitempty"`
	ApprovedBy      string     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectedBy      string     `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`

	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	SettingsVersion time.Time `json:"settings_version,omitzero"`
}

// lastBreakEnd returns the end of the latest closed break, or the zero time.
func (e TimeEntry) lastBreakEnd() time.Time {
	if n := len(e.Breaks); n > 0 && e.Breaks[n-1].EndTime != nil {
		return *e.Breaks[n-1].EndTime
	}
	return time.Time{}
}

// ClockEvent is an append-only audit row.
type ClockEvent struct {
	ID        string        `json:"id"`
	Kind      EventKind     `json:"kind"`
	MemberID  string        `json:"member_id"`
	JobID     string        `json:"job_id"`
	EntryID   string        `json:"entry_id"`
	Timestamp time.Time     `json:"timestamp"`
	Location  *location.Fix `json:"location,omitempty"`
	Source    Source        `json:"source"`
	Actor     string        `json:"actor,omitempty"`
	Notes     string        `json:"notes,omitempty"`
}

func timePtr(t time.Time) *time.Time {
	return &t
}
