package timeclock

import "time"

// StartBreak opens a break on the session at now.
func StartBreak(s *ActiveSession, now time.Time) error {
	if s.CurrentBreak != nil {
		return ErrAlreadyOnBreak
	}
	if now.Before(s.ClockInTime) {
		return ErrInvalidTime.with("break cannot start before clock-in")
	}
	s.CurrentBreak = &OpenBreak{StartTime: now}
	return nil
}

// StopBreak closes the session's open break at now, appending the record to
// the entry. Duration is floored to whole minutes. On error neither the
// session nor the entry is modified.
func StopBreak(s *ActiveSession, e *TimeEntry, now time.Time) (BreakRecord, error) {
	if s.CurrentBreak == nil {
		return BreakRecord{}, ErrNoActiveBreak
	}
	start := s.CurrentBreak.StartTime
	if now.Before(start) {
		return BreakRecord{}, ErrInvalidTime.with("break cannot end before it starts")
	}

	rec := BreakRecord{
		StartTime:       start,
		EndTime:         timePtr(now),
		DurationMinutes: int(now.Sub(start) / time.Minute),
	}
	e.Breaks = append(e.Breaks, rec)
	e.TotalBreakMinutes += rec.DurationMinutes
	s.CurrentBreak = nil
	return rec, nil
}
