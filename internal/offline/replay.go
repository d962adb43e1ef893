package offline

import (
	"context"
	"fmt"

	"github.com/fieldcrew/crewclock/internal/timeclock"
)

// Clock is the part of the session manager offline events are applied to.
type Clock interface {
	ClockIn(ctx context.Context, req timeclock.ClockInRequest) (timeclock.TimeEntry, error)
	ClockOut(ctx context.Context, req timeclock.ClockOutRequest) (timeclock.TimeEntry, error)
	StartBreak(ctx context.Context, req timeclock.BreakRequest) (timeclock.ActiveSession, error)
	EndBreak(ctx context.Context, req timeclock.BreakRequest) (timeclock.TimeEntry, error)
}

// ManagerReplayer replays queued events through the same entry points as live
// requests. The event id is the idempotency key, so an event that was already
// applied comes back as a sync conflict.
type ManagerReplayer struct {
	Clock Clock
}

func (r ManagerReplayer) Replay(ctx context.Context, ev Event) error {
	var err error
	switch ev.Kind {
	case timeclock.EventClockIn:
		_, err = r.Clock.ClockIn(ctx, timeclock.ClockInRequest{
			MemberID:       ev.MemberID,
			JobID:          ev.JobID,
			Notes:          ev.Notes,
			At:             ev.Timestamp,
			Capture:        ev.Location,
			IdempotencyKey: ev.ID,
			Source:         timeclock.SourceOffline,
			Actor:          ev.MemberID,
		})
	case timeclock.EventClockOut:
		_, err = r.Clock.ClockOut(ctx, timeclock.ClockOutRequest{
			MemberID:       ev.MemberID,
			Notes:          ev.Notes,
			At:             ev.Timestamp,
			Capture:        ev.Location,
			IdempotencyKey: ev.ID,
			Source:         timeclock.SourceOffline,
			Actor:          ev.MemberID,
		})
	case timeclock.EventBreakStart:
		_, err = r.Clock.StartBreak(ctx, breakRequest(ev))
	case timeclock.EventBreakEnd:
		_, err = r.Clock.EndBreak(ctx, breakRequest(ev))
	default:
		err = fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, ev.Kind)
	}
	return err
}

func breakRequest(ev Event) timeclock.BreakRequest {
	return timeclock.BreakRequest{
		MemberID:       ev.MemberID,
		At:             ev.Timestamp,
		IdempotencyKey: ev.ID,
		Source:         timeclock.SourceOffline,
		Actor:          ev.MemberID,
	}
}
