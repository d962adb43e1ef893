package offline

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldcrew/crewclock/internal/kv"
	"github.com/fieldcrew/crewclock/internal/location"
	"github.com/fieldcrew/crewclock/internal/timeclock"
)

// Connectivity reports whether the authoritative store is reachable.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// PingConnectivity probes a store with Ping.
type PingConnectivity struct {
	Store   kv.Store
	Timeout time.Duration
}

func (p PingConnectivity) Online(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Store.Ping(ctx) == nil
}

// AlwaysOnline is a Connectivity for single-store setups.
type AlwaysOnline struct{}

func (AlwaysOnline) Online(context.Context) bool { return true }

// GatewayConfig holds the gateway's collaborators.
type GatewayConfig struct {
	Clock        Clock
	Queue        *Queue
	Connectivity Connectivity

	// Location captures a fix at the moment of the action (optional)
	Location location.Provider

	// GPSTimeout bounds each capture (default: location.DefaultTimeout)
	GPSTimeout time.Duration

	// Syncer is poked when a request goes online after being queued (optional)
	Syncer *Syncer

	Now   func() time.Time
	LogFn func(level, msg string)
}

// Outcome is what happened to a clock request.
type Outcome struct {
	Queued  bool                     `json:"queued"`
	Event   *Event                   `json:"event,omitempty"`
	Entry   *timeclock.TimeEntry     `json:"entry,omitempty"`
	Session *timeclock.ActiveSession `json:"session,omitempty"`
}

// Gateway is the front door for clock actions. Online requests go straight
// to the manager; when the store is unreachable, or the member already has
// queued events that must be applied first, the action is queued with the
// location captured now.
type Gateway struct {
	clock      Clock
	queue      *Queue
	conn       Connectivity
	provider   location.Provider
	gpsTimeout time.Duration
	syncer     *Syncer
	now        func() time.Time
	logFn      func(level, msg string)
}

// NewGateway creates a gateway.
func NewGateway(cfg GatewayConfig) *Gateway {
	conn := cfg.Connectivity
	if conn == nil {
		conn = AlwaysOnline{}
	}
	timeout := cfg.GPSTimeout
	if timeout == 0 {
		timeout = location.DefaultTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Gateway{
		clock:      cfg.Clock,
		queue:      cfg.Queue,
		conn:       conn,
		provider:   cfg.Location,
		gpsTimeout: timeout,
		syncer:     cfg.Syncer,
		now:        now,
		logFn:      cfg.LogFn,
	}
}

// ClockIn clocks the member in or queues the action. A nil capture means the
// gateway's own location provider is asked.
func (g *Gateway) ClockIn(ctx context.Context, memberID, jobID, notes string, capture *location.Result) (Outcome, error) {
	ev := Event{Kind: timeclock.EventClockIn, MemberID: memberID, JobID: jobID, Notes: notes}
	return g.do(ctx, ev, capture, func(capture *location.Result, at time.Time) (Outcome, error) {
		e, err := g.clock.ClockIn(ctx, timeclock.ClockInRequest{
			MemberID: memberID, JobID: jobID, Notes: notes, At: at, Capture: capture,
			Source: timeclock.SourceOnline, Actor: memberID,
		})
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Entry: &e}, nil
	})
}

// ClockOut clocks the member out or queues the action.
func (g *Gateway) ClockOut(ctx context.Context, memberID, notes string, capture *location.Result) (Outcome, error) {
	ev := Event{Kind: timeclock.EventClockOut, MemberID: memberID, Notes: notes}
	return g.do(ctx, ev, capture, func(capture *location.Result, at time.Time) (Outcome, error) {
		e, err := g.clock.ClockOut(ctx, timeclock.ClockOutRequest{
			MemberID: memberID, Notes: notes, At: at, Capture: capture,
			Source: timeclock.SourceOnline, Actor: memberID,
		})
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Entry: &e}, nil
	})
}

// StartBreak starts a break or queues the action.
func (g *Gateway) StartBreak(ctx context.Context, memberID string) (Outcome, error) {
	ev := Event{Kind: timeclock.EventBreakStart, MemberID: memberID}
	return g.do(ctx, ev, nil, func(_ *location.Result, at time.Time) (Outcome, error) {
		s, err := g.clock.StartBreak(ctx, timeclock.BreakRequest{
			MemberID: memberID, At: at, Source: timeclock.SourceOnline, Actor: memberID,
		})
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Session: &s}, nil
	})
}

// EndBreak ends a break or queues the action.
func (g *Gateway) EndBreak(ctx context.Context, memberID string) (Outcome, error) {
	ev := Event{Kind: timeclock.EventBreakEnd, MemberID: memberID}
	return g.do(ctx, ev, nil, func(_ *location.Result, at time.Time) (Outcome, error) {
		e, err := g.clock.EndBreak(ctx, timeclock.BreakRequest{
			MemberID: memberID, At: at, Source: timeclock.SourceOnline, Actor: memberID,
		})
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Entry: &e}, nil
	})
}

func (g *Gateway) do(ctx context.Context, ev Event, capture *location.Result, online func(*location.Result, time.Time) (Outcome, error)) (Outcome, error) {
	at := g.now().UTC()

	if capture == nil && (ev.Kind == timeclock.EventClockIn || ev.Kind == timeclock.EventClockOut) {
		r := location.Capture(ctx, g.provider, g.gpsTimeout)
		capture = &r
	}

	if g.conn.Online(ctx) {
		pending, err := g.queue.HasPending(ctx, ev.MemberID)
		if err != nil {
			return Outcome{}, err
		}
		if !pending {
			out, err := online(capture, at)
			if timeclock.KindOf(err) != timeclock.KindStorage {
				return out, err
			}
			g.log("warn", fmt.Sprintf("gateway: store failed, queueing %s for %s: %v", ev.Kind, ev.MemberID, err))
		} else if g.syncer != nil {
			defer g.syncer.Trigger()
		}
	}

	ev.Timestamp = at
	ev.Location = capture
	queued, err := g.queue.Enqueue(ctx, ev)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Queued: true, Event: &queued}, nil
}

func (g *Gateway) log(level, msg string) {
	if g.logFn != nil {
		g.logFn(level, msg)
	}
}
