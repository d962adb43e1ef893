package offline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// SyncerConfig holds configuration for the background syncer.
type SyncerConfig struct {
	// Queue is the offline queue to drain
	Queue *Queue

	// Interval between periodic drains (default: 30s)
	Interval time.Duration

	// TriggerRate limits how often Trigger can start a drain (default: 1/s)
	TriggerRate rate.Limit

	// TriggerBurst is the limiter burst (default: 1)
	TriggerBurst int

	// OnDrain is called after every drain attempt (optional)
	OnDrain func(DrainResult, error)

	// LogFn is called for log messages (optional)
	LogFn func(level, msg string)
}

// Syncer drains the queue on a timer and whenever connectivity comes back.
type Syncer struct {
	queue    *Queue
	interval time.Duration
	limiter  *rate.Limiter
	trigger  chan struct{}
	onDrain  func(DrainResult, error)
	logFn    func(level, msg string)
}

// NewSyncer creates a new syncer.
func NewSyncer(cfg SyncerConfig) *Syncer {
	interval := cfg.Interval
	if interval == 0 {
		interval = 30 * time.Second
	}
	limit := cfg.TriggerRate
	if limit == 0 {
		limit = rate.Limit(1)
	}
	burst := cfg.TriggerBurst
	if burst <= 0 {
		burst = 1
	}
	return &Syncer{
		queue:    cfg.Queue,
		interval: interval,
		limiter:  rate.NewLimiter(limit, burst),
		trigger:  make(chan struct{}, 1),
		onDrain:  cfg.OnDrain,
		logFn:    cfg.LogFn,
	}
}

// Start runs the sync loop until the context is cancelled.
func (s *Syncer) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.syncOnce(ctx)
		case <-s.trigger:
			s.syncOnce(ctx)
		}
	}
}

// Trigger requests a drain, typically because connectivity was restored.
// It reports false when the request was rate limited.
func (s *Syncer) Trigger() bool {
	if !s.limiter.Allow() {
		return false
	}
	select {
	case s.trigger <- struct{}{}:
	default:
		// A drain is already pending.
	}
	return true
}

// SyncOnce performs a single drain. Exported for testing.
func (s *Syncer) SyncOnce(ctx context.Context) DrainResult {
	return s.syncOnce(ctx)
}

func (s *Syncer) syncOnce(ctx context.Context) DrainResult {
	res, err := s.queue.Drain(ctx)
	if s.onDrain != nil {
		s.onDrain(res, err)
	}
	switch {
	case errors.Is(err, ErrDrainInProgress):
		s.log("debug", "offline sync: drain already running")
	case err != nil:
		s.log("error", fmt.Sprintf("offline sync: %v", err))
	case res.Synced > 0 || res.Failed > 0:
		s.log("info", fmt.Sprintf("offline sync: synced %d, failed %d", res.Synced, res.Failed))
	}
	return res
}

func (s *Syncer) log(level, msg string) {
	if s.logFn != nil {
		s.logFn(level, msg)
	}
}
