package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fieldcrew/crewclock/internal/kv"
)

// Key is the KV key the current settings are persisted under.
const Key = "settings:current"

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	OvertimeThresholdHours     *float64              `json:"overtime_threshold_hours,omitempty"`
	OvertimeMultiplier         *float64              `json:"overtime_multiplier,omitempty"`
	DoubleTimeEnabled          *bool                 `json:"double_time_enabled,omitempty"`
	DoubleTimeThresholdHours   *float64              `json:"double_time_threshold_hours,omitempty"`
	DoubleTimeMultiplier       *float64              `json:"double_time_multiplier,omitempty"`
	OverheadMultiplier         *float64              `json:"overhead_multiplier,omitempty"`
	BenefitsPercentage         *float64              `json:"benefits_percentage,omitempty"`
	BreakDeductionPolicy       *BreakDeductionPolicy `json:"break_deduction_policy,omitempty"`
	AutoBreakThresholdHours    *float64              `json:"auto_break_threshold_hours,omitempty"`
	AutoBreakDurationMinutes   *int                  `json:"auto_break_duration_minutes,omitempty"`
	RequireGPSForClockIn       *bool                 `json:"require_gps_for_clock_in,omitempty"`
	RequireGPSForClockOut      *bool                 `json:"require_gps_for_clock_out,omitempty"`
	GPSAccuracyThresholdMeters *float64              `json:"gps_accuracy_threshold_meters,omitempty"`
	AllowGPSlessExceptions     *bool                 `json:"allow_gpsless_exceptions,omitempty"`
	RoundingIntervalMinutes    *int                  `json:"rounding_interval_minutes,omitempty"`
}

// Apply returns a copy of s with the non-nil patch fields set.
func (p Patch) Apply(s Settings) Settings {
	setF := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setB := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	setI := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}

	setF(&s.OvertimeThresholdHours, p.OvertimeThresholdHours)
	setF(&s.OvertimeMultiplier, p.OvertimeMultiplier)
	setB(&s.DoubleTimeEnabled, p.DoubleTimeEnabled)
	setF(&s.DoubleTimeThresholdHours, p.DoubleTimeThresholdHours)
	setF(&s.DoubleTimeMultiplier, p.DoubleTimeMultiplier)
	setF(&s.OverheadMultiplier, p.OverheadMultiplier)
	setF(&s.BenefitsPercentage, p.BenefitsPercentage)
	if p.BreakDeductionPolicy != nil {
		s.BreakDeductionPolicy = *p.BreakDeductionPolicy
	}
	setF(&s.AutoBreakThresholdHours, p.AutoBreakThresholdHours)
	setI(&s.AutoBreakDurationMinutes, p.AutoBreakDurationMinutes)
	setB(&s.RequireGPSForClockIn, p.RequireGPSForClockIn)
	setB(&s.RequireGPSForClockOut, p.RequireGPSForClockOut)
	setF(&s.GPSAccuracyThresholdMeters, p.GPSAccuracyThresholdMeters)
	setB(&s.AllowGPSlessExceptions, p.AllowGPSlessExceptions)
	setI(&s.RoundingIntervalMinutes, p.RoundingIntervalMinutes)
	return s
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// StoreConfig holds configuration for the settings store.
type StoreConfig struct {
	// KV is where settings are persisted
	KV kv.Store

	// Now returns the current time (default: time.Now)
	Now func() time.Time

	// LogFn is called for log messages (optional)
	LogFn func(level, msg string)
}

// Store serves the current settings snapshot. Reads never block; writers are
// serialized so concurrent partial updates don't drop each other's fields.
type Store struct {
	kv      kv.Store
	now     func() time.Time
	logFn   func(level, msg string)
	mu      sync.Mutex
	current atomic.Pointer[Settings]
}

// NewStore creates a store holding the defaults. Call Load to read what is
// persisted.
func NewStore(cfg StoreConfig) *Store {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	s := &Store{
		kv:    cfg.KV,
		now:   now,
		logFn: cfg.LogFn,
	}
	d := Defaults()
	s.current.Store(&d)
	return s
}

// Load reads the persisted settings. A missing or unreadable value leaves the
// defaults in place; only a store failure is returned.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok, err := s.kv.Get(ctx, Key)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if !ok {
		return nil
	}

	loaded := Defaults()
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.log("warn", fmt.Sprintf("settings: stored value is corrupt, using defaults: %v", err))
		return nil
	}
	if err := loaded.Validate(); err != nil {
		s.log("warn", fmt.Sprintf("settings: stored value is invalid, using defaults: %v", err))
		return nil
	}
	s.current.Store(&loaded)
	return nil
}

// Get returns the current snapshot. It never fails.
func (s *Store) Get() Settings {
	return *s.current.Load()
}

// Update applies a partial patch, validates, persists and then publishes the
// new snapshot. On any error the current snapshot is unchanged.
func (s *Store) Update(ctx context.Context, p Patch, actor string) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := p.Apply(*s.current.Load())
	return s.commit(ctx, next, actor)
}

// Replace swaps in a complete settings value, as read from a policy file.
func (s *Store) Replace(ctx context.Context, next Settings, actor string) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commit(ctx, next, actor)
}

func (s *Store) commit(ctx context.Context, next Settings, actor string) (Settings, error) {
	next.normalize()
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	if actor == "" {
		actor = "system"
	}
	next.UpdatedAt = s.now().UTC()
	next.UpdatedBy = actor

	data, err := json.Marshal(next)
	if err != nil {
		return Settings{}, fmt.Errorf("encode settings: %w", err)
	}
	if err := s.kv.Set(ctx, Key, data); err != nil {
		return Settings{}, fmt.Errorf("persist settings: %w", err)
	}

	s.current.Store(&next)
	s.log("info", fmt.Sprintf("settings: updated by %s", actor))
	return next, nil
}

func (s *Store) log(level, msg string) {
	if s.logFn != nil {
		s.logFn(level, msg)
	}
}
