// Package settings holds the tenant-wide time tracking policy: overtime and
// double-time thresholds, break deduction, GPS requirements and rounding.
package settings

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// BreakDeductionPolicy controls whether an unrecorded meal break is deducted.
type BreakDeductionPolicy string

const (
	BreakPolicyNone   BreakDeductionPolicy = "none"
	BreakPolicyAuto30 BreakDeductionPolicy = "auto_30min"
	BreakPolicyAuto60 BreakDeductionPolicy = "auto_60min"
	BreakPolicyManual BreakDeductionPolicy = "manual"
)

// Valid reports whether p is a known policy.
func (p BreakDeductionPolicy) Valid() bool {
	switch p {
	case BreakPolicyNone, BreakPolicyAuto30, BreakPolicyAuto60, BreakPolicyManual:
		return true
	}
	return false
}

// AutoMinutes returns the fixed deduction for auto policies, 0 otherwise.
func (p BreakDeductionPolicy) AutoMinutes() int {
	switch p {
	case BreakPolicyAuto30:
		return 30
	case BreakPolicyAuto60:
		return 60
	case BreakPolicyNone, BreakPolicyManual:
		return 0
	}
	return 0
}

// IsAuto reports whether p deducts a fixed break automatically.
func (p BreakDeductionPolicy) IsAuto() bool {
	return p.AutoMinutes() > 0
}

// Settings is an immutable policy snapshot. Copy it, don't share pointers.
type Settings struct {
	OvertimeThresholdHours float64 `json:"overtime_threshold_hours" yaml:"overtime_threshold_hours"`
	OvertimeMultiplier     float64 `json:"overtime_multiplier" yaml:"overtime_multiplier"`

	// Double time is a third tier behind a flag; off unless explicitly enabled.
	DoubleTimeEnabled        bool    `json:"double_time_enabled" yaml:"double_time_enabled"`
	DoubleTimeThresholdHours float64 `json:"double_time_threshold_hours,omitempty" yaml:"double_time_threshold_hours"`
	DoubleTimeMultiplier     float64 `json:"double_time_multiplier,omitempty" yaml:"double_time_multiplier"`

	// OverheadMultiplier is a fraction: 0.15 means cost = wage * 1.15.
	OverheadMultiplier float64 `json:"overhead_multiplier" yaml:"overhead_multiplier"`
	BenefitsPercentage float64 `json:"benefits_percentage" yaml:"benefits_percentage"`

	BreakDeductionPolicy     BreakDeductionPolicy `json:"break_deduction_policy" yaml:"break_deduction_policy"`
	AutoBreakThresholdHours  float64              `json:"auto_break_threshold_hours" yaml:"auto_break_threshold_hours"`
	AutoBreakDurationMinutes int                  `json:"auto_break_duration_minutes" yaml:"auto_break_duration_minutes"`

	RequireGPSForClockIn       bool    `json:"require_gps_for_clock_in" yaml:"require_gps_for_clock_in"`
	RequireGPSForClockOut      bool    `json:"require_gps_for_clock_out" yaml:"require_gps_for_clock_out"`
	GPSAccuracyThresholdMeters float64 `json:"gps_accuracy_threshold_meters" yaml:"gps_accuracy_threshold_meters"`
	AllowGPSlessExceptions     bool    `json:"allow_gpsless_exceptions" yaml:"allow_gpsless_exceptions"`

	RoundingIntervalMinutes int `json:"rounding_interval_minutes" yaml:"rounding_interval_minutes"`

	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
	UpdatedBy string    `json:"updated_by" yaml:"-"`
}

// Defaults returns the compiled-in policy used when nothing is persisted or
// the persisted value can't be read.
func Defaults() Settings {
	return Settings{
		OvertimeThresholdHours:     8,
		OvertimeMultiplier:         1.5,
		DoubleTimeThresholdHours:   12,
		DoubleTimeMultiplier:       2.0,
		OverheadMultiplier:         0,
		BenefitsPercentage:         0,
		BreakDeductionPolicy:       BreakPolicyManual,
		AutoBreakThresholdHours:    6,
		AutoBreakDurationMinutes:   30,
		RequireGPSForClockIn:       true,
		RequireGPSForClockOut:      true,
		GPSAccuracyThresholdMeters: 100,
		AllowGPSlessExceptions:     true,
		RoundingIntervalMinutes:    0,
		UpdatedBy:                  "system",
	}
}

// Validation errors
var (
	// ErrNegativeValue indicates a numeric field below zero
	ErrNegativeValue = errors.New("value must not be negative")

	// ErrMultiplierTooLow indicates a pay multiplier below 1.0
	ErrMultiplierTooLow = errors.New("multiplier must be at least 1.0")

	// ErrUnknownBreakPolicy indicates an unrecognized break deduction policy
	ErrUnknownBreakPolicy = errors.New("unknown break deduction policy")

	// ErrDoubleTimeThreshold indicates double time starting at or before overtime
	ErrDoubleTimeThreshold = errors.New("double time threshold must exceed overtime threshold")
)

// FieldError names the field a validation error applies to.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Validate checks that the settings are internally consistent.
func (s Settings) Validate() error {
	nonNegative := []struct {
		field string
		v     float64
	}{
		{"overtime_threshold_hours", s.OvertimeThresholdHours},
		{"double_time_threshold_hours", s.DoubleTimeThresholdHours},
		{"overhead_multiplier", s.OverheadMultiplier},
		{"benefits_percentage", s.BenefitsPercentage},
		{"auto_break_threshold_hours", s.AutoBreakThresholdHours},
		{"auto_break_duration_minutes", float64(s.AutoBreakDurationMinutes)},
		{"gps_accuracy_threshold_meters", s.GPSAccuracyThresholdMeters},
		{"rounding_interval_minutes", float64(s.RoundingIntervalMinutes)},
	}
	for _, f := range nonNegative {
		if f.v < 0 {
			return &FieldError{Field: f.field, Err: ErrNegativeValue}
		}
	}

	if s.OvertimeMultiplier < 1.0 {
		return &FieldError{Field: "overtime_multiplier", Err: ErrMultiplierTooLow}
	}
	if s.DoubleTimeEnabled {
		if s.DoubleTimeMultiplier < 1.0 {
			return &FieldError{Field: "double_time_multiplier", Err: ErrMultiplierTooLow}
		}
		if s.DoubleTimeThresholdHours <= s.OvertimeThresholdHours {
			return &FieldError{Field: "double_time_threshold_hours", Err: ErrDoubleTimeThreshold}
		}
	}
	if !s.BreakDeductionPolicy.Valid() {
		return &FieldError{Field: "break_deduction_policy", Err: fmt.Errorf("%w: %q", ErrUnknownBreakPolicy, s.BreakDeductionPolicy)}
	}
	return nil
}

// normalize keeps derived fields consistent with the chosen policy.
func (s *Settings) normalize() {
	if m := s.BreakDeductionPolicy.AutoMinutes(); m > 0 {
		s.AutoBreakDurationMinutes = m
	}
}

// LoadFile reads a YAML policy file. Fields missing from the file keep their
// default values.
func LoadFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings file %s: %w", path, err)
	}

	s := Defaults()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings file %s: %w", path, err)
	}
	s.normalize()
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid settings file %s: %w", path, err)
	}
	return s, nil
}
