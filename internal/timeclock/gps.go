package timeclock

import (
	"fmt"

	"github.com/fieldcrew/crewclock/internal/location"
	"github.com/fieldcrew/crewclock/internal/settings"
)

// Decision is the outcome of the GPS attendance policy.
type Decision struct {
	Allow bool

	// Location is attached when a usable fix was captured.
	Location *location.Fix

	// Reason explains a denial, or an exception that was allowed through.
	Reason string
}

// EvaluateGPS judges a capture result against the settings. It performs no
// I/O.
//
//	requireGPS  captured  exceptions  outcome
//	false       any       any         allow
//	true        yes       any         allow, location attached
//	true        no        true        allow, no location
//	true        no        false       deny
//
// A fix less accurate than a positive GPSAccuracyThresholdMeters counts as a
// failed capture.
func EvaluateGPS(kind EventKind, capture location.Result, s settings.Settings) Decision {
	fix, failure := usableFix(capture, s.GPSAccuracyThresholdMeters)

	if !requiresGPS(kind, s) {
		return Decision{Allow: true, Location: fix}
	}
	if fix != nil {
		return Decision{Allow: true, Location: fix}
	}
	if s.AllowGPSlessExceptions {
		return Decision{Allow: true, Reason: "GPS exception: " + failure}
	}
	return Decision{Reason: fmt.Sprintf("%s (%s)", ErrGPSRequired.Message, failure)}
}

func requiresGPS(kind EventKind, s settings.Settings) bool {
	switch kind {
	case EventClockIn:
		return s.RequireGPSForClockIn
	case EventClockOut:
		return s.RequireGPSForClockOut
	case EventBreakStart, EventBreakEnd:
		return false
	}
	return false
}

// usableFix returns the captured fix, or nil and the reason it can't be used.
func usableFix(r location.Result, thresholdMeters float64) (*location.Fix, string) {
	if !r.Success || r.Fix == nil {
		if r.Error == "" {
			return nil, "location unavailable"
		}
		return nil, r.Error
	}
	if thresholdMeters > 0 && r.Fix.Accuracy > thresholdMeters {
		return nil, fmt.Sprintf("accuracy %.0fm exceeds %.0fm", r.Fix.Accuracy, thresholdMeters)
	}
	f := *r.Fix
	return &f, ""
}
