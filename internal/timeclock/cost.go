package timeclock

import (
	"math"
	"strconv"
	"strings"

	"github.com/fieldcrew/crewclock/internal/settings"
)

// ComputeCost derives hours and cost for a finalized entry:
//
//  1. gross minutes between clock-in and clock-out
//  2. minus tracked break minutes
//  3. minus the fixed auto break when an auto policy applies and net hours
//     reach the threshold
//  4. optionally rounded to the nearest rounding interval
//  5. split at the overtime threshold (and the double-time threshold when
//     enabled)
//  6. costed at the entry's rate times (1 + overhead), overtime and double
//     time at their multipliers
//
// Each output field is rounded to 2 decimals once, from unrounded inputs.
func ComputeCost(e TimeEntry, s settings.Settings) (Cost, error) {
	if e.ClockOutTime == nil {
		return Cost{}, ErrInvalidTime.with("entry has no clock-out time")
	}
	if !e.ClockOutTime.After(e.ClockInTime) {
		return Cost{}, ErrInvalidTime.with("clock-out must be after clock-in")
	}

	gross := e.ClockOutTime.Sub(e.ClockInTime).Minutes()
	if float64(e.TotalBreakMinutes) > gross {
		return Cost{}, ErrInvalidTime.with("breaks exceed elapsed time")
	}
	net := gross - float64(e.TotalBreakMinutes)

	var autoBreak int
	if m := s.BreakDeductionPolicy.AutoMinutes(); m > 0 && net/60 >= s.AutoBreakThresholdHours {
		autoBreak = m
		net -= float64(m)
	}
	net = math.Max(net, 0)

	if iv := float64(s.RoundingIntervalMinutes); iv > 0 {
		net = math.Round(net/iv) * iv
	}

	total := net / 60
	regular := math.Min(total, s.OvertimeThresholdHours)
	overtime := math.Max(0, total-s.OvertimeThresholdHours)
	var double float64
	if s.DoubleTimeEnabled && s.DoubleTimeThresholdHours > s.OvertimeThresholdHours {
		double = math.Max(0, total-s.DoubleTimeThresholdHours)
		overtime -= double
	}

	costMultiplier := 1 + s.OverheadMultiplier
	regularCost := regular * e.HourlyRate * costMultiplier
	overtimeCost := overtime * e.HourlyRate * s.OvertimeMultiplier * costMultiplier
	doubleCost := double * e.HourlyRate * s.DoubleTimeMultiplier * costMultiplier

	return Cost{
		TotalHours:       Round2(total),
		RegularHours:     Round2(regular),
		OvertimeHours:    Round2(overtime),
		DoubleTimeHours:  Round2(double),
		AutoBreakMinutes: autoBreak,
		RegularCost:      Round2(regularCost),
		OvertimeCost:     Round2(overtimeCost),
		DoubleTimeCost:   Round2(doubleCost),
		TotalCost:        Round2(regularCost + overtimeCost + doubleCost),
	}, nil
}

// Round2 rounds half away from zero to 2 decimal places. It rounds the
// shortest decimal form of v, so 1.005 becomes 1.01 even though v*100 is
// just below 100.5 in binary.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) >= 1e15 {
		return math.Round(v*100) / 100
	}
	digits := strconv.FormatFloat(math.Abs(v), 'f', -1, 64)
	whole, frac, _ := strings.Cut(digits, ".")
	frac += "000"

	cents, err := strconv.ParseInt(whole+frac[:2], 10, 64)
	if err != nil {
		return math.Round(v*100) / 100
	}
	if frac[2] >= '5' {
		cents++
	}
	return math.Copysign(float64(cents)/100, v)
}
