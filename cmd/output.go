// cmd/output.go
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/fieldcrew/crewclock/internal/offline"
	"github.com/fieldcrew/crewclock/internal/timeclock"
	"github.com/fieldcrew/crewclock/internal/tui"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	goodColor   = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	badColor    = color.New(color.FgRed)
	labelColor  = color.New(color.Bold)
)

// hint turns an engine error into a message that tells the user what to do.
func hint(err error) string {
	switch {
	case errors.Is(err, timeclock.ErrAlreadyClockedIn):
		return "You are already clocked in. Clock out first, or ask an admin to close the open session."
	case errors.Is(err, timeclock.ErrNoActiveSession):
		return "You are not clocked in."
	case errors.Is(err, timeclock.ErrAlreadyOnBreak):
		return "A break is already running. End it before starting another."
	case errors.Is(err, timeclock.ErrNoActiveBreak):
		return "There is no break to end."
	case errors.Is(err, timeclock.ErrGPSRequired):
		return "A location is required. Pass --lat and --lon, or move somewhere with a better GPS signal."
	case errors.Is(err, timeclock.ErrJobNotAssigned):
		return "That job isn't assigned to your crew. Pick one of your crew's jobs."
	case errors.Is(err, offline.ErrDrainInProgress):
		return "A sync is already running. Try again in a moment."
	}
	switch timeclock.KindOf(err) {
	case timeclock.KindStorage:
		return "The time store could not be reached. Your action was not saved, please retry."
	case timeclock.KindSyncConflict:
		return "This action was already recorded."
	}
	return ""
}

// printError reports err to stderr with a hint when there is one.
func printError(err error) {
	badColor.Fprintf(os.Stderr, "Error: %v\n", err)
	if h := hint(err); h != "" {
		warnColor.Fprintf(os.Stderr, "  %s\n", h)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func fmtTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return fmtTime(*t)
}

func fmtHours(h float64) string {
	return fmt.Sprintf("%.2fh", h)
}

func fmtMoney(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

// parseDay accepts RFC3339 or YYYY-MM-DD (local midnight).
func parseDay(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC3339", s)
	}
	return t, nil
}

// printEntry writes a time entry as aligned key/value lines.
func printEntry(w io.Writer, e timeclock.TimeEntry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	row := func(label, value string) {
		fmt.Fprintf(tw, "  %s\t%s\n", labelColor.Sprint(label), value)
	}
	headerColor.Fprintf(tw, "Entry %s\n", e.ID)
	row("Member", nameOr(e.MemberName, e.MemberID))
	row("Job", nameOr(e.JobName, e.JobID))
	row("Status", tui.StatusBadge(string(e.Status)))
	row("Clock in", fmtTime(e.ClockInTime))
	row("Clock out", fmtTimePtr(e.ClockOutTime))
	if e.ClockInLocation != nil {
		row("In location", fmtFix(e.ClockInLocation.Latitude, e.ClockInLocation.Longitude, e.ClockInLocation.Accuracy))
	}
	if e.ClockOutLocation != nil {
		row("Out location", fmtFix(e.ClockOutLocation.Latitude, e.ClockOutLocation.Longitude, e.ClockOutLocation.Accuracy))
	}
	row("Breaks", fmt.Sprintf("%d (%d min)", len(e.Breaks), e.TotalBreakMinutes))
	if e.AutoBreakMinutes > 0 {
		row("Auto break", fmt.Sprintf("%d min", e.AutoBreakMinutes))
	}
	if e.Status.Finalized() {
		row("Hours", fmt.Sprintf("%s  %s", fmtHours(e.TotalHours),
			tui.HoursBar(e.RegularHours, e.OvertimeHours, e.DoubleTimeHours, 12, 24)))
		row("Regular", fmt.Sprintf("%s  %s", fmtHours(e.RegularHours), fmtMoney(e.RegularCost)))
		if e.OvertimeHours > 0 {
			row("Overtime", fmt.Sprintf("%s  %s", fmtHours(e.OvertimeHours), fmtMoney(e.OvertimeCost)))
		}
		if e.DoubleTimeHours > 0 {
			row("Double time", fmt.Sprintf("%s  %s", fmtHours(e.DoubleTimeHours), fmtMoney(e.DoubleTimeCost)))
		}
		row("Total cost", goodColor.Sprint(fmtMoney(e.TotalCost)))
	}
	if e.Notes != "" {
		row("Notes", e.Notes)
	}
	if e.IsEdited {
		row("Edited", fmt.Sprintf("by %s at %s", e.EditedBy, fmtTimePtr(e.EditedAt)))
	}
	if e.AdminNotes != "" {
		row("Admin notes", e.AdminNotes)
	}
	if e.ApprovedBy != "" {
		row("Approved", fmt.Sprintf("by %s at %s", e.ApprovedBy, fmtTimePtr(e.ApprovedAt)))
	}
	if e.RejectedBy != "" {
		row("Rejected", fmt.Sprintf("by %s at %s: %s", e.RejectedBy, fmtTimePtr(e.RejectedAt), e.RejectionReason))
	}
}

func fmtFix(lat, lon, acc float64) string {
	return fmt.Sprintf("%.5f, %.5f (±%.0fm)", lat, lon, acc)
}

func nameOr(name, id string) string {
	if name == "" {
		return id
	}
	return fmt.Sprintf("%s (%s)", name, id)
}
