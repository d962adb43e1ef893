// cmd/entry.go
package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldcrew/crewclock/internal/timeclock"
	"github.com/fieldcrew/crewclock/internal/tui"
)

var (
	entryMember     string
	entryJob        string
	entryStatus     string
	entryFrom       string
	entryTo         string
	entryJSON       bool
	entryActor      string
	entryReason     string
	entryClockIn    string
	entryClockOut   string
	entryNewJob     string
	entryNotes      string
	entryAdminNotes string
)

var entryCmd = &cobra.Command{
	Use:     "entry",
	Aliases: []string{"entries"},
	Short:   "List, review and correct time entries",
}

var entryListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List time entries",
	Example: `  # Entries waiting for review this week
  crewclock entry list --status completed,edited --from 2025-06-02 --to 2025-06-09`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := entryFilter()
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.manager.Entries(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if entryJSON {
			return writeJSON(cmd.OutOrStdout(), entries)
		}
		printEntryList(cmd.OutOrStdout(), entries)
		return nil
	},
}

var entryShowCmd = &cobra.Command{
	Use:   "show <entry-id>",
	Short: "Show one time entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		entry, err := a.manager.Entry(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if entryJSON {
			return writeJSON(cmd.OutOrStdout(), entry)
		}
		printEntry(cmd.OutOrStdout(), entry)
		return nil
	},
}

var entryEditCmd = &cobra.Command{
	Use:   "edit <entry-id>",
	Short: "Correct a time entry",
	Long: `Applies an admin correction. Changing the clock-in or clock-out time of a
finished entry recomputes its cost and sends it back for approval.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := entryPatch(cmd)
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		entry, err := a.manager.EditEntry(cmd.Context(), args[0], patch, actorName(entryActor))
		if err != nil {
			return err
		}
		goodColor.Fprintln(cmd.OutOrStdout(), "✅ Entry updated")
		printEntry(cmd.OutOrStdout(), entry)
		return nil
	},
}

var entryApproveCmd = &cobra.Command{
	Use:   "approve <entry-id>...",
	Short: "Approve completed entries",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		return reviewEach(cmd.OutOrStdout(), args, func(id string) (timeclock.TimeEntry, error) {
			return a.manager.Approve(cmd.Context(), id, actorName(entryActor))
		})
	},
}

var entryRejectCmd = &cobra.Command{
	Use:   "reject <entry-id>...",
	Short: "Reject entries with a reason",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		return reviewEach(cmd.OutOrStdout(), args, func(id string) (timeclock.TimeEntry, error) {
			return a.manager.Reject(cmd.Context(), id, actorName(entryActor), entryReason)
		})
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect open clock sessions",
}

var sessionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List members who are clocked in",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		sessions, err := a.manager.ActiveSessions(cmd.Context())
		if err != nil {
			return err
		}
		if entryJSON {
			return writeJSON(cmd.OutOrStdout(), sessions)
		}
		printSessions(cmd.OutOrStdout(), sessions, time.Now())
		return nil
	},
}

func entryFilter() (timeclock.EntryFilter, error) {
	statuses, err := timeclock.ParseStatuses(entryStatus)
	if err != nil {
		return timeclock.EntryFilter{}, err
	}
	f := timeclock.EntryFilter{MemberID: entryMember, JobID: entryJob, Statuses: statuses}
	if entryFrom != "" {
		if f.From, err = parseDay(entryFrom); err != nil {
			return timeclock.EntryFilter{}, err
		}
	}
	if entryTo != "" {
		if f.To, err = parseDay(entryTo); err != nil {
			return timeclock.EntryFilter{}, err
		}
	}
	return f, nil
}

// entryPatch builds a patch from the flags that were set.
func entryPatch(cmd *cobra.Command) (timeclock.EntryPatch, error) {
	var p timeclock.EntryPatch
	flags := cmd.Flags()
	if flags.Changed("clock-in") {
		t, err := time.Parse(time.RFC3339, entryClockIn)
		if err != nil {
			return p, fmt.Errorf("--clock-in: %w", err)
		}
		p.ClockInTime = &t
	}
	if flags.Changed("clock-out") {
		t, err := time.Parse(time.RFC3339, entryClockOut)
		if err != nil {
			return p, fmt.Errorf("--clock-out: %w", err)
		}
		p.ClockOutTime = &t
	}
	if flags.Changed("job") {
		p.JobID = &entryNewJob
	}
	if flags.Changed("notes") {
		p.Notes = &entryNotes
	}
	if flags.Changed("admin-notes") {
		p.AdminNotes = &entryAdminNotes
	}
	if p == (timeclock.EntryPatch{}) {
		return p, errors.New("nothing to change: set at least one of --clock-in, --clock-out, --job, --notes, --admin-notes")
	}
	return p, nil
}

// reviewEach applies fn to every id, reporting each result. It fails if any
// id failed.
func reviewEach(w io.Writer, ids []string, fn func(id string) (timeclock.TimeEntry, error)) error {
	failed := 0
	for _, id := range ids {
		entry, err := fn(id)
		if err != nil {
			failed++
			badColor.Fprintf(w, "  ❌ %s: %v\n", id, err)
			continue
		}
		fmt.Fprintf(w, "  %s %s  %s  %s\n", goodColor.Sprint("✓"), id, tui.StatusBadge(string(entry.Status)), fmtMoney(entry.TotalCost))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d entries failed", failed, len(ids))
	}
	return nil
}

func printEntryList(w io.Writer, entries []timeclock.TimeEntry) {
	if len(entries) == 0 {
		warnColor.Fprintln(w, "No entries found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tMEMBER\tJOB\tCLOCK IN\tCLOCK OUT\tHOURS\tCOST\tSTATUS")
	var hours, cost float64
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID,
			tui.Truncate(nameOr(e.MemberName, e.MemberID), 24),
			tui.Truncate(nameOr(e.JobName, e.JobID), 24),
			fmtTime(e.ClockInTime),
			fmtTimePtr(e.ClockOutTime),
			fmtHours(e.TotalHours),
			fmtMoney(e.TotalCost),
			tui.StatusBadge(string(e.Status)),
		)
		hours += e.TotalHours
		cost += e.TotalCost
	}
	fmt.Fprintf(tw, "\t\t\t\t%s\t%s\t%s\t\n", labelColor.Sprint("TOTAL"), fmtHours(hours), fmtMoney(cost))
}

func printSessions(w io.Writer, sessions []timeclock.ActiveSession, now time.Time) {
	if len(sessions) == 0 {
		warnColor.Fprintln(w, "Nobody is clocked in.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "MEMBER\tJOB\tSINCE\tELAPSED\tBREAK")
	for _, s := range sessions {
		onBreak := "-"
		if s.OnBreak() {
			onBreak = warnColor.Sprintf("since %s", s.CurrentBreak.StartTime.Local().Format("15:04"))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			nameOr(s.MemberName, s.MemberID),
			s.JobID,
			fmtTime(s.ClockInTime),
			now.Sub(s.ClockInTime).Truncate(time.Minute).String(),
			onBreak,
		)
	}
}

func init() {
	for _, c := range []*cobra.Command{entryListCmd, entryShowCmd, sessionListCmd} {
		c.Flags().BoolVar(&entryJSON, "json", false, "print JSON")
	}
	entryListCmd.Flags().StringVar(&entryMember, "member", "", "only this member's entries")
	entryListCmd.Flags().StringVar(&entryJob, "job", "", "only entries for this job")
	entryListCmd.Flags().StringVar(&entryStatus, "status", "", "comma-separated statuses (active,completed,approved,rejected,edited)")
	entryListCmd.Flags().StringVar(&entryFrom, "from", "", "clock-in on or after (YYYY-MM-DD or RFC3339)")
	entryListCmd.Flags().StringVar(&entryTo, "to", "", "clock-in before (YYYY-MM-DD or RFC3339)")

	for _, c := range []*cobra.Command{entryEditCmd, entryApproveCmd, entryRejectCmd} {
		c.Flags().StringVar(&entryActor, "actor", "", "admin recorded on the entry (default $USER)")
	}
	entryEditCmd.Flags().StringVar(&entryClockIn, "clock-in", "", "corrected clock-in time (RFC3339)")
	entryEditCmd.Flags().StringVar(&entryClockOut, "clock-out", "", "corrected clock-out time (RFC3339)")
	entryEditCmd.Flags().StringVar(&entryNewJob, "job", "", "move the entry to another job")
	entryEditCmd.Flags().StringVar(&entryNotes, "notes", "", "replace the entry notes")
	entryEditCmd.Flags().StringVar(&entryAdminNotes, "admin-notes", "", "admin notes")
	entryRejectCmd.Flags().StringVar(&entryReason, "reason", "", "why the entry is rejected")
	_ = entryRejectCmd.MarkFlagRequired("reason")

	entryCmd.AddCommand(entryListCmd, entryShowCmd, entryEditCmd, entryApproveCmd, entryRejectCmd)
	sessionCmd.AddCommand(sessionListCmd)
	rootCmd.AddCommand(entryCmd, sessionCmd)
}
