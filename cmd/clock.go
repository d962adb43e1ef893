// cmd/clock.go
package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldcrew/crewclock/internal/location"
	"github.com/fieldcrew/crewclock/internal/offline"
)

var (
	clockMember   string
	clockJob      string
	clockNotes    string
	clockLat      float64
	clockLon      float64
	clockAccuracy float64
	clockActor    string
	clockReason   string
)

var clockCmd = &cobra.Command{
	Use:   "clock",
	Short: "Clock a crew member in or out",
}

var clockInCmd = &cobra.Command{
	Use:   "in",
	Short: "Clock a member in to a job",
	Example: `  # Clock in with the position reported by the device
  crewclock clock in --member m1 --job j1 --lat 40.7128 --lon -74.0060 --accuracy 12`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), appOptions{Location: flagLocation(cmd)})
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := a.gateway.ClockIn(cmd.Context(), clockMember, clockJob, clockNotes, nil)
		if err != nil {
			return err
		}
		printOutcome(cmd.OutOrStdout(), "Clocked in", out)
		return nil
	},
}

var clockOutCmd = &cobra.Command{
	Use:   "out",
	Short: "Clock a member out and compute the entry's cost",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), appOptions{Location: flagLocation(cmd)})
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := a.gateway.ClockOut(cmd.Context(), clockMember, clockNotes, nil)
		if err != nil {
			return err
		}
		printOutcome(cmd.OutOrStdout(), "Clocked out", out)
		return nil
	},
}

var clockAdminOutCmd = &cobra.Command{
	Use:   "admin-out",
	Short: "Close a member's open session on their behalf",
	Long: `Closes a forgotten session without a location check. The action is
recorded against --actor with the given reason.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		entry, err := a.manager.AdminClockOut(cmd.Context(), clockMember, actorName(clockActor), clockReason)
		if err != nil {
			return err
		}
		goodColor.Fprintf(cmd.OutOrStdout(), "✅ Closed session for %s\n", nameOr(entry.MemberName, entry.MemberID))
		printEntry(cmd.OutOrStdout(), entry)
		return nil
	},
}

var breakCmd = &cobra.Command{
	Use:   "break",
	Short: "Start or end a break",
}

var breakStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a break in the member's open session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := a.gateway.StartBreak(cmd.Context(), clockMember)
		if err != nil {
			return err
		}
		printOutcome(cmd.OutOrStdout(), "Break started", out)
		return nil
	},
}

var breakEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the member's running break",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := a.gateway.EndBreak(cmd.Context(), clockMember)
		if err != nil {
			return err
		}
		printOutcome(cmd.OutOrStdout(), "Break ended", out)
		return nil
	},
}

// flagLocation builds the device position from --lat/--lon. Without them the
// device reports no fix and the GPS policy decides.
func flagLocation(cmd *cobra.Command) location.Provider {
	if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
		return location.Static{}
	}
	return location.Static{Fix: &location.Fix{
		Latitude:  clockLat,
		Longitude: clockLon,
		Accuracy:  clockAccuracy,
		Timestamp: time.Now(),
	}}
}

func printOutcome(w io.Writer, action string, out offline.Outcome) {
	if out.Queued {
		warnColor.Fprintf(w, "📴 Offline: %s was queued", action)
		if out.Event != nil {
			fmt.Fprintf(w, " (event %s)", out.Event.ID)
		}
		fmt.Fprintln(w, ". It will sync when the store is reachable.")
		return
	}
	switch {
	case out.Entry != nil:
		goodColor.Fprintf(w, "✅ %s\n", action)
		printEntry(w, *out.Entry)
	case out.Session != nil && out.Session.CurrentBreak != nil:
		goodColor.Fprintf(w, "✅ %s at %s\n", action, fmtTime(out.Session.CurrentBreak.StartTime))
	default:
		goodColor.Fprintf(w, "✅ %s\n", action)
	}
}

func init() {
	for _, c := range []*cobra.Command{clockInCmd, clockOutCmd, clockAdminOutCmd, breakStartCmd, breakEndCmd} {
		c.Flags().StringVar(&clockMember, "member", "", "crew member id")
		_ = c.MarkFlagRequired("member")
	}
	clockInCmd.Flags().StringVar(&clockJob, "job", "", "job id to clock into")
	_ = clockInCmd.MarkFlagRequired("job")

	for _, c := range []*cobra.Command{clockInCmd, clockOutCmd} {
		c.Flags().StringVar(&clockNotes, "notes", "", "notes for the entry")
		c.Flags().Float64Var(&clockLat, "lat", 0, "latitude reported by the device")
		c.Flags().Float64Var(&clockLon, "lon", 0, "longitude reported by the device")
		c.Flags().Float64Var(&clockAccuracy, "accuracy", 0, "reported accuracy in meters")
	}

	clockAdminOutCmd.Flags().StringVar(&clockActor, "actor", "", "admin recorded on the entry (default $USER)")
	clockAdminOutCmd.Flags().StringVar(&clockReason, "reason", "", "why the session is being closed")

	clockCmd.AddCommand(clockInCmd, clockOutCmd, clockAdminOutCmd)
	breakCmd.AddCommand(breakStartCmd, breakEndCmd)
	rootCmd.AddCommand(clockCmd, breakCmd)
}
