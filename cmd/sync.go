// cmd/sync.go
package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fieldcrew/crewclock/internal/offline"
	"github.com/fieldcrew/crewclock/internal/tui"
)

var syncJSON bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Manage clock actions queued while offline",
}

var syncDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Replay queued events against the store now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.queue.Drain(cmd.Context())
		a.metrics.ObserveDrain(res, err)
		if err != nil {
			return err
		}
		if syncJSON {
			return writeJSON(cmd.OutOrStdout(), res)
		}
		printDrain(cmd.OutOrStdout(), res)
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"st"},
	Short:   "Show queued and unresolved events",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		pending, err := a.queue.Pending(cmd.Context())
		if err != nil {
			return err
		}
		if syncJSON {
			return writeJSON(cmd.OutOrStdout(), pending)
		}
		online := offline.PingConnectivity{Store: a.store}.Online(cmd.Context())
		printQueue(cmd.OutOrStdout(), pending, online)
		return nil
	},
}

var syncRetryCmd = &cobra.Command{
	Use:   "retry <event-id>",
	Short: "Give an unresolved event another round of attempts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		ev, err := a.queue.Retry(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		goodColor.Fprintf(cmd.OutOrStdout(), "✅ Event %s (%s for %s) will be retried on the next drain\n", ev.ID, ev.Kind, ev.MemberID)
		return nil
	},
}

var syncDiscardCmd = &cobra.Command{
	Use:   "discard <event-id>",
	Short: "Drop a queued event without applying it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.queue.Discard(cmd.Context(), args[0]); err != nil {
			return err
		}
		warnColor.Fprintf(cmd.OutOrStdout(), "🗑  Discarded event %s\n", args[0])
		return nil
	},
}

func printDrain(w io.Writer, r offline.DrainResult) {
	headerColor.Fprintln(w, "🔄 Drain finished")
	fmt.Fprintf(w, "  %s %d (%d already applied)\n", labelColor.Sprint("Synced:"), r.Synced, r.Conflicts)
	if r.Failed > 0 {
		badColor.Fprintf(w, "  Failed: %d\n", r.Failed)
	}
	if r.Unresolved > 0 {
		badColor.Fprintf(w, "  Unresolved: %d (see `crewclock sync status`)\n", r.Unresolved)
	}
	if r.Blocked > 0 {
		warnColor.Fprintf(w, "  Blocked behind a failure: %d\n", r.Blocked)
	}
}

func printQueue(w io.Writer, events []offline.Event, online bool) {
	state := "offline"
	if online {
		state = "online"
	}
	fmt.Fprintf(w, "%s %s\n", labelColor.Sprint("Store:"), tui.StatusBadge(state))

	if len(events) == 0 {
		goodColor.Fprintln(w, "✅ Nothing queued.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tKIND\tMEMBER\tAT\tATTEMPTS\tSTATE\tLAST ERROR")
	for _, ev := range events {
		state := "pending"
		if ev.Unresolved {
			state = "unresolved"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			ev.ID, ev.Kind, ev.MemberID, fmtTime(ev.Timestamp), ev.SyncAttempts,
			tui.StatusBadge(state), tui.Truncate(ev.LastError, 48))
	}
}

func init() {
	for _, c := range []*cobra.Command{syncDrainCmd, syncStatusCmd} {
		c.Flags().BoolVar(&syncJSON, "json", false, "print JSON")
	}
	syncCmd.AddCommand(syncDrainCmd, syncStatusCmd, syncRetryCmd, syncDiscardCmd)
	rootCmd.AddCommand(syncCmd)
}
