// cmd/settings.go
package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fieldcrew/crewclock/internal/settings"
)

var (
	settingsJSON  bool
	settingsActor string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "View and change the time tracking policy",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		s := a.settings.Get()
		if settingsJSON {
			return writeJSON(cmd.OutOrStdout(), s)
		}
		printSettings(cmd.OutOrStdout(), s)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change individual settings",
	Example: `  # Overtime after 40 hours at time and a half
  crewclock settings set --overtime-threshold-hours 40 --overtime-multiplier 1.5

  # Deduct an automatic 30 minute lunch
  crewclock settings set --break-deduction-policy auto_30min`,
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := settingsPatch(cmd.Flags())
		if err != nil {
			return err
		}
		if patch.IsEmpty() {
			return errors.New("nothing to change: pass at least one setting flag")
		}

		a, err := openApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.settings.Update(cmd.Context(), patch, actorName(settingsActor))
		if err != nil {
			return err
		}
		goodColor.Fprintln(cmd.OutOrStdout(), "✅ Settings updated")
		printSettings(cmd.OutOrStdout(), s)
		return nil
	},
}

var settingsImportCmd = &cobra.Command{
	Use:   "import <policy.yaml>",
	Short: "Replace the settings with a YAML policy file",
	Long: `Reads a YAML policy file and replaces the current settings with it. Fields
missing from the file take their default values.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		next, err := settings.LoadFile(args[0])
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.settings.Replace(cmd.Context(), next, actorName(settingsActor))
		if err != nil {
			return err
		}
		goodColor.Fprintf(cmd.OutOrStdout(), "✅ Imported %s\n", args[0])
		printSettings(cmd.OutOrStdout(), s)
		return nil
	},
}

// settingsPatch builds a patch from the setting flags that were set.
func settingsPatch(flags *pflag.FlagSet) (settings.Patch, error) {
	var p settings.Patch
	var errs []error

	float := func(name string, dst **float64) {
		if !flags.Changed(name) {
			return
		}
		v, err := flags.GetFloat64(name)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = &v
	}
	boolean := func(name string, dst **bool) {
		if !flags.Changed(name) {
			return
		}
		v, err := flags.GetBool(name)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = &v
	}
	integer := func(name string, dst **int) {
		if !flags.Changed(name) {
			return
		}
		v, err := flags.GetInt(name)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = &v
	}

	float("overtime-threshold-hours", &p.OvertimeThresholdHours)
	float("overtime-multiplier", &p.OvertimeMultiplier)
	boolean("double-time-enabled", &p.DoubleTimeEnabled)
	float("double-time-threshold-hours", &p.DoubleTimeThresholdHours)
	float("double-time-multiplier", &p.DoubleTimeMultiplier)
	float("overhead-multiplier", &p.OverheadMultiplier)
	float("benefits-percentage", &p.BenefitsPercentage)
	if flags.Changed("break-deduction-policy") {
		v, err := flags.GetString("break-deduction-policy")
		if err != nil {
			errs = append(errs, err)
		} else {
			policy := settings.BreakDeductionPolicy(v)
			p.BreakDeductionPolicy = &policy
		}
	}
	float("auto-break-threshold-hours", &p.AutoBreakThresholdHours)
	integer("auto-break-duration-minutes", &p.AutoBreakDurationMinutes)
	boolean("require-gps-for-clock-in", &p.RequireGPSForClockIn)
	boolean("require-gps-for-clock-out", &p.RequireGPSForClockOut)
	float("gps-accuracy-threshold-meters", &p.GPSAccuracyThresholdMeters)
	boolean("allow-gpsless-exceptions", &p.AllowGPSlessExceptions)
	integer("rounding-interval-minutes", &p.RoundingIntervalMinutes)

	return p, errors.Join(errs...)
}

func printSettings(w io.Writer, s settings.Settings) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	row := func(label string, value any) {
		fmt.Fprintf(tw, "  %s\t%v\n", labelColor.Sprint(label), value)
	}
	onOff := func(b bool) string {
		if b {
			return goodColor.Sprint("on")
		}
		return warnColor.Sprint("off")
	}

	headerColor.Fprintln(tw, "⏱  Overtime")
	row("Threshold", fmt.Sprintf("%.2fh", s.OvertimeThresholdHours))
	row("Multiplier", fmt.Sprintf("%.2fx", s.OvertimeMultiplier))
	row("Double time", onOff(s.DoubleTimeEnabled))
	if s.DoubleTimeEnabled {
		row("Double time after", fmt.Sprintf("%.2fh at %.2fx", s.DoubleTimeThresholdHours, s.DoubleTimeMultiplier))
	}

	headerColor.Fprintln(tw, "💵 Cost")
	row("Overhead", fmt.Sprintf("%.0f%%", s.OverheadMultiplier*100))
	row("Benefits", fmt.Sprintf("%.0f%%", s.BenefitsPercentage))

	headerColor.Fprintln(tw, "☕ Breaks")
	row("Deduction policy", s.BreakDeductionPolicy)
	if s.BreakDeductionPolicy.IsAuto() {
		row("Auto break", fmt.Sprintf("%d min after %.2fh", s.AutoBreakDurationMinutes, s.AutoBreakThresholdHours))
	}

	headerColor.Fprintln(tw, "📍 GPS")
	row("Required at clock in", onOff(s.RequireGPSForClockIn))
	row("Required at clock out", onOff(s.RequireGPSForClockOut))
	row("Accuracy threshold", fmt.Sprintf("%.0fm", s.GPSAccuracyThresholdMeters))
	row("GPS-less exceptions", onOff(s.AllowGPSlessExceptions))

	headerColor.Fprintln(tw, "🕒 Rounding")
	if s.RoundingIntervalMinutes > 0 {
		row("Interval", fmt.Sprintf("%d min", s.RoundingIntervalMinutes))
	} else {
		row("Interval", "none")
	}

	if !s.UpdatedAt.IsZero() {
		row("Updated", fmt.Sprintf("%s by %s", fmtTime(s.UpdatedAt), s.UpdatedBy))
	}
}

// addSettingFlags defines one flag per settings field.
func addSettingFlags(f *pflag.FlagSet) {
	f.Float64("overtime-threshold-hours", 0, "hours per entry before overtime")
	f.Float64("overtime-multiplier", 0, "overtime pay multiplier")
	f.Bool("double-time-enabled", false, "enable the double time tier")
	f.Float64("double-time-threshold-hours", 0, "hours per entry before double time")
	f.Float64("double-time-multiplier", 0, "double time pay multiplier")
	f.Float64("overhead-multiplier", 0, "overhead as a fraction of wages (0.15 = 15%)")
	f.Float64("benefits-percentage", 0, "benefits percentage (informational)")
	f.String("break-deduction-policy", "", "none, auto_30min, auto_60min or manual")
	f.Float64("auto-break-threshold-hours", 0, "worked hours before an automatic break applies")
	f.Int("auto-break-duration-minutes", 0, "automatic break length")
	f.Bool("require-gps-for-clock-in", false, "require a location to clock in")
	f.Bool("require-gps-for-clock-out", false, "require a location to clock out")
	f.Float64("gps-accuracy-threshold-meters", 0, "worst accepted accuracy")
	f.Bool("allow-gpsless-exceptions", false, "let clock events through without a usable location")
	f.Int("rounding-interval-minutes", 0, "round worked time to this interval (0 disables)")
}

func init() {
	settingsShowCmd.Flags().BoolVar(&settingsJSON, "json", false, "print JSON")

	addSettingFlags(settingsSetCmd.Flags())

	for _, c := range []*cobra.Command{settingsSetCmd, settingsImportCmd} {
		c.Flags().StringVar(&settingsActor, "actor", "", "who made the change (default $USER)")
	}

	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsImportCmd)
	rootCmd.AddCommand(settingsCmd)
}
