// cmd/report.go
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldcrew/crewclock/internal/report"
	"github.com/fieldcrew/crewclock/internal/tui"
)

var (
	reportFrom   string
	reportTo     string
	reportFormat string
	reportOut    string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Labor cost reports",
}

var reportLaborCmd = &cobra.Command{
	Use:   "labor",
	Short: "Labor cost by member, job and crew for a date range",
	Long: `Totals completed and approved entries whose clock-in falls in [--from, --to).
--to defaults to the day after --from.`,
	Example: `  # Weekly report as a table
  crewclock report labor --from 2025-06-02 --to 2025-06-09

  # Same range as a spreadsheet
  crewclock report labor --from 2025-06-02 --to 2025-06-09 --format xlsx --out week23.xlsx`,
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := reportRange(reportFrom, reportTo)
		if err != nil {
			return err
		}
		if reportFormat == "xlsx" && reportOut == "" && tui.IsTTY() {
			return errors.New("xlsx output is binary: pass --out or redirect stdout")
		}

		a, err := openApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.reports.Generate(cmd.Context(), start, end)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if reportOut != "" {
			f, err := os.Create(reportOut)
			if err != nil {
				return fmt.Errorf("create %s: %w", reportOut, err)
			}
			defer f.Close()
			w = f
		}
		if err := writeReport(w, r, reportFormat); err != nil {
			return err
		}
		if reportOut != "" {
			goodColor.Fprintf(cmd.ErrOrStderr(), "✅ Wrote %s\n", reportOut)
		}
		return nil
	},
}

// reportRange parses --from/--to; an empty --to means one day after --from.
func reportRange(from, to string) (time.Time, time.Time, error) {
	if from == "" {
		return time.Time{}, time.Time{}, errors.New("--from is required")
	}
	start, err := parseDay(from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to == "" {
		return start, start.AddDate(0, 0, 1), nil
	}
	end, err := parseDay(to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func writeReport(w io.Writer, r report.LaborCostReport, format string) error {
	switch format {
	case "", "table":
		printReportTable(w, r)
		return nil
	case "json":
		return writeJSON(w, r)
	case "csv":
		return report.WriteCSV(w, r)
	case "xlsx":
		return report.WriteXLSX(w, r)
	}
	return fmt.Errorf("unknown format %q: use table, json, csv or xlsx", format)
}

var reportHeaders = []string{"Name", "Entries", "Hours", "Regular", "Overtime", "Double", "Breaks (min)", "Cost"}

func reportRow(name string, t report.Totals) []string {
	return []string{
		name,
		fmt.Sprintf("%d", t.Entries),
		fmt.Sprintf("%.2f", t.TotalHours),
		fmt.Sprintf("%.2f", t.RegularHours),
		fmt.Sprintf("%.2f", t.OvertimeHours),
		fmt.Sprintf("%.2f", t.DoubleTimeHours),
		fmt.Sprintf("%d", t.BreakMinutes),
		fmtMoney(t.TotalCost),
	}
}

func printReportTable(w io.Writer, r report.LaborCostReport) {
	fmt.Fprintln(w, tui.TitleStyle.Render(fmt.Sprintf("Labor cost %s to %s",
		r.Start.Local().Format("2006-01-02"), r.End.Local().Format("2006-01-02"))))

	if r.Totals.Entries == 0 {
		fmt.Fprintln(w, tui.MutedStyle.Render("No completed or approved entries in this range."))
		return
	}

	sections := []struct {
		title string
		lines []report.Line
	}{
		{"By member", r.ByMember},
		{"By job", r.ByJob},
		{"By crew", r.ByCrew},
	}
	for _, s := range sections {
		fmt.Fprintln(w, tui.SubtitleStyle.Render(s.title))
		rows := make([][]string, 0, len(s.lines)+1)
		for _, l := range s.lines {
			rows = append(rows, reportRow(tui.Truncate(l.Name, 28), l.Totals))
		}
		rows = append(rows, reportRow("Total", r.Totals))
		fmt.Fprintln(w, tui.Table(reportHeaders, rows, true))
	}

	fmt.Fprintln(w, tui.FormatKeyValue("Average hourly rate", fmtMoney(r.AverageHourlyRate)))
	fmt.Fprintln(w, tui.FormatKeyValue("Total labor cost", fmtMoney(r.Totals.TotalCost)))
}

func init() {
	reportLaborCmd.Flags().StringVar(&reportFrom, "from", "", "range start (YYYY-MM-DD or RFC3339)")
	reportLaborCmd.Flags().StringVar(&reportTo, "to", "", "range end, exclusive (default: --from plus one day)")
	reportLaborCmd.Flags().StringVar(&reportFormat, "format", "table", "table, json, csv or xlsx")
	reportLaborCmd.Flags().StringVarP(&reportOut, "out", "o", "", "write to a file instead of stdout")

	reportCmd.AddCommand(reportLaborCmd)
	rootCmd.AddCommand(reportCmd)
}
