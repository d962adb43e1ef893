package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

var columns = []string{
	"Section", "ID", "Name", "Entries", "Total Hours", "Regular Hours",
	"Overtime Hours", "Double Time Hours", "Break Minutes", "Auto Break Minutes",
	"Regular Cost", "Overtime Cost", "Double Time Cost", "Total Cost",
}

// rows flattens the report into one row per line, sections in a fixed order.
func rows(r LaborCostReport) [][]any {
	var out [][]any
	add := func(section string, l Line) {
		out = append(out, []any{
			section, l.ID, l.Name, l.Entries, l.TotalHours, l.RegularHours,
			l.OvertimeHours, l.DoubleTimeHours, l.BreakMinutes, l.AutoBreakMinutes,
			l.RegularCost, l.OvertimeCost, l.DoubleTimeCost, l.TotalCost,
		})
	}
	for _, l := range r.ByMember {
		add("member", l)
	}
	for _, l := range r.ByJob {
		add("job", l)
	}
	for _, l := range r.ByCrew {
		add("crew", l)
	}
	add("total", Line{ID: "all", Name: "All", Totals: r.Totals})
	return out
}

// WriteCSV writes the report as CSV with a header row.
func WriteCSV(w io.Writer, r LaborCostReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	for _, row := range rows(r) {
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = formatCell(v)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCell(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', 2, 64)
	default:
		return fmt.Sprint(x)
	}
}

const (
	breakdownSheet = "Labor Cost"
	summarySheet   = "Summary"
)

// WriteXLSX writes the report as an Excel workbook with a breakdown sheet and
// a summary sheet.
func WriteXLSX(w io.Writer, r LaborCostReport) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(breakdownSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	for c, v := range columns {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		if err := f.SetCellValue(breakdownSheet, cell, v); err != nil {
			return err
		}
	}
	for i, row := range rows(r) {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, i+2)
			if err := f.SetCellValue(breakdownSheet, cell, v); err != nil {
				return err
			}
		}
	}
	_ = f.SetColWidth(breakdownSheet, "A", "A", 10)
	_ = f.SetColWidth(breakdownSheet, "B", "C", 24)
	_ = f.SetColWidth(breakdownSheet, "D", "N", 16)

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#1F2937"}, Pattern: 1},
	})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = f.SetCellStyle(breakdownSheet, "A1", last, header)
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	summary := [][]any{
		{"Start", r.Start.Format("2006-01-02 15:04")},
		{"End", r.End.Format("2006-01-02 15:04")},
		{"Generated", r.GeneratedAt.Format("2006-01-02 15:04")},
		{"Entries", r.Totals.Entries},
		{"Total Hours", r.Totals.TotalHours},
		{"Total Cost", r.Totals.TotalCost},
		{"Average Hourly Rate", r.AverageHourlyRate},
	}
	for i, kv := range summary {
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &kv); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 22)
	_ = f.SetColWidth(summarySheet, "B", "B", 20)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
