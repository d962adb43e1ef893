// Package tui renders terminal output for the crewclock CLI: the colour
// palette, status badges, hours bars and tables.
package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// Color palette
var (
	ColorPrimary   = lipgloss.AdaptiveColor{Light: "#2B6CB0", Dark: "#63B3ED"}
	ColorSecondary = lipgloss.AdaptiveColor{Light: "#38B2AC", Dark: "#4FD1C5"}
	ColorSuccess   = lipgloss.AdaptiveColor{Light: "#38A169", Dark: "#48BB78"}
	ColorWarning   = lipgloss.AdaptiveColor{Light: "#D69E2E", Dark: "#F6E05E"}
	ColorError     = lipgloss.AdaptiveColor{Light: "#E53E3E", Dark: "#FC8181"}
	ColorMuted     = lipgloss.AdaptiveColor{Light: "#718096", Dark: "#A0AEC0"}
	ColorText      = lipgloss.AdaptiveColor{Light: "#1A202C", Dark: "#F7FAFC"}
	ColorBorder    = lipgloss.AdaptiveColor{Light: "#CBD5E0", Dark: "#4A5568"}
)

// Base styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	SubtitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary)

	LabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorMuted)

	ValueStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// HeaderCellStyle is used for table header rows
	HeaderCellStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			Padding(0, 1)

	// CellStyle is used for table body rows
	CellStyle = lipgloss.NewStyle().
			Padding(0, 1)

	// TotalCellStyle highlights a totals row
	TotalCellStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)
)

// Hours bar styles
var (
	BarRegular  = lipgloss.NewStyle().Foreground(ColorSuccess)
	BarOvertime = lipgloss.NewStyle().Foreground(ColorWarning)
	BarDouble   = lipgloss.NewStyle().Foreground(ColorError)
	BarEmpty    = lipgloss.NewStyle().Foreground(ColorMuted)
)

// IsTTY returns true if stdout is a terminal
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// HoursBar draws a shift as a bar of width cells scaled to scale hours:
// regular hours first, then overtime, then double time.
func HoursBar(regular, overtime, double, scale float64, width int) string {
	if width <= 0 {
		width = 20
	}
	if scale <= 0 {
		scale = regular + overtime + double
	}
	if scale <= 0 {
		return BarEmpty.Render(strings.Repeat("░", width))
	}

	cells := func(h float64) int {
		n := int(h / scale * float64(width))
		if n < 0 {
			return 0
		}
		return n
	}
	r := min(cells(regular), width)
	o := min(cells(overtime), width-r)
	d := min(cells(double), width-r-o)
	empty := width - r - o - d

	return BarRegular.Render(strings.Repeat("█", r)) +
		BarOvertime.Render(strings.Repeat("█", o)) +
		BarDouble.Render(strings.Repeat("█", d)) +
		BarEmpty.Render(strings.Repeat("░", empty))
}

// StatusBadge colours an entry or event status.
func StatusBadge(status string) string {
	switch status {
	case "approved", "synced", "online":
		return SuccessStyle.Render(status)
	case "active", "completed", "pending":
		return ValueStyle.Render(status)
	case "edited", "queued", "offline":
		return WarningStyle.Render(status)
	case "rejected", "unresolved":
		return ErrorStyle.Render(status)
	}
	return MutedStyle.Render(status)
}

// Truncate shortens s to at most width terminal cells.
func Truncate(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// Table renders rows under headers. When totals is true the last row is
// styled as a totals row.
func Table(headers []string, rows [][]string, totals bool) string {
	last := len(rows) - 1
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorBorder)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return HeaderCellStyle
			case totals && row == last:
				return TotalCellStyle
			}
			return CellStyle
		})
	return t.String()
}

// FormatKeyValue formats a key-value pair
func FormatKeyValue(key, value string) string {
	return LabelStyle.Render(key+":") + " " + ValueStyle.Render(value)
}
