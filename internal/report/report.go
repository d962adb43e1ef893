// Package report aggregates finalized time entries into labor cost reports.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fieldcrew/crewclock/internal/timeclock"
)

// ErrInvalidRange is returned when the report window is empty or inverted.
var ErrInvalidRange = errors.New("report end must be after start")

// EntrySource lists time entries.
type EntrySource interface {
	Entries(ctx context.Context, f timeclock.EntryFilter) ([]timeclock.TimeEntry, error)
}

// CrewAttribution decides which crew a member's time on a job is reported
// under.
type CrewAttribution interface {
	AttributedCrew(memberID, jobID string) string
	CrewName(crewID string) string
}

// Totals are summed cost fields. Each sum is rounded to 2 decimals once.
type Totals struct {
	Entries          int     `json:"entries"`
	TotalHours       float64 `json:"total_hours"`
	RegularHours     float64 `json:"regular_hours"`
	OvertimeHours    float64 `json:"overtime_hours"`
	DoubleTimeHours  float64 `json:"double_time_hours"`
	BreakMinutes     int     `json:"break_minutes"`
	AutoBreakMinutes int     `json:"auto_break_minutes"`
	RegularCost      float64 `json:"regular_cost"`
	OvertimeCost     float64 `json:"overtime_cost"`
	DoubleTimeCost   float64 `json:"double_time_cost"`
	TotalCost        float64 `json:"total_cost"`
}

// Line is one group in a breakdown.
type Line struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Totals
}

// LaborCostReport is a derived view over completed and approved entries.
type LaborCostReport struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	GeneratedAt time.Time `json:"generated_at"`

	ByMember []Line `json:"by_member"`
	ByJob    []Line `json:"by_job"`
	ByCrew   []Line `json:"by_crew"`

	Totals Totals `json:"totals"`

	// AverageHourlyRate is the hours-weighted mean of the entries' base
	// rates, before overhead and premiums.
	AverageHourlyRate float64 `json:"average_hourly_rate"`
}

// GeneratorConfig holds the generator's collaborators.
type GeneratorConfig struct {
	// Entries is where time entries are read from (required)
	Entries EntrySource

	// Crews attributes entries to crews (optional; without it every entry
	// lands in the unassigned crew)
	Crews CrewAttribution

	Now func() time.Time
}

// Generator builds labor cost reports.
type Generator struct {
	entries EntrySource
	crews   CrewAttribution
	now     func() time.Time
}

// NewGenerator creates a report generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Generator{entries: cfg.Entries, crews: cfg.Crews, now: now}
}

// Generate reports on every completed or approved entry clocked in within
// [start, end). Entries are never modified.
func (g *Generator) Generate(ctx context.Context, start, end time.Time) (LaborCostReport, error) {
	if !end.After(start) {
		return LaborCostReport{}, fmt.Errorf("%w: %s to %s", ErrInvalidRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	entries, err := g.entries.Entries(ctx, timeclock.EntryFilter{
		Statuses: []timeclock.EntryStatus{timeclock.StatusCompleted, timeclock.StatusApproved},
		From:     start,
		To:       end,
	})
	if err != nil {
		return LaborCostReport{}, fmt.Errorf("list entries: %w", err)
	}

	var (
		total    sum
		rateHrs  float64
		byMember = newGroups()
		byJob    = newGroups()
		byCrew   = newGroups()
	)
	for _, e := range entries {
		// The store filter already applies; guard against looser sources.
		if !e.Status.Reportable() {
			continue
		}
		total.add(e)
		rateHrs += e.HourlyRate * e.TotalHours

		byMember.add(e.MemberID, orID(e.MemberName, e.MemberID), e)
		byJob.add(e.JobID, orID(e.JobName, e.JobID), e)
		crewID, crewName := g.crew(e)
		byCrew.add(crewID, crewName, e)
	}

	r := LaborCostReport{
		Start:       start.UTC(),
		End:         end.UTC(),
		GeneratedAt: g.now().UTC(),
		ByMember:    byMember.lines(),
		ByJob:       byJob.lines(),
		ByCrew:      byCrew.lines(),
		Totals:      total.totals(),
	}
	if total.hours > 0 {
		r.AverageHourlyRate = timeclock.Round2(rateHrs / total.hours)
	}
	return r, nil
}

func (g *Generator) crew(e timeclock.TimeEntry) (id, name string) {
	if g.crews == nil {
		return "unassigned", "Unassigned"
	}
	id = g.crews.AttributedCrew(e.MemberID, e.JobID)
	return id, g.crews.CrewName(id)
}

// sum accumulates unrounded field sums.
type sum struct {
	entries      int
	hours        float64
	regular      float64
	overtime     float64
	double       float64
	breakMins    int
	autoBreak    int
	regularCost  float64
	overtimeCost float64
	doubleCost   float64
	totalCost    float64
}

func (s *sum) add(e timeclock.TimeEntry) {
	s.entries++
	s.hours += e.TotalHours
	s.regular += e.RegularHours
	s.overtime += e.OvertimeHours
	s.double += e.DoubleTimeHours
	s.breakMins += e.TotalBreakMinutes
	s.autoBreak += e.AutoBreakMinutes
	s.regularCost += e.RegularCost
	s.overtimeCost += e.OvertimeCost
	s.doubleCost += e.DoubleTimeCost
	s.totalCost += e.TotalCost
}

func (s sum) totals() Totals {
	return Totals{
		Entries:          s.entries,
		TotalHours:       timeclock.Round2(s.hours),
		RegularHours:     timeclock.Round2(s.regular),
		OvertimeHours:    timeclock.Round2(s.overtime),
		DoubleTimeHours:  timeclock.Round2(s.double),
		BreakMinutes:     s.breakMins,
		AutoBreakMinutes: s.autoBreak,
		RegularCost:      timeclock.Round2(s.regularCost),
		OvertimeCost:     timeclock.Round2(s.overtimeCost),
		DoubleTimeCost:   timeclock.Round2(s.doubleCost),
		TotalCost:        timeclock.Round2(s.totalCost),
	}
}

type group struct {
	name string
	sum  sum
}

type groups map[string]*group

func newGroups() groups {
	return make(groups)
}

func (g groups) add(id, name string, e timeclock.TimeEntry) {
	grp, ok := g[id]
	if !ok {
		grp = &group{name: name}
		g[id] = grp
	}
	grp.sum.add(e)
}

// lines returns the groups ordered by cost, highest first, then by id.
func (g groups) lines() []Line {
	out := make([]Line, 0, len(g))
	for id, grp := range g {
		out = append(out, Line{ID: id, Name: grp.name, Totals: grp.sum.totals()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalCost != out[j].TotalCost {
			return out[i].TotalCost > out[j].TotalCost
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func orID(name, id string) string {
	if name == "" {
		return id
	}
	return name
}
