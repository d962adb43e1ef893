// Package directory provides the crew and job master data the time tracking
// engine reads, loaded from a YAML roster file, and the rules deciding which
// jobs a member may clock into.
package directory

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Role is a member's permission level.
type Role string

const (
	RoleCrew  Role = "crew"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCrew, RoleAdmin:
		return true
	}
	return false
}

// Member is a crew member.
type Member struct {
	ID         string  `yaml:"id" json:"id"`
	Name       string  `yaml:"name" json:"name"`
	HourlyRate float64 `yaml:"hourly_rate" json:"hourly_rate"`
	Role       Role    `yaml:"role" json:"role"`
}

// Crew groups members under a leader.
type Crew struct {
	ID           string   `yaml:"id" json:"id"`
	Name         string   `yaml:"name" json:"name"`
	LeaderID     string   `yaml:"leader_id" json:"leader_id"`
	MemberIDs    []string `yaml:"member_ids" json:"member_ids"`
	ActiveJobIDs []string `yaml:"active_job_ids" json:"active_job_ids"`
}

// Job is a job site.
type Job struct {
	ID              string   `yaml:"id" json:"id"`
	Name            string   `yaml:"name" json:"name"`
	Address         string   `yaml:"address" json:"address"`
	AssignedCrewIDs []string `yaml:"assigned_crew_ids" json:"assigned_crew_ids"`
}

// CrewDirectory looks up members and their crews.
type CrewDirectory interface {
	FindMember(id string) (Member, bool)
	CrewForMember(memberID string) (Crew, bool)
}

// JobDirectory looks up jobs.
type JobDirectory interface {
	Job(id string) (Job, bool)
	JobName(id string) (string, bool)
	JobAddress(id string) (string, bool)
	Jobs() []Job
}

// Roster errors
var (
	// ErrDuplicateID indicates two records share an id
	ErrDuplicateID = errors.New("duplicate id")

	// ErrUnknownReference indicates a record refers to an id that doesn't exist
	ErrUnknownReference = errors.New("unknown reference")

	// ErrMissingID indicates a record without an id
	ErrMissingID = errors.New("missing id")

	// ErrInvalidID indicates an id containing the ':' key separator
	ErrInvalidID = errors.New("id must not contain ':'")
)

type rosterFile struct {
	Members []Member `yaml:"members"`
	Crews   []Crew   `yaml:"crews"`
	Jobs    []Job    `yaml:"jobs"`
}

// Roster is an immutable, in-memory directory of members, crews and jobs.
// It implements both CrewDirectory and JobDirectory.
type Roster struct {
	members    map[string]Member
	crews      map[string]Crew
	jobs       map[string]Job
	crewOrder  []string
	jobOrder   []string
	memberCrew map[string]string
}

// LoadRoster reads a YAML roster file.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	r, err := ParseRoster(data)
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return r, nil
}

// ParseRoster parses roster YAML.
func ParseRoster(data []byte) (*Roster, error) {
	var f rosterFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	return NewRoster(f.Members, f.Crews, f.Jobs)
}

// NewRoster builds a roster and checks its references. A member listed in
// several crews belongs to the first one.
func NewRoster(members []Member, crews []Crew, jobs []Job) (*Roster, error) {
	r := &Roster{
		members:    make(map[string]Member, len(members)),
		crews:      make(map[string]Crew, len(crews)),
		jobs:       make(map[string]Job, len(jobs)),
		memberCrew: make(map[string]string),
	}

	for _, m := range members {
		if m.ID == "" {
			return nil, fmt.Errorf("member %q: %w", m.Name, ErrMissingID)
		}
		if strings.Contains(m.ID, ":") {
			return nil, fmt.Errorf("member %s: %w", m.ID, ErrInvalidID)
		}
		if _, dup := r.members[m.ID]; dup {
			return nil, fmt.Errorf("member %s: %w", m.ID, ErrDuplicateID)
		}
		if m.Role == "" {
			m.Role = RoleCrew
		}
		if !m.Role.Valid() {
			return nil, fmt.Errorf("member %s: unknown role %q", m.ID, m.Role)
		}
		if m.HourlyRate < 0 {
			return nil, fmt.Errorf("member %s: hourly rate must not be negative", m.ID)
		}
		r.members[m.ID] = m
	}

	for _, j := range jobs {
		if j.ID == "" {
			return nil, fmt.Errorf("job %q: %w", j.Name, ErrMissingID)
		}
		if strings.Contains(j.ID, ":") {
			return nil, fmt.Errorf("job %s: %w", j.ID, ErrInvalidID)
		}
		if _, dup := r.jobs[j.ID]; dup {
			return nil, fmt.Errorf("job %s: %w", j.ID, ErrDuplicateID)
		}
		r.jobs[j.ID] = j
		r.jobOrder = append(r.jobOrder, j.ID)
	}

	for _, c := range crews {
		if c.ID == "" {
			return nil, fmt.Errorf("crew %q: %w", c.Name, ErrMissingID)
		}
		if strings.Contains(c.ID, ":") {
			return nil, fmt.Errorf("crew %s: %w", c.ID, ErrInvalidID)
		}
		if _, dup := r.crews[c.ID]; dup {
			return nil, fmt.Errorf("crew %s: %w", c.ID, ErrDuplicateID)
		}
		if c.LeaderID != "" {
			if _, ok := r.members[c.LeaderID]; !ok {
				return nil, fmt.Errorf("crew %s leader %s: %w", c.ID, c.LeaderID, ErrUnknownReference)
			}
		}
		for _, id := range c.MemberIDs {
			if _, ok := r.members[id]; !ok {
				return nil, fmt.Errorf("crew %s member %s: %w", c.ID, id, ErrUnknownReference)
			}
			if _, taken := r.memberCrew[id]; !taken {
				r.memberCrew[id] = c.ID
			}
		}
		for _, id := range c.ActiveJobIDs {
			if _, ok := r.jobs[id]; !ok {
				return nil, fmt.Errorf("crew %s job %s: %w", c.ID, id, ErrUnknownReference)
			}
		}
		r.crews[c.ID] = c
		r.crewOrder = append(r.crewOrder, c.ID)
	}

	for _, j := range jobs {
		for _, id := range j.AssignedCrewIDs {
			if _, ok := r.crews[id]; !ok {
				return nil, fmt.Errorf("job %s crew %s: %w", j.ID, id, ErrUnknownReference)
			}
		}
	}

	return r, nil
}

func (r *Roster) FindMember(id string) (Member, bool) {
	m, ok := r.members[id]
	return m, ok
}

func (r *Roster) CrewForMember(memberID string) (Crew, bool) {
	id, ok := r.memberCrew[memberID]
	if !ok {
		return Crew{}, false
	}
	return r.crews[id], true
}

// Crew returns a crew by id.
func (r *Roster) Crew(id string) (Crew, bool) {
	c, ok := r.crews[id]
	return c, ok
}

func (r *Roster) Job(id string) (Job, bool) {
	j, ok := r.jobs[id]
	return j, ok
}

func (r *Roster) JobName(id string) (string, bool) {
	j, ok := r.jobs[id]
	return j.Name, ok
}

func (r *Roster) JobAddress(id string) (string, bool) {
	j, ok := r.jobs[id]
	return j.Address, ok
}

// Jobs returns every job in file order.
func (r *Roster) Jobs() []Job {
	out := make([]Job, 0, len(r.jobOrder))
	for _, id := range r.jobOrder {
		out = append(out, r.jobs[id])
	}
	return out
}

// Crews returns every crew in file order.
func (r *Roster) Crews() []Crew {
	out := make([]Crew, 0, len(r.crewOrder))
	for _, id := range r.crewOrder {
		out = append(out, r.crews[id])
	}
	return out
}

// Members returns every member sorted by id.
func (r *Roster) Members() []Member {
	out := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
