package directory

import (
	"errors"
	"fmt"
	"sort"
)

// UnassignedCrew is the crew label for work no crew can be attributed to.
const UnassignedCrew = "unassigned"

// Resolver errors
var (
	// ErrUnknownMember indicates the member is not in the directory
	ErrUnknownMember = errors.New("unknown member")

	// ErrUnknownJob indicates the job is not in the directory
	ErrUnknownJob = errors.New("unknown job")

	// ErrJobNotAssigned indicates the job is not assigned to the member's crew
	ErrJobNotAssigned = errors.New("job not assigned to member's crew")
)

// Resolver decides which jobs a member may clock into and which crew a job's
// labor is attributed to.
type Resolver struct {
	crews CrewDirectory
	jobs  JobDirectory
}

// NewResolver creates a resolver over the given directories.
func NewResolver(crews CrewDirectory, jobs JobDirectory) *Resolver {
	return &Resolver{crews: crews, jobs: jobs}
}

// AllowedJobs returns the jobs the member's crew is working: the crew's
// active jobs plus every job that lists the crew as assigned. Members with no
// crew get nil, meaning unrestricted.
func (r *Resolver) AllowedJobs(memberID string) []string {
	crew, ok := r.crews.CrewForMember(memberID)
	if !ok {
		return nil
	}

	seen := make(map[string]bool)
	for _, id := range crew.ActiveJobIDs {
		seen[id] = true
	}
	for _, j := range r.jobs.Jobs() {
		for _, c := range j.AssignedCrewIDs {
			if c == crew.ID {
				seen[j.ID] = true
				break
			}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// CanClockInto returns nil when the member may clock into the job.
func (r *Resolver) CanClockInto(memberID, jobID string) error {
	if _, ok := r.crews.FindMember(memberID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMember, memberID)
	}
	if _, ok := r.jobs.Job(jobID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, jobID)
	}
	crew, ok := r.crews.CrewForMember(memberID)
	if !ok {
		return nil
	}
	for _, id := range r.AllowedJobs(memberID) {
		if id == jobID {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not on crew %s's jobs", ErrJobNotAssigned, jobID, crew.ID)
}

// OwningCrew returns the first crew assigned to the job.
func (r *Resolver) OwningCrew(jobID string) (string, bool) {
	j, ok := r.jobs.Job(jobID)
	if !ok || len(j.AssignedCrewIDs) == 0 {
		return "", false
	}
	return j.AssignedCrewIDs[0], true
}

// AttributedCrew picks the crew a member's time on a job is reported under:
// the member's own crew, else the job's owning crew, else UnassignedCrew.
func (r *Resolver) AttributedCrew(memberID, jobID string) string {
	if c, ok := r.crews.CrewForMember(memberID); ok {
		return c.ID
	}
	if id, ok := r.OwningCrew(jobID); ok {
		return id
	}
	return UnassignedCrew
}

// CrewName returns a display name for a crew id.
func (r *Resolver) CrewName(crewID string) string {
	if crewID == UnassignedCrew {
		return "Unassigned"
	}
	type crewLookup interface {
		Crew(id string) (Crew, bool)
	}
	if cl, ok := r.crews.(crewLookup); ok {
		if c, ok := cl.Crew(crewID); ok && c.Name != "" {
			return c.Name
		}
	}
	return crewID
}
