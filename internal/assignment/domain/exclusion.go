package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExclusionPolicy derives the set of doctors barred from a reassignment
// round. The set is a hard filter handed to the matching collaborator; the
// policy itself only derives it.
type ExclusionPolicy struct {
	// CanReassignToSameDoctor switches between permanent exclusion of every
	// doctor who ever timed out on the case and a cooldown on the most
	// recent one.
	CanReassignToSameDoctor bool

	// Cooldown is how long after a timeout a doctor stays excluded when
	// reassignment to the same doctor is allowed.
	Cooldown time.Duration
}

// Excluded computes the doctor IDs barred from the next reassignment round
// for a case, given its expired assignments.
//
// With CanReassignToSameDoctor=false the set is every doctor with an expired
// assignment for the case, so it only ever grows. Otherwise only doctors
// whose most recent timeout is still within the cooldown are excluded.
func (p ExclusionPolicy) Excluded(expired []*CaseAssignment, now time.Time) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	out := make([]uuid.UUID, 0, len(expired))

	for _, a := range expired {
		if a.Status() != StatusExpired {
			continue
		}
		if seen[a.DoctorID()] {
			continue
		}
		if !p.CanReassignToSameDoctor {
			seen[a.DoctorID()] = true
			out = append(out, a.DoctorID())
			continue
		}
		if p.withinCooldown(a, now) {
			seen[a.DoctorID()] = true
			out = append(out, a.DoctorID())
		}
	}

	return out
}

func (p ExclusionPolicy) withinCooldown(a *CaseAssignment, now time.Time) bool {
	respondedAt := a.RespondedAt()
	if respondedAt == nil {
		// No response timestamp recorded; treat the deadline as the timeout
		// moment so the doctor still gets a cooldown.
		t := a.ExpiresAt()
		respondedAt = &t
	}
	return now.Sub(*respondedAt) < p.Cooldown
}
