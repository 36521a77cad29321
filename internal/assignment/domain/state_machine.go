package domain

import (
	"errors"
	"time"

	"github.com/carelane/medassign/internal/cases"
)

var ErrInvalidTransition = errors.New("illegal assignment status transition")

// Status is the lifecycle state of a case assignment. PENDING is the only
// non-terminal state; an EXPIRED assignment may beget a new one, but the
// record itself never reopens.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s != StatusPending
}

var legalTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusAccepted: true,
		StatusRejected: true,
		StatusExpired:  true,
	},
}

// CanTransition reports whether moving from one status to another is legal.
// Every mutation path goes through this single table instead of re-deriving
// legality inline.
func CanTransition(from, to Status) bool {
	return legalTransitions[from][to]
}

// Timeouts holds the acceptance-window durations per urgency class.
type Timeouts struct {
	Standard time.Duration
	Critical time.Duration
}

// For returns the acceptance window applicable to the given urgency.
func (t Timeouts) For(urgency cases.Urgency) time.Duration {
	if urgency.IsCritical() {
		return t.Critical
	}
	return t.Standard
}

// ExpiresAt computes the acceptance deadline for an assignment.
func ExpiresAt(assignedAt time.Time, urgency cases.Urgency, timeouts Timeouts) time.Time {
	return assignedAt.Add(timeouts.For(urgency))
}

// EligibleForExpiration reports whether a pending assignment is past its
// deadline, allowing for a grace period that absorbs clock skew between the
// emitting and sweeping processes. Pure function of its inputs.
func EligibleForExpiration(status Status, expiresAt, now time.Time, grace time.Duration) bool {
	if status != StatusPending {
		return false
	}
	return !now.Add(-grace).Before(expiresAt)
}
