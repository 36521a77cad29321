// Package cases holds the engine's view of the external case store. The
// scheduling engine only reads a case's routing attributes and flips its
// status between assigned and awaiting assignment; everything else about a
// case is owned by the case service.
package cases

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrCaseNotFound = errors.New("case not found")

// Status is the subset of case states the scheduling engine cares about.
type Status string

const (
	StatusAwaitingAssignment Status = "awaiting_assignment"
	StatusAssigned           Status = "assigned"
	StatusInProgress         Status = "in_progress"
	StatusClosed             Status = "closed"
)

// Urgency drives the assignment timeout and candidate scoring.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// IsCritical reports whether the urgency uses the shortened assignment timeout.
func (u Urgency) IsCritical() bool {
	return u == UrgencyHigh || u == UrgencyCritical
}

// Case is the read model the engine consumes.
type Case struct {
	ID                   uuid.UUID
	Title                string
	Status               Status
	Urgency              Urgency
	RequiredSpecialty    string
	AssignedDoctorID     *uuid.UUID
}

// Store is the contract with the external case store.
type Store interface {
	// Get returns the case, or ErrCaseNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Case, error)

	// ReleaseAssignment reverts the case to awaiting assignment, but only if
	// it is still assigned to the given doctor. Returns true when the case
	// was actually released.
	ReleaseAssignment(ctx context.Context, id uuid.UUID, doctorID uuid.UUID) (bool, error)
}
