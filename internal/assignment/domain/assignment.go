package domain

import (
	"errors"
	"time"

	sharedDomain "github.com/carelane/medassign/internal/shared/domain"
	"github.com/google/uuid"
)

var (
	ErrInvalidMatchingScore = errors.New("matching score must be between 0 and 1")
	ErrExpiryBeforeAssign   = errors.New("expiry must be after assignment time")
	ErrAssignmentNotPending = errors.New("assignment is not pending")
)

// Priority ranks an assignment within a case's offer sequence.
type Priority string

const (
	PriorityPrimary   Priority = "primary"
	PrioritySecondary Priority = "secondary"
	PriorityBackup    Priority = "backup"
)

// CaseAssignment is one offer of a case to one doctor, with its own lifecycle
// independent of the case's lifecycle.
type CaseAssignment struct {
	sharedDomain.BaseAggregateRoot
	caseID          uuid.UUID
	doctorID        uuid.UUID
	status          Status
	priority        Priority
	assignedAt      time.Time
	respondedAt     *time.Time
	expiresAt       time.Time
	reason          string
	rejectionReason *string
	matchingScore   float64
}

// NewCaseAssignment creates a pending assignment.
func NewCaseAssignment(
	caseID uuid.UUID,
	doctorID uuid.UUID,
	priority Priority,
	reason string,
	matchingScore float64,
	assignedAt time.Time,
	expiresAt time.Time,
) (*CaseAssignment, error) {
	if matchingScore < 0 || matchingScore > 1 {
		return nil, ErrInvalidMatchingScore
	}
	if !expiresAt.After(assignedAt) {
		return nil, ErrExpiryBeforeAssign
	}

	return &CaseAssignment{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(),
		caseID:            caseID,
		doctorID:          doctorID,
		status:            StatusPending,
		priority:          priority,
		assignedAt:        assignedAt,
		expiresAt:         expiresAt,
		reason:            reason,
		matchingScore:     matchingScore,
	}, nil
}

// Getters
func (a *CaseAssignment) CaseID() uuid.UUID        { return a.caseID }
func (a *CaseAssignment) DoctorID() uuid.UUID      { return a.doctorID }
func (a *CaseAssignment) Status() Status           { return a.status }
func (a *CaseAssignment) Priority() Priority       { return a.priority }
func (a *CaseAssignment) AssignedAt() time.Time    { return a.assignedAt }
func (a *CaseAssignment) RespondedAt() *time.Time  { return a.respondedAt }
func (a *CaseAssignment) ExpiresAt() time.Time     { return a.expiresAt }
func (a *CaseAssignment) Reason() string           { return a.reason }
func (a *CaseAssignment) RejectionReason() *string { return a.rejectionReason }
func (a *CaseAssignment) MatchingScore() float64   { return a.matchingScore }

// IsPending reports whether the assignment still awaits a response.
func (a *CaseAssignment) IsPending() bool {
	return a.status == StatusPending
}

func (a *CaseAssignment) transition(to Status, now time.Time) error {
	if !CanTransition(a.status, to) {
		return ErrInvalidTransition
	}
	a.status = to
	responded := now.UTC()
	a.respondedAt = &responded
	a.Touch()
	return nil
}

// Accept records the doctor's acceptance.
func (a *CaseAssignment) Accept(now time.Time) error {
	return a.transition(StatusAccepted, now)
}

// Reject records the doctor's rejection with an optional reason.
func (a *CaseAssignment) Reject(now time.Time, reason string) error {
	if err := a.transition(StatusRejected, now); err != nil {
		return err
	}
	if reason != "" {
		a.rejectionReason = &reason
	}
	return nil
}

// Expire transitions the assignment to EXPIRED and records the expiration
// event. Calling it on a non-pending assignment is an error, which is what
// makes sweep re-runs safe.
func (a *CaseAssignment) Expire(now time.Time) error {
	if err := a.transition(StatusExpired, now); err != nil {
		return err
	}
	a.AddDomainEvent(NewAssignmentExpired(a))
	return nil
}

// RehydrateCaseAssignment recreates an assignment from persisted state.
func RehydrateCaseAssignment(
	id uuid.UUID,
	caseID uuid.UUID,
	doctorID uuid.UUID,
	status Status,
	priority Priority,
	assignedAt time.Time,
	respondedAt *time.Time,
	expiresAt time.Time,
	reason string,
	rejectionReason *string,
	matchingScore float64,
	createdAt, updatedAt time.Time,
) *CaseAssignment {
	return &CaseAssignment{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(
			sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		),
		caseID:          caseID,
		doctorID:        doctorID,
		status:          status,
		priority:        priority,
		assignedAt:      assignedAt,
		respondedAt:     respondedAt,
		expiresAt:       expiresAt,
		reason:          reason,
		rejectionReason: rejectionReason,
		matchingScore:   matchingScore,
	}
}
