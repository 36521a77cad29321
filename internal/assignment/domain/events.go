package domain

import (
	"time"

	sharedDomain "github.com/carelane/medassign/internal/shared/domain"
	"github.com/google/uuid"
)

const (
	AggregateType = "CaseAssignment"

	RoutingKeyAssignmentExpired     = "assignment.expired"
	RoutingKeyAssignmentEscalated   = "assignment.escalated"
	RoutingKeyAssignmentReminder    = "assignment.reminder"
	RoutingKeyReassignmentRequested = "assignment.reassignment.requested"
)

// AssignmentExpired is emitted when a pending assignment times out.
type AssignmentExpired struct {
	sharedDomain.BaseEvent
	CaseID     uuid.UUID `json:"case_id"`
	DoctorID   uuid.UUID `json:"doctor_id"`
	AssignedAt time.Time `json:"assigned_at"`
	ExpiredAt  time.Time `json:"expired_at"`
}

// NewAssignmentExpired creates an AssignmentExpired event.
func NewAssignmentExpired(a *CaseAssignment) AssignmentExpired {
	expiredAt := time.Now().UTC()
	if a.RespondedAt() != nil {
		expiredAt = *a.RespondedAt()
	}
	return AssignmentExpired{
		BaseEvent:  sharedDomain.NewBaseEvent(a.ID(), AggregateType, RoutingKeyAssignmentExpired),
		CaseID:     a.CaseID(),
		DoctorID:   a.DoctorID(),
		AssignedAt: a.AssignedAt(),
		ExpiredAt:  expiredAt,
	}
}

// AssignmentEscalated is emitted when a case has exhausted its automatic
// reassignment attempts and needs manual handling.
type AssignmentEscalated struct {
	sharedDomain.BaseEvent
	CaseID       uuid.UUID `json:"case_id"`
	DoctorID     uuid.UUID `json:"doctor_id"`
	ExpiredCount int       `json:"expired_count"`
	MaxAttempts  int       `json:"max_attempts"`
}

// NewAssignmentEscalated creates an AssignmentEscalated event.
func NewAssignmentEscalated(a *CaseAssignment, expiredCount, maxAttempts int) AssignmentEscalated {
	return AssignmentEscalated{
		BaseEvent:    sharedDomain.NewBaseEvent(a.ID(), AggregateType, RoutingKeyAssignmentEscalated),
		CaseID:       a.CaseID(),
		DoctorID:     a.DoctorID(),
		ExpiredCount: expiredCount,
		MaxAttempts:  maxAttempts,
	}
}

// ReminderSent is emitted when a reminder checkpoint fires for an assignment.
type ReminderSent struct {
	sharedDomain.BaseEvent
	CaseID         uuid.UUID `json:"case_id"`
	DoctorID       uuid.UUID `json:"doctor_id"`
	ReminderHour   int       `json:"reminder_hour"`
	HoursRemaining int       `json:"hours_remaining"`
}

// NewReminderSent creates a ReminderSent event.
func NewReminderSent(a *CaseAssignment, reminderHour, hoursRemaining int) ReminderSent {
	return ReminderSent{
		BaseEvent:      sharedDomain.NewBaseEvent(a.ID(), AggregateType, RoutingKeyAssignmentReminder),
		CaseID:         a.CaseID(),
		DoctorID:       a.DoctorID(),
		ReminderHour:   reminderHour,
		HoursRemaining: hoursRemaining,
	}
}

// ReassignmentRequested is emitted toward the matching collaborator after an
// expiration that still has attempts left.
type ReassignmentRequested struct {
	sharedDomain.BaseEvent
	CaseID            uuid.UUID   `json:"case_id"`
	ExcludedDoctorIDs []uuid.UUID `json:"excluded_doctor_ids"`
	Attempt           int         `json:"attempt"`
}

// NewReassignmentRequested creates a ReassignmentRequested event.
func NewReassignmentRequested(a *CaseAssignment, excluded []uuid.UUID, attempt int) ReassignmentRequested {
	return ReassignmentRequested{
		BaseEvent:         sharedDomain.NewBaseEvent(a.ID(), AggregateType, RoutingKeyReassignmentRequested),
		CaseID:            a.CaseID(),
		ExcludedDoctorIDs: excluded,
		Attempt:           attempt,
	}
}
