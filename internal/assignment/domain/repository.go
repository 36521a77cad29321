package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrCasePendingConflict is returned when creating an assignment for a
	// case that already has a pending one.
	ErrCasePendingConflict = errors.New("case already has a pending assignment")

	// ErrStaleAssignment is returned by Save when the stored row is no
	// longer pending, meaning another writer resolved the assignment
	// between the caller's read and its write.
	ErrStaleAssignment = errors.New("assignment already resolved")
)

// AssignmentRepository persists case assignments. Implementations must
// enforce at most one pending assignment per case on Create.
type AssignmentRepository interface {
	Create(ctx context.Context, assignment *CaseAssignment) error

	// Save persists a response transition. The write is a compare-and-set
	// against the pending status: a row already resolved by a concurrent
	// writer is left untouched and ErrStaleAssignment is returned.
	Save(ctx context.Context, assignment *CaseAssignment) error
	FindByID(ctx context.Context, id uuid.UUID) (*CaseAssignment, error)

	// FindExpirable returns pending assignments whose deadline lies at or
	// before the cutoff (the sweep passes now minus the grace period).
	FindExpirable(ctx context.Context, cutoff time.Time) ([]*CaseAssignment, error)

	// FindPendingAssignedBetween returns pending assignments whose
	// assignedAt falls inside the window, for reminder checkpoint matching.
	FindPendingAssignedBetween(ctx context.Context, from, to time.Time) ([]*CaseAssignment, error)

	// ListExpiredByCase returns all expired assignments for a case, most
	// recent first. Feeds attempt counting and the exclusion policy.
	ListExpiredByCase(ctx context.Context, caseID uuid.UUID) ([]*CaseAssignment, error)
}

// ReminderRepository persists reminder checkpoint records. Implementations
// must reject duplicates per (assignment, reminder hour) with
// ErrDuplicateReminder.
type ReminderRepository interface {
	Create(ctx context.Context, reminder CaseAssignmentReminder) error
	Exists(ctx context.Context, assignmentID uuid.UUID, reminderHour int) (bool, error)

	// DeleteOlderThan removes reminder records sent before the cutoff and
	// returns how many were deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
