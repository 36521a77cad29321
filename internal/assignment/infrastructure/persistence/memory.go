package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/carelane/medassign/internal/assignment/domain"
	"github.com/google/uuid"
)

// MemoryAssignmentRepository is an in-memory assignment store for tests and
// local development. It enforces the same at-most-one-pending-per-case rule
// the SQL stores enforce with a partial unique index.
type MemoryAssignmentRepository struct {
	mu          sync.RWMutex
	assignments map[uuid.UUID]*domain.CaseAssignment
}

// NewMemoryAssignmentRepository creates an empty in-memory repository.
func NewMemoryAssignmentRepository() *MemoryAssignmentRepository {
	return &MemoryAssignmentRepository{
		assignments: make(map[uuid.UUID]*domain.CaseAssignment),
	}
}

func (r *MemoryAssignmentRepository) Create(ctx context.Context, assignment *domain.CaseAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if assignment.Status() == domain.StatusPending {
		for _, existing := range r.assignments {
			if existing.CaseID() == assignment.CaseID() && existing.Status() == domain.StatusPending {
				return domain.ErrCasePendingConflict
			}
		}
	}
	r.assignments[assignment.ID()] = clone(assignment)
	return nil
}

func (r *MemoryAssignmentRepository) Save(ctx context.Context, assignment *domain.CaseAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.assignments[assignment.ID()]
	if !ok {
		return domain.ErrAssignmentNotFound
	}
	if existing.Status() != domain.StatusPending {
		return domain.ErrStaleAssignment
	}
	r.assignments[assignment.ID()] = clone(assignment)
	return nil
}

func (r *MemoryAssignmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.CaseAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assignments[id]
	if !ok {
		return nil, domain.ErrAssignmentNotFound
	}
	return clone(a), nil
}

func (r *MemoryAssignmentRepository) FindExpirable(ctx context.Context, cutoff time.Time) ([]*domain.CaseAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.CaseAssignment
	for _, a := range r.assignments {
		if a.Status() == domain.StatusPending && !a.ExpiresAt().After(cutoff) {
			out = append(out, clone(a))
		}
	}
	sortByAssignedAt(out, true)
	return out, nil
}

func (r *MemoryAssignmentRepository) FindPendingAssignedBetween(ctx context.Context, from, to time.Time) ([]*domain.CaseAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.CaseAssignment
	for _, a := range r.assignments {
		if a.Status() != domain.StatusPending {
			continue
		}
		at := a.AssignedAt()
		if !at.Before(from) && !at.After(to) {
			out = append(out, clone(a))
		}
	}
	sortByAssignedAt(out, true)
	return out, nil
}

func (r *MemoryAssignmentRepository) ListExpiredByCase(ctx context.Context, caseID uuid.UUID) ([]*domain.CaseAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.CaseAssignment
	for _, a := range r.assignments {
		if a.CaseID() == caseID && a.Status() == domain.StatusExpired {
			out = append(out, clone(a))
		}
	}
	sortByAssignedAt(out, false)
	return out, nil
}

func sortByAssignedAt(list []*domain.CaseAssignment, ascending bool) {
	sort.Slice(list, func(i, j int) bool {
		if ascending {
			return list[i].AssignedAt().Before(list[j].AssignedAt())
		}
		return list[i].AssignedAt().After(list[j].AssignedAt())
	})
}

func clone(a *domain.CaseAssignment) *domain.CaseAssignment {
	return domain.RehydrateCaseAssignment(
		a.ID(),
		a.CaseID(),
		a.DoctorID(),
		a.Status(),
		a.Priority(),
		a.AssignedAt(),
		a.RespondedAt(),
		a.ExpiresAt(),
		a.Reason(),
		a.RejectionReason(),
		a.MatchingScore(),
		a.CreatedAt(),
		a.UpdatedAt(),
	)
}

type reminderKey struct {
	assignmentID uuid.UUID
	hour         int
}

// MemoryReminderRepository is an in-memory reminder store for tests and local
// development.
type MemoryReminderRepository struct {
	mu        sync.RWMutex
	reminders map[reminderKey]domain.CaseAssignmentReminder
}

// NewMemoryReminderRepository creates an empty in-memory reminder repository.
func NewMemoryReminderRepository() *MemoryReminderRepository {
	return &MemoryReminderRepository{
		reminders: make(map[reminderKey]domain.CaseAssignmentReminder),
	}
}

func (r *MemoryReminderRepository) Create(ctx context.Context, reminder domain.CaseAssignmentReminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := reminderKey{assignmentID: reminder.AssignmentID, hour: reminder.ReminderHour}
	if _, ok := r.reminders[key]; ok {
		return domain.ErrDuplicateReminder
	}
	r.reminders[key] = reminder
	return nil
}

func (r *MemoryReminderRepository) Exists(ctx context.Context, assignmentID uuid.UUID, reminderHour int) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.reminders[reminderKey{assignmentID: assignmentID, hour: reminderHour}]
	return ok, nil
}

func (r *MemoryReminderRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for key, reminder := range r.reminders {
		if reminder.SentAt.Before(cutoff) {
			delete(r.reminders, key)
			deleted++
		}
	}
	return deleted, nil
}

// Count returns the number of stored reminder records.
func (r *MemoryReminderRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.reminders)
}
