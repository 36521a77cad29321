// Package commands contains the operator-facing command handlers of the
// assignment context.
package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/carelane/medassign/internal/assignment/domain"
	"github.com/carelane/medassign/internal/cases"
	sharedApplication "github.com/carelane/medassign/internal/shared/application"
)

// ExpireAssignmentHandler force-expires a single pending assignment and
// releases its case back to the pool. Used by operators to resolve a stuck
// assignment without waiting for the sweep; it deliberately does not notify
// or request reassignment.
type ExpireAssignmentHandler struct {
	assignments domain.AssignmentRepository
	caseStore   cases.Store
	uow         sharedApplication.UnitOfWork
	logger      *slog.Logger
}

// NewExpireAssignmentHandler creates the handler.
func NewExpireAssignmentHandler(
	assignments domain.AssignmentRepository,
	caseStore cases.Store,
	uow sharedApplication.UnitOfWork,
	logger *slog.Logger,
) *ExpireAssignmentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpireAssignmentHandler{
		assignments: assignments,
		caseStore:   caseStore,
		uow:         uow,
		logger:      logger,
	}
}

// Handle expires the assignment. Returns domain.ErrAssignmentNotPending when
// the assignment has already been resolved.
func (h *ExpireAssignmentHandler) Handle(ctx context.Context, assignmentID uuid.UUID) error {
	a, err := h.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		if err := a.Expire(now); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				return domain.ErrAssignmentNotPending
			}
			return err
		}
		if err := h.assignments.Save(txCtx, a); err != nil {
			return err
		}

		released, err := h.caseStore.ReleaseAssignment(txCtx, a.CaseID(), a.DoctorID())
		if err != nil {
			return err
		}
		if !released {
			h.logger.Warn("case no longer held by doctor, skipping release",
				"case_id", a.CaseID(),
				"doctor_id", a.DoctorID(),
			)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrStaleAssignment) {
			// The doctor responded while the command was in flight.
			return domain.ErrAssignmentNotPending
		}
		return err
	}

	h.logger.Info("assignment force-expired",
		"assignment_id", a.ID(),
		"case_id", a.CaseID(),
		"doctor_id", a.DoctorID(),
	)
	return nil
}
