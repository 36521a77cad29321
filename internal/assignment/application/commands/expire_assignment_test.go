package commands

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/carelane/medassign/internal/assignment/domain"
	"github.com/carelane/medassign/internal/assignment/infrastructure/persistence"
	"github.com/carelane/medassign/internal/cases"
	sharedApplication "github.com/carelane/medassign/internal/shared/application"
)

func newHandler(t *testing.T) (*ExpireAssignmentHandler, *persistence.MemoryAssignmentRepository, *cases.MemoryStore) {
	t.Helper()
	assignments := persistence.NewMemoryAssignmentRepository()
	caseStore := cases.NewMemoryStore()
	h := NewExpireAssignmentHandler(assignments, caseStore, sharedApplication.NoopUnitOfWork{}, nil)
	return h, assignments, caseStore
}

func seedPendingAssignment(t *testing.T, assignments *persistence.MemoryAssignmentRepository, caseStore *cases.MemoryStore) *domain.CaseAssignment {
	t.Helper()
	doctorID := uuid.New()
	caseID := uuid.New()
	caseStore.Put(&cases.Case{
		ID:               caseID,
		Title:            "Shoulder MRI review",
		Status:           cases.StatusAssigned,
		Urgency:          cases.UrgencyLow,
		AssignedDoctorID: &doctorID,
	})

	assignedAt := time.Now().UTC().Add(-time.Hour)
	a, err := domain.NewCaseAssignment(
		caseID, doctorID, domain.PriorityPrimary,
		"manual pick", 0.7,
		assignedAt, assignedAt.Add(24*time.Hour),
	)
	require.NoError(t, err)
	require.NoError(t, assignments.Create(context.Background(), a))
	return a
}

func TestExpireAssignmentHandler_ExpiresAndReleases(t *testing.T) {
	h, assignments, caseStore := newHandler(t)
	a := seedPendingAssignment(t, assignments, caseStore)

	require.NoError(t, h.Handle(context.Background(), a.ID()))

	stored, err := assignments.FindByID(context.Background(), a.ID())
	require.NoError(t, err)
	require.Equal(t, domain.StatusExpired, stored.Status())

	c, err := caseStore.Get(context.Background(), a.CaseID())
	require.NoError(t, err)
	require.Equal(t, cases.StatusAwaitingAssignment, c.Status)
	require.Nil(t, c.AssignedDoctorID)
}

func TestExpireAssignmentHandler_RejectsResolvedAssignment(t *testing.T) {
	h, assignments, caseStore := newHandler(t)
	a := seedPendingAssignment(t, assignments, caseStore)

	require.NoError(t, a.Accept(time.Now().UTC()))
	require.NoError(t, assignments.Save(context.Background(), a))

	err := h.Handle(context.Background(), a.ID())
	require.ErrorIs(t, err, domain.ErrAssignmentNotPending)
}

func TestExpireAssignmentHandler_UnknownAssignment(t *testing.T) {
	h, _, _ := newHandler(t)

	err := h.Handle(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrAssignmentNotFound)
}
