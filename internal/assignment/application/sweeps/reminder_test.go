package sweeps

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/carelane/medassign/internal/assignment/domain"
	"github.com/carelane/medassign/internal/assignment/infrastructure/persistence"
	"github.com/carelane/medassign/internal/cases"
	"github.com/carelane/medassign/internal/notify"
	"github.com/carelane/medassign/internal/shared/infrastructure/eventbus"
)

type reminderFixture struct {
	assignments *persistence.MemoryAssignmentRepository
	reminders   *persistence.MemoryReminderRepository
	caseStore   *cases.MemoryStore
	emitter     *recordingEmitter
	sweep       *ReminderSweep
}

func newReminderFixture(t *testing.T, config ReminderSweepConfig) *reminderFixture {
	t.Helper()
	f := &reminderFixture{
		assignments: persistence.NewMemoryAssignmentRepository(),
		reminders:   persistence.NewMemoryReminderRepository(),
		caseStore:   cases.NewMemoryStore(),
		emitter:     &recordingEmitter{},
	}
	f.sweep = NewReminderSweep(f.assignments, f.reminders, f.caseStore, f.emitter, eventbus.NewNoopPublisher(nil), config, nil)
	return f
}

func defaultReminderConfig() ReminderSweepConfig {
	return ReminderSweepConfig{
		Interval:            5 * time.Minute,
		StandardCheckpoints: []int{12, 20, 23},
		CriticalCheckpoints: nil,
		Timeouts: domain.Timeouts{
			Standard: 24 * time.Hour,
			Critical: 4 * time.Hour,
		},
	}
}

func (f *reminderFixture) seedAssignedCase(t *testing.T, urgency cases.Urgency, assignedAt time.Time, timeout time.Duration) *domain.CaseAssignment {
	t.Helper()
	doctorID := uuid.New()
	caseID := uuid.New()
	f.caseStore.Put(&cases.Case{
		ID:               caseID,
		Title:            "Persistent migraine evaluation",
		Status:           cases.StatusAssigned,
		Urgency:          urgency,
		AssignedDoctorID: &doctorID,
	})

	a, err := domain.NewCaseAssignment(
		caseID, doctorID, domain.PriorityPrimary,
		"specialty match", 0.85,
		assignedAt, assignedAt.Add(timeout),
	)
	require.NoError(t, err)
	require.NoError(t, f.assignments.Create(context.Background(), a))
	return a
}

func TestReminderSweep_SendsReminderAtCheckpoint(t *testing.T) {
	f := newReminderFixture(t, defaultReminderConfig())

	// Assigned twelve hours ago, squarely at the first checkpoint.
	a := f.seedAssignedCase(t, cases.UrgencyMedium, time.Now().UTC().Add(-12*time.Hour), 24*time.Hour)

	require.NoError(t, f.sweep.Run(context.Background()))

	sent := f.emitter.byKind(notify.KindAssignmentReminder)
	require.Len(t, sent, 1)
	require.NotNil(t, sent[0].RecipientID)
	require.Equal(t, a.DoctorID(), *sent[0].RecipientID)
	require.Equal(t, 12, sent[0].Payload["hours_remaining"])
	require.Equal(t, "12 hours", sent[0].Payload["remaining"])
	require.Equal(t, "Persistent migraine evaluation", sent[0].Payload["case_title"])

	exists, err := f.reminders.Exists(context.Background(), a.ID(), 12)
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, uint64(1), f.sweep.Stats().RemindersSent)
}

func TestReminderSweep_AtMostOncePerCheckpoint(t *testing.T) {
	f := newReminderFixture(t, defaultReminderConfig())
	f.seedAssignedCase(t, cases.UrgencyMedium, time.Now().UTC().Add(-12*time.Hour), 24*time.Hour)

	for i := 0; i < 5; i++ {
		require.NoError(t, f.sweep.Run(context.Background()))
	}

	require.Len(t, f.emitter.byKind(notify.KindAssignmentReminder), 1)
	require.Equal(t, 1, f.reminders.Count())
}

func TestReminderSweep_OutsideWindowIsSkipped(t *testing.T) {
	f := newReminderFixture(t, defaultReminderConfig())

	// Eleven hours in: between checkpoints, outside every window.
	f.seedAssignedCase(t, cases.UrgencyMedium, time.Now().UTC().Add(-11*time.Hour), 24*time.Hour)

	require.NoError(t, f.sweep.Run(context.Background()))

	require.Empty(t, f.emitter.byKind(notify.KindAssignmentReminder))
	require.Equal(t, 0, f.reminders.Count())
}

func TestReminderSweep_CriticalWithoutCheckpointsGetsNoReminder(t *testing.T) {
	f := newReminderFixture(t, defaultReminderConfig())

	// A critical assignment already times out at four hours, so the
	// standard twelve hour checkpoint does not apply to it.
	f.seedAssignedCase(t, cases.UrgencyCritical, time.Now().UTC().Add(-12*time.Hour), 24*time.Hour)

	require.NoError(t, f.sweep.Run(context.Background()))

	require.Empty(t, f.emitter.byKind(notify.KindAssignmentReminder))
}

func TestReminderSweep_CriticalCheckpointApplies(t *testing.T) {
	config := defaultReminderConfig()
	config.StandardCheckpoints = []int{2, 12, 20, 23}
	config.CriticalCheckpoints = []int{2}
	f := newReminderFixture(t, config)

	a := f.seedAssignedCase(t, cases.UrgencyCritical, time.Now().UTC().Add(-2*time.Hour), 4*time.Hour)

	require.NoError(t, f.sweep.Run(context.Background()))

	sent := f.emitter.byKind(notify.KindAssignmentReminder)
	require.Len(t, sent, 1)
	require.Equal(t, a.DoctorID(), *sent[0].RecipientID)
	require.Equal(t, 2, sent[0].Payload["hours_remaining"])
	require.Equal(t, "2 hours", sent[0].Payload["remaining"])
}

func TestReminderSweep_NonPendingGetsNoReminder(t *testing.T) {
	f := newReminderFixture(t, defaultReminderConfig())
	a := f.seedAssignedCase(t, cases.UrgencyMedium, time.Now().UTC().Add(-12*time.Hour), 24*time.Hour)

	require.NoError(t, a.Accept(time.Now().UTC()))
	require.NoError(t, f.assignments.Save(context.Background(), a))

	require.NoError(t, f.sweep.Run(context.Background()))

	require.Empty(t, f.emitter.byKind(notify.KindAssignmentReminder))
}

func TestReminderSweep_MissingCaseIsSkipped(t *testing.T) {
	f := newReminderFixture(t, defaultReminderConfig())

	assignedAt := time.Now().UTC().Add(-12 * time.Hour)
	a, err := domain.NewCaseAssignment(
		uuid.New(), uuid.New(), domain.PriorityPrimary,
		"specialty match", 0.85,
		assignedAt, assignedAt.Add(24*time.Hour),
	)
	require.NoError(t, err)
	require.NoError(t, f.assignments.Create(context.Background(), a))

	require.NoError(t, f.sweep.Run(context.Background()))

	require.Empty(t, f.emitter.byKind(notify.KindAssignmentReminder))
	require.Equal(t, uint64(0), f.sweep.Stats().Failures)
}

func TestReminderCleanup_PrunesOldRecords(t *testing.T) {
	reminders := persistence.NewMemoryReminderRepository()
	ctx := context.Background()

	old := domain.NewCaseAssignmentReminder(uuid.New(), 12, 12, time.Now().UTC().Add(-40*24*time.Hour))
	recent := domain.NewCaseAssignmentReminder(uuid.New(), 12, 12, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, reminders.Create(ctx, old))
	require.NoError(t, reminders.Create(ctx, recent))

	cleanup := NewReminderCleanup(reminders, 30*24*time.Hour, nil)
	require.NoError(t, cleanup.Run(ctx))
	require.Equal(t, 1, reminders.Count())
}
