package sweeps

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/carelane/medassign/internal/assignment/domain"
	"github.com/carelane/medassign/internal/assignment/infrastructure/persistence"
	"github.com/carelane/medassign/internal/cases"
	"github.com/carelane/medassign/internal/notify"
	"github.com/carelane/medassign/internal/reassign"
	sharedApplication "github.com/carelane/medassign/internal/shared/application"
	"github.com/carelane/medassign/internal/shared/infrastructure/eventbus"
)

type recordingEmitter struct {
	mu            sync.Mutex
	notifications []notify.Notification
}

func (e *recordingEmitter) Emit(ctx context.Context, n notify.Notification) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifications = append(e.notifications, n)
	return nil
}

func (e *recordingEmitter) Close() error { return nil }

func (e *recordingEmitter) byKind(kind notify.Kind) []notify.Notification {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []notify.Notification
	for _, n := range e.notifications {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type recordingRequester struct {
	mu       sync.Mutex
	requests []reassign.Request
}

func (r *recordingRequester) Request(ctx context.Context, req reassign.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return nil
}

func (r *recordingRequester) Close() error { return nil }

type failingCaseStore struct {
	cases.Store
	failCaseID uuid.UUID
}

func (s *failingCaseStore) ReleaseAssignment(ctx context.Context, id, doctorID uuid.UUID) (bool, error) {
	if id == s.failCaseID {
		return false, errors.New("store unavailable")
	}
	return s.Store.ReleaseAssignment(ctx, id, doctorID)
}

type expirationFixture struct {
	assignments *persistence.MemoryAssignmentRepository
	caseStore   *cases.MemoryStore
	emitter     *recordingEmitter
	requester   *recordingRequester
	sweep       *ExpirationSweep
}

func newExpirationFixture(t *testing.T, policy domain.ExclusionPolicy, maxAttempts int) *expirationFixture {
	t.Helper()
	f := &expirationFixture{
		assignments: persistence.NewMemoryAssignmentRepository(),
		caseStore:   cases.NewMemoryStore(),
		emitter:     &recordingEmitter{},
		requester:   &recordingRequester{},
	}
	f.sweep = NewExpirationSweep(
		f.assignments,
		f.caseStore,
		nil,
		f.emitter,
		f.requester,
		eventbus.NewNoopPublisher(nil),
		sharedApplication.NoopUnitOfWork{},
		policy,
		ExpirationSweepConfig{
			GracePeriod:             5 * time.Minute,
			MaxReassignmentAttempts: 3,
		},
		nil,
	)
	if maxAttempts > 0 {
		f.sweep.config.MaxReassignmentAttempts = maxAttempts
	}
	return f
}

func (f *expirationFixture) seedCase(t *testing.T, doctorID uuid.UUID) uuid.UUID {
	t.Helper()
	caseID := uuid.New()
	f.caseStore.Put(&cases.Case{
		ID:               caseID,
		Title:            "Chest pain follow-up",
		Status:           cases.StatusAssigned,
		Urgency:          cases.UrgencyMedium,
		AssignedDoctorID: &doctorID,
	})
	return caseID
}

func (f *expirationFixture) seedPending(t *testing.T, caseID, doctorID uuid.UUID, assignedAt time.Time, timeout time.Duration) *domain.CaseAssignment {
	t.Helper()
	a, err := domain.NewCaseAssignment(
		caseID, doctorID, domain.PriorityPrimary,
		"best specialty match", 0.9,
		assignedAt, assignedAt.Add(timeout),
	)
	require.NoError(t, err)
	require.NoError(t, f.assignments.Create(context.Background(), a))
	return a
}

func (f *expirationFixture) seedExpired(t *testing.T, caseID, doctorID uuid.UUID, assignedAt time.Time, timeout time.Duration) {
	t.Helper()
	respondedAt := assignedAt.Add(timeout)
	a := domain.RehydrateCaseAssignment(
		uuid.New(), caseID, doctorID,
		domain.StatusExpired, domain.PriorityPrimary,
		assignedAt, &respondedAt, assignedAt.Add(timeout),
		"previous attempt", nil, 0.8,
		assignedAt, respondedAt,
	)
	require.NoError(t, f.assignments.Create(context.Background(), a))
}

func TestExpirationSweep_ExpiresOverdueAssignment(t *testing.T) {
	f := newExpirationFixture(t, domain.ExclusionPolicy{}, 0)
	doctorID := uuid.New()
	caseID := f.seedCase(t, doctorID)

	assignedAt := time.Now().UTC().Add(-25 * time.Hour)
	a := f.seedPending(t, caseID, doctorID, assignedAt, 24*time.Hour)

	require.NoError(t, f.sweep.Run(context.Background()))

	stored, err := f.assignments.FindByID(context.Background(), a.ID())
	require.NoError(t, err)
	require.Equal(t, domain.StatusExpired, stored.Status())
	require.NotNil(t, stored.RespondedAt())

	c, err := f.caseStore.Get(context.Background(), caseID)
	require.NoError(t, err)
	require.Equal(t, cases.StatusAwaitingAssignment, c.Status)
	require.Nil(t, c.AssignedDoctorID)

	expiredNotes := f.emitter.byKind(notify.KindAssignmentExpired)
	require.Len(t, expiredNotes, 1)
	require.Equal(t, notify.RoleAdmin, expiredNotes[0].Role)
	require.Equal(t, caseID.String(), expiredNotes[0].Payload["case_id"])

	require.Len(t, f.requester.requests, 1)
	req := f.requester.requests[0]
	require.Equal(t, caseID, req.CaseID)
	require.Equal(t, 1, req.Attempt)
	require.Equal(t, []uuid.UUID{doctorID}, req.ExcludedDoctorIDs)

	stats := f.sweep.Stats()
	require.Equal(t, uint64(1), stats.Expired)
	require.Equal(t, uint64(1), stats.ReassignmentsRequested)
	require.Equal(t, uint64(0), stats.Escalated)
}

func TestExpirationSweep_RespectsGracePeriod(t *testing.T) {
	f := newExpirationFixture(t, domain.ExclusionPolicy{}, 0)
	doctorID := uuid.New()
	caseID := f.seedCase(t, doctorID)

	// Deadline passed two minutes ago, still inside the five minute grace.
	assignedAt := time.Now().UTC().Add(-24*time.Hour - 2*time.Minute)
	a := f.seedPending(t, caseID, doctorID, assignedAt, 24*time.Hour)

	require.NoError(t, f.sweep.Run(context.Background()))

	stored, err := f.assignments.FindByID(context.Background(), a.ID())
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, stored.Status())
	require.Empty(t, f.requester.requests)
}

func TestExpirationSweep_SecondRunIsNoop(t *testing.T) {
	f := newExpirationFixture(t, domain.ExclusionPolicy{}, 0)
	doctorID := uuid.New()
	caseID := f.seedCase(t, doctorID)
	f.seedPending(t, caseID, doctorID, time.Now().UTC().Add(-26*time.Hour), 24*time.Hour)

	require.NoError(t, f.sweep.Run(context.Background()))
	require.NoError(t, f.sweep.Run(context.Background()))

	require.Len(t, f.emitter.byKind(notify.KindAssignmentExpired), 1)
	require.Len(t, f.requester.requests, 1)
	require.Equal(t, uint64(1), f.sweep.Stats().Expired)
}

func TestExpirationSweep_EscalatesAtMaxAttempts(t *testing.T) {
	f := newExpirationFixture(t, domain.ExclusionPolicy{}, 3)
	doctorID := uuid.New()
	caseID := f.seedCase(t, doctorID)

	base := time.Now().UTC().Add(-10 * 24 * time.Hour)
	f.seedExpired(t, caseID, uuid.New(), base, 24*time.Hour)
	f.seedExpired(t, caseID, uuid.New(), base.Add(48*time.Hour), 24*time.Hour)
	f.seedPending(t, caseID, doctorID, time.Now().UTC().Add(-26*time.Hour), 24*time.Hour)

	require.NoError(t, f.sweep.Run(context.Background()))

	require.Empty(t, f.requester.requests)
	escalations := f.emitter.byKind(notify.KindAssignmentEscalation)
	require.Len(t, escalations, 1)
	require.Equal(t, 3, escalations[0].Payload["expired_count"])

	stats := f.sweep.Stats()
	require.Equal(t, uint64(1), stats.Escalated)
	require.Equal(t, uint64(0), stats.ReassignmentsRequested)
}

func TestExpirationSweep_SecondAttemptStillReassigns(t *testing.T) {
	f := newExpirationFixture(t, domain.ExclusionPolicy{}, 3)
	firstDoctor := uuid.New()
	secondDoctor := uuid.New()
	caseID := f.seedCase(t, secondDoctor)

	f.seedExpired(t, caseID, firstDoctor, time.Now().UTC().Add(-72*time.Hour), 24*time.Hour)
	f.seedPending(t, caseID, secondDoctor, time.Now().UTC().Add(-26*time.Hour), 24*time.Hour)

	require.NoError(t, f.sweep.Run(context.Background()))

	require.Empty(t, f.emitter.byKind(notify.KindAssignmentEscalation))
	require.Len(t, f.requester.requests, 1)
	req := f.requester.requests[0]
	require.Equal(t, 2, req.Attempt)
	require.ElementsMatch(t, []uuid.UUID{firstDoctor, secondDoctor}, req.ExcludedDoctorIDs)
}

func TestExpirationSweep_CooldownLimitsExclusions(t *testing.T) {
	policy := domain.ExclusionPolicy{
		CanReassignToSameDoctor: true,
		Cooldown:                24 * time.Hour,
	}
	f := newExpirationFixture(t, policy, 5)
	staleDoctor := uuid.New()
	recentDoctor := uuid.New()
	caseID := f.seedCase(t, recentDoctor)

	// Expired three days ago, past the cooldown.
	f.seedExpired(t, caseID, staleDoctor, time.Now().UTC().Add(-96*time.Hour), 24*time.Hour)
	f.seedPending(t, caseID, recentDoctor, time.Now().UTC().Add(-26*time.Hour), 24*time.Hour)

	require.NoError(t, f.sweep.Run(context.Background()))

	require.Len(t, f.requester.requests, 1)
	require.Equal(t, []uuid.UUID{recentDoctor}, f.requester.requests[0].ExcludedDoctorIDs)
}

func TestExpirationSweep_FailureDoesNotBlockBatch(t *testing.T) {
	f := newExpirationFixture(t, domain.ExclusionPolicy{}, 0)

	failingDoctor := uuid.New()
	failingCase := f.seedCase(t, failingDoctor)
	okDoctor := uuid.New()
	okCase := f.seedCase(t, okDoctor)

	f.sweep.caseStore = &failingCaseStore{Store: f.caseStore, failCaseID: failingCase}

	// The failing assignment sorts first.
	f.seedPending(t, failingCase, failingDoctor, time.Now().UTC().Add(-30*time.Hour), 24*time.Hour)
	ok := f.seedPending(t, okCase, okDoctor, time.Now().UTC().Add(-26*time.Hour), 24*time.Hour)

	require.NoError(t, f.sweep.Run(context.Background()))

	stored, err := f.assignments.FindByID(context.Background(), ok.ID())
	require.NoError(t, err)
	require.Equal(t, domain.StatusExpired, stored.Status())

	stats := f.sweep.Stats()
	require.Equal(t, uint64(1), stats.Failures)
	require.Equal(t, uint64(1), stats.Expired)
	require.Contains(t, stats.LastError, "store unavailable")
}

// racingAcceptRepository accepts one assignment right after the sweep reads
// its expirable snapshots, simulating a doctor response landing mid-run.
type racingAcceptRepository struct {
	*persistence.MemoryAssignmentRepository
	t        *testing.T
	acceptID uuid.UUID
	accepted bool
}

func (r *racingAcceptRepository) FindExpirable(ctx context.Context, cutoff time.Time) ([]*domain.CaseAssignment, error) {
	snapshots, err := r.MemoryAssignmentRepository.FindExpirable(ctx, cutoff)
	if err != nil || r.accepted {
		return snapshots, err
	}
	r.accepted = true
	stored, err := r.FindByID(ctx, r.acceptID)
	require.NoError(r.t, err)
	require.NoError(r.t, stored.Accept(time.Now().UTC()))
	require.NoError(r.t, r.MemoryAssignmentRepository.Save(ctx, stored))
	return snapshots, nil
}

func TestExpirationSweep_ConcurrentAcceptWins(t *testing.T) {
	f := newExpirationFixture(t, domain.ExclusionPolicy{}, 0)
	doctorID := uuid.New()
	caseID := f.seedCase(t, doctorID)

	a := f.seedPending(t, caseID, doctorID, time.Now().UTC().Add(-25*time.Hour), 24*time.Hour)
	f.sweep.assignments = &racingAcceptRepository{
		MemoryAssignmentRepository: f.assignments,
		t:                          t,
		acceptID:                   a.ID(),
	}

	require.NoError(t, f.sweep.Run(context.Background()))

	// The stored acceptance survives; the sweep's stale snapshot must not
	// overwrite a terminal status.
	stored, err := f.assignments.FindByID(context.Background(), a.ID())
	require.NoError(t, err)
	require.Equal(t, domain.StatusAccepted, stored.Status())

	// The accepting doctor keeps the case and no downstream effects fire.
	c, err := f.caseStore.Get(context.Background(), caseID)
	require.NoError(t, err)
	require.Equal(t, cases.StatusAssigned, c.Status)
	require.Equal(t, &doctorID, c.AssignedDoctorID)
	require.Empty(t, f.emitter.byKind(notify.KindAssignmentExpired))
	require.Empty(t, f.requester.requests)

	stats := f.sweep.Stats()
	require.Equal(t, uint64(0), stats.Expired)
	require.Equal(t, uint64(0), stats.Failures)
}
