package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func expiredAssignment(t *testing.T, caseID, doctorID uuid.UUID, expiredAt time.Time) *CaseAssignment {
	t.Helper()
	a, err := NewCaseAssignment(caseID, doctorID, PriorityPrimary, "match", 0.7, expiredAt.Add(-24*time.Hour), expiredAt)
	require.NoError(t, err)
	require.NoError(t, a.Expire(expiredAt))
	return a
}

func TestExclusionPolicy_PermanentMode(t *testing.T) {
	policy := ExclusionPolicy{CanReassignToSameDoctor: false, Cooldown: 24 * time.Hour}
	caseID := uuid.New()
	docA := uuid.New()
	docB := uuid.New()
	now := time.Now().UTC()

	expired := []*CaseAssignment{
		expiredAssignment(t, caseID, docA, now.Add(-100*24*time.Hour)),
		expiredAssignment(t, caseID, docB, now.Add(-time.Hour)),
	}

	excluded := policy.Excluded(expired, now)
	require.ElementsMatch(t, []uuid.UUID{docA, docB}, excluded)
}

func TestExclusionPolicy_Monotonic(t *testing.T) {
	policy := ExclusionPolicy{CanReassignToSameDoctor: false}
	caseID := uuid.New()
	docA := uuid.New()
	now := time.Now().UTC()

	history := []*CaseAssignment{expiredAssignment(t, caseID, docA, now.Add(-48*time.Hour))}

	// No matter how many further rounds expire, doctor A stays excluded.
	for i := 0; i < 5; i++ {
		history = append(history, expiredAssignment(t, caseID, uuid.New(), now.Add(-time.Duration(i+1)*time.Hour)))
		excluded := policy.Excluded(history, now)
		require.Contains(t, excluded, docA)
	}
}

func TestExclusionPolicy_CooldownMode(t *testing.T) {
	policy := ExclusionPolicy{CanReassignToSameDoctor: true, Cooldown: 24 * time.Hour}
	caseID := uuid.New()
	docD := uuid.New()
	expiredAt := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

	expired := []*CaseAssignment{expiredAssignment(t, caseID, docD, expiredAt)}

	// One hour after the timeout the doctor is still cooling down.
	excluded := policy.Excluded(expired, expiredAt.Add(time.Hour))
	require.Equal(t, []uuid.UUID{docD}, excluded)

	// 25 hours later the cooldown has elapsed.
	excluded = policy.Excluded(expired, expiredAt.Add(25*time.Hour))
	require.Empty(t, excluded)
}

func TestExclusionPolicy_IgnoresNonExpired(t *testing.T) {
	policy := ExclusionPolicy{CanReassignToSameDoctor: false}
	now := time.Now().UTC()

	pending, err := NewCaseAssignment(uuid.New(), uuid.New(), PriorityPrimary, "match", 0.5, now, now.Add(24*time.Hour))
	require.NoError(t, err)

	require.Empty(t, policy.Excluded([]*CaseAssignment{pending}, now))
}

func TestExclusionPolicy_DeduplicatesDoctors(t *testing.T) {
	policy := ExclusionPolicy{CanReassignToSameDoctor: false}
	caseID := uuid.New()
	docA := uuid.New()
	now := time.Now().UTC()

	expired := []*CaseAssignment{
		expiredAssignment(t, caseID, docA, now.Add(-72*time.Hour)),
		expiredAssignment(t, caseID, docA, now.Add(-24*time.Hour)),
	}

	require.Equal(t, []uuid.UUID{docA}, policy.Excluded(expired, now))
}
