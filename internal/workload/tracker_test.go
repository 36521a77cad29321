package workload

import (
	"context"
	"sync"
	"testing"

	"github.com/carelane/medassign/internal/cases"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type stubCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*DoctorWorkloadSnapshot
	hits    int
	drops   int
}

func newStubCache() *stubCache {
	return &stubCache{entries: make(map[uuid.UUID]*DoctorWorkloadSnapshot)}
}

func (c *stubCache) Get(ctx context.Context, doctorID uuid.UUID) (*DoctorWorkloadSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.entries[doctorID]
	if ok {
		c.hits++
	}
	return snap, ok
}

func (c *stubCache) Set(ctx context.Context, snap *DoctorWorkloadSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[snap.DoctorID] = snap
}

func (c *stubCache) Invalidate(ctx context.Context, doctorID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, doctorID)
	c.drops++
}

func TestTracker_SnapshotUsesCache(t *testing.T) {
	dir := NewMemoryDirectory()
	snap := baseSnapshot()
	dir.Put(snap)

	cache := newStubCache()
	tracker := NewTracker(dir, cache, nil)

	first, err := tracker.Snapshot(context.Background(), snap.DoctorID)
	require.NoError(t, err)
	require.Equal(t, snap.DoctorID, first.DoctorID)

	_, err = tracker.Snapshot(context.Background(), snap.DoctorID)
	require.NoError(t, err)
	require.Equal(t, 1, cache.hits)
}

func TestTracker_AdjustInvalidatesCache(t *testing.T) {
	dir := NewMemoryDirectory()
	snap := baseSnapshot()
	dir.Put(snap)

	cache := newStubCache()
	tracker := NewTracker(dir, cache, nil)

	_, err := tracker.Snapshot(context.Background(), snap.DoctorID)
	require.NoError(t, err)

	require.NoError(t, tracker.OnAssigned(context.Background(), snap.DoctorID))
	require.Equal(t, 1, cache.drops)

	fresh, err := tracker.Snapshot(context.Background(), snap.DoctorID)
	require.NoError(t, err)
	require.Equal(t, 1, fresh.ActiveCases)
	require.Equal(t, 1, fresh.TodayAppointments)
}

func TestTracker_OnReleasedNeverGoesNegative(t *testing.T) {
	dir := NewMemoryDirectory()
	snap := baseSnapshot()
	dir.Put(snap)

	tracker := NewTracker(dir, nil, nil)
	require.NoError(t, tracker.OnReleased(context.Background(), snap.DoctorID))

	fresh, err := tracker.Snapshot(context.Background(), snap.DoctorID)
	require.NoError(t, err)
	require.Equal(t, 0, fresh.ActiveCases)
}

func TestTracker_ScoreViaDirectory(t *testing.T) {
	dir := NewMemoryDirectory()
	snap := baseSnapshot()
	dir.Put(snap)

	tracker := NewTracker(dir, nil, nil)
	score, ok, err := tracker.Score(context.Background(), snap.DoctorID, Requirements{
		Specialty: "cardiology",
		Urgency:   cases.UrgencyMedium,
	})
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 1.0, score, 0.001)
}

func TestTracker_UnknownDoctor(t *testing.T) {
	tracker := NewTracker(NewMemoryDirectory(), nil, nil)
	_, err := tracker.Snapshot(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrDoctorNotFound)
}
