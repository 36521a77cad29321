package workload

import (
	"context"
	"log/slog"

	"github.com/carelane/medassign/internal/cases"
	"github.com/google/uuid"
)

// SnapshotCache caches workload snapshots in front of the directory. A nil
// cache is valid and disables caching.
type SnapshotCache interface {
	Get(ctx context.Context, doctorID uuid.UUID) (*DoctorWorkloadSnapshot, bool)
	Set(ctx context.Context, snap *DoctorWorkloadSnapshot)
	Invalidate(ctx context.Context, doctorID uuid.UUID)
}

// Tracker combines the doctor directory with scoring and keeps the cached
// snapshots coherent with counter adjustments.
type Tracker struct {
	directory Directory
	cache     SnapshotCache
	logger    *slog.Logger
}

// NewTracker creates a workload tracker.
func NewTracker(directory Directory, cache SnapshotCache, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{directory: directory, cache: cache, logger: logger}
}

// Snapshot returns the doctor's current capacity view, served from cache
// when fresh.
func (t *Tracker) Snapshot(ctx context.Context, doctorID uuid.UUID) (*DoctorWorkloadSnapshot, error) {
	if t.cache != nil {
		if snap, ok := t.cache.Get(ctx, doctorID); ok {
			return snap, nil
		}
	}

	snap, err := t.directory.Snapshot(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if t.cache != nil {
		t.cache.Set(ctx, snap)
	}
	return snap, nil
}

// Score fetches the doctor's snapshot and scores it against the case
// requirements. The second return value is false when the doctor is not a
// viable candidate.
func (t *Tracker) Score(ctx context.Context, doctorID uuid.UUID, req Requirements) (float64, bool, error) {
	snap, err := t.Snapshot(ctx, doctorID)
	if err != nil {
		return 0, false, err
	}
	score, ok := Score(snap, req)
	return score, ok, nil
}

// OnAssigned durably increments the doctor's counters after a successful
// assignment.
func (t *Tracker) OnAssigned(ctx context.Context, doctorID uuid.UUID) error {
	return t.adjust(ctx, doctorID, Delta{ActiveCases: 1, TodayAppointments: 1})
}

// OnReleased durably decrements the active-case counter when a case is
// closed, rejected, or its assignment expires without acceptance.
func (t *Tracker) OnReleased(ctx context.Context, doctorID uuid.UUID) error {
	return t.adjust(ctx, doctorID, Delta{ActiveCases: -1})
}

func (t *Tracker) adjust(ctx context.Context, doctorID uuid.UUID, delta Delta) error {
	if err := t.directory.AdjustWorkload(ctx, doctorID, delta); err != nil {
		return err
	}
	if t.cache != nil {
		t.cache.Invalidate(ctx, doctorID)
	}
	t.logger.Debug("workload adjusted",
		"doctor_id", doctorID,
		"active_delta", delta.ActiveCases,
		"appointments_delta", delta.TodayAppointments,
	)
	return nil
}

// RequirementsForCase builds scoring requirements from a case read model.
func RequirementsForCase(c *cases.Case) Requirements {
	return Requirements{Specialty: c.RequiredSpecialty, Urgency: c.Urgency}
}
