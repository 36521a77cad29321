// Package sweeps contains the periodic processes supervising pending case
// assignments: the expiration sweep, the reminder sweep, and reminder
// retention cleanup. Each sweep processes its batch per item: one failing
// assignment is logged and skipped, never aborting the rest.
package sweeps

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/carelane/medassign/internal/assignment/domain"
	"github.com/carelane/medassign/internal/cases"
	"github.com/carelane/medassign/internal/notify"
	"github.com/carelane/medassign/internal/reassign"
	sharedApplication "github.com/carelane/medassign/internal/shared/application"
	sharedDomain "github.com/carelane/medassign/internal/shared/domain"
	"github.com/carelane/medassign/internal/shared/infrastructure/eventbus"
	"github.com/carelane/medassign/internal/workload"
)

// ExpirationSweepConfig tunes the expiration sweep.
type ExpirationSweepConfig struct {
	// GracePeriod delays expiration past the deadline to absorb clock skew.
	GracePeriod time.Duration

	// MaxReassignmentAttempts is the expired-assignment count at which the
	// case escalates to manual handling instead of another reassignment.
	MaxReassignmentAttempts int
}

// ExpirationSweep finds timed-out pending assignments and resolves them:
// expire, release the case back to the pool, notify, and either request a
// reassignment or escalate.
type ExpirationSweep struct {
	assignments domain.AssignmentRepository
	caseStore   cases.Store
	tracker     *workload.Tracker
	emitter     notify.Emitter
	requester   reassign.Requester
	events      eventbus.Publisher
	uow         sharedApplication.UnitOfWork
	policy      domain.ExclusionPolicy
	config      ExpirationSweepConfig
	logger      *slog.Logger
	stats       statsRecorder
}

// NewExpirationSweep creates the expiration sweep.
func NewExpirationSweep(
	assignments domain.AssignmentRepository,
	caseStore cases.Store,
	tracker *workload.Tracker,
	emitter notify.Emitter,
	requester reassign.Requester,
	events eventbus.Publisher,
	uow sharedApplication.UnitOfWork,
	policy domain.ExclusionPolicy,
	config ExpirationSweepConfig,
	logger *slog.Logger,
) *ExpirationSweep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpirationSweep{
		assignments: assignments,
		caseStore:   caseStore,
		tracker:     tracker,
		emitter:     emitter,
		requester:   requester,
		events:      events,
		uow:         uow,
		policy:      policy,
		config:      config,
		logger:      logger,
	}
}

// Name identifies the sweep on the scheduler.
func (s *ExpirationSweep) Name() string { return "assignment-expiration" }

// Stats returns a snapshot of the sweep counters.
func (s *ExpirationSweep) Stats() Stats { return s.stats.Snapshot() }

// Run performs one sweep. Safe to invoke at-least-once: an assignment
// already expired by a previous run is filtered out by the pending-only
// query, and a racing transition fails the state machine guard and is
// treated as a no-op.
func (s *ExpirationSweep) Run(ctx context.Context) error {
	s.stats.recordRun()

	now := time.Now().UTC()
	cutoff := now.Add(-s.config.GracePeriod)

	expirable, err := s.assignments.FindExpirable(ctx, cutoff)
	if err != nil {
		s.stats.recordFailure(err)
		return err
	}

	for _, a := range expirable {
		s.stats.recordProcessed()
		if err := s.process(ctx, a); err != nil {
			s.stats.recordFailure(err)
			s.logger.Error("failed to process expired assignment",
				"assignment_id", a.ID(),
				"case_id", a.CaseID(),
				"error", err,
			)
		}
	}

	return nil
}

func (s *ExpirationSweep) process(ctx context.Context, a *domain.CaseAssignment) error {
	now := time.Now().UTC()

	// The snapshot may already be stale; re-check the predicate before
	// touching anything.
	if !domain.EligibleForExpiration(a.Status(), a.ExpiresAt(), now, s.config.GracePeriod) {
		return nil
	}

	// Steps that must hold together: the status transition and the case
	// falling back to the unassigned pool.
	err := sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		if err := a.Expire(now); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) {
				// Another run got here first; nothing to do.
				return nil
			}
			return err
		}

		if err := s.assignments.Save(txCtx, a); err != nil {
			return err
		}

		released, err := s.caseStore.ReleaseAssignment(txCtx, a.CaseID(), a.DoctorID())
		if err != nil {
			return err
		}
		if !released {
			s.logger.Warn("case no longer held by expired doctor, skipping release",
				"case_id", a.CaseID(),
				"doctor_id", a.DoctorID(),
			)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrStaleAssignment) {
			// The doctor responded between the sweep's read and the write.
			// The stored response wins; nothing to expire or release.
			a.ClearDomainEvents()
			s.logger.Info("assignment resolved concurrently, skipping expiration",
				"assignment_id", a.ID(),
				"case_id", a.CaseID(),
			)
			return nil
		}
		return err
	}
	if a.Status() != domain.StatusExpired {
		return nil
	}
	s.stats.recordExpired()

	for _, event := range a.DomainEvents() {
		s.publishEvent(ctx, event)
	}
	a.ClearDomainEvents()

	// Everything past the transaction is fire-and-forget: collaborator
	// failures are logged and never roll back the persisted transition.
	if s.tracker != nil {
		if err := s.tracker.OnReleased(ctx, a.DoctorID()); err != nil {
			s.logger.Warn("failed to release doctor workload",
				"doctor_id", a.DoctorID(),
				"error", err,
			)
		}
	}

	s.notifyExpired(ctx, a, now)

	expired, err := s.assignments.ListExpiredByCase(ctx, a.CaseID())
	if err != nil {
		return err
	}

	if len(expired) >= s.config.MaxReassignmentAttempts {
		s.escalate(ctx, a, len(expired))
		return nil
	}

	excluded := s.policy.Excluded(expired, now)
	req := reassign.Request{
		CaseID:            a.CaseID(),
		ExcludedDoctorIDs: excluded,
		Attempt:           len(expired),
		RequestedAt:       now,
	}
	if err := s.requester.Request(ctx, req); err != nil {
		// The next sweep will not retry this trigger; expiration is done
		// and the matcher tolerates missed rounds, operators see it in the
		// stats.
		s.logger.Error("failed to request reassignment",
			"case_id", a.CaseID(),
			"error", err,
		)
		return err
	}
	s.stats.recordReassignmentRequested()
	s.publishEvent(ctx, domain.NewReassignmentRequested(a, excluded, len(expired)))

	s.logger.Info("assignment expired and reassignment requested",
		"assignment_id", a.ID(),
		"case_id", a.CaseID(),
		"doctor_id", a.DoctorID(),
		"attempt", len(expired),
		"excluded", len(excluded),
	)
	return nil
}

func (s *ExpirationSweep) notifyExpired(ctx context.Context, a *domain.CaseAssignment, now time.Time) {
	n := notify.Notification{
		Kind: notify.KindAssignmentExpired,
		Role: notify.RoleAdmin,
		Payload: map[string]any{
			"assignment_id": a.ID().String(),
			"case_id":       a.CaseID().String(),
			"doctor_id":     a.DoctorID().String(),
			"assigned_at":   a.AssignedAt(),
			"expired_at":    now,
		},
	}
	if err := s.emitter.Emit(ctx, n); err != nil {
		s.logger.Warn("failed to emit expiration notification",
			"assignment_id", a.ID(),
			"error", err,
		)
	}
}

// publishEvent is fire-and-forget toward the domain event exchange.
func (s *ExpirationSweep) publishEvent(ctx context.Context, event sharedDomain.DomainEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish domain event",
			"routing_key", event.RoutingKey(),
			"error", err,
		)
	}
}

func (s *ExpirationSweep) escalate(ctx context.Context, a *domain.CaseAssignment, expiredCount int) {
	s.stats.recordEscalated()
	s.publishEvent(ctx, domain.NewAssignmentEscalated(a, expiredCount, s.config.MaxReassignmentAttempts))

	n := notify.Notification{
		Kind: notify.KindAssignmentEscalation,
		Role: notify.RoleAdmin,
		Payload: map[string]any{
			"case_id":       a.CaseID().String(),
			"doctor_id":     a.DoctorID().String(),
			"expired_count": expiredCount,
			"max_attempts":  s.config.MaxReassignmentAttempts,
		},
	}
	if err := s.emitter.Emit(ctx, n); err != nil {
		s.logger.Error("failed to emit escalation notification",
			"case_id", a.CaseID(),
			"error", err,
		)
	}

	s.logger.Warn("reassignment attempts exhausted, case escalated",
		"case_id", a.CaseID(),
		"expired_count", expiredCount,
	)
}
