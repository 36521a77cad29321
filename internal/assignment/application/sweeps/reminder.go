package sweeps

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/carelane/medassign/internal/assignment/domain"
	"github.com/carelane/medassign/internal/cases"
	"github.com/carelane/medassign/internal/notify"
	"github.com/carelane/medassign/internal/shared/infrastructure/eventbus"
)

// ReminderSweepConfig tunes the reminder sweep.
type ReminderSweepConfig struct {
	// Interval is the sweep cadence; half of it is the matching window
	// epsilon around each checkpoint.
	Interval time.Duration

	// StandardCheckpoints are the reminder hours for standard-timeout
	// assignments, already filtered at config load to lie strictly below
	// the timeout.
	StandardCheckpoints []int

	// CriticalCheckpoints are the reminder hours applicable to
	// critical-timeout assignments. Empty means critical assignments never
	// get reminders.
	CriticalCheckpoints []int

	// Timeouts computes hours remaining per urgency.
	Timeouts domain.Timeouts
}

// ReminderSweep fires reminder notifications at configured checkpoints after
// assignment, with at-most-one-per-checkpoint duplicate suppression.
type ReminderSweep struct {
	assignments domain.AssignmentRepository
	reminders   domain.ReminderRepository
	caseStore   cases.Store
	emitter     notify.Emitter
	events      eventbus.Publisher
	config      ReminderSweepConfig
	logger      *slog.Logger
	stats       statsRecorder
}

// NewReminderSweep creates the reminder sweep.
func NewReminderSweep(
	assignments domain.AssignmentRepository,
	reminders domain.ReminderRepository,
	caseStore cases.Store,
	emitter notify.Emitter,
	events eventbus.Publisher,
	config ReminderSweepConfig,
	logger *slog.Logger,
) *ReminderSweep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReminderSweep{
		assignments: assignments,
		reminders:   reminders,
		caseStore:   caseStore,
		emitter:     emitter,
		events:      events,
		config:      config,
		logger:      logger,
	}
}

// Name identifies the sweep on the scheduler.
func (s *ReminderSweep) Name() string { return "assignment-reminders" }

// Stats returns a snapshot of the sweep counters.
func (s *ReminderSweep) Stats() Stats { return s.stats.Snapshot() }

// Run performs one sweep over all configured checkpoints.
func (s *ReminderSweep) Run(ctx context.Context) error {
	s.stats.recordRun()

	now := time.Now().UTC()
	epsilon := s.config.Interval / 2

	for _, hour := range s.config.StandardCheckpoints {
		target := now.Add(-time.Duration(hour) * time.Hour)
		pending, err := s.assignments.FindPendingAssignedBetween(ctx, target.Add(-epsilon), target.Add(epsilon))
		if err != nil {
			s.stats.recordFailure(err)
			s.logger.Error("failed to query reminder window", "hour", hour, "error", err)
			continue
		}

		for _, a := range pending {
			s.stats.recordProcessed()
			if err := s.process(ctx, a, hour, now); err != nil {
				s.stats.recordFailure(err)
				s.logger.Error("failed to process reminder",
					"assignment_id", a.ID(),
					"hour", hour,
					"error", err,
				)
			}
		}
	}

	return nil
}

func (s *ReminderSweep) process(ctx context.Context, a *domain.CaseAssignment, hour int, now time.Time) error {
	sent, err := s.reminders.Exists(ctx, a.ID(), hour)
	if err != nil {
		return err
	}
	if sent {
		return nil
	}

	c, err := s.caseStore.Get(ctx, a.CaseID())
	if err != nil {
		if errors.Is(err, cases.ErrCaseNotFound) {
			s.logger.Warn("assignment references missing case, skipping reminder",
				"assignment_id", a.ID(),
				"case_id", a.CaseID(),
			)
			return nil
		}
		return err
	}

	if c.Urgency.IsCritical() && !containsHour(s.config.CriticalCheckpoints, hour) {
		return nil
	}

	timeoutHours := int(s.config.Timeouts.For(c.Urgency) / time.Hour)
	hoursRemaining := timeoutHours - hour

	doctorID := a.DoctorID()
	n := notify.Notification{
		Kind:        notify.KindAssignmentReminder,
		RecipientID: &doctorID,
		Payload: map[string]any{
			"assignment_id":   a.ID().String(),
			"case_id":         a.CaseID().String(),
			"case_title":      c.Title,
			"urgency":         string(c.Urgency),
			"assigned_at":     a.AssignedAt(),
			"expires_at":      a.ExpiresAt(),
			"hours_remaining": hoursRemaining,
			"remaining":       domain.FormatHoursRemaining(hoursRemaining),
		},
	}
	if err := s.emitter.Emit(ctx, n); err != nil {
		// Not recorded as sent: the next run inside the window may legally
		// re-fire this checkpoint once.
		return err
	}

	// Recorded after emission, so a crash in between costs at most one
	// duplicate send for this checkpoint.
	reminder := domain.NewCaseAssignmentReminder(a.ID(), hour, hoursRemaining, now)
	if err := s.reminders.Create(ctx, reminder); err != nil {
		if errors.Is(err, domain.ErrDuplicateReminder) {
			return nil
		}
		return err
	}
	s.stats.recordReminderSent()

	if s.events != nil {
		if err := s.events.Publish(ctx, domain.NewReminderSent(a, hour, hoursRemaining)); err != nil {
			s.logger.Warn("failed to publish reminder event",
				"assignment_id", a.ID(),
				"error", err,
			)
		}
	}

	s.logger.Info("reminder sent",
		"assignment_id", a.ID(),
		"doctor_id", a.DoctorID(),
		"hour", hour,
		"hours_remaining", hoursRemaining,
	)
	return nil
}

func containsHour(hours []int, hour int) bool {
	for _, h := range hours {
		if h == hour {
			return true
		}
	}
	return false
}
