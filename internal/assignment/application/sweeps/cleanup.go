package sweeps

import (
	"context"
	"log/slog"
	"time"

	"github.com/carelane/medassign/internal/assignment/domain"
)

// ReminderCleanup prunes reminder records older than the retention period.
// Reminder rows are only consulted while their assignment is still pending,
// so anything past the longest timeout plus a margin is dead weight.
type ReminderCleanup struct {
	reminders domain.ReminderRepository
	retention time.Duration
	logger    *slog.Logger
}

// NewReminderCleanup creates the retention task.
func NewReminderCleanup(reminders domain.ReminderRepository, retention time.Duration, logger *slog.Logger) *ReminderCleanup {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReminderCleanup{
		reminders: reminders,
		retention: retention,
		logger:    logger,
	}
}

// Name identifies the task on the scheduler.
func (c *ReminderCleanup) Name() string { return "reminder-cleanup" }

// Run deletes reminder records sent before now minus the retention period.
func (c *ReminderCleanup) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-c.retention)
	deleted, err := c.reminders.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		c.logger.Info("pruned reminder records", "deleted", deleted, "cutoff", cutoff)
	}
	return nil
}
