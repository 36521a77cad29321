package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/carelane/medassign/internal/assignment/domain"
	shared "github.com/carelane/medassign/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteReminderRepository implements domain.ReminderRepository using SQLite.
type SQLiteReminderRepository struct {
	dbConn *sql.DB
}

// NewSQLiteReminderRepository creates a new SQLite reminder repository.
func NewSQLiteReminderRepository(dbConn *sql.DB) *SQLiteReminderRepository {
	return &SQLiteReminderRepository{dbConn: dbConn}
}

func (r *SQLiteReminderRepository) Create(ctx context.Context, reminder domain.CaseAssignmentReminder) error {
	query := `
		INSERT INTO case_assignment_reminders (assignment_id, reminder_hour, sent_at, hours_remaining)
		VALUES (?, ?, ?, ?)`

	q := shared.SQLiteExecutor(ctx, r.dbConn)
	_, err := q.ExecContext(ctx, query,
		reminder.AssignmentID.String(),
		reminder.ReminderHour,
		reminder.SentAt.UTC().Format(time.RFC3339),
		reminder.HoursRemaining,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateReminder
		}
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	return nil
}

func (r *SQLiteReminderRepository) Exists(ctx context.Context, assignmentID uuid.UUID, reminderHour int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM case_assignment_reminders
			WHERE assignment_id = ? AND reminder_hour = ?
		)`

	q := shared.SQLiteExecutor(ctx, r.dbConn)
	var exists bool
	if err := q.QueryRowContext(ctx, query, assignmentID.String(), reminderHour).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check reminder existence: %w", err)
	}
	return exists, nil
}

func (r *SQLiteReminderRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM case_assignment_reminders WHERE sent_at < ?`

	q := shared.SQLiteExecutor(ctx, r.dbConn)
	result, err := q.ExecContext(ctx, query, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to delete reminders: %w", err)
	}
	return result.RowsAffected()
}
