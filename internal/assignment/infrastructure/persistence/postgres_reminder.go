package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelane/medassign/internal/assignment/domain"
	shared "github.com/carelane/medassign/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// PostgresReminderRepository implements domain.ReminderRepository backed by
// PostgreSQL. Duplicate suppression rides on the primary key
// (assignment_id, reminder_hour).
type PostgresReminderRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresReminderRepository creates a PostgreSQL-backed reminder repository.
func NewPostgresReminderRepository(pool *pgxpool.Pool) *PostgresReminderRepository {
	return &PostgresReminderRepository{pool: pool}
}

func (r *PostgresReminderRepository) Create(ctx context.Context, reminder domain.CaseAssignmentReminder) error {
	query := `
		INSERT INTO case_assignment_reminders (assignment_id, reminder_hour, sent_at, hours_remaining)
		VALUES ($1, $2, $3, $4)`

	exec := shared.Executor(ctx, r.pool)
	_, err := exec.Exec(ctx, query,
		reminder.AssignmentID,
		reminder.ReminderHour,
		reminder.SentAt,
		reminder.HoursRemaining,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateReminder
		}
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	return nil
}

func (r *PostgresReminderRepository) Exists(ctx context.Context, assignmentID uuid.UUID, reminderHour int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM case_assignment_reminders
			WHERE assignment_id = $1 AND reminder_hour = $2
		)`

	exec := shared.Executor(ctx, r.pool)
	var exists bool
	if err := exec.QueryRow(ctx, query, assignmentID, reminderHour).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check reminder existence: %w", err)
	}
	return exists, nil
}

func (r *PostgresReminderRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM case_assignment_reminders WHERE sent_at < $1`

	exec := shared.Executor(ctx, r.pool)
	tag, err := exec.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete reminders: %w", err)
	}
	return tag.RowsAffected(), nil
}
