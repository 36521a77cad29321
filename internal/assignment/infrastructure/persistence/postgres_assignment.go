package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelane/medassign/internal/assignment/domain"
	shared "github.com/carelane/medassign/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// PostgresAssignmentRepository implements domain.AssignmentRepository backed
// by PostgreSQL. The at-most-one-pending-per-case rule is enforced by a
// partial unique index on (case_id) WHERE status = 'pending'.
type PostgresAssignmentRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresAssignmentRepository creates a PostgreSQL-backed repository.
func NewPostgresAssignmentRepository(pool *pgxpool.Pool) *PostgresAssignmentRepository {
	return &PostgresAssignmentRepository{pool: pool}
}

const assignmentColumns = `id, case_id, doctor_id, status, priority, assigned_at,
	responded_at, expires_at, reason, rejection_reason, matching_score,
	created_at, updated_at`

func (r *PostgresAssignmentRepository) Create(ctx context.Context, a *domain.CaseAssignment) error {
	query := `
		INSERT INTO case_assignments (` + assignmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	exec := shared.Executor(ctx, r.pool)
	_, err := exec.Exec(ctx, query,
		a.ID(),
		a.CaseID(),
		a.DoctorID(),
		string(a.Status()),
		string(a.Priority()),
		a.AssignedAt(),
		a.RespondedAt(),
		a.ExpiresAt(),
		a.Reason(),
		a.RejectionReason(),
		a.MatchingScore(),
		a.CreatedAt(),
		a.UpdatedAt(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrCasePendingConflict
		}
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	return nil
}

func (r *PostgresAssignmentRepository) Save(ctx context.Context, a *domain.CaseAssignment) error {
	// Compare-and-set against the pending status so a doctor response that
	// landed after the caller's read is never overwritten.
	query := `
		UPDATE case_assignments
		SET status = $2, responded_at = $3, rejection_reason = $4, updated_at = $5
		WHERE id = $1 AND status = 'pending'`

	exec := shared.Executor(ctx, r.pool)
	tag, err := exec.Exec(ctx, query,
		a.ID(),
		string(a.Status()),
		a.RespondedAt(),
		a.RejectionReason(),
		a.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to save assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := exec.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM case_assignments WHERE id = $1)`, a.ID(),
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to save assignment: %w", err)
		}
		if exists {
			return domain.ErrStaleAssignment
		}
		return domain.ErrAssignmentNotFound
	}
	return nil
}

func (r *PostgresAssignmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.CaseAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM case_assignments WHERE id = $1`

	exec := shared.Executor(ctx, r.pool)
	a, err := scanAssignment(exec.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to find assignment: %w", err)
	}
	return a, nil
}

func (r *PostgresAssignmentRepository) FindExpirable(ctx context.Context, cutoff time.Time) ([]*domain.CaseAssignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM case_assignments
		WHERE status = 'pending' AND expires_at <= $1
		ORDER BY assigned_at ASC`

	return r.queryAssignments(ctx, query, cutoff)
}

func (r *PostgresAssignmentRepository) FindPendingAssignedBetween(ctx context.Context, from, to time.Time) ([]*domain.CaseAssignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM case_assignments
		WHERE status = 'pending' AND assigned_at >= $1 AND assigned_at <= $2
		ORDER BY assigned_at ASC`

	return r.queryAssignments(ctx, query, from, to)
}

func (r *PostgresAssignmentRepository) ListExpiredByCase(ctx context.Context, caseID uuid.UUID) ([]*domain.CaseAssignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM case_assignments
		WHERE case_id = $1 AND status = 'expired'
		ORDER BY assigned_at DESC`

	return r.queryAssignments(ctx, query, caseID)
}

func (r *PostgresAssignmentRepository) queryAssignments(ctx context.Context, query string, args ...any) ([]*domain.CaseAssignment, error) {
	exec := shared.Executor(ctx, r.pool)
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var out []*domain.CaseAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssignment(row pgx.Row) (*domain.CaseAssignment, error) {
	var (
		id, caseID, doctorID    uuid.UUID
		status, priority        string
		assignedAt, expiresAt   time.Time
		respondedAt             *time.Time
		reason                  string
		rejectionReason         *string
		matchingScore           float64
		createdAt, updatedAt    time.Time
	)
	err := row.Scan(
		&id, &caseID, &doctorID, &status, &priority, &assignedAt,
		&respondedAt, &expiresAt, &reason, &rejectionReason, &matchingScore,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	return domain.RehydrateCaseAssignment(
		id, caseID, doctorID,
		domain.Status(status), domain.Priority(priority),
		assignedAt, respondedAt, expiresAt,
		reason, rejectionReason, matchingScore,
		createdAt, updatedAt,
	), nil
}
