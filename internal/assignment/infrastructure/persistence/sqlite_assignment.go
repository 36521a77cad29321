package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carelane/medassign/internal/assignment/domain"
	shared "github.com/carelane/medassign/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteAssignmentRepository implements domain.AssignmentRepository using
// SQLite. Timestamps are stored as RFC3339 strings.
type SQLiteAssignmentRepository struct {
	dbConn *sql.DB
}

// NewSQLiteAssignmentRepository creates a new SQLite assignment repository.
func NewSQLiteAssignmentRepository(dbConn *sql.DB) *SQLiteAssignmentRepository {
	return &SQLiteAssignmentRepository{dbConn: dbConn}
}

const sqliteAssignmentColumns = `id, case_id, doctor_id, status, priority, assigned_at,
	responded_at, expires_at, reason, rejection_reason, matching_score,
	created_at, updated_at`

func (r *SQLiteAssignmentRepository) Create(ctx context.Context, a *domain.CaseAssignment) error {
	query := `
		INSERT INTO case_assignments (` + sqliteAssignmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	q := shared.SQLiteExecutor(ctx, r.dbConn)
	_, err := q.ExecContext(ctx, query,
		a.ID().String(),
		a.CaseID().String(),
		a.DoctorID().String(),
		string(a.Status()),
		string(a.Priority()),
		a.AssignedAt().UTC().Format(time.RFC3339),
		toNullTime(a.RespondedAt()),
		a.ExpiresAt().UTC().Format(time.RFC3339),
		a.Reason(),
		toNullString(a.RejectionReason()),
		a.MatchingScore(),
		a.CreatedAt().UTC().Format(time.RFC3339),
		a.UpdatedAt().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCasePendingConflict
		}
		return fmt.Errorf("failed to create assignment: %w", err)
	}
	return nil
}

func (r *SQLiteAssignmentRepository) Save(ctx context.Context, a *domain.CaseAssignment) error {
	// Compare-and-set against the pending status so a doctor response that
	// landed after the caller's read is never overwritten.
	query := `
		UPDATE case_assignments
		SET status = ?, responded_at = ?, rejection_reason = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`

	q := shared.SQLiteExecutor(ctx, r.dbConn)
	result, err := q.ExecContext(ctx, query,
		string(a.Status()),
		toNullTime(a.RespondedAt()),
		toNullString(a.RejectionReason()),
		a.UpdatedAt().UTC().Format(time.RFC3339),
		a.ID().String(),
	)
	if err != nil {
		return fmt.Errorf("failed to save assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var count int
		err := q.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM case_assignments WHERE id = ?`, a.ID().String(),
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to save assignment: %w", err)
		}
		if count > 0 {
			return domain.ErrStaleAssignment
		}
		return domain.ErrAssignmentNotFound
	}
	return nil
}

func (r *SQLiteAssignmentRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.CaseAssignment, error) {
	query := `SELECT ` + sqliteAssignmentColumns + ` FROM case_assignments WHERE id = ?`

	q := shared.SQLiteExecutor(ctx, r.dbConn)
	a, err := scanSQLiteAssignment(q.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to find assignment: %w", err)
	}
	return a, nil
}

func (r *SQLiteAssignmentRepository) FindExpirable(ctx context.Context, cutoff time.Time) ([]*domain.CaseAssignment, error) {
	query := `
		SELECT ` + sqliteAssignmentColumns + `
		FROM case_assignments
		WHERE status = 'pending' AND expires_at <= ?
		ORDER BY assigned_at ASC`

	return r.queryAssignments(ctx, query, cutoff.UTC().Format(time.RFC3339))
}

func (r *SQLiteAssignmentRepository) FindPendingAssignedBetween(ctx context.Context, from, to time.Time) ([]*domain.CaseAssignment, error) {
	query := `
		SELECT ` + sqliteAssignmentColumns + `
		FROM case_assignments
		WHERE status = 'pending' AND assigned_at >= ? AND assigned_at <= ?
		ORDER BY assigned_at ASC`

	return r.queryAssignments(ctx, query, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
}

func (r *SQLiteAssignmentRepository) ListExpiredByCase(ctx context.Context, caseID uuid.UUID) ([]*domain.CaseAssignment, error) {
	query := `
		SELECT ` + sqliteAssignmentColumns + `
		FROM case_assignments
		WHERE case_id = ? AND status = 'expired'
		ORDER BY assigned_at DESC`

	return r.queryAssignments(ctx, query, caseID.String())
}

func (r *SQLiteAssignmentRepository) queryAssignments(ctx context.Context, query string, args ...any) ([]*domain.CaseAssignment, error) {
	q := shared.SQLiteExecutor(ctx, r.dbConn)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var out []*domain.CaseAssignment
	for rows.Next() {
		a, err := scanSQLiteAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteAssignment(row rowScanner) (*domain.CaseAssignment, error) {
	var (
		idStr, caseIDStr, doctorIDStr string
		status, priority              string
		assignedAtStr, expiresAtStr   string
		respondedAtStr                sql.NullString
		reason                        string
		rejectionReason               sql.NullString
		matchingScore                 float64
		createdAtStr, updatedAtStr    string
	)
	err := row.Scan(
		&idStr, &caseIDStr, &doctorIDStr, &status, &priority, &assignedAtStr,
		&respondedAtStr, &expiresAtStr, &reason, &rejectionReason, &matchingScore,
		&createdAtStr, &updatedAtStr,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	caseID, err := uuid.Parse(caseIDStr)
	if err != nil {
		return nil, err
	}
	doctorID, err := uuid.Parse(doctorIDStr)
	if err != nil {
		return nil, err
	}

	assignedAt, err := time.Parse(time.RFC3339, assignedAtStr)
	if err != nil {
		return nil, err
	}
	expiresAt, err := time.Parse(time.RFC3339, expiresAtStr)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, err
	}
	updatedAt, err := time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, err
	}

	var respondedAt *time.Time
	if respondedAtStr.Valid {
		t, err := time.Parse(time.RFC3339, respondedAtStr.String)
		if err != nil {
			return nil, err
		}
		respondedAt = &t
	}

	var rejection *string
	if rejectionReason.Valid {
		s := rejectionReason.String
		rejection = &s
	}

	return domain.RehydrateCaseAssignment(
		id, caseID, doctorID,
		domain.Status(status), domain.Priority(priority),
		assignedAt, respondedAt, expiresAt,
		reason, rejection, matchingScore,
		createdAt, updatedAt,
	), nil
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func toNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
