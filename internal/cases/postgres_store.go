package cases

import (
	"context"
	"errors"

	sharedPersistence "github.com/carelane/medassign/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore reads and updates cases in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL case store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Get returns the case, or ErrCaseNotFound.
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Case, error) {
	query := `
		SELECT id, title, status, urgency, required_specialty, assigned_doctor_id
		FROM cases
		WHERE id = $1
	`

	execer := sharedPersistence.Executor(ctx, s.pool)

	var c Case
	var status, urgency string
	err := execer.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.Title,
		&status,
		&urgency,
		&c.RequiredSpecialty,
		&c.AssignedDoctorID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Status = Status(status)
	c.Urgency = Urgency(urgency)
	return &c, nil
}

// ReleaseAssignment reverts the case to awaiting assignment when it is still
// held by the given doctor. The WHERE clause makes the revert conditional so
// a concurrent accept or close wins over a late expiration.
func (s *PostgresStore) ReleaseAssignment(ctx context.Context, id uuid.UUID, doctorID uuid.UUID) (bool, error) {
	query := `
		UPDATE cases
		SET status = $3, assigned_doctor_id = NULL, updated_at = NOW()
		WHERE id = $1 AND assigned_doctor_id = $2 AND status = $4
	`

	execer := sharedPersistence.Executor(ctx, s.pool)
	tag, err := execer.Exec(ctx, query, id, doctorID, string(StatusAwaitingAssignment), string(StatusAssigned))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
