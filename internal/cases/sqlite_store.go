package cases

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sharedPersistence "github.com/carelane/medassign/internal/shared/infrastructure/persistence"
	"github.com/google/uuid"
)

// SQLiteStore reads and updates cases in SQLite.
type SQLiteStore struct {
	dbConn *sql.DB
}

// NewSQLiteStore creates a new SQLite case store.
func NewSQLiteStore(dbConn *sql.DB) *SQLiteStore {
	return &SQLiteStore{dbConn: dbConn}
}

// Get returns the case, or ErrCaseNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id uuid.UUID) (*Case, error) {
	query := `
		SELECT id, title, status, urgency, required_specialty, assigned_doctor_id
		FROM cases
		WHERE id = ?
	`

	q := sharedPersistence.SQLiteExecutor(ctx, s.dbConn)

	var c Case
	var idStr, status, urgency string
	var doctorID sql.NullString
	err := q.QueryRowContext(ctx, query, id.String()).Scan(
		&idStr,
		&c.Title,
		&status,
		&urgency,
		&c.RequiredSpecialty,
		&doctorID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}

	c.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	if doctorID.Valid {
		parsed, err := uuid.Parse(doctorID.String)
		if err != nil {
			return nil, err
		}
		c.AssignedDoctorID = &parsed
	}
	c.Status = Status(status)
	c.Urgency = Urgency(urgency)
	return &c, nil
}

// ReleaseAssignment reverts the case to awaiting assignment when it is still
// held by the given doctor.
func (s *SQLiteStore) ReleaseAssignment(ctx context.Context, id uuid.UUID, doctorID uuid.UUID) (bool, error) {
	query := `
		UPDATE cases
		SET status = ?, assigned_doctor_id = NULL, updated_at = ?
		WHERE id = ? AND assigned_doctor_id = ? AND status = ?
	`

	q := sharedPersistence.SQLiteExecutor(ctx, s.dbConn)
	result, err := q.ExecContext(ctx, query,
		string(StatusAwaitingAssignment),
		time.Now().UTC().Format(time.RFC3339),
		id.String(),
		doctorID.String(),
		string(StatusAssigned),
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
