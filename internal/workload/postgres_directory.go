package workload

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDirectory reads doctor capacity from PostgreSQL and adjusts the
// shared counters with single-statement atomic updates.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a new PostgreSQL doctor directory.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// Snapshot returns the doctor's current capacity view.
func (d *PostgresDirectory) Snapshot(ctx context.Context, doctorID uuid.UUID) (*DoctorWorkloadSnapshot, error) {
	query := `
		SELECT id, is_available, active_cases, max_active_cases,
		       today_appointments, max_daily_appointments, average_rating,
		       emergency_mode, emergency_mode_enabled_at,
		       primary_specialty, secondary_specialties
		FROM doctors
		WHERE id = $1
	`

	var snap DoctorWorkloadSnapshot
	err := d.pool.QueryRow(ctx, query, doctorID).Scan(
		&snap.DoctorID,
		&snap.IsAvailable,
		&snap.ActiveCases,
		&snap.MaxActiveCases,
		&snap.TodayAppointments,
		&snap.MaxDailyAppointments,
		&snap.AverageRating,
		&snap.EmergencyMode,
		&snap.EmergencyModeEnabledAt,
		&snap.PrimarySpecialty,
		&snap.SecondarySpecialties,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// AdjustWorkload applies the delta in one conditional UPDATE scoped to a
// single doctor row. Counters never go below zero even when a decrement
// races with a concurrent release.
func (d *PostgresDirectory) AdjustWorkload(ctx context.Context, doctorID uuid.UUID, delta Delta) error {
	query := `
		UPDATE doctors
		SET active_cases = GREATEST(active_cases + $2, 0),
		    today_appointments = GREATEST(today_appointments + $3, 0),
		    updated_at = NOW()
		WHERE id = $1
	`

	tag, err := d.pool.Exec(ctx, query, doctorID, delta.ActiveCases, delta.TodayAppointments)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDoctorNotFound
	}
	return nil
}
