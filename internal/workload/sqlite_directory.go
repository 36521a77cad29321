package workload

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQLiteDirectory reads doctor capacity from SQLite. Secondary specialties
// are stored as a comma separated string.
type SQLiteDirectory struct {
	dbConn *sql.DB
}

// NewSQLiteDirectory creates a new SQLite doctor directory.
func NewSQLiteDirectory(dbConn *sql.DB) *SQLiteDirectory {
	return &SQLiteDirectory{dbConn: dbConn}
}

// Snapshot returns the doctor's current capacity view.
func (d *SQLiteDirectory) Snapshot(ctx context.Context, doctorID uuid.UUID) (*DoctorWorkloadSnapshot, error) {
	query := `
		SELECT id, is_available, active_cases, max_active_cases,
		       today_appointments, max_daily_appointments, average_rating,
		       emergency_mode, emergency_mode_enabled_at,
		       primary_specialty, secondary_specialties
		FROM doctors
		WHERE id = ?
	`

	var (
		idStr                  string
		available, emergency   int64
		emergencyAt, secondary sql.NullString
	)
	snap := &DoctorWorkloadSnapshot{}
	err := d.dbConn.QueryRowContext(ctx, query, doctorID.String()).Scan(
		&idStr,
		&available,
		&snap.ActiveCases,
		&snap.MaxActiveCases,
		&snap.TodayAppointments,
		&snap.MaxDailyAppointments,
		&snap.AverageRating,
		&emergency,
		&emergencyAt,
		&snap.PrimarySpecialty,
		&secondary,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, err
	}

	snap.DoctorID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	snap.IsAvailable = available != 0
	snap.EmergencyMode = emergency != 0
	if emergencyAt.Valid {
		t, err := time.Parse(time.RFC3339, emergencyAt.String)
		if err != nil {
			return nil, err
		}
		snap.EmergencyModeEnabledAt = &t
	}
	if secondary.Valid && secondary.String != "" {
		snap.SecondarySpecialties = strings.Split(secondary.String, ",")
	}
	return snap, nil
}

// AdjustWorkload applies the delta in one conditional UPDATE. MAX keeps the
// counters at or above zero when a decrement races with a release.
func (d *SQLiteDirectory) AdjustWorkload(ctx context.Context, doctorID uuid.UUID, delta Delta) error {
	query := `
		UPDATE doctors
		SET active_cases = MAX(active_cases + ?, 0),
		    today_appointments = MAX(today_appointments + ?, 0),
		    updated_at = ?
		WHERE id = ?
	`

	result, err := d.dbConn.ExecContext(ctx, query,
		delta.ActiveCases,
		delta.TodayAppointments,
		time.Now().UTC().Format(time.RFC3339),
		doctorID.String(),
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDoctorNotFound
	}
	return nil
}
