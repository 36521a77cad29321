// Package workload tracks per-doctor capacity snapshots and computes the
// matching score used to rank reassignment candidates. The doctor directory
// owns the underlying counters; this package reads them, scores against them,
// and adjusts them through atomic per-doctor updates.
package workload

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrDoctorNotFound = errors.New("doctor not found")

// DoctorWorkloadSnapshot is the engine's view of a doctor's current capacity.
type DoctorWorkloadSnapshot struct {
	DoctorID               uuid.UUID  `json:"doctor_id"`
	IsAvailable            bool       `json:"is_available"`
	ActiveCases            int        `json:"active_cases"`
	MaxActiveCases         int        `json:"max_active_cases"`
	TodayAppointments      int        `json:"today_appointments"`
	MaxDailyAppointments   int        `json:"max_daily_appointments"`
	AverageRating          float64    `json:"average_rating"`
	EmergencyMode          bool       `json:"emergency_mode"`
	EmergencyModeEnabledAt *time.Time `json:"emergency_mode_enabled_at,omitempty"`
	PrimarySpecialty       string     `json:"primary_specialty"`
	SecondarySpecialties   []string   `json:"secondary_specialties,omitempty"`
}

// AtCapacity reports whether the doctor cannot take another case.
func (s *DoctorWorkloadSnapshot) AtCapacity() bool {
	return s.MaxActiveCases > 0 && s.ActiveCases >= s.MaxActiveCases
}

// Delta is an atomic adjustment to a doctor's workload counters.
type Delta struct {
	ActiveCases       int
	TodayAppointments int
}

// Directory is the contract with the external doctor directory. Counter
// mutations must be atomic per doctor; implementations may never
// read-modify-write across a batch of doctors.
type Directory interface {
	Snapshot(ctx context.Context, doctorID uuid.UUID) (*DoctorWorkloadSnapshot, error)
	AdjustWorkload(ctx context.Context, doctorID uuid.UUID, delta Delta) error
}
