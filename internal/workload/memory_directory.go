package workload

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryDirectory is an in-memory doctor directory for tests and local
// development. Adjustments are atomic under a single mutex.
type MemoryDirectory struct {
	mu      sync.Mutex
	doctors map[uuid.UUID]*DoctorWorkloadSnapshot
}

// NewMemoryDirectory creates an empty in-memory directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{doctors: make(map[uuid.UUID]*DoctorWorkloadSnapshot)}
}

// Put inserts or replaces a doctor snapshot.
func (d *MemoryDirectory) Put(snap *DoctorWorkloadSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *snap
	d.doctors[snap.DoctorID] = &cp
}

func (d *MemoryDirectory) Snapshot(ctx context.Context, doctorID uuid.UUID) (*DoctorWorkloadSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap, ok := d.doctors[doctorID]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *snap
	return &cp, nil
}

func (d *MemoryDirectory) AdjustWorkload(ctx context.Context, doctorID uuid.UUID, delta Delta) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap, ok := d.doctors[doctorID]
	if !ok {
		return ErrDoctorNotFound
	}
	snap.ActiveCases += delta.ActiveCases
	if snap.ActiveCases < 0 {
		snap.ActiveCases = 0
	}
	snap.TodayAppointments += delta.TodayAppointments
	if snap.TodayAppointments < 0 {
		snap.TodayAppointments = 0
	}
	return nil
}
