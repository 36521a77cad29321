package cases

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory case store for tests and local development.
type MemoryStore struct {
	mu    sync.RWMutex
	cases map[uuid.UUID]*Case
}

// NewMemoryStore creates an empty in-memory case store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cases: make(map[uuid.UUID]*Case)}
}

// Put inserts or replaces a case.
func (s *MemoryStore) Put(c *Case) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.cases[c.ID] = &cp
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, ErrCaseNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ReleaseAssignment(ctx context.Context, id uuid.UUID, doctorID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return false, nil
	}
	if c.Status != StatusAssigned || c.AssignedDoctorID == nil || *c.AssignedDoctorID != doctorID {
		return false, nil
	}
	c.Status = StatusAwaitingAssignment
	c.AssignedDoctorID = nil
	return true, nil
}
