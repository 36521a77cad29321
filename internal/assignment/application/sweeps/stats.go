package sweeps

import (
	"sync"
	"time"
)

// Stats is a snapshot of a sweep's counters, surfaced on the health endpoint
// and the periodic stats log.
type Stats struct {
	Runs                   uint64
	Processed              uint64
	Expired                uint64
	Escalated              uint64
	ReassignmentsRequested uint64
	RemindersSent          uint64
	Failures               uint64
	LastError              string
	LastErrorAt            *time.Time
	LastRunAt              *time.Time
}

// statsRecorder accumulates sweep counters under a mutex.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func (r *statsRecorder) recordRun() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	r.stats.Runs++
	r.stats.LastRunAt = &now
}

func (r *statsRecorder) recordProcessed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Processed++
}

func (r *statsRecorder) recordExpired() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Expired++
}

func (r *statsRecorder) recordEscalated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Escalated++
}

func (r *statsRecorder) recordReassignmentRequested() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.ReassignmentsRequested++
}

func (r *statsRecorder) recordReminderSent() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.RemindersSent++
}

func (r *statsRecorder) recordFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	r.stats.Failures++
	r.stats.LastError = err.Error()
	r.stats.LastErrorAt = &now
}

// Snapshot returns a copy of the current counters.
func (r *statsRecorder) Snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
