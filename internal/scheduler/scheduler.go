// Package scheduler runs named periodic tasks on fixed intervals with an
// explicit non-overlap guarantee per task: a tick that arrives while the
// previous run of the same task is still in flight is skipped, never run in
// parallel.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is one periodically executed job.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc struct {
	TaskName string
	Fn       func(ctx context.Context) error
}

func (t TaskFunc) Name() string                  { return t.TaskName }
func (t TaskFunc) Run(ctx context.Context) error { return t.Fn(ctx) }

type taskEntry struct {
	task     Task
	interval time.Duration
	running  sync.Mutex
}

// Scheduler drives registered tasks until stopped.
type Scheduler struct {
	logger *slog.Logger

	mu       sync.Mutex
	entries  []*taskEntry
	stopChan chan struct{}
	started  bool
	wg       sync.WaitGroup
}

// New creates a scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Add registers a task with its interval. Must be called before Start.
func (s *Scheduler) Add(task Task, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, &taskEntry{task: task, interval: interval})
}

// Start launches one goroutine per registered task.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.stopChan = make(chan struct{})
	entries := s.entries
	s.mu.Unlock()

	for _, entry := range entries {
		s.wg.Add(1)
		go s.runLoop(ctx, entry)
		s.logger.Info("scheduler task started",
			"task", entry.task.Name(),
			"interval", entry.interval,
		)
	}
}

// Stop waits for in-flight runs to finish and stops all task loops.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runLoop(ctx context.Context, entry *taskEntry) {
	defer s.wg.Done()

	ticker := time.NewTicker(entry.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runOnce(ctx, entry)
		}
	}
}

// runOnce executes the task unless its previous run is still in flight.
func (s *Scheduler) runOnce(ctx context.Context, entry *taskEntry) {
	if !entry.running.TryLock() {
		s.logger.Warn("previous run still in progress, skipping tick",
			"task", entry.task.Name(),
		)
		return
	}
	defer entry.running.Unlock()

	if err := entry.task.Run(ctx); err != nil {
		s.logger.Error("task run failed",
			"task", entry.task.Name(),
			"error", err,
		)
	}
}

// RunNow triggers a single run of the named task, honoring the non-overlap
// guard. Returns false when the task is unknown.
func (s *Scheduler) RunNow(ctx context.Context, name string) bool {
	s.mu.Lock()
	var found *taskEntry
	for _, entry := range s.entries {
		if entry.task.Name() == name {
			found = entry
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		return false
	}
	s.runOnce(ctx, found)
	return true
}
