// Package scheduler runs the periodic refresh triggers of projectstate.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is one periodic job.
type Task struct {
	Name     string
	Interval time.Duration

	// Immediate runs the task once at start instead of waiting a full interval.
	Immediate bool
	Run       func(ctx context.Context) error
}

// Scheduler drives a fixed set of tasks, each on its own ticker.
type Scheduler struct {
	tasks  []Task
	logger *slog.Logger
}

// New creates a Scheduler. Tasks with a non-positive interval or nil Run are
// dropped with a warning.
func New(tasks []Task, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{logger: logger}
	for _, t := range tasks {
		if t.Interval <= 0 || t.Run == nil {
			logger.Warn("scheduler: task skipped", "task", t.Name, "interval", t.Interval)
			continue
		}
		s.tasks = append(s.tasks, t)
	}
	return s
}

// Run blocks until ctx is cancelled and every task loop has returned.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, t := range s.tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, t)
		}()
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	if t.Immediate {
		s.fire(ctx, t)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, t)
		}
	}
}

// fire runs t once. Errors are logged; the next tick is the only retry.
func (s *Scheduler) fire(ctx context.Context, t Task) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := t.Run(ctx); err != nil {
		s.logger.Error("scheduler: task failed", "task", t.Name, "error", err, "elapsed", time.Since(start))
		return
	}
	s.logger.Debug("scheduler: task done", "task", t.Name, "elapsed", time.Since(start))
}
