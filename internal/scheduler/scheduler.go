// Package scheduler runs the service's periodic jobs on a single gocron
// scheduler. Each job runs in singleton mode and a failing or panicking run
// is logged without stopping later runs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Job is one periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler owns the gocron scheduler for a fixed set of jobs.
type Scheduler struct {
	mu     sync.Mutex
	jobs   []Job
	logger *slog.Logger
	sched  gocron.Scheduler
}

func New(logger *slog.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:   jobs,
		logger: logger.With("component", "scheduler"),
	}
}

// Start schedules every job. Calling Start on a running scheduler does
// nothing. Jobs receive a context that is not cancelled when ctx is, so a
// run in flight at shutdown completes.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched != nil {
		return nil
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	base := context.WithoutCancel(ctx)
	for _, j := range s.jobs {
		_, err := sched.NewJob(
			gocron.DurationJob(j.Interval),
			gocron.NewTask(s.run, base, j),
			gocron.WithName(j.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			sched.Shutdown()
			return fmt.Errorf("schedule %s: %w", j.Name, err)
		}
		s.logger.Info("job scheduled", "job", j.Name, "interval", j.Interval)
	}

	sched.Start()
	s.sched = sched
	return nil
}

// Stop waits for in-flight runs and clears the scheduler so a later Start
// schedules the jobs exactly once.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	sched := s.sched
	s.sched = nil
	s.mu.Unlock()

	if sched == nil {
		return nil
	}
	if err := sched.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}

// Running reports whether Start has been called without a matching Stop.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched != nil
}

func (s *Scheduler) run(ctx context.Context, j Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "job", j.Name, "panic", r)
		}
	}()
	if err := j.Run(ctx); err != nil {
		s.logger.Error("job failed", "job", j.Name, "error", err)
	}
}
