package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bit2swaz/sfg-rotate/pkg/retention"
)

// Scheduler runs the Runner on a cron schedule. Each tick evaluates the
// policy for the current date in the configured time zone.
type Scheduler struct {
	runner   *Runner
	schedule string
	location *time.Location
	now      func() time.Time
	hook     string
	cron     *cron.Cron
	entry    cron.EntryID
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	runMu   sync.Mutex
	last    *Report
}

type SchedulerOption func(*Scheduler)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// WithHook runs command after every scheduled or manual run.
func WithHook(command string) SchedulerOption {
	return func(s *Scheduler) { s.hook = command }
}

func NewScheduler(runner *Runner, schedule string, loc *time.Location, opts ...SchedulerOption) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		runner:   runner,
		schedule: schedule,
		location: loc,
		now:      time.Now,
		cron:     cron.New(cron.WithLocation(loc)),
		logger:   slog.Default().With("component", "engine.scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins scheduled pruning. An empty schedule is not an error: the
// scheduler stays idle and RunNow still works.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.schedule == "" {
		s.logger.Info("prune schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	// a restart after Stop replaces the previous entry
	if s.entry != 0 {
		s.cron.Remove(s.entry)
	}
	entry, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunNow(ctx, retention.Date{}); err != nil {
			s.logger.Error("scheduled prune run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}
	s.entry = entry

	s.cron.Start()
	s.running = true

	s.logger.Info("prune scheduler started",
		"schedule", s.schedule,
		"timezone", s.location.String(),
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunNow performs a run immediately. A zero date means today in the
// scheduler's time zone. Runs never overlap; a second caller waits.
func (s *Scheduler) RunNow(ctx context.Context, today retention.Date) (*Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if today.IsZero() {
		today = s.Today()
	}

	report, err := s.runner.Run(ctx, today)

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	if s.hook != "" && report != nil {
		if code, hookErr := RunHook(ctx, s.hook, report, os.Stdout, os.Stderr); hookErr != nil {
			s.logger.Error("post-prune hook failed", "exit_code", code, "error", hookErr)
		}
	}

	return report, err
}

// Stop stops the scheduler and waits for a running job to complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("prune scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled run, or nil when idle.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if !s.running || len(entries) == 0 {
		return nil
	}

	next := entries[0].Next
	return &next
}

// LastReport returns the report of the most recent run, if any.
func (s *Scheduler) LastReport() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.last
}

// Today returns the current date in the scheduler's time zone.
func (s *Scheduler) Today() retention.Date {
	return retention.DateOf(s.now().In(s.location))
}

func (s *Scheduler) Runner() *Runner { return s.runner }
