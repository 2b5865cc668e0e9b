package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Specs are the standard five-field cron expressions of each job.
type Specs struct {
	Daily   string
	Monthly string
	Cleanup string
}

// DefaultSpecs runs the daily rollup at 00:15, the monthly rollup at 00:30 on
// the 1st and cleanup at 01:00.
var DefaultSpecs = Specs{
	Daily:   "15 0 * * *",
	Monthly: "30 0 1 * *",
	Cleanup: "0 1 * * *",
}

// Scheduler runs the analytics jobs on their cron schedules.
type Scheduler struct {
	runner    *Runner
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	cron      *cron.Cron
	specs     Specs
	enabled   bool
	isRunning bool

	// Guards against a job overlapping with its own previous execution
	processingMutex sync.Mutex
	processing      map[string]bool
}

func NewScheduler(runner *Runner, logger *slog.Logger, loc *time.Location, specs Specs, enabled bool) (*Scheduler, error) {
	if specs.Daily == "" {
		specs.Daily = DefaultSpecs.Daily
	}
	if specs.Monthly == "" {
		specs.Monthly = DefaultSpecs.Monthly
	}
	if specs.Cleanup == "" {
		specs.Cleanup = DefaultSpecs.Cleanup
	}
	for name, spec := range map[string]string{"daily": specs.Daily, "monthly": specs.Monthly, "cleanup": specs.Cleanup} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, fmt.Errorf("invalid %s job spec %q: %w", name, spec, err)
		}
	}
	if loc == nil {
		loc = time.Local
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner:     runner,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		cron:       cron.New(cron.WithLocation(loc)),
		specs:      specs,
		enabled:    enabled,
		processing: make(map[string]bool),
	}, nil
}

// executeJobSafely runs a job unless its previous execution is still going
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.processing[jobName] {
		s.logger.Debug("Skipping job execution - previous run still active", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.processing[jobName] = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		delete(s.processing, jobName)
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// runType is the job body for one request type.
func (s *Scheduler) runType(t Type) func() error {
	return func() error {
		result, err := s.runner.Run(s.ctx, Request{Type: t})
		if err != nil {
			return err
		}
		if !result.Success() {
			return fmt.Errorf("%s run reported failed steps", t)
		}
		return nil
	}
}

// Start registers the jobs and starts the cron loop.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	jobs := []struct {
		name string
		spec string
		t    Type
	}{
		{"daily_aggregation", s.specs.Daily, TypeDaily},
		{"monthly_aggregation", s.specs.Monthly, TypeMonthly},
		{"raw_view_cleanup", s.specs.Cleanup, TypeCleanup},
	}
	for _, job := range jobs {
		name, body := job.name, s.runType(job.t)
		if _, err := s.cron.AddFunc(job.spec, func() { s.executeJobSafely(name, body) }); err != nil {
			return fmt.Errorf("schedule %s: %w", name, err)
		}
		s.logger.Info("Scheduled background job", slog.String("job", name), slog.String("spec", job.spec))
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.Info("Background jobs started", slog.Int("jobs", len(s.cron.Entries())))
	return nil
}

// Stop halts the cron loop and waits for running jobs to return.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false
	s.cancel()

	if s.isRunning {
		<-s.cron.Stop().Done()
	}
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently scheduled
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}

// Next returns when each job fires next. Empty until Start.
func (s *Scheduler) Next() []time.Time {
	entries := s.cron.Entries()
	next := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		next = append(next, e.Next)
	}
	return next
}
