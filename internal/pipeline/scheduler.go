package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/wx-verification-etl/internal/observability"
)

// BatchRunner runs one verification pass over a set of stations.
type BatchRunner interface {
	RunAll(ctx context.Context, stations []string, req Request) []StationResult
}

// Scheduler triggers latest-mode runs on a cron schedule. Overlapping
// triggers are skipped while a run is still in progress.
type Scheduler struct {
	runner   BatchRunner
	stations []string
	schedule cron.Schedule
	spec     string
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewScheduler parses spec (standard five-field cron or a descriptor such as
// "@hourly").
func NewScheduler(runner BatchRunner, stations []string, spec string, logger *slog.Logger, metrics *observability.Metrics) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return &Scheduler{
		runner:   runner,
		stations: stations,
		schedule: schedule,
		spec:     spec,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Next returns the next trigger time after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Run executes one pass immediately, then on every trigger until ctx is
// cancelled. It waits for an in-flight pass before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	s.metrics.SchedulerRunning.Set(1)
	defer s.metrics.SchedulerRunning.Set(0)

	s.logger.Info("scheduler started", "schedule", s.spec, "stations", len(s.stations))

	logAdapter := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(logAdapter),
		cron.WithChain(cron.Recover(logAdapter), cron.SkipIfStillRunning(logAdapter)),
	)
	job := c.Schedule(s.schedule, cron.FuncJob(func() { s.RunOnce(ctx, Request{Mode: ModeLatest}) }))

	// The first pass goes through the same skip-if-running chain as scheduled ones.
	var first sync.WaitGroup
	first.Add(1)
	go func() {
		defer first.Done()
		c.Entry(job).WrappedJob.Run()
	}()
	c.Start()

	<-ctx.Done()
	s.logger.Info("scheduler stopping", "reason", ctx.Err())
	<-c.Stop().Done()
	first.Wait()
	return nil
}

// RunOnce runs a single pass, assigning a run id when req has none.
func (s *Scheduler) RunOnce(ctx context.Context, req Request) []StationResult {
	if ctx.Err() != nil {
		return nil
	}
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if req.Mode == "" {
		req.Mode = ModeLatest
	}
	return s.runner.RunAll(ctx, s.stations, req)
}

// cronLogger routes cron's internal logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
