package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Jobs are the scheduled sync entry points.
type Jobs interface {
	SyncHourly(ctx context.Context) (RunReport, error)
	SyncDaily(ctx context.Context) (RunReport, error)
	RefreshCatalog(ctx context.Context) (RunReport, error)
}

// Schedule holds cron expressions in UTC. An empty expression disables the job.
type Schedule struct {
	Hourly  string `yaml:"hourly"`
	Daily   string `yaml:"daily"`
	Catalog string `yaml:"catalog"`
}

// Scheduler triggers sync jobs on cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	jobs   Jobs
	logger *zap.Logger

	mu  sync.Mutex
	ctx context.Context
}

// NewScheduler registers every non-empty schedule.
func NewScheduler(jobs Jobs, schedule Schedule, logger *zap.Logger) (*Scheduler, error) {
	if jobs == nil {
		return nil, errors.New("sync scheduler: nil jobs")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:   jobs,
		logger: logger,
		ctx:    context.Background(),
	}

	entries := []struct {
		name string
		spec string
		run  func(context.Context) (RunReport, error)
	}{
		{"hourly", schedule.Hourly, jobs.SyncHourly},
		{"daily", schedule.Daily, jobs.SyncDaily},
		{"catalog", schedule.Catalog, jobs.RefreshCatalog},
	}
	for _, e := range entries {
		spec := strings.TrimSpace(e.spec)
		if spec == "" {
			continue
		}
		name, run := e.name, e.run
		if _, err := s.cron.AddFunc(spec, func() { s.runJob(name, run) }); err != nil {
			return nil, fmt.Errorf("sync scheduler: %s schedule %q: %w", name, spec, err)
		}
	}
	return s, nil
}

// Start runs the scheduler in the background until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts scheduling and returns a context done when running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Jobs returns the number of registered schedules.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) runJob(name string, run func(context.Context) (RunReport, error)) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	report, err := run(context.WithoutCancel(ctx))
	if err != nil {
		s.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
		return
	}
	s.logger.Info("scheduled job done",
		zap.String("job", name),
		zap.String("run_id", report.RunID.String()),
		zap.Bool("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
}

type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
