// Package scheduler fires the scrape and match cycles on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled pass.
type Job func(ctx context.Context) error

// Scheduler wraps robfig/cron. Overlapping ticks are skipped, so at most one
// pass runs at a time.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	job    Job
	logger *zap.Logger

	// initial tracks the pass triggered by Start, which cron does not wait for.
	initial sync.WaitGroup
}

func New(every time.Duration, job Job, logger *zap.Logger) (*Scheduler, error) {
	if every <= 0 {
		return nil, errors.New("schedule interval must be positive")
	}
	if job == nil {
		return nil, errors.New("scheduled job is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cronLogger := cronLogger{logger: logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		spec:   fmt.Sprintf("@every %s", every),
		job:    job,
		logger: logger,
	}, nil
}

// Start registers the job, starts the scheduler and triggers one pass right
// away so nothing waits for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	id, err := s.cron.AddFunc(s.spec, func() { s.run(ctx) })
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec))

	// The entry goes through the job wrappers, so it is skipped if a tick got there first.
	entry := s.cron.Entry(id)
	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		entry.WrappedJob.Run()
	}()
	return nil
}

// Stop halts the scheduler and waits for a running pass to finish or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.initial.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := s.job(ctx); err != nil {
		s.logger.Warn("scheduled pass finished with errors", zap.Error(err))
	}
}

// cronLogger routes cron's own logging to zap.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
