// Package scheduler wires up the cron job that periodically triggers ingestion.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/logger"
)

// DefaultSpec is the default ingestion cadence.
const DefaultSpec = "@every 6h"

// Job is one ingestion cycle.
type Job func(ctx context.Context)

// Scheduler wraps robfig/cron. A tick that fires while the previous cycle is
// still running is skipped.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	job     Job
	running atomic.Bool
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// New creates a Scheduler. An empty spec uses DefaultSpec.
func New(spec string, job Job, log *zap.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, errors.New("scheduler job is required")
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = DefaultSpec
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	log = logger.Component(log, "scheduler")
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cronLogger{log.Sugar()})),
		spec:   spec,
		job:    job,
		logger: log,
	}, nil
}

// Start registers the job and starts the scheduler. It also runs one cycle
// immediately so postings are available without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.logger.Info("cron started", zap.String("spec", s.spec))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()

	return nil
}

// Stop stops the scheduler and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("cron stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous ingestion cycle still running, skipping tick")
		return
	}
	defer s.running.Store(false)

	s.logger.Info("ingestion cycle started")
	s.job(ctx)
}

// cronLogger routes cron's own messages to zap.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
