package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marketloop/settlements-backend/pkg/logger"
	"github.com/marketloop/settlements-backend/pkg/metrics"
)

const defaultInterval = time.Hour

// LockFactory builds a lock for one job. The TTL covers a full run so a
// crashed worker cannot wedge the job past its next tick.
type LockFactory func(jobName string, ttl time.Duration) (Lock, error)

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	NewLock  LockFactory
	Metrics  *metrics.SweepMetrics
}

// Service runs each registered job on its own ticker. Jobs are
// independent: a slow payout sweep never delays the clearing sweep.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	newLock  LockFactory
	metrics  *metrics.SweepMetrics
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.NewLock == nil {
		return nil, fmt.Errorf("lock factory required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		newLock:  params.NewLock,
		metrics:  params.Metrics,
	}, nil
}

// Run starts every job loop and blocks until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var wg sync.WaitGroup
	for _, job := range s.registry.Jobs() {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.runLoop(ctx, job)
		}(job)
	}
	wg.Wait()

	s.logg.Info(ctx, "cron service stopped")
	return ctx.Err()
}

func (s *Service) runLoop(ctx context.Context, job Job) {
	interval := job.Interval()
	if interval <= 0 {
		interval = defaultInterval
	}

	s.runOnce(ctx, job, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job, interval)
		}
	}
}

// runOnce executes one guarded run of the job. A lock held by another
// replica skips this tick; the job fires again on the next one.
func (s *Service) runOnce(ctx context.Context, job Job, interval time.Duration) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())

	lock, err := s.newLock(job.Name(), interval)
	if err != nil {
		s.logg.Error(jobCtx, "failed to build job lock", err)
		return
	}
	locked, err := lock.Acquire(jobCtx)
	if err != nil {
		s.logg.Error(jobCtx, "lock acquire failed", err)
		return
	}
	if !locked {
		s.logg.Info(jobCtx, "another worker holds this job; skipping tick")
		return
	}
	defer func() {
		if relErr := lock.Release(jobCtx); relErr != nil {
			s.logg.Error(jobCtx, "failed to release job lock", relErr)
		}
	}()

	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	runErr := job.Run(jobCtx)
	duration := time.Since(start)
	s.observeDuration(job.Name(), duration)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if runErr != nil {
		s.logg.Error(jobCtx, "job failed", runErr)
		s.recordFailure(job.Name())
		return
	}
	s.logg.Info(jobCtx, "job completed")
	s.recordSuccess(job.Name())
}

func (s *Service) observeDuration(job string, duration time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveDuration(job, duration)
}

func (s *Service) recordSuccess(job string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncSuccess(job)
}

func (s *Service) recordFailure(job string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncFailure(job)
}
