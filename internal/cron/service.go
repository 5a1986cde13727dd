package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/cardhold-backend/internal/jobhealth"
	"github.com/angelmondragon/cardhold-backend/pkg/logger"
	"github.com/angelmondragon/cardhold-backend/pkg/metrics"
)

const defaultInterval = time.Hour

// LockProvider builds the distributed lock guarding one job's runs.
type LockProvider func(jobName string) (Lock, error)

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger *logger.Logger
	// Registry holds the jobs to run; each entry runs on its own cadence.
	Registry *Registry
	// Locks is optional; without it jobs run unguarded (single instance).
	Locks   LockProvider
	Metrics *metrics.JobMetrics
	// Health is optional; when set every run is recorded as a snapshot.
	Health jobhealth.Repository
}

// Service executes registered jobs, each on its own ticker, until the
// context is canceled. Every cycle runs under the distributed lock so only
// one worker instance executes a given job at a time.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	locks    LockProvider
	metrics  *metrics.JobMetrics
	health   jobhealth.Repository
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		locks:    params.Locks,
		metrics:  params.Metrics,
		health:   params.Health,
	}, nil
}

// Run starts one loop per registered job and blocks until the context is
// canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var wg sync.WaitGroup
	for _, entry := range s.registry.Entries() {
		wg.Add(1)
		go func(entry Entry) {
			defer wg.Done()
			s.runLoop(ctx, entry)
		}(entry)
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Service) runLoop(ctx context.Context, entry Entry) {
	interval := entry.Every
	if interval <= 0 {
		interval = defaultInterval
	}

	jobCtx := s.logg.WithJob(ctx, entry.Job.Name())
	s.runCycle(jobCtx, entry.Job)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(jobCtx, "job loop stopped")
			return
		case <-ticker.C:
			s.runCycle(jobCtx, entry.Job)
		}
	}
}

func (s *Service) runCycle(ctx context.Context, job Job) {
	if s.locks == nil {
		s.runJob(ctx, job)
		return
	}

	lock, err := s.locks(job.Name())
	if err != nil {
		s.logg.Error(ctx, "building job lock", err)
		return
	}
	locked, err := lock.Acquire(ctx)
	if err != nil {
		s.logg.Error(ctx, "acquiring job lock", err)
		return
	}
	if !locked {
		s.logg.Info(ctx, "another worker owns this job; skipping cycle")
		return
	}
	defer func() {
		if relErr := lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "releasing job lock", relErr)
		}
	}()

	s.runJob(ctx, job)
}

func (s *Service) runJob(ctx context.Context, job Job) {
	s.logg.Info(ctx, "job start")
	start := time.Now().UTC()
	err := job.Run(ctx)
	duration := time.Since(start)

	s.observeDuration(job.Name(), duration)
	s.recordHealth(ctx, jobhealth.RunReport{
		JobName:  job.Name(),
		RanAt:    start,
		Duration: duration,
		Err:      err,
	})

	ctx = s.logg.WithField(ctx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "job failed", err)
		s.recordFailure(job.Name())
		return
	}
	s.logg.Info(ctx, "job completed")
	s.recordSuccess(job.Name())
}

func (s *Service) recordHealth(ctx context.Context, report jobhealth.RunReport) {
	if s.health == nil {
		return
	}
	if err := s.health.Record(ctx, report); err != nil {
		s.logg.Error(ctx, "recording job health snapshot", err)
	}
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
