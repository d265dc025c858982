// Package scheduler runs the periodic sync, consolidation and cleanup jobs.
// Every run holds a distributed lock so only one replica works a job at a
// time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/klevu/module-m2-indexing-sub002/pkg/metrics"
	"github.com/klevu/module-m2-indexing-sub002/pkg/redis"
	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
)

var (
	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

const (
	// DefaultLockTTL bounds how long a crashed replica can block a job
	DefaultLockTTL = 30 * time.Minute

	// LockKeyPrefix is the prefix for scheduler locks
	LockKeyPrefix = "scheduler:job:"
)

const (
	JobStatusSuccess = "success"
	JobStatusFailed  = "failed"
	JobStatusSkipped = "skipped"
)

// Locker is satisfied by *redis.Locker.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// Job is one periodic task. Jobs with a non-positive interval are not run.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs every job on its own ticker
type Scheduler struct {
	jobs    []Job
	locker  Locker
	lockTTL time.Duration
	logger  ectologger.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewScheduler(jobs []Job, locker Locker, lockTTL time.Duration, logger ectologger.Logger) (*Scheduler, error) {
	seen := map[string]struct{}{}
	for _, job := range jobs {
		if job.Name == "" || job.Run == nil {
			return nil, fmt.Errorf("scheduled job %q needs a name and a run func", job.Name)
		}
		if _, ok := seen[job.Name]; ok {
			return nil, fmt.Errorf("scheduled job %s is registered twice", job.Name)
		}
		seen[job.Name] = struct{}{}
	}
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Scheduler{
		jobs:    jobs,
		locker:  locker,
		lockTTL: lockTTL,
		logger:  logger,
	}, nil
}

// Start starts one loop per enabled job
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrSchedulerAlreadyRunning
	}
	s.running = true

	ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			s.logger.WithContext(ctx).Infof("Scheduled job %s is disabled", job.Name)
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, job)
	}

	s.logger.WithContext(ctx).Infof("Scheduler started with %d jobs", len(s.jobs))
	return nil
}

// Stop cancels the loops and waits for running jobs until ctx expires
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping scheduler...")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.WithContext(ctx).Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunJob(ctx, job)
		}
	}
}

// RunJob runs job once under its lock and returns the run status.
func (s *Scheduler) RunJob(ctx context.Context, job Job) string {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.RunJob")
	defer span.End()

	start := time.Now()
	log := s.logger.WithContext(ctx).WithField("job", job.Name)

	var err error
	if s.locker == nil {
		err = job.Run(ctx)
	} else {
		err = s.locker.WithLock(ctx, LockKeyPrefix+job.Name, s.lockTTL, func() error {
			return job.Run(ctx)
		})
	}

	status := JobStatusSuccess
	switch {
	case errors.Is(err, redis.ErrLockNotAcquired):
		status = JobStatusSkipped
		log.Debug("Scheduled job is running elsewhere, skipping")
	case err != nil:
		status = JobStatusFailed
		log.WithError(err).Error("Scheduled job failed")
	default:
		log.Infof("Scheduled job completed in %s", time.Since(start).Round(time.Millisecond))
	}
	metrics.SchedulerJobsTotal.WithLabelValues(job.Name, status).Inc()
	return status
}
