// Package scheduler owns the background runs of the processing pipeline:
// one cancellable goroutine per job, duplicate suppression, graceful
// shutdown, and a sweep that resubmits runs orphaned by a restart.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"meeting-notes-go/internal/config"
	"meeting-notes-go/internal/logger"
	"meeting-notes-go/internal/storage"
	"meeting-notes-go/internal/types"
)

var (
	ErrAlreadyRunning = errors.New("job is already running")
	ErrShuttingDown   = errors.New("scheduler is shutting down")
	ErrNotRunning     = errors.New("job is not running")
)

// Runner processes one job. Run returns once the job has finished or ctx
// was cancelled.
type Runner interface {
	Run(ctx context.Context, jobID string)
}

type Scheduler struct {
	runner Runner
	jobs   storage.JobStore
	cfg    config.SchedulerConfig
	log    *logrus.Entry
	now    func() time.Time

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.Mutex
	running map[string]context.CancelFunc
	closed  bool
}

func New(runner Runner, jobs storage.JobStore, cfg config.SchedulerConfig, log *logger.Logger) *Scheduler {
	base, stop := context.WithCancel(context.Background())
	return &Scheduler{
		runner:  runner,
		jobs:    jobs,
		cfg:     cfg,
		log:     logger.OrDiscard(log).Component("scheduler"),
		now:     time.Now,
		base:    base,
		stop:    stop,
		running: make(map[string]context.CancelFunc),
	}
}

// Submit starts a background run for jobID.
func (s *Scheduler) Submit(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.log.WithField("job_id", jobID).Warn("cannot submit: scheduler is shutting down")
		return ErrShuttingDown
	}
	if _, ok := s.running[jobID]; ok {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(s.base)
	s.running[jobID] = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.finish(jobID)
		s.runner.Run(ctx, jobID)
	}()

	s.log.WithField("job_id", jobID).Info("run submitted")
	return nil
}

func (s *Scheduler) finish(jobID string) {
	s.mu.Lock()
	cancel := s.running[jobID]
	delete(s.running, jobID)
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.log.WithField("job_id", jobID).Debug("run finished")
}

// Cancel stops a running job. The job is left for the recovery sweep.
func (s *Scheduler) Cancel(jobID string) error {
	s.mu.Lock()
	cancel, ok := s.running[jobID]
	s.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}
	cancel()
	s.log.WithField("job_id", jobID).Info("run cancelled")
	return nil
}

func (s *Scheduler) IsRunning(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[jobID]
	return ok
}

// Running returns the ids of in-flight runs, sorted.
func (s *Scheduler) Running() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Wait blocks until every submitted run has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Shutdown stops accepting work, cancels every run and waits for them to
// return or for ctx to expire.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.stop()

	done := make(chan struct{})
	go func() { defer close(done); s.wg.Wait() }()

	select {
	case <-done:
		s.log.Info("runs drained, shutdown complete")
		return nil
	case <-ctx.Done():
		s.log.Warn("shutdown interrupted by context")
		return ctx.Err()
	}
}

// Recover resubmits processing jobs that have not been touched for
// StaleAfter and are not running here. It returns how many were resubmitted.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	return s.resubmit(ctx, s.cfg.StaleAfter)
}

// ResumeOrphaned resubmits every processing job not running here, whatever
// its age. It is meant for startup, before any run can exist in this process.
func (s *Scheduler) ResumeOrphaned(ctx context.Context) (int, error) {
	return s.resubmit(ctx, 0)
}

func (s *Scheduler) resubmit(ctx context.Context, staleAfter time.Duration) (int, error) {
	jobs, err := s.jobs.ListByStatus(ctx, types.JobStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("list processing jobs: %w", err)
	}

	cutoff := s.now().Add(-staleAfter)
	resubmitted := 0
	for _, job := range jobs {
		if (staleAfter > 0 && job.UpdatedAt.After(cutoff)) || s.IsRunning(job.ID) {
			continue
		}
		log := s.log.WithField("job_id", job.ID).WithField("updated_at", job.UpdatedAt.Format(time.RFC3339))
		if err := s.Submit(job.ID); err != nil {
			if errors.Is(err, ErrShuttingDown) {
				return resubmitted, err
			}
			log.WithField("error", err.Error()).Warn("cannot resubmit job")
			continue
		}
		log.Info("resubmitted processing job")
		resubmitted++
	}
	return resubmitted, nil
}

// RunSweeper calls Recover every SweepInterval until ctx is done. A
// non-positive interval disables the sweep.
func (s *Scheduler) RunSweeper(ctx context.Context) {
	if s.cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Recover(ctx)
			if err != nil {
				if errors.Is(err, ErrShuttingDown) {
					return
				}
				s.log.WithField("error", err.Error()).Error("recovery sweep failed")
				continue
			}
			if n > 0 {
				s.log.WithField("resubmitted", n).Info("recovery sweep")
			}
		}
	}
}
