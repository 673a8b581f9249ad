package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// RunFunc executes a full optimization run
type RunFunc func(ctx context.Context) error

// Scheduler manages recurring optimization runs
type Scheduler struct {
	cron            *cron.Cron
	runFn           RunFunc
	logger          *logrus.Logger
	mu              sync.RWMutex
	isRunning       bool
	jobActive       atomic.Bool
	jobIDs          []cron.EntryID
	runTimeout      time.Duration
	gracefulTimeout time.Duration
}

// NewScheduler creates a new scheduler
func NewScheduler(runFn RunFunc, logger *logrus.Logger) (*Scheduler, error) {
	if runFn == nil {
		return nil, fmt.Errorf("run function is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Scheduler{
		cron:            cron.New(cron.WithLocation(time.UTC)),
		runFn:           runFn,
		logger:          logger,
		jobIDs:          make([]cron.EntryID, 0),
		runTimeout:      4 * time.Hour,
		gracefulTimeout: 30 * time.Second,
	}, nil
}

// ScheduleOptimization schedules recurring optimization runs.
// A run that is still in progress when the next trigger fires is not
// preempted; the trigger is skipped instead.
func (s *Scheduler) ScheduleOptimization(cronExpression string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}

	jobFunc := func() {
		if !s.beginJob() {
			s.logger.Warn("skipping scheduled optimization, previous run still in progress")
			return
		}
		defer s.endJob()

		ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
		defer cancel()

		started := time.Now()
		s.logger.WithField("started_at", started.UTC().Format(time.RFC3339)).Info("starting scheduled optimization run")

		if err := s.runFn(ctx); err != nil {
			s.logger.WithError(err).Error("scheduled optimization run failed")
			return
		}
		s.logger.WithField("duration", time.Since(started).String()).Info("scheduled optimization run completed")
	}

	entryID, err := s.cron.AddFunc(cronExpression, jobFunc)
	if err != nil {
		return fmt.Errorf("failed to add job: %w", err)
	}

	s.jobIDs = append(s.jobIDs, entryID)
	s.logger.WithField("cron", cronExpression).Info("scheduled optimization job")

	return nil
}

// jobActive uses an atomic flag rather than s.mu so Stop can hold the
// mutex while waiting for an in-flight job to finish.
func (s *Scheduler) beginJob() bool {
	return s.jobActive.CompareAndSwap(false, true)
}

func (s *Scheduler) endJob() {
	s.jobActive.Store(false)
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	if len(s.jobIDs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.WithField("jobs", len(s.jobIDs)).Info("scheduler started")

	return nil
}

// Stop gracefully stops the scheduler, waiting for any in-flight job
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	select {
	case <-s.cron.Stop().Done():
	case <-time.After(s.gracefulTimeout):
		s.logger.Warn("scheduler stop timed out waiting for running job")
	}
	s.isRunning = false
	s.logger.Info("scheduler stopped")

	return nil
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRun returns the time of the next scheduled job run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning || len(s.jobIDs) == 0 {
		return time.Time{}
	}

	nextRun := time.Time{}
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() {
			nextTime := entry.Next
			if nextRun.IsZero() || nextTime.Before(nextRun) {
				nextRun = nextTime
			}
		}
	}

	return nextRun
}

// Entries returns information about scheduled entries
func (s *Scheduler) Entries() []cron.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]cron.Entry, 0, len(s.jobIDs))
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() {
			entries = append(entries, entry)
		}
	}

	return entries
}

// RemoveJob removes a scheduled job
func (s *Scheduler) RemoveJob(jobID cron.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot remove job while scheduler is running")
	}

	s.cron.Remove(jobID)
	s.logger.WithField("job_id", jobID).Info("removed scheduled job")

	return nil
}
