package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Job is one run of a periodic task.
type Job func(ctx context.Context)

// Scheduler runs a job on a fixed interval until its context is cancelled.
// A tick that arrives while the previous run is still going is skipped.
type Scheduler struct {
	name     string
	interval time.Duration
	job      Job
	running  atomic.Bool
}

func NewScheduler(name string, interval time.Duration, job Job) *Scheduler {
	return &Scheduler{
		name:     name,
		interval: interval,
		job:      job,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logrus.WithFields(logrus.Fields{"job": s.name, "interval": s.interval}).Info("Scheduler started")

	for {
		select {
		case <-ticker.C:
			go s.RunOnce(ctx)
		case <-ctx.Done():
			logrus.WithField("job", s.name).Info("Scheduler stopped")
			return
		}
	}
}

// RunOnce runs the job unless a run is already in progress and reports
// whether it ran. A panicking job is logged and does not stop the scheduler.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		logrus.WithField("job", s.name).Debug("Previous run still in progress, skipping")
		return false
	}
	defer s.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("job", s.name).Errorf("Job panicked: %v", r)
		}
	}()

	if ctx.Err() != nil {
		return false
	}
	s.job(ctx)
	return true
}
