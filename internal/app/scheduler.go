/**
 * @description
 * Cron scheduler for background jobs.
 */
package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron     *cron.Cron
	branches *BranchDirectory
	logger   *logrus.Logger
	schedule string
}

// NewScheduler creates a scheduler that refreshes the branch directory on schedule.
func NewScheduler(branches *BranchDirectory, logger *logrus.Logger, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(logger.WithField("component", "scheduler"))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:     c,
		branches: branches,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the jobs, runs an initial branch refresh and starts the cron scheduler.
func (s *Scheduler) Start() {
	log := s.logger.WithField("component", "scheduler")
	if _, err := s.cron.AddFunc(s.schedule, s.RefreshBranches); err != nil {
		log.WithError(err).WithField("schedule", s.schedule).Error("failed to schedule branch refresh job")
	} else {
		log.WithField("schedule", s.schedule).Info("scheduled branch refresh job")
	}

	go s.RefreshBranches()
	s.cron.Start()
}

// RefreshBranches is the branch refresh job.
func (s *Scheduler) RefreshBranches() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.branches.Refresh(ctx); err != nil {
		s.logger.WithField("component", "scheduler").WithError(err).Warn("branch refresh failed")
	}
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
