// Package scheduler runs the periodic housekeeping jobs of the API.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/trezcool/kalamu/core"
	"github.com/trezcool/kalamu/core/progress"
	"github.com/trezcool/kalamu/core/quota"
)

const (
	progressSweepSchedule = "@every 10m"
	usagePruneSchedule    = "0 3 1 * *" // monthly, at 03:00 on the 1st

	defaultProgressTTL = time.Hour
	usageKeepMonths    = 12
	jobTimeout         = 5 * time.Minute
)

type Scheduler struct {
	cron    *cron.Cron
	tracker *progress.Tracker
	quota   quota.Service
	ttl     time.Duration
	logger  core.Logger
}

func New(tracker *progress.Tracker, quotaSvc quota.Service, logger core.Logger, conf *core.Config) *Scheduler {
	ttl := conf.ProgressTTL
	if ttl <= 0 {
		ttl = defaultProgressTTL
	}
	return &Scheduler{
		cron:    cron.New(),
		tracker: tracker,
		quota:   quotaSvc,
		ttl:     ttl,
		logger:  logger,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(progressSweepSchedule, s.SweepProgress); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(usagePruneSchedule, s.PruneUsage); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("scheduler started")
	return nil
}

// Stop waits for the running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// SweepProgress drops the progress channels nobody published to for a while.
func (s *Scheduler) SweepProgress() {
	if n := s.tracker.Sweep(s.ttl); n > 0 {
		s.logger.Debug(fmt.Sprintf("swept %d stale progress channels", n))
	}
}

func (s *Scheduler) PruneUsage() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.quota.Prune(ctx, usageKeepMonths)
	if err != nil {
		s.logger.Error(fmt.Sprintf("pruning usage: %v", err), err)
		return
	}
	s.logger.Info(fmt.Sprintf("pruned %d usage rows", n))
}
