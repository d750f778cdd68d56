/**
 * @description
 * Cron scheduler setup for background jobs.
 */
package app

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron       *cron.Cron
	reconciler *PendingReconciler
	schedule   string
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(reconciler *PendingReconciler, schedule string) *Scheduler {
	cronLogger := cron.PrintfLogger(log.Default())
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:       c,
		reconciler: reconciler,
		schedule:   schedule,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.reconciler.Run); err != nil {
		log.Printf("level=error component=scheduler msg=\"failed to schedule pending reconciliation\" schedule=%q err=%v", s.schedule, err)
		return err
	}
	log.Printf("level=info component=scheduler msg=\"scheduled pending reconciliation\" schedule=%q", s.schedule)

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and returns a context done when running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
