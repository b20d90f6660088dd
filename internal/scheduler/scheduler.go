// Package scheduler runs periodic maintenance on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	appLog "chatcal/internal/log"
)

// Refresher recomputes derived event fields and reports how many changed.
type Refresher interface {
	Refresh() int
}

// Scheduler calls a Refresher on a standard five-field cron spec.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	spec      string

	mu   sync.Mutex
	runs int
}

// New validates spec and registers the refresh job. The scheduler is idle
// until Start.
func New(spec string, r Refresher) (*Scheduler, error) {
	s := &Scheduler{cron: cron.New(), refresher: r, spec: spec}
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce() }); err != nil {
		return nil, fmt.Errorf("scheduler: invalid refresh spec %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	appLog.Info("scheduler started", "refresh", s.spec)
	s.cron.Start()
}

// Stop halts the schedule and returns a context that is done once any
// running job has finished.
func (s *Scheduler) Stop() context.Context {
	ctx := s.cron.Stop()
	appLog.Info("scheduler stopped", "runs", s.Runs())
	return ctx
}

// RunOnce performs one refresh immediately.
func (s *Scheduler) RunOnce() int {
	changed := s.refresher.Refresh()
	s.mu.Lock()
	s.runs++
	s.mu.Unlock()
	if changed > 0 {
		appLog.Info("scheduler: next due dates refreshed", "changed", changed)
	} else {
		appLog.Debug("scheduler: nothing to refresh")
	}
	return changed
}

// Runs reports how many refreshes have completed.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}
