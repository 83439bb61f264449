// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler triggers the periodic audit log maintenance run.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Maintainer is the maintenance entry point the scheduler invokes.
type Maintainer interface {
	RunMaintenance(ctx context.Context) error
}

// Scheduler invokes the audit log maintenance workflow on a cron schedule.
// The engine itself never self-schedules; this is its external trigger.
type Scheduler struct {
	cron       *cron.Cron
	maintainer Maintainer
	schedule   string
	logger     *slog.Logger
}

// New creates a new scheduler instance. The schedule is a standard five-field
// cron expression, validated at config load.
func New(maintainer Maintainer, schedule string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		maintainer: maintainer,
		schedule:   schedule,
		logger:     logger,
	}
}

// Start registers the maintenance job and begins the cron loop. A failed
// maintenance run is fatal inside the engine's contract, so it is surfaced
// here as an error log for the operator; the next scheduled run still fires.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.maintainer.RunMaintenance(context.Background()); err != nil {
			s.logger.Error("audit log maintenance failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "schedule", s.schedule, "jobs", len(s.cron.Entries()))
	return nil
}

// Stop gracefully stops the scheduler, waiting for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}
