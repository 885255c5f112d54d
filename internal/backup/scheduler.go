// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

/*
scheduler.go - Scheduled Backups

The scheduler creates a full backup whenever its cron expression fires.

Scheduling Features:
  - Five-field cron expression (minute hour day-of-month month day-of-week)
  - Expressions evaluated in a configured time zone
  - Each run retried under a retry policy before it is reported as failed
  - Runs act under the "scheduled-backup" service identity

Timer Logic:
  - The next run is computed from the cron schedule after every run
  - A single timer is reset to the next run; missed runs are not replayed

Integration:
The scheduler implements suture.Service. Serve returns when its context is
cancelled.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata" // zone names resolve on images without a zoneinfo database

	"github.com/robfig/cron/v3"

	"github.com/tomtom215/menuvault/internal/auth"
	"github.com/tomtom215/menuvault/internal/logging"
	"github.com/tomtom215/menuvault/internal/models"
	"github.com/tomtom215/menuvault/internal/retry"
)

// DefaultCron runs the scheduled backup daily at 03:00.
const DefaultCron = "0 3 * * *"

// ScheduledBackupSubject is the identity scheduled runs act under.
const ScheduledBackupSubject = "scheduled-backup"

// BackupCreator creates uploaded backups.
type BackupCreator interface {
	CreateBackup(ctx context.Context, trigger models.BackupTrigger, note string) (*models.BackupRecord, error)
}

// ScheduleConfig configures the scheduler.
type ScheduleConfig struct {
	Enabled bool

	// Cron is a five-field cron expression. Empty means DefaultCron.
	Cron string

	// TimeZone is an IANA zone name. Empty means UTC.
	TimeZone string

	// Retry wraps each run.
	Retry retry.Policy
}

// ParseSchedule parses a five-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	if strings.TrimSpace(expr) == "" {
		expr = DefaultCron
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// Scheduler runs scheduled backups.
type Scheduler struct {
	creator  BackupCreator
	schedule cron.Schedule
	loc      *time.Location
	policy   retry.Policy
	enabled  bool
	now      func() time.Time

	mu      sync.RWMutex
	nextRun time.Time
	lastRun time.Time
	lastErr error
}

// NewScheduler validates cfg and creates a scheduler.
func NewScheduler(creator BackupCreator, cfg ScheduleConfig) (*Scheduler, error) {
	sched, err := ParseSchedule(cfg.Cron)
	if err != nil {
		return nil, err
	}
	loc := time.UTC
	if cfg.TimeZone != "" {
		if loc, err = time.LoadLocation(cfg.TimeZone); err != nil {
			return nil, fmt.Errorf("invalid time zone %q: %w", cfg.TimeZone, err)
		}
	}
	return &Scheduler{
		creator:  creator,
		schedule: sched,
		loc:      loc,
		policy:   cfg.Retry,
		enabled:  cfg.Enabled,
		now:      time.Now,
	}, nil
}

// Serve implements suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	if !s.enabled {
		logging.Info().Msg("Scheduled backups disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	next := s.advance()
	logging.Info().Time("next_run", next).Msg("Backup scheduler started")

	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			if _, err := s.RunNow(ctx); err != nil {
				logging.Error().Err(err).Msg("Scheduled backup failed")
			}
			next = s.advance()
			timer.Reset(time.Until(next))
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (s *Scheduler) String() string {
	return "backup-scheduler"
}

// RunNow creates a scheduled backup immediately under the retry policy.
func (s *Scheduler) RunNow(ctx context.Context) (*models.BackupRecord, error) {
	ctx = auth.WithIdentity(ctx, auth.ServiceIdentity(ScheduledBackupSubject))
	start := s.now()

	var rec *models.BackupRecord
	err := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		var err error
		rec, err = s.creator.CreateBackup(ctx, models.TriggerScheduled, "Scheduled backup")
		return err
	})

	s.mu.Lock()
	s.lastRun = start
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	logging.Info().Str("backup_id", rec.ID).Msg("Scheduled backup completed")
	return rec, nil
}

// advance computes and stores the next run after now.
func (s *Scheduler) advance() time.Time {
	next := s.NextAfter(s.now())
	s.mu.Lock()
	s.nextRun = next
	s.mu.Unlock()
	return next
}

// NextAfter returns the first scheduled time after t.
func (s *Scheduler) NextAfter(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.loc))
}

// NextRun returns the next scheduled run, zero before Serve has started.
func (s *Scheduler) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextRun
}

// LastRun returns the start of the last run and its error.
func (s *Scheduler) LastRun() (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun, s.lastErr
}

// Enabled reports whether Serve schedules runs.
func (s *Scheduler) Enabled() bool {
	return s.enabled
}
