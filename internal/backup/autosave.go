// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package backup

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/menuvault/internal/auth"
	"github.com/tomtom215/menuvault/internal/logging"
	"github.com/tomtom215/menuvault/internal/models"
)

// AutosaveSubject is the identity autosave runs act under.
const AutosaveSubject = "auto-backup"

// DefaultDebounce is the quiet period before an autosave runs.
const DefaultDebounce = 5 * time.Second

// AutosaveStatus is the state of the most recent autosave run.
type AutosaveStatus string

// Autosave statuses
const (
	AutosaveIdle    AutosaveStatus = "idle"
	AutosaveRunning AutosaveStatus = "running"
	AutosaveSuccess AutosaveStatus = "success"
	AutosaveError   AutosaveStatus = "error"
)

// AutosaveConfig configures an Autosaver.
type AutosaveConfig struct {
	Enabled bool `json:"enabled"`

	// Upload sends the package through the upload chain. Otherwise the
	// catalog record carries the package inline.
	Upload bool `json:"upload"`

	Debounce time.Duration `json:"debounce"`
}

// AutosaveState is a point-in-time view of an Autosaver.
type AutosaveState struct {
	Status       AutosaveStatus `json:"status"`
	LastRun      *time.Time     `json:"lastRun,omitempty"`
	LastError    string         `json:"lastError,omitempty"`
	LastBackupID string         `json:"lastBackupId,omitempty"`
}

// AutosaveRunner creates the backups an Autosaver asks for.
type AutosaveRunner interface {
	BackupCreator
	CreateInlineBackup(ctx context.Context, trigger models.BackupTrigger, note string) (*models.BackupRecord, error)
}

// Autosaver runs a backup after a quiet period following data changes.
// Instances share no state.
type Autosaver struct {
	runner AutosaveRunner

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// runMu serializes runs.
	runMu sync.Mutex

	mu       sync.Mutex
	cfg      AutosaveConfig
	timer    *time.Timer
	state    AutosaveState
	disposed bool
}

// NewAutosaver creates an autosaver. A zero debounce uses DefaultDebounce.
func NewAutosaver(cfg AutosaveConfig, runner AutosaveRunner) *Autosaver {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(auth.WithIdentity(context.Background(), auth.ServiceIdentity(AutosaveSubject)))
	return &Autosaver{
		runner: runner,
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		state:  AutosaveState{Status: AutosaveIdle},
	}
}

// Notify schedules a run after the debounce period, restarting the period
// if one is already pending.
func (a *Autosaver) Notify() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed || !a.cfg.Enabled {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.cfg.Debounce, a.fire)
}

func (a *Autosaver) fire() {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	a.wg.Add(1)
	a.mu.Unlock()

	defer a.wg.Done()
	_, _ = a.run(a.ctx) //nolint:errcheck // recorded in state
}

// Trigger cancels any pending run and runs a backup now. It returns nil
// without running when autosave is disabled.
func (a *Autosaver) Trigger(ctx context.Context) (*models.BackupRecord, error) {
	a.mu.Lock()
	if a.disposed || !a.cfg.Enabled {
		a.mu.Unlock()
		return nil, nil
	}
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.wg.Add(1)
	a.mu.Unlock()

	defer a.wg.Done()
	ctx = auth.WithIdentity(ctx, auth.ServiceIdentity(AutosaveSubject))
	return a.run(ctx)
}

func (a *Autosaver) run(ctx context.Context) (*models.BackupRecord, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	upload := a.Config().Upload
	a.setState(func(s *AutosaveState) {
		s.Status = AutosaveRunning
		s.LastError = ""
	})

	log := logging.Ctx(ctx)
	var (
		rec *models.BackupRecord
		err error
	)
	if upload {
		rec, err = a.runner.CreateBackup(ctx, models.TriggerAutosave, "")
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("Autosave upload failed, keeping an inline backup")
			rec, err = a.runner.CreateInlineBackup(ctx, models.TriggerAutosave, "")
		}
	} else {
		rec, err = a.runner.CreateInlineBackup(ctx, models.TriggerAutosave, "")
	}

	now := time.Now().UTC()
	a.setState(func(s *AutosaveState) {
		s.LastRun = &now
		if err != nil {
			s.Status = AutosaveError
			s.LastError = err.Error()
			return
		}
		s.Status = AutosaveSuccess
		s.LastBackupID = rec.ID
	})

	if err != nil {
		log.Error().Err(err).Msg("Autosave failed")
		return nil, err
	}
	log.Debug().Str("backup_id", rec.ID).Msg("Autosave completed")
	return rec, nil
}

func (a *Autosaver) setState(fn func(*AutosaveState)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(&a.state)
}

// State returns a copy of the current state.
func (a *Autosaver) State() AutosaveState {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.state
	if s.LastRun != nil {
		t := *s.LastRun
		s.LastRun = &t
	}
	return s
}

// Config returns the current configuration.
func (a *Autosaver) Config() AutosaveConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// SetConfig replaces the configuration. Disabling cancels a pending run.
func (a *Autosaver) SetConfig(cfg AutosaveConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	a.cfg = cfg
	if !cfg.Enabled && a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// Dispose cancels any pending run, cancels a run in progress and waits for
// it to return. Further calls do nothing.
func (a *Autosaver) Dispose() {
	a.mu.Lock()
	if a.disposed {
		a.mu.Unlock()
		return
	}
	a.disposed = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()
}

// Serve implements suture.Service. The autosaver is disposed when ctx is
// cancelled.
func (a *Autosaver) Serve(ctx context.Context) error {
	<-ctx.Done()
	a.Dispose()
	return ctx.Err()
}

// String implements fmt.Stringer for suture logging.
func (a *Autosaver) String() string {
	return "autosave"
}
