// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/menuvault/internal/backup"
	"github.com/tomtom215/menuvault/internal/logging"
	"github.com/tomtom215/menuvault/internal/models"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status        string          `json:"status"`
	Version       string          `json:"version,omitempty"`
	UptimeSeconds int64           `json:"uptimeSeconds"`
	OutboxPending *int            `json:"outboxPending,omitempty"`
	Schedule      *ScheduleStatus `json:"schedule,omitempty"`
}

// ScheduleStatus describes the backup scheduler.
type ScheduleStatus struct {
	Enabled   bool       `json:"enabled"`
	NextRun   *time.Time `json:"nextRun,omitempty"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

// AutosaveStatus is the body of GET /api/v1/autosave.
type AutosaveStatus struct {
	Config backup.AutosaveConfig `json:"config"`
	State  backup.AutosaveState  `json:"state"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (h *Handler) scheduleStatus() *ScheduleStatus {
	s := h.deps.Schedule
	if s == nil {
		return nil
	}
	out := &ScheduleStatus{Enabled: s.Enabled()}
	if !out.Enabled {
		return out
	}
	out.NextRun = timePtr(s.NextRun())
	last, err := s.LastRun()
	out.LastRun = timePtr(last)
	if err != nil {
		out.LastError = err.Error()
	}
	return out
}

// Health handles GET /health. It stays 200 while the process serves
// requests; the outbox depth is informational.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:        "ok",
		Version:       h.deps.Version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Schedule:      h.scheduleStatus(),
	}
	if h.deps.Outbox != nil {
		items, err := h.deps.Outbox.Items(r.Context())
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("Health check could not read outbox")
			status.Status = "degraded"
		} else {
			n := len(items)
			status.OutboxPending = &n
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// ServeBlob handles GET /blobs/*.
func (h *Handler) ServeBlob(w http.ResponseWriter, r *http.Request) {
	if h.deps.Blobs == nil {
		writeBareError(w, http.StatusServiceUnavailable, "blob storage is not enabled")
		return
	}
	h.deps.Blobs.ServeBlob(w, r, chi.URLParam(r, "*"))
}

// AutosaveState handles GET /api/v1/autosave.
func (h *Handler) AutosaveState(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !checkAvailable(rw, h.deps.Autosave != nil, "autosave") {
		return
	}
	rw.Success(AutosaveStatus{Config: h.deps.Autosave.Config(), State: h.deps.Autosave.State()})
}

// TriggerAutosave handles POST /api/v1/autosave/trigger.
func (h *Handler) TriggerAutosave(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !checkAvailable(rw, h.deps.Autosave != nil, "autosave") {
		return
	}
	if !h.deps.Autosave.Config().Enabled {
		rw.Error(http.StatusConflict, ErrCodeConflict, "autosave is disabled")
		return
	}
	rec, err := h.deps.Autosave.Trigger(r.Context())
	if err != nil {
		rw.InternalError(ErrCodeBackupFailed, err)
		return
	}
	var summary *models.BackupRecord
	if rec != nil {
		summary = rec.Summary()
	}
	rw.Success(summary)
}

// ScheduleState handles GET /api/v1/schedule.
func (h *Handler) ScheduleState(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !checkAvailable(rw, h.deps.Schedule != nil, "backup schedule") {
		return
	}
	rw.Success(h.scheduleStatus())
}
