// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/menuvault/internal/logging"
	"github.com/tomtom215/menuvault/internal/models"
	"github.com/tomtom215/menuvault/internal/outbox"
	"github.com/tomtom215/menuvault/internal/transport"
)

// OutboxItemView lists an outbox item without its payload.
type OutboxItemView struct {
	ID            uint64     `json:"id"`
	Kind          string     `json:"kind"`
	CreatedAt     time.Time  `json:"createdAt"`
	Attempts      int        `json:"attempts"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
	PayloadBytes  int        `json:"payloadBytes"`
}

func viewOutboxItem(it *outbox.Item) OutboxItemView {
	v := OutboxItemView{
		ID:           it.ID,
		Kind:         it.Kind,
		CreatedAt:    it.CreatedAt,
		Attempts:     it.Attempts,
		LastError:    it.LastError,
		PayloadBytes: len(it.Payload),
	}
	if !it.LastAttemptAt.IsZero() {
		t := it.LastAttemptAt
		v.LastAttemptAt = &t
	}
	return v
}

// ListOutbox handles GET /api/v1/outbox.
func (h *Handler) ListOutbox(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !checkAvailable(rw, h.deps.Outbox != nil, "outbox") {
		return
	}
	items, err := h.deps.Outbox.Items(r.Context())
	if err != nil {
		rw.InternalError(ErrCodeInternalError, err)
		return
	}
	views := make([]OutboxItemView, 0, len(items))
	for _, it := range items {
		views = append(views, viewOutboxItem(it))
	}
	rw.Success(views)
}

// FlushOutbox handles POST /api/v1/outbox/flush.
func (h *Handler) FlushOutbox(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !checkAvailable(rw, h.deps.Flusher != nil, "outbox") {
		return
	}
	res, err := h.deps.Flusher.FlushNow(r.Context())
	if err != nil {
		rw.InternalError(ErrCodeInternalError, err)
		return
	}
	rw.Success(res)
}

// ClearOutbox handles DELETE /api/v1/outbox.
func (h *Handler) ClearOutbox(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !checkAvailable(rw, h.deps.Outbox != nil, "outbox") {
		return
	}
	n, err := h.deps.Outbox.Clear(r.Context())
	if err != nil {
		rw.InternalError(ErrCodeInternalError, err)
		return
	}
	logging.Ctx(r.Context()).Warn().Int("removed", n).Msg("Outbox cleared")
	rw.Success(map[string]int{"removed": n})
}

// RemoveOutboxItem handles DELETE /api/v1/outbox/{id}.
func (h *Handler) RemoveOutboxItem(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !checkAvailable(rw, h.deps.Outbox != nil, "outbox") {
		return
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		rw.BadRequest("id must be a positive integer")
		return
	}
	if err := h.deps.Outbox.Remove(r.Context(), id); err != nil {
		if errors.Is(err, outbox.ErrNotFound) {
			rw.NotFound("outbox item not found")
			return
		}
		rw.InternalError(ErrCodeInternalError, err)
		return
	}
	rw.NoContent()
}

// syncBackupRequest is the body a local sync client sends.
type syncBackupRequest struct {
	Payload json.RawMessage `json:"payload"`
	Meta    *models.Meta    `json:"meta"`
}

type syncBackupResponse struct {
	Queued   bool   `json:"queued"`
	OutboxID uint64 `json:"outboxId"`
}

// SyncBackup handles POST /sync/backup. The package is queued in the
// outbox as a backupFile item; the flusher uploads it later.
func (h *Handler) SyncBackup(w http.ResponseWriter, r *http.Request) {
	if h.deps.Outbox == nil {
		writeBareError(w, http.StatusServiceUnavailable, "outbox is not enabled")
		return
	}

	var req syncBackupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Payload) == 0 {
		writeBareError(w, http.StatusBadRequest, msgInvalidPayload)
		return
	}
	if req.Meta == nil {
		pkg, err := models.ParsePackageBytes(req.Payload)
		if err != nil || pkg.Meta == nil {
			writeBareError(w, http.StatusBadRequest, msgInvalidPayload)
			return
		}
		req.Meta = pkg.Meta
	}

	id, err := h.deps.Outbox.Add(r.Context(), transport.OutboxKindBackupFile, transport.BackupFilePayload{
		Payload: req.Payload,
		Meta:    req.Meta,
	})
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to queue synced backup")
		writeBareError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logging.Ctx(r.Context()).Info().
		Uint64("outbox_id", id).
		Bool("background", r.Header.Get(transport.BackgroundSyncHeader) != "").
		Msg("Synced backup queued")
	writeJSON(w, http.StatusAccepted, syncBackupResponse{Queued: true, OutboxID: id})
}
