// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/menuvault/internal/catalog"
	"github.com/tomtom215/menuvault/internal/models"
	"github.com/tomtom215/menuvault/internal/transport"
	"github.com/tomtom215/menuvault/internal/validation"
)

// defaultListLimit applies when no limit is given.
const defaultListLimit = 50

// listBackupsQuery holds the filters of GET /api/v1/backups.
type listBackupsQuery struct {
	Trigger string `query:"trigger" validate:"omitempty,oneof=manual scheduled pre_restore autosave queued"`
	Limit   int    `query:"limit" validate:"gte=0,lte=500"`
	Offset  int    `query:"offset" validate:"gte=0"`
	Order   string `query:"order" validate:"omitempty,oneof=asc desc"`
}

// CreateBackupRequest is the request body for creating a backup.
type CreateBackupRequest struct {
	Note string `json:"note" validate:"max=500"`
}

// checkAvailable answers 503 when a collaborator is not configured.
func checkAvailable(rw *ResponseWriter, ok bool, what string) bool {
	if !ok {
		rw.ServiceUnavailable(what + " is not enabled")
	}
	return ok
}

// queryInt parses an integer query parameter; a missing value yields def.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// ListBackups handles GET /api/v1/backups.
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !checkAvailable(rw, h.deps.Catalog != nil, "backup catalog") {
		return
	}

	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		rw.BadRequest("limit must be an integer")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		rw.BadRequest("offset must be an integer")
		return
	}
	q := listBackupsQuery{
		Trigger: r.URL.Query().Get("trigger"),
		Limit:   limit,
		Offset:  offset,
		Order:   r.URL.Query().Get("order"),
	}
	if verr := validation.ValidateStruct(&q); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}
	if q.Limit == 0 {
		q.Limit = defaultListLimit
	}

	opts := catalog.ListOptions{Limit: q.Limit + 1, Offset: q.Offset, SortAsc: q.Order == "asc"}
	if q.Trigger != "" {
		t := models.BackupTrigger(q.Trigger)
		opts.Trigger = &t
	}

	records, err := h.deps.Catalog.ListBackups(r.Context(), opts)
	if err != nil {
		h.catalogError(rw, err)
		return
	}
	hasMore := len(records) > q.Limit
	if hasMore {
		records = records[:q.Limit]
	}
	summaries := make([]*models.BackupRecord, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, rec.Summary())
	}
	rw.SuccessWithPagination(summaries, &PaginationMeta{
		Count:   len(summaries),
		Offset:  q.Offset,
		Limit:   q.Limit,
		HasMore: hasMore,
	})
}

// CreateBackup handles POST /api/v1/backups.
func (h *Handler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !checkAvailable(rw, h.deps.Backups != nil, "backup creation") {
		return
	}

	var req CreateBackupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		rw.BadRequest("invalid request body")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return
	}

	rec, err := h.deps.Backups.CreateBackup(r.Context(), models.TriggerManual, req.Note)
	if err != nil {
		if errors.Is(err, models.ErrPermissionDenied) {
			rw.Forbidden(err.Error())
			return
		}
		rw.InternalError(ErrCodeBackupFailed, err)
		return
	}
	rw.Created(rec.Summary())
}

// BackupStats handles GET /api/v1/backups/stats.
func (h *Handler) BackupStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !checkAvailable(rw, h.deps.Catalog != nil, "backup catalog") {
		return
	}
	stats, err := h.deps.Catalog.Stats(r.Context())
	if err != nil {
		h.catalogError(rw, err)
		return
	}
	rw.Success(stats)
}

// GetBackup handles GET /api/v1/backups/{id}.
func (h *Handler) GetBackup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !checkAvailable(rw, h.deps.Catalog != nil, "backup catalog") {
		return
	}
	rec, err := h.deps.Catalog.GetBackup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.catalogError(rw, err)
		return
	}
	rw.Success(rec.Summary())
}

// DeleteBackup handles DELETE /api/v1/backups/{id}.
func (h *Handler) DeleteBackup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !checkAvailable(rw, h.deps.Catalog != nil, "backup catalog") {
		return
	}
	if err := h.deps.Catalog.DeleteBackup(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.catalogError(rw, err)
		return
	}
	rw.NoContent()
}

// GetBackupPayload handles GET /api/v1/backups/{id}/payload.
func (h *Handler) GetBackupPayload(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !checkAvailable(rw, h.deps.Payloads != nil, "backup download") {
		return
	}
	pkg, err := h.deps.Payloads.GetBackupPayload(r.Context(), chi.URLParam(r, "id"), nil)
	if err != nil {
		h.payloadError(rw, err)
		return
	}
	rw.Success(pkg)
}

// RestoreBackup handles POST /api/v1/backups/{id}/restore.
func (h *Handler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !checkAvailable(rw, h.deps.Payloads != nil, "backup download") {
		return
	}

	q, err := parseRestoreQuery(r)
	if err != nil {
		var verr *validation.RequestValidationError
		if errors.As(err, &verr) {
			rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
			return
		}
		rw.BadRequest(err.Error())
		return
	}

	pkg, err := h.deps.Payloads.GetBackupPayload(r.Context(), chi.URLParam(r, "id"), nil)
	if err != nil {
		h.payloadError(rw, err)
		return
	}

	body, rerr := h.runRestore(r.Context(), pkg, q)
	if rerr != nil {
		code := ErrCodeRestoreFailed
		switch rerr.status {
		case http.StatusBadRequest:
			code = ErrCodeValidationFailed
		case http.StatusForbidden:
			code = ErrCodeForbidden
		case http.StatusServiceUnavailable:
			code = ErrCodeServiceUnavailable
		}
		rw.ErrorWithDetails(rerr.status, code, rerr.message, rerr.body)
		return
	}
	rw.Success(body)
}

func (h *Handler) catalogError(rw *ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrBackupNotFound):
		rw.NotFound("backup not found")
	case errors.Is(err, models.ErrPermissionDenied):
		rw.Forbidden(err.Error())
	default:
		rw.InternalError(ErrCodeInternalError, err)
	}
}

func (h *Handler) payloadError(rw *ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrBackupNotFound):
		rw.NotFound("backup not found")
	case errors.Is(err, models.ErrPermissionDenied):
		rw.Forbidden(err.Error())
	case errors.Is(err, transport.ErrPayloadUnavailable):
		rw.Error(http.StatusUnprocessableEntity, ErrCodeDownloadFailed, err.Error())
	default:
		rw.Error(http.StatusBadGateway, ErrCodeDownloadFailed, err.Error())
	}
}
