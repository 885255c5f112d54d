// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

/*
handlers_restore.go - Remote Restore Trigger

POST /restore lets automation restore a package without a browser session.
Its bodies are bare JSON objects rather than the /api/v1 envelope, because
existing automation clients parse them directly:

	403 {"error":"Forbidden"}
	400 {"error":"Invalid payload"}
	200 {"success":true,"mode":"merge","preSnapshotId":...,"conflictStrategy":...,"idHandling":...,"report":{...}}
	200 {"success":true,"mode":"replace","preSnapshotId":...,"deletedCounts":{...},"addedCounts":{...}}
	500 {"error":...,"rolledBack":...,"preSnapshotId":...}   (replace failure)
	500 {"error":...}                                         (anything else)

Both modes record a pre-restore snapshot in the catalog before touching
live data. POST /api/v1/backups/{id}/restore runs the same flow on a
catalogued backup and answers with the envelope.
*/

//nolint:staticcheck // File documentation, not package doc
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/tomtom215/menuvault/internal/logging"
	"github.com/tomtom215/menuvault/internal/models"
	"github.com/tomtom215/menuvault/internal/reconcile"
	"github.com/tomtom215/menuvault/internal/validation"
)

// restoreQuery holds the query parameters of a restore request.
type restoreQuery struct {
	Mode             string `query:"mode" validate:"oneof=merge replace"`
	ConflictStrategy string `query:"conflictStrategy" validate:"oneof=merge overwrite skip"`
	IDHandling       string `query:"idHandling" validate:"oneof=preserve generate"`
	Force            bool   `query:"force"`
}

// parseRestoreQuery reads and validates the restore parameters, filling
// in merge, merge and preserve as defaults.
func parseRestoreQuery(r *http.Request) (restoreQuery, error) {
	v := r.URL.Query()
	q := restoreQuery{
		Mode:             v.Get("mode"),
		ConflictStrategy: v.Get("conflictStrategy"),
		IDHandling:       v.Get("idHandling"),
	}
	if q.Mode == "" {
		q.Mode = models.ModeMerge
	}
	if q.ConflictStrategy == "" {
		q.ConflictStrategy = string(models.ConflictMerge)
	}
	if q.IDHandling == "" {
		q.IDHandling = string(models.IDPreserve)
	}
	if raw := v.Get("force"); raw != "" {
		force, err := strconv.ParseBool(raw)
		if err != nil {
			return q, fmt.Errorf("force: %w", err)
		}
		q.Force = force
	}
	if verr := validation.ValidateStruct(&q); verr != nil {
		return q, verr
	}
	return q, nil
}

// decodePackageBody reads {"payload": package} or a bare package.
func decodePackageBody(r *http.Request) (*models.ExportPackage, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, ErrBodyTooLarge
		}
		return nil, fmt.Errorf("read body: %w", err)
	}

	var envelope struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPackage, err)
	}

	raw := data
	if p := bytes.TrimSpace(envelope.Payload); len(p) > 0 && !bytes.Equal(p, []byte("null")) {
		raw = p
	}
	pkg, err := models.ParsePackageBytes(raw)
	if err != nil {
		return nil, err
	}
	if pkg.Meta == nil && !anyCollectionPresent(pkg) {
		return nil, ErrMissingPackage
	}
	return pkg, nil
}

func anyCollectionPresent(pkg *models.ExportPackage) bool {
	for _, c := range models.Collections {
		if c.Present(pkg) {
			return true
		}
	}
	return false
}

type mergeResponse struct {
	Success          bool                    `json:"success"`
	Mode             string                  `json:"mode"`
	PreSnapshotID    string                  `json:"preSnapshotId"`
	ConflictStrategy models.ConflictStrategy `json:"conflictStrategy"`
	IDHandling       models.IDHandling       `json:"idHandling"`
	Report           *models.MergeReport     `json:"report"`
}

type replaceResponse struct {
	Success       bool          `json:"success"`
	Mode          string        `json:"mode"`
	PreSnapshotID string        `json:"preSnapshotId"`
	DeletedCounts models.Counts `json:"deletedCounts"`
	AddedCounts   models.Counts `json:"addedCounts"`
}

type replaceFailure struct {
	Error         string `json:"error"`
	RolledBack    bool   `json:"rolledBack"`
	PreSnapshotID string `json:"preSnapshotId"`
}

// restoreError is a failed restore with the response it maps to. body,
// when set, replaces the bare {"error": message} object.
type restoreError struct {
	status  int
	message string
	body    interface{}
}

func (e *restoreError) Error() string { return e.message }

func invalidPayload() *restoreError {
	return &restoreError{status: http.StatusBadRequest, message: msgInvalidPayload}
}

// classify maps engine errors to responses.
func classify(err error) *restoreError {
	switch {
	case errors.Is(err, models.ErrPermissionDenied):
		return &restoreError{status: http.StatusForbidden, message: msgForbidden}
	case errors.Is(err, models.ErrInvalidPackage),
		errors.Is(err, reconcile.ErrInvalidOptions),
		errors.Is(err, reconcile.ErrReplaceViaMerge):
		return invalidPayload()
	default:
		return &restoreError{status: http.StatusInternalServerError, message: err.Error()}
	}
}

// runRestore validates pkg and runs the requested mode.
func (h *Handler) runRestore(ctx context.Context, pkg *models.ExportPackage, q restoreQuery) (interface{}, *restoreError) {
	log := logging.Ctx(ctx)
	if h.deps.Engine == nil {
		return nil, &restoreError{status: http.StatusServiceUnavailable, message: "restore is not available"}
	}
	if !q.Force {
		if err := models.ValidatePackage(pkg).Err(); err != nil {
			log.Warn().Err(err).Msg("Restore rejected: package failed validation")
			return nil, invalidPayload()
		}
	}

	if q.Mode == models.ModeReplace {
		return h.runReplace(ctx, pkg, q)
	}
	return h.runMerge(ctx, pkg, q)
}

func (h *Handler) runMerge(ctx context.Context, pkg *models.ExportPackage, q restoreQuery) (interface{}, *restoreError) {
	preID, _, err := h.deps.Engine.PreRestoreBackup(ctx)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Merge aborted: pre-restore snapshot failed")
		if errors.Is(err, models.ErrPermissionDenied) {
			return nil, classify(err)
		}
		return nil, &restoreError{
			status:  http.StatusInternalServerError,
			message: fmt.Sprintf("pre-restore snapshot failed: %v", err),
		}
	}

	report, err := h.deps.Engine.RestoreFromExport(ctx, pkg, reconcile.MergeOptions{
		Mode:             models.ModeMerge,
		ConflictStrategy: models.ConflictStrategy(q.ConflictStrategy),
		IDHandling:       models.IDHandling(q.IDHandling),
		AllowSuspicious:  q.Force,
	})
	if err != nil {
		return nil, classify(err)
	}
	return &mergeResponse{
		Success:          true,
		Mode:             models.ModeMerge,
		PreSnapshotID:    preID,
		ConflictStrategy: models.ConflictStrategy(q.ConflictStrategy),
		IDHandling:       models.IDHandling(q.IDHandling),
		Report:           report,
	}, nil
}

func (h *Handler) runReplace(ctx context.Context, pkg *models.ExportPackage, q restoreQuery) (interface{}, *restoreError) {
	res, err := h.deps.Engine.ReplaceFromExport(ctx, pkg, reconcile.ReplaceOptions{AllowSuspicious: q.Force})
	if err != nil {
		if errors.Is(err, models.ErrPermissionDenied) || res == nil {
			return nil, classify(err)
		}
		return nil, &restoreError{
			status:  http.StatusInternalServerError,
			message: err.Error(),
			body: &replaceFailure{
				Error:         err.Error(),
				RolledBack:    res.RolledBack,
				PreSnapshotID: res.PreSnapshotID,
			},
		}
	}

	out := &replaceResponse{
		Success:       true,
		Mode:          models.ModeReplace,
		PreSnapshotID: res.PreSnapshotID,
		DeletedCounts: models.NewCounts(),
		AddedCounts:   models.NewCounts(),
	}
	if res.Report != nil {
		out.DeletedCounts = res.Report.Deleted
		out.AddedCounts = res.Report.Added
	}
	return out, nil
}

// Restore handles POST /restore.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	log := logging.Ctx(r.Context())

	q, err := parseRestoreQuery(r)
	if err != nil {
		log.Warn().Err(err).Msg("Restore rejected: bad query parameters")
		writeBareError(w, http.StatusBadRequest, msgInvalidPayload)
		return
	}

	pkg, err := decodePackageBody(r)
	if err != nil {
		log.Warn().Err(err).Msg("Restore rejected: bad body")
		if errors.Is(err, ErrBodyTooLarge) {
			writeBareError(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		writeBareError(w, http.StatusBadRequest, msgInvalidPayload)
		return
	}

	body, rerr := h.runRestore(r.Context(), pkg, q)
	if rerr != nil {
		if rerr.body != nil {
			writeJSON(w, rerr.status, rerr.body)
			return
		}
		writeBareError(w, rerr.status, rerr.message)
		return
	}
	writeJSON(w, http.StatusOK, body)
}
