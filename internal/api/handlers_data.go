// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tomtom215/menuvault/internal/logging"
	"github.com/tomtom215/menuvault/internal/models"
	"github.com/tomtom215/menuvault/internal/reconcile"
	"github.com/tomtom215/menuvault/internal/snapshot"
)

// Export handles GET /api/v1/export. The package is sent as a file
// attachment named after its meta.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !checkAvailable(rw, h.deps.Exporter != nil, "export") {
		return
	}

	pkg, err := h.deps.Exporter.Export(r.Context())
	if err != nil {
		rw.InternalError(ErrCodeInternalError, err)
		return
	}
	data, err := pkg.Marshal()
	if err != nil {
		rw.InternalError(ErrCodeInternalError, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", snapshot.FileName(pkg.Meta)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Export download interrupted")
	}
}

// ImportPreview is the response of POST /api/v1/import/preview.
type ImportPreview struct {
	Summary *snapshot.PackageSummary `json:"summary"`

	// Merge is the dry-run merge report. It is absent when the package
	// failed validation and force was not given.
	Merge *models.MergeReport `json:"merge,omitempty"`
}

// ImportPreview handles POST /api/v1/import/preview. It summarizes the
// uploaded package and reports what a merge would do without writing.
func (h *Handler) ImportPreview(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	q, err := parseRestoreQuery(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	pkg, err := decodePackageBody(r)
	if err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			rw.Error(http.StatusRequestEntityTooLarge, ErrCodeBadRequest, err.Error())
			return
		}
		rw.BadRequest(err.Error())
		return
	}

	preview := &ImportPreview{Summary: snapshot.Summarize(pkg)}
	if h.deps.Engine == nil || (!preview.Summary.Validation.Valid() && !q.Force) {
		rw.Success(preview)
		return
	}

	report, err := h.deps.Engine.RestoreFromExport(r.Context(), pkg, reconcile.MergeOptions{
		Mode:             models.ModeMerge,
		ConflictStrategy: models.ConflictStrategy(q.ConflictStrategy),
		IDHandling:       models.IDHandling(q.IDHandling),
		DryRun:           true,
		AllowSuspicious:  true,
	})
	if err != nil {
		rw.InternalError(ErrCodeInternalError, err)
		return
	}
	preview.Merge = report
	rw.Success(preview)
}
