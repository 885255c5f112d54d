// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package blobstore

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/tomtom215/menuvault/internal/logging"
)

// ServeBlob streams the blob at p when the request carries a valid,
// unexpired signature. Signature failures are 403, missing blobs 404.
func (s *FileStore) ServeBlob(w http.ResponseWriter, r *http.Request, p string) {
	q := r.URL.Query()
	if err := s.Verify(p, q.Get("expires"), q.Get("sig")); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("path", p).Msg("Rejected blob request")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	rc, size, err := s.Open(r.Context(), p)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidPath):
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	case err != nil:
		logging.Ctx(r.Context()).Error().Err(err).Str("path", p).Msg("Failed to open blob")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("path", p).Msg("Blob stream interrupted")
	}
}
