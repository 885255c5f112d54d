// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

/*
exporter.go - Snapshot Exporter

Export reads every registered collection concurrently and assembles a single
package. A failed read on any collection fails the whole export: a package
missing a collection would silently drop that collection on a later replace.

Record ordering within a collection is deterministic so that two exports of
unchanged data differ only in meta.createdAt (and therefore checksum):

 1. records carrying a numeric "order" field, ascending by order
 2. remaining records, ascending by store key

Records without a domain id receive their store key as id.
*/

//nolint:staticcheck // File documentation, not package doc
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/menuvault/internal/docstore"
	"github.com/tomtom215/menuvault/internal/logging"
	"github.com/tomtom215/menuvault/internal/metrics"
	"github.com/tomtom215/menuvault/internal/models"
)

// Exporter produces export packages from a document store.
type Exporter struct {
	store   docstore.Store
	version string
	now     func() time.Time
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithSchemaVersion overrides the version stamped into meta.
func WithSchemaVersion(v string) ExporterOption {
	return func(e *Exporter) {
		if v != "" {
			e.version = v
		}
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) ExporterOption {
	return func(e *Exporter) {
		e.now = now
	}
}

// NewExporter creates an exporter over store.
func NewExporter(store docstore.Store, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		store:   store,
		version: models.DefaultSchemaVersion,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export snapshots every collection into a new package with meta and
// checksum set. The returned error wraps models.ErrExportFailed.
func (e *Exporter) Export(ctx context.Context) (*models.ExportPackage, error) {
	start := time.Now()
	pkg, err := e.export(ctx)
	metrics.RecordExport(time.Since(start), err)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Snapshot export failed")
		return nil, err
	}

	logging.Ctx(ctx).Debug().
		Int("records", pkg.RecordCount()).
		Str("checksum", pkg.Meta.Checksum).
		Dur("duration", time.Since(start)).
		Msg("Snapshot exported")
	return pkg, nil
}

func (e *Exporter) export(ctx context.Context) (*models.ExportPackage, error) {
	results := make([][]models.Record, len(models.Collections))

	g, gctx := errgroup.WithContext(ctx)
	for i, col := range models.Collections {
		g.Go(func() error {
			docs, err := e.store.Collection(col.StoreName).ReadAll(gctx)
			if err != nil {
				return fmt.Errorf("%w: read %s: %w", models.ErrExportFailed, col.StoreName, err)
			}
			results[i] = orderedRecords(docs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pkg := &models.ExportPackage{Meta: NewMeta(e.version, e.now())}
	for i, col := range models.Collections {
		col.SetRecords(pkg, results[i])
	}

	sum, err := ComputeChecksum(pkg)
	if err != nil {
		return nil, fmt.Errorf("%w: checksum: %w", models.ErrExportFailed, err)
	}
	pkg.Meta.Checksum = sum
	return pkg, nil
}

// orderedRecords converts documents to records in export order.
func orderedRecords(docs []docstore.Document) []models.Record {
	sort.SliceStable(docs, func(i, j int) bool {
		oi, iok := orderOf(docs[i].Data)
		oj, jok := orderOf(docs[j].Data)
		switch {
		case iok && jok && oi != oj:
			return oi < oj
		case iok != jok:
			return iok
		default:
			return docs[i].Key < docs[j].Key
		}
	})

	out := make([]models.Record, 0, len(docs))
	for _, d := range docs {
		rec := d.Data.Clone()
		if rec == nil {
			rec = models.Record{}
		}
		if id := rec.ID(); id == nil || id == "" {
			rec["id"] = d.Key
		}
		out = append(out, rec)
	}
	return out
}

func orderOf(r models.Record) (float64, bool) {
	v, ok := r["order"]
	if !ok {
		return 0, false
	}
	return models.NumberValue(v)
}
