// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

/*
catalog.go - Backup Catalog

The catalog records every backup produced by the system. Records live in the
document store collection "backups", keyed by UUID.

Access Policy:
  - PolicyStrict (default): every operation requires an administrator.
    A non-admin save fails with models.ErrPermissionDenied and nothing is
    written anywhere.
  - PolicyFallback: a save that cannot reach the primary catalog (missing
    admin rights or a store error) is written to a local metadata.json with
    an id of the form local_<unix millis>, and listing falls back to those
    local records. Get consults both stores.

Deletion always requires an administrator, whatever the policy.

Listing:
  - Filter by trigger and creation time range
  - Newest first unless SortAsc is set
  - Pagination with offset and limit
  - Inline payloads are stripped unless IncludePayload is set
*/

//nolint:staticcheck // File documentation, not package doc
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/menuvault/internal/auth"
	"github.com/tomtom215/menuvault/internal/authz"
	"github.com/tomtom215/menuvault/internal/docstore"
	"github.com/tomtom215/menuvault/internal/logging"
	"github.com/tomtom215/menuvault/internal/models"
)

// ErrBackupNotFound indicates no catalog record has the requested id.
var ErrBackupNotFound = errors.New("backup not found")

// Policy selects how the catalog treats callers without admin rights.
type Policy string

// Catalog policies
const (
	PolicyStrict   Policy = "strict"
	PolicyFallback Policy = "fallback"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p == PolicyStrict || p == PolicyFallback
}

// Config configures a Catalog.
type Config struct {
	Policy Policy

	// LocalDir holds metadata.json for the fallback store. Empty keeps
	// fallback records in memory.
	LocalDir string
}

// ListOptions filters and paginates ListBackups.
type ListOptions struct {
	Trigger        *models.BackupTrigger
	Since          *time.Time
	Until          *time.Time
	Limit          int
	Offset         int
	SortAsc        bool
	IncludePayload bool
}

// Stats summarizes the catalog.
type Stats struct {
	TotalBackups   int                          `json:"totalBackups"`
	LocalBackups   int                          `json:"localBackups"`
	TotalSizeBytes int64                        `json:"totalSizeBytes"`
	InlineBackups  int                          `json:"inlineBackups"`
	ByTrigger      map[models.BackupTrigger]int `json:"byTrigger"`
	Oldest         *time.Time                   `json:"oldest,omitempty"`
	Newest         *time.Time                   `json:"newest,omitempty"`
}

// Catalog stores backup records.
type Catalog struct {
	coll   docstore.Collection
	authz  authz.Authorizer
	policy Policy
	local  *localStore
	now    func() time.Time
}

// New creates a catalog over the store's backups collection.
func New(store docstore.Store, authorizer authz.Authorizer, cfg Config) (*Catalog, error) {
	if cfg.Policy == "" {
		cfg.Policy = PolicyStrict
	}
	if !cfg.Policy.Valid() {
		return nil, fmt.Errorf("unknown catalog policy %q", cfg.Policy)
	}
	c := &Catalog{
		coll:   store.Collection(models.BackupsCollection),
		authz:  authorizer,
		policy: cfg.Policy,
		now:    time.Now,
	}
	if cfg.Policy == PolicyFallback {
		local, err := openLocalStore(cfg.LocalDir)
		if err != nil {
			return nil, err
		}
		c.local = local
	}
	return c, nil
}

// Policy returns the configured policy.
func (c *Catalog) Policy() Policy {
	return c.policy
}

// SaveBackupRecord stores rec and returns its id. CreatedAt is stamped with
// the current time and PerformedBy defaults to the caller's subject.
func (c *Catalog) SaveBackupRecord(ctx context.Context, rec *models.BackupRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("backup record is nil")
	}
	stored := *rec
	if stored.PerformedBy == "" {
		stored.PerformedBy = auth.SubjectFromContext(ctx)
	}

	id, err := c.savePrimary(ctx, &stored)
	if err == nil {
		return id, nil
	}
	if c.policy != PolicyFallback {
		return "", err
	}

	logging.Ctx(ctx).Warn().Err(err).Msg("Saving backup record to local catalog")
	id, lerr := c.local.save(&stored, c.now())
	if lerr != nil {
		logging.Ctx(ctx).Error().Err(lerr).Msg("Local backup record save failed")
		return "", err
	}
	return id, nil
}

func (c *Catalog) savePrimary(ctx context.Context, rec *models.BackupRecord) (string, error) {
	if _, err := c.authz.RequireAdmin(ctx); err != nil {
		return "", err
	}
	rec.ID = uuid.New().String()
	rec.CreatedAt = c.now().UTC()

	doc, err := toDocument(rec)
	if err != nil {
		return "", err
	}
	if err := c.coll.Set(ctx, rec.ID, doc); err != nil {
		return "", fmt.Errorf("save backup record: %w", err)
	}

	logging.Ctx(ctx).Info().
		Str("backup_id", rec.ID).
		Str("trigger", string(rec.Trigger)).
		Str("performed_by", rec.PerformedBy).
		Bool("inline_payload", rec.HasPayload()).
		Msg("Backup record saved")
	return rec.ID, nil
}

// ListBackups returns catalog records matching opts.
func (c *Catalog) ListBackups(ctx context.Context, opts ListOptions) ([]*models.BackupRecord, error) {
	records, err := c.listPrimary(ctx)
	if err != nil {
		if c.policy != PolicyFallback {
			return nil, err
		}
		logging.Ctx(ctx).Warn().Err(err).Msg("Listing backups from local catalog")
		records = c.local.list()
	}

	filtered := make([]*models.BackupRecord, 0, len(records))
	for _, r := range records {
		if matchesFilter(r, opts) {
			filtered = append(filtered, r)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if opts.SortAsc {
			return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
		}
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})
	filtered = applyPagination(filtered, opts)

	if !opts.IncludePayload {
		for i, r := range filtered {
			filtered[i] = r.Summary()
		}
	}
	return filtered, nil
}

func (c *Catalog) listPrimary(ctx context.Context) ([]*models.BackupRecord, error) {
	if _, err := c.authz.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	docs, err := c.coll.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list backup records: %w", err)
	}
	records := make([]*models.BackupRecord, 0, len(docs))
	for _, d := range docs {
		rec, err := fromDocument(d)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("key", d.Key).Msg("Skipping unreadable backup record")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func matchesFilter(r *models.BackupRecord, opts ListOptions) bool {
	if opts.Trigger != nil && r.Trigger != *opts.Trigger {
		return false
	}
	if opts.Since != nil && r.CreatedAt.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && r.CreatedAt.After(*opts.Until) {
		return false
	}
	return true
}

func applyPagination(records []*models.BackupRecord, opts ListOptions) []*models.BackupRecord {
	if opts.Offset >= len(records) {
		return []*models.BackupRecord{}
	}
	if opts.Offset > 0 {
		records = records[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(records) {
		records = records[:opts.Limit]
	}
	return records
}

// GetBackup returns the full record, including any inline payload.
func (c *Catalog) GetBackup(ctx context.Context, id string) (*models.BackupRecord, error) {
	if id == "" {
		return nil, ErrBackupNotFound
	}
	if c.policy == PolicyFallback && strings.HasPrefix(id, LocalIDPrefix) {
		if rec, ok := c.local.get(id); ok {
			return rec, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}

	rec, err := c.getPrimary(ctx, id)
	if err == nil || c.policy != PolicyFallback {
		return rec, err
	}
	if local, ok := c.local.get(id); ok {
		return local, nil
	}
	return nil, err
}

func (c *Catalog) getPrimary(ctx context.Context, id string) (*models.BackupRecord, error) {
	if _, err := c.authz.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	doc, err := c.coll.Get(ctx, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get backup record: %w", err)
	}
	return fromDocument(*doc)
}

// DeleteBackup removes a record. It always requires an administrator.
func (c *Catalog) DeleteBackup(ctx context.Context, id string) error {
	if _, err := c.authz.RequireAdmin(ctx); err != nil {
		return err
	}

	if c.policy == PolicyFallback {
		found, err := c.local.delete(id)
		if err != nil {
			return fmt.Errorf("delete local backup record: %w", err)
		}
		if found {
			logging.Ctx(ctx).Info().Str("backup_id", id).Msg("Local backup record deleted")
			return nil
		}
	}

	if _, err := c.coll.Get(ctx, id); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrBackupNotFound, id)
		}
		return fmt.Errorf("get backup record: %w", err)
	}
	if err := c.coll.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete backup record: %w", err)
	}
	logging.Ctx(ctx).Info().
		Str("backup_id", id).
		Str("performed_by", auth.SubjectFromContext(ctx)).
		Msg("Backup record deleted")
	return nil
}

// Stats summarizes the records visible to the caller.
func (c *Catalog) Stats(ctx context.Context) (*Stats, error) {
	records, err := c.ListBackups(ctx, ListOptions{SortAsc: true})
	if err != nil {
		return nil, err
	}
	stats := &Stats{ByTrigger: make(map[models.BackupTrigger]int)}
	for _, r := range records {
		stats.TotalBackups++
		stats.TotalSizeBytes += r.SizeBytes
		stats.ByTrigger[r.Trigger]++
		if strings.HasPrefix(r.ID, LocalIDPrefix) {
			stats.LocalBackups++
		}
		if r.FileURL == "" && r.StoragePath == "" {
			stats.InlineBackups++
		}
	}
	if n := len(records); n > 0 {
		oldest, newest := records[0].CreatedAt, records[n-1].CreatedAt
		stats.Oldest, stats.Newest = &oldest, &newest
	}
	return stats, nil
}

func toDocument(rec *models.BackupRecord) (models.Record, error) {
	data, err := json.MarshalNoEscape(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal backup record: %w", err)
	}
	return models.DecodeRecord(data)
}

func fromDocument(doc docstore.Document) (*models.BackupRecord, error) {
	data, err := json.MarshalNoEscape(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal backup document: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rec models.BackupRecord
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode backup document %s: %w", doc.Key, err)
	}
	if rec.ID == "" {
		rec.ID = doc.Key
	}
	return &rec, nil
}
