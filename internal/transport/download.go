// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tomtom215/menuvault/internal/cache"
	"github.com/tomtom215/menuvault/internal/logging"
	"github.com/tomtom215/menuvault/internal/metrics"
	"github.com/tomtom215/menuvault/internal/models"
)

// ErrPayloadUnavailable indicates a backup record could not be resolved to a
// package by any source.
var ErrPayloadUnavailable = fmt.Errorf("%w: backup payload unavailable", models.ErrTransportFailed)

// DefaultMaxPackageBytes bounds a fetched package.
const DefaultMaxPackageBytes = 64 << 20

// Download sources, used as metric labels.
const (
	SourcePayload     = "payload"
	SourceFileURL     = "file_url"
	SourceStoragePath = "storage_path"
	SourceCache       = "cache"
	SourceNone        = "none"
)

// RecordSource looks up catalog records.
type RecordSource interface {
	GetBackup(ctx context.Context, id string) (*models.BackupRecord, error)
}

// URLSigner issues download URLs for stored blobs.
type URLSigner interface {
	DownloadURL(ctx context.Context, p string) (string, error)
}

// Downloader resolves catalog records to packages.
type Downloader struct {
	records  RecordSource
	signer   URLSigner
	client   *http.Client
	maxBytes int64
	docs     *cache.LRU[[]byte]
}

// NewDownloader creates a downloader. A nil client uses a 60 second timeout.
func NewDownloader(records RecordSource, signer URLSigner, client *http.Client) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Downloader{records: records, signer: signer, client: client, maxBytes: DefaultMaxPackageBytes}
}

// SetMaxPackageBytes overrides DefaultMaxPackageBytes. Non-positive
// values are ignored.
func (d *Downloader) SetMaxPackageBytes(n int64) {
	if n > 0 {
		d.maxBytes = n
	}
}

// EnableCache keeps up to entries fetched documents for ttl, bounded in
// total by the package size limit times entries. Inline payloads are never
// cached.
func (d *Downloader) EnableCache(entries int, ttl time.Duration) {
	if entries <= 0 {
		d.docs = nil
		return
	}
	d.docs = cache.NewLRU[[]byte](entries, ttl)
	d.docs.SetMaxBytes(d.maxBytes * int64(entries))
}

// GetBackupPayload returns the package of the given backup. The inline
// payload wins, then the record's file URL, then a download URL for its
// storage path. A failing file URL falls through to the storage path.
func (d *Downloader) GetBackupPayload(ctx context.Context, backupID string, onProgress func(int)) (*models.ExportPackage, error) {
	rec, err := d.records.GetBackup(ctx, backupID)
	if err != nil {
		return nil, err
	}
	log := logging.Ctx(ctx).With().Str("backup_id", backupID).Logger()
	onProgress = monotonic(onProgress)

	if rec.HasPayload() {
		metrics.RecordDownload(SourcePayload, nil)
		onProgress(100)
		return rec.Payload, nil
	}

	key := cacheKey(rec)
	if d.docs != nil {
		if data, ok := d.docs.Get(key); ok {
			pkg, err := parseFetched(data)
			if err == nil {
				metrics.RecordDownload(SourceCache, nil)
				onProgress(100)
				return pkg, nil
			}
			d.docs.Remove(key)
		}
	}

	if rec.FileURL != "" {
		data, pkg, err := d.fetch(ctx, rec.FileURL, onProgress)
		metrics.RecordDownload(SourceFileURL, err)
		if err == nil {
			d.remember(key, data)
			return pkg, nil
		}
		log.Warn().Err(err).Msg("Failed to fetch backup file URL")
	}

	if rec.StoragePath != "" && d.signer != nil {
		data, pkg, err := d.fetchStoragePath(ctx, rec.StoragePath, onProgress)
		metrics.RecordDownload(SourceStoragePath, err)
		if err == nil {
			d.remember(key, data)
			return pkg, nil
		}
		log.Warn().Err(err).Str("storage_path", rec.StoragePath).Msg("Failed to fetch backup storage path")
	}

	metrics.RecordDownload(SourceNone, ErrPayloadUnavailable)
	return nil, fmt.Errorf("%w: %s", ErrPayloadUnavailable, backupID)
}

// cacheKey includes the checksum so a record rewritten under the same ID
// never serves a stale document.
func cacheKey(rec *models.BackupRecord) string {
	return rec.ID + ":" + rec.Meta.Checksum
}

func (d *Downloader) remember(key string, data []byte) {
	if d.docs != nil {
		d.docs.Add(key, data, int64(len(data)))
	}
}

func (d *Downloader) fetchStoragePath(ctx context.Context, p string, onProgress func(int)) ([]byte, *models.ExportPackage, error) {
	url, err := d.signer.DownloadURL(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	return d.fetch(ctx, url, onProgress)
}

// FetchPackage downloads and parses a package. Progress is streamed when
// the response declares its length; otherwise 100 is reported once the
// body has been read.
func (d *Downloader) FetchPackage(ctx context.Context, url string, onProgress func(int)) (*models.ExportPackage, error) {
	_, pkg, err := d.fetch(ctx, url, onProgress)
	return pkg, err
}

func (d *Downloader) fetch(ctx context.Context, url string, onProgress func(int)) ([]byte, *models.ExportPackage, error) {
	data, err := d.download(ctx, url, onProgress)
	if err != nil {
		return nil, nil, err
	}
	pkg, err := parseFetched(data)
	if err != nil {
		return nil, nil, err
	}
	return data, pkg, nil
}

func parseFetched(data []byte) (*models.ExportPackage, error) {
	pkg, err := models.ParsePackageBytes(data)
	if err != nil {
		return nil, err
	}
	if pkg.Meta == nil {
		return nil, fmt.Errorf("%w: fetched document has no meta", models.ErrInvalidPackage)
	}
	return pkg, nil
}

func (d *Downloader) download(ctx context.Context, url string, onProgress func(int)) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTransportFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTransportFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch returned %d", models.ErrTransportFailed, resp.StatusCode)
	}
	if resp.ContentLength > d.maxBytes {
		return nil, fmt.Errorf("%w: package of %d bytes exceeds limit", models.ErrTransportFailed, resp.ContentLength)
	}

	report := monotonic(onProgress)
	var body io.Reader = io.LimitReader(resp.Body, d.maxBytes+1)
	if resp.ContentLength > 0 {
		body = &progressReader{r: body, total: resp.ContentLength, report: report}
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", models.ErrTransportFailed, err)
	}
	if int64(len(data)) > d.maxBytes {
		return nil, fmt.Errorf("%w: package exceeds %d bytes", models.ErrTransportFailed, d.maxBytes)
	}
	report(100)
	return data, nil
}

type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		pct := int(p.read * 100 / p.total)
		// 100 is reserved for after the body has been read in full.
		if pct > 99 {
			pct = 99
		}
		p.report(pct)
	}
	return n, err
}
