// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

/*
strategies.go - Upload Strategies

The default chain, in order:

 1. BlobStrategy writes the package to the blob store behind a circuit
    breaker. An open breaker is Retryable so the chain falls through to the
    queueing strategies instead of waiting out the breaker timeout.
 2. LocalSyncStrategy hands the package to a local sync endpoint which
    accepts it for later upload (HTTP 2xx with {"queued": true}).
 3. OutboxStrategy enqueues a "backupFile" item in the offline outbox. The
    outbox flusher replays it through NewBackupFileHandler.

Only cancellation and invalid storage paths are Fatal; every other failure
lets the chain continue.
*/

//nolint:staticcheck // File documentation, not package doc
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/menuvault/internal/auth"
	"github.com/tomtom215/menuvault/internal/blobstore"
	"github.com/tomtom215/menuvault/internal/logging"
	"github.com/tomtom215/menuvault/internal/metrics"
	"github.com/tomtom215/menuvault/internal/models"
	"github.com/tomtom215/menuvault/internal/outbox"
	"github.com/tomtom215/menuvault/internal/snapshot"
)

// Strategy names, also used as metric labels and UploadResult.Strategy.
const (
	StrategyBlob      = "blob"
	StrategyLocalSync = "local-sync"
	StrategyOutbox    = "outbox"
)

// OutboxKindBackupFile is the outbox kind for deferred backup uploads.
const OutboxKindBackupFile = "backupFile"

// BackgroundSyncHeader marks requests sent to the local sync endpoint.
const BackgroundSyncHeader = "X-Background-Sync"

// BlobStore is the subset of the blob store used for uploads and downloads.
type BlobStore interface {
	Upload(ctx context.Context, p string, r io.Reader, size int64, onProgress func(int)) (*blobstore.Object, error)
	DownloadURL(ctx context.Context, p string) (string, error)
}

// Enqueuer adds items to the offline outbox.
type Enqueuer interface {
	Add(ctx context.Context, kind string, payload any) (uint64, error)
}

// BackupFilePayload is the outbox payload of a deferred upload. Items
// queued through the local sync endpoint carry Payload and Meta instead of
// Path and Package.
type BackupFilePayload struct {
	Path    string          `json:"path,omitempty"`
	Package json.RawMessage `json:"package,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Meta    *models.Meta    `json:"meta,omitempty"`
}

// BreakerConfig configures the blob strategy's circuit breaker.
type BreakerConfig struct {
	// Name labels the breaker in logs and metrics.
	Name string
	// ConsecutiveFailures opens the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// BlobStrategy uploads to the blob store.
type BlobStrategy struct {
	blob BlobStore
	cb   *gobreaker.CircuitBreaker[*blobstore.Object]
}

// NewBlobStrategy creates a blob strategy with its own circuit breaker.
func NewBlobStrategy(blob BlobStore, cfg BreakerConfig) *BlobStrategy {
	if cfg.Name == "" {
		cfg.Name = "blob-store"
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = time.Minute
	}

	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[*blobstore.Object](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// Invalid paths and cancellations do not count against the store.
			return err == nil || errors.Is(err, blobstore.ErrInvalidPath) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.RecordCircuitBreakerTransition(name, from.String(), to.String(), int(to))
		},
	})
	return &BlobStrategy{blob: blob, cb: cb}
}

// Name implements Strategy.
func (s *BlobStrategy) Name() string { return StrategyBlob }

// State returns the breaker state.
func (s *BlobStrategy) State() gobreaker.State { return s.cb.State() }

// Attempt implements Strategy.
func (s *BlobStrategy) Attempt(ctx context.Context, u *Upload) Attempt {
	obj, err := s.cb.Execute(func() (*blobstore.Object, error) {
		return s.blob.Upload(ctx, u.Path, bytes.NewReader(u.Data), int64(len(u.Data)), u.OnProgress)
	})
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return Attempt{Outcome: Retryable, Err: fmt.Errorf("blob store unavailable: %w", err)}
	case errors.Is(err, blobstore.ErrInvalidPath), ctx.Err() != nil:
		return Attempt{Outcome: Fatal, Err: err}
	default:
		return Attempt{Outcome: Retryable, Err: err}
	}

	url, err := s.blob.DownloadURL(ctx, obj.Path)
	if err != nil {
		// The blob is stored; a missing URL is resolved again on download.
		logging.Ctx(ctx).Warn().Err(err).Str("path", obj.Path).Msg("Could not sign download URL")
	}
	return Attempt{Outcome: Success, Result: &UploadResult{URL: url, Path: obj.Path, SizeBytes: obj.Size}}
}

// LocalSyncStrategy posts the package to a local sync endpoint.
type LocalSyncStrategy struct {
	url    string
	secret string
	client *http.Client
}

// NewLocalSyncStrategy creates a strategy posting to url. A non-empty
// secret is sent in the shared-secret header.
func NewLocalSyncStrategy(url, secret string, client *http.Client) *LocalSyncStrategy {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &LocalSyncStrategy{url: url, secret: secret, client: client}
}

// Name implements Strategy.
func (s *LocalSyncStrategy) Name() string { return StrategyLocalSync }

type localSyncRequest struct {
	Payload json.RawMessage `json:"payload"`
	Meta    *models.Meta    `json:"meta"`
}

type localSyncResponse struct {
	Queued   bool   `json:"queued"`
	OutboxID uint64 `json:"outboxId,omitempty"`
}

// Attempt implements Strategy.
func (s *LocalSyncStrategy) Attempt(ctx context.Context, u *Upload) Attempt {
	body, err := json.MarshalNoEscape(localSyncRequest{Payload: u.Data, Meta: u.Package.Meta})
	if err != nil {
		return Attempt{Outcome: Fatal, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Attempt{Outcome: Fatal, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(BackgroundSyncHeader, "1")
	if s.secret != "" {
		req.Header.Set(auth.SecretHeader, s.secret)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Attempt{Outcome: Fatal, Err: ctx.Err()}
		}
		return Attempt{Outcome: Retryable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Attempt{Outcome: Retryable, Err: fmt.Errorf("local sync endpoint returned %d", resp.StatusCode)}
	}
	var out localSyncResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&out); err != nil {
		return Attempt{Outcome: Retryable, Err: fmt.Errorf("decode local sync response: %w", err)}
	}
	if !out.Queued {
		return Attempt{Outcome: Retryable, Err: errors.New("local sync endpoint did not queue the backup")}
	}
	return Attempt{Outcome: Success, Result: &UploadResult{
		Path:     u.Path,
		Queued:   true,
		QueuedBy: StrategyLocalSync,
		OutboxID: out.OutboxID,
	}}
}

// OutboxStrategy queues the upload in the offline outbox.
type OutboxStrategy struct {
	outbox Enqueuer
}

// NewOutboxStrategy creates an outbox strategy.
func NewOutboxStrategy(ob Enqueuer) *OutboxStrategy {
	return &OutboxStrategy{outbox: ob}
}

// Name implements Strategy.
func (s *OutboxStrategy) Name() string { return StrategyOutbox }

// Attempt implements Strategy.
func (s *OutboxStrategy) Attempt(ctx context.Context, u *Upload) Attempt {
	id, err := s.outbox.Add(ctx, OutboxKindBackupFile, BackupFilePayload{Path: u.Path, Package: u.Data})
	if err != nil {
		if ctx.Err() != nil {
			return Attempt{Outcome: Fatal, Err: ctx.Err()}
		}
		return Attempt{Outcome: Retryable, Err: err}
	}
	return Attempt{Outcome: Success, Result: &UploadResult{
		Path:     u.Path,
		Queued:   true,
		QueuedBy: StrategyOutbox,
		OutboxID: id,
	}}
}

// NewBackupFileHandler returns the outbox handler for "backupFile" items.
// It replays the blob upload only; a failure keeps the item queued.
func NewBackupFileHandler(blob BlobStore) outbox.Handler {
	return func(ctx context.Context, raw json.RawMessage) (bool, error) {
		var p BackupFilePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return false, fmt.Errorf("decode backupFile payload: %w", err)
		}
		data := p.Package
		if len(data) == 0 {
			data = p.Payload
		}
		if len(data) == 0 {
			return false, errors.New("backupFile payload carries no package")
		}

		path := p.Path
		if path == "" {
			meta := p.Meta
			if meta == nil {
				pkg, err := models.ParsePackageBytes(data)
				if err != nil {
					return false, err
				}
				meta = pkg.Meta
			}
			if meta == nil {
				return false, errors.New("backupFile payload has no meta")
			}
			path = snapshot.StoragePath(snapshot.FileName(meta))
		}

		obj, err := blob.Upload(ctx, path, bytes.NewReader(data), int64(len(data)), nil)
		if err != nil {
			return false, err
		}
		logging.Ctx(ctx).Info().
			Str("path", obj.Path).
			Int64("size_bytes", obj.Size).
			Msg("Deferred backup file uploaded")
		return true, nil
	}
}
