// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

// Package transport moves export packages between the engine and durable
// storage.
//
// Uploads run an ordered chain of strategies: the blob store first, then an
// optional local sync endpoint, then the offline outbox. Each strategy
// reports whether its attempt succeeded, may be retried, or must stop the
// chain. A queued result ("accepted for later upload") is not an error.
//
// Downloads resolve a catalog record to its package: the inline payload
// wins, then the record's file URL, then a fresh download URL for its
// storage path.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/menuvault/internal/authz"
	"github.com/tomtom215/menuvault/internal/logging"
	"github.com/tomtom215/menuvault/internal/metrics"
	"github.com/tomtom215/menuvault/internal/models"
	"github.com/tomtom215/menuvault/internal/retry"
	"github.com/tomtom215/menuvault/internal/snapshot"
)

// Outcome classifies a single strategy attempt.
type Outcome int

const (
	// Success ends the chain with a result.
	Success Outcome = iota
	// Retryable may be retried under the strategy's policy, after which the
	// chain moves on.
	Retryable
	// Fatal stops the chain.
	Fatal
)

// String returns the metric label for o.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Upload is the unit handed to each strategy.
type Upload struct {
	Path    string
	Data    []byte
	Package *models.ExportPackage

	// OnProgress receives percentages; the uploader keeps them monotonic
	// across strategies and retries.
	OnProgress func(int)
}

// Attempt is the result of one Strategy.Attempt call.
type Attempt struct {
	Outcome Outcome
	Result  *UploadResult
	Err     error
}

// Strategy is one link in the upload chain.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, u *Upload) Attempt
}

// UploadResult describes where a package went.
type UploadResult struct {
	URL       string `json:"url,omitempty"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"sizeBytes"`
	Strategy  string `json:"strategy"`
	Queued    bool   `json:"queued"`
	QueuedBy  string `json:"queuedBy,omitempty"`
	OutboxID  uint64 `json:"outboxId,omitempty"`
}

type step struct {
	strategy Strategy
	policy   retry.Policy
}

// Uploader runs the strategy chain.
type Uploader struct {
	authz authz.Authorizer
	steps []step
}

// UploaderOption adds to an Uploader.
type UploaderOption func(*Uploader)

// WithStrategy appends s to the chain, retried in place under policy.
func WithStrategy(s Strategy, policy retry.Policy) UploaderOption {
	return func(u *Uploader) {
		u.steps = append(u.steps, step{strategy: s, policy: policy})
	}
}

// NewUploader creates an uploader. Strategies run in the order given.
func NewUploader(authorizer authz.Authorizer, opts ...UploaderOption) *Uploader {
	u := &Uploader{authz: authorizer}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Strategies returns the configured strategy names in order.
func (u *Uploader) Strategies() []string {
	names := make([]string, len(u.steps))
	for i, s := range u.steps {
		names[i] = s.strategy.Name()
	}
	return names
}

// SaveBackupFile uploads pkg as backups/backup_<createdAt>_<suffix>.json.
// It requires an administrator; a denied caller gets ErrPermissionDenied and
// nothing is queued.
func (u *Uploader) SaveBackupFile(ctx context.Context, pkg *models.ExportPackage, onProgress func(int)) (*UploadResult, error) {
	if _, err := u.authz.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	if pkg == nil || pkg.Meta == nil {
		return nil, fmt.Errorf("%w: package has no meta", models.ErrInvalidPackage)
	}

	data, err := pkg.Marshal()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrTransportFailed, err)
	}
	up := &Upload{
		Path:       snapshot.StoragePath(snapshot.FileName(pkg.Meta)),
		Data:       data,
		Package:    pkg,
		OnProgress: monotonic(onProgress),
	}

	log := logging.Ctx(ctx)
	var lastErr error
	for _, s := range u.steps {
		name := s.strategy.Name()
		res, err := retry.DoValue(ctx, s.policy, func(ctx context.Context) (*UploadResult, error) {
			a := s.strategy.Attempt(ctx, up)
			metrics.RecordUploadAttempt(name, a.Outcome.String())
			switch a.Outcome {
			case Success:
				return a.Result, nil
			case Fatal:
				return nil, retry.Permanent(attemptErr(name, a.Err))
			default:
				log.Debug().Err(a.Err).Str("strategy", name).Msg("Upload attempt failed, may retry")
				return nil, attemptErr(name, a.Err)
			}
		})
		if err == nil {
			res.Strategy = name
			if res.Path == "" {
				res.Path = up.Path
			}
			if res.SizeBytes == 0 {
				res.SizeBytes = int64(len(data))
			}
			if !res.Queued {
				up.OnProgress(100)
			}
			log.Info().
				Str("strategy", name).
				Str("path", res.Path).
				Int64("size_bytes", res.SizeBytes).
				Bool("queued", res.Queued).
				Msg("Backup file saved")
			return res, nil
		}

		lastErr = err
		// Anything other than exhaustion is a fatal outcome or cancellation.
		if !errors.Is(err, retry.ErrExhausted) {
			break
		}
		log.Warn().Err(err).Str("strategy", name).Msg("Upload strategy exhausted, trying next")
	}

	if lastErr == nil {
		lastErr = errors.New("no upload strategy configured")
	}
	return nil, fmt.Errorf("%w: %v", models.ErrTransportFailed, lastErr)
}

func attemptErr(strategy string, err error) error {
	if err == nil {
		err = errors.New("attempt failed")
	}
	return fmt.Errorf("%s: %w", strategy, err)
}

// monotonic wraps fn so it only ever sees increasing values in 0..100.
func monotonic(fn func(int)) func(int) {
	if fn == nil {
		return func(int) {}
	}
	var mu sync.Mutex
	last := -1
	return func(pct int) {
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		mu.Lock()
		defer mu.Unlock()
		if pct <= last {
			return
		}
		last = pct
		fn(pct)
	}
}
