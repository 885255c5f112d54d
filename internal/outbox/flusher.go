// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

/*
flusher.go - Background Outbox Flusher

The flusher replays the outbox on a fixed interval:

  - an item is retried only after the policy backoff for its attempt count
    has elapsed since its last attempt
  - an item that reached the policy's MaxAttempts is kept but no longer
    retried automatically; FlushNow still processes it
  - handler invocations are paced by a token-bucket limiter so a long
    backlog does not hammer the destination after an outage

The flusher is a suture service: Serve blocks until its context is done.
*/

//nolint:staticcheck // File documentation, not package doc
package outbox

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/menuvault/internal/logging"
	"github.com/tomtom215/menuvault/internal/retry"
)

// FlusherConfig configures a Flusher.
type FlusherConfig struct {
	// Interval between automatic passes.
	Interval time.Duration

	// Policy decides backoff and the automatic attempt ceiling.
	Policy retry.Policy

	// RatePerSecond limits handler invocations. Zero disables pacing.
	RatePerSecond float64

	// Burst is the limiter burst size.
	Burst int
}

// Flusher periodically processes the outbox.
type Flusher struct {
	outbox   *BadgerOutbox
	handlers map[string]Handler
	cfg      FlusherConfig
	limiter  *rate.Limiter
	now      func() time.Time
}

// NewFlusher creates a flusher for the given handlers.
func NewFlusher(ob *BadgerOutbox, handlers map[string]Handler, cfg FlusherConfig) *Flusher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &Flusher{
		outbox:   ob,
		handlers: handlers,
		cfg:      cfg,
		limiter:  limiter,
		now:      time.Now,
	}
}

// Serve runs automatic passes until ctx is done.
func (f *Flusher) Serve(ctx context.Context) error {
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	logging.WithComponent(logComponent).Info().
		Dur("interval", f.cfg.Interval).
		Int("max_attempts", f.cfg.Policy.MaxAttempts).
		Msg("Outbox flusher started")

	for {
		select {
		case <-ctx.Done():
			logging.WithComponent(logComponent).Info().Msg("Outbox flusher stopped")
			return ctx.Err()
		case <-ticker.C:
			passCtx := logging.ContextWithNewCorrelationID(ctx)
			if _, err := f.flush(passCtx, true); err != nil && ctx.Err() == nil {
				logging.Component(passCtx, logComponent).Error().Err(err).Msg("Outbox flush pass failed")
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (f *Flusher) String() string {
	return "outbox-flusher"
}

// FlushNow processes every item immediately, ignoring backoff and the
// attempt ceiling.
func (f *Flusher) FlushNow(ctx context.Context) (ProcessResult, error) {
	return f.flush(ctx, false)
}

func (f *Flusher) flush(ctx context.Context, automatic bool) (ProcessResult, error) {
	opts := make([]ProcessOption, 0, 2)
	if automatic {
		opts = append(opts, WithFilter(f.due))
	}
	if f.limiter != nil {
		opts = append(opts, WithWait(f.limiter.Wait))
	}
	return f.outbox.Process(ctx, f.handlers, opts...)
}

// due reports whether an item should be retried by an automatic pass.
func (f *Flusher) due(item *Item) bool {
	if f.cfg.Policy.MaxAttempts > 0 && item.Attempts >= f.cfg.Policy.MaxAttempts {
		return false
	}
	if item.Attempts == 0 || item.LastAttemptAt.IsZero() {
		return true
	}
	return f.now().Sub(item.LastAttemptAt) >= f.cfg.Policy.Delay(item.Attempts)
}
