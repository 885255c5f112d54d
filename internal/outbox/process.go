// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

package outbox

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/menuvault/internal/logging"
	"github.com/tomtom215/menuvault/internal/metrics"
)

// ProcessResult summarizes one Process pass.
type ProcessResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Remaining int `json:"remaining"`
}

type processOptions struct {
	filter func(*Item) bool
	wait   func(context.Context) error
}

// ProcessOption customizes a Process pass.
type ProcessOption func(*processOptions)

// WithFilter restricts the pass to items for which keep returns true.
func WithFilter(keep func(*Item) bool) ProcessOption {
	return func(o *processOptions) {
		o.filter = keep
	}
}

// WithWait calls wait before each handler invocation, e.g. a rate limiter.
func WithWait(wait func(context.Context) error) ProcessOption {
	return func(o *processOptions) {
		o.wait = wait
	}
}

// Process hands every queued item to the handler registered for its kind.
// Items whose kind has no handler are left untouched. Concurrent calls are
// safe; an item is handled by at most one call at a time.
func (o *BadgerOutbox) Process(ctx context.Context, handlers map[string]Handler, opts ...ProcessOption) (ProcessResult, error) {
	var po processOptions
	for _, opt := range opts {
		opt(&po)
	}

	var res ProcessResult
	items, err := o.Items(ctx)
	if err != nil {
		return res, err
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return o.finish(ctx, res), err
		}

		handler, ok := handlers[item.Kind]
		if !ok || (po.filter != nil && !po.filter(item)) {
			res.Skipped++
			continue
		}
		if !o.tryClaim(item.ID) {
			res.Skipped++
			continue
		}

		if po.wait != nil {
			if err := po.wait(ctx); err != nil {
				o.release(item.ID)
				return o.finish(ctx, res), err
			}
		}

		if o.handleOne(ctx, item, handler) {
			res.Succeeded++
		} else {
			res.Failed++
		}
		o.release(item.ID)
	}
	return o.finish(ctx, res), nil
}

func (o *BadgerOutbox) finish(ctx context.Context, res ProcessResult) ProcessResult {
	if n, err := o.Count(context.WithoutCancel(ctx)); err == nil {
		res.Remaining = n
	}
	if res.Succeeded > 0 || res.Failed > 0 {
		logging.Component(ctx, logComponent).Info().
			Int("succeeded", res.Succeeded).
			Int("failed", res.Failed).
			Int("skipped", res.Skipped).
			Int("remaining", res.Remaining).
			Msg("Outbox processed")
	}
	return res
}

// handleOne runs the handler and removes or re-records the item. It
// returns true when the item was removed.
func (o *BadgerOutbox) handleOne(ctx context.Context, item *Item, handler Handler) bool {
	ok, err := safeCall(ctx, handler, item.Payload)
	metrics.RecordOutboxProcessed(item.Kind, ok && err == nil)

	if ok && err == nil {
		if rerr := o.Remove(context.WithoutCancel(ctx), item.ID); rerr != nil {
			// The side effect happened; the item stays and will replay.
			logging.Component(ctx, logComponent).Error().Err(rerr).Uint64("outbox_id", item.ID).Msg("Failed to remove processed outbox item")
			return false
		}
		logging.Component(ctx, logComponent).Debug().Uint64("outbox_id", item.ID).Str("kind", item.Kind).Msg("Outbox item delivered")
		return true
	}

	cause := "handler reported not done"
	if err != nil {
		cause = err.Error()
	}
	logging.Component(ctx, logComponent).Warn().
		Uint64("outbox_id", item.ID).
		Str("kind", item.Kind).
		Int("attempt", item.Attempts+1).
		Str("cause", cause).
		Msg("Outbox item kept for retry")
	if aerr := o.recordAttempt(context.WithoutCancel(ctx), item.ID, cause); aerr != nil {
		logging.Component(ctx, logComponent).Error().Err(aerr).Uint64("outbox_id", item.ID).Msg("Failed to record outbox attempt")
	}
	return false
}

func safeCall(ctx context.Context, h Handler, payload json.RawMessage) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, payload)
}
