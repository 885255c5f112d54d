// Menuvault - Restaurant Menu Backup, Restore and Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/menuvault

// Package retry provides a retry policy value and helpers that run an
// operation under it.
//
// A Policy is shared by the upload strategy chain, the outbox flusher and the
// backup scheduler so that all three back off the same way:
//
//	p := retry.Policy{MaxAttempts: 3, Backoff: retry.Exponential(time.Second, time.Minute)}
//	err := retry.Do(ctx, p, func(ctx context.Context) error {
//		return upload(ctx)
//	})
//
// Wrap an error with Permanent to stop retrying immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultMaxBackoff caps exponential backoff when no maximum is given.
const DefaultMaxBackoff = 5 * time.Minute

// ErrExhausted is returned (wrapping the last error) when every attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy describes how many times to try an operation and how long to wait
// between tries. Attempt numbers passed to Backoff start at 1 for the wait
// after the first failure.
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

// Delay returns the wait after the given failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}

// Attempts returns MaxAttempts, treating zero or negative as one.
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Exponential returns base * 2^(attempt-1), capped at max.
func Exponential(base, maxDelay time.Duration) func(int) time.Duration {
	if maxDelay <= 0 {
		maxDelay = DefaultMaxBackoff
	}
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		// Cap attempts to prevent overflow
		if attempt > 50 {
			return maxDelay
		}
		backoff := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
		if backoff < 0 || backoff > maxDelay {
			backoff = maxDelay
		}
		return backoff
	}
}

// Constant returns d for every attempt.
func Constant(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// None is a policy that tries once.
var None = Policy{MaxAttempts: 1}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do runs fn until it succeeds, returns a Permanent error, the policy's
// attempts are exhausted or ctx is done.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for operations that return a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := p.Attempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		var pe *permanentError
		if errors.As(err, &pe) {
			return zero, pe.err
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		if err := sleep(ctx, p.Delay(attempt)); err != nil {
			return zero, fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
	}
	return zero, fmt.Errorf("%w after %d attempt(s): %w", ErrExhausted, attempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
