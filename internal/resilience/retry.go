// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryableError marks an error as eligible for retry. Errors that do not
// implement this (or wrap one that does) are treated as non-retryable and
// fail fast, per spec §5 C2's retryable/non-retryable classification.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err so IsRetryable reports true for it.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err (or anything it wraps) was marked
// Retryable. Context cancellation and deadline errors are never retryable
// regardless of wrapping.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var re *RetryableError
	return errors.As(err, &re)
}

// RetryConfig tunes the exponential-backoff-with-jitter retry loop.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFrac   float64
}

// DefaultRetryConfig returns spec §5 C2 defaults: up to 3 attempts, starting
// at 200ms, doubling, capped at 2s, +/-20% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		JitterFrac:   0.2,
	}
}

// RetryableFunc is the operation retried by Retry.
type RetryableFunc func(ctx context.Context) error

// Retry calls fn until it succeeds, a non-retryable error is returned, the
// context is cancelled, or cfg.MaxAttempts is exhausted — whichever comes
// first. The last error seen is returned on exhaustion.
func Retry(ctx context.Context, cfg RetryConfig, fn RetryableFunc) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := withJitter(delay, cfg.JitterFrac)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = nextDelay(delay, cfg)
	}
	return lastErr
}

func nextDelay(current time.Duration, cfg RetryConfig) time.Duration {
	next := time.Duration(float64(current) * cfg.Multiplier)
	if next > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return next
}

func withJitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	span := float64(d) * frac
	offset := (rand.Float64()*2 - 1) * span
	jittered := time.Duration(float64(d) + offset)
	if jittered < 0 {
		return 0
	}
	return jittered
}

// RetryWithBreaker combines Retry with a CircuitBreaker: each attempt first
// checks the breaker, records its own outcome, and a rejected attempt
// (ErrCircuitOpen) is treated as non-retryable so an open breaker fails the
// whole call fast instead of burning through the retry budget.
func RetryWithBreaker(ctx context.Context, cb *CircuitBreaker, cfg RetryConfig, fn RetryableFunc) error {
	return Retry(ctx, cfg, func(ctx context.Context) error {
		if !cb.Allow() {
			return ErrCircuitOpen
		}
		err := fn(ctx)
		if err != nil {
			cb.RecordFailure()
			return err
		}
		cb.RecordSuccess()
		return nil
	})
}
