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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCircuitBreaker_TripsAfterThreshold verifies that FailureThreshold
// consecutive failures transition the breaker from CLOSED to OPEN and that
// a subsequent Allow() call is then rejected.
func TestCircuitBreaker_TripsAfterThreshold(t *testing.T) {
	cfg := DefaultBreakerConfig("test")
	cfg.FailureThreshold = 3
	cb := NewCircuitBreaker(cfg)

	for i := 0; i < 3; i++ {
		require.True(t, cb.Allow())
		cb.RecordFailure()
	}

	assert.Equal(t, StateOpen, cb.Stats().State)
	assert.False(t, cb.Allow())
}

// TestCircuitBreaker_HalfOpenRecovery verifies that after RecoveryTimeout
// elapses, a single probe is allowed, and SuccessThreshold consecutive
// successes close the breaker again.
func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cfg := DefaultBreakerConfig("test")
	cfg.FailureThreshold = 1
	cfg.SuccessThreshold = 2
	cfg.RecoveryTimeout = 10 * time.Millisecond
	cb := NewCircuitBreaker(cfg)

	cb.Allow()
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.Stats().State)

	time.Sleep(15 * time.Millisecond)

	require.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.Stats().State)
	cb.RecordSuccess()
	assert.Equal(t, StateHalfOpen, cb.Stats().State)

	require.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.Stats().State)
}

// TestCircuitBreaker_HalfOpenFailureReopens verifies that any failure while
// HALF_OPEN reopens the breaker immediately, without needing to reach
// FailureThreshold again.
func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cfg := DefaultBreakerConfig("test")
	cfg.FailureThreshold = 1
	cfg.RecoveryTimeout = 10 * time.Millisecond
	cb := NewCircuitBreaker(cfg)

	cb.Allow()
	cb.RecordFailure()
	time.Sleep(15 * time.Millisecond)

	require.True(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.Stats().State)
}

// TestCircuitBreaker_Execute_RejectsWhenOpen verifies Execute returns
// ErrCircuitOpen without invoking fn when the breaker is open.
func TestCircuitBreaker_Execute_RejectsWhenOpen(t *testing.T) {
	cfg := DefaultBreakerConfig("test")
	cfg.FailureThreshold = 1
	cb := NewCircuitBreaker(cfg)

	_ = cb.Execute(context.Background(), func(context.Context) error {
		return errors.New("boom")
	})
	assert.Equal(t, StateOpen, cb.Stats().State)

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

// TestCircuitBreaker_Reset verifies Reset forces the breaker back to CLOSED
// regardless of prior state.
func TestCircuitBreaker_Reset(t *testing.T) {
	cfg := DefaultBreakerConfig("test")
	cfg.FailureThreshold = 1
	cb := NewCircuitBreaker(cfg)
	cb.Allow()
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.Stats().State)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.Stats().State)
}
