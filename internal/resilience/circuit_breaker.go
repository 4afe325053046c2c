// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resilience implements the circuit breaker and retry policies used
// to protect every named external backend (graph, search, market, LM).
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State is the circuit breaker's lifecycle state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Allow/Execute when the breaker is open and
// the recovery timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("resilience: circuit breaker open")

// BreakerConfig tunes a CircuitBreaker's transition thresholds.
type BreakerConfig struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	RecoveryTimeout  time.Duration
}

// DefaultBreakerConfig returns the spec §5 C2 defaults: five consecutive
// failures trip the breaker, two consecutive half-open successes close it,
// thirty seconds before the first half-open probe.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RecoveryTimeout:  30 * time.Second,
	}
}

// Stats is a snapshot of a CircuitBreaker's counters, safe to read after
// Stats() returns (no shared state with the live breaker).
type Stats struct {
	State               State
	ConsecutiveFailures int
	ConsecutiveSuccesses int
	LastTransition      time.Time
}

// CircuitBreaker is a state machine guarding calls to one named backend.
// CLOSED allows all calls. Reaching FailureThreshold consecutive failures
// trips it to OPEN, which rejects every call until RecoveryTimeout elapses,
// at which point a single probe call is allowed through in HALF_OPEN.
// SuccessThreshold consecutive HALF_OPEN successes close it again; any
// HALF_OPEN failure reopens it immediately.
type CircuitBreaker struct {
	cfg BreakerConfig
	log *slog.Logger

	mu                   sync.Mutex
	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	lastTransition       time.Time
	halfOpenProbeInFlight bool
}

// NewCircuitBreaker builds a breaker in the CLOSED state.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:            cfg,
		log:            slog.Default().With("component", "circuit_breaker", "backend", cfg.Name),
		state:          StateClosed,
		lastTransition: time.Now(),
	}
}

// Allow reports whether a call may proceed right now. When it returns true
// for a HALF_OPEN probe, the caller must report the outcome exactly once
// (via RecordSuccess/RecordFailure) to clear the in-flight probe slot.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.lastTransition) >= b.cfg.RecoveryTimeout {
			b.transitionTo(StateHalfOpen)
			b.halfOpenProbeInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if b.halfOpenProbeInFlight {
			return false
		}
		b.halfOpenProbeInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess registers a successful call outcome.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.halfOpenProbeInFlight = false

	switch b.state {
	case StateHalfOpen:
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.cfg.SuccessThreshold {
			b.transitionTo(StateClosed)
		}
	case StateClosed:
		b.consecutiveSuccesses++
	}
}

// RecordFailure registers a failed call outcome.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveSuccesses = 0
	b.halfOpenProbeInFlight = false

	switch b.state {
	case StateHalfOpen:
		b.transitionTo(StateOpen)
	case StateClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.transitionTo(StateOpen)
		}
	}
}

// transitionTo must be called with b.mu held.
func (b *CircuitBreaker) transitionTo(next State) {
	prev := b.state
	b.state = next
	b.lastTransition = time.Now()
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	if prev != next {
		b.log.Info("circuit breaker transition", "from", prev.String(), "to", next.String())
	}
}

// Execute runs fn if the breaker allows it, recording the outcome. It
// returns ErrCircuitOpen without calling fn when the breaker rejects the
// call.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !b.Allow() {
		return ErrCircuitOpen
	}
	err := fn(ctx)
	if err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

// Stats returns a point-in-time snapshot of the breaker's counters.
func (b *CircuitBreaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State:                b.state,
		ConsecutiveFailures:  b.consecutiveFailures,
		ConsecutiveSuccesses: b.consecutiveSuccesses,
		LastTransition:       b.lastTransition,
	}
}

// Reset forces the breaker back to CLOSED, clearing all counters. Intended
// for operator intervention and tests, not for use on the call path.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(StateClosed)
}
