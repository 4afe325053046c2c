// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability holds the engine's Prometheus metrics (C13): request
// latency and counts by path, backend call latency by backend and outcome,
// circuit breaker state, cache hit rates by level, and routing decisions.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestLatency measures end-to-end query handling latency.
	// Labels: path (fast, deep), status (success, error)
	RequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fusion_engine",
		Subsystem: "query",
		Name:      "latency_seconds",
		Help:      "End-to-end query handling latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"path", "status"})

	// RequestsTotal counts handled queries.
	// Labels: path, status
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fusion_engine",
		Subsystem: "query",
		Name:      "requests_total",
		Help:      "Total queries handled",
	}, []string{"path", "status"})

	// BackendCallLatency measures individual backend call latency.
	// Labels: backend (graph, search, market, llm), status (success, error, timeout)
	BackendCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fusion_engine",
		Subsystem: "backend",
		Name:      "call_latency_seconds",
		Help:      "Backend call latency in seconds",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"backend", "status"})

	// BackendCallsTotal counts backend calls.
	// Labels: backend, status
	BackendCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fusion_engine",
		Subsystem: "backend",
		Name:      "calls_total",
		Help:      "Total backend calls",
	}, []string{"backend", "status"})

	// CircuitState tracks each backend breaker's current state
	// (0=closed, 1=open, 2=half-open). Labels: backend
	CircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fusion_engine",
		Subsystem: "backend",
		Name:      "circuit_state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"backend"})

	// CacheHitsTotal counts cache lookups by level and hit/miss outcome.
	// Labels: level (l1, l2, l3, miss)
	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fusion_engine",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache lookups by resolving level",
	}, []string{"level"})

	// RoutingDecisionsTotal counts Fast/Deep Path routing decisions.
	// Labels: path (fast, deep), intent
	RoutingDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fusion_engine",
		Subsystem: "router",
		Name:      "decisions_total",
		Help:      "Total Fast/Deep Path routing decisions",
	}, []string{"path", "intent"})

	// DegradationLevel tracks the current graceful-degradation level
	// (0=full, 1=degraded, 2=minimal, 3=emergency).
	DegradationLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fusion_engine",
		Subsystem: "router",
		Name:      "degradation_level",
		Help:      "Current graceful degradation level (0=full..3=emergency)",
	})

	// WorkflowNodeDuration measures Deep Workflow per-node execution time.
	// Labels: node, status
	WorkflowNodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fusion_engine",
		Subsystem: "workflow",
		Name:      "node_duration_seconds",
		Help:      "Deep Workflow per-node execution duration in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"node", "status"})
)

// RecordRequest records one completed query's latency and outcome.
func RecordRequest(path, status string, durationSec float64) {
	RequestLatency.WithLabelValues(path, status).Observe(durationSec)
	RequestsTotal.WithLabelValues(path, status).Inc()
}

// RecordBackendCall records one backend call's latency and outcome.
func RecordBackendCall(backend, status string, durationSec float64) {
	BackendCallLatency.WithLabelValues(backend, status).Observe(durationSec)
	BackendCallsTotal.WithLabelValues(backend, status).Inc()
}

// SetCircuitState publishes backend's current breaker state as a gauge value.
func SetCircuitState(backend string, state int) {
	CircuitState.WithLabelValues(backend).Set(float64(state))
}

// RecordCacheLookup records which level resolved (or missed) a cache lookup.
func RecordCacheLookup(level string) {
	CacheHitsTotal.WithLabelValues(level).Inc()
}

// RecordRoutingDecision records one Fast/Deep Path routing decision.
func RecordRoutingDecision(path, intent string) {
	RoutingDecisionsTotal.WithLabelValues(path, intent).Inc()
}

// SetDegradationLevel publishes the current degradation level (0-3).
func SetDegradationLevel(level int) {
	DegradationLevel.Set(float64(level))
}

// RecordWorkflowNode records one Deep Workflow node's execution duration.
func RecordWorkflowNode(node, status string, durationSec float64) {
	WorkflowNodeDuration.WithLabelValues(node, status).Observe(durationSec)
}
