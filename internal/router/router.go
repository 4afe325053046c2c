// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package router implements the C6 Query Router: the Fast Path / Deep Path
// decision, and the graceful-degradation level derived from the current
// breaker states of the named backends (spec §4.6).
package router

import (
	"strings"

	"github.com/kquery/fusion-engine/internal/domain"
	"github.com/kquery/fusion-engine/internal/resilience"
)

// Path is which execution path a Query was routed to.
type Path string

const (
	PathFast Path = "fast"
	PathDeep Path = "deep"
)

// DepthThreshold is the ComplexityScore at or above which a query is routed
// to the Deep Path instead of the Fast Path (spec §4.6).
const DepthThreshold = 0.85

// deepTriggerKeywords are Korean phrases that request depth explicitly,
// independent of the computed complexity score (spec §4.6 step 2).
var deepTriggerKeywords = []string{"상세히", "자세히", "보고서", "심층", "종합적으로", "깊이"}

// Decision is the router's output: which path to take, and why.
type Decision struct {
	Path   Path
	Reason string
}

// Route chooses Fast or Deep based on the query's classified intent,
// complexity score, and explicit depth signals, per spec §4.6: a caller can
// force the Deep Path (force_deep), the query text can request it directly
// (a deep-trigger keyword), comprehensive/deep complexity always takes the
// Deep Path, and comparison intent requires the Deep Path's multi-entity
// synthesis even below the complexity threshold.
func Route(q domain.Query, score domain.ComplexityScore) Decision {
	if q.ForceDeep {
		return Decision{Path: PathDeep, Reason: "caller requested force_deep"}
	}
	if score.Score >= DepthThreshold {
		return Decision{Path: PathDeep, Reason: "complexity score at or above deep threshold"}
	}
	if containsDeepTrigger(q.Text) {
		return Decision{Path: PathDeep, Reason: "query text requests deep analysis explicitly"}
	}
	if q.Intent == domain.IntentComparison {
		return Decision{Path: PathDeep, Reason: "comparison intent requires multi-entity synthesis"}
	}
	return Decision{Path: PathFast, Reason: "complexity below deep threshold"}
}

func containsDeepTrigger(text string) bool {
	for _, kw := range deepTriggerKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// DegradationLevel is the coarse service health derived from backend
// breaker states (spec §4.6 / §9: FULL/DEGRADED/MINIMAL/EMERGENCY).
type DegradationLevel string

const (
	DegradationFull        DegradationLevel = "full"
	DegradationDegraded    DegradationLevel = "degraded"
	DegradationMinimal     DegradationLevel = "minimal"
	DegradationEmergency   DegradationLevel = "emergency"
)

// BackendStates names each breaker whose state feeds the degradation
// calculation.
type BackendStates struct {
	Graph  resilience.State
	Search resilience.State
	Market resilience.State
	LM     resilience.State
}

// Degradation derives a DegradationLevel from the current breaker states.
// The LM backend is load-bearing for every path (both Fast and Deep
// responses require it), so its breaker being open always forces EMERGENCY
// regardless of the other three.
func Degradation(states BackendStates) DegradationLevel {
	if states.LM == resilience.StateOpen {
		return DegradationEmergency
	}

	open := 0
	for _, s := range []resilience.State{states.Graph, states.Search, states.Market} {
		if s == resilience.StateOpen {
			open++
		}
	}

	switch open {
	case 0:
		return DegradationFull
	case 1:
		return DegradationDegraded
	case 2:
		return DegradationMinimal
	default:
		return DegradationEmergency
	}
}
