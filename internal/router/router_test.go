// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kquery/fusion-engine/internal/domain"
	"github.com/kquery/fusion-engine/internal/resilience"
)

// TestRoute_HighComplexityGoesDeep verifies a score at or above
// DepthThreshold always routes to the Deep Path.
func TestRoute_HighComplexityGoesDeep(t *testing.T) {
	d := Route(domain.Query{Intent: domain.IntentStock}, domain.ComplexityScore{Score: 0.9})
	assert.Equal(t, PathDeep, d.Path)
}

// TestRoute_ComparisonIntentGoesDeepEvenAtLowComplexity verifies comparison
// queries always take the Deep Path regardless of their raw complexity
// score.
func TestRoute_ComparisonIntentGoesDeepEvenAtLowComplexity(t *testing.T) {
	d := Route(domain.Query{Intent: domain.IntentComparison}, domain.ComplexityScore{Score: 0.1})
	assert.Equal(t, PathDeep, d.Path)
}

// TestRoute_LowComplexitySimpleIntentGoesFast verifies the common case.
func TestRoute_LowComplexitySimpleIntentGoesFast(t *testing.T) {
	d := Route(domain.Query{Intent: domain.IntentStock}, domain.ComplexityScore{Score: 0.2})
	assert.Equal(t, PathFast, d.Path)
}

// TestRoute_ForceDeepGoesDeepRegardlessOfComplexity verifies an explicit
// force_deep request overrides a trivially low complexity score.
func TestRoute_ForceDeepGoesDeepRegardlessOfComplexity(t *testing.T) {
	d := Route(domain.Query{Intent: domain.IntentGeneral, ForceDeep: true}, domain.ComplexityScore{Score: 0.1})
	assert.Equal(t, PathDeep, d.Path)
}

// TestRoute_DeepTriggerKeywordGoesDeep verifies a Korean deep-trigger phrase
// in the query text sends a low-complexity query down the Deep Path.
func TestRoute_DeepTriggerKeywordGoesDeep(t *testing.T) {
	d := Route(domain.Query{Text: "삼성전자 실적을 자세히 알려줘", Intent: domain.IntentGeneral}, domain.ComplexityScore{Score: 0.2})
	assert.Equal(t, PathDeep, d.Path)
}

// TestDegradation_AllClosedIsFull verifies healthy breakers yield FULL.
func TestDegradation_AllClosedIsFull(t *testing.T) {
	got := Degradation(BackendStates{})
	assert.Equal(t, DegradationFull, got)
}

// TestDegradation_LMOpenIsAlwaysEmergency verifies the LM backend is
// load-bearing: its breaker opening forces EMERGENCY even if every other
// backend is healthy.
func TestDegradation_LMOpenIsAlwaysEmergency(t *testing.T) {
	got := Degradation(BackendStates{LM: resilience.StateOpen})
	assert.Equal(t, DegradationEmergency, got)
}

// TestDegradation_ScalesWithOpenBreakerCount verifies the non-LM breakers
// escalate degradation monotonically with how many are open.
func TestDegradation_ScalesWithOpenBreakerCount(t *testing.T) {
	one := Degradation(BackendStates{Graph: resilience.StateOpen})
	two := Degradation(BackendStates{Graph: resilience.StateOpen, Search: resilience.StateOpen})
	three := Degradation(BackendStates{Graph: resilience.StateOpen, Search: resilience.StateOpen, Market: resilience.StateOpen})

	assert.Equal(t, DegradationDegraded, one)
	assert.Equal(t, DegradationMinimal, two)
	assert.Equal(t, DegradationEmergency, three)
}
