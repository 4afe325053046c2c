// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// TestRecordRequest_IncrementsCounterAndHistogram verifies both the latency
// histogram and the total counter advance for the same labels.
func TestRecordRequest_IncrementsCounterAndHistogram(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("fast", "success"))
	RecordRequest("fast", "success", 0.42)
	after := testutil.ToFloat64(RequestsTotal.WithLabelValues("fast", "success"))

	assert.Equal(t, before+1, after)
}

// TestSetCircuitState_PublishesGaugeValue checks the gauge reflects the
// latest state set for a backend.
func TestSetCircuitState_PublishesGaugeValue(t *testing.T) {
	SetCircuitState("graph", 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(CircuitState.WithLabelValues("graph")))

	SetCircuitState("graph", 0)
	assert.Equal(t, float64(0), testutil.ToFloat64(CircuitState.WithLabelValues("graph")))
}

// TestRecordCacheLookup_IncrementsByLevel confirms lookups for distinct
// levels are tracked independently.
func TestRecordCacheLookup_IncrementsByLevel(t *testing.T) {
	before := testutil.ToFloat64(CacheHitsTotal.WithLabelValues("l1"))
	RecordCacheLookup("l1")
	after := testutil.ToFloat64(CacheHitsTotal.WithLabelValues("l1"))

	assert.Equal(t, before+1, after)
}
