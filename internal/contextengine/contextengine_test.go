// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package contextengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kquery/fusion-engine/internal/domain"
)

// TestRun_FiltersBelowRelevanceFloor verifies phase 1 drops items under the
// relevance floor before they ever reach reranking.
func TestRun_FiltersBelowRelevanceFloor(t *testing.T) {
	e := New(Budget{MaxItems: 10})
	items := []domain.ContextItem{
		{Source: domain.SourceSearch, Type: domain.TypeNews, Relevance: 0.01, Content: map[string]any{"title": "a"}},
		{Source: domain.SourceSearch, Type: domain.TypeNews, Relevance: 0.9, Content: map[string]any{"title": "b"}},
	}
	out := e.Run(domain.Query{}, items)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].Content["title"])
}

// TestRun_DedupKeepsHigherRelevanceInstance verifies phase 3 collapses
// duplicate content down to the single highest-relevance copy.
func TestRun_DedupKeepsHigherRelevanceInstance(t *testing.T) {
	e := New(Budget{MaxItems: 10})
	items := []domain.ContextItem{
		{Source: domain.SourceSearch, Type: domain.TypeNews, Relevance: 0.4, Confidence: 0.5, Content: map[string]any{"title": "dup"}},
		{Source: domain.SourceSearch, Type: domain.TypeNews, Relevance: 0.8, Confidence: 0.5, Content: map[string]any{"title": "dup"}},
	}
	out := e.Run(domain.Query{}, items)
	require.Len(t, out, 1)
	assert.Equal(t, 0.8, out[0].Relevance)
}

// TestRun_RerankPrefersHigherQualityAndFeatured verifies phase 4's
// monotonicity: all else equal, a featured, higher-quality item ranks
// ahead of a plain one (spec §9: test monotonicity, not absolute scores).
func TestRun_RerankPrefersHigherQualityAndFeatured(t *testing.T) {
	e := New(Budget{MaxItems: 10})
	featured := true
	quality := 0.9
	items := []domain.ContextItem{
		{Source: domain.SourceSearch, Type: domain.TypeNews, Relevance: 0.5, Confidence: 0.5, Content: map[string]any{"title": "plain"}},
		{Source: domain.SourceSearch, Type: domain.TypeNews, Relevance: 0.5, Confidence: 0.5, IsFeatured: &featured, QualityScore: &quality, Content: map[string]any{"title": "featured"}},
	}
	out := e.Run(domain.Query{}, items)
	require.Len(t, out, 2)
	assert.Equal(t, "featured", out[0].Content["title"])
}

// TestRun_PruneEnforcesBudget verifies phase 6 truncates to MaxItems even
// when every earlier phase would have let more items through.
func TestRun_PruneEnforcesBudget(t *testing.T) {
	e := New(Budget{MaxItems: 2})
	items := make([]domain.ContextItem, 5)
	for i := range items {
		items[i] = domain.ContextItem{Source: domain.SourceSearch, Type: domain.TypeNews, Relevance: 0.9, Content: map[string]any{"i": i}}
	}
	out := e.Run(domain.Query{}, items)
	assert.Len(t, out, 2)
}

// TestRun_SemanticDiversityCapsPerSource verifies phase 2 caps the number
// of items contributed by a single source.
func TestRun_SemanticDiversityCapsPerSource(t *testing.T) {
	e := New(Budget{MaxItems: 100})
	items := make([]domain.ContextItem, 10)
	for i := range items {
		items[i] = domain.ContextItem{Source: domain.SourceGraph, Type: domain.TypeCompany, Relevance: 0.9, Content: map[string]any{"i": i}}
	}
	out := e.Run(domain.Query{}, items)
	assert.LessOrEqual(t, len(out), maxPerSource)
}

// TestRerankScore_RecencyMonotonicity verifies a more recent item scores at
// least as high as an older, otherwise identical one.
func TestRerankScore_RecencyMonotonicity(t *testing.T) {
	now := time.Now()
	old := now.Add(-30 * 24 * time.Hour)
	recent := domain.ContextItem{Relevance: 0.5, Timestamp: &now}
	stale := domain.ContextItem{Relevance: 0.5, Timestamp: &old}
	assert.GreaterOrEqual(t, rerankScore(recent), rerankScore(stale))
}
