// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package complexity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kquery/fusion-engine/internal/domain"
)

// TestScore_SimpleQueryIsShallow verifies a short query with no entities or
// structural signals scores low and classifies as shallow.
func TestScore_SimpleQueryIsShallow(t *testing.T) {
	s := New()
	got := s.Score(domain.Query{Text: "안녕하세요", Intent: domain.IntentGeneral})
	assert.Equal(t, domain.DepthShallow, got.Depth)
	assert.Less(t, got.Score, 0.7)
}

// TestScore_ComparisonWithEntitiesIsMoreComplex verifies that adding
// entities and comparison intent strictly increases the score relative to
// the baseline query, demonstrating the monotonicity the additive bonus
// design depends on.
func TestScore_ComparisonWithEntitiesIsMoreComplex(t *testing.T) {
	s := New()
	baseline := s.Score(domain.Query{Text: "질문", Intent: domain.IntentGeneral})
	richer := s.Score(domain.Query{
		Text:   "삼성전자와 SK하이닉스 주가 비교해줘 그리고 이유도 알려줘",
		Intent: domain.IntentComparison,
		Entities: domain.Entities{
			Companies: []string{"삼성전자", "SK하이닉스"},
		},
	})
	assert.Greater(t, richer.Score, baseline.Score)
}

// TestScore_NeverExceedsOne verifies the clamp holds even when every bonus
// fires simultaneously.
func TestScore_NeverExceedsOne(t *testing.T) {
	s := New()
	got := s.Score(domain.Query{
		Text:   "삼성전자와 SK하이닉스와 LG전자와 현대자동차 주가 추세 비교 그리고 원인과 전망은 왜 그런지 자세히 설명해주세요 정말 긴 질문입니다 계속됩니다",
		Intent: domain.IntentComparison,
		Entities: domain.Entities{
			Companies: []string{"a", "b", "c", "d", "e", "f"},
		},
	})
	assert.LessOrEqual(t, got.Score, 1.0)
	assert.Equal(t, domain.DepthComprehensive, got.Depth)
}

// TestScore_ComparisonAndAnalysisCompositeMeetsDeepBoundary verifies the
// spec's own boundary example: a query naming multiple companies and using
// both a comparison keyword and an analysis keyword together must clear the
// 0.95 deep-path threshold.
func TestScore_ComparisonAndAnalysisCompositeMeetsDeepBoundary(t *testing.T) {
	s := New()
	got := s.Score(domain.Query{
		Text:       "삼성전자와 SK하이닉스 HBM 경쟁력 비교 분석",
		Intent:     domain.IntentComparison,
		Confidence: 0.9,
		Entities: domain.Entities{
			Companies: []string{"삼성전자", "SK하이닉스", "마이크론"},
		},
	})
	assert.GreaterOrEqual(t, got.Score, 0.95)
	assert.Contains(t, []domain.AnalysisDepth{domain.DepthDeep, domain.DepthComprehensive}, got.Depth)
}

// TestScore_ForceDeepRaisesScoreToFloor verifies force_deep floors the score
// at 0.95 even for an otherwise trivial query.
func TestScore_ForceDeepRaisesScoreToFloor(t *testing.T) {
	s := New()
	got := s.Score(domain.Query{Text: "안녕", Intent: domain.IntentGeneral, ForceDeep: true})
	assert.GreaterOrEqual(t, got.Score, 0.95)
}
