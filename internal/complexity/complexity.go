// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package complexity implements the C5 complexity scorer: a scalar built
// from additive bonuses for length, analytical keywords, classifier
// confidence, and entity count, clamped to [0,1] and classified into an
// AnalysisDepth per spec §4.5/§3.
package complexity

import (
	"strings"

	"github.com/kquery/fusion-engine/internal/domain"
)

// length tiers: a longer query tends to pack in more clauses than a short
// lookup, so it earns a bonus even before any keyword match.
const (
	longQueryThreshold      = 50
	veryLongQueryThreshold  = 80
	bonusLongQuery          = 0.2
	bonusVeryLongQuery      = 0.3
)

// comparisonKeywords and analysisKeywords are the two keyword families whose
// joint presence triggers the composite bonus below; otherKeywords rounds
// out the full complex-keyword set named in spec §4.5.
var (
	comparisonKeywords = []string{"비교", "compare"}
	analysisKeywords   = []string{"분석", "analyze"}
	otherKeywords      = []string{"전망", "outlook", "트렌드", "trend", "보고서", "report", "종합", "comprehensive"}
)

const (
	bonusPerKeyword    = 0.15
	bonusKeywordCap    = 0.4
	bonusLowConfidence = 0.2
	lowConfidenceFloor = 0.6

	bonusTwoEntities   = 0.3
	bonusManyEntities  = 0.4

	bonusComposite = 0.5

	forceDeepFloor = 0.95
)

// Scorer computes ComplexityScore from a classified Query.
type Scorer struct{}

// New builds a Scorer.
func New() *Scorer { return &Scorer{} }

// Score computes the complexity of q per spec §4.5: a length-tier bonus, a
// capped per-keyword-hit bonus over the complex-analysis keyword set, a
// low-confidence-intent bonus, a tiered multi-entity bonus, and a composite
// bonus when both a comparison and an analysis keyword appear together. A
// caller-requested force_deep raises the final score to at least 0.95
// regardless of what the additive bonuses alone produced.
func (s *Scorer) Score(q domain.Query) domain.ComplexityScore {
	var total float64

	text := strings.ToLower(q.Text)
	runeLen := len([]rune(q.Text))
	switch {
	case runeLen > veryLongQueryThreshold:
		total += bonusVeryLongQuery
	case runeLen > longQueryThreshold:
		total += bonusLongQuery
	}

	keywordBonus := 0.0
	hasComparison := containsAny(text, comparisonKeywords)
	hasAnalysis := containsAny(text, analysisKeywords)
	for _, kw := range allKeywords() {
		if strings.Contains(text, kw) {
			keywordBonus += bonusPerKeyword
		}
	}
	if keywordBonus > bonusKeywordCap {
		keywordBonus = bonusKeywordCap
	}
	total += keywordBonus

	if q.Confidence < lowConfidenceFloor {
		total += bonusLowConfidence
	}

	entityCount := len(q.Entities.Companies)
	switch {
	case entityCount >= 3:
		total += bonusManyEntities
	case entityCount == 2:
		total += bonusTwoEntities
	}

	if hasComparison && hasAnalysis {
		total += bonusComposite
	}

	score := clamp01(total)
	if q.ForceDeep && score < forceDeepFloor {
		score = forceDeepFloor
	}

	return domain.ComplexityScore{
		Score: score,
		Depth: domain.ClassifyDepth(score),
	}
}

func allKeywords() []string {
	all := make([]string, 0, len(comparisonKeywords)+len(analysisKeywords)+len(otherKeywords))
	all = append(all, comparisonKeywords...)
	all = append(all, analysisKeywords...)
	all = append(all, otherKeywords...)
	return all
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
