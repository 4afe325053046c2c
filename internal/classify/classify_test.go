// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kquery/fusion-engine/internal/domain"
)

// TestClassify_NewsKeyword verifies a query containing an unambiguous news
// keyword is classified as IntentNews with nonzero confidence.
func TestClassify_NewsKeyword(t *testing.T) {
	c := New()
	intent, confidence := c.Classify("삼성전자 최신 뉴스 알려줘")
	assert.Equal(t, domain.IntentNews, intent)
	assert.Greater(t, confidence, 0.0)
}

// TestClassify_StockKeyword verifies a query about a stock price is
// classified as IntentStock.
func TestClassify_StockKeyword(t *testing.T) {
	c := New()
	intent, _ := c.Classify("오늘 주가 얼마야")
	assert.Equal(t, domain.IntentStock, intent)
}

// TestClassify_UnmatchedQueryFallsBackToGeneral verifies that a query
// matching no bundle never errors and instead returns IntentGeneral with
// zero confidence.
func TestClassify_UnmatchedQueryFallsBackToGeneral(t *testing.T) {
	c := New()
	intent, confidence := c.Classify("안녕하세요")
	assert.Equal(t, domain.IntentGeneral, intent)
	assert.Equal(t, 0.0, confidence)
}

// TestClassify_ComparisonPattern verifies a "A vs B" query, whose only
// comparison signal is the "vs" keyword, classifies as IntentComparison.
func TestClassify_ComparisonPattern(t *testing.T) {
	c := New()
	intent, _ := c.Classify("Samsung vs SK Hynix")
	assert.Equal(t, domain.IntentComparison, intent)
}
