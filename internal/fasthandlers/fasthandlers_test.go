// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fasthandlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kquery/fusion-engine/internal/backends/llmbackend"
	"github.com/kquery/fusion-engine/internal/domain"
	"github.com/kquery/fusion-engine/internal/resilience"
)

type stubLM struct {
	response   string
	err        error
	lastPrompt string
}

func (s *stubLM) Generate(_ context.Context, prompt string, _ llmbackend.GenerationParams) (string, error) {
	s.lastPrompt = prompt
	return s.response, s.err
}

// TestNewsHandler_CollectsHeadlinesAndSources verifies headlines and URLs
// from TypeNews items are surfaced as citations.
func TestNewsHandler_CollectsHeadlinesAndSources(t *testing.T) {
	lm := &stubLM{response: "요약입니다"}
	h := NewNewsHandler(lm)

	items := []domain.ContextItem{
		{Type: domain.TypeNews, Content: map[string]any{"title": "삼성전자 실적 발표", "url": "https://example.com/1"}},
		{Type: domain.TypeStock, Content: map[string]any{"symbol": "005930"}},
	}
	report, err := h.Handle(context.Background(), domain.Query{Text: "삼성전자 뉴스"}, items)

	require.NoError(t, err)
	assert.Contains(t, report.Markdown, "요약입니다")
	assert.Equal(t, false, report.Meta["partial"])
	require.Len(t, report.Sources, 1)
	assert.Equal(t, "https://example.com/1", report.Sources[0].URL)
}

// TestStockHandler_OrdinaryLMFailureDegradesToPartial verifies a generic LM
// failure (neither ValidationError nor an open breaker) never propagates as
// a raw error: the handler returns a partial=true report instead, per spec
// §7's "Fast Path itself only fails on ValidationError or Overload".
func TestStockHandler_OrdinaryLMFailureDegradesToPartial(t *testing.T) {
	lm := &stubLM{err: assert.AnError}
	h := NewStockHandler(lm)

	report, err := h.Handle(context.Background(), domain.Query{}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, report.Meta["partial"])
}

// TestGeneralHandler_OverloadPropagates verifies an open circuit breaker
// (Overload) is one of the two failures the Fast Path is allowed to return.
func TestGeneralHandler_OverloadPropagates(t *testing.T) {
	lm := &stubLM{err: resilience.ErrCircuitOpen}
	h := NewGeneralHandler(lm)

	_, err := h.Handle(context.Background(), domain.Query{}, nil)
	assert.Error(t, err)
}

// TestNewsHandler_ValidationErrorPropagates verifies a domain.ValidationError
// is the other failure the Fast Path is allowed to return.
func TestNewsHandler_ValidationErrorPropagates(t *testing.T) {
	lm := &stubLM{err: &domain.ValidationError{Field: "query", Reason: "empty"}}
	h := NewNewsHandler(lm)

	_, err := h.Handle(context.Background(), domain.Query{}, nil)
	assert.Error(t, err)
}

// TestBudgetFor_UrgentKeywordShortensBudget verifies a query carrying an
// urgency marker gets the tighter budget rather than the default soft one.
func TestBudgetFor_UrgentKeywordShortensBudget(t *testing.T) {
	assert.Equal(t, urgentBudget, budgetFor(domain.Query{Text: "지금 당장 알려주세요"}))
	assert.Equal(t, softBudget, budgetFor(domain.Query{Text: "삼성전자 실적은 어떤가요"}))
}

// TestSelect_RoutesByIntent verifies Select dispatches to the handler
// matching the query's classified intent.
func TestSelect_RoutesByIntent(t *testing.T) {
	lm := &stubLM{}
	news := NewNewsHandler(lm)
	stock := NewStockHandler(lm)
	general := NewGeneralHandler(lm)

	assert.Equal(t, Handler(news), Select(domain.Query{Intent: domain.IntentNews}, news, stock, general))
	assert.Equal(t, Handler(stock), Select(domain.Query{Intent: domain.IntentStock}, news, stock, general))
	assert.Equal(t, Handler(general), Select(domain.Query{Intent: domain.IntentGeneral}, news, stock, general))
}
