// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fasthandlers implements the C7 Fast Path templated handlers:
// news, stock, and general, each producing a sub-2s response from already
// context-engineered evidence without invoking the Deep Workflow (spec
// §4.7). Per spec §7, the Fast Path itself only fails on a
// domain.ValidationError or an Overload (an open circuit breaker); any
// other LM failure, including a soft-budget timeout, degrades to a
// partial=true report instead of propagating.
package fasthandlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kquery/fusion-engine/internal/backends/llmbackend"
	"github.com/kquery/fusion-engine/internal/domain"
	"github.com/kquery/fusion-engine/internal/format"
	"github.com/kquery/fusion-engine/internal/resilience"
)

// softBudget bounds the Fast Path's single LM call so a slow backend
// degrades to a partial answer instead of blowing the Fast Path's overall
// latency target.
const softBudget = 1500 * time.Millisecond

// urgentBudget is the tighter budget used when the query text itself signals
// urgency, so a caller who typed "지금 빨리" doesn't wait the full soft
// budget only to still receive a partial answer.
const urgentBudget = 800 * time.Millisecond

// urgentKeywords are the high-urgency Korean markers a caller's own query
// text carries, adapted from the original implementation's query-urgency
// classifier (personalization.py's "긴급도 평가").
var urgentKeywords = []string{"긴급", "급함", "빨리", "즉시", "당장"}

func isUrgent(text string) bool {
	for _, kw := range urgentKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func budgetFor(q domain.Query) time.Duration {
	if isUrgent(q.Text) {
		return urgentBudget
	}
	return softBudget
}

// maxCitations/maxGraphSamples are the Fast Path's evidence caps (spec
// §4.7: N=5 citations, K=5 graph samples).
const (
	maxCitations    = 5
	maxGraphSamples = 5
)

const partialUnavailableNotice = "일부 정보를 완전히 가져오지 못해 현재 확보된 자료만으로 답변합니다."

// Handler renders a Report from a classified Query and its context-engineered
// evidence, for one intent family.
type Handler interface {
	Handle(ctx context.Context, q domain.Query, items []domain.ContextItem) (domain.Report, error)
}

// generateOrPartial calls lm.Generate under the given budget. A
// ValidationError or an open-breaker Overload propagates (the only two
// failures the Fast Path is allowed per spec §7); every other failure,
// including the budget expiring, is absorbed into a partial=true fallback
// answer.
func generateOrPartial(ctx context.Context, lm llmbackend.LM, prompt string, budget time.Duration) (answer string, partial bool, err error) {
	budgetCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	answer, genErr := lm.Generate(budgetCtx, prompt, llmbackend.GenerationParams{})
	if genErr == nil {
		return answer, false, nil
	}

	var valErr *domain.ValidationError
	if errors.As(genErr, &valErr) {
		return "", false, genErr
	}
	if errors.Is(genErr, resilience.ErrCircuitOpen) {
		return "", false, genErr
	}

	return partialUnavailableNotice, true, nil
}

// NewsHandler renders a news-digest style report: a short synthesis
// followed by linked headlines.
type NewsHandler struct {
	lm        llmbackend.LM
	formatter *format.Formatter
}

// NewNewsHandler builds a NewsHandler.
func NewNewsHandler(lm llmbackend.LM) *NewsHandler {
	return &NewsHandler{lm: lm, formatter: format.New(maxCitations, maxGraphSamples)}
}

func (h *NewsHandler) Handle(ctx context.Context, q domain.Query, items []domain.ContextItem) (domain.Report, error) {
	var headlines []string
	for _, item := range items {
		if item.Type != domain.TypeNews {
			continue
		}
		if title, _ := item.Content["title"].(string); title != "" {
			headlines = append(headlines, title)
		}
	}

	prompt := fmt.Sprintf(
		"다음 뉴스 헤드라인을 바탕으로 사용자의 질문에 2-3문장으로 답하세요.\n질문: %s\n헤드라인:\n- %s",
		q.Text, strings.Join(headlines, "\n- "),
	)
	summary, partial, err := generateOrPartial(ctx, h.lm, prompt, budgetFor(q))
	if err != nil {
		return domain.Report{}, fmt.Errorf("fasthandlers: news summary: %w", err)
	}

	return h.formatter.FormatFast(q, summary, items, map[string]any{
		"handler":        "news",
		"headline_count": len(headlines),
		"partial":        partial,
	}), nil
}

// StockHandler renders a quote-snapshot style report.
type StockHandler struct {
	lm        llmbackend.LM
	formatter *format.Formatter
}

// NewStockHandler builds a StockHandler.
func NewStockHandler(lm llmbackend.LM) *StockHandler {
	return &StockHandler{lm: lm, formatter: format.New(maxCitations, maxGraphSamples)}
}

func (h *StockHandler) Handle(ctx context.Context, q domain.Query, items []domain.ContextItem) (domain.Report, error) {
	var snapshots []string
	for _, item := range items {
		if item.Type != domain.TypeStock {
			continue
		}
		symbol, _ := item.Content["symbol"].(string)
		last, _ := item.Content["last"].(float64)
		changePct, _ := item.Content["change_pct"].(float64)
		snapshots = append(snapshots, fmt.Sprintf("%s: %.2f (%.2f%%)", symbol, last, changePct))
	}

	prompt := fmt.Sprintf(
		"다음 시세 정보를 바탕으로 질문에 간결하게 답하세요.\n질문: %s\n시세:\n- %s",
		q.Text, strings.Join(snapshots, "\n- "),
	)
	answer, partial, err := generateOrPartial(ctx, h.lm, prompt, budgetFor(q))
	if err != nil {
		return domain.Report{}, fmt.Errorf("fasthandlers: stock summary: %w", err)
	}

	return h.formatter.FormatFast(q, answer, items, map[string]any{
		"handler":        "stock",
		"snapshot_count": len(snapshots),
		"partial":        partial,
	}), nil
}

// GeneralHandler renders a plain Q&A response from whatever context was
// retrieved, for queries that don't fit the news or stock template.
type GeneralHandler struct {
	lm        llmbackend.LM
	formatter *format.Formatter
}

// NewGeneralHandler builds a GeneralHandler.
func NewGeneralHandler(lm llmbackend.LM) *GeneralHandler {
	return &GeneralHandler{lm: lm, formatter: format.New(maxCitations, maxGraphSamples)}
}

func (h *GeneralHandler) Handle(ctx context.Context, q domain.Query, items []domain.ContextItem) (domain.Report, error) {
	var facts []string
	for _, item := range items {
		if text, ok := item.Content["summary"].(string); ok && text != "" {
			facts = append(facts, text)
		}
	}

	prompt := fmt.Sprintf("질문: %s\n참고 정보:\n- %s\n위 정보를 참고하여 답변하세요.", q.Text, strings.Join(facts, "\n- "))
	answer, partial, err := generateOrPartial(ctx, h.lm, prompt, budgetFor(q))
	if err != nil {
		return domain.Report{}, fmt.Errorf("fasthandlers: general answer: %w", err)
	}

	return h.formatter.FormatFast(q, answer, items, map[string]any{
		"handler":    "general",
		"fact_count": len(facts),
		"partial":    partial,
	}), nil
}

// Select picks the Handler for q's classified intent.
func Select(q domain.Query, news *NewsHandler, stock *StockHandler, general *GeneralHandler) Handler {
	switch q.Intent {
	case domain.IntentNews:
		return news
	case domain.IntentStock, domain.IntentTrend:
		return stock
	default:
		return general
	}
}
