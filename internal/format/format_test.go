// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kquery/fusion-engine/internal/domain"
)

func newsItem(url, title string, relevance float64, ts time.Time) domain.ContextItem {
	return domain.ContextItem{
		Source:    domain.SourceSearch,
		Type:      domain.TypeNews,
		Content:   map[string]any{"url": url, "title": title},
		Timestamp: &ts,
		Relevance: relevance,
	}
}

func graphItem(ts time.Time) domain.ContextItem {
	return domain.ContextItem{
		Source:    domain.SourceGraph,
		Type:      domain.TypeCompany,
		Content:   map[string]any{"name": "삼성전자"},
		Timestamp: &ts,
	}
}

// TestFormatFast_IncludesAnswerAndCitations checks the Fast Path renders the
// LM answer verbatim and attaches citations from the news items it was given.
func TestFormatFast_IncludesAnswerAndCitations(t *testing.T) {
	f := New(5, 5)
	items := []domain.ContextItem{
		newsItem("https://news.example/a", "기사 A", 0.9, time.Now()),
	}

	report := f.FormatFast(domain.Query{Text: "삼성전자 주가는?"}, "삼성전자 주가는 안정적입니다.", items, map[string]any{"handler": "stock"})

	assert.Contains(t, report.Markdown, "삼성전자 주가는 안정적입니다.")
	require.Len(t, report.Sources, 1)
	assert.Equal(t, "기사 A", report.Sources[0].Title)
}

// TestCitations_DedupesByURLAndOrdersByRelevance verifies duplicate URLs
// collapse to one citation and the surviving order follows relevance.
func TestCitations_DedupesByURLAndOrdersByRelevance(t *testing.T) {
	f := New(0, 0)
	now := time.Now()
	items := []domain.ContextItem{
		newsItem("https://news.example/low", "낮은 관련성", 0.2, now),
		newsItem("https://news.example/high", "높은 관련성", 0.9, now),
		newsItem("https://news.example/high", "중복", 0.9, now),
	}

	cites := f.citations(items)

	require.Len(t, cites, 2)
	assert.Equal(t, "높은 관련성", cites[0].Title)
	assert.Equal(t, "낮은 관련성", cites[1].Title)
}

// TestCitations_CapsAtMaxSources confirms the configured cap is respected.
func TestCitations_CapsAtMaxSources(t *testing.T) {
	f := New(1, 0)
	now := time.Now()
	items := []domain.ContextItem{
		newsItem("https://news.example/1", "one", 0.9, now),
		newsItem("https://news.example/2", "two", 0.8, now),
	}

	cites := f.citations(items)
	assert.Len(t, cites, 1)
}

// TestGraphSamples_CapsAtMaxGraphSamples confirms the graph-sample cap is
// respected independently of the citation cap.
func TestGraphSamples_CapsAtMaxGraphSamples(t *testing.T) {
	f := New(0, 1)
	now := time.Now()
	items := []domain.ContextItem{graphItem(now), graphItem(now)}

	samples := f.graphSamples(items)
	assert.Len(t, samples, 1)
}

// TestFormatDeep_WrapsSynthesizedMarkdownWithEvidence checks FormatDeep
// passes the already-synthesized markdown through unchanged while attaching
// citations, graph samples, and the quality score into Meta.
func TestFormatDeep_WrapsSynthesizedMarkdownWithEvidence(t *testing.T) {
	f := New(5, 5)
	q := domain.Query{Text: "삼성전자와 SK하이닉스 비교", Intent: domain.IntentComparison}
	insights := []domain.Insight{{Title: "매출 성장", Finding: "매출이 증가했습니다."}}
	relationships := []domain.Relationship{{Kind: domain.RelationshipCompetitive, Entities: []string{"삼성전자", "SK하이닉스"}}}
	markdown := "## Executive Summary\n\n내용"

	report := f.FormatDeep(q, nil, insights, relationships, markdown, 0.72)

	assert.Equal(t, markdown, report.Markdown)
	assert.Equal(t, "comparison", report.Meta["intent"])
	assert.Equal(t, 1, report.Meta["insight_count"])
	assert.Equal(t, 1, report.Meta["relation_count"])
	assert.Equal(t, 0.72, report.Meta["quality_score"])
}
