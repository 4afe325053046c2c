// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package format implements the C12 Response Formatter: it renders the Fast
// Path's direct LM answer and the Deep Path's already-synthesized markdown
// into the same domain.Report shape, with citations and graph samples
// pulled from the context items that grounded the answer and capped per
// spec §4.7/§4.9 (N=5 citations, K=5 graph samples by default).
package format

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kquery/fusion-engine/internal/domain"
)

// Formatter renders analysis results into a final domain.Report.
type Formatter struct {
	maxSources      int
	maxGraphSamples int
}

// New builds a Formatter. maxSources caps how many citations are attached to
// a Report and maxGraphSamples caps how many graph rows are; 0 means
// unlimited for either.
func New(maxSources, maxGraphSamples int) *Formatter {
	return &Formatter{maxSources: maxSources, maxGraphSamples: maxGraphSamples}
}

// FormatFast renders the Fast Path's single LM answer. meta is the caller's
// own bookkeeping (handler name, partial flag, timings); FormatFast adds
// only the evidence-derived fields (sources, graph samples).
func (f *Formatter) FormatFast(q domain.Query, answer string, items []domain.ContextItem, meta map[string]any) domain.Report {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", q.Text)
	sb.WriteString(answer)
	sb.WriteString("\n")

	return domain.Report{
		Markdown:     sb.String(),
		Sources:      f.citations(items),
		GraphSamples: f.graphSamples(items),
		Meta:         meta,
	}
}

// FormatDeep wraps the Deep Workflow's LM-synthesized markdown (from
// synthesize_report, possibly rewritten by enhance_report) with the
// evidence bundle: citations, graph samples, and the counts/score the
// quality gate produced. It performs no markdown construction of its own —
// section structure is the LM's responsibility per spec §4.11.
func (f *Formatter) FormatDeep(
	q domain.Query,
	items []domain.ContextItem,
	insights []domain.Insight,
	relationships []domain.Relationship,
	markdown string,
	qualityScore float64,
) domain.Report {
	return domain.Report{
		Markdown:     markdown,
		Sources:      f.citations(items),
		GraphSamples: f.graphSamples(items),
		Meta: map[string]any{
			"intent":         string(q.Intent),
			"insight_count":  len(insights),
			"relation_count": len(relationships),
			"context_items":  len(items),
			"quality_score":  qualityScore,
		},
	}
}

// citations extracts a deduplicated, relevance-ordered citation list from
// news-sourced context items.
func (f *Formatter) citations(items []domain.ContextItem) []domain.Citation {
	sorted := append([]domain.ContextItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Relevance > sorted[j].Relevance })

	seen := map[string]bool{}
	var out []domain.Citation
	for _, item := range sorted {
		if item.Type != domain.TypeNews {
			continue
		}
		url, _ := item.Content["url"].(string)
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true

		title, _ := item.Content["title"].(string)
		c := domain.Citation{URL: url, Title: title}
		if item.Timestamp != nil {
			c.PublishedAt = *item.Timestamp
		}
		out = append(out, c)

		if f.maxSources > 0 && len(out) >= f.maxSources {
			break
		}
	}
	return out
}

// graphSamples extracts the raw graph rows carried by graph-sourced context
// items, giving the report a small amount of structured evidence alongside
// the narrative markdown, capped at maxGraphSamples.
func (f *Formatter) graphSamples(items []domain.ContextItem) []domain.GraphRow {
	var out []domain.GraphRow
	for _, item := range items {
		if item.Source != domain.SourceGraph {
			continue
		}
		row := domain.GraphRow{NodeProperties: item.Content}
		if item.Timestamp != nil {
			row.Timestamp = *item.Timestamp
		}
		out = append(out, row)

		if f.maxGraphSamples > 0 && len(out) >= f.maxGraphSamples {
			break
		}
	}
	return out
}
