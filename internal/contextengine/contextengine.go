// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package contextengine implements the C10 six-phase context engineering
// pipeline: relevance cascade, semantic filter + diversity, deduplication,
// metadata-enhanced reranking, sequencing, and pruning (spec §4.10).
package contextengine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kquery/fusion-engine/internal/domain"
)

// Budget bounds the pipeline's output, the token/item ceiling a downstream
// prompt or report can actually use.
type Budget struct {
	MaxItems int
}

// DefaultBudget matches the Fast Path's typical context window.
var DefaultBudget = Budget{MaxItems: 12}

// Engine runs the six-phase pipeline over raw ContextItems.
type Engine struct {
	budget Budget
}

// New builds an Engine with budget. A zero-value Budget falls back to
// DefaultBudget.
func New(budget Budget) *Engine {
	if budget.MaxItems <= 0 {
		budget = DefaultBudget
	}
	return &Engine{budget: budget}
}

// Run executes all six phases in order and returns the final, pruned,
// sequenced item list.
func (e *Engine) Run(query domain.Query, items []domain.ContextItem) []domain.ContextItem {
	items = relevanceCascade(query, items)
	items = semanticFilterAndDiversify(items)
	items = dedup(items)
	items = rerank(items)
	items = sequence(items)
	items = e.prune(items)
	return items
}

// Phase 1: relevance cascade. Drops items below a minimum relevance floor,
// so low-signal retrieval noise never reaches the more expensive later
// phases.
const minRelevance = 0.15

func relevanceCascade(query domain.Query, items []domain.ContextItem) []domain.ContextItem {
	out := make([]domain.ContextItem, 0, len(items))
	for _, item := range items {
		item.ClampConfidence()
		if item.Relevance < minRelevance {
			continue
		}
		out = append(out, item)
	}
	return out
}

// Phase 2: semantic filter + diversity. Caps how many items any one source
// contributes, so one backend's volume can't crowd out the others.
const maxPerSource = 6

func semanticFilterAndDiversify(items []domain.ContextItem) []domain.ContextItem {
	perSource := map[domain.ContextSource]int{}
	out := make([]domain.ContextItem, 0, len(items))
	for _, item := range items {
		if perSource[item.Source] >= maxPerSource {
			continue
		}
		perSource[item.Source]++
		out = append(out, item)
	}
	return out
}

// Phase 3: dedup. Collapses items whose content renders to the same
// normalized key, keeping the highest-relevance instance.
func dedup(items []domain.ContextItem) []domain.ContextItem {
	best := map[string]domain.ContextItem{}
	order := make([]string, 0, len(items))

	for _, item := range items {
		key := dedupKey(item)
		existing, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = item
			continue
		}
		if item.Relevance > existing.Relevance {
			best[key] = item
		}
	}

	out := make([]domain.ContextItem, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

func dedupKey(item domain.ContextItem) string {
	var sb strings.Builder
	sb.WriteString(string(item.Source))
	sb.WriteString("|")
	sb.WriteString(string(item.Type))
	sb.WriteString("|")
	for _, k := range sortedKeys(item.Content) {
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(toComparable(item.Content[k]))
		sb.WriteString(";")
	}
	return sb.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toComparable(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// Phase 4: metadata-enhanced reranking. Decomposed additive weights per
// spec §4.10 (30/15/8/15/10/5/10/20), summing to 113 of "possible" signal so
// the combined score is only meaningful in relative (ranking) terms, not as
// an absolute probability — tests assert monotonicity, not exact values
// (spec §9 open question).
const (
	weightBaseRelevance  = 0.30
	weightConfidence     = 0.15
	weightRecency        = 0.08
	weightQuality        = 0.15
	weightFeatured       = 0.10
	weightSynced         = 0.05
	weightGraphDegree    = 0.10
	weightOntologyReady  = 0.20
)

func rerank(items []domain.ContextItem) []domain.ContextItem {
	scored := make([]domain.ContextItem, len(items))
	copy(scored, items)

	sort.SliceStable(scored, func(i, j int) bool {
		return rerankScore(scored[i]) > rerankScore(scored[j])
	})
	return scored
}

func rerankScore(item domain.ContextItem) float64 {
	score := item.Relevance*weightBaseRelevance + item.Confidence*weightConfidence

	if item.Timestamp != nil {
		score += weightRecency * recencyFactor(*item.Timestamp)
	}

	if item.QualityScore != nil {
		score += *item.QualityScore * weightQuality
	} else {
		// Fallback: approximate quality from confidence when the upstream
		// backend didn't populate it, per spec §3's optional-field
		// invariant.
		score += item.Confidence * weightQuality
	}
	if item.IsFeatured != nil && *item.IsFeatured {
		score += weightFeatured
	}
	if item.Synced != nil && *item.Synced {
		score += weightSynced
	}
	if item.GraphDegree != nil {
		score += weightGraphDegree * normalizedDegree(*item.GraphDegree)
	}
	if item.Ontology == domain.OntologyCompleted {
		score += weightOntologyReady
	}

	return score
}

// recencyFactor decays linearly from 1 (published now) to 0 (published
// recencyHorizon or longer ago).
const recencyHorizon = 14 * 24 * time.Hour

func recencyFactor(published time.Time) float64 {
	age := time.Since(published)
	if age <= 0 {
		return 1
	}
	if age >= recencyHorizon {
		return 0
	}
	return 1 - float64(age)/float64(recencyHorizon)
}

func normalizedDegree(degree int) float64 {
	const cap = 20
	if degree <= 0 {
		return 0
	}
	if degree >= cap {
		return 1
	}
	return float64(degree) / float64(cap)
}

// Phase 5: sequencing. Groups items by Type so the Response Formatter and
// the Deep Workflow render related evidence together, preserving the
// relative rank ordering established by rerank within each group.
var typeOrder = []domain.ContextType{
	domain.TypeNews,
	domain.TypeEvent,
	domain.TypeCompany,
	domain.TypeFinancial,
	domain.TypeStock,
	domain.TypeAnalysis,
}

func sequence(items []domain.ContextItem) []domain.ContextItem {
	rank := map[domain.ContextType]int{}
	for i, t := range typeOrder {
		rank[t] = i
	}

	out := make([]domain.ContextItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		ri, oki := rank[out[i].Type]
		rj, okj := rank[out[j].Type]
		if !oki {
			ri = len(typeOrder)
		}
		if !okj {
			rj = len(typeOrder)
		}
		return ri < rj
	})
	return out
}

// Phase 6: pruning. Enforces the item budget, keeping the prefix (already
// ranked-then-sequenced) and dropping the rest.
func (e *Engine) prune(items []domain.ContextItem) []domain.ContextItem {
	if len(items) <= e.budget.MaxItems {
		return items
	}
	return items[:e.budget.MaxItems]
}
