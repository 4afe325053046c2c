// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package domain holds the value types shared across the query routing and
// retrieval fusion engine: Query, ContextItem, GraphRow, StockSnapshot,
// AnalysisPlan, Insight, Relationship, DeepReasoning, and Report. Breaker
// state and cache entries are defined in internal/resilience and
// internal/cache.
//
// # Thread Safety
//
// All types in this package are plain value types. None are safe to mutate
// concurrently without external synchronization; callers that need shared
// mutable state (WorkflowState, BreakerState) use the wrapper types in
// internal/workflow and internal/resilience instead.
package domain

import "time"

// Intent is the closed classification set produced by the intent classifier.
type Intent string

const (
	IntentNews       Intent = "news_inquiry"
	IntentStock      Intent = "stock_analysis"
	IntentComparison Intent = "comparison"
	IntentTrend      Intent = "trend"
	IntentGeneral    Intent = "general_qa"
	IntentUnknown    Intent = "unknown"
)

// AnalysisDepth classifies a ComplexityScore into a routing tier.
type AnalysisDepth string

const (
	DepthShallow       AnalysisDepth = "shallow"
	DepthStandard      AnalysisDepth = "standard"
	DepthDeep          AnalysisDepth = "deep"
	DepthComprehensive AnalysisDepth = "comprehensive"
)

// Entities captures the extracted company/product/sector/ticker mentions in
// a query. Each field is a set (no duplicates), represented as a slice that
// callers must not rely on for ordering guarantees beyond first-seen order.
type Entities struct {
	Companies []string `json:"companies"`
	Products  []string `json:"products"`
	Sectors   []string `json:"sectors"`
	Tickers   []string `json:"tickers"`
}

// Query is the parsed, classified representation of the original request
// text. Keywords is an ordered sequence. Intent and Confidence are set from
// the classifier (internal/classify); the classifier does not extract
// Entities, so Entities stays empty unless a caller fills it. ForceDeep is the caller's explicit
// request to skip the Fast Path regardless of the computed complexity
// score; UserID is opaque and carried through only for logging/metrics.
type Query struct {
	Text       string
	Keywords   []string
	Entities   Entities
	Intent     Intent
	Confidence float64
	ForceDeep  bool
	UserID     string
}

// ComplexityScore is the scalar output of the complexity scorer (internal/complexity)
// plus its depth classification.
type ComplexityScore struct {
	Score float64
	Depth AnalysisDepth
}

// ClassifyDepth derives the AnalysisDepth for a score using the thresholds in
// spec §3: <0.7 shallow, <0.85 standard, <0.9 deep, >=0.9 comprehensive.
func ClassifyDepth(score float64) AnalysisDepth {
	switch {
	case score < 0.7:
		return DepthShallow
	case score < 0.85:
		return DepthStandard
	case score < 0.9:
		return DepthDeep
	default:
		return DepthComprehensive
	}
}

// ContextSource identifies which backend produced a ContextItem.
type ContextSource string

const (
	SourceGraph  ContextSource = "graph"
	SourceSearch ContextSource = "search"
	SourceMarket ContextSource = "market"
)

// ContextType classifies the kind of evidence a ContextItem carries.
type ContextType string

const (
	TypeNews      ContextType = "news"
	TypeCompany   ContextType = "company"
	TypeEvent     ContextType = "event"
	TypeFinancial ContextType = "financial"
	TypeAnalysis  ContextType = "analysis"
	TypeStock     ContextType = "stock"
)

// OntologyStatus reflects the graph ingestion pipeline's processing state for
// an item, when the upstream provides it.
type OntologyStatus string

const (
	OntologyPending    OntologyStatus = "pending"
	OntologyProcessing OntologyStatus = "processing"
	OntologyCompleted  OntologyStatus = "completed"
	OntologyFailed     OntologyStatus = "failed"
	OntologyUnknown    OntologyStatus = "unknown"
)

// ContextItem is the unit of retrieved evidence threaded through Context
// Engineering (internal/contextengine) and ultimately cited in the Report.
//
// Hybrid-quality fields are optional: when the upstream backend does not
// populate them, the Context Engineer computes a local fallback rather than
// treating their absence as an error (spec §3 invariant, §9 open question).
type ContextItem struct {
	Source    ContextSource
	Type      ContextType
	Content   map[string]any
	Timestamp *time.Time
	Confidence float64
	Relevance  float64

	QualityScore  *float64
	IsFeatured    *bool
	Synced        *bool
	Ontology      OntologyStatus
	GraphDegree   *int
	EventChainID  *string
}

// ClampConfidence clamps c.Confidence into [0,1] in place, per the spec §3
// invariant that source/bonus weight multiplication must not escape the
// valid probability range.
func (c *ContextItem) ClampConfidence() {
	c.Confidence = clamp01(c.Confidence)
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

// GraphRow is one projected row from the Graph backend: {n, labels, ts} per
// the graph query contract in spec §6.
type GraphRow struct {
	NodeProperties map[string]any
	Labels         []string
	Timestamp      time.Time
}

// NewsHit is one hit from the hybrid search backend.
type NewsHit struct {
	ID          string
	Title       string
	URL         string
	Summary     string
	PublishedAt time.Time
	Score       float64
	Highlights  []string
}

// StockSnapshot is a point-in-time quote from the Market backend.
type StockSnapshot struct {
	Symbol     string
	Last       float64
	Change     float64
	ChangePct  float64
	Volume     int64
	AsOf       time.Time
}

// QueryAnalysis is the analyze_query node's output: the LM's own read of
// what the query is asking for, ahead of any retrieval. Cached by query
// fingerprint since the analysis depends only on the text, not on time.
type QueryAnalysis struct {
	Keywords             []string
	Entities             []string
	Complexity           float64
	AnalysisRequirements []string
	FocusAreas           []string
	ExpectedOutputType   string
}

// AnalysisApproach enumerates the deep-workflow planning strategies.
type AnalysisApproach string

const (
	ApproachComparative AnalysisApproach = "comparative"
	ApproachCausal      AnalysisApproach = "causal"
	ApproachDescriptive AnalysisApproach = "descriptive"
	ApproachForecast    AnalysisApproach = "forecast"
)

// AnalysisPlan is the deep-path-only plan produced by the plan_analysis node.
type AnalysisPlan struct {
	PrimaryFocus        []string
	ComparisonAxes       []string
	RequiredDataTypes    []ContextType
	KeyQuestions         []string
	Approach             AnalysisApproach
}

// InsightType classifies an Insight's analytical character.
type InsightType string

const (
	InsightQuantitative InsightType = "quantitative"
	InsightQualitative  InsightType = "qualitative"
	InsightTemporal     InsightType = "temporal"
	InsightComparative  InsightType = "comparative"
)

// Insight is one atomic finding produced by generate_insights.
type Insight struct {
	Title        string
	Type         InsightType
	Finding      string
	Evidence     []string
	Significance string
	Confidence   float64
}

// RelationshipKind classifies the nature of an entity relationship.
type RelationshipKind string

const (
	RelationshipNewsEntity      RelationshipKind = "news-entity"
	RelationshipFinancialNews   RelationshipKind = "financial-news"
	RelationshipEventMarket     RelationshipKind = "event-market"
	RelationshipSupplyChain     RelationshipKind = "supply-chain"
	RelationshipCompetitive     RelationshipKind = "competitive"
)

// ImpactLevel is a coarse severity/importance rating.
type ImpactLevel string

const (
	ImpactHigh   ImpactLevel = "high"
	ImpactMedium ImpactLevel = "medium"
	ImpactLow    ImpactLevel = "low"
)

// Relationship is one entity-to-entity connection produced by
// analyze_relationships.
type Relationship struct {
	Kind        RelationshipKind
	Entities    []string
	Description string
	Impact      ImpactLevel
	Implication string
}

// Scenario is one what-if branch inside DeepReasoning.
type Scenario struct {
	Scenario    string
	Probability string
	Impact      string
}

// DeepReasoning is the four-part why/how/what-if/so-what structure produced
// by the deep_reasoning node.
type DeepReasoning struct {
	Why struct {
		Causes   []string
		Analysis string
	}
	How struct {
		Mechanisms []string
	}
	WhatIf struct {
		Scenarios []Scenario
	} `json:"what_if"`
	SoWhat struct {
		InvestorImplications string `json:"investor_implications"`
		Actionable           []string
	} `json:"so_what"`
}

// IsEmpty reports whether none of the four sections carry content, which the
// quality_check node and the JSON-recovery fallback in deep_reasoning use to
// detect an unusable structure (spec §4.11).
func (d DeepReasoning) IsEmpty() bool {
	return len(d.Why.Causes) == 0 && d.Why.Analysis == "" &&
		len(d.How.Mechanisms) == 0 &&
		len(d.WhatIf.Scenarios) == 0 &&
		d.SoWhat.InvestorImplications == "" && len(d.SoWhat.Actionable) == 0
}

// Citation is one source reference rendered by the Response Formatter.
type Citation struct {
	URL         string
	Title       string
	PublishedAt time.Time
}

// Report is the final rendered answer: Markdown plus its supporting evidence.
type Report struct {
	Markdown     string
	Sources      []Citation
	GraphSamples []GraphRow
	Meta         map[string]any
}
