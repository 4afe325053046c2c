// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"

	"github.com/kquery/fusion-engine/internal/backends/embedder"
	"github.com/kquery/fusion-engine/internal/backends/graph"
	"github.com/kquery/fusion-engine/internal/backends/llmbackend"
	"github.com/kquery/fusion-engine/internal/backends/market"
	"github.com/kquery/fusion-engine/internal/backends/search"
	"github.com/kquery/fusion-engine/internal/cache"
	"github.com/kquery/fusion-engine/internal/contextengine"
	"github.com/kquery/fusion-engine/internal/cypher"
	"github.com/kquery/fusion-engine/internal/domain"
	"github.com/kquery/fusion-engine/internal/format"
	"github.com/kquery/fusion-engine/internal/workflow"
)

// buildDeepDAG assembles the fourteen-node Deep Workflow for one query,
// wiring the three leaf fetch nodes to live backend calls.
func buildDeepDAG(
	q domain.Query,
	graphClient *graph.Client,
	searchClient *search.Client,
	marketClient *market.Client,
	embedderClient *embedder.Client,
	lmClient *llmbackend.Client,
	ctxEngine *contextengine.Engine,
	formatter *format.Formatter,
	multiCache *cache.MultiCache,
	searchAlpha float32,
) (*workflow.DAG, error) {
	fetchGraph := workflow.NewFetchGraphNode(func(ctx context.Context) ([]domain.GraphRow, error) {
		stmt, params := cypher.Build(cypher.Query{Text: q.Text, Limit: 50, LookbackDays: 365})
		return graphClient.Run(ctx, stmt, params)
	})
	fetchSearch := workflow.NewFetchSearchNode(func(ctx context.Context) ([]domain.NewsHit, error) {
		vector, _ := embedderClient.Embed(ctx, q.Text)
		return searchClient.HybridSearch(ctx, q.Text, vector, searchAlpha, 20)
	})
	fetchMarket := workflow.NewFetchMarketNode(func(ctx context.Context) ([]domain.StockSnapshot, error) {
		snapshots := make([]domain.StockSnapshot, 0, len(q.Entities.Tickers))
		for _, ticker := range q.Entities.Tickers {
			snap, err := marketClient.Snapshot(ctx, ticker)
			if err != nil {
				return snapshots, err
			}
			snapshots = append(snapshots, snap)
		}
		return snapshots, nil
	})

	analyzeQuery := workflow.NewAnalyzeQueryNode(q, lmClient, multiCache)
	engineerContext := workflow.NewEngineerContextNode(q, ctxEngine)
	planAnalysis := workflow.NewPlanAnalysisNode(q, lmClient, multiCache)
	crossValidate := workflow.NewCrossValidateContextsNode()
	generateInsights := workflow.NewGenerateInsightsNode(lmClient)
	analyzeRelationships := workflow.NewAnalyzeRelationshipsNode(lmClient)
	deepReasoning := workflow.NewDeepReasoningNode(lmClient)
	synthesizeReport := workflow.NewSynthesizeReportNode(q, lmClient)
	qualityCheck := workflow.NewQualityCheckNode()
	enhanceReport := workflow.NewEnhanceReportNode(lmClient)
	formatReport := workflow.NewFormatReportNode(q, formatter)

	return workflow.BuildDAG(
		fetchGraph,
		fetchSearch,
		fetchMarket,
		analyzeQuery,
		engineerContext,
		planAnalysis,
		crossValidate,
		generateInsights,
		analyzeRelationships,
		deepReasoning,
		synthesizeReport,
		qualityCheck,
		enhanceReport,
		formatReport,
	)
}
