// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package transport implements the engine's HTTP surface: the query
// endpoint (Fast Path / Deep Path dispatch), a health check, and metrics
// exposition, wired with the same gin + otelgin + slog stack the teacher
// uses for its own service entrypoints.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kquery/fusion-engine/internal/cache"
	"github.com/kquery/fusion-engine/internal/classify"
	"github.com/kquery/fusion-engine/internal/complexity"
	"github.com/kquery/fusion-engine/internal/contextengine"
	"github.com/kquery/fusion-engine/internal/domain"
	"github.com/kquery/fusion-engine/internal/fasthandlers"
	"github.com/kquery/fusion-engine/internal/fetch"
	"github.com/kquery/fusion-engine/internal/observability"
	"github.com/kquery/fusion-engine/internal/router"
	"github.com/kquery/fusion-engine/internal/workflow"
)

var tracer = otel.Tracer("fusion-engine.transport")

// QueryRequest is the POST /v1/query request body. ForceDeep lets a caller
// skip the complexity gate and force the Deep Path regardless of the
// computed score (spec §4.6); UserID is opaque and carried through only for
// logging/metrics.
type QueryRequest struct {
	Query     string `json:"query" binding:"required"`
	SessionID string `json:"session_id,omitempty"`
	ForceDeep bool   `json:"force_deep,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// QueryResponse is the POST /v1/query response body.
type QueryResponse struct {
	SessionID string        `json:"session_id"`
	Report    domain.Report `json:"report"`
	Path      router.Path   `json:"path"`
	Intent    domain.Intent `json:"intent"`
}

// Engine bundles everything the query handler needs to classify, score,
// route, and answer a request on either path.
type Engine struct {
	Classifier    *classify.Classifier
	Scorer        *complexity.Scorer
	ContextEngine *contextengine.Engine
	News          *fasthandlers.NewsHandler
	Stock         *fasthandlers.StockHandler
	General       *fasthandlers.GeneralHandler

	// FetchRequest builds the per-backend callers for a classified query
	// (a news query skips Market, a stock query skips Search, etc).
	FetchRequest func(q domain.Query) fetch.Request

	// BuildDeepDAG assembles the fourteen-node Deep Workflow DAG for a query.
	BuildDeepDAG func(q domain.Query) (*workflow.DAG, error)

	// Breakers reports the current breaker state of each backend, feeding
	// the degradation gauge published on every request.
	Breakers func() router.BackendStates

	// Cache backs the /v1/cache admin endpoints. Nil disables them.
	Cache *cache.MultiCache
}

// HandleQuery is the POST /v1/query handler: classify, score, route, answer.
func HandleQuery(eng *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleQuery")
		defer span.End()

		start := time.Now()
		var req QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = uuid.New().String()
		}
		span.SetAttributes(attribute.String("session_id", sessionID))

		intent, confidence := eng.Classifier.Classify(req.Query)
		query := domain.Query{
			Text:       req.Query,
			Intent:     intent,
			Confidence: confidence,
			ForceDeep:  req.ForceDeep,
			UserID:     req.UserID,
		}
		score := eng.Scorer.Score(query)
		decision := router.Route(query, score)
		span.SetAttributes(attribute.String("route.path", string(decision.Path)), attribute.String("route.intent", string(intent)))

		slog.Info("routed query", "session_id", sessionID, "intent", intent, "path", decision.Path, "reason", decision.Reason)
		observability.RecordRoutingDecision(string(decision.Path), string(intent))
		if eng.Breakers != nil {
			observability.SetDegradationLevel(degradationToInt(router.Degradation(eng.Breakers())))
		}

		var report domain.Report
		var err error
		processingMethod := "fast_path"

		switch decision.Path {
		case router.PathDeep:
			processingMethod = "deep_path"
			deepCtx, cancel := context.WithTimeout(ctx, depthTimeout(score.Depth))
			report, err = runDeepWorkflow(deepCtx, eng, query, sessionID)
			cancel()
			if err != nil {
				// Deep Path failures fall back to the intent-matched Fast
				// Handler rather than a raw error: a degraded answer beats
				// none (spec §7/§8 invariant 1).
				slog.Warn("deep workflow failed, falling back to fast path", "session_id", sessionID, "error", err)
				processingMethod = "deep_path_fallback_fast"
				report, err = runFastPath(ctx, eng, query)
				if err == nil {
					if report.Meta == nil {
						report.Meta = map[string]any{}
					}
					report.Meta["partial"] = true
				}
			}
		default:
			report, err = runFastPath(ctx, eng, query)
		}

		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			observability.RecordRequest(string(decision.Path), status, time.Since(start).Seconds())
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "session_id": sessionID})
			return
		}

		applyResponseMeta(&report, time.Since(start), intent, confidence, score, processingMethod)

		observability.RecordRequest(string(decision.Path), status, time.Since(start).Seconds())
		c.JSON(http.StatusOK, QueryResponse{
			SessionID: sessionID,
			Report:    report,
			Path:      decision.Path,
			Intent:    intent,
		})
	}
}

// depthTimeout bounds the Deep Workflow's total execution time by the
// complexity depth it was routed at, per spec §4.11: 60s/90s/120s/180s for
// shallow/standard/deep/comprehensive respectively. A shallow-scored query
// reaches the Deep Path only through a deep-trigger keyword or the
// comparison intent (force_deep lifts the score to the comprehensive tier).
func depthTimeout(depth domain.AnalysisDepth) time.Duration {
	switch depth {
	case domain.DepthShallow:
		return 60 * time.Second
	case domain.DepthStandard:
		return 90 * time.Second
	case domain.DepthDeep:
		return 120 * time.Second
	default:
		return 180 * time.Second
	}
}

// applyResponseMeta fills in the meta fields every response must carry
// regardless of which path produced it, without overwriting fields a
// formatter already populated (spec §8).
func applyResponseMeta(report *domain.Report, elapsed time.Duration, intent domain.Intent, confidence float64, score domain.ComplexityScore, method string) {
	if report.Meta == nil {
		report.Meta = map[string]any{}
	}
	report.Meta["processing_time_ms"] = elapsed.Milliseconds()
	report.Meta["intent"] = string(intent)
	report.Meta["confidence"] = confidence
	report.Meta["complexity_score"] = score.Score
	report.Meta["analysis_depth"] = string(score.Depth)
	report.Meta["processing_method"] = method
	report.Meta["graph_samples_shown"] = len(report.GraphSamples)
	if _, ok := report.Meta["quality_score"]; !ok {
		report.Meta["quality_score"] = 1.0
	}
	if _, ok := report.Meta["partial"]; !ok {
		report.Meta["partial"] = false
	}
}

func runFastPath(ctx context.Context, eng *Engine, q domain.Query) (domain.Report, error) {
	result := fetch.Run(ctx, eng.FetchRequest(q))
	items := eng.ContextEngine.Run(q, fuseFetchResult(result))
	handler := fasthandlers.Select(q, eng.News, eng.Stock, eng.General)
	return handler.Handle(ctx, q, items)
}

func runDeepWorkflow(ctx context.Context, eng *Engine, q domain.Query, sessionID string) (domain.Report, error) {
	dag, err := eng.BuildDeepDAG(q)
	if err != nil {
		return domain.Report{}, fmt.Errorf("transport: build deep workflow: %w", err)
	}
	exec := workflow.NewExecutor(dag)
	state := workflow.NewState(sessionID)
	result := exec.Run(ctx, state, workflow.NodeFormatReport)
	if !result.Success {
		return domain.Report{}, fmt.Errorf("transport: deep workflow failed at %s: %s", result.FailedNode, result.Error)
	}
	report, ok := result.Output.(domain.Report)
	if !ok {
		return domain.Report{}, fmt.Errorf("transport: deep workflow terminal output was not a Report")
	}
	return report, nil
}

// fuseFetchResult turns the parallel fetcher's raw backend output into the
// context item shape the context engine operates on, mirroring the fusion
// done by the Deep Workflow's engineer_context node for the three sources.
func fuseFetchResult(result fetch.Result) []domain.ContextItem {
	var items []domain.ContextItem

	for _, row := range result.GraphRows {
		ts := row.Timestamp
		items = append(items, domain.ContextItem{
			Source:     domain.SourceGraph,
			Type:       domain.TypeCompany,
			Content:    row.NodeProperties,
			Timestamp:  &ts,
			Relevance:  0.6,
			Confidence: 0.6,
		})
	}
	for _, hit := range result.NewsHits {
		ts := hit.PublishedAt
		items = append(items, domain.ContextItem{
			Source: domain.SourceSearch,
			Type:   domain.TypeNews,
			Content: map[string]any{
				"title":   hit.Title,
				"url":     hit.URL,
				"summary": hit.Summary,
			},
			Timestamp:  &ts,
			Relevance:  hit.Score,
			Confidence: hit.Score,
		})
	}
	if result.HasSnapshot {
		ts := result.Snapshot.AsOf
		items = append(items, domain.ContextItem{
			Source: domain.SourceMarket,
			Type:   domain.TypeStock,
			Content: map[string]any{
				"symbol":     result.Snapshot.Symbol,
				"last":       result.Snapshot.Last,
				"change_pct": result.Snapshot.ChangePct,
			},
			Timestamp:  &ts,
			Relevance:  0.7,
			Confidence: 0.9,
		})
	}

	return items
}

func degradationToInt(level router.DegradationLevel) int {
	switch level {
	case router.DegradationFull:
		return 0
	case router.DegradationDegraded:
		return 1
	case router.DegradationMinimal:
		return 2
	default:
		return 3
	}
}

// HealthCheck reports liveness; readiness concerns (backend breaker states)
// are surfaced through the circuit_state gauges on /metrics instead.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
