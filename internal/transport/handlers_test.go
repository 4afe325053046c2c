// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kquery/fusion-engine/internal/backends/llmbackend"
	"github.com/kquery/fusion-engine/internal/classify"
	"github.com/kquery/fusion-engine/internal/complexity"
	"github.com/kquery/fusion-engine/internal/contextengine"
	"github.com/kquery/fusion-engine/internal/domain"
	"github.com/kquery/fusion-engine/internal/fasthandlers"
	"github.com/kquery/fusion-engine/internal/fetch"
	"github.com/kquery/fusion-engine/internal/router"
	"github.com/kquery/fusion-engine/internal/workflow"
)

type stubLM struct{ response string }

func (s *stubLM) Generate(_ context.Context, _ string, _ llmbackend.GenerationParams) (string, error) {
	return s.response, nil
}

func newTestEngine() *Engine {
	lm := &stubLM{response: "답변입니다."}
	return &Engine{
		Classifier:    classify.New(),
		Scorer:        complexity.New(),
		ContextEngine: contextengine.New(contextengine.DefaultBudget),
		News:          fasthandlers.NewNewsHandler(lm),
		Stock:         fasthandlers.NewStockHandler(lm),
		General:       fasthandlers.NewGeneralHandler(lm),
		FetchRequest: func(q domain.Query) fetch.Request {
			return fetch.Request{
				Search: func(context.Context) ([]domain.NewsHit, error) {
					return []domain.NewsHit{{Title: "삼성전자 실적 발표", URL: "https://example.com/1", Score: 0.9}}, nil
				},
			}
		},
		BuildDeepDAG: func(q domain.Query) (*workflow.DAG, error) {
			return nil, assertNever{}
		},
		Breakers: func() router.BackendStates { return router.BackendStates{} },
	}
}

// assertNever is returned as an error by tests that should never reach the
// Deep Path.
type assertNever struct{}

func (assertNever) Error() string { return "deep workflow should not have been invoked" }

// TestHandleQuery_FastPathReturnsReport drives a news-intent query
// through the full gin handler and checks a 200 with a populated report.
func TestHandleQuery_FastPathReturnsReport(t *testing.T) {
	eng := newTestEngine()
	r := NewRouter(eng)

	body, _ := json.Marshal(QueryRequest{Query: "오늘 어떤 뉴스가 있었나요"})
	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, router.PathFast, resp.Path)
	assert.NotEmpty(t, resp.SessionID)
	assert.Contains(t, resp.Report.Markdown, "답변입니다.")
	assert.Equal(t, "fast_path", resp.Report.Meta["processing_method"])
	assert.Equal(t, string(domain.IntentNews), resp.Report.Meta["intent"])
	assert.Contains(t, resp.Report.Meta, "processing_time_ms")
	assert.Contains(t, resp.Report.Meta, "complexity_score")
	assert.Contains(t, resp.Report.Meta, "analysis_depth")
	assert.Contains(t, resp.Report.Meta, "graph_samples_shown")
	assert.Equal(t, false, resp.Report.Meta["partial"])
}

// TestHandleQuery_ForceDeepAndUserIDBindFromRequest verifies both fields
// reach the classified Query (force_deep routes to the Deep Path even for a
// trivially simple query; the Deep Path is stubbed to fail here so the
// request falls back to Fast, keeping the test fast-path-only).
func TestHandleQuery_ForceDeepAndUserIDBindFromRequest(t *testing.T) {
	eng := newTestEngine()
	var sawForceDeep bool
	var sawUserID string
	eng.BuildDeepDAG = func(q domain.Query) (*workflow.DAG, error) {
		sawForceDeep = q.ForceDeep
		sawUserID = q.UserID
		return nil, assertNever{}
	}
	r := NewRouter(eng)

	body, _ := json.Marshal(QueryRequest{Query: "오늘 날씨 어때요", ForceDeep: true, UserID: "u-123"})
	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, sawForceDeep)
	assert.Equal(t, "u-123", sawUserID)

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, router.PathDeep, resp.Path)
	assert.Equal(t, "deep_path_fallback_fast", resp.Report.Meta["processing_method"])
	assert.Equal(t, true, resp.Report.Meta["partial"])
}

// TestHandleQuery_RejectsMissingQueryField checks the binding validation on
// the request body.
func TestHandleQuery_RejectsMissingQueryField(t *testing.T) {
	eng := newTestEngine()
	r := NewRouter(eng)

	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestHealthCheck_ReportsOK exercises the liveness route directly.
func TestHealthCheck_ReportsOK(t *testing.T) {
	eng := newTestEngine()
	r := NewRouter(eng)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// TestFuseFetchResult_MapsEachSourceToAContextItem checks the fast-path
// fusion helper produces one item per populated backend result.
func TestFuseFetchResult_MapsEachSourceToAContextItem(t *testing.T) {
	items := fuseFetchResult(fetch.Result{
		NewsHits:    []domain.NewsHit{{Title: "a", URL: "u", Score: 0.5}},
		HasSnapshot: true,
		Snapshot:    domain.StockSnapshot{Symbol: "005930"},
	})
	require.Len(t, items, 2)
	assert.Equal(t, domain.SourceSearch, items[0].Source)
	assert.Equal(t, domain.SourceMarket, items[1].Source)
}
