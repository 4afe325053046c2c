// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package search implements the C1 Search adapter: hybrid lexical+vector
// retrieval over the news corpus, fusing BM25 and kNN scores via Weaviate's
// native hybrid query rather than running two separate queries and merging
// client-side (spec §4.1).
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/kquery/fusion-engine/internal/domain"
)

// ClassName is the Weaviate class holding ingested news articles.
const ClassName = "NewsArticle"

// Client is the C1 Search adapter.
type Client struct {
	weaviate *weaviate.Client
	class    string
}

// NewClient wraps an already-constructed weaviate.Client. Connection setup,
// auth, and schema lifecycle are out of this package's scope (spec §1).
func NewClient(wc *weaviate.Client) *Client {
	return &Client{weaviate: wc, class: ClassName}
}

// HybridSearch runs a fused BM25+kNN query for query, optionally supplying
// an explicit vector (from internal/backends/embedder) to avoid relying on
// Weaviate's own vectorizer module. alpha in [0,1] weights vector search
// against keyword search (0 = pure BM25, 1 = pure vector), matching
// Weaviate's own hybrid semantics.
func (c *Client) HybridSearch(ctx context.Context, query string, vector []float32, alpha float32, limit int) ([]domain.NewsHit, error) {
	hybrid := c.weaviate.GraphQL().HybridArgumentBuilder().
		WithQuery(query).
		WithAlpha(alpha)
	if len(vector) > 0 {
		hybrid = hybrid.WithVector(vector)
	}

	fields := []graphql.Field{
		{Name: "title"},
		{Name: "url"},
		{Name: "summary"},
		{Name: "publishedAt"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "score"},
		}},
	}

	resp, err := c.weaviate.GraphQL().Get().
		WithClassName(c.class).
		WithHybrid(hybrid).
		WithFields(fields...).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("search: hybrid query: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("search: graphql error: %s", resp.Errors[0].Message)
	}

	return parseHits(resp, c.class)
}

type additional struct {
	ID    string `json:"id"`
	Score string `json:"score"`
}

type articleRecord struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Summary     string     `json:"summary"`
	PublishedAt string     `json:"publishedAt"`
	Additional  additional `json:"_additional"`
}

// parseHits re-marshals the GraphQL Data payload into typed records, the
// same round-trip the ingestion-side query helpers use to avoid hand
// walking map[string]any.
func parseHits(resp *models.GraphQLResponse, class string) ([]domain.NewsHit, error) {
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("search: remarshal response: %w", err)
	}

	var wrapper struct {
		Get map[string][]articleRecord `json:"Get"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	records := wrapper.Get[class]
	hits := make([]domain.NewsHit, 0, len(records))
	for _, r := range records {
		var score float64
		fmt.Sscanf(r.Additional.Score, "%g", &score)

		var published time.Time
		if t, err := time.Parse(time.RFC3339, r.PublishedAt); err == nil {
			published = t
		}

		hits = append(hits, domain.NewsHit{
			ID:          r.Additional.ID,
			Title:       r.Title,
			URL:         r.URL,
			Summary:     r.Summary,
			PublishedAt: published,
			Score:       score,
		})
	}
	return hits, nil
}
