// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph implements the C1 Graph adapter: running a generated Cypher
// statement against the graph store and returning rows shaped {n, labels,
// ts}, per spec §6. The graph database itself is out of scope (spec §1,
// "consumed via interface only"); this package speaks to it purely over its
// HTTP transactional Cypher endpoint, since no Cypher-capable Go driver
// exists in the adjacent stack either.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kquery/fusion-engine/internal/domain"
)

var tracer = otel.Tracer("github.com/kquery/fusion-engine/internal/backends/graph")

// Client is the C1 Graph adapter.
type Client struct {
	httpClient *http.Client
	endpoint   string
	authHeader string
}

// NewClient builds a Client against the graph store's HTTP Cypher endpoint,
// e.g. Neo4j's `/db/{db}/tx/commit`. authHeader, if non-empty, is sent
// verbatim as the Authorization header value.
func NewClient(endpoint, authHeader string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		endpoint:   endpoint,
		authHeader: authHeader,
	}
}

type cypherRequest struct {
	Statements []cypherStatement `json:"statements"`
}

type cypherStatement struct {
	Statement  string         `json:"statement"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type cypherResponse struct {
	Results []cypherResult `json:"results"`
	Errors  []cypherError  `json:"errors"`
}

type cypherResult struct {
	Columns []string        `json:"columns"`
	Data    []cypherRowData `json:"data"`
}

type cypherRowData struct {
	Row  []any `json:"row"`
	Meta []any `json:"meta"`
}

type cypherError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Run executes statement (produced by internal/cypher) with params and
// decodes the first result's rows into GraphRow values. The Cypher
// statement is expected to project exactly {n, labels, ts} per column, per
// spec §6's row shape.
func (c *Client) Run(ctx context.Context, statement string, params map[string]any) ([]domain.GraphRow, error) {
	ctx, span := tracer.Start(ctx, "graph.Run")
	defer span.End()
	span.SetAttributes(attribute.String("graph.statement_length", fmt.Sprintf("%d", len(statement))))

	body, err := json.Marshal(cypherRequest{Statements: []cypherStatement{{Statement: statement, Parameters: params}}})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("graph: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("graph: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("graph: call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("graph: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("graph: unexpected status %d: %s", resp.StatusCode, string(raw))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var parsed cypherResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("graph: decode response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		err := fmt.Errorf("graph: %s: %s", parsed.Errors[0].Code, parsed.Errors[0].Message)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(parsed.Results) == 0 {
		return nil, nil
	}

	return decodeRows(parsed.Results[0])
}

func decodeRows(result cypherResult) ([]domain.GraphRow, error) {
	colIndex := map[string]int{}
	for i, col := range result.Columns {
		colIndex[col] = i
	}

	rows := make([]domain.GraphRow, 0, len(result.Data))
	for _, d := range result.Data {
		row := domain.GraphRow{}

		if i, ok := colIndex["n"]; ok && i < len(d.Row) {
			if m, ok := d.Row[i].(map[string]any); ok {
				row.NodeProperties = m
			}
		}
		if i, ok := colIndex["labels"]; ok && i < len(d.Row) {
			if raw, ok := d.Row[i].([]any); ok {
				labels := make([]string, 0, len(raw))
				for _, l := range raw {
					if s, ok := l.(string); ok {
						labels = append(labels, s)
					}
				}
				row.Labels = labels
			}
		}
		if i, ok := colIndex["ts"]; ok && i < len(d.Row) {
			if s, ok := d.Row[i].(string); ok {
				if t, err := time.Parse(time.RFC3339, s); err == nil {
					row.Timestamp = t
				}
			}
		}

		rows = append(rows, row)
	}
	return rows, nil
}
