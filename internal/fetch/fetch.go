// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fetch implements the C9 Parallel Fetcher: fanning out calls to
// the Graph, Search, and Market backends concurrently, each under its own
// timeout, tolerating partial failure so one backend's outage never blocks
// results already available from the others (spec §4.9).
package fetch

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kquery/fusion-engine/internal/domain"
)

// GraphCaller runs a Cypher query and returns rows.
type GraphCaller func(ctx context.Context) ([]domain.GraphRow, error)

// SearchCaller runs a hybrid search and returns news hits.
type SearchCaller func(ctx context.Context) ([]domain.NewsHit, error)

// MarketCaller fetches a stock snapshot.
type MarketCaller func(ctx context.Context) (domain.StockSnapshot, error)

// Request bundles the per-backend calls to fan out. A nil caller is skipped
// entirely (e.g. a news-only query has no MarketCaller).
type Request struct {
	Graph   GraphCaller
	Search  SearchCaller
	Market  MarketCaller
	Timeout time.Duration
}

// Result is the union of whatever backends responded, plus the error (if
// any) each one produced. A non-nil Err for one field does not prevent the
// others from being populated.
type Result struct {
	GraphRows  []domain.GraphRow
	GraphErr   error
	NewsHits   []domain.NewsHit
	SearchErr  error
	Snapshot   domain.StockSnapshot
	HasSnapshot bool
	MarketErr  error
}

// DefaultTimeout bounds each individual backend call when Request.Timeout
// is unset.
const DefaultTimeout = 3 * time.Second

// Run fans Request's configured callers out concurrently via errgroup,
// each under its own timeout derived from ctx, and collects every result
// regardless of individual failures.
func Run(ctx context.Context, req Request) Result {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := slog.Default().With("component", "parallel_fetcher")

	var result Result
	g, gctx := errgroup.WithContext(ctx)

	if req.Graph != nil {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			rows, err := req.Graph(callCtx)
			if err != nil {
				log.Warn("graph fetch failed", "error", err)
				result.GraphErr = err
				return nil
			}
			result.GraphRows = rows
			return nil
		})
	}

	if req.Search != nil {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			hits, err := req.Search(callCtx)
			if err != nil {
				log.Warn("search fetch failed", "error", err)
				result.SearchErr = err
				return nil
			}
			result.NewsHits = hits
			return nil
		})
	}

	if req.Market != nil {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			snap, err := req.Market(callCtx)
			if err != nil {
				log.Warn("market fetch failed", "error", err)
				result.MarketErr = err
				return nil
			}
			result.Snapshot = snap
			result.HasSnapshot = true
			return nil
		})
	}

	// Every goroutine above swallows its own error into the Result fields
	// and returns nil, so g.Wait() never actually returns an error — it
	// only serves to block until all three have finished.
	_ = g.Wait()
	return result
}

// AllFailed reports whether every configured backend failed. Backends that
// were not requested are ignored; with none requested it reports false.
func (r Result) AllFailed(hadGraph, hadSearch, hadMarket bool) bool {
	graphFailed := !hadGraph || r.GraphErr != nil
	searchFailed := !hadSearch || r.SearchErr != nil
	marketFailed := !hadMarket || r.MarketErr != nil
	return (hadGraph || hadSearch || hadMarket) && graphFailed && searchFailed && marketFailed
}
