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
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/kquery/fusion-engine/internal/backends/embedder"
	"github.com/kquery/fusion-engine/internal/backends/graph"
	"github.com/kquery/fusion-engine/internal/backends/llmbackend"
	"github.com/kquery/fusion-engine/internal/backends/market"
	"github.com/kquery/fusion-engine/internal/backends/search"
	"github.com/kquery/fusion-engine/internal/cache"
	"github.com/kquery/fusion-engine/internal/classify"
	"github.com/kquery/fusion-engine/internal/complexity"
	"github.com/kquery/fusion-engine/internal/config"
	"github.com/kquery/fusion-engine/internal/contextengine"
	"github.com/kquery/fusion-engine/internal/cypher"
	"github.com/kquery/fusion-engine/internal/domain"
	"github.com/kquery/fusion-engine/internal/fasthandlers"
	"github.com/kquery/fusion-engine/internal/fetch"
	"github.com/kquery/fusion-engine/internal/format"
	"github.com/kquery/fusion-engine/internal/observability"
	"github.com/kquery/fusion-engine/internal/resilience"
	"github.com/kquery/fusion-engine/internal/router"
	"github.com/kquery/fusion-engine/internal/transport"
	"github.com/kquery/fusion-engine/internal/workflow"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("FUSION_ENGINE_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx := context.Background()
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName: "fusion-engine",
		Endpoint:    cfg.Observability.OTLPEndpoint,
		Insecure:    true,
	})
	if err != nil {
		log.Fatalf("failed to set up OTLP tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	lmClient, err := llmbackend.NewClient(llmbackend.Config{
		FastModel:    cfg.LM.FastModel,
		DeepModel:    cfg.LM.DeepModel,
		SystemPrompt: cfg.LM.SystemPrompt,
	})
	if err != nil {
		log.Fatalf("failed to configure the LM backend: %v", err)
	}

	graphClient := graph.NewClient(cfg.Graph.Endpoint, os.Getenv("GRAPH_AUTH_HEADER"))
	marketClient := market.NewClient(market.Config{
		QuoteFeedURL: cfg.Market.QuoteFeedURL,
		InfluxURL:    cfg.Market.InfluxURL,
		InfluxToken:  os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:    cfg.Market.InfluxOrg,
		InfluxBucket: cfg.Market.InfluxBucket,
	})
	embedderClient := embedder.NewClient(os.Getenv("OPENAI_API_KEY"), "")

	searchClient := newSearchClient(cfg.Search.Host, cfg.Search.Scheme)

	graphBreaker := resilience.NewCircuitBreaker(resilience.DefaultBreakerConfig("graph"))
	searchBreaker := resilience.NewCircuitBreaker(resilience.DefaultBreakerConfig("search"))
	marketBreaker := resilience.NewCircuitBreaker(resilience.DefaultBreakerConfig("market"))
	lmBreaker := resilience.NewCircuitBreaker(resilience.DefaultBreakerConfig("lm"))

	ristretto, err := cache.NewRistrettoL1(cache.DefaultRistrettoConfig())
	if err != nil {
		log.Fatalf("failed to start the L1 cache: %v", err)
	}
	defer ristretto.Close()

	badgerCfg := cache.DefaultBadgerConfig(cfg.Cache.BadgerPath)
	badger, err := cache.OpenBadgerL3(badgerCfg)
	if err != nil {
		log.Fatalf("failed to open the L3 cache: %v", err)
	}
	defer badger.Close()
	multiCache := cache.NewMultiCache(ristretto, cache.NoopL2{}, badger)

	formatter := format.New(5, 5)
	ctxEngine := contextengine.New(contextengine.DefaultBudget)

	fetchRequest := func(q domain.Query) fetch.Request {
		req := fetch.Request{Timeout: fetch.DefaultTimeout}
		if q.Intent != domain.IntentStock {
			req.Graph = func(ctx context.Context) ([]domain.GraphRow, error) {
				stmt, params := cypher.Build(cypher.Query{Text: q.Text, Limit: 25, LookbackDays: 180})
				var rows []domain.GraphRow
				runErr := graphBreaker.Execute(ctx, func(ctx context.Context) error {
					var innerErr error
					rows, innerErr = graphClient.Run(ctx, stmt, params)
					return innerErr
				})
				return rows, runErr
			}
			req.Search = func(ctx context.Context) ([]domain.NewsHit, error) {
				vector, _ := embedderClient.Embed(ctx, q.Text)
				var hits []domain.NewsHit
				runErr := searchBreaker.Execute(ctx, func(ctx context.Context) error {
					var innerErr error
					hits, innerErr = searchClient.HybridSearch(ctx, q.Text, vector, cfg.Search.Alpha, 10)
					return innerErr
				})
				return hits, runErr
			}
		}
		if len(q.Entities.Tickers) > 0 {
			ticker := q.Entities.Tickers[0]
			req.Market = func(ctx context.Context) (domain.StockSnapshot, error) {
				return cachedSnapshot(ctx, multiCache, marketBreaker, marketClient, ticker)
			}
		}
		return req
	}

	eng := &transport.Engine{
		Classifier:    classify.New(),
		Scorer:        complexity.New(),
		ContextEngine: ctxEngine,
		News:          fasthandlers.NewNewsHandler(lmClient),
		Stock:         fasthandlers.NewStockHandler(lmClient),
		General:       fasthandlers.NewGeneralHandler(lmClient),
		FetchRequest:  fetchRequest,
		BuildDeepDAG: func(q domain.Query) (*workflow.DAG, error) {
			return buildDeepDAG(q, graphClient, searchClient, marketClient, embedderClient, lmClient, ctxEngine, formatter, multiCache, cfg.Search.Alpha)
		},
		Breakers: func() router.BackendStates {
			return router.BackendStates{
				Graph:  graphBreaker.Stats().State,
				Search: searchBreaker.Stats().State,
				Market: marketBreaker.Stats().State,
				LM:     lmBreaker.Stats().State,
			}
		},
		Cache: multiCache,
	}

	server := transport.NewRouter(eng)
	slog.Info("starting fusion engine", "address", cfg.Server.Address)
	if err := server.Run(cfg.Server.Address); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

// snapshotCacheTTL bounds how long a quote snapshot is served from cache
// before a fresh fetch is forced, since a stale price is worse than a
// slightly slower response.
const snapshotCacheTTL = 15 * time.Second

// cachedSnapshot wraps a market snapshot fetch in a cache-aside lookup,
// avoiding a live quote-feed call (and the breaker it guards) on every
// stock-intent request for the same ticker within snapshotCacheTTL.
func cachedSnapshot(ctx context.Context, mc *cache.MultiCache, breaker *resilience.CircuitBreaker, client *market.Client, ticker string) (domain.StockSnapshot, error) {
	key := cache.Fingerprint("market_snapshot", ticker, true)

	if entry, level, err := mc.Get(ctx, key); err == nil && level != cache.LevelMiss {
		var snap domain.StockSnapshot
		if jsonErr := json.Unmarshal(entry.Value, &snap); jsonErr == nil {
			observability.RecordCacheLookup(level.String())
			return snap, nil
		}
	}
	observability.RecordCacheLookup(cache.LevelMiss.String())

	var snap domain.StockSnapshot
	runErr := breaker.Execute(ctx, func(ctx context.Context) error {
		var innerErr error
		snap, innerErr = client.Snapshot(ctx, ticker)
		return innerErr
	})
	if runErr != nil {
		return snap, fmt.Errorf("market snapshot for %s: %w", ticker, runErr)
	}

	if data, err := json.Marshal(snap); err == nil {
		_ = mc.Set(ctx, cache.Entry{Key: key, Value: data, TTL: snapshotCacheTTL})
	}
	return snap, nil
}

func newSearchClient(host, scheme string) *search.Client {
	wc, err := weaviate.NewClient(weaviate.Config{Host: host, Scheme: scheme})
	if err != nil {
		log.Fatalf("failed to create weaviate client: %v", err)
	}
	return search.NewClient(wc)
}

