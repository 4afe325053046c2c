// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the query engine's service configuration (C14):
// server address, the four backend connections, cache paths, and
// observability endpoints, loaded from a YAML file with environment
// variable overrides for the server address and endpoint URLs. Secrets are
// not part of Config; the backends and main read them themselves.
package config

// Config is the top-level query engine configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	LM            LMConfig            `yaml:"lm"`
	Graph         GraphConfig         `yaml:"graph"`
	Search        SearchConfig        `yaml:"search"`
	Market        MarketConfig        `yaml:"market"`
	Cache         CacheConfig         `yaml:"cache"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// LMConfig configures the two-tier LM adapter.
type LMConfig struct {
	FastModel    string `yaml:"fast_model"`
	DeepModel    string `yaml:"deep_model"`
	SystemPrompt string `yaml:"system_prompt,omitempty"`
	// APIKey is intentionally omitted from YAML; it is read from
	// OPENAI_API_KEY or a mounted secret file (internal/backends/llmbackend).
}

// GraphConfig configures the graph store's HTTP Cypher endpoint.
type GraphConfig struct {
	Endpoint string `yaml:"endpoint"`
	// AuthHeader is read from GRAPH_AUTH_HEADER, not stored in YAML.
}

// SearchConfig configures the hybrid search backend.
type SearchConfig struct {
	Host   string `yaml:"host"`
	Scheme string `yaml:"scheme"`
	Alpha  float32 `yaml:"alpha"` // hybrid search lexical/vector balance, spec §6
}

// MarketConfig configures the market data backend.
type MarketConfig struct {
	QuoteFeedURL string `yaml:"quote_feed_url"`
	InfluxURL    string `yaml:"influx_url"`
	InfluxOrg    string `yaml:"influx_org"`
	InfluxBucket string `yaml:"influx_bucket"`
	// InfluxToken is read from INFLUX_TOKEN, not stored in YAML.
}

// CacheConfig configures the multi-level cache.
type CacheConfig struct {
	BadgerPath   string `yaml:"badger_path"`
	RistrettoMax int64  `yaml:"ristretto_max_cost"`
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	MetricsAddress string `yaml:"metrics_address"`
	OTLPEndpoint   string `yaml:"otlp_endpoint,omitempty"`
}

// DefaultConfig returns the configuration used when no file is found, tuned
// for a single-node local deployment.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{Address: ":8080"},
		LM: LMConfig{
			FastModel: "gpt-4o-mini",
			DeepModel: "gpt-4o",
		},
		Graph: GraphConfig{
			Endpoint: "http://localhost:7474/db/neo4j/tx/commit",
		},
		Search: SearchConfig{
			Host:   "localhost:8081",
			Scheme: "http",
			Alpha:  0.5,
		},
		Market: MarketConfig{
			QuoteFeedURL: "http://localhost:8082/quote",
			InfluxURL:    "http://localhost:8086",
			InfluxOrg:    "fusion-engine",
			InfluxBucket: "market",
		},
		Cache: CacheConfig{
			BadgerPath:   "./data/cache",
			RistrettoMax: 64 << 20,
		},
		Observability: ObservabilityConfig{
			MetricsAddress: ":9090",
		},
	}
}
