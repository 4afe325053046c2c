// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML config at path, creating it with defaults first if it
// does not exist. An empty path yields DefaultConfig() directly without
// touching the filesystem, for tests and simple single-binary runs.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path); err != nil {
			return Config{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory for %s: %w", path, err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("config: marshal default config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnvOverrides lets deployment environments override connection
// details without editing the checked-in YAML (spec §4.14's ambient
// configuration concern).
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("GRAPH_ENDPOINT"); v != "" {
		cfg.Graph.Endpoint = v
	}
	if v := os.Getenv("SEARCH_HOST"); v != "" {
		cfg.Search.Host = v
	}
	if v := os.Getenv("MARKET_QUOTE_FEED_URL"); v != "" {
		cfg.Market.QuoteFeedURL = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Observability.OTLPEndpoint = v
	}
}
