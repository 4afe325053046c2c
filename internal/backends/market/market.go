// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package market implements the C1 Market adapter: current quote snapshots
// over HTTP and historical points from InfluxDB, per spec §4.1.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/kquery/fusion-engine/internal/domain"
)

// Config configures the Market adapter's two collaborators: the live quote
// feed and the historical time-series store.
type Config struct {
	QuoteFeedURL string
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
}

// Client is the C1 Market adapter.
type Client struct {
	httpClient   *http.Client
	quoteFeedURL string
	queryAPI     api.QueryAPI
	bucket       string
	org          string
}

// NewClient builds a Client. The quote feed is called directly over HTTP;
// the InfluxDB query API is used for historical snapshots feeding the
// `trend` intent and AnalysisPlan.required_data_types.
func NewClient(cfg Config) *Client {
	influx := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	return &Client{
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		quoteFeedURL: cfg.QuoteFeedURL,
		queryAPI:     influx.QueryAPI(cfg.InfluxOrg),
		bucket:       cfg.InfluxBucket,
		org:          cfg.InfluxOrg,
	}
}

type quoteFeedResponse struct {
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`
	Volume    int64   `json:"volume"`
	AsOf      string  `json:"as_of"`
}

// Snapshot fetches the current quote for symbol from the live feed.
func (c *Client) Snapshot(ctx context.Context, symbol string) (domain.StockSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.quoteFeedURL+"?symbol="+symbol, nil)
	if err != nil {
		return domain.StockSnapshot{}, fmt.Errorf("market: build quote request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.StockSnapshot{}, fmt.Errorf("market: quote feed call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.StockSnapshot{}, fmt.Errorf("market: quote feed status %d", resp.StatusCode)
	}

	var q quoteFeedResponse
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return domain.StockSnapshot{}, fmt.Errorf("market: decode quote: %w", err)
	}

	asOf := time.Now()
	if t, err := time.Parse(time.RFC3339, q.AsOf); err == nil {
		asOf = t
	}

	return domain.StockSnapshot{
		Symbol:    q.Symbol,
		Last:      q.Last,
		Change:    q.Change,
		ChangePct: q.ChangePct,
		Volume:    q.Volume,
		AsOf:      asOf,
	}, nil
}

// History fetches up to `days` days of historical snapshots for symbol from
// InfluxDB, ordered oldest first.
func (c *Client) History(ctx context.Context, symbol string, days int) ([]domain.StockSnapshot, error) {
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%dd)
  |> filter(fn: (r) => r._measurement == "quote" and r.symbol == %q)
  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> sort(columns: ["_time"])
`, c.bucket, days, symbol)

	result, err := c.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("market: influx query: %w", err)
	}
	defer result.Close()

	var snapshots []domain.StockSnapshot
	for result.Next() {
		rec := result.Record()
		snapshots = append(snapshots, domain.StockSnapshot{
			Symbol:    symbol,
			Last:      asFloat(rec.ValueByKey("close")),
			Change:    asFloat(rec.ValueByKey("change")),
			ChangePct: asFloat(rec.ValueByKey("change_pct")),
			Volume:    int64(asFloat(rec.ValueByKey("volume"))),
			AsOf:      rec.Time(),
		})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("market: influx result error: %w", result.Err())
	}
	return snapshots, nil
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	default:
		return 0
	}
}
