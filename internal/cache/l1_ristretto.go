// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
)

// RistrettoL1 is the L1 cache backed by ristretto's concurrent, TinyLFU-
// admission in-memory cache. TTL is carried per Entry and enforced by
// MultiCache.Get (Expired), not by ristretto's own TTL, so that promoted
// entries from L2/L3 keep their original expiry rather than resetting it.
type RistrettoL1 struct {
	cache *ristretto.Cache[string, Entry]
}

// RistrettoConfig tunes the underlying ristretto cache.
type RistrettoConfig struct {
	// NumCounters should be about 10x the expected number of items held at
	// any one time, per ristretto's own sizing guidance.
	NumCounters int64
	// MaxCost is the total cost budget; Cost per entry is len(Entry.Value).
	MaxCost int64
	// BufferItems is ristretto's internal Get buffer size; 64 is its
	// documented recommendation for most workloads.
	BufferItems int64
}

// DefaultRistrettoConfig sizes the L1 cache for a few thousand concurrently
// hot context-item/report cache entries.
func DefaultRistrettoConfig() RistrettoConfig {
	return RistrettoConfig{
		NumCounters: 100_000,
		MaxCost:     64 << 20, // 64 MiB
		BufferItems: 64,
	}
}

// NewRistrettoL1 builds an L1 cache from cfg.
func NewRistrettoL1(cfg RistrettoConfig) (*RistrettoL1, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, Entry]{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: open ristretto l1: %w", err)
	}
	return &RistrettoL1{cache: c}, nil
}

// Get implements L1.
func (r *RistrettoL1) Get(key string) (Entry, bool) {
	v, ok := r.cache.Get(key)
	if !ok {
		return Entry{}, false
	}
	return v, true
}

// Set implements L1. Cost is the byte length of the entry's value.
func (r *RistrettoL1) Set(entry Entry) {
	r.cache.Set(entry.Key, entry, int64(len(entry.Value)))
}

// Del implements L1.
func (r *RistrettoL1) Del(key string) {
	r.cache.Del(key)
}

// Close releases ristretto's background goroutines.
func (r *RistrettoL1) Close() {
	r.cache.Close()
}
