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
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Fingerprint builds a stable cache key from a purpose tag, the normalized
// query text, and optional salient parameters, per spec §4.3/§6's key shape
// "{purpose}:{hash(query)}:{hourBucketIfTimeSensitive}:{param_hash}".
//
// Time-sensitive artifacts (news hit lists, stock snapshots, final reports)
// must pass hourBucketed=true so two lookups within the same UTC hour share
// a key while lookups an hour apart do not; invariant-stable artifacts
// (query analysis, plan analysis) pass false and rely on TTL alone to
// eventually expire.
func Fingerprint(purpose, query string, hourBucketed bool, params ...string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	queryHash := shortHash(normalized)

	bucket := "-"
	if hourBucketed {
		bucket = time.Now().UTC().Format("2006010215")
	}

	paramHash := "-"
	if len(params) > 0 {
		paramHash = shortHash(strings.Join(params, "|"))
	}

	return purpose + ":" + queryHash + ":" + bucket + ":" + paramHash
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// GetBytes is a byte-oriented convenience wrapper over Get for callers that
// don't need Entry's bookkeeping fields, returning ok=false on a miss or a
// broken lower tier.
func (c *MultiCache) GetBytes(ctx context.Context, key string) ([]byte, bool) {
	entry, level, err := c.Get(ctx, key)
	if err != nil || level == LevelMiss {
		return nil, false
	}
	return entry.Value, true
}

// SetBytes is a byte-oriented convenience wrapper over Set.
func (c *MultiCache) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.Set(ctx, Entry{Key: key, Value: value, TTL: ttl})
}
