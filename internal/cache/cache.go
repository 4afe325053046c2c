// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache implements the three-level cache: an in-process L1 (ristretto,
// TinyLFU admission, entry TTL checked by MultiCache), an optional distributed L2 (capability interface with a no-op
// default), and a disk-backed L3 (BadgerDB). A read that hits at L2 or L3 is
// promoted back up to every faster level it missed at (write-through
// promotion), per spec §5 C3.
package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Entry is one cached value plus the bookkeeping the multi-level cache needs
// to decide freshness and promotion (spec §3 CacheEntry).
type Entry struct {
	Key       string
	Value     []byte
	StoredAt  time.Time
	TTL       time.Duration
}

// Expired reports whether e is stale as of now.
func (e Entry) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.After(e.StoredAt.Add(e.TTL))
}

// Level identifies which tier served a Get.
type Level int

const (
	LevelMiss Level = iota
	LevelL1
	LevelL2
	LevelL3
)

func (l Level) String() string {
	switch l {
	case LevelL1:
		return "l1"
	case LevelL2:
		return "l2"
	case LevelL3:
		return "l3"
	default:
		return "miss"
	}
}

// L1 is the in-process cache tier.
type L1 interface {
	Get(key string) (Entry, bool)
	Set(entry Entry)
	Del(key string)
}

// L2 is the optional distributed cache tier. A real deployment wires a
// client here; NoopL2 is used when none is configured.
type L2 interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, entry Entry) error
	Del(ctx context.Context, key string) error
	Enabled() bool
}

// L3 is the disk-backed cache tier.
type L3 interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, entry Entry) error
	Del(ctx context.Context, key string) error
}

// NoopL2 is the default L2 implementation when no distributed cache backend
// is configured. It reports Enabled() == false so MultiCache skips it
// entirely rather than paying round-trip cost for a permanent miss.
type NoopL2 struct{}

func (NoopL2) Get(context.Context, string) (Entry, bool, error) { return Entry{}, false, nil }
func (NoopL2) Set(context.Context, Entry) error                 { return nil }
func (NoopL2) Del(context.Context, string) error                { return nil }
func (NoopL2) Enabled() bool                                    { return false }

// MultiCache chains L1 -> L2 -> L3 lookups, promoting hits back up to every
// faster tier that missed.
type MultiCache struct {
	l1  L1
	l2  L2
	l3  L3
	log *slog.Logger

	l1Hits atomic.Int64
	l2Hits atomic.Int64
	l3Hits atomic.Int64
	misses atomic.Int64
}

// Stats is a point-in-time read of MultiCache's lookup counters, exposed
// through the cache admin endpoint (spec §4.3 supplement, grounded on the
// original implementation's cache statistics/management surface).
type Stats struct {
	L1Hits int64
	L2Hits int64
	L3Hits int64
	Misses int64
}

// HitRate returns the overall hit fraction across all recorded lookups, or 0
// if none have been recorded yet.
func (s Stats) HitRate() float64 {
	total := s.L1Hits + s.L2Hits + s.L3Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.L1Hits+s.L2Hits+s.L3Hits) / float64(total)
}

// Stats returns the cache's lookup counters accumulated since process start.
func (c *MultiCache) Stats() Stats {
	return Stats{
		L1Hits: c.l1Hits.Load(),
		L2Hits: c.l2Hits.Load(),
		L3Hits: c.l3Hits.Load(),
		Misses: c.misses.Load(),
	}
}

// NewMultiCache builds a MultiCache. Pass NoopL2{} for l2 when no
// distributed cache is configured.
func NewMultiCache(l1 L1, l2 L2, l3 L3) *MultiCache {
	if l2 == nil {
		l2 = NoopL2{}
	}
	return &MultiCache{
		l1:  l1,
		l2:  l2,
		l3:  l3,
		log: slog.Default().With("component", "multi_cache"),
	}
}

// Get looks up key at L1, then L2 (if enabled), then L3, promoting the
// result up to every level it missed at. It returns the level that served
// the hit, or LevelMiss if no tier had the key (or every tier's copy had
// expired).
func (c *MultiCache) Get(ctx context.Context, key string) (Entry, Level, error) {
	now := time.Now()

	if e, ok := c.l1.Get(key); ok {
		if !e.Expired(now) {
			c.l1Hits.Add(1)
			return e, LevelL1, nil
		}
		c.l1.Del(key)
	}

	if c.l2.Enabled() {
		e, ok, err := c.l2.Get(ctx, key)
		if err != nil {
			c.log.Warn("l2 get failed", "key", key, "error", err)
		} else if ok && !e.Expired(now) {
			c.l1.Set(e)
			c.l2Hits.Add(1)
			return e, LevelL2, nil
		}
	}

	if c.l3 != nil {
		e, ok, err := c.l3.Get(ctx, key)
		if err != nil {
			c.log.Warn("l3 get failed", "key", key, "error", err)
			c.misses.Add(1)
			return Entry{}, LevelMiss, nil
		}
		if ok && !e.Expired(now) {
			c.l1.Set(e)
			if c.l2.Enabled() {
				if err := c.l2.Set(ctx, e); err != nil {
					c.log.Warn("l2 promotion failed", "key", key, "error", err)
				}
			}
			c.l3Hits.Add(1)
			return e, LevelL3, nil
		}
	}

	c.misses.Add(1)
	return Entry{}, LevelMiss, nil
}

// Set writes entry to every configured level.
func (c *MultiCache) Set(ctx context.Context, entry Entry) error {
	entry.StoredAt = time.Now()
	c.l1.Set(entry)

	if c.l2.Enabled() {
		if err := c.l2.Set(ctx, entry); err != nil {
			c.log.Warn("l2 set failed", "key", entry.Key, "error", err)
		}
	}
	if c.l3 != nil {
		if err := c.l3.Set(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// Del removes key from every configured level.
func (c *MultiCache) Del(ctx context.Context, key string) error {
	c.l1.Del(key)
	if c.l2.Enabled() {
		if err := c.l2.Del(ctx, key); err != nil {
			c.log.Warn("l2 del failed", "key", key, "error", err)
		}
	}
	if c.l3 != nil {
		return c.l3.Del(ctx, key)
	}
	return nil
}
