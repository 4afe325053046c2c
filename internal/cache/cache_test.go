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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memL1 struct{ m map[string]Entry }

func newMemL1() *memL1                      { return &memL1{m: map[string]Entry{}} }
func (l *memL1) Get(k string) (Entry, bool) { e, ok := l.m[k]; return e, ok }
func (l *memL1) Set(e Entry)                { l.m[e.Key] = e }
func (l *memL1) Del(k string)               { delete(l.m, k) }

type memL3 struct{ m map[string]Entry }

func newMemL3() *memL3 { return &memL3{m: map[string]Entry{}} }
func (l *memL3) Get(_ context.Context, k string) (Entry, bool, error) {
	e, ok := l.m[k]
	return e, ok, nil
}
func (l *memL3) Set(_ context.Context, e Entry) error { l.m[e.Key] = e; return nil }
func (l *memL3) Del(_ context.Context, k string) error { delete(l.m, k); return nil }

// TestMultiCache_PromotesL3HitToL1 verifies that a value found only at L3 is
// written through to L1 so the next lookup is served locally.
func TestMultiCache_PromotesL3HitToL1(t *testing.T) {
	l1 := newMemL1()
	l3 := newMemL3()
	mc := NewMultiCache(l1, nil, l3)

	entry := Entry{Key: "k1", Value: []byte("v1"), StoredAt: time.Now()}
	require.NoError(t, l3.Set(context.Background(), entry))

	got, level, err := mc.Get(context.Background(), "k1")
	require.NoError(t, err)
	assert.Equal(t, LevelL3, level)
	assert.Equal(t, entry.Value, got.Value)

	_, ok := l1.Get("k1")
	assert.True(t, ok, "expected l3 hit to be promoted into l1")
}

// TestMultiCache_ExpiredEntryIsTreatedAsMiss verifies that an entry whose
// TTL has elapsed is not returned even though it is still physically present.
func TestMultiCache_ExpiredEntryIsTreatedAsMiss(t *testing.T) {
	l1 := newMemL1()
	mc := NewMultiCache(l1, nil, newMemL3())

	l1.Set(Entry{Key: "k2", Value: []byte("v2"), StoredAt: time.Now().Add(-time.Hour), TTL: time.Minute})

	_, level, err := mc.Get(context.Background(), "k2")
	require.NoError(t, err)
	assert.Equal(t, LevelMiss, level)
}

// TestMultiCache_SetWritesAllLevels verifies that Set populates L1 and L3
// together.
func TestMultiCache_SetWritesAllLevels(t *testing.T) {
	l1 := newMemL1()
	l3 := newMemL3()
	mc := NewMultiCache(l1, nil, l3)

	require.NoError(t, mc.Set(context.Background(), Entry{Key: "k3", Value: []byte("v3")}))

	_, ok := l1.Get("k3")
	assert.True(t, ok)
	_, ok, _ = l3.Get(context.Background(), "k3")
	assert.True(t, ok)
}

// TestNoopL2_AlwaysDisabled verifies the default L2 reports disabled so
// MultiCache never incurs a round trip when no distributed cache is wired.
func TestNoopL2_AlwaysDisabled(t *testing.T) {
	var l2 NoopL2
	assert.False(t, l2.Enabled())
	_, ok, err := l2.Get(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, ok)
}
