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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig configures the disk-backed L3 tier.
type BadgerConfig struct {
	Path              string
	InMemory          bool
	SyncWrites        bool
	Logger            *slog.Logger
	NumVersionsToKeep int
	GCInterval        time.Duration
	GCDiscardRatio    float64
}

// DefaultBadgerConfig mirrors production defaults: durable writes, single
// version retention, GC every five minutes once 50% of the value log is
// garbage.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:              path,
		SyncWrites:        true,
		NumVersionsToKeep: 1,
		GCInterval:        5 * time.Minute,
		GCDiscardRatio:    0.5,
	}
}

// InMemoryBadgerConfig is for tests: no disk I/O, GC disabled.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{
		InMemory:          true,
		NumVersionsToKeep: 1,
	}
}

type badgerLogger struct{ logger *slog.Logger }

func (l *badgerLogger) Errorf(format string, args ...interface{})   { l.logger.Error(fmt.Sprintf(format, args...)) }
func (l *badgerLogger) Warningf(format string, args ...interface{}) { l.logger.Warn(fmt.Sprintf(format, args...)) }
func (l *badgerLogger) Infof(format string, args ...interface{})    { l.logger.Info(fmt.Sprintf(format, args...)) }
func (l *badgerLogger) Debugf(format string, args ...interface{})   { l.logger.Debug(fmt.Sprintf(format, args...)) }

// BadgerL3 is the disk-backed L3 tier, wrapping *badger.DB with a periodic
// value-log GC goroutine.
type BadgerL3 struct {
	db       *badger.DB
	stopGC   chan struct{}
	doneGC   chan struct{}
	log      *slog.Logger
}

// OpenBadgerL3 opens (creating if necessary) the BadgerDB store at cfg.Path
// and starts its GC loop if cfg.GCInterval > 0.
func OpenBadgerL3(cfg BadgerConfig) (*BadgerL3, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("cache: badger path required for persistent l3")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("cache: create l3 directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(cfg.NumVersionsToKeep)

	log := cfg.Logger
	if log == nil {
		log = slog.Default().With("component", "cache_l3")
	}
	opts = opts.WithLogger(&badgerLogger{logger: log})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("cache: open l3 badger: %w", err)
	}

	l3 := &BadgerL3{db: db, log: log}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		l3.stopGC = make(chan struct{})
		l3.doneGC = make(chan struct{})
		go l3.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return l3, nil
}

func (b *BadgerL3) runGC(interval time.Duration, ratio float64) {
	defer close(b.doneGC)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopGC:
			return
		case <-ticker.C:
			if err := b.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				b.log.Warn("l3 value log gc error", "error", err)
			}
		}
	}
}

type badgerRecord struct {
	Value    []byte    `json:"value"`
	StoredAt time.Time `json:"stored_at"`
	TTL      int64     `json:"ttl_ns"`
}

// Get implements L3.
func (b *BadgerL3) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}

	var rec badgerRecord
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache: l3 get %q: %w", key, err)
	}
	return Entry{
		Key:      key,
		Value:    rec.Value,
		StoredAt: rec.StoredAt,
		TTL:      time.Duration(rec.TTL),
	}, true, nil
}

// Set implements L3.
func (b *BadgerL3) Set(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := badgerRecord{Value: entry.Value, StoredAt: entry.StoredAt, TTL: int64(entry.TTL)}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cache: encode l3 entry: %w", err)
	}

	return b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(entry.Key), payload)
		if entry.TTL > 0 {
			e = e.WithTTL(entry.TTL)
		}
		return txn.SetEntry(e)
	})
}

// Del implements L3.
func (b *BadgerL3) Del(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Close stops the GC loop (if running) and closes the database.
func (b *BadgerL3) Close() error {
	if b.stopGC != nil {
		close(b.stopGC)
		<-b.doneGC
	}
	return b.db.Close()
}
