// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

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

// maxTxnRetries bounds optimistic retries in the badger and redis drivers.
const maxTxnRetries = 8

// BadgerConfig configures the embedded badger driver.
//
// # Fields
//
//   - Path: Data directory. Required unless InMemory.
//   - InMemory: Keep everything in RAM (tests, ephemeral deployments).
//   - SyncWrites: fsync every commit.
//   - GCInterval: Value-log GC period. Zero disables GC.
//   - GCDiscardRatio: Passed to RunValueLogGC.
type BadgerConfig struct {
	Path           string
	InMemory       bool
	SyncWrites     bool
	GCInterval     time.Duration
	GCDiscardRatio float64
}

// DefaultBadgerConfig returns settings for a persistent store at path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryBadgerConfig returns settings for a RAM-only store.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts slog to badger's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// badgerStore persists each session as one JSON value with a native TTL.
//
// # Description
//
// Reads and writes run inside badger transactions; conflicting concurrent
// transactions are retried. Badger drops keys whose TTL elapsed, and the
// stored last-activity timestamp is also checked so an injected clock
// behaves the same as wall time.
type badgerStore struct {
	db     *badger.DB
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
	stopGC chan struct{}
	gcDone chan struct{}
}

func newBadgerStore(cfg *storeConfig) (*badgerStore, error) {
	bc := *cfg.badger
	if !bc.InMemory && bc.Path == "" {
		return nil, fmt.Errorf("%w: badger path is required for a persistent store", ErrInvalidConfig)
	}

	var opts badger.Options
	if bc.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(bc.Path, 0750); err != nil {
			return nil, fmt.Errorf("create session directory %s: %w", bc.Path, err)
		}
		opts = badger.DefaultOptions(bc.Path)
	}
	opts = opts.WithSyncWrites(bc.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: cfg.logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger session store: %w", err)
	}

	s := &badgerStore{
		db:     db,
		ttl:    cfg.ttl,
		now:    cfg.now,
		logger: cfg.logger,
	}
	if bc.GCInterval > 0 && !bc.InMemory {
		s.startGC(bc.GCInterval, bc.GCDiscardRatio)
	}
	return s, nil
}

func (s *badgerStore) key(sessionID string) []byte {
	return []byte("session:" + sessionID)
}

// load reads the live record for sessionID inside txn. A missing or expired
// key yields an empty record.
func (s *badgerStore) load(txn *badger.Txn, sessionID string) (*record, error) {
	item, err := txn.Get(s.key(sessionID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return &record{Values: map[string]any{}}, nil
	}
	if err != nil {
		return nil, err
	}

	rec := &record{}
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, rec)
	}); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	if rec.Values == nil || rec.expired(s.now(), s.ttl) {
		rec.Values = map[string]any{}
	}
	return rec, nil
}

// mutate loads the record, applies fn and writes it back with a fresh TTL,
// retrying on transaction conflicts.
func (s *badgerStore) mutate(ctx context.Context, sessionID string, fn func(rec *record)) error {
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			rec, err := s.load(txn, sessionID)
			if err != nil {
				return err
			}
			fn(rec)
			rec.LastActivity = s.now()
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encode session %s: %w", sessionID, err)
			}
			return txn.SetEntry(badger.NewEntry(s.key(sessionID), data).WithTTL(s.ttl))
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if errors.Is(err, badger.ErrDBClosed) {
			return ErrClosed
		}
		return err
	}
	return ErrConflict
}

// Get implements Store. Reading refreshes the TTL, so it is a write.
func (s *badgerStore) Get(ctx context.Context, sessionID, key string, def any) (any, error) {
	value, found := def, false
	err := s.mutate(ctx, sessionID, func(rec *record) {
		if v, ok := rec.Values[key]; ok {
			value, found = v, true
		}
	})
	if err != nil {
		return def, err
	}
	if !found {
		return def, nil
	}
	return value, nil
}

// Set implements Store.
func (s *badgerStore) Set(ctx context.Context, sessionID, key string, value any) error {
	return s.mutate(ctx, sessionID, func(rec *record) {
		rec.Values[key] = value
	})
}

// Update implements Store.
func (s *badgerStore) Update(ctx context.Context, sessionID string, values map[string]any) error {
	return s.mutate(ctx, sessionID, func(rec *record) {
		for k, v := range values {
			rec.Values[k] = v
		}
	})
}

// Replace implements Store.
func (s *badgerStore) Replace(ctx context.Context, sessionID string, values map[string]any) error {
	return s.mutate(ctx, sessionID, func(rec *record) {
		rec.Values = copyValues(values)
	})
}

// Clear implements Store.
func (s *badgerStore) Clear(ctx context.Context, sessionID string) error {
	return s.Replace(ctx, sessionID, nil)
}

// Delete implements Store.
func (s *badgerStore) Delete(_ context.Context, sessionID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(sessionID))
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return err
}

// Sweep implements Store. Badger expires keys natively.
func (s *badgerStore) Sweep(_ context.Context) (int, error) {
	return 0, nil
}

// Close stops value-log GC and closes the database.
func (s *badgerStore) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.gcDone
		s.stopGC = nil
	}
	return s.db.Close()
}

func (s *badgerStore) startGC(interval time.Duration, ratio float64) {
	s.stopGC = make(chan struct{})
	s.gcDone = make(chan struct{})

	go func() {
		defer close(s.gcDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopGC:
				return
			case <-ticker.C:
				err := s.db.RunValueLogGC(ratio)
				if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Warn("session value log GC failed", "error", err)
				}
			}
		}
	}()
}

var _ Store = (*badgerStore)(nil)
