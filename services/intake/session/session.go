// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session stores per-conversation slot values between turns.
//
// A session is a flat map of keys to values (first_name, patient_state,
// appointment_date, ...) plus a last-activity timestamp. Sessions idle for
// longer than the TTL (24 hours by default) are evicted. Three drivers are
// provided:
//
//   - memory: process-local map behind one mutex (default)
//   - badger: embedded on-disk store for single-instance persistence
//   - redis:  shared store for multi-instance deployments
//
// # Usage
//
//	store, err := session.NewStore(session.StoreTypeMemory,
//	    session.WithTTL(24*time.Hour))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	_ = store.Set(ctx, "abc123", "first_name", "Jane")
//	name, _ := store.Get(ctx, "abc123", "first_name", "")
//
// Values must be JSON-serializable for the badger and redis drivers; after
// a round trip numbers decode as float64 and structs as map[string]any.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the idle time after which a session is evicted.
const DefaultTTL = 24 * time.Hour

// DefaultSweepBudget bounds how many sessions one opportunistic sweep
// examines while holding the memory driver's lock.
const DefaultSweepBudget = 1024

var (
	// ErrInvalidStoreType is returned by NewStore for an unknown driver.
	ErrInvalidStoreType = errors.New("session: invalid store type")

	// ErrInvalidConfig is returned when a driver is missing required options.
	ErrInvalidConfig = errors.New("session: invalid store configuration")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("session: store closed")

	// ErrConflict is returned when an optimistic transaction keeps losing
	// races after its retry budget.
	ErrConflict = errors.New("session: concurrent modification")
)

// Store is the contract every session driver implements.
//
// # Description
//
// All operations are atomic per session: no Get observes a partial
// Update or Replace. Get and every write refresh the session's last
// activity. Unknown sessions and keys are not errors; Get returns def and
// the session is implicitly created.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored under key, or def when absent.
	Get(ctx context.Context, sessionID, key string, def any) (any, error)

	// Set stores one value.
	Set(ctx context.Context, sessionID, key string, value any) error

	// Update stores several values atomically.
	Update(ctx context.Context, sessionID string, values map[string]any) error

	// Replace atomically discards all values and stores values.
	Replace(ctx context.Context, sessionID string, values map[string]any) error

	// Clear removes all values but keeps the session alive.
	Clear(ctx context.Context, sessionID string) error

	// Delete removes the session entirely.
	Delete(ctx context.Context, sessionID string) error

	// Sweep evicts expired sessions and reports how many were removed.
	// Drivers with native expiry return 0.
	Sweep(ctx context.Context) (int, error)

	// Close releases driver resources.
	Close() error
}

// StoreType names a driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeBadger StoreType = "badger"
	StoreTypeRedis  StoreType = "redis"
)

// =============================================================================
// Options
// =============================================================================

// StoreOption configures NewStore.
type StoreOption func(*storeConfig)

type storeConfig struct {
	ttl         time.Duration
	now         func() time.Time
	sweepBudget int
	onEvict     func(n int)
	logger      *slog.Logger

	redisClient    *redis.Client
	redisKeyPrefix string

	badger *BadgerConfig
}

// WithTTL sets the idle eviction window. Non-positive values keep DefaultTTL.
func WithTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects the time source. Used by tests to age sessions.
func WithClock(now func() time.Time) StoreOption {
	return func(c *storeConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSweepBudget bounds the number of sessions examined per opportunistic
// sweep in the memory driver.
func WithSweepBudget(n int) StoreOption {
	return func(c *storeConfig) {
		if n > 0 {
			c.sweepBudget = n
		}
	}
}

// WithEvictionHook registers a callback invoked with the number of sessions
// evicted by each sweep that removed at least one.
func WithEvictionHook(fn func(n int)) StoreOption {
	return func(c *storeConfig) {
		c.onEvict = fn
	}
}

// WithLogger sets the driver logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(c *storeConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRedisClient supplies the client used by the redis driver.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithRedisKeyPrefix overrides the "intake:session:" key prefix.
func WithRedisKeyPrefix(prefix string) StoreOption {
	return func(c *storeConfig) {
		c.redisKeyPrefix = prefix
	}
}

// WithBadger configures the badger driver.
func WithBadger(cfg BadgerConfig) StoreOption {
	return func(c *storeConfig) {
		c.badger = &cfg
	}
}

// =============================================================================
// Factory
// =============================================================================

// NewStore builds the driver named by storeType.
//
// # Inputs
//
//   - storeType: memory, badger or redis.
//   - opts: Driver options. redis requires WithRedisClient; badger requires
//     WithBadger.
//
// # Outputs
//
//   - Store: Ready for use.
//   - error: ErrInvalidStoreType, ErrInvalidConfig, or a driver open error.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	cfg := &storeConfig{
		ttl:            DefaultTTL,
		now:            time.Now,
		sweepBudget:    DefaultSweepBudget,
		logger:         slog.Default(),
		redisKeyPrefix: "intake:session:",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	switch storeType {
	case StoreTypeMemory, "":
		return newMemoryStore(cfg), nil

	case StoreTypeBadger:
		if cfg.badger == nil {
			return nil, fmt.Errorf("%w: badger driver requires WithBadger", ErrInvalidConfig)
		}
		return newBadgerStore(cfg)

	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, fmt.Errorf("%w: redis driver requires WithRedisClient", ErrInvalidConfig)
		}
		return newRedisStore(cfg), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStoreType, storeType)
	}
}

// record is the persisted form of one session.
type record struct {
	Values       map[string]any `json:"values"`
	LastActivity time.Time      `json:"last_activity"`
}

func (r *record) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.LastActivity) > ttl
}

func copyValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
