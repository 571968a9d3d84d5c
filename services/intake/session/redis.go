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
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore keeps each session as a JSON string with a key TTL.
//
// # Description
//
// Read-modify-write operations use WATCH/MULTI/EXEC and retry when another
// writer touched the key first. Every access, reads included, resets the
// key's expiry, which is how last activity is tracked.
type redisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func newRedisStore(cfg *storeConfig) *redisStore {
	return &redisStore{
		client: cfg.redisClient,
		prefix: cfg.redisKeyPrefix,
		ttl:    cfg.ttl,
		now:    cfg.now,
		logger: cfg.logger,
	}
}

func (s *redisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// decodeRecord parses a stored value; an empty payload is an empty session.
func decodeRecord(raw string) (*record, error) {
	rec := &record{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), rec); err != nil {
			return nil, err
		}
	}
	if rec.Values == nil {
		rec.Values = map[string]any{}
	}
	return rec, nil
}

// Get implements Store.
func (s *redisStore) Get(ctx context.Context, sessionID, key string, def any) (any, error) {
	k := s.key(sessionID)
	raw, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("redis get session: %w", err)
	}

	rec, err := decodeRecord(raw)
	if err != nil {
		return def, fmt.Errorf("decode session %s: %w", sessionID, err)
	}

	if err := s.client.Expire(ctx, k, s.ttl).Err(); err != nil {
		s.logger.Warn("session ttl refresh failed", "session", sessionID, "error", err)
	}

	if v, ok := rec.Values[key]; ok {
		return v, nil
	}
	return def, nil
}

// mutate runs fn inside an optimistic transaction on the session key.
func (s *redisStore) mutate(ctx context.Context, sessionID string, fn func(rec *record)) error {
	k := s.key(sessionID)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, k).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return fmt.Errorf("decode session %s: %w", sessionID, err)
		}

		fn(rec)
		rec.LastActivity = s.now()

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode session %s: %w", sessionID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, data, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis update session: %w", err)
		}
		return nil
	}
	return ErrConflict
}

// Set implements Store.
func (s *redisStore) Set(ctx context.Context, sessionID, key string, value any) error {
	return s.mutate(ctx, sessionID, func(rec *record) {
		rec.Values[key] = value
	})
}

// Update implements Store.
func (s *redisStore) Update(ctx context.Context, sessionID string, values map[string]any) error {
	return s.mutate(ctx, sessionID, func(rec *record) {
		for k, v := range values {
			rec.Values[k] = v
		}
	})
}

// Replace implements Store. A plain SET is already atomic.
func (s *redisStore) Replace(ctx context.Context, sessionID string, values map[string]any) error {
	data, err := json.Marshal(&record{Values: copyValues(values), LastActivity: s.now()})
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sessionID, err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis replace session: %w", err)
	}
	return nil
}

// Clear implements Store.
func (s *redisStore) Clear(ctx context.Context, sessionID string) error {
	return s.Replace(ctx, sessionID, nil)
}

// Delete implements Store.
func (s *redisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// Sweep implements Store. Redis expires keys natively.
func (s *redisStore) Sweep(_ context.Context) (int, error) {
	return 0, nil
}

// Close implements Store.
func (s *redisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*redisStore)(nil)
