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
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newMemory(t *testing.T, opts ...StoreOption) Store {
	t.Helper()
	store, err := NewStore(StoreTypeMemory, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newBadger(t *testing.T, opts ...StoreOption) Store {
	t.Helper()
	opts = append(opts, WithBadger(InMemoryBadgerConfig()))
	store, err := NewStore(StoreTypeBadger, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// driverCases runs the same contract tests against every embeddable driver.
func driverCases(t *testing.T, run func(t *testing.T, open func(...StoreOption) Store)) {
	t.Run("memory", func(t *testing.T) {
		run(t, func(opts ...StoreOption) Store { return newMemory(t, opts...) })
	})
	t.Run("badger", func(t *testing.T) {
		run(t, func(opts ...StoreOption) Store { return newBadger(t, opts...) })
	})
}

// =============================================================================
// Factory Tests
// =============================================================================

func TestNewStore_InvalidType(t *testing.T) {
	_, err := NewStore(StoreType("etcd"))
	assert.True(t, errors.Is(err, ErrInvalidStoreType))
}

func TestNewStore_RedisRequiresClient(t *testing.T) {
	_, err := NewStore(StoreTypeRedis)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestNewStore_BadgerRequiresConfig(t *testing.T) {
	_, err := NewStore(StoreTypeBadger)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = NewStore(StoreTypeBadger, WithBadger(BadgerConfig{}))
	assert.True(t, errors.Is(err, ErrInvalidConfig), "persistent badger without a path")
}

func TestNewStore_EmptyTypeIsMemory(t *testing.T) {
	store, err := NewStore("")
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &memoryStore{}, store)
}

func TestNewStore_Redis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	store, err := NewStore(StoreTypeRedis, WithRedisClient(client), WithRedisKeyPrefix("test:"))
	require.NoError(t, err)
	defer store.Close()

	rs, ok := store.(*redisStore)
	require.True(t, ok)
	assert.Equal(t, "test:abc", rs.key("abc"))
	assert.Equal(t, DefaultTTL, rs.ttl)
}

// =============================================================================
// Contract Tests
// =============================================================================

func TestStore_GetUnknownReturnsDefault(t *testing.T) {
	driverCases(t, func(t *testing.T, open func(...StoreOption) Store) {
		store := open()
		ctx := context.Background()

		v, err := store.Get(ctx, "nobody", "first_name", "fallback")
		require.NoError(t, err)
		assert.Equal(t, "fallback", v)

		require.NoError(t, store.Set(ctx, "s1", "first_name", "Jane"))
		v, err = store.Get(ctx, "s1", "last_name", nil)
		require.NoError(t, err)
		assert.Nil(t, v)
	})
}

func TestStore_SetGet(t *testing.T) {
	driverCases(t, func(t *testing.T, open func(...StoreOption) Store) {
		store := open()
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, "s1", "patient_name", "Jane Doe"))
		v, err := store.Get(ctx, "s1", "patient_name", "")
		require.NoError(t, err)
		assert.Equal(t, "Jane Doe", v)

		other, err := store.Get(ctx, "s2", "patient_name", "")
		require.NoError(t, err)
		assert.Equal(t, "", other, "sessions must be isolated")
	})
}

func TestStore_UpdateAndReplace(t *testing.T) {
	driverCases(t, func(t *testing.T, open func(...StoreOption) Store) {
		store := open()
		ctx := context.Background()

		require.NoError(t, store.Update(ctx, "s1", map[string]any{
			"first_name": "Jane",
			"last_name":  "Doe",
		}))
		require.NoError(t, store.Update(ctx, "s1", map[string]any{"patient_state": "FL"}))

		for key, want := range map[string]string{"first_name": "Jane", "last_name": "Doe", "patient_state": "FL"} {
			v, err := store.Get(ctx, "s1", key, "")
			require.NoError(t, err)
			assert.Equal(t, want, v, key)
		}

		require.NoError(t, store.Replace(ctx, "s1", map[string]any{"flow": "existing_patient"}))
		v, _ := store.Get(ctx, "s1", "first_name", "gone")
		assert.Equal(t, "gone", v)
		v, _ = store.Get(ctx, "s1", "flow", "")
		assert.Equal(t, "existing_patient", v)
	})
}

func TestStore_ClearAndDelete(t *testing.T) {
	driverCases(t, func(t *testing.T, open func(...StoreOption) Store) {
		store := open()
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, "s1", "phone_number", "(402) 956-3584"))
		require.NoError(t, store.Clear(ctx, "s1"))
		v, _ := store.Get(ctx, "s1", "phone_number", "")
		assert.Equal(t, "", v)

		require.NoError(t, store.Set(ctx, "s1", "phone_number", "(402) 956-3584"))
		require.NoError(t, store.Delete(ctx, "s1"))
		v, _ = store.Get(ctx, "s1", "phone_number", "")
		assert.Equal(t, "", v)
	})
}

func TestStore_ExpiredSessionIsInaccessible(t *testing.T) {
	driverCases(t, func(t *testing.T, open func(...StoreOption) Store) {
		clock := newFakeClock()
		store := open(WithClock(clock.Now), WithTTL(time.Hour))
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, "old", "first_name", "Jane"))
		clock.Advance(2 * time.Hour)
		require.NoError(t, store.Set(ctx, "new", "first_name", "John"))

		v, err := store.Get(ctx, "old", "first_name", "default")
		require.NoError(t, err)
		assert.Equal(t, "default", v)

		v, err = store.Get(ctx, "new", "first_name", "default")
		require.NoError(t, err)
		assert.Equal(t, "John", v)
	})
}

func TestStore_GetRefreshesActivity(t *testing.T) {
	driverCases(t, func(t *testing.T, open func(...StoreOption) Store) {
		clock := newFakeClock()
		store := open(WithClock(clock.Now), WithTTL(time.Hour))
		ctx := context.Background()

		require.NoError(t, store.Set(ctx, "s1", "first_name", "Jane"))
		for i := 0; i < 3; i++ {
			clock.Advance(45 * time.Minute)
			v, err := store.Get(ctx, "s1", "first_name", "")
			require.NoError(t, err)
			assert.Equal(t, "Jane", v, "read %d should keep the session alive", i)
		}
	})
}

// =============================================================================
// Memory Driver Tests
// =============================================================================

func TestMemoryStore_WriteSweepsExpiredSessions(t *testing.T) {
	clock := newFakeClock()
	var evicted int
	store := newMemory(t,
		WithClock(clock.Now),
		WithTTL(24*time.Hour),
		WithEvictionHook(func(n int) { evicted += n }),
	)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Set(ctx, fmt.Sprintf("idle-%d", i), "k", i))
	}
	clock.Advance(25 * time.Hour)
	require.NoError(t, store.Set(ctx, "active", "k", "v"))

	ms := store.(*memoryStore)
	assert.Equal(t, 1, ms.Len())
	assert.Equal(t, 5, evicted)
}

func TestMemoryStore_SweepBudgetBoundsWork(t *testing.T) {
	clock := newFakeClock()
	store := newMemory(t, WithClock(clock.Now), WithTTL(time.Hour), WithSweepBudget(2))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, store.Set(ctx, fmt.Sprintf("idle-%d", i), "k", i))
	}
	clock.Advance(2 * time.Hour)
	require.NoError(t, store.Set(ctx, "active", "k", "v"))

	ms := store.(*memoryStore)
	assert.GreaterOrEqual(t, ms.Len(), 11-2, "one write examines at most the budget")

	n, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ms.Len())
	assert.Positive(t, n)
}

func TestMemoryStore_ClosedStore(t *testing.T) {
	store, err := NewStore(StoreTypeMemory)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	ctx := context.Background()
	assert.ErrorIs(t, store.Set(ctx, "s", "k", "v"), ErrClosed)
	v, err := store.Get(ctx, "s", "k", "d")
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, "d", v)
}

func TestMemoryStore_ConcurrentUpdatesAreAtomic(t *testing.T) {
	store := newMemory(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			val := fmt.Sprintf("v%d", n)
			_ = store.Update(ctx, "shared", map[string]any{"a": val, "b": val})
		}(i)
	}

	stop := make(chan struct{})
	var mismatches int
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		ms := store.(*memoryStore)
		for {
			select {
			case <-stop:
				return
			default:
			}
			ms.mu.Lock()
			if rec, ok := ms.sessions["shared"]; ok && rec.Values["a"] != rec.Values["b"] {
				mismatches++
			}
			ms.mu.Unlock()
		}
	}()

	wg.Wait()
	close(stop)
	readers.Wait()
	assert.Zero(t, mismatches)
}

// =============================================================================
// Redis Driver Helpers
// =============================================================================

func TestDecodeRecord(t *testing.T) {
	rec, err := decodeRecord("")
	require.NoError(t, err)
	assert.Empty(t, rec.Values)

	rec, err = decodeRecord(`{"values":{"first_name":"Jane","slot":2},"last_activity":"2025-03-10T09:00:00Z"}`)
	require.NoError(t, err)
	assert.Equal(t, "Jane", rec.Values["first_name"])
	assert.Equal(t, float64(2), rec.Values["slot"])

	_, err = decodeRecord("{not json")
	assert.Error(t, err)
}
