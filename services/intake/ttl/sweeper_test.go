// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ttl

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianIntake/services/intake/observability"
	"github.com/AleutianAI/AleutianIntake/services/intake/session"
)

type fakeStore struct {
	calls atomic.Int32
	n     int
	err   error
}

func (f *fakeStore) Sweep(_ context.Context) (int, error) {
	f.calls.Add(1)
	return f.n, f.err
}

func TestRunNow(t *testing.T) {
	store := &fakeStore{n: 3}
	s := NewSweeper(store)

	result, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Evicted)
	assert.GreaterOrEqual(t, result.Duration(), time.Duration(0))
}

func TestRunNow_Error(t *testing.T) {
	s := NewSweeper(&fakeStore{err: errors.New("boom")})
	_, err := s.RunNow(context.Background())
	assert.EqualError(t, err, "boom")
}

func TestStart_SweepsImmediatelyAndOnTick(t *testing.T) {
	store := &fakeStore{}
	s := NewSweeper(store, WithInterval(10*time.Millisecond))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return store.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestStart_Twice(t *testing.T) {
	s := NewSweeper(&fakeStore{}, WithInterval(time.Hour))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)
}

func TestStop_HaltsLoop(t *testing.T) {
	store := &fakeStore{}
	s := NewSweeper(store, WithInterval(5*time.Millisecond))
	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return store.calls.Load() >= 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.Stop())
	after := store.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, store.calls.Load())

	assert.NoError(t, s.Stop(), "second Stop is a no-op")
}

func TestStop_ConcurrentCallers(t *testing.T) {
	s := NewSweeper(&fakeStore{}, WithInterval(time.Hour))
	require.NoError(t, s.Start(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Stop())
		}()
	}
	wg.Wait()
}

func TestStart_AfterStop(t *testing.T) {
	store := &fakeStore{}
	s := NewSweeper(store, WithInterval(time.Hour))
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())

	before := store.calls.Load()
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.Eventually(t, func() bool { return store.calls.Load() > before }, time.Second, time.Millisecond)
}

func TestContextCancelStopsLoop(t *testing.T) {
	store := &fakeStore{}
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSweeper(store, WithInterval(5*time.Millisecond))
	require.NoError(t, s.Start(ctx))

	cancel()
	// Stop still returns once the loop has observed the cancellation.
	assert.NoError(t, s.Stop())
}

func TestSweeper_EvictsIdleMemorySessions(t *testing.T) {
	var (
		mu  sync.Mutex
		now = time.Date(2025, 1, 3, 9, 0, 0, 0, time.UTC)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	store, err := session.NewStore(session.StoreTypeMemory,
		session.WithTTL(time.Hour),
		session.WithClock(clock),
		session.WithEvictionHook(metrics.RecordEvictions),
	)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "a", "first_name", "Jane"))
	require.NoError(t, store.Set(ctx, "b", "first_name", "John"))

	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()

	result, err := NewSweeper(store).RunNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Evicted)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.SessionsEvictedTotal))

	got, err := store.Get(ctx, "a", "first_name", "")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}
