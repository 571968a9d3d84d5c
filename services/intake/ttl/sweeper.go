// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ttl runs periodic eviction of idle dialogue sessions.
//
// The memory driver also sweeps opportunistically on writes, but a quiet
// service never writes, so the background sweep is what bounds memory when
// traffic stops. Drivers with native expiry (redis, badger) report zero and
// the sweep is a cheap no-op for them.
package ttl

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the sweep period.
const DefaultInterval = 10 * time.Minute

// ErrAlreadyRunning is returned by Start on a running sweeper.
var ErrAlreadyRunning = errors.New("sweeper is already running")

// Sweepable is the part of session.Store the sweeper needs.
type Sweepable interface {
	Sweep(ctx context.Context) (int, error)
}

// SweepResult summarizes one cycle.
type SweepResult struct {
	Evicted   int
	StartTime time.Time
	EndTime   time.Time
}

// Duration returns the cycle's wall time.
func (r SweepResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// Sweeper evicts expired sessions on a fixed interval.
//
// # Description
//
// Start launches a goroutine that sweeps once immediately and then on every
// tick until Stop is called or the context is cancelled. RunNow performs a
// synchronous cycle for tests and admin tooling.
//
// # Thread Safety
//
// Start, Stop and RunNow are safe for concurrent use.
type Sweeper struct {
	store    Sweepable
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	done    chan struct{}
	stopped chan struct{}
	running bool
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithInterval overrides DefaultInterval. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock injects the time source for SweepResult timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSweeper creates a stopped sweeper over store.
func NewSweeper(store Sweepable, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:    store,
		interval: DefaultInterval,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the background loop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})

	s.logger.Info("session sweeper starting", "interval", s.interval.String())
	go s.runLoop(ctx, s.done, s.stopped)
	return nil
}

// Stop signals the loop to exit and waits for it. Stopping a stopped
// sweeper is a no-op.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.done)
	stopped := s.stopped
	s.mu.Unlock()

	<-stopped
	s.logger.Info("session sweeper stopped")
	return nil
}

// RunNow performs one sweep synchronously.
func (s *Sweeper) RunNow(ctx context.Context) (SweepResult, error) {
	result := SweepResult{StartTime: s.now()}
	n, err := s.store.Sweep(ctx)
	result.Evicted = n
	result.EndTime = s.now()
	return result, err
}

func (s *Sweeper) runLoop(ctx context.Context, done <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	result, err := s.RunNow(ctx)
	if err != nil {
		s.logger.Error("session sweep failed", "error", err)
		return
	}
	if result.Evicted > 0 {
		s.logger.Info("session sweep completed",
			"evicted", result.Evicted,
			"duration_ms", result.Duration().Milliseconds(),
		)
		return
	}
	s.logger.Debug("session sweep completed (nothing expired)")
}
