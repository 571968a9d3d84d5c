// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package webhook

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianIntake/services/intake/response"
)

const (
	// DefaultReplayTTL is how long a response is kept for redelivery.
	DefaultReplayTTL = 10 * time.Minute

	// DefaultReplayCapacity bounds the number of cached responses.
	DefaultReplayCapacity = 10_000
)

// Deduper makes webhook delivery idempotent per Dialogflow responseId.
//
// # Description
//
// Concurrent deliveries of the same id share one execution through
// singleflight. Completed responses are kept in a bounded TTL cache and
// replayed to later redeliveries, so a retried request never advances the
// conversation twice. Requests without an id always execute.
//
// # Thread Safety
//
// Safe for concurrent use.
type Deduper struct {
	flight singleflight.Group
	cache  *ristretto.Cache[string, response.Fulfillment]
	ttl    time.Duration
}

// NewDeduper creates a replay cache holding up to capacity responses for
// ttl each. Non-positive values select the defaults.
func NewDeduper(ttl time.Duration, capacity int) (*Deduper, error) {
	if ttl <= 0 {
		ttl = DefaultReplayTTL
	}
	if capacity <= 0 {
		capacity = DefaultReplayCapacity
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, response.Fulfillment]{
		NumCounters: int64(capacity) * 10,
		MaxCost:     int64(capacity),
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create replay cache: %w", err)
	}
	return &Deduper{cache: cache, ttl: ttl}, nil
}

type flightResult struct {
	fulfillment response.Fulfillment
	replayed    bool
}

// Do returns the response for id, running fn at most once per id within
// the TTL. fn reports whether its result may be replayed; a result it
// declines is shared with concurrent deliveries but not cached, so a later
// redelivery runs the turn again. duplicate reports whether the result came
// from an earlier or concurrent delivery.
func (d *Deduper) Do(id string, fn func() (f response.Fulfillment, keep bool)) (f response.Fulfillment, duplicate bool) {
	if id == "" {
		out, _ := fn()
		return out, false
	}
	if cached, ok := d.cache.Get(id); ok {
		return cached, true
	}

	v, _, shared := d.flight.Do(id, func() (any, error) {
		if cached, ok := d.cache.Get(id); ok {
			return flightResult{fulfillment: cached, replayed: true}, nil
		}
		out, keep := fn()
		if keep {
			d.cache.SetWithTTL(id, out, 1, d.ttl)
			d.cache.Wait()
		}
		return flightResult{fulfillment: out}, nil
	})
	res := v.(flightResult)
	return res.fulfillment, shared || res.replayed
}

// Close releases the cache.
func (d *Deduper) Close() {
	d.cache.Close()
}
