// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the intake service.
//
// # Description
//
// Metrics cover turn routing, validation re-prompts, safety interceptions,
// handler failures, duplicate webhook deliveries and session eviction.
// They are exposed on /metrics.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every Record method is safe to call on a nil *Metrics, which records
// nothing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "intake"

// Route labels for TurnsTotal and TurnDurationSeconds.
const (
	RouteSafety   = "safety"
	RouteContext  = "context"
	RouteIntent   = "intent"
	RouteFallback = "fallback"
	RouteError    = "error"
)

// Metrics holds the intake service collectors.
//
// # Fields
//
//   - TurnsTotal: turns handled, by route and handler.
//   - TurnDurationSeconds: HandleTurn latency, by route.
//   - RepromptsTotal: validation failures, by waiting state.
//   - SafetyInterceptionsTotal: turns answered with the crisis message.
//   - HandlerErrorsTotal: handler errors and panics, by handler.
//   - DuplicateTurnsTotal: webhook deliveries answered from the replay cache.
//   - SessionsEvictedTotal: sessions removed for inactivity.
type Metrics struct {
	TurnsTotal               *prometheus.CounterVec
	TurnDurationSeconds      *prometheus.HistogramVec
	RepromptsTotal           *prometheus.CounterVec
	SafetyInterceptionsTotal prometheus.Counter
	HandlerErrorsTotal       *prometheus.CounterVec
	DuplicateTurnsTotal      prometheus.Counter
	SessionsEvictedTotal     prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
//
// # Inputs
//
//   - reg: Registerer to use. prometheus.DefaultRegisterer in production,
//     a fresh prometheus.NewRegistry() in tests.
//
// # Limitations
//
//   - Panics if the collectors are already registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TurnsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "turns_total",
				Help:      "Total dialogue turns by route and handler",
			},
			[]string{"route", "handler"},
		),
		TurnDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "turn_duration_seconds",
				Help:      "Time spent handling one dialogue turn in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"route"},
		),
		RepromptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "reprompts_total",
				Help:      "Validation failures that re-prompted the user, by state",
			},
			[]string{"state"},
		),
		SafetyInterceptionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "safety_interceptions_total",
			Help:      "Turns intercepted by crisis detection",
		}),
		HandlerErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "handler_errors_total",
				Help:      "Handler errors and recovered panics, by handler",
			},
			[]string{"handler"},
		),
		DuplicateTurnsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "duplicate_turns_total",
			Help:      "Webhook deliveries answered from the replay cache",
		}),
		SessionsEvictedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_evicted_total",
			Help:      "Sessions evicted after exceeding the inactivity TTL",
		}),
	}
}

// =============================================================================
// Recording Helpers
// =============================================================================

// RecordTurn counts a handled turn and observes its duration.
func (m *Metrics) RecordTurn(route, handler string, d time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(route, handler).Inc()
	m.TurnDurationSeconds.WithLabelValues(route).Observe(d.Seconds())
}

// RecordReprompt counts a validation failure in state.
func (m *Metrics) RecordReprompt(state string) {
	if m == nil {
		return
	}
	m.RepromptsTotal.WithLabelValues(state).Inc()
}

// RecordSafetyInterception counts a crisis interception.
func (m *Metrics) RecordSafetyInterception() {
	if m == nil {
		return
	}
	m.SafetyInterceptionsTotal.Inc()
}

// RecordHandlerError counts a failed or panicking handler.
func (m *Metrics) RecordHandlerError(handler string) {
	if m == nil {
		return
	}
	m.HandlerErrorsTotal.WithLabelValues(handler).Inc()
}

// RecordDuplicate counts a deduplicated webhook delivery.
func (m *Metrics) RecordDuplicate() {
	if m == nil {
		return
	}
	m.DuplicateTurnsTotal.Inc()
}

// RecordEvictions adds n evicted sessions. Non-positive n is ignored.
func (m *Metrics) RecordEvictions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsEvictedTotal.Add(float64(n))
}
