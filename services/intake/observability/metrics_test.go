// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestMetrics registers against an isolated registry so tests can run in
// parallel without colliding on the default one.
func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMetrics(reg), reg
}

func TestRecordTurn(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordTurn(RouteContext, "collect_phone", 20*time.Millisecond)
	m.RecordTurn(RouteContext, "collect_phone", 10*time.Millisecond)
	m.RecordTurn(RouteIntent, "welcome", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues(RouteContext, "collect_phone")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TurnsTotal.WithLabelValues(RouteIntent, "welcome")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.TurnDurationSeconds))
}

func TestRecordCounters(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordReprompt("collect_phone")
	m.RecordReprompt("collect_phone")
	m.RecordSafetyInterception()
	m.RecordHandlerError("select_slot")
	m.RecordDuplicate()
	m.RecordEvictions(3)
	m.RecordEvictions(0)
	m.RecordEvictions(-2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RepromptsTotal.WithLabelValues("collect_phone")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SafetyInterceptionsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandlerErrorsTotal.WithLabelValues("select_slot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DuplicateTurnsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SessionsEvictedTotal))
}

func TestMetricNames(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.RecordTurn(RouteFallback, "fallback", 0)
	m.RecordReprompt("select_slot")
	m.RecordHandlerError("x")

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"intake_turns_total",
		"intake_turn_duration_seconds",
		"intake_reprompts_total",
		"intake_safety_interceptions_total",
		"intake_handler_errors_total",
		"intake_duplicate_turns_total",
		"intake_sessions_evicted_total",
	}, names)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTurn(RouteSafety, "safety", time.Second)
		m.RecordReprompt("collect_name")
		m.RecordSafetyInterception()
		m.RecordHandlerError("x")
		m.RecordDuplicate()
		m.RecordEvictions(4)
	})
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}
