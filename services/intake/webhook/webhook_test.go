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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianIntake/services/intake/dialog"
	"github.com/AleutianAI/AleutianIntake/services/intake/observability"
	"github.com/AleutianAI/AleutianIntake/services/intake/response"
)

const sessionPath = "projects/sbh/agent/sessions/abc-123"

// countingTurns echoes the query text and counts calls.
type countingTurns struct {
	calls atomic.Int32
	last  dialog.TurnInput
	mu    sync.Mutex
	delay time.Duration
}

func (c *countingTurns) HandleTurn(_ context.Context, in dialog.TurnInput) response.TurnOutput {
	n := c.calls.Add(1)
	c.mu.Lock()
	c.last = in
	c.mu.Unlock()
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return response.Build("reply "+in.QueryText,
		response.WithSuggestions("Yes", "No"),
		response.WithContexts(dialog.New("awaiting_name", map[string]any{"n": float64(n)})),
	)
}

func setupEngine(t *testing.T, turns TurnHandler, withDedupe bool) (*gin.Engine, *observability.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	var d *Deduper
	if withDedupe {
		var err error
		d, err = NewDeduper(time.Minute, 100)
		require.NoError(t, err)
		t.Cleanup(d.Close)
	}
	h := NewHandler(turns, d, metrics, nil)

	r := gin.New()
	r.POST("/webhook", h.Handle)
	return r, metrics
}

func webhookBody(responseID, text string) string {
	req := map[string]any{
		"responseId": responseID,
		"session":    sessionPath,
		"queryResult": map[string]any{
			"queryText":  text,
			"parameters": map[string]any{"person": map[string]any{"name": "Jane"}},
			"intent":     map[string]any{"displayName": "collect_name"},
			"outputContexts": []map[string]any{
				{"name": sessionPath + "/contexts/awaiting_name", "lifespanCount": 4},
				{"name": sessionPath + "/contexts/stale"},
			},
		},
	}
	b, _ := json.Marshal(req)
	return string(b)
}

func post(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Fulfillment {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code)
	var f response.Fulfillment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &f))
	return f
}

func TestRequest_TurnInput(t *testing.T) {
	var req Request
	require.NoError(t, json.Unmarshal([]byte(webhookBody("r-1", "Jane Doe")), &req))

	in := req.TurnInput()
	assert.Equal(t, "abc-123", in.SessionID)
	assert.Equal(t, sessionPath, in.SessionPath)
	assert.Equal(t, "r-1", in.ResponseID)
	assert.Equal(t, "Jane Doe", in.QueryText)
	assert.Equal(t, "collect_name", in.IntentName)
	require.Len(t, in.ActiveContexts, 2)
	assert.Equal(t, "awaiting_name", in.ActiveContexts[0].Bare())
	assert.Equal(t, 4, in.ActiveContexts[0].Lifespan)
	assert.False(t, in.ActiveContexts[1].Active(), "missing lifespanCount means expired")
	assert.Contains(t, in.Entities, "person")
}

func TestRequest_TurnInput_NilParameters(t *testing.T) {
	req := Request{Session: sessionPath}
	in := req.TurnInput()
	assert.NotNil(t, in.Entities)
	assert.Empty(t, in.ActiveContexts)
}

func TestHandle_WritesFulfillment(t *testing.T) {
	turns := &countingTurns{}
	r, _ := setupEngine(t, turns, true)

	w := post(r, webhookBody("r-1", "hello"))
	require.Equal(t, http.StatusOK, w.Code)

	var f response.Fulfillment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &f))
	assert.Equal(t, "reply hello", f.FulfillmentText)
	require.Len(t, f.FulfillmentMessages, 2)
	require.NotNil(t, f.FulfillmentMessages[1].Payload)
	assert.Equal(t, "chips", f.FulfillmentMessages[1].Payload.RichContent[0][0].Type)
	require.Len(t, f.OutputContexts, 1)
	assert.Equal(t, sessionPath+"/contexts/awaiting_name", f.OutputContexts[0].Name)
	assert.Equal(t, dialog.DefaultLifespan, f.OutputContexts[0].LifespanCount)
}

func TestHandle_BadRequest(t *testing.T) {
	turns := &countingTurns{}
	r, _ := setupEngine(t, turns, true)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", "{not json"},
		{"missing session", `{"responseId":"x","queryResult":{"queryText":"hi"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(r, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "error")
		})
	}
	assert.Zero(t, turns.calls.Load())
}

func TestHandle_RedeliveryIsReplayed(t *testing.T) {
	turns := &countingTurns{}
	r, metrics := setupEngine(t, turns, true)

	first := post(r, webhookBody("r-1", "hello"))
	second := post(r, webhookBody("r-1", "hello"))

	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int32(1), turns.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DuplicateTurnsTotal))
}

func TestHandle_DistinctIDsBothRun(t *testing.T) {
	turns := &countingTurns{}
	r, metrics := setupEngine(t, turns, true)

	post(r, webhookBody("r-1", "hello"))
	post(r, webhookBody("r-2", "hello"))

	assert.Equal(t, int32(2), turns.calls.Load())
	assert.Zero(t, testutil.ToFloat64(metrics.DuplicateTurnsTotal))
}

func TestHandle_EmptyIDNeverDeduped(t *testing.T) {
	turns := &countingTurns{}
	r, _ := setupEngine(t, turns, true)

	post(r, webhookBody("", "hello"))
	post(r, webhookBody("", "hello"))

	assert.Equal(t, int32(2), turns.calls.Load())
}

func TestHandle_WithoutDeduper(t *testing.T) {
	turns := &countingTurns{}
	r, _ := setupEngine(t, turns, false)

	post(r, webhookBody("r-1", "hello"))
	post(r, webhookBody("r-1", "hello"))

	assert.Equal(t, int32(2), turns.calls.Load())
}

func TestDeduper_ConcurrentDeliveriesShareOneRun(t *testing.T) {
	d, err := NewDeduper(time.Minute, 100)
	require.NoError(t, err)
	defer d.Close()

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func() (response.Fulfillment, bool) {
		calls.Add(1)
		<-release
		return response.Fulfillment{FulfillmentText: "once"}, true
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]response.Fulfillment, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = d.Do("same", fn)
		}(i)
	}
	// Give the goroutines time to join the flight before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "once", r.FulfillmentText)
	}
}

func TestDeduper_Expiry(t *testing.T) {
	d, err := NewDeduper(50*time.Millisecond, 100)
	require.NoError(t, err)
	defer d.Close()

	var calls int
	fn := func() (response.Fulfillment, bool) {
		calls++
		return response.Fulfillment{}, true
	}

	_, dup := d.Do("r-1", fn)
	assert.False(t, dup)
	_, dup = d.Do("r-1", fn)
	assert.True(t, dup)

	// Ristretto expires on its cleanup tick, so poll.
	assert.Eventually(t, func() bool {
		_, ok := d.cache.Get("r-1")
		return !ok
	}, 5*time.Second, 20*time.Millisecond)

	_, dup = d.Do("r-1", fn)
	assert.False(t, dup)
	assert.Equal(t, 2, calls)
}

// flakyTurns fails its first turn the way the router reports a handler
// error, then succeeds.
type flakyTurns struct {
	calls atomic.Int32
}

func (f *flakyTurns) HandleTurn(_ context.Context, in dialog.TurnInput) response.TurnOutput {
	if f.calls.Add(1) == 1 {
		out := response.Build("I apologize, but I encountered an error.")
		out.Failed = true
		return out
	}
	return response.Build("reply " + in.QueryText)
}

func TestHandle_FailedTurnIsRetriedOnRedelivery(t *testing.T) {
	turns := &flakyTurns{}
	r, metrics := setupEngine(t, turns, true)

	first := decode(t, post(r, webhookBody("r-1", "hello")))
	second := decode(t, post(r, webhookBody("r-1", "hello")))
	third := decode(t, post(r, webhookBody("r-1", "hello")))

	assert.Contains(t, first.FulfillmentText, "I apologize")
	assert.Equal(t, "reply hello", second.FulfillmentText)
	assert.Equal(t, "reply hello", third.FulfillmentText)
	assert.Equal(t, int32(2), turns.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DuplicateTurnsTotal))
}

func TestDeduper_DeclinedResultIsNotCached(t *testing.T) {
	d, err := NewDeduper(time.Minute, 100)
	require.NoError(t, err)
	defer d.Close()

	var calls int
	fn := func() (response.Fulfillment, bool) {
		calls++
		return response.Fulfillment{FulfillmentText: "apology"}, false
	}

	_, dup := d.Do("r-1", fn)
	assert.False(t, dup)
	_, dup = d.Do("r-1", fn)
	assert.False(t, dup)
	assert.Equal(t, 2, calls)
}

func TestNewDeduper_Defaults(t *testing.T) {
	d, err := NewDeduper(0, 0)
	require.NoError(t, err)
	defer d.Close()
	assert.Equal(t, DefaultReplayTTL, d.ttl)
}
