// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package intake

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/resource"
	"google.golang.org/grpc"

	"github.com/AleutianAI/AleutianIntake/pkg/extensions"
	"github.com/AleutianAI/AleutianIntake/services/intake/config"
	"github.com/AleutianAI/AleutianIntake/services/intake/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newService(t *testing.T, cfg *config.Config, opts *extensions.ServiceOptions, options ...Option) Service {
	t.Helper()
	svc, err := New(cfg, opts, options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func turn(t *testing.T, svc Service, responseID, intent, text string, header map[string]string) (*httptest.ResponseRecorder, response.Fulfillment) {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"responseId": responseID,
		"session":    "projects/sbh/agent/sessions/s-1",
		"queryResult": map[string]any{
			"queryText": text,
			"intent":    map[string]any{"displayName": intent},
		},
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	svc.Router().ServeHTTP(w, req)

	var f response.Fulfillment
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &f))
	}
	return w, f
}

func TestNew_NilConfig(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestService_WelcomeTurn(t *testing.T) {
	svc := newService(t, config.Default(), nil)

	w, f := turn(t, svc, "r-1", "welcome", "hi", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, f.FulfillmentText, "Welcome to Solrei Behavioral Health")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestService_StartsAppointmentFlow(t *testing.T) {
	svc := newService(t, config.Default(), nil)

	_, f := turn(t, svc, "r-1", "schedule_appointment", "book an appointment", nil)
	require.NotEmpty(t, f.OutputContexts)
	assert.True(t, strings.HasPrefix(f.OutputContexts[0].Name, "projects/sbh/agent/sessions/s-1/contexts/"))
}

func TestService_CrisisTextIntercepted(t *testing.T) {
	svc := newService(t, config.Default(), nil)

	_, f := turn(t, svc, "r-1", "collect_phone", "I need to call 988 right now", nil)
	assert.Contains(t, f.FulfillmentText, "988")
	assert.Empty(t, f.OutputContexts)
}

func TestService_RedeliveryReplayed(t *testing.T) {
	svc := newService(t, config.Default(), nil)

	w1, _ := turn(t, svc, "r-1", "welcome", "hi", nil)
	w2, _ := turn(t, svc, "r-1", "welcome", "hi", nil)
	assert.Equal(t, w1.Body.String(), w2.Body.String())

	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "intake_duplicate_turns_total 1")
}

func TestService_AuthToken(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.Token = "s3cret"
	svc := newService(t, cfg, nil)

	w, _ := turn(t, svc, "r-1", "welcome", "hi", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = turn(t, svc, "r-2", "welcome", "hi", map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusOK, w.Code)
}

type denyAll struct{}

func (denyAll) Validate(context.Context, string) (*extensions.AuthInfo, error) {
	return nil, extensions.ErrUnauthorized
}

func TestService_CustomAuthProviderWins(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.Token = "s3cret"
	opts := extensions.DefaultOptions().WithAuth(denyAll{})
	svc := newService(t, cfg, &opts)

	w, _ := turn(t, svc, "r-1", "welcome", "hi", map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestService_HealthAndBanner(t *testing.T) {
	svc := newService(t, config.Default(), nil)

	for _, path := range []string{"/", "/health"} {
		w := httptest.NewRecorder()
		svc.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestService_BadgerDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Session.Driver = "badger"
	cfg.Session.BadgerPath = filepath.Join(t.TempDir(), "sessions")
	svc := newService(t, cfg, nil)

	w, _ := turn(t, svc, "r-1", "welcome", "hi", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestService_FAQCatalogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
general:
  - keywords: ["parking"]
    answer: "Free parking is available behind the building."
`), 0o644))

	cfg := config.Default()
	cfg.FAQ.CatalogFile = path
	svc := newService(t, cfg, nil)

	_, f := turn(t, svc, "r-1", "", "where is parking", nil)
	assert.Equal(t, "Free parking is available behind the building.", f.FulfillmentText)
}

func TestNew_MissingCatalogFails(t *testing.T) {
	cfg := config.Default()
	cfg.FAQ.CatalogFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestService_ClinicHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "intake.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clinic:\n  info:\n    name: First Clinic\n    phone: \"1\"\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	svc := newService(t, cfg, nil, WithConfigPath(path))

	_, f := turn(t, svc, "r-1", "welcome", "hi", nil)
	assert.Contains(t, f.FulfillmentText, "First Clinic")

	s := svc.(*service)
	require.NoError(t, os.WriteFile(path, []byte("clinic:\n  info:\n    name: Second Clinic\n    phone: \"1\"\n"), 0o644))
	require.NoError(t, s.watcher.Reload())

	_, f = turn(t, svc, "r-2", "welcome", "hi", nil)
	assert.Contains(t, f.FulfillmentText, "Second Clinic")
}

func TestClose_Idempotent(t *testing.T) {
	svc, err := New(config.Default(), nil)
	require.NoError(t, err)
	assert.NoError(t, svc.Close())
	assert.NoError(t, svc.Close())
}

func TestNew_TracerResourceFailureDoesNotDial(t *testing.T) {
	origResource, origDial := newTraceResource, dialCollector
	t.Cleanup(func() { newTraceResource, dialCollector = origResource, origDial })

	newTraceResource = func(context.Context, ...resource.Option) (*resource.Resource, error) {
		return nil, errors.New("conflicting schema URL")
	}
	dialed := false
	dialCollector = func(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
		dialed = true
		return origDial(target, opts...)
	}

	cfg := config.Default()
	cfg.Telemetry.Endpoint = "127.0.0.1:4317"
	cfg.Telemetry.Insecure = true

	_, err := New(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create resource")
	assert.False(t, dialed, "no collector connection is opened when the resource cannot be built")
}
