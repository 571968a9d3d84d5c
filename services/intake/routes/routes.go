// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianIntake/pkg/extensions"
	"github.com/AleutianAI/AleutianIntake/services/intake/middleware"
	"github.com/AleutianAI/AleutianIntake/services/intake/webhook"
)

// Deps are the collaborators SetupRoutes mounts.
//
// # Fields
//
//   - Webhook: Fulfillment handler. Required.
//   - Auth: Validates webhook callers. Nil means NopAuthProvider.
//   - Gatherer: Serves /metrics. Nil disables the endpoint.
//   - Health: Optional readiness check run by /health.
//   - RateLimit, RateBurst: Webhook token bucket. RateLimit 0 disables.
//   - ServiceName, Version: Shown by the / banner.
type Deps struct {
	Webhook     *webhook.Handler
	Auth        extensions.AuthProvider
	Gatherer    prometheus.Gatherer
	Health      func(ctx context.Context) error
	RateLimit   float64
	RateBurst   int
	ServiceName string
	Version     string
	Logger      *slog.Logger
}

// healthTimeout bounds the readiness check.
const healthTimeout = 2 * time.Second

// SetupRoutes mounts the intake endpoints on router:
//
//	GET  /          service banner
//	GET  /health    liveness plus the optional readiness check
//	GET  /metrics   Prometheus exposition
//	POST /webhook   Dialogflow fulfillment (auth, rate limit)
func SetupRoutes(router *gin.Engine, deps Deps) {
	auth := deps.Auth
	if auth == nil {
		auth = &extensions.NopAuthProvider{}
	}

	router.GET("/", banner(deps.ServiceName, deps.Version))
	router.GET("/health", health(deps.Health))
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	router.POST("/webhook",
		middleware.AuthMiddleware(auth, deps.Logger),
		middleware.RateLimit(deps.RateLimit, deps.RateBurst),
		deps.Webhook.Handle,
	)
}

func banner(name, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": name,
			"version": version,
			"status":  "running",
		})
	}
}

func health(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
			defer cancel()
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	}
}
