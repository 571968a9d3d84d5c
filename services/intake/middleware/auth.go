// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides the gin middleware in front of the webhook:
// caller authentication, request IDs and rate limiting.
//
// # Request Flow
//
//	Request
//	   │
//	   ▼
//	RequestID ──► X-Request-ID echoed, stored in context
//	   │
//	   ▼
//	AuthMiddleware ──► provider.Validate(ctx, bearer token)
//	   │
//	   ▼
//	RateLimit ──► 429 when the token bucket is empty
//	   │
//	   ▼
//	webhook.Handler
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianIntake/pkg/extensions"
)

const authInfoKey = "aleutian_auth_info"

// SetAuthInfo stores the authenticated caller in the gin context.
func SetAuthInfo(c *gin.Context, info *extensions.AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo returns the caller stored by AuthMiddleware, or nil.
func GetAuthInfo(c *gin.Context) *extensions.AuthInfo {
	if info, exists := c.Get(authInfoKey); exists {
		if authInfo, ok := info.(*extensions.AuthInfo); ok {
			return authInfo
		}
	}
	return nil
}

// AuthMiddleware authenticates webhook callers.
//
// # Description
//
// Extracts the bearer token from the Authorization header and validates it
// with provider. Dialogflow is configured to send the token as a static
// header on the fulfillment webhook. Failures abort with 401 and never
// reach the router, so an unauthenticated request cannot touch session
// state.
//
// # Inputs
//
//   - provider: Token validator. Must not be nil.
//   - logger: Receives rejected attempts. Nil uses slog.Default().
//
// # Thread Safety
//
// The returned handler is safe for concurrent use when provider is.
func AuthMiddleware(provider extensions.AuthProvider, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		token := extractBearerToken(c)

		authInfo, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			logger.Warn("webhook authentication failed",
				"client_ip", c.ClientIP(),
				"request_id", GetRequestID(c),
				"error", err,
			)
			msg := "authentication failed"
			if errors.Is(err, extensions.ErrUnauthorized) {
				msg = "unauthorized"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		SetAuthInfo(c, authInfo)
		c.Next()
	}
}

// extractBearerToken returns the token of an "Authorization: Bearer <t>"
// header, or "" when the header is absent or uses another scheme. The
// scheme match is case-insensitive.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
