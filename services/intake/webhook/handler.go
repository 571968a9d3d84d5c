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
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianIntake/services/intake/dialog"
	"github.com/AleutianAI/AleutianIntake/services/intake/observability"
	"github.com/AleutianAI/AleutianIntake/services/intake/response"
)

// TurnHandler answers one dialogue turn. *router.Router implements it.
type TurnHandler interface {
	HandleTurn(ctx context.Context, in dialog.TurnInput) response.TurnOutput
}

// Handler serves POST /webhook.
type Handler struct {
	turns   TurnHandler
	dedupe  *Deduper
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewHandler wires the endpoint. dedupe and metrics may be nil.
func NewHandler(turns TurnHandler, dedupe *Deduper, metrics *observability.Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{turns: turns, dedupe: dedupe, metrics: metrics, logger: logger}
}

// Handle decodes a WebhookRequest, routes the turn and writes the
// fulfillment. Malformed bodies get 400; every routed turn gets 200, since
// the router turns failures into conversational replies.
func (h *Handler) Handle(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("rejected webhook request", "error", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid webhook request"})
		return
	}

	in := req.TurnInput()
	ctx := c.Request.Context()
	run := func() (response.Fulfillment, bool) {
		out := h.turns.HandleTurn(ctx, in)
		return response.ToFulfillment(out, req.Session), !out.Failed
	}

	var (
		out       response.Fulfillment
		duplicate bool
	)
	if h.dedupe != nil {
		out, duplicate = h.dedupe.Do(req.ResponseID, run)
	} else {
		out, _ = run()
	}
	if duplicate {
		h.metrics.RecordDuplicate()
		h.logger.Info("replayed duplicate webhook delivery",
			"response_id", req.ResponseID,
			"session_id", in.SessionID,
		)
	}
	c.JSON(http.StatusOK, out)
}
