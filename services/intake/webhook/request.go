// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package webhook is the Dialogflow ES fulfillment endpoint.
package webhook

import (
	"github.com/AleutianAI/AleutianIntake/services/intake/dialog"
)

// Request is the subset of a Dialogflow ES WebhookRequest the service reads.
type Request struct {
	ResponseID  string      `json:"responseId"`
	Session     string      `json:"session" binding:"required"`
	QueryResult QueryResult `json:"queryResult"`
}

// QueryResult is the classifier's view of the turn.
type QueryResult struct {
	QueryText      string          `json:"queryText"`
	Parameters     map[string]any  `json:"parameters"`
	Intent         Intent          `json:"intent"`
	OutputContexts []OutputContext `json:"outputContexts"`
}

// Intent identifies the matched intent.
type Intent struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// OutputContext is an active context echoed back by Dialogflow. A missing
// lifespanCount decodes as 0 and is treated as expired.
type OutputContext struct {
	Name          string         `json:"name"`
	LifespanCount int            `json:"lifespanCount"`
	Parameters    map[string]any `json:"parameters"`
}

// TurnInput converts the request for the router.
func (r Request) TurnInput() dialog.TurnInput {
	contexts := make([]dialog.Context, 0, len(r.QueryResult.OutputContexts))
	for _, c := range r.QueryResult.OutputContexts {
		contexts = append(contexts, dialog.Context{
			Name:       c.Name,
			Lifespan:   c.LifespanCount,
			Parameters: c.Parameters,
		})
	}
	entities := r.QueryResult.Parameters
	if entities == nil {
		entities = map[string]any{}
	}
	return dialog.TurnInput{
		SessionID:      dialog.SessionIDFromPath(r.Session),
		SessionPath:    r.Session,
		ResponseID:     r.ResponseID,
		QueryText:      r.QueryResult.QueryText,
		IntentName:     r.QueryResult.Intent.DisplayName,
		ActiveContexts: contexts,
		Entities:       entities,
	}
}
