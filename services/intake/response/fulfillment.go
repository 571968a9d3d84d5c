// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package response

import (
	"strings"

	"github.com/AleutianAI/AleutianIntake/services/intake/dialog"
)

// =============================================================================
// Dialogflow ES wire types
// =============================================================================

// Fulfillment is the webhook response body.
type Fulfillment struct {
	FulfillmentText     string          `json:"fulfillmentText"`
	FulfillmentMessages []Message       `json:"fulfillmentMessages"`
	OutputContexts      []OutputContext `json:"outputContexts,omitempty"`
}

// Message is one entry of fulfillmentMessages. Exactly one field is set.
type Message struct {
	Text    *TextMessage `json:"text,omitempty"`
	Payload *Payload     `json:"payload,omitempty"`
}

// TextMessage holds plain text lines.
type TextMessage struct {
	Text []string `json:"text"`
}

// Payload carries Dialogflow Messenger rich content.
type Payload struct {
	RichContent [][]RichItem `json:"richContent"`
}

// RichItem is a chips list or an info card.
type RichItem struct {
	Type       string       `json:"type"`
	Options    []ChipOption `json:"options,omitempty"`
	Title      string       `json:"title,omitempty"`
	Subtitle   string       `json:"subtitle,omitempty"`
	ActionLink string       `json:"actionLink,omitempty"`
}

// ChipOption is one suggestion chip.
type ChipOption struct {
	Text string `json:"text"`
}

// OutputContext is a context in wire form.
type OutputContext struct {
	Name          string         `json:"name"`
	LifespanCount int            `json:"lifespanCount"`
	Parameters    map[string]any `json:"parameters,omitempty"`
}

// ContextName qualifies a bare context name with the session path.
func ContextName(sessionPath, bare string) string {
	return strings.TrimRight(sessionPath, "/") + "/contexts/" + bare
}

// ToFulfillment encodes out for the session at sessionPath.
//
// # Description
//
// The text becomes both fulfillmentText and the first message. Suggestions
// become a chips payload and cards an info payload, in that order. Context
// names are rebuilt as {sessionPath}/contexts/{bare}; an empty output
// context list is omitted.
func ToFulfillment(out TurnOutput, sessionPath string) Fulfillment {
	f := Fulfillment{
		FulfillmentText: out.Text,
		FulfillmentMessages: []Message{
			{Text: &TextMessage{Text: []string{out.Text}}},
		},
	}

	if len(out.Suggestions) > 0 {
		chips := make([]ChipOption, len(out.Suggestions))
		for i, s := range out.Suggestions {
			chips[i] = ChipOption{Text: s}
		}
		f.FulfillmentMessages = append(f.FulfillmentMessages, Message{
			Payload: &Payload{RichContent: [][]RichItem{{{Type: "chips", Options: chips}}}},
		})
	}

	if len(out.Cards) > 0 {
		items := make([]RichItem, len(out.Cards))
		for i, c := range out.Cards {
			items[i] = RichItem{Type: "info", Title: c.Title, Subtitle: c.Subtitle, ActionLink: c.Link}
		}
		f.FulfillmentMessages = append(f.FulfillmentMessages, Message{
			Payload: &Payload{RichContent: [][]RichItem{items}},
		})
	}

	for _, c := range out.OutgoingContexts {
		f.OutputContexts = append(f.OutputContexts, OutputContext{
			Name:          ContextName(sessionPath, dialog.BareName(c.Name)),
			LifespanCount: c.Lifespan,
			Parameters:    c.Parameters,
		})
	}
	return f
}
