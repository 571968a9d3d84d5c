// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package response assembles the output of one turn and encodes it in the
// Dialogflow ES fulfillment format.
//
// Nothing here makes decisions. Handlers choose the text, suggestion chips,
// cards and outgoing contexts; this package only shapes them.
package response

import (
	"github.com/AleutianAI/AleutianIntake/services/intake/dialog"
)

// Card is an informational rich card.
type Card struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Link     string `json:"link,omitempty"`
}

// TurnOutput is the result of one turn.
type TurnOutput struct {
	Text             string           `json:"text"`
	Suggestions      []string         `json:"suggestions,omitempty"`
	Cards            []Card           `json:"cards,omitempty"`
	OutgoingContexts []dialog.Context `json:"outgoing_contexts,omitempty"`

	// Failed marks the apology for a turn whose handler errored. Such a
	// reply must not be replayed to a redelivery.
	Failed bool `json:"-"`
}

// Option decorates a TurnOutput under construction.
type Option func(*TurnOutput)

// WithSuggestions attaches suggestion chips in order. Empty labels are
// dropped.
func WithSuggestions(labels ...string) Option {
	return func(o *TurnOutput) {
		for _, l := range labels {
			if l != "" {
				o.Suggestions = append(o.Suggestions, l)
			}
		}
	}
}

// WithCards attaches informational cards.
func WithCards(cards ...Card) Option {
	return func(o *TurnOutput) {
		o.Cards = append(o.Cards, cards...)
	}
}

// WithContexts appends outgoing contexts in order.
func WithContexts(contexts ...dialog.Context) Option {
	return func(o *TurnOutput) {
		o.OutgoingContexts = append(o.OutgoingContexts, contexts...)
	}
}

// Build returns a TurnOutput with text and the given options applied.
func Build(text string, opts ...Option) TurnOutput {
	out := TurnOutput{Text: text}
	for _, opt := range opts {
		opt(&out)
	}
	return out
}
