// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package router

import (
	"context"
	"strings"

	"github.com/AleutianAI/AleutianIntake/services/intake/faq"
	"github.com/AleutianAI/AleutianIntake/services/intake/flow"
	"github.com/AleutianAI/AleutianIntake/services/intake/response"
)

var handoffPhrases = []string{"human", "agent", "representative", "talk to someone", "talk to a person"}

// categoryKeywords drive the best-effort re-route. Order matters: the first
// category with a hit wins.
var categoryKeywords = []struct {
	category faq.Category
	keywords []string
}{
	{faq.CategoryAppointment, []string{"appointment", "schedule", "book", "reschedule", "availability"}},
	{faq.CategoryPrescription, []string{"prescription", "refill", "medication", "meds", "pharmacy"}},
	{faq.CategoryInsurance, []string{"insurance", "coverage", "covered", "copay", "deductible"}},
	{faq.CategoryBilling, []string{"bill", "payment", "pay ", "receipt", "invoice", "cost", "price", "superbill"}},
	{faq.CategoryPractitioner, []string{"practitioner", "provider", "doctor", "nurse", "message"}},
	{faq.CategoryGeneral, []string{"information", "info", "contact", "address", "website", "email", "fax", "services"}},
}

var chipsAppointmentHint = []string{"📅 Schedule Appointment", "Return to Main Menu"}

const textAppointmentHint = "It sounds like you'd like help with an appointment. Would you like to schedule one?"

// sniffCategory returns the first category whose keywords appear in text.
func sniffCategory(text string) (faq.Category, bool) {
	t := strings.ToLower(text) + " "
	for _, c := range categoryKeywords {
		for _, k := range c.keywords {
			if strings.Contains(t, k) {
				return c.category, true
			}
		}
	}
	return "", false
}

// fallback answers a turn nothing else claimed: human handoff, FAQ,
// hours and telehealth triage, a category hint, then the menu.
func (r *Router) fallback(ctx context.Context, turn *flow.Turn) (response.TurnOutput, error) {
	text := turn.Input.QueryText
	lower := strings.ToLower(text)

	if containsAnyOf(lower, handoffPhrases) {
		return r.handoff(ctx, turn)
	}

	category, sniffed := sniffCategory(lower)
	if answer, ok := r.lookupFAQ(ctx, text, category, sniffed); ok {
		return response.Build(answer, response.WithSuggestions(chipsFallback...)), nil
	}

	switch {
	case containsAnyOf(lower, []string{"hour", "open", "closing"}):
		hours := r.engine.Clinic().Info.Hours
		return response.Build("Our clinic hours are: "+hours+"\n\nWould you like to book an appointment?",
			response.WithSuggestions(chipsAppointmentHint...)), nil
	case containsAnyOf(lower, []string{"telehealth", "video", "virtual"}):
		return response.Build(textTelehealth, response.WithSuggestions(chipsAppointmentHint...)), nil
	}

	if sniffed {
		switch category {
		case faq.CategoryAppointment:
			return response.Build(textAppointmentHint, response.WithSuggestions(chipsAppointmentHint...)), nil
		case faq.CategoryPrescription:
			return r.prescription(ctx, turn)
		case faq.CategoryInsurance:
			return r.insurance(ctx, turn)
		case faq.CategoryBilling:
			return r.billing(ctx, turn)
		case faq.CategoryPractitioner:
			return r.practitionerMessage(ctx, turn)
		case faq.CategoryGeneral:
			return r.generalInformation(ctx, turn)
		}
	}
	return response.Build(textMenu, response.WithSuggestions(chipsFallback...)), nil
}

// lookupFAQ searches the sniffed category first, then the rest.
func (r *Router) lookupFAQ(ctx context.Context, text string, first faq.Category, sniffed bool) (string, bool) {
	if sniffed {
		if answer, ok := r.faq.Lookup(ctx, text, first); ok {
			return answer, true
		}
	}
	for _, c := range faq.Categories() {
		if sniffed && c == first {
			continue
		}
		if answer, ok := r.faq.Lookup(ctx, text, c); ok {
			return answer, true
		}
	}
	return "", false
}

func containsAnyOf(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
