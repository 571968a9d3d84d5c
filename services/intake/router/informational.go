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
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianIntake/services/intake/dialog"
	"github.com/AleutianAI/AleutianIntake/services/intake/flow"
	"github.com/AleutianAI/AleutianIntake/services/intake/response"
)

// =============================================================================
// Informational intents
// =============================================================================

var (
	chipsMainMenu = []string{
		"📅 Schedule Appointment",
		"💊 Prescriptions",
		"🏥 Insurance",
		"💰 Billing",
		"📞 Contact Provider",
		"ℹ️ General Information",
	}
	chipsPrescription         = []string{"Refill Request", "Prescription Question"}
	chipsPrescriptionFollowUp = []string{"Refill Request", "Prescription Question", "Speak to Provider", "Return to Main Menu"}
	chipsInsurance            = []string{"Verify Coverage", "File Claim", "Get Superbill", "Check Benefits"}
	chipsBilling              = []string{"Pay Bill", "Payment Plan", "Get Receipt", "Self-Pay Rates"}
	chipsGeneral              = []string{"Services", "Practitioners", "Conditions Treated", "Telehealth Info"}
	chipsFallback             = []string{"Book Appointment", "Prescriptions", "Insurance", "Contact Provider"}
)

// prescriptionTopics are the replies that mean "the prescription menu"
// rather than a question about a prescription.
var prescriptionTopics = []string{"prescription", "prescriptions", "💊 prescription", "💊 prescriptions"}

const (
	contextAwaitingPrescriptionAction = "awaiting_prescription_action"
	contextPrescriptionFollowUp       = "prescription_followup"

	textPrescriptionMenu = "I'm here to help with your prescription! Would you like to request a refill, " +
		"or do you have a prescription-related question?"
	textPrescriptionFollowUp = "I didn't quite catch that. Are you asking about your prescription? " +
		"Please rephrase your question or choose an option below."
	textBilling             = "I can help with billing questions. What do you need?"
	textPractitionerMessage = "I can help you leave a message. Which practitioner would you like to contact?"
	textMenu                = "I'm here to help! You can:\n\n" +
		"• Schedule an appointment\n" +
		"• Ask about prescriptions\n" +
		"• Check insurance coverage\n" +
		"• Get billing information\n" +
		"• Leave a message for your practitioner\n\n" +
		"What would you like to do?"
	textHandoff = "I can connect you with a human. Please provide your name, best contact method " +
		"(email or phone), and a brief summary of what you need.\n\n" +
		"We'll route this to our team and someone will reach out as soon as possible."
	textTelehealth = "Telehealth is available by appointment. You'll receive a secure link by email/text " +
		"before your visit. Would you like more details or to schedule?"
)

// greeting returns the salutation for hour (0-23).
func greeting(hour int) string {
	switch {
	case hour < 12:
		return "Good morning"
	case hour < 18:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

// welcome resets the session and greets the user.
func (r *Router) welcome(_ context.Context, turn *flow.Turn) (response.TurnOutput, error) {
	turn.Session.Clear()
	info := r.engine.Clinic().Info

	var b strings.Builder
	fmt.Fprintf(&b, "👋 %s! Welcome to %s!\n\n", greeting(r.now().Hour()), info.Name)
	if info.EmergencyText != "" {
		b.WriteString(info.EmergencyText + "\n\n")
	}
	if info.AssistantName != "" {
		fmt.Fprintf(&b, "I'm %s, the %s assistant. ", info.AssistantName, info.Name)
	}
	b.WriteString("I'm here to help you with appointments, prescriptions, insurance, and more. " +
		"What can I help you with today?")

	return response.Build(b.String(),
		response.WithSuggestions(chipsMainMenu...),
		response.WithContexts(r.engine.Resolver().ExpireWaiting(turn.Input.ActiveContexts, "")...),
	), nil
}

func (r *Router) prescription(_ context.Context, turn *flow.Turn) (response.TurnOutput, error) {
	text := strings.ToLower(strings.TrimSpace(turn.Input.QueryText))
	for _, topic := range prescriptionTopics {
		if text == topic {
			return response.Build(textPrescriptionMenu,
				response.WithSuggestions(chipsPrescription...),
				response.WithContexts(dialog.Context{Name: contextAwaitingPrescriptionAction, Lifespan: 2}),
			), nil
		}
	}
	return response.Build(textPrescriptionFollowUp,
		response.WithSuggestions(chipsPrescriptionFollowUp...),
		response.WithContexts(dialog.Context{Name: contextPrescriptionFollowUp, Lifespan: 4}),
	), nil
}

// insurance lists the first five accepted carriers and the self-pay rates.
func (r *Router) insurance(_ context.Context, _ *flow.Turn) (response.TurnOutput, error) {
	cfg := r.engine.Clinic()
	carriers := cfg.Insurance
	if len(carriers) > 5 {
		carriers = carriers[:5]
	}
	list := strings.Join(carriers, ", ")
	if len(cfg.Insurance) > len(carriers) {
		list += ", and more"
	}
	text := fmt.Sprintf("We accept: %s\n\n", list)
	if rates := cfg.SelfPay; rates.InitialAssessment != "" {
		text += fmt.Sprintf("Self-pay rates:\n• %s\n• %s\n• %s\n\n",
			rates.InitialAssessment, rates.FollowUpShort, rates.FollowUpLong)
	}
	text += "How can I help with insurance today?"
	return response.Build(text, response.WithSuggestions(chipsInsurance...)), nil
}

func (r *Router) billing(_ context.Context, _ *flow.Turn) (response.TurnOutput, error) {
	return response.Build(textBilling, response.WithSuggestions(chipsBilling...)), nil
}

// practitionerMessage offers one card per practitioner.
func (r *Router) practitionerMessage(_ context.Context, _ *flow.Turn) (response.TurnOutput, error) {
	roster := r.engine.Clinic().Practitioners
	cards := make([]response.Card, 0, len(roster))
	names := make([]string, 0, len(roster))
	for _, p := range roster {
		subtitle := p.Bio
		if subtitle == "" {
			subtitle = "Click to select"
		}
		cards = append(cards, response.Card{Title: p.FullName, Subtitle: subtitle})
		names = append(names, p.FirstName)
	}
	return response.Build(textPractitionerMessage,
		response.WithSuggestions(names...),
		response.WithCards(cards...),
	), nil
}

func (r *Router) generalInformation(_ context.Context, _ *flow.Turn) (response.TurnOutput, error) {
	info := r.engine.Clinic().Info
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\n", info.Name)
	fmt.Fprintf(&b, "📞 Phone: %s\n", info.Phone)
	if info.Fax != "" {
		fmt.Fprintf(&b, "📠 Fax: %s\n", info.Fax)
	}
	if info.Email != "" {
		fmt.Fprintf(&b, "📧 Email: %s\n", info.Email)
	}
	if info.Hours != "" {
		fmt.Fprintf(&b, "🕐 Hours: %s\n", info.Hours)
	}
	if info.Website != "" {
		fmt.Fprintf(&b, "🌐 Website: %s\n", info.Website)
	}
	b.WriteString("\nWhat would you like to know?")
	return response.Build(b.String(), response.WithSuggestions(chipsGeneral...)), nil
}

func (r *Router) handoff(_ context.Context, _ *flow.Turn) (response.TurnOutput, error) {
	return response.Build(textHandoff), nil
}
