// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package flow

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianIntake/services/intake/clinic"
)

// Chip labels shared across steps.
var (
	chipsPatientType   = []string{"🆕 New Patient", "↩️ Existing Patient"}
	chipsInsurance     = []string{"Aetna", "Cigna", "United Healthcare", "BCBS", "Self-Pay", "Other"}
	chipsNotEligible   = []string{"Try Another State", "Join Waitlist"}
	chipsVisitType     = []string{"Phone Consultation", "Initial Assessment"}
	chipsConfirmed     = []string{"Schedule another appointment", "Cancel appointment", "I'm all set"}
	chipsAnythingElse  = []string{"No, I'm all set", "Schedule another"}
	chipsCancellation  = []string{"Call Office", "Reschedule", "No longer need appointment"}
	chipsAfterWaitlist = []string{"📅 Schedule Appointment", "ℹ️ General Information"}
)

const (
	textAskPatientType = "Are you a new patient or an existing patient?"

	textNewPatient = "Welcome! I'll help you schedule your first appointment. 🌟\n\n" +
		"Let's start with your name. Please provide your first and last name (for example: Jane Doe)."

	textExistingPatient = "Welcome back! 👋\n\n" +
		"To help you schedule your appointment, could you please tell me your full name?"

	textNameRepromptNew = "Please provide both your first and last name (for example: Jane Doe)."

	textNameRepromptExisting = "I need both your first and last name to look up your records. " +
		"Could you please provide your full name?"

	textAskState = "What state do you live in?"

	textAskInsurance = "Could you tell me who your insurance carrier is?"

	textVisitTypeOptions = "For new patients, we offer a free 15-minute **phone consultation**.\n" +
		"It is not a clinical visit, but is informational and can help determine " +
		"if we are a good fit for each other.\n\n" +
		"The other option, which will get you started more quickly, " +
		"is a 55-minute **Initial Assessment** done via telehealth. " +
		"This is a clinical appointment where your practitioner will start the process of treatment. " +
		"Sometimes medications are prescribed if that is what the practitioner determines. " +
		"It's basically a way to get you started with treatment as soon as possible. " +
		"Do you have a preference?"

	textVisitTypeExplanation = "Let me explain both options:\n\n" +
		"**Free Phone Consultation (15 min):**\n" +
		"• No cost to you\n" +
		"• Brief discussion of your needs\n" +
		"• Determine if we're a good fit\n" +
		"• No prescriptions\n\n" +
		"**Initial Assessment (55 min):**\n" +
		"• Comprehensive evaluation\n" +
		"• Create treatment plan\n" +
		"• Prescriptions if appropriate\n" +
		"• Covered by most insurance\n\n" +
		"Which would you prefer?"

	textVisitTypeReprompt = "Please select one of the options to continue:\n" +
		"• Phone Consultation\n" +
		"• Initial Assessment"

	textPhoneReprompt = "Please provide a valid 10-digit phone number (like 402-956-3584)."

	textAnythingElse = "Is there anything else I can help you with?"

	textNameLost = "I'm sorry, I lost track of your details. " +
		"Could you please tell me your first and last name again?"

	textStateLost = "I'm sorry, I didn't catch which state you live in. " + textAskState

	textSlotLost = "I'm sorry, I lost track of the appointment time you picked. Let's choose it again."
)

func textAppointmentEntry(encouragement string) string {
	intro := "I'll help you schedule an appointment. " + textAskPatientType
	if encouragement == "" {
		return intro
	}
	return encouragement + "\n\n" + intro
}

func textNameThanksNew(first string) string {
	return fmt.Sprintf("Thank you, %s! I would like to collect some information so we can get an "+
		"appointment scheduled for you.\nFirst, what state do you live in?", first)
}

func textNameThanksExisting(first string) string {
	return fmt.Sprintf("Thank you, %s! Can you tell me who your current practitioner is?", first)
}

func textStateEligible(first, abbr string, n int) string {
	return fmt.Sprintf("Great news, %s! We have %d practitioner(s) licensed in %s. 🎉\n\n"+
		"Next, I'll need information about your insurance. Could you tell me who your insurance carrier is?",
		first, n, abbr)
}

func textStateNotEligible(first, attempted string) string {
	return fmt.Sprintf("I'm sorry, %s, but we don't currently have practitioners licensed in %s. "+
		"We're expanding to new states regularly.\n\n"+
		"Would you like to try another state?", first, attempted)
}

func textTryAnotherState(first string) string {
	return fmt.Sprintf("No problem, %s! What other state would you like to check?", first)
}

func textWaitlist(attempted string, info clinic.Info) string {
	return fmt.Sprintf("You're on our waitlist for %s. 📝 We'll reach out as soon as one of our "+
		"practitioners is licensed there.\n\n"+
		"In the meantime, you can reach us at %s or %s.", attempted, info.Phone, info.Email)
}

func textInsuranceAccepted(insurance string) string {
	return fmt.Sprintf("Excellent! We have practitioners who are in network with %s. "+
		"Now, let's determine the best way to get you started.\n", insurance) + textVisitTypeOptions
}

func textInsuranceSelfPay(insurance string, rates clinic.SelfPayRates) string {
	return fmt.Sprintf("Thank you! %s isn't on our in-network list yet, but you can still be seen "+
		"as a self-pay patient (%s). Now, let's determine the best way to get you started.\n",
		insurance, rates.InitialAssessment) + textVisitTypeOptions
}

func textPhoneConsultation(first string) string {
	return fmt.Sprintf("Excellent choice, %s! The free consultation is a great way to start. 📞\n\n"+
		"To schedule your consultation, I just need your phone number. "+
		"Someone from our clinic will call you within 1-2 business days "+
		"to schedule the 15 minute phone consult.\n\n"+
		"What's the best number to reach you?", first)
}

func textInitialAssessment(first string, slots []Slot) string {
	return fmt.Sprintf("I think that's a great decision, %s!\n"+
		"Let me check what available times and dates we may have available "+
		"so we can schedule your initial assessment. 🗓️\n\n"+
		"Here are our next available slots: \n\n%s"+
		"Please type the number of your preferred slot (1-%d) "+
		"or you can tell me when you'd like to schedule the telehealth visit.",
		first, formatSlotList(slots), len(slots))
}

func textPractitionerSlots(p clinic.Practitioner, slots []Slot) string {
	return fmt.Sprintf("Great! Scheduling you with %s.\n\n"+
		"Here are the next available slots:\n\n%s\n"+
		"Please type the number of your preferred slot (1-%d) or tell me another time that works for you.",
		p.DisplayName(), formatSlotList(slots), len(slots))
}

func textNoSlots(info clinic.Info) string {
	return fmt.Sprintf("I'm sorry, I don't see any open appointment times right now. "+
		"Please call us at %s and we'll find a time that works for you.", info.Phone)
}

func textPractitionerNotFound(roster []clinic.Practitioner) string {
	lines := make([]string, len(roster))
	for i, p := range roster {
		lines[i] = "• " + p.DisplayName()
	}
	return "I couldn't find that provider in our system. " +
		"Here are our available practitioners:\n\n" + strings.Join(lines, "\n") +
		"\n\nWhich provider would you like to see?"
}

func textSlotReprompt(n int) string {
	return fmt.Sprintf("Please select a number between 1 and %d.", n)
}

func textDifferentTimes(info clinic.Info, n int) string {
	return fmt.Sprintf("I understand! Our scheduling team can find another time with you at %s. "+
		"Or, if one of the times above works, please type its number (1-%d).", info.Phone, n)
}

func textSlotChosen(s Slot, visitType string) string {
	if visitType == VisitFollowUp {
		return fmt.Sprintf("Perfect! I have you scheduled for: 📅 %s at ⏰ %s. "+
			"What's the best number to reach you for appointment reminders?", s.Date, s.Time)
	}
	return fmt.Sprintf("Perfect! I have you scheduled for:\n📅 %s\n⏰ %s\n\n"+
		"I just need your phone number to confirm the appointment.", s.Date, s.Time)
}

// confirmation holds the details echoed on the confirmation message.
type confirmation struct {
	PatientName  string
	Practitioner string
	Date         string
	Time         string
	Phone        string
	Number       string
	VisitType    string
}

func textConfirmed(c confirmation) string {
	first := firstNameOf(c.PatientName)
	if c.VisitType == VisitPhoneConsultation {
		return fmt.Sprintf("Perfect! I have your number as %s. ✅\n\n"+
			"Someone from our clinic will call you within 1-2 business days "+
			"to schedule your free consultation with a practitioner.\n"+
			"Your reference number is %s.\n\n"+
			"Is there anything else I can help you with today, %s?", c.Phone, c.Number, first)
	}
	var b strings.Builder
	b.WriteString("Perfect! Your appointment is confirmed! 🎉\n\n")
	b.WriteString("📋 **Appointment Details:**\n")
	fmt.Fprintf(&b, "• Patient: %s\n", c.PatientName)
	if c.Practitioner != "" {
		fmt.Fprintf(&b, "• Practitioner: %s\n", c.Practitioner)
	}
	fmt.Fprintf(&b, "• Date: %s\n", c.Date)
	fmt.Fprintf(&b, "• Time: %s\n", c.Time)
	fmt.Fprintf(&b, "• Phone: %s\n", c.Phone)
	fmt.Fprintf(&b, "• Confirmation #: %s\n\n", c.Number)
	b.WriteString("You'll receive a text message reminder 24 hours before your appointment.\n\n")
	fmt.Fprintf(&b, "Is there anything else I can help you with today, %s?", first)
	return b.String()
}

func textGoodbye(first, practitioner, date, tm, number string) string {
	if date == "" {
		return fmt.Sprintf("Perfect! You're all set, %s! 😊\n\n"+
			"Someone from our clinic will call you within 1-2 business days.\n"+
			"Your reference number is %s.\n\n"+
			"Have a wonderful day! 👋", first, number)
	}
	return fmt.Sprintf("Perfect! You're all set, %s! 😊\n\n"+
		"%s will see you for your telehealth appointment %s at %s.\n"+
		"Your confirmation number is %s.\n\n"+
		"Have a wonderful day! 👋", first, practitioner, date, tm, number)
}

func textCancellation(info clinic.Info) string {
	return "We're sorry to hear you'd like to cancel your appointment. " +
		"To proceed, please call our office at " + info.Phone +
		" or reply here with your reason for cancellation."
}
