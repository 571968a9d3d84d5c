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
	"strings"

	"github.com/AleutianAI/AleutianIntake/services/intake/flow"
)

// Intent is a classifier intent the router knows how to handle.
type Intent string

const (
	IntentUnknown Intent = ""

	IntentWelcome             Intent = "welcome"
	IntentScheduleAppointment Intent = "schedule_appointment"
	IntentNewPatient          Intent = "new_patient"
	IntentExistingPatient     Intent = "existing_patient"
	IntentCollectName         Intent = "collect_name"
	IntentCollectState        Intent = "collect_state"
	IntentCollectInsurance    Intent = "collect_insurance"
	IntentSelectVisitType     Intent = "select_new_visit_type"
	IntentCollectPractitioner Intent = "collect_practitioner"
	IntentSelectTime          Intent = "select_time"
	IntentCollectPhone        Intent = "collect_phone"
	IntentConfirmAppointment  Intent = "confirm_appointment"
	IntentCancel              Intent = "cancel"

	IntentPrescription        Intent = "prescription_entry"
	IntentInsurance           Intent = "insurance_entry"
	IntentBilling             Intent = "billing_entry"
	IntentPractitionerMessage Intent = "practitioner_message_entry"
	IntentGeneralInformation  Intent = "general_information"
	IntentHumanHandoff        Intent = "human_handoff"
)

// intentAliases maps classifier display names onto intents. Several agent
// versions named the same intent differently.
var intentAliases = map[string]Intent{
	"default welcome intent": IntentWelcome,
	"welcome":                IntentWelcome,
	"greeting":               IntentWelcome,
	"start":                  IntentWelcome,

	"schedule_appointment": IntentScheduleAppointment,
	"appointment_entry":    IntentScheduleAppointment,

	"new_patient":              IntentNewPatient,
	"new_patient_handler":      IntentNewPatient,
	"existing_patient":         IntentExistingPatient,
	"existing_patient_handler": IntentExistingPatient,

	"collect_name":                  IntentCollectName,
	"collect_new_patient_name":      IntentCollectName,
	"collect_existing_patient_name": IntentCollectName,

	"collect_state":             IntentCollectState,
	"collect_new_patient_state": IntentCollectState,

	"collect_insurance":             IntentCollectInsurance,
	"collect_new_patient_insurance": IntentCollectInsurance,

	"select_new_visit_type": IntentSelectVisitType,

	"collect_practitioner":                  IntentCollectPractitioner,
	"collect_existing_patient_practitioner": IntentCollectPractitioner,

	"select_time":                     IntentSelectTime,
	"select_appointment_slot_handler": IntentSelectTime,
	"select_existing_patient_slot":    IntentSelectTime,

	"collect_phone":                          IntentCollectPhone,
	"collect_phone_consultation":             IntentCollectPhone,
	"collect_assessment_phone_final_handler": IntentCollectPhone,
	"collect_existing_phone_final":           IntentCollectPhone,

	"confirm_appointment":                   IntentConfirmAppointment,
	"appointment_complete_response_handler": IntentConfirmAppointment,

	"cancel":             IntentCancel,
	"cancellation":       IntentCancel,
	"cancel_appointment": IntentCancel,

	"prescription_entry":         IntentPrescription,
	"insurance_entry":            IntentInsurance,
	"billing_entry":              IntentBilling,
	"practitioner_message_entry": IntentPractitionerMessage,
	"general_information":        IntentGeneralInformation,

	"human_handoff":            IntentHumanHandoff,
	"91_human_handoff_request": IntentHumanHandoff,
}

// ParseIntent resolves a classifier display name. Matching ignores case and
// surrounding whitespace. Unregistered names return IntentUnknown.
func ParseIntent(displayName string) Intent {
	return intentAliases[strings.ToLower(strings.TrimSpace(displayName))]
}

// String returns the canonical name, or "unknown".
func (i Intent) String() string {
	if i == IntentUnknown {
		return "unknown"
	}
	return string(i)
}

// stepIntents route straight into a state machine step. They are used when
// the classifier names a step but the waiting context has already expired;
// the step then recovers what it needs from the session.
var stepIntents = map[Intent]flow.State{
	IntentCollectName:         flow.StateCollectName,
	IntentCollectState:        flow.StateCollectState,
	IntentCollectInsurance:    flow.StateCollectInsurance,
	IntentSelectVisitType:     flow.StateSelectVisitType,
	IntentCollectPractitioner: flow.StateCollectPractitioner,
	IntentSelectTime:          flow.StateSelectSlot,
	IntentCollectPhone:        flow.StateCollectPhone,
	IntentConfirmAppointment:  flow.StateComplete,
}
