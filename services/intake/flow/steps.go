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
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianIntake/services/intake/clinic"
	"github.com/AleutianAI/AleutianIntake/services/intake/dialog"
	"github.com/AleutianAI/AleutianIntake/services/intake/response"
)

// =============================================================================
// Entry points
// =============================================================================

// StartAppointment opens the appointment flow and asks for the patient type.
func (e *Engine) StartAppointment(ctx context.Context, turn *Turn) (response.TurnOutput, error) {
	turn.Outcome = OutcomeAdvanced
	turn.Session.Set(KeyFlow, flowAppointment)

	next := dialog.New(StateAwaitPatientType.String(), map[string]any{KeyFlow: flowAppointment})
	return response.Build(textAppointmentEntry(e.encouragement()),
		response.WithSuggestions(chipsPatientType...),
		response.WithContexts(e.advance(turn, "", next)...),
	), nil
}

// StartNewPatient begins name collection for a new patient.
func (e *Engine) StartNewPatient(ctx context.Context, turn *Turn) (response.TurnOutput, error) {
	return e.startPatient(turn, PatientNew, textNewPatient), nil
}

// StartExistingPatient begins name collection for a returning patient.
func (e *Engine) StartExistingPatient(ctx context.Context, turn *Turn) (response.TurnOutput, error) {
	return e.startPatient(turn, PatientExisting, textExistingPatient), nil
}

func (e *Engine) startPatient(turn *Turn, patientType, text string) response.TurnOutput {
	turn.Outcome = OutcomeAdvanced
	turn.Session.Update(map[string]any{
		KeyPatientType: patientType,
		KeyFlow:        flowAppointment,
	})
	next := dialog.New(StateCollectName.String(), map[string]any{
		KeyPatientType: patientType,
		KeyFlow:        flowAppointment,
	})
	return response.Build(text, response.WithContexts(e.advance(turn, StateAwaitPatientType, next)...))
}

// Cancellation points the patient at the office to cancel.
func (e *Engine) Cancellation(ctx context.Context, turn *Turn) (response.TurnOutput, error) {
	turn.Outcome = OutcomeAdvanced
	return response.Build(textCancellation(e.Clinic().Info),
		response.WithSuggestions(chipsCancellation...),
	), nil
}

// =============================================================================
// Steps
// =============================================================================

// awaitPatientType handles a free-text reply to "new or existing?".
func (e *Engine) awaitPatientType(ctx context.Context, turn *Turn) (response.TurnOutput, error) {
	text := strings.ToLower(turn.Input.QueryText)
	switch {
	case containsAny(text, "existing", "returning", "current patient", "been here", "seen before"):
		return e.StartExistingPatient(ctx, turn)
	case strings.Contains(text, "new"), strings.Contains(text, "first time"):
		return e.StartNewPatient(ctx, turn)
	}
	return e.reprompt(turn, StateAwaitPatientType, textAskPatientType, chipsPatientType...), nil
}

// collectName parses "First Last" and branches on the patient type.
func (e *Engine) collectName(ctx context.Context, turn *Turn) (response.TurnOutput, error) {
	patientType, err := e.param(ctx, turn, KeyPatientType)
	if err != nil {
		return response.TurnOutput{}, err
	}

	name, ok := ParseName(turn.Input.QueryText)
	if !ok {
		text := textNameRepromptNew
		if patientType == PatientExisting {
			text = textNameRepromptExisting
		}
		return e.reprompt(turn, StateCollectName, text), nil
	}

	turn.Session.Update(map[string]any{
		KeyFirstName:   name.First,
		KeyLastName:    name.Last,
		KeyPatientName: name.Full(),
	})

	if patientType == PatientExisting {
		next := dialog.New(StateCollectPractitioner.String(), map[string]any{
			KeyPatientName: name.Full(),
			KeyFirstName:   name.First,
			KeyLastName:    name.Last,
		})
		var chips []string
		for _, p := range e.Clinic().Practitioners {
			chips = append(chips, p.FirstName+" "+p.LastName)
		}
		return response.Build(textNameThanksExisting(name.First),
			response.WithSuggestions(chips...),
			response.WithContexts(e.advance(turn, StateCollectName, next)...),
		), nil
	}

	if patientType == "" {
		patientType = PatientNew
	}
	next := dialog.New(StateCollectState.String(), map[string]any{
		KeyFirstName:   name.First,
		KeyLastName:    name.Last,
		KeyPatientName: name.Full(),
		KeyPatientType: patientType,
		KeyFlow:        flowAppointment,
	})
	return response.Build(textNameThanksNew(name.First),
		response.WithContexts(e.advance(turn, StateCollectName, next)...),
	), nil
}

// collectState checks licensing in the patient's state. from is the state
// whose context produced the turn: collect_state, or not_eligible_state when
// the patient answered the retry prompt with a state directly.
func (e *Engine) collectState(ctx context.Context, turn *Turn, from State) (response.TurnOutput, error) {
	patientName, err := e.patientName(ctx, turn)
	if err != nil {
		return response.TurnOutput{}, err
	}
	if patientName == "" {
		return e.askNameAgain(ctx, turn, from)
	}
	first := dialog.StringParam(turn.Params, KeyFirstName)
	if first == "" {
		first = firstNameOf(patientName)
	}

	input := strings.TrimSpace(turn.Input.QueryText)
	if input == "" {
		return e.reprompt(turn, from, textAskState), nil
	}

	cfg := e.Clinic()
	abbr := cfg.ResolveState(input)
	available := cfg.PractitionersIn(abbr)

	if len(available) == 0 {
		next := dialog.New(StateNotEligible.String(), map[string]any{
			KeyPatientName:    patientName,
			"attempted_state": input,
		})
		return response.Build(textStateNotEligible(first, input),
			response.WithSuggestions(chipsNotEligible...),
			response.WithContexts(e.advance(turn, from, next)...),
		), nil
	}

	turn.Session.Set(KeyPatientState, abbr)
	next := dialog.New(StateCollectInsurance.String(), map[string]any{
		KeyPatientName:  patientName,
		KeyPatientState: abbr,
		KeyPatientType:  PatientNew,
	})
	return response.Build(textStateEligible(first, abbr, len(available)),
		response.WithSuggestions(chipsInsurance...),
		response.WithContexts(e.advance(turn, from, next)...),
	), nil
}

// notEligible handles the reply after an unlicensed state.
func (e *Engine) notEligible(ctx context.Context, turn *Turn) (response.TurnOutput, error) {
	text := strings.ToLower(turn.Input.QueryText)
	patientName, err := e.patientName(ctx, turn)
	if err != nil {
		return response.TurnOutput{}, err
	}

	switch {
	case strings.TrimSpace(text) == "":
		attempted := dialog.StringParam(turn.Params, "attempted_state")
		return e.reprompt(turn, StateNotEligible, textStateNotEligible(firstNameOf(patientName), attempted),
			chipsNotEligible...), nil

	case strings.Contains(text, "waitlist"), strings.Contains(text, "wait list"):
		attempted := dialog.StringParam(turn.Params, "attempted_state")
		turn.Session.Set(KeyWaitlistState, attempted)
		return response.Build(textWaitlist(attempted, e.Clinic().Info),
			response.WithSuggestions(chipsAfterWaitlist...),
			response.WithContexts(e.advance(turn, StateNotEligible)...),
		), nil

	case strings.Contains(text, "another"), strings.Contains(text, "try"):
		next := dialog.New(StateCollectState.String(), map[string]any{
			KeyPatientName: patientName,
			KeyFirstName:   firstNameOf(patientName),
			KeyPatientType: PatientNew,
			KeyFlow:        flowAppointment,
		})
		return response.Build(textTryAnotherState(firstNameOf(patientName)),
			response.WithContexts(e.advance(turn, StateNotEligible, next)...),
		), nil
	}

	// Anything else is taken as a state name.
	stateTurn := *turn
	stateTurn.Params = map[string]any{
		KeyPatientName: patientName,
		KeyFirstName:   firstNameOf(patientName),
	}
	out, err := e.collectState(ctx, &stateTurn, StateNotEligible)
	turn.Outcome = stateTurn.Outcome
	return out, err
}

// collectInsurance records the carrier and offers the visit types.
func (e *Engine) collectInsurance(ctx context.Context, turn *Turn) (response.TurnOutput, error) {
	patientName, err := e.patientName(ctx, turn)
	if err != nil {
		return response.TurnOutput{}, err
	}
	if patientName == "" {
		return e.askNameAgain(ctx, turn, StateCollectInsurance)
	}
	patientState, err := e.param(ctx, turn, KeyPatientState)
	if err != nil {
		return response.TurnOutput{}, err
	}
	if patientState == "" {
		return e.askStateAgain(turn, patientName), nil
	}

	insurance := strings.TrimSpace(turn.Input.QueryText)
	if insurance == "" {
		return e.reprompt(turn, StateCollectInsurance, textAskInsurance, chipsInsurance...), nil
	}
	turn.Session.Set(KeyInsuranceType, insurance)

	cfg := e.Clinic()
	text := textInsuranceAccepted(insurance)
	if !cfg.AcceptsInsurance(insurance) {
		text = textInsuranceSelfPay(insurance, cfg.SelfPay)
	}

	next := dialog.New(StateSelectVisitType.String(), map[string]any{
		KeyPatientName:   patientName,
		KeyPatientState:  patientState,
		KeyInsuranceType: insurance,
	})
	return response.Build(text,
		response.WithSuggestions(chipsVisitType...),
		response.WithContexts(e.advance(turn, StateCollectInsurance, next)...),
	), nil
}

// selectVisitType routes to phone consultation or initial assessment. A
// question about the options is answered in place.
func (e *Engine) selectVisitType(ctx context.Context, turn *Turn) (response.TurnOutput, error) {
	choice := strings.ToLower(turn.Input.QueryText)
	switch {
	case containsAny(choice, "explain", "difference", "what", "help"):
		turn.Outcome = OutcomeExplained
		return response.Build(textVisitTypeExplanation,
			response.WithSuggestions(chipsVisitType...),
			response.WithContexts(dialog.New(StateSelectVisitType.String(), dialog.CloneParams(turn.Params))),
		), nil
	case containsAny(choice, "consultation", "free"):
		return e.phoneConsultation(ctx, turn)
	case containsAny(choice, "assessment", "initial"):
		return e.initialAssessment(ctx, turn, StateSelectVisitType)
	}
	return e.reprompt(turn, StateSelectVisitType, textVisitTypeReprompt, chipsVisitType...), nil
}

func (e *Engine) phoneConsultation(ctx context.Context, turn *Turn) (response.TurnOutput, error) {
	patientName, err := e.patientName(ctx, turn)
	if err != nil {
		return response.TurnOutput{}, err
	}
	turn.Session.Set(KeyVisitType, VisitPhoneConsultation)

	next := dialog.New(StateCollectPhone.String(), map[string]any{
		KeyVisitType:   VisitPhoneConsultation,
		KeyPatientName: patientName,
	})
	return response.Build(textPhoneConsultation(firstNameOf(patientName)),
		response.WithContexts(e.advance(turn, StateSelectVisitType, next)...),
	), nil
}

func (e *Engine) initialAssessment(ctx context.Context, turn *Turn, from State) (response.TurnOutput, error) {
	patientName, err := e.patientName(ctx, turn)
	if err != nil {
		return response.TurnOutput{}, err
	}
	slots, err := e.slots.Slots(ctx, SlotRequest{VisitType: VisitInitialAssessment, Limit: maxSlotDays})
	if err != nil {
		return response.TurnOutput{}, fmt.Errorf("offer assessment slots: %w", err)
	}
	if len(slots) == 0 {
		return e.noSlots(turn, from), nil
	}

	turn.Session.Update(map[string]any{
		KeyVisitType:        VisitInitialAssessment,
		KeyAppointmentSlots: slotsParam(slots),
	})
	next := dialog.New(StateSelectSlot.String(), map[string]any{
		KeyVisitType:   VisitInitialAssessment,
		KeyPatientName: patientName,
		"slots":        slotsParam(slots),
	})
	return response.Build(textInitialAssessment(firstNameOf(patientName), slots),
		response.WithSuggestions(slotChips(len(slots))...),
		response.WithContexts(e.advance(turn, from, next)...),
	), nil
}

func (e *Engine) noSlots(turn *Turn, from State) response.TurnOutput {
	e.logger.Warn("slot provider returned no slots", "session_id", turn.Session.SessionID())
	return response.Build(textNoSlots(e.Clinic().Info),
		response.WithSuggestions("Call Office"),
		response.WithContexts(e.advance(turn, from)...),
	)
}

// collectPractitioner matches the patient's practitioner and offers slots.
func (e *Engine) collectPractitioner(ctx context.Context, turn *Turn) (response.TurnOutput, error) {
	cfg := e.Clinic()
	p, ok := cfg.MatchPractitioner(turn.Input.QueryText)
	if !ok {
		chips := make([]string, len(cfg.Practitioners))
		for i, r := range cfg.Practitioners {
			chips[i] = r.DisplayName()
		}
		return e.reprompt(turn, StateCollectPractitioner, textPractitionerNotFound(cfg.Practitioners), chips...), nil
	}
	return e.offerPractitionerSlots(ctx, turn, p, StateCollectPractitioner)
}

func (e *Engine) offerPractitionerSlots(ctx context.Context, turn *Turn, p clinic.Practitioner, from State) (response.TurnOutput, error) {
	patientName, err := e.patientName(ctx, turn)
	if err != nil {
		return response.TurnOutput{}, err
	}
	slots, err := e.slots.Slots(ctx, SlotRequest{VisitType: VisitFollowUp, PractitionerID: p.ID, Limit: 4})
	if err != nil {
		return response.TurnOutput{}, fmt.Errorf("offer slots for %s: %w", p.ID, err)
	}
	if len(slots) == 0 {
		turn.Session.Set(KeyPractitionerID, p.ID)
		return e.noSlots(turn, from), nil
	}

	turn.Session.Update(map[string]any{
		KeyPractitionerID:   p.ID,
		KeyVisitType:        VisitFollowUp,
		KeyAppointmentSlots: slotsParam(slots),
	})
	next := dialog.New(StateSelectSlot.String(), map[string]any{
		KeyVisitType:      VisitFollowUp,
		KeyPatientName:    patientName,
		KeyPractitionerID: p.ID,
		"slots":           slotsParam(slots),
	})
	return response.Build(textPractitionerSlots(p, slots),
		response.WithSuggestions(slotChips(len(slots))...),
		response.WithContexts(e.advance(turn, from, next)...),
	), nil
}

// selectSlot validates a 1..N choice against the offered slots.
func (e *Engine) selectSlot(ctx context.Context, turn *Turn) (response.TurnOutput, error) {
	slots := decodeSlots(turn.Params["slots"])
	if len(slots) == 0 {
		stored, err := turn.Session.Get(ctx, KeyAppointmentSlots, nil)
		if err != nil {
			return response.TurnOutput{}, err
		}
		slots = decodeSlots(stored)
	}
	visitType, err := e.param(ctx, turn, KeyVisitType)
	if err != nil {
		return response.TurnOutput{}, err
	}
	if len(slots) == 0 {
		// Nothing to choose from; offer a fresh list.
		return e.reofferSlots(ctx, turn, visitType)
	}

	if containsAny(strings.ToLower(turn.Input.QueryText), "different", "other time", "another time") {
		turn.Outcome = OutcomeExplained
		return response.Build(textDifferentTimes(e.Clinic().Info, len(slots)),
			response.WithSuggestions(slotChips(len(slots))...),
			response.WithContexts(dialog.New(StateSelectSlot.String(), dialog.CloneParams(turn.Params))),
		), nil
	}

	n := ParseSelection(turn.Input.Entities, turn.Input.QueryText)
	if n < 1 || n > len(slots) {
		return e.reprompt(turn, StateSelectSlot, textSlotReprompt(len(slots)), slotChips(len(slots))...), nil
	}

	patientName, err := e.patientName(ctx, turn)
	if err != nil {
		return response.TurnOutput{}, err
	}
	chosen := slots[n-1]
	turn.Session.Update(map[string]any{
		KeyAppointmentDate: chosen.Date,
		KeyAppointmentTime: chosen.Time,
	})

	params := map[string]any{
		KeyVisitType:       visitType,
		KeyPatientName:     patientName,
		KeyAppointmentDate: chosen.Date,
		KeyAppointmentTime: chosen.Time,
	}
	if id := dialog.StringParam(turn.Params, KeyPractitionerID); id != "" {
		params[KeyPractitionerID] = id
	}
	return response.Build(textSlotChosen(chosen, visitType),
		response.WithContexts(e.advance(turn, StateSelectSlot, dialog.New(StateCollectPhone.String(), params))...),
	), nil
}

func (e *Engine) reofferSlots(ctx context.Context, turn *Turn, visitType string) (response.TurnOutput, error) {
	if visitType == VisitFollowUp {
		id, err := e.param(ctx, turn, KeyPractitionerID)
		if err != nil {
			return response.TurnOutput{}, err
		}
		if p, ok := e.Clinic().Practitioner(id); ok {
			return e.offerPractitionerSlots(ctx, turn, p, StateSelectSlot)
		}
	}
	return e.initialAssessment(ctx, turn, StateSelectSlot)
}

// collectPhone validates the number and confirms the booking.
func (e *Engine) collectPhone(ctx context.Context, turn *Turn) (response.TurnOutput, error) {
	phone, ok := NormalizePhone(turn.Input.QueryText)
	if !ok {
		return e.reprompt(turn, StateCollectPhone, textPhoneReprompt), nil
	}

	patientName, err := e.patientName(ctx, turn)
	if err != nil {
		return response.TurnOutput{}, err
	}
	visitType, err := e.param(ctx, turn, KeyVisitType)
	if err != nil {
		return response.TurnOutput{}, err
	}
	var date, tm string
	if visitType != VisitPhoneConsultation {
		if date, err = e.param(ctx, turn, KeyAppointmentDate); err != nil {
			return response.TurnOutput{}, err
		}
		if tm, err = e.param(ctx, turn, KeyAppointmentTime); err != nil {
			return response.TurnOutput{}, err
		}
	}
	switch {
	case patientName == "":
		return e.askNameAgain(ctx, turn, StateCollectPhone)
	case visitType != VisitPhoneConsultation && (date == "" || tm == ""):
		e.logger.Warn("appointment time lost before confirmation", "session_id", turn.Session.SessionID())
		out, err := e.reofferSlots(ctx, turn, visitType)
		if err != nil {
			return response.TurnOutput{}, err
		}
		turn.Outcome = OutcomeReprompted
		out.Text = textSlotLost + "\n\n" + out.Text
		return out, nil
	}
	practitioner, err := e.practitionerName(ctx, turn, "")
	if err != nil {
		return response.TurnOutput{}, err
	}

	number := e.confirmationNumber()
	turn.Session.Update(map[string]any{
		KeyPhoneNumber:        phone,
		KeyConfirmationNumber: number,
	})

	next := dialog.New(StateComplete.String(), map[string]any{
		KeyConfirmationNumber: number,
		KeyAppointmentDate:    date,
		KeyAppointmentTime:    tm,
		KeyPatientName:        patientName,
		KeyVisitType:          visitType,
	})
	text := textConfirmed(confirmation{
		PatientName:  patientName,
		Practitioner: practitioner,
		Date:         date,
		Time:         tm,
		Phone:        phone,
		Number:       number,
		VisitType:    visitType,
	})
	return response.Build(text,
		response.WithSuggestions(chipsConfirmed...),
		response.WithContexts(e.advance(turn, StateCollectPhone, next)...),
	), nil
}

// askNameAgain routes back to collect_name when the patient's name cannot be
// recovered from the carried parameters or the session.
func (e *Engine) askNameAgain(ctx context.Context, turn *Turn, from State) (response.TurnOutput, error) {
	patientType, err := e.param(ctx, turn, KeyPatientType)
	if err != nil {
		return response.TurnOutput{}, err
	}
	if patientType == "" {
		patientType = PatientNew
	}
	e.logger.Warn("patient name lost mid-flow", "session_id", turn.Session.SessionID(), "state", from.String())
	turn.Outcome = OutcomeReprompted
	next := dialog.New(StateCollectName.String(), map[string]any{
		KeyPatientType: patientType,
		KeyFlow:        flowAppointment,
	})
	return response.Build(textNameLost, response.WithContexts(e.advance(turn, from, next)...)), nil
}

// askStateAgain routes back to collect_state when the licensed state was
// lost before insurance.
func (e *Engine) askStateAgain(turn *Turn, patientName string) response.TurnOutput {
	turn.Outcome = OutcomeReprompted
	next := dialog.New(StateCollectState.String(), map[string]any{
		KeyPatientName: patientName,
		KeyFirstName:   firstNameOf(patientName),
		KeyPatientType: PatientNew,
		KeyFlow:        flowAppointment,
	})
	return response.Build(textStateLost, response.WithContexts(e.advance(turn, StateCollectInsurance, next)...))
}

// practitionerName resolves the booked practitioner's display name, or
// fallback when none was chosen.
func (e *Engine) practitionerName(ctx context.Context, turn *Turn, fallback string) (string, error) {
	id, err := e.param(ctx, turn, KeyPractitionerID)
	if err != nil {
		return "", err
	}
	if p, ok := e.Clinic().Practitioner(id); ok {
		return p.DisplayName(), nil
	}
	return fallback, nil
}

var (
	affirmativeReplies = []string{"yes", "schedule another", "another appointment", "book another"}
	negativeReplies    = []string{
		"no", "nope", "nah", "no thanks", "i'm good", "im good", "all set",
		"that's all", "thats all", "nothing", "done", "don't need", "dont need",
	}
)

// complete handles the "anything else?" reply after a booking. Replies are
// matched on whole words, negatives first, so "no thanks, I don't need
// another appointment" ends the conversation.
func (e *Engine) complete(ctx context.Context, turn *Turn) (response.TurnOutput, error) {
	text := wordText(turn.Input.QueryText)

	switch {
	case containsWords(text, "cancel"):
		out, err := e.Cancellation(ctx, turn)
		out.OutgoingContexts = e.advance(turn, StateComplete)
		return out, err
	case containsWords(text, negativeReplies...):
		return e.goodbye(ctx, turn)
	case containsWords(text, affirmativeReplies...):
		return e.StartAppointment(ctx, turn)
	}

	turn.Outcome = OutcomeReprompted
	return response.Build(textAnythingElse,
		response.WithSuggestions(chipsAnythingElse...),
		response.WithContexts(dialog.New(StateComplete.String(), dialog.CloneParams(turn.Params))),
	), nil
}

// goodbye ends the conversation: every active context is expired and the
// session is deleted.
func (e *Engine) goodbye(ctx context.Context, turn *Turn) (response.TurnOutput, error) {
	patientName, err := e.patientName(ctx, turn)
	if err != nil {
		return response.TurnOutput{}, err
	}
	date, err := e.param(ctx, turn, KeyAppointmentDate)
	if err != nil {
		return response.TurnOutput{}, err
	}
	tm, err := e.param(ctx, turn, KeyAppointmentTime)
	if err != nil {
		return response.TurnOutput{}, err
	}
	number, err := e.param(ctx, turn, KeyConfirmationNumber)
	if err != nil {
		return response.TurnOutput{}, err
	}
	practitioner, err := e.practitionerName(ctx, turn, "Your Practitioner")
	if err != nil {
		return response.TurnOutput{}, err
	}
	if i := strings.Index(practitioner, ","); i > 0 && practitioner != "Your Practitioner" {
		practitioner = practitioner[:i]
	}
	visitType, err := e.param(ctx, turn, KeyVisitType)
	if err != nil {
		return response.TurnOutput{}, err
	}
	if visitType == VisitPhoneConsultation {
		date = ""
	}

	var expired []dialog.Context
	seen := map[string]bool{}
	for _, c := range turn.Input.ActiveContexts {
		name := c.Bare()
		if !c.Active() || seen[name] {
			continue
		}
		seen[name] = true
		expired = append(expired, dialog.Expire(name))
	}
	if !seen[StateComplete.String()] {
		expired = append(expired, dialog.Expire(StateComplete.String()))
	}

	turn.Session.Delete()
	turn.Outcome = OutcomeEnded
	return response.Build(textGoodbye(firstNameOf(patientName), practitioner, date, tm, number),
		response.WithContexts(expired...),
	), nil
}
