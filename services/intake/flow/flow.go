// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package flow is the appointment intake state machine.
//
// Each State names one waiting point in the conversation and the context
// that marks it. A step reads the user's reply, validates it, and either
// advances (emitting the next waiting context and expiring the one that
// produced the turn) or re-prompts (re-emitting its own context with the
// parameters it received, untouched).
//
// New patients:
//
//	awaiting_patient_type → collect_name → collect_state
//	    → collect_insurance | not_eligible_state → collect_state
//	collect_insurance → select_visit_type
//	    → collect_phone (phone consultation)
//	    → select_slot → collect_phone (initial assessment)
//	collect_phone → appointment_complete_response
//
// Existing patients:
//
//	awaiting_patient_type → collect_name → collect_practitioner
//	    → select_slot → collect_phone → appointment_complete_response
//
// Steps never write to the store directly. They stage writes on the turn's
// session.Txn and the router commits or discards it.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/AleutianAI/AleutianIntake/services/intake/clinic"
	"github.com/AleutianAI/AleutianIntake/services/intake/dialog"
	"github.com/AleutianAI/AleutianIntake/services/intake/response"
	"github.com/AleutianAI/AleutianIntake/services/intake/session"
)

// State names a waiting point. Its value is the bare context name.
type State string

const (
	StateAwaitPatientType    State = "awaiting_patient_type"
	StateCollectName         State = "collect_name"
	StateCollectState        State = "collect_state"
	StateNotEligible         State = "not_eligible_state"
	StateCollectInsurance    State = "collect_insurance"
	StateSelectVisitType     State = "select_visit_type"
	StateCollectPractitioner State = "collect_practitioner"
	StateSelectSlot          State = "select_slot"
	StateCollectPhone        State = "collect_phone"
	StateComplete            State = "appointment_complete_response"
)

// Graph lists every state in declaration order. The order breaks ties when
// several waiting contexts are active at once.
func Graph() []State {
	return []State{
		StateAwaitPatientType,
		StateCollectName,
		StateCollectState,
		StateNotEligible,
		StateCollectInsurance,
		StateSelectVisitType,
		StateCollectPractitioner,
		StateSelectSlot,
		StateCollectPhone,
		StateComplete,
	}
}

// String returns the context name.
func (s State) String() string {
	return string(s)
}

// Session keys written by the flow.
const (
	KeyFirstName          = "first_name"
	KeyLastName           = "last_name"
	KeyPatientName        = "patient_name"
	KeyPatientType        = "patient_type"
	KeyFlow               = "flow"
	KeyPatientState       = "patient_state"
	KeyInsuranceType      = "insurance_type"
	KeyVisitType          = "visit_type"
	KeyAppointmentSlots   = "appointment_slots"
	KeyAppointmentDate    = "appointment_date"
	KeyAppointmentTime    = "appointment_time"
	KeyPhoneNumber        = "phone_number"
	KeyConfirmationNumber = "confirmation_number"
	KeyPractitionerID     = "practitioner_id"
	KeyWaitlistState      = "waitlist_state"
)

// Visit types and patient types carried in parameters.
const (
	VisitPhoneConsultation = "phone_consultation"
	VisitInitialAssessment = "initial_assessment"
	VisitFollowUp          = "follow_up"

	PatientNew      = "new"
	PatientExisting = "existing"

	flowAppointment = "appointment"
)

// Outcome classifies what a step did.
type Outcome int

const (
	// OutcomeAdvanced means the state machine moved on.
	OutcomeAdvanced Outcome = iota
	// OutcomeReprompted means input failed validation and the state repeats.
	OutcomeReprompted
	// OutcomeExplained means the step answered a question and repeats
	// without counting the reply as invalid.
	OutcomeExplained
	// OutcomeEnded means the conversation was closed and the session removed.
	OutcomeEnded
)

// String returns a metrics-friendly name.
func (o Outcome) String() string {
	switch o {
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeReprompted:
		return "reprompted"
	case OutcomeExplained:
		return "explained"
	case OutcomeEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Turn is the per-turn input to a step.
//
// # Fields
//
//   - Input: The inbound turn.
//   - Session: Staged session access. Writes land only if the router commits.
//   - Params: Parameters of the waiting context that selected the step. May
//     be nil when the step was reached by intent.
//   - Outcome: Set by the step.
type Turn struct {
	Input   dialog.TurnInput
	Session *session.Txn
	Params  map[string]any
	Outcome Outcome
}

// stepFunc is one state handler.
type stepFunc func(ctx context.Context, turn *Turn) (response.TurnOutput, error)

// Engine runs state steps against clinic data.
//
// # Thread Safety
//
// Safe for concurrent use. Per-turn state lives in Turn.
type Engine struct {
	clinic   clinic.Source
	slots    SlotProvider
	now      func() time.Time
	intn     func(int) int
	logger   *slog.Logger
	resolver *dialog.Resolver
	steps    map[State]stepFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithSlotProvider replaces the weekday slot generator.
func WithSlotProvider(p SlotProvider) Option {
	return func(e *Engine) { e.slots = p }
}

// WithClock sets the time source used for greetings and confirmation numbers.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRandom sets the source for encouragement picks and confirmation
// suffixes. intn(n) must return a value in [0, n).
func WithRandom(intn func(int) int) Option {
	return func(e *Engine) { e.intn = intn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New builds an Engine.
func New(src clinic.Source, opts ...Option) *Engine {
	e := &Engine{
		clinic: src,
		now:    time.Now,
		intn:   rand.IntN,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.slots == nil {
		e.slots = NewWeekdaySlots(e.now, e.intn)
	}

	names := make([]string, 0, len(Graph()))
	for _, s := range Graph() {
		names = append(names, s.String())
	}
	e.resolver = dialog.NewResolver(names...)

	e.steps = map[State]stepFunc{
		StateAwaitPatientType:    e.awaitPatientType,
		StateCollectName:         e.collectName,
		StateCollectState:        func(ctx context.Context, t *Turn) (response.TurnOutput, error) { return e.collectState(ctx, t, StateCollectState) },
		StateNotEligible:         e.notEligible,
		StateCollectInsurance:    e.collectInsurance,
		StateSelectVisitType:     e.selectVisitType,
		StateCollectPractitioner: e.collectPractitioner,
		StateSelectSlot:          e.selectSlot,
		StateCollectPhone:        e.collectPhone,
		StateComplete:            e.complete,
	}
	return e
}

// Resolver returns the waiting-context resolver for the graph.
func (e *Engine) Resolver() *dialog.Resolver {
	return e.resolver
}

// Clinic returns the clinic data in effect.
func (e *Engine) Clinic() *clinic.Config {
	return e.clinic.Current()
}

// Step runs the handler for state.
func (e *Engine) Step(ctx context.Context, state State, turn *Turn) (response.TurnOutput, error) {
	fn, ok := e.steps[state]
	if !ok {
		return response.TurnOutput{}, fmt.Errorf("flow: no step for state %q", state)
	}
	turn.Outcome = OutcomeAdvanced
	return fn(ctx, turn)
}

// ===== Transition helpers =====

// advance builds the outgoing contexts for a successful transition: the
// next waiting context, an expiry for the context that produced the turn,
// and expiries for any other waiting contexts still active. from is empty
// for entry points reached by intent.
func (e *Engine) advance(turn *Turn, from State, next ...dialog.Context) []dialog.Context {
	out := append([]dialog.Context{}, next...)
	seen := map[string]bool{}
	for _, c := range next {
		seen[c.Bare()] = true
	}
	if from != "" && !seen[from.String()] {
		out = append(out, dialog.Expire(from.String()))
		seen[from.String()] = true
	}
	for _, c := range turn.Input.ActiveContexts {
		name := c.Bare()
		if !c.Active() || seen[name] || !e.resolver.Waiting(name) {
			continue
		}
		seen[name] = true
		out = append(out, dialog.Expire(name))
	}
	return out
}

// reprompt re-emits state's own context with the received parameters.
func (e *Engine) reprompt(turn *Turn, state State, text string, suggestions ...string) response.TurnOutput {
	turn.Outcome = OutcomeReprompted
	return response.Build(text,
		response.WithSuggestions(suggestions...),
		response.WithContexts(dialog.New(state.String(), dialog.CloneParams(turn.Params))),
	)
}

// param returns a carried string parameter, falling back to the session.
func (e *Engine) param(ctx context.Context, turn *Turn, key string) (string, error) {
	if v := dialog.StringParam(turn.Params, key); v != "" {
		return v, nil
	}
	return turn.Session.GetString(ctx, key)
}

// patientName recovers the full name from carried parameters, then from the
// session's first and last name, then from the session's patient_name.
func (e *Engine) patientName(ctx context.Context, turn *Turn) (string, error) {
	if v := dialog.StringParam(turn.Params, KeyPatientName); v != "" {
		return v, nil
	}
	first, err := turn.Session.GetString(ctx, KeyFirstName)
	if err != nil {
		return "", err
	}
	last, err := turn.Session.GetString(ctx, KeyLastName)
	if err != nil {
		return "", err
	}
	if name := joinName(first, last); name != "" {
		return name, nil
	}
	return turn.Session.GetString(ctx, KeyPatientName)
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}

// confirmationNumber returns <prefix><HHMMSS><100-999>.
func (e *Engine) confirmationNumber() string {
	prefix := e.Clinic().ConfirmationPrefix
	return prefix + e.now().Format("150405") + strconv.Itoa(100+e.intn(900))
}

// encouragement picks one configured line, or "" when none are configured.
func (e *Engine) encouragement() string {
	lines := e.Clinic().Encouragements
	if len(lines) == 0 {
		return ""
	}
	return lines[e.intn(len(lines))]
}
