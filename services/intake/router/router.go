// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package router decides who answers a dialogue turn.
//
// # Description
//
// Every turn goes through the same four stages, first match wins:
//
//	safety interception   crisis language, always first, touches nothing
//	context dispatch      an active waiting context selects a flow step
//	intent dispatch       the classifier intent selects a handler
//	fallback              FAQ, handoff, triage, category hint, menu
//
// Session access is staged on a session.Txn. The router commits it only
// when the handler succeeds; errors and panics discard it and the user
// gets an apology with the clinic phone number instead.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianIntake/services/intake/dialog"
	"github.com/AleutianAI/AleutianIntake/services/intake/faq"
	"github.com/AleutianAI/AleutianIntake/services/intake/flow"
	"github.com/AleutianAI/AleutianIntake/services/intake/observability"
	"github.com/AleutianAI/AleutianIntake/services/intake/response"
	"github.com/AleutianAI/AleutianIntake/services/intake/session"
)

var routerTracer = otel.Tracer("aleutian.intake.router")

// handlerFunc answers one turn.
type handlerFunc func(ctx context.Context, turn *flow.Turn) (response.TurnOutput, error)

// Router routes turns to flow steps and informational handlers.
//
// # Thread Safety
//
// Safe for concurrent use across sessions. Turns of one session are
// expected to arrive sequentially.
type Router struct {
	engine  *flow.Engine
	store   session.Store
	faq     faq.Lookup
	metrics *observability.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time

	intents map[Intent]handlerFunc
}

// Option configures a Router.
type Option func(*Router)

// WithFAQ sets the FAQ consulted by the fallback.
func WithFAQ(l faq.Lookup) Option {
	return func(r *Router) { r.faq = l }
}

// WithMetrics sets the metrics sink. Nil disables metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithTracer replaces the package tracer.
func WithTracer(t trace.Tracer) Option {
	return func(r *Router) { r.tracer = t }
}

// WithClock sets the clock used for greetings and latency.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// New builds a Router over engine and store.
func New(engine *flow.Engine, store session.Store, opts ...Option) *Router {
	r := &Router{
		engine: engine,
		store:  store,
		faq:    faq.None{},
		logger: slog.Default(),
		tracer: routerTracer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.faq == nil {
		r.faq = faq.None{}
	}

	r.intents = map[Intent]handlerFunc{
		IntentWelcome:             r.welcome,
		IntentScheduleAppointment: engine.StartAppointment,
		IntentNewPatient:          engine.StartNewPatient,
		IntentExistingPatient:     engine.StartExistingPatient,
		IntentCancel:              engine.Cancellation,
		IntentPrescription:        r.prescription,
		IntentInsurance:           r.insurance,
		IntentBilling:             r.billing,
		IntentPractitionerMessage: r.practitionerMessage,
		IntentGeneralInformation:  r.generalInformation,
		IntentHumanHandoff:        r.handoff,
	}
	for intent, state := range stepIntents {
		r.intents[intent] = r.stepHandler(state)
	}
	return r
}

// stepHandler runs a flow step reached by intent. Parameters come from the
// state's context if the front end still echoes it, else the step recovers
// from the session.
func (r *Router) stepHandler(state flow.State) handlerFunc {
	return func(ctx context.Context, turn *flow.Turn) (response.TurnOutput, error) {
		turn.Params = dialog.Parameters(turn.Input.ActiveContexts, state.String())
		return r.engine.Step(ctx, state, turn)
	}
}

// route is the dispatch decision for one turn.
type route struct {
	kind    string
	handler string
	fn      handlerFunc
}

// HandleTurn answers one turn. It never fails: handler errors become the
// apology response and leave the session unchanged.
//
// # Inputs
//
//   - ctx: Request context.
//   - in: The inbound turn. SessionID is derived from SessionPath when empty.
//
// # Outputs
//
//   - response.TurnOutput: Text, suggestions, cards and outgoing contexts.
func (r *Router) HandleTurn(ctx context.Context, in dialog.TurnInput) response.TurnOutput {
	start := r.now()
	if in.SessionID == "" {
		in.SessionID = dialog.SessionIDFromPath(in.SessionPath)
	}

	ctx, span := r.tracer.Start(ctx, "Router.HandleTurn")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", in.SessionID),
		attribute.String("dialog.intent", in.IntentName),
	)

	if IsCrisis(in.QueryText) {
		r.logger.Warn("crisis language intercepted", "session_id", in.SessionID)
		span.SetAttributes(attribute.String("dialog.route", observability.RouteSafety))
		r.metrics.RecordSafetyInterception()
		r.metrics.RecordTurn(observability.RouteSafety, "safety", r.now().Sub(start))
		return response.Build(SafetyMessage)
	}

	turn := &flow.Turn{
		Input:   in,
		Session: session.NewTxn(r.store, in.SessionID),
	}
	rt := r.resolve(turn)
	span.SetAttributes(
		attribute.String("dialog.route", rt.kind),
		attribute.String("dialog.handler", rt.handler),
	)

	out, err := r.run(ctx, rt, turn)
	if err == nil && turn.Session.Pending() {
		err = turn.Session.Commit(ctx)
	}
	if err != nil {
		r.logger.Error("turn handler failed",
			"session_id", in.SessionID,
			"route", rt.kind,
			"handler", rt.handler,
			"error", err,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		r.metrics.RecordHandlerError(rt.handler)
		r.metrics.RecordTurn(observability.RouteError, rt.handler, r.now().Sub(start))
		return r.apology()
	}

	span.SetAttributes(attribute.String("dialog.outcome", turn.Outcome.String()))
	if turn.Outcome == flow.OutcomeReprompted {
		r.metrics.RecordReprompt(rt.handler)
	}
	r.metrics.RecordTurn(rt.kind, rt.handler, r.now().Sub(start))
	r.logger.Debug("turn handled",
		"session_id", in.SessionID,
		"route", rt.kind,
		"handler", rt.handler,
		"outcome", turn.Outcome.String(),
	)
	return out
}

// resolve applies context precedence, then the intent registry, then the
// fallback.
func (r *Router) resolve(turn *flow.Turn) route {
	if m, ok := r.engine.Resolver().Resolve(turn.Input.ActiveContexts); ok {
		state := flow.State(m.Name)
		turn.Params = m.Context.Parameters
		return route{
			kind:    observability.RouteContext,
			handler: m.Name,
			fn: func(ctx context.Context, t *flow.Turn) (response.TurnOutput, error) {
				return r.engine.Step(ctx, state, t)
			},
		}
	}
	intent := ParseIntent(turn.Input.IntentName)
	if fn, ok := r.intents[intent]; ok {
		return route{kind: observability.RouteIntent, handler: intent.String(), fn: fn}
	}
	return route{kind: observability.RouteFallback, handler: "fallback", fn: r.fallback}
}

// run calls the handler and converts a panic into an error.
func (r *Router) run(ctx context.Context, rt route, turn *flow.Turn) (out response.TurnOutput, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("turn handler panicked", "handler", rt.handler, "panic", p, "stack", string(debug.Stack()))
			out, err = response.TurnOutput{}, fmt.Errorf("handler %s panicked: %v", rt.handler, p)
		}
	}()
	return rt.fn(ctx, turn)
}

func (r *Router) apology() response.TurnOutput {
	phone := ""
	if cfg := r.engine.Clinic(); cfg != nil {
		phone = cfg.Info.Phone
	}
	out := response.Build(fmt.Sprintf(
		"I apologize, but I encountered an error. Please try again or call us at %s.", phone))
	out.Failed = true
	return out
}
