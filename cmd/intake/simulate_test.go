// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianIntake/pkg/ux"
	"github.com/AleutianAI/AleutianIntake/services/intake"
	"github.com/AleutianAI/AleutianIntake/services/intake/config"
	"github.com/AleutianAI/AleutianIntake/services/intake/dialog"
	"github.com/AleutianAI/AleutianIntake/services/intake/response"
	"github.com/AleutianAI/AleutianIntake/services/intake/router"
)

type recordingTurns struct {
	inputs []dialog.TurnInput
	out    response.TurnOutput
}

func (r *recordingTurns) HandleTurn(_ context.Context, in dialog.TurnInput) response.TurnOutput {
	r.inputs = append(r.inputs, in)
	return r.out
}

func TestGuessIntent(t *testing.T) {
	tests := []struct {
		text string
		want router.Intent
	}{
		{"📅 Schedule Appointment", router.IntentScheduleAppointment},
		{"Book Appointment", router.IntentScheduleAppointment},
		{"Return to Main Menu", router.IntentWelcome},
		{"Prescriptions", router.IntentPrescription},
		{"Contact Provider", router.IntentPractitionerMessage},
		{"ℹ️ General Information", router.IntentGeneralInformation},
		{"Cancel appointment", router.IntentCancel},
		{"Jane Doe", router.IntentUnknown},
		{"I want to schedule appointment tomorrow", router.IntentUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, guessIntent(tt.text))
		})
	}
}

func TestInterpret(t *testing.T) {
	s := newSimulator(&recordingTurns{})
	s.chips = []string{"🆕 New Patient", "↩️ Existing Patient"}

	text, intent := s.interpret("/collect_phone 402-956-3584")
	assert.Equal(t, "402-956-3584", text)
	assert.Equal(t, "collect_phone", intent)

	text, intent = s.interpret("2")
	assert.Equal(t, "↩️ Existing Patient", text)
	assert.Empty(t, intent)

	text, _ = s.interpret("7")
	assert.Equal(t, "7", text, "out-of-range numbers are sent as text")
}

func TestApply_ContextDecay(t *testing.T) {
	turns := &recordingTurns{}
	s := newSimulator(turns)

	turns.out = response.Build("x", response.WithContexts(
		dialog.Context{Name: "collect_name", Lifespan: 2},
		dialog.Context{Name: "flow_marker", Lifespan: 1},
	))
	s.say(context.Background(), "hi")
	require.Len(t, s.active, 2)
	assert.Equal(t, response.ContextName(s.sessionPath, "collect_name"), s.active[0].Name)

	turns.out = response.Build("y")
	s.say(context.Background(), "again")
	require.Len(t, s.active, 1, "lifespan 1 context expires after one turn")
	assert.Equal(t, 1, s.active[0].Lifespan)
	assert.Len(t, turns.inputs[1].ActiveContexts, 2, "contexts are sent before they decay")

	turns.out = response.Build("z", response.WithContexts(dialog.Expire("collect_name")))
	s.say(context.Background(), "done")
	assert.Empty(t, s.active)
}

func TestSimulator_EndToEnd(t *testing.T) {
	svc, err := intake.New(config.Default(), nil)
	require.NoError(t, err)
	defer svc.Close()

	var buf bytes.Buffer
	in := strings.NewReader("1\n1\nJane Doe\n/quit\n")
	sim := newSimulator(svc.Turns())
	require.NoError(t, sim.repl(context.Background(), in, ux.NewPrinter(&buf)))

	out := buf.String()
	assert.Contains(t, out, "Welcome to Solrei Behavioral Health")
	assert.Contains(t, out, "Jane")
}
