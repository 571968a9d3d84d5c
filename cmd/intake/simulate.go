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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianIntake/pkg/ux"
	"github.com/AleutianAI/AleutianIntake/services/intake"
	"github.com/AleutianAI/AleutianIntake/services/intake/dialog"
	"github.com/AleutianAI/AleutianIntake/services/intake/response"
	"github.com/AleutianAI/AleutianIntake/services/intake/router"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Chat with the intake flow in the terminal",
	Long: `Runs the dialogue router in-process with an in-memory session store.

Type a message to send it. A number picks the matching suggestion chip.
Start a line with /<intent> to force an intent, for example
"/collect_phone 402-956-3584". /quit exits.`,
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Session.Driver = "memory"
	cfg.Telemetry.Endpoint = ""
	cfg.FAQ.Sheets = nil

	logger := newLogger(cfg, true)
	defer logger.Close()

	svc, err := intake.New(cfg, nil, intake.WithLogger(logger.Slog()))
	if err != nil {
		return err
	}
	defer svc.Close()

	p := ux.NewPrinter(cmd.OutOrStdout())
	p.Title(cfg.Clinic.Info.Name + " intake simulator")
	p.Muted("Type /quit to exit.")

	sim := newSimulator(svc.Turns())
	return sim.repl(cmd.Context(), cmd.InOrStdin(), p)
}

// turnHandler is satisfied by *router.Router.
type turnHandler interface {
	HandleTurn(ctx context.Context, in dialog.TurnInput) response.TurnOutput
}

// simulator plays the Dialogflow front end: it carries active contexts
// between turns with Dialogflow's lifespan decay and guesses an intent for
// menu-style input.
type simulator struct {
	turns       turnHandler
	sessionPath string
	active      []dialog.Context
	chips       []string
}

func newSimulator(turns turnHandler) *simulator {
	return &simulator{
		turns:       turns,
		sessionPath: "projects/simulator/agent/sessions/" + uuid.NewString(),
	}
}

func (s *simulator) repl(ctx context.Context, in io.Reader, p *ux.Printer) error {
	scanner := bufio.NewScanner(in)
	out := s.say(ctx, "/welcome hi")
	s.print(p, out)

	for {
		p.Prompt("> ")
		if !scanner.Scan() {
			fmt.Fprintln(os.Stderr)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}
		s.print(p, s.say(ctx, line))
	}
}

func (s *simulator) print(p *ux.Printer, out response.TurnOutput) {
	p.Bot(out.Text)
	for _, c := range out.Cards {
		p.Card(c.Title, c.Subtitle)
	}
	p.Chips(out.Suggestions)
}

// say sends one line and applies the response's contexts.
func (s *simulator) say(ctx context.Context, line string) response.TurnOutput {
	text, intent := s.interpret(line)
	out := s.turns.HandleTurn(ctx, dialog.TurnInput{
		SessionID:      dialog.SessionIDFromPath(s.sessionPath),
		SessionPath:    s.sessionPath,
		ResponseID:     uuid.NewString(),
		QueryText:      text,
		IntentName:     intent,
		ActiveContexts: s.active,
		Entities:       map[string]any{},
	})
	s.apply(out.OutgoingContexts)
	s.chips = out.Suggestions
	return out
}

// interpret resolves chip numbers and /intent prefixes and otherwise
// guesses an intent from menu labels.
func (s *simulator) interpret(line string) (text, intent string) {
	if strings.HasPrefix(line, "/") {
		name, rest, _ := strings.Cut(line[1:], " ")
		return strings.TrimSpace(rest), name
	}
	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(s.chips) {
		line = s.chips[n-1]
	}
	return line, string(guessIntent(line))
}

// apply mirrors Dialogflow: echoed contexts lose one lifespan per turn,
// emitted contexts replace them, and lifespan 0 removes.
func (s *simulator) apply(emitted []dialog.Context) {
	byName := make(map[string]bool, len(emitted))
	for _, c := range emitted {
		byName[c.Bare()] = true
	}
	var next []dialog.Context
	for _, c := range s.active {
		if byName[c.Bare()] {
			continue
		}
		c.Lifespan--
		if c.Lifespan > 0 {
			next = append(next, c)
		}
	}
	for _, c := range emitted {
		if c.Lifespan > 0 {
			c.Name = response.ContextName(s.sessionPath, c.Bare())
			next = append(next, c)
		}
	}
	s.active = next
}

var menuIntents = []struct {
	phrases []string
	intent  router.Intent
}{
	{[]string{"hi", "hello", "start", "return to main menu", "main menu"}, router.IntentWelcome},
	{[]string{"schedule appointment", "book appointment", "schedule another", "schedule another appointment", "reschedule"}, router.IntentScheduleAppointment},
	{[]string{"cancel appointment", "no longer need appointment"}, router.IntentCancel},
	{[]string{"prescriptions", "prescription"}, router.IntentPrescription},
	{[]string{"insurance"}, router.IntentInsurance},
	{[]string{"billing", "pay bill"}, router.IntentBilling},
	{[]string{"contact provider", "message practitioner"}, router.IntentPractitionerMessage},
	{[]string{"general information"}, router.IntentGeneralInformation},
}

// guessIntent matches a whole menu label, ignoring emoji and case. Free
// text is left to contexts and the fallback.
func guessIntent(text string) router.Intent {
	label := strings.ToLower(strings.TrimLeftFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}))
	label = strings.TrimSpace(label)
	for _, m := range menuIntents {
		for _, p := range m.phrases {
			if label == p {
				return m.intent
			}
		}
	}
	return router.IntentUnknown
}
