// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package clinic holds the static clinic data the intake flow is driven by:
// contact details, the practitioner roster with licensed states, the
// state-name table, accepted insurance carriers and self-pay rates.
//
// The data is configuration, not logic. Default returns the production
// values; deployments override any part through the YAML config file.
package clinic

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// clinicValidate is the validator for clinic configuration, initialized in
// init() with the stateabbr rule.
var clinicValidate *validator.Validate

func init() {
	clinicValidate = validator.New()
	_ = clinicValidate.RegisterValidation("stateabbr", validateStateAbbr)
}

// validateStateAbbr accepts two upper-case ASCII letters.
func validateStateAbbr(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != 2 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Source yields the clinic data in effect for a turn. A *Config is a Source
// of itself; config.Watcher is a Source that follows the config file.
type Source interface {
	Current() *Config
}

// Current returns c.
func (c *Config) Current() *Config {
	return c
}

// Info is the clinic's public contact card.
type Info struct {
	Name          string `yaml:"name" validate:"required"`
	AssistantName string `yaml:"assistant_name"`
	Phone         string `yaml:"phone" validate:"required"`
	Fax           string `yaml:"fax"`
	Email         string `yaml:"email" validate:"omitempty,email"`
	Hours         string `yaml:"hours"`
	EmergencyText string `yaml:"emergency_text"`
	Website       string `yaml:"website" validate:"omitempty,url"`
}

// Practitioner is one roster entry.
type Practitioner struct {
	ID          string   `yaml:"id" validate:"required"`
	FirstName   string   `yaml:"first_name" validate:"required"`
	LastName    string   `yaml:"last_name" validate:"required"`
	FullName    string   `yaml:"full_name"`
	Credentials string   `yaml:"credentials"`
	Specialties []string `yaml:"specialties"`
	States      []string `yaml:"states" validate:"dive,stateabbr"`
	Bio         string   `yaml:"bio"`
}

// DisplayName renders "First Last, CRED" (credentials omitted when empty).
func (p Practitioner) DisplayName() string {
	name := p.FirstName + " " + p.LastName
	if p.Credentials != "" {
		name += ", " + p.Credentials
	}
	return name
}

// LicensedIn reports whether the practitioner holds a license in abbr.
func (p Practitioner) LicensedIn(abbr string) bool {
	for _, s := range p.States {
		if s == abbr {
			return true
		}
	}
	return false
}

// SelfPayRates are the cash prices quoted to patients.
type SelfPayRates struct {
	InitialAssessment string `yaml:"initial_assessment"`
	FollowUpShort     string `yaml:"followup_25"`
	FollowUpLong      string `yaml:"followup_55"`
	PhoneConsultation string `yaml:"phone_consultation"`
}

// Config is the complete clinic data set.
type Config struct {
	Info               Info              `yaml:"info"`
	Practitioners      []Practitioner    `yaml:"practitioners" validate:"required,min=1,dive"`
	States             map[string]string `yaml:"states" validate:"dive,keys,required,endkeys,stateabbr"`
	Insurance          []string          `yaml:"insurance" validate:"dive,required"`
	SelfPay            SelfPayRates      `yaml:"self_pay"`
	Conditions         []string          `yaml:"conditions"`
	Encouragements     []string          `yaml:"encouragements"`
	ConfirmationPrefix string            `yaml:"confirmation_prefix" validate:"required,alphanum,max=8"`
}

// Validate checks field rules and roster id uniqueness.
func (c *Config) Validate() error {
	if err := clinicValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid clinic config: %w", err)
	}
	seen := make(map[string]bool, len(c.Practitioners))
	for _, p := range c.Practitioners {
		id := strings.ToLower(p.ID)
		if seen[id] {
			return fmt.Errorf("invalid clinic config: duplicate practitioner id %q", p.ID)
		}
		seen[id] = true
	}
	return nil
}

// Practitioner looks a roster entry up by id.
func (c *Config) Practitioner(id string) (Practitioner, bool) {
	for _, p := range c.Practitioners {
		if p.ID == id {
			return p, true
		}
	}
	return Practitioner{}, false
}

// PractitionersIn returns roster entries licensed in abbr, in roster order.
func (c *Config) PractitionersIn(abbr string) []Practitioner {
	var out []Practitioner
	for _, p := range c.Practitioners {
		if p.LicensedIn(abbr) {
			out = append(out, p)
		}
	}
	return out
}

// ResolveState maps free text to a state abbreviation.
//
// # Description
//
// The input is trimmed of surrounding whitespace and punctuation and
// looked up case-insensitively in the state table. Unknown input is
// upper-cased and returned as a literal abbreviation guess, so "ne" and
// "Nebraska" both yield "NE" and "Narnia" yields "NARNIA".
func (c *Config) ResolveState(text string) string {
	cleaned := strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	if abbr, ok := c.States[strings.ToLower(cleaned)]; ok {
		return abbr
	}
	return strings.ToUpper(cleaned)
}

// MatchPractitioner finds the roster entry the patient named.
//
// # Description
//
// Mirrors how front-desk staff match names: the input matches when it
// contains the practitioner's first name, last name, "first last", full
// display name or id, or when it is itself part of "first last" or the
// full name. The first roster entry that matches wins. Empty input never
// matches.
func (c *Config) MatchPractitioner(text string) (Practitioner, bool) {
	input := strings.ToLower(strings.TrimSpace(text))
	if input == "" {
		return Practitioner{}, false
	}
	for _, p := range c.Practitioners {
		first := strings.ToLower(strings.TrimSpace(p.FirstName))
		last := strings.ToLower(strings.TrimSpace(p.LastName))
		firstLast := first + " " + last
		full := strings.ToLower(strings.TrimSpace(p.FullName))
		id := strings.ToLower(strings.TrimSpace(p.ID))

		if strings.Contains(input, first) ||
			strings.Contains(input, last) ||
			strings.Contains(input, firstLast) ||
			(full != "" && strings.Contains(input, full)) ||
			(id != "" && strings.Contains(input, id)) ||
			strings.Contains(firstLast, input) ||
			(full != "" && strings.Contains(full, input)) {
			return p, true
		}
	}
	return Practitioner{}, false
}

// AcceptsInsurance reports whether text names an accepted carrier.
func (c *Config) AcceptsInsurance(text string) bool {
	input := strings.ToLower(strings.TrimSpace(text))
	if input == "" {
		return false
	}
	for _, carrier := range c.Insurance {
		name := strings.ToLower(carrier)
		if strings.Contains(input, name) || (len(input) >= 3 && strings.Contains(name, input)) {
			return true
		}
	}
	return false
}
