// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package clinic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Validates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestDefault_ReturnsFreshCopy(t *testing.T) {
	a := Default()
	a.Practitioners[0].FirstName = "changed"
	assert.Equal(t, "Jodene", Default().Practitioners[0].FirstName)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty roster", func(c *Config) { c.Practitioners = nil }},
		{"bad state code", func(c *Config) { c.Practitioners[0].States = []string{"Florida"} }},
		{"lowercase state value", func(c *Config) { c.States["texas"] = "tx" }},
		{"missing phone", func(c *Config) { c.Info.Phone = "" }},
		{"bad email", func(c *Config) { c.Info.Email = "not-an-email" }},
		{"missing prefix", func(c *Config) { c.ConfirmationPrefix = "" }},
		{"duplicate id", func(c *Config) { c.Practitioners[1].ID = "JODENE" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestResolveState(t *testing.T) {
	c := Default()
	tests := []struct {
		in   string
		want string
	}{
		{"Florida", "FL"},
		{"  new hampshire. ", "NH"},
		{"DC", "DC"},
		{"District of Columbia", "DC"},
		{"ne", "NE"},
		{"tx", "TX"},
		{"Narnia", "NARNIA"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, c.ResolveState(tt.in))
		})
	}
}

func TestPractitionersIn(t *testing.T) {
	c := Default()

	fl := c.PractitionersIn("FL")
	require.Len(t, fl, 3)
	assert.Equal(t, "jodene", fl[0].ID)

	ky := c.PractitionersIn("KY")
	require.Len(t, ky, 1)
	assert.Equal(t, "megan", ky[0].ID)

	assert.Empty(t, c.PractitionersIn("TX"))
}

func TestMatchPractitioner(t *testing.T) {
	c := Default()
	tests := []struct {
		in     string
		wantID string
		wantOK bool
	}{
		{"Jodene", "jodene", true},
		{"I usually see Dr. Robins", "katherine", true},
		{"megan ramirez", "megan", true},
		{"Megan Ramirez, PMHNP", "megan", true},
		{"kath", "katherine", true},
		{"Someone Else", "", false},
		{"   ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, ok := c.MatchPractitioner(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, p.ID)
		})
	}
}

func TestAcceptsInsurance(t *testing.T) {
	c := Default()
	assert.True(t, c.AcceptsInsurance("I have Aetna PPO"))
	assert.True(t, c.AcceptsInsurance("bcbs"))
	assert.True(t, c.AcceptsInsurance("Self-Pay"))
	assert.False(t, c.AcceptsInsurance("Medicaid"))
	assert.False(t, c.AcceptsInsurance(""))
}

func TestDisplayNameAndLookup(t *testing.T) {
	c := Default()
	p, ok := c.Practitioner("megan")
	require.True(t, ok)
	assert.Equal(t, "Megan Ramirez, PMHNP-BC", p.DisplayName())

	_, ok = c.Practitioner("nobody")
	assert.False(t, ok)

	assert.Equal(t, "Ann Lee", Practitioner{FirstName: "Ann", LastName: "Lee"}.DisplayName())
}
