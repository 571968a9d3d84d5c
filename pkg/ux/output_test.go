// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTerminal_Buffer(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}

func TestPrinter_PlainOutput(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Title("Intake")
	p.Bot("Hello\nWorld")
	p.Chips([]string{"Yes", "No"})
	p.Chips(nil)
	p.Card("Jodene Jensen", "Click to select")
	p.Warn("careful")
	p.Error(errors.New("boom"))
	p.Prompt("> ")

	want := "Intake\n" +
		"│ Hello\n" +
		"│ World\n" +
		"[ 1. Yes | 2. No ]\n" +
		"+ Jodene Jensen\n  Click to select\n" +
		"⚠ careful\n" +
		"✗ boom\n" +
		"> "
	assert.Equal(t, want, buf.String())
}
