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
	"unicode"
)

// crisisPhrases match anywhere in the lower-cased utterance.
var crisisPhrases = []string{
	"suicide",
	"suicidal",
	"self-harm",
	"self harm",
	"kill myself",
	"want to die",
	"end my life",
	"take my life",
	"hurt myself",
	"overdose",
	"emergency",
	"crisis",
}

// crisisNumbers match only as whole tokens so phone numbers and dates that
// contain the digits do not trigger.
var crisisNumbers = []string{"988", "911"}

var safetyLines = []string{
	"I'm really sorry you're going through this. Your safety is the most important thing right now.",
	"If you are in immediate danger, please call your local emergency number.",
	"United States: 988 (Suicide & Crisis Lifeline) or 911 for emergencies.",
	"If you can, consider reaching out to someone you trust.",
}

// SafetyMessage is returned for every intercepted turn.
var SafetyMessage = strings.Join(safetyLines, "\n\n")

// IsCrisis reports whether text should be answered with SafetyMessage.
func IsCrisis(text string) bool {
	t := strings.ToLower(text)
	for _, p := range crisisPhrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	tokens := strings.FieldsFunc(t, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '-')
	})
	for _, tok := range tokens {
		for _, n := range crisisNumbers {
			if tok == n {
				return true
			}
		}
	}
	return false
}
