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
	"encoding/json"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PersonName is a parsed patient name.
type PersonName struct {
	First string
	Last  string
}

// Full returns "First Last".
func (n PersonName) Full() string {
	return n.First + " " + n.Last
}

// ParseName splits free text into a first and last name.
//
// # Description
//
// The input is split on whitespace. The first token is the first name and
// the remaining tokens, joined by single spaces, are the last name. Both
// parts are title-cased. Fewer than two tokens is a validation failure.
//
// # Examples
//
//	ParseName("jane doe")          // {Jane Doe}, true
//	ParseName("mary ann van dyke") // {Mary Ann Van Dyke}, true
//	ParseName("Jane")              // {}, false
func ParseName(text string) (PersonName, bool) {
	parts := strings.Fields(text)
	if len(parts) < 2 {
		return PersonName{}, false
	}
	// cases.Caser keeps state between calls; one per parse.
	title := cases.Title(language.English)
	return PersonName{
		First: title.String(parts[0]),
		Last:  title.String(strings.Join(parts[1:], " ")),
	}, true
}

// NormalizePhone validates and formats a US phone number.
//
// # Description
//
// Every non-digit is stripped. Ten digits are valid as-is; eleven digits
// with a leading 1 are valid after dropping the country code. Valid numbers
// are returned as "(XXX) XXX-XXXX".
func NormalizePhone(text string) (string, bool) {
	digits := make([]byte, 0, len(text))
	for i := 0; i < len(text); i++ {
		if text[i] >= '0' && text[i] <= '9' {
			digits = append(digits, text[i])
		}
	}
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return "", false
	}
	d := string(digits)
	return "(" + d[:3] + ") " + d[3:6] + "-" + d[6:], true
}

// ParseSelection extracts a 1-based slot choice.
//
// The classifier's "number" entity wins when present; otherwise the query
// text is parsed after trimming whitespace, punctuation and a leading '#'.
// Zero means no usable number.
func ParseSelection(entities map[string]any, text string) int {
	if n, ok := numberEntity(entities); ok {
		return n
	}
	cleaned := strings.TrimFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || r == '#'
	})
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0
	}
	return n
}

func numberEntity(entities map[string]any) (int, bool) {
	switch v := entities["number"].(type) {
	case float64:
		if v == 0 || v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, v != 0
	case json.Number:
		n, err := strconv.Atoi(v.String())
		return n, err == nil && n != 0
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil && n != 0
	case []any:
		// Dialogflow sends list-valued entities when the parameter is marked
		// "is list".
		if len(v) > 0 {
			return numberEntity(map[string]any{"number": v[0]})
		}
	}
	return 0, false
}

// firstNameOf returns the first token of a full name, or "there".
func firstNameOf(full string) string {
	if f := strings.Fields(full); len(f) > 0 {
		return f[0]
	}
	return "there"
}

// containsAny reports whether s contains any of subs.
// wordText lower-cases s and keeps letters, digits and apostrophes, with
// single spaces between words.
func wordText(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '’'
	})
	for i, w := range words {
		words[i] = strings.ReplaceAll(w, "’", "'")
	}
	return strings.Join(words, " ")
}

// containsWords reports whether any phrase occurs in text on word
// boundaries. text must come from wordText.
func containsWords(text string, phrases ...string) bool {
	padded := " " + text + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
