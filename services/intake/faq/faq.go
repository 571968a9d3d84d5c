// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package faq answers free-text questions from keyword tables.
//
// Answers are grouped by category (prescription, insurance, billing, ...).
// A question matches an entry when one of the entry's keywords appears in
// it as whole words, or when the whole question is close to a keyword by
// edit distance. Backends: Static (YAML, local or GCS) and Sheets (Google
// Sheets, one worksheet per category). Chain tries several in order.
package faq

import (
	"context"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/AleutianAI/AleutianIntake/services/intake/clinic"
)

// Category groups related answers.
type Category string

const (
	CategoryAppointment  Category = "appointment"
	CategoryPrescription Category = "prescription"
	CategoryInsurance    Category = "insurance"
	CategoryBilling      Category = "billing"
	CategoryPractitioner Category = "practitioner"
	CategoryGeneral      Category = "general"
)

// Categories lists every category in lookup order.
func Categories() []Category {
	return []Category{
		CategoryAppointment,
		CategoryPrescription,
		CategoryInsurance,
		CategoryBilling,
		CategoryPractitioner,
		CategoryGeneral,
	}
}

// Lookup finds an answer for text within category.
type Lookup interface {
	Lookup(ctx context.Context, text string, category Category) (string, bool)
}

// Entry is one question/answer row.
type Entry struct {
	Keywords []string `yaml:"keywords" validate:"required,min=1,dive,required"`
	Answer   string   `yaml:"answer" validate:"required"`
}

// Catalog maps a category to its entries.
type Catalog map[Category][]Entry

// SimilarityThreshold is the minimum normalized edit similarity for a
// whole-question match.
const SimilarityThreshold = 0.7

// phonePlaceholders are replaced with the clinic phone number in answers.
var phonePlaceholders = []string{"{clinic_phone}", "CLINIC_INFO['phone']"}

// Match returns the answer of the first entry that matches text.
func Match(entries []Entry, text, phone string) (string, bool) {
	question := cleanText(text)
	if question == "" {
		return "", false
	}
	for _, e := range entries {
		for _, kw := range e.Keywords {
			k := cleanText(kw)
			if k == "" {
				continue
			}
			if containsWords(question, k) || similarity(question, k) >= SimilarityThreshold {
				return substitutePhone(e.Answer, phone), true
			}
		}
	}
	return "", false
}

// cleanText lower-cases s, drops punctuation and collapses whitespace.
func cleanText(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// containsWords reports whether phrase occurs in s on word boundaries.
// Both arguments must already be cleaned.
func containsWords(s, phrase string) bool {
	return strings.Contains(" "+s+" ", " "+phrase+" ")
}

// similarity is 1 - distance/longer length, over runes.
func similarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func substitutePhone(answer, phone string) string {
	if phone == "" {
		return answer
	}
	for _, p := range phonePlaceholders {
		answer = strings.ReplaceAll(answer, p, phone)
	}
	return answer
}

// phoneOf returns the clinic phone from src, or "".
func phoneOf(src clinic.Source) string {
	if src == nil {
		return ""
	}
	if cfg := src.Current(); cfg != nil {
		return cfg.Info.Phone
	}
	return ""
}

// ===== Composition =====

// Chain tries each Lookup in order and returns the first hit.
type Chain []Lookup

// Lookup implements Lookup.
func (c Chain) Lookup(ctx context.Context, text string, category Category) (string, bool) {
	for _, l := range c {
		if l == nil {
			continue
		}
		if answer, ok := l.Lookup(ctx, text, category); ok {
			return answer, true
		}
	}
	return "", false
}

// None never matches.
type None struct{}

// Lookup implements Lookup.
func (None) Lookup(context.Context, string, Category) (string, bool) {
	return "", false
}

var (
	_ Lookup = Chain(nil)
	_ Lookup = None{}
)
