// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders terminal output for the intake CLI.
//
// Styling is applied only when the destination is a terminal; redirected
// output is plain text so transcripts can be diffed.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")
	ColorWarning     = lipgloss.Color("#F4D03F")
	ColorError       = lipgloss.Color("#E74C3C")
)

// Styles holds the CLI's lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Bot     lipgloss.Style
	Prompt  lipgloss.Style
	Chip    lipgloss.Style
	Card    lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Bot:     lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Prompt:  lipgloss.NewStyle().Bold(true),
	Chip:    lipgloss.NewStyle().Foreground(ColorTealBright).Padding(0, 1).Border(lipgloss.RoundedBorder(), false, true),
	Card:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(ColorTealDeep).Padding(0, 1),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
}

// IsTerminal reports whether w is a terminal (including Cygwin ptys).
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer writes styled lines to w.
//
// # Thread Safety
//
// Not safe for concurrent use.
type Printer struct {
	w     io.Writer
	color bool
}

// NewPrinter styles output only when w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, color: IsTerminal(w)}
}

func (p *Printer) render(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

// Title prints a heading.
func (p *Printer) Title(text string) {
	fmt.Fprintln(p.w, p.render(Styles.Title, text))
}

// Muted prints secondary text.
func (p *Printer) Muted(text string) {
	fmt.Fprintln(p.w, p.render(Styles.Muted, text))
}

// Prompt prints the input prompt without a newline.
func (p *Printer) Prompt(text string) {
	fmt.Fprint(p.w, p.render(Styles.Prompt, text))
}

// Bot prints an assistant message, prefixing each line.
func (p *Printer) Bot(text string) {
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintln(p.w, p.render(Styles.Bot, "│ "+line))
	}
}

// Chips prints suggestion labels on one line, numbered from 1 so the
// reader can answer with the number.
func (p *Printer) Chips(labels []string) {
	if len(labels) == 0 {
		return
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = p.render(Styles.Chip, fmt.Sprintf("%d. %s", i+1, l))
	}
	if p.color {
		fmt.Fprintln(p.w, lipgloss.JoinHorizontal(lipgloss.Center, parts...))
		return
	}
	fmt.Fprintln(p.w, "[ "+strings.Join(parts, " | ")+" ]")
}

// Card prints a titled box.
func (p *Printer) Card(title, body string) {
	if !p.color {
		fmt.Fprintf(p.w, "+ %s\n  %s\n", title, body)
		return
	}
	fmt.Fprintln(p.w, Styles.Card.Render(Styles.Title.Render(title)+"\n"+body))
}

// Warn prints a warning line.
func (p *Printer) Warn(text string) {
	fmt.Fprintln(p.w, p.render(Styles.Warning, "⚠ "+text))
}

// Error prints an error line.
func (p *Printer) Error(err error) {
	fmt.Fprintln(p.w, p.render(Styles.Error, "✗ "+err.Error()))
}
