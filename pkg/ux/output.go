// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders CLI output for weave commands.
//
// Output is styled with lipgloss when writing to a terminal and falls back
// to plain, line-oriented text otherwise, so piped output stays parseable.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text, borders

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// TripletRow is one line of triplet output. Color is the predicate's bound
// color; empty renders the predicate unstyled.
type TripletRow struct {
	Subject   string
	Predicate string
	Object    string
	Color     string
}

type styles struct {
	title   lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	error   lipgloss.Style
	node    lipgloss.Style
	box     lipgloss.Style
}

// Output writes styled or plain CLI output to one writer.
//
// Thread Safety: Not safe for concurrent use.
type Output struct {
	w        io.Writer
	plain    bool
	renderer *lipgloss.Renderer
	styles   styles
}

// New returns an Output for w. Styling is enabled only when w is a
// terminal.
func New(w io.Writer) *Output {
	if IsTerminal(w) {
		return NewStyled(w)
	}
	return NewPlain(w)
}

// NewPlain returns an Output that never styles.
func NewPlain(w io.Writer) *Output {
	return &Output{w: w, plain: true}
}

// NewStyled returns an Output that always uses lipgloss styles. The color
// profile still follows what the renderer detects for w.
func NewStyled(w io.Writer) *Output {
	r := lipgloss.NewRenderer(w)
	return &Output{
		w:        w,
		renderer: r,
		styles: styles{
			title:   r.NewStyle().Bold(true).Foreground(ColorTealBright),
			muted:   r.NewStyle().Foreground(ColorSlate),
			success: r.NewStyle().Foreground(ColorSuccess),
			warning: r.NewStyle().Foreground(ColorWarning),
			error:   r.NewStyle().Foreground(ColorError),
			node:    r.NewStyle().Bold(true).Foreground(ColorTealPrimary),
			box: r.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorTealDeep).
				Padding(0, 1),
		},
	}
}

// IsTerminal reports whether w is a terminal file.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Plain reports whether output is unstyled.
func (o *Output) Plain() bool { return o.plain }

// Title prints a heading. Plain output omits it.
func (o *Output) Title(text string) {
	if o.plain {
		return
	}
	fmt.Fprintln(o.w, o.styles.title.Render(text))
}

// Success prints a success message.
func (o *Output) Success(text string) {
	if o.plain {
		fmt.Fprintf(o.w, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(o.w, "%s %s\n", o.styles.success.Render(string(IconSuccess)), o.styles.success.Render(text))
}

// Warning prints a warning message.
func (o *Output) Warning(text string) {
	if o.plain {
		fmt.Fprintf(o.w, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(o.w, "%s %s\n", o.styles.warning.Render(string(IconWarning)), o.styles.warning.Render(text))
}

// Error prints an error message.
func (o *Output) Error(text string) {
	if o.plain {
		fmt.Fprintf(o.w, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(o.w, "%s %s\n", o.styles.error.Render(string(IconError)), o.styles.error.Render(text))
}

// Info prints an informational line.
func (o *Output) Info(text string) {
	if o.plain {
		fmt.Fprintln(o.w, text)
		return
	}
	fmt.Fprintf(o.w, "%s %s\n", o.styles.muted.Render("│"), text)
}

// Box prints text in a rounded box. Plain output prints the text as is.
func (o *Output) Box(text string) {
	if o.plain {
		fmt.Fprintln(o.w, text)
		return
	}
	fmt.Fprintln(o.w, o.styles.box.Render(text))
}

// Triplets prints one triplet per line.
//
// Plain output is tab-separated "subject predicate object" so it can be
// piped into cut or awk. Styled output draws "subject ─[predicate]→ object"
// with the predicate in its bound color.
func (o *Output) Triplets(rows []TripletRow) {
	if o.plain {
		for _, r := range rows {
			fmt.Fprintf(o.w, "%s\t%s\t%s\n", r.Subject, r.Predicate, r.Object)
		}
		return
	}

	width := 0
	for _, r := range rows {
		width = max(width, lipgloss.Width(r.Subject))
	}
	for _, r := range rows {
		pred := o.renderer.NewStyle()
		if r.Color != "" {
			pred = pred.Foreground(lipgloss.Color(r.Color))
		}
		subject := r.Subject + strings.Repeat(" ", width-lipgloss.Width(r.Subject))
		fmt.Fprintf(o.w, "%s %s %s %s\n",
			o.styles.node.Render(subject),
			o.styles.muted.Render("─["),
			pred.Render(r.Predicate)+o.styles.muted.Render("]"+string(IconArrow)),
			o.styles.node.Render(r.Object))
	}
}
