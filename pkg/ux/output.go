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
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/automata/pkg/grid"
	"github.com/AleutianAI/automata/pkg/gridstore"
)

var (
	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#2C4A54")
)

// Styles provides the shared text styles.
var Styles = struct {
	Title     lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorSuccess),
	Muted:     lipgloss.NewStyle().Foreground(ColorMuted),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true),
}

// Icon is a status marker.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconBullet  Icon = "•"
)

// Render returns the icon with its status color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes command results. Styled output uses colors and icons; plain
// output is line oriented with a fixed prefix so scripts can parse it.
type Printer struct {
	out    io.Writer
	styled bool
}

// NewPrinter returns a printer writing to out.
func NewPrinter(out io.Writer, styled bool) *Printer {
	return &Printer{out: out, styled: styled}
}

// Styled reports whether the printer emits colors.
func (p *Printer) Styled() bool { return p.styled }

// Success prints a completed action.
func (p *Printer) Success(text string) {
	if !p.styled {
		fmt.Fprintf(p.out, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a non-fatal problem.
func (p *Printer) Warning(text string) {
	if !p.styled {
		fmt.Fprintf(p.out, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Info prints a plain line.
func (p *Printer) Info(text string) {
	if !p.styled {
		fmt.Fprintln(p.out, text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Receipt prints a finalized mutation. Stores without transactions leave
// TxHash empty and only the block is shown.
func (p *Printer) Receipt(what string, r gridstore.Receipt) {
	switch {
	case r.TxHash != "":
		p.Success(fmt.Sprintf("%s in block %d (tx %s)", what, r.Block, r.TxHash))
	case r.Block != 0:
		p.Success(fmt.Sprintf("%s in block %d", what, r.Block))
	default:
		p.Success(what)
	}
}

// Grid prints a header line and the grid, one row per line. Plain output
// uses '#' and '.'; styled output draws the board's two-column cells.
func (p *Printer) Grid(g grid.Grid) {
	fmt.Fprintf(p.out, "%dx%d, %d alive\n", g.Rows(), g.Cols(), g.Alive())
	if !p.styled {
		fmt.Fprintln(p.out, g.String())
		return
	}
	var b strings.Builder
	for _, row := range g {
		for _, alive := range row {
			if alive {
				b.WriteString(renderCell(grid.Active))
			} else {
				b.WriteString(renderCell(grid.Empty))
			}
		}
		b.WriteByte('\n')
	}
	fmt.Fprint(p.out, b.String())
}

// Event prints one history record with its position in the log.
func (p *Printer) Event(n int, block uint64, text string) {
	if !p.styled {
		fmt.Fprintf(p.out, "#%d block %d  %s\n", n, block, text)
		return
	}
	fmt.Fprintf(p.out, "%s %s %s\n",
		IconBullet.Render(),
		Styles.Muted.Render(fmt.Sprintf("#%d block %d", n, block)),
		text,
	)
}
