// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux is the terminal board: a bubbletea program that renders the
// merged authoritative and painted view, turns mouse gestures into cell
// toggles and shows the store's event history.
//
// # Thread Safety
//
// Board is driven by the bubbletea event loop. Other goroutines reach it
// only through Program.Send with the messages defined here.
package ux

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/automata/pkg/gesture"
	"github.com/AleutianAI/automata/pkg/grid"
	"github.com/AleutianAI/automata/pkg/gridstore"
	"github.com/AleutianAI/automata/pkg/overlay"
)

// gridTop is the screen row of the first grid row: title, then a blank line.
const gridTop = 2

// cellWidth is the number of terminal columns per cell.
const cellWidth = 2

// =============================================================================
// Dependencies
// =============================================================================

// Engine is the reconciliation surface the board drives.
// *overlay.Engine implements it.
type Engine interface {
	gesture.Sink
	View() [][]grid.CellState
	Selection() []grid.Coord
	Loaded() bool
	CommitSelection(ctx context.Context) (gridstore.Receipt, error)
	AdvanceGeneration(ctx context.Context) (gridstore.Receipt, error)
}

// Refresher runs one poll cycle on demand. *poller.Poller implements it.
type Refresher interface {
	RunNow(ctx context.Context) error
}

// History renders the event log. *eventlog.Log implements it.
type History interface {
	Render() []string
}

// =============================================================================
// Messages
// =============================================================================

// RefreshedMsg reports a completed poll cycle.
type RefreshedMsg struct {
	Err error
}

// EventsMsg reports that the event history changed.
type EventsMsg struct{}

type mutationDoneMsg struct {
	op      string
	receipt gridstore.Receipt
	err     error
}

// =============================================================================
// Styles
// =============================================================================

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	activeStyle  = lipgloss.NewStyle().Background(lipgloss.Color("#000000"))
	paintedStyle = lipgloss.NewStyle().Background(lipgloss.Color("#90EE90"))
	emptyStyle   = lipgloss.NewStyle().Background(lipgloss.Color("#FFFFFF"))
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	headerStyle  = lipgloss.NewStyle().Underline(true)
)

func renderCell(s grid.CellState) string {
	blank := strings.Repeat(" ", cellWidth)
	switch s {
	case grid.Active:
		return activeStyle.Render(blank)
	case grid.Painted:
		return paintedStyle.Render(blank)
	default:
		return emptyStyle.Render(blank)
	}
}

// =============================================================================
// Board
// =============================================================================

// BoardConfig configures a Board.
type BoardConfig struct {
	// Title heads the screen. Default: "automata".
	Title string

	// Account is shown next to the title.
	Account string

	// HistoryLines is how many of the most recent events are shown.
	// Default: 8.
	HistoryLines int
}

// Board is the bubbletea model.
type Board struct {
	ctx        context.Context
	config     BoardConfig
	engine     Engine
	refresher  Refresher
	history    History
	translator *gesture.Translator

	keys keyMap
	help help.Model

	pending string
	status  string
	err     error
	width   int
}

// NewBoard builds a board.
//
// # Inputs
//
//   - ctx: Parent of every store call the board starts.
//   - engine: Reconciliation engine.
//   - refresher: May be nil; the refresh key is then a no-op.
//   - history: May be nil; the history pane is then omitted.
func NewBoard(ctx context.Context, engine Engine, refresher Refresher, history History, config BoardConfig) *Board {
	if config.Title == "" {
		config.Title = "automata"
	}
	if config.HistoryLines <= 0 {
		config.HistoryLines = 8
	}
	b := &Board{
		ctx:       ctx,
		config:    config,
		engine:    engine,
		refresher: refresher,
		history:   history,
		keys:      defaultKeyMap(),
		help:      help.New(),
	}
	b.translator = gesture.NewTranslator(engine, func(err error) { b.err = err })
	return b
}

// Init implements tea.Model.
func (b *Board) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (b *Board) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		b.width = msg.Width
		b.help.Width = msg.Width

	case tea.KeyMsg:
		return b, b.handleKey(msg)

	case tea.MouseMsg:
		b.handleMouse(msg)

	case RefreshedMsg:
		if msg.Err != nil {
			b.err = fmt.Errorf("refresh: %w", msg.Err)
		}

	case EventsMsg:
		// History is read in View.

	case mutationDoneMsg:
		b.finish(msg)
	}
	return b, nil
}

func (b *Board) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, b.keys.Quit):
		return tea.Quit

	case key.Matches(msg, b.keys.Help):
		b.help.ShowAll = !b.help.ShowAll

	case key.Matches(msg, b.keys.Commit):
		return b.start("commit", b.engine.CommitSelection)

	case key.Matches(msg, b.keys.Advance):
		return b.start("advance", b.engine.AdvanceGeneration)

	case key.Matches(msg, b.keys.Refresh):
		if b.refresher == nil {
			return nil
		}
		ctx, refresher := b.ctx, b.refresher
		return func() tea.Msg {
			return RefreshedMsg{Err: refresher.RunNow(ctx)}
		}
	}
	return nil
}

// start launches a commit or advance unless one is already in flight.
func (b *Board) start(op string, fn func(context.Context) (gridstore.Receipt, error)) tea.Cmd {
	if b.pending != "" {
		return nil
	}
	if op == "commit" && len(b.engine.Selection()) == 0 {
		b.status = "nothing selected"
		return nil
	}
	b.pending = op
	b.err = nil
	ctx := b.ctx
	return func() tea.Msg {
		receipt, err := fn(ctx)
		return mutationDoneMsg{op: op, receipt: receipt, err: err}
	}
}

func (b *Board) finish(msg mutationDoneMsg) {
	b.pending = ""
	var postPull *overlay.PostCommitPullError
	switch {
	case msg.err == nil:
		b.status = fmt.Sprintf("%s confirmed in block %d", msg.op, msg.receipt.Block)
	case errors.As(msg.err, &postPull):
		b.status = fmt.Sprintf("%s confirmed in block %d", msg.op, postPull.Receipt.Block)
		b.err = fmt.Errorf("grid not yet refreshed: %w", postPull.Err)
	default:
		b.status = ""
		b.err = fmt.Errorf("%s failed: %w", msg.op, msg.err)
	}
}

func (b *Board) handleMouse(msg tea.MouseMsg) {
	switch msg.Action {
	case tea.MouseActionRelease:
		b.translator.Release()

	case tea.MouseActionPress:
		x, y, ok := b.cellAt(msg.X, msg.Y)
		if !ok {
			return
		}
		b.translator.Press(buttonOf(msg.Button), x, y)

	case tea.MouseActionMotion:
		x, y, ok := b.cellAt(msg.X, msg.Y)
		if !ok {
			return
		}
		b.translator.Enter(x, y)
	}
}

func buttonOf(b tea.MouseButton) gesture.Button {
	switch b {
	case tea.MouseButtonLeft:
		return gesture.ButtonPrimary
	case tea.MouseButtonRight:
		return gesture.ButtonSecondary
	case tea.MouseButtonNone:
		return gesture.ButtonNone
	default:
		return gesture.ButtonOther
	}
}

// cellAt maps a screen position to grid coordinates. Rows of the screen are
// the grid's x index.
func (b *Board) cellAt(col, row int) (x, y int, ok bool) {
	if !b.engine.Loaded() {
		return 0, 0, false
	}
	view := b.engine.View()
	x, y = row-gridTop, col/cellWidth
	if col < 0 || x < 0 || x >= len(view) || y >= len(view[x]) {
		return 0, 0, false
	}
	return x, y, true
}

// View implements tea.Model.
func (b *Board) View() string {
	var s strings.Builder

	title := titleStyle.Render(b.config.Title)
	if b.config.Account != "" {
		title += statusStyle.Render("  " + b.config.Account)
	}
	s.WriteString(title)
	s.WriteString("\n\n")

	if !b.engine.Loaded() {
		s.WriteString("Loading grid...\n")
	} else {
		for _, row := range b.engine.View() {
			for _, cell := range row {
				s.WriteString(renderCell(cell))
			}
			s.WriteString("\n")
		}
	}

	s.WriteString("\n")
	s.WriteString(b.statusLine())
	s.WriteString("\n")

	if b.history != nil {
		s.WriteString("\n")
		s.WriteString(headerStyle.Render("Events"))
		s.WriteString("\n")
		lines := b.history.Render()
		if len(lines) > b.config.HistoryLines {
			lines = lines[len(lines)-b.config.HistoryLines:]
		}
		for _, line := range lines {
			s.WriteString(line)
			s.WriteString("\n")
		}
	}

	s.WriteString("\n")
	s.WriteString(b.help.View(b.keys))
	return s.String()
}

func (b *Board) statusLine() string {
	parts := []string{fmt.Sprintf("selected: %d", len(b.engine.Selection()))}
	switch b.pending {
	case "commit":
		parts = append(parts, "committing selection...")
	case "advance":
		parts = append(parts, "advancing generation...")
	}
	if b.status != "" {
		parts = append(parts, b.status)
	}
	line := statusStyle.Render(strings.Join(parts, "  |  "))
	if b.err != nil {
		line += "\n" + errorStyle.Render(b.err.Error())
	}
	return line
}

// Pending returns the operation in flight ("commit", "advance" or "").
func (b *Board) Pending() string { return b.pending }

// Err returns the last error shown in the status line.
func (b *Board) Err() error { return b.err }
