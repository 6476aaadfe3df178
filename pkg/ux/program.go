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
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/AleutianAI/automata/pkg/poller"
)

// Sender delivers messages into a running program. *tea.Program
// implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// SenderFunc adapts a function to Sender. It lets hooks be wired before the
// program they feed exists.
type SenderFunc func(msg tea.Msg)

func (f SenderFunc) Send(msg tea.Msg) { f(msg) }

// NewProgram wraps board in a full-screen program with cell-motion mouse
// reporting, so drags arrive as motion events while a button is held.
//
// in and out may be nil to use the terminal.
func NewProgram(ctx context.Context, board *Board, in io.Reader, out io.Writer) *tea.Program {
	opts := []tea.ProgramOption{
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	}
	if in != nil {
		opts = append(opts, tea.WithInput(in))
	}
	if out != nil {
		opts = append(opts, tea.WithOutput(out))
	}
	return tea.NewProgram(board, opts...)
}

// CycleNotifier returns a poller OnCycle hook that re-renders the board.
func CycleNotifier(s Sender) func(poller.Cycle) {
	return func(c poller.Cycle) {
		s.Send(RefreshedMsg{Err: c.Err})
	}
}

// ForwardEvents sends EventsMsg for every signal on changed until ctx ends
// or changed is closed.
func ForwardEvents(ctx context.Context, s Sender, changed <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changed:
			if !ok {
				return nil
			}
			s.Send(EventsMsg{})
		}
	}
}
