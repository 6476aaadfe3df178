// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gesture maps press/drag/release pointer input to cell-toggle
// intents.
package gesture

import "sync"

// Button identifies a pointer button.
type Button int

const (
	ButtonNone Button = iota
	// ButtonPrimary paints.
	ButtonPrimary
	// ButtonSecondary erases.
	ButtonSecondary
	ButtonOther
)

// Intent is one cell toggle to apply to the overlay engine.
type Intent struct {
	X       int
	Y       int
	Erasing bool
}

// Sink receives intents. *overlay.Engine satisfies it through Toggle.
type Sink interface {
	Toggle(x, y int, erasing bool) error
}

// session is the pointer state of one press-to-release interaction.
type session struct {
	erasing bool
	lastX   int
	lastY   int
}

// Translator turns pointer events into intents.
//
// The erase/paint mode is fixed by the button that started the gesture and
// cannot change until Release. Release ends the pointer session only; it
// never touches the selection.
type Translator struct {
	sink    Sink
	onError func(error)

	mu     sync.Mutex
	active *session
}

// NewTranslator returns a translator forwarding intents to sink. onError,
// if non-nil, receives sink errors (for example a cell outside the grid).
func NewTranslator(sink Sink, onError func(error)) *Translator {
	return &Translator{sink: sink, onError: onError}
}

// Press starts a gesture at (x, y) and emits its first intent. Buttons other
// than primary and secondary are ignored. A press during an active gesture
// replaces it, so a release lost outside the terminal cannot lock the mode.
func (t *Translator) Press(button Button, x, y int) (Intent, bool) {
	var erasing bool
	switch button {
	case ButtonPrimary:
	case ButtonSecondary:
		erasing = true
	default:
		return Intent{}, false
	}

	t.mu.Lock()
	t.active = &session{erasing: erasing, lastX: x, lastY: y}
	t.mu.Unlock()

	return t.emit(Intent{X: x, Y: y, Erasing: erasing}), true
}

// Enter reports the pointer entering (x, y). During a gesture it emits one
// intent per newly entered cell; repeated reports for the same cell and
// motion without a press are ignored.
func (t *Translator) Enter(x, y int) (Intent, bool) {
	t.mu.Lock()
	s := t.active
	if s == nil || (s.lastX == x && s.lastY == y) {
		t.mu.Unlock()
		return Intent{}, false
	}
	s.lastX, s.lastY = x, y
	erasing := s.erasing
	t.mu.Unlock()

	return t.emit(Intent{X: x, Y: y, Erasing: erasing}), true
}

// Release ends the current gesture.
func (t *Translator) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = nil
}

// Dragging reports whether a gesture is active, and its mode.
func (t *Translator) Dragging() (active, erasing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == nil {
		return false, false
	}
	return true, t.active.erasing
}

func (t *Translator) emit(in Intent) Intent {
	if t.sink == nil {
		return in
	}
	if err := t.sink.Toggle(in.X, in.Y, in.Erasing); err != nil && t.onError != nil {
		t.onError(err)
	}
	return in
}
