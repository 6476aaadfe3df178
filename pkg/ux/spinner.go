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
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a waiting message on one terminal line. Mutations block
// until the store finalizes them, which can take a block or more.
type Spinner struct {
	out     io.Writer
	message string
	animate bool

	stop      chan struct{}
	done      chan struct{}
	mu        sync.Mutex
	isRunning bool
	frame     int
}

// NewSpinner creates a spinner writing to out. With animate false it prints
// the message once and never redraws, for pipes and log files.
func NewSpinner(out io.Writer, message string, animate bool) *Spinner {
	return &Spinner{
		out:     out,
		message: message,
		animate: animate,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins the animation. Calling it twice is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	if !s.animate {
		fmt.Fprintf(s.out, "%s...\n", s.message)
		close(s.done)
		return
	}

	go func() {
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				fmt.Fprint(s.out, "\r\033[K")
				close(s.done)
				return
			case <-ticker.C:
				s.mu.Lock()
				frame := Styles.Highlight.Render(spinnerFrames[s.frame])
				fmt.Fprintf(s.out, "\r%s %s", frame, s.message)
				s.frame = (s.frame + 1) % len(spinnerFrames)
				s.mu.Unlock()
			}
		}
	}()
}

// Stop clears the line and waits for the animation to exit.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.animate {
		close(s.stop)
	}
	<-s.done
}

// UpdateMessage changes the message while running.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// WithSpinner runs fn while a spinner shows message on out.
func WithSpinner(out io.Writer, message string, animate bool, fn func() error) error {
	spin := NewSpinner(out, message, animate)
	spin.Start()
	defer spin.Stop()
	return fn()
}
