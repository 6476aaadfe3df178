// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package poller re-pulls the authoritative grid on a fixed interval,
// independent of user action.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AleutianAI/automata/pkg/logging"
	"github.com/AleutianAI/automata/pkg/observability"
)

// ErrAlreadyRunning is returned by Start on a running poller.
var ErrAlreadyRunning = errors.New("poller is already running")

// Target is what the poller refreshes. *overlay.Engine satisfies it.
type Target interface {
	Load(ctx context.Context) error
	Refresh(ctx context.Context) error
	Loaded() bool
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds poller settings.
//
// # Fields
//
//   - Interval: Time between refresh cycles. Default: 10 seconds.
//   - OnCycle: Optional callback invoked after every cycle, from the poller
//     goroutine. Used by the board to re-render.
type Config struct {
	Interval time.Duration
	OnCycle  func(Cycle)
}

// DefaultConfig returns a Config with a 10 second interval.
func DefaultConfig() Config {
	return Config{Interval: 10 * time.Second}
}

// Cycle is the outcome of one poll cycle.
type Cycle struct {
	// Initial is true when the cycle performed the first load.
	Initial  bool
	Err      error
	Duration time.Duration
}

// =============================================================================
// Poller
// =============================================================================

// Poller runs the refresh loop.
//
// # Description
//
// Start performs the initial load right away, then refreshes on every tick.
// A failed cycle is logged and skipped; the loop never exits on a cycle
// error. While the first load has not succeeded, each cycle retries the load
// instead of refreshing.
//
// # Thread Safety
//
// All public methods are safe for concurrent use.
type Poller struct {
	target  Target
	config  Config
	logger  *logging.Logger
	metrics *observability.ClientMetrics

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a poller. A non-positive interval is replaced by the default.
func New(target Target, config Config, logger *logging.Logger, metrics *observability.ClientMetrics) *Poller {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Poller{
		target:  target,
		config:  config,
		logger:  logger,
		metrics: metrics,
		done:    make(chan struct{}),
	}
}

// Start begins polling in a background goroutine.
//
// # Inputs
//
//   - ctx: Cancelling it stops the loop, like Stop.
//
// # Outputs
//
//   - error: ErrAlreadyRunning if Start was called without a matching Stop.
//
// # Limitations
//
//   - The initial load runs on the poller goroutine; Start does not wait
//     for it. Use OnCycle or RunNow to observe it.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrAlreadyRunning
	}
	p.running = true
	p.done = make(chan struct{})

	p.logger.Info("grid poller starting", "interval", p.config.Interval.String())

	p.wg.Add(1)
	go p.runLoop(ctx, p.done)
	return nil
}

// Stop ends the loop and waits for an in-progress cycle to return. Safe to
// call multiple times.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.logger.Info("grid poller stopping")
	close(p.done)
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// RunNow performs one cycle synchronously. It does not affect the schedule.
func (p *Poller) RunNow(ctx context.Context) error {
	return p.execute(ctx).Err
}

// =============================================================================
// Internal
// =============================================================================

func (p *Poller) runLoop(ctx context.Context, done <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.execute(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("grid poller stopped (context cancelled)")
			p.mu.Lock()
			p.running = false
			p.mu.Unlock()
			return
		case <-done:
			p.logger.Info("grid poller stopped (stop requested)")
			return
		case <-ticker.C:
			p.execute(ctx)
		}
	}
}

// execute runs one cycle and never panics the loop on error.
func (p *Poller) execute(ctx context.Context) Cycle {
	start := time.Now()
	cycle := Cycle{Initial: !p.target.Loaded()}
	if cycle.Initial {
		if err := p.target.Load(ctx); err != nil {
			cycle.Err = fmt.Errorf("initial load: %w", err)
		}
	} else if err := p.target.Refresh(ctx); err != nil {
		cycle.Err = fmt.Errorf("refresh: %w", err)
	}
	cycle.Duration = time.Since(start)

	p.metrics.ObservePollCycle(cycle.Err == nil)
	if cycle.Err != nil {
		p.logger.Warn("poll cycle failed", "initial", cycle.Initial, "error", cycle.Err)
	} else {
		p.logger.Debug("poll cycle completed", "initial", cycle.Initial, "duration_ms", cycle.Duration.Milliseconds())
	}

	if p.config.OnCycle != nil {
		p.config.OnCycle(cycle)
	}
	return cycle
}
