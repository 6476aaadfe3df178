// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package devchain is an in-memory authoritative grid store with the same
// surface as the deployed Game of Life contract. It serializes mutations,
// paces them like blocks, and streams contract events to subscribers.
package devchain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/automata/pkg/grid"
	"github.com/AleutianAI/automata/pkg/gridstore"
	"github.com/AleutianAI/automata/pkg/logging"
	"github.com/AleutianAI/automata/pkg/observability"
)

const meterName = "github.com/AleutianAI/automata/services/devchain"

// subscriberBuffer is the per-subscriber notification backlog. A subscriber
// that falls further behind loses notifications.
const subscriberBuffer = 1024

var (
	// ErrInvalidDimensions is returned by NewChain for a non-positive size.
	ErrInvalidDimensions = errors.New("grid dimensions must be positive")

	// ErrLengthMismatch rejects activateCells with unequal xs and ys.
	ErrLengthMismatch = errors.New("coordinate arrays must have equal length")

	// ErrOutOfRange rejects a coordinate outside the grid.
	ErrOutOfRange = errors.New("coordinate out of range")
)

// Config holds development store settings.
//
// # Fields
//
//   - Width: Outer grid dimension (x). Default: 20.
//   - Height: Inner grid dimension (y). Default: 20.
//   - BlockTime: Minimum spacing between mutations. 0 disables pacing.
//     Default: 1 second.
type Config struct {
	Width     int           `yaml:"width" validate:"gt=0,lte=256"`
	Height    int           `yaml:"height" validate:"gt=0,lte=256"`
	BlockTime time.Duration `yaml:"block_time" validate:"gte=0"`
}

// DefaultConfig returns a 20x20 grid with one-second blocks.
func DefaultConfig() Config {
	return Config{Width: 20, Height: 20, BlockTime: time.Second}
}

// Chain is the in-memory store.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Mutations are applied one at a
// time in the order they acquire the state lock.
type Chain struct {
	logger        *logging.Logger
	metrics       *observability.ChainMetrics
	limiter       *rate.Limiter
	blockDuration metric.Float64Histogram

	mu          sync.Mutex
	grid        grid.Grid
	block       uint64
	generation  uint64
	subscribers map[string]chan grid.Notification
}

var (
	_ gridstore.Contract = (*Chain)(nil)
	_ gridstore.Notifier = (*Chain)(nil)
)

// NewChain creates an all-dead grid. Nothing is recorded at creation; each
// new subscriber receives a GridInitialized notification first, stamped with
// the block current when it subscribed.
//
// # Inputs
//
//   - cfg: Dimensions and block pacing.
//   - logger: May be nil.
//   - metrics: May be nil.
//
// # Outputs
//
//   - *Chain: Ready to serve.
//   - error: ErrInvalidDimensions.
func NewChain(cfg Config, logger *logging.Logger, metrics *observability.ChainMetrics) (*Chain, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, cfg.Width, cfg.Height)
	}
	if logger == nil {
		logger = logging.Nop()
	}

	limit := rate.Inf
	if cfg.BlockTime > 0 {
		limit = rate.Every(cfg.BlockTime)
	}

	histogram, err := otel.Meter(meterName).Float64Histogram(
		"devchain_block_seconds",
		metric.WithDescription("Time from mutation submission to block inclusion"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create block histogram: %w", err)
	}

	c := &Chain{
		logger:        logger,
		metrics:       metrics,
		limiter:       rate.NewLimiter(limit, 1),
		blockDuration: histogram,
		grid:          grid.New(cfg.Width, cfg.Height),
		block:         1,
		subscribers:   make(map[string]chan grid.Notification),
	}
	c.logger.Info("grid initialized", "width", cfg.Width, "height", cfg.Height, "block_time", cfg.BlockTime.String())
	return c, nil
}

// =============================================================================
// Reads
// =============================================================================

// GetGrid returns a copy of the current grid.
func (c *Chain) GetGrid(ctx context.Context) (grid.Grid, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grid.Clone(), nil
}

// Width returns the outer dimension.
func (c *Chain) Width(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(c.grid.Rows()), nil
}

// Height returns the inner dimension.
func (c *Chain) Height(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(c.grid.Cols()), nil
}

// Cell returns one cell, like the contract's public grid(x, y) getter.
func (c *Chain) Cell(x, y uint64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.containsLocked(x, y) {
		return false, gridstore.Rejected(fmt.Errorf("%w: (%d,%d)", ErrOutOfRange, x, y))
	}
	return c.grid[x][y], nil
}

// Generation returns how many iterations have run.
func (c *Chain) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// =============================================================================
// Mutations
// =============================================================================

// ActivateCell sets one cell alive and emits CellActivated.
func (c *Chain) ActivateCell(ctx context.Context, x, y uint64) (gridstore.Receipt, error) {
	return c.ActivateCells(ctx, []uint64{x}, []uint64{y})
}

// ActivateCells sets every (xs[i], ys[i]) alive in one block and emits one
// CellActivated per coordinate.
//
// # Outputs
//
//   - gridstore.Receipt: The block containing the mutation.
//   - error: Rejected for a length mismatch or an out-of-range coordinate,
//     in which case no cell changes. ctx errors while waiting for a block.
func (c *Chain) ActivateCells(ctx context.Context, xs, ys []uint64) (gridstore.Receipt, error) {
	op := "activate_cells"
	if len(xs) == 1 {
		op = "activate_cell"
	}
	if len(xs) != len(ys) {
		c.metrics.ObserveMutation(op, observability.StatusRejected, 0)
		return gridstore.Receipt{}, gridstore.Rejected(fmt.Errorf("%w: %d xs, %d ys", ErrLengthMismatch, len(xs), len(ys)))
	}

	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return gridstore.Receipt{}, gridstore.Unavailable(fmt.Errorf("waiting for block: %w", err))
	}

	c.mu.Lock()
	for i := range xs {
		if !c.containsLocked(xs[i], ys[i]) {
			c.mu.Unlock()
			c.metrics.ObserveMutation(op, observability.StatusRejected, 0)
			return gridstore.Receipt{}, gridstore.Rejected(fmt.Errorf("%w: (%d,%d)", ErrOutOfRange, xs[i], ys[i]))
		}
	}
	for i := range xs {
		c.grid[xs[i]][ys[i]] = true
	}
	receipt := c.sealLocked()
	for i := range xs {
		c.publishLocked(grid.Notification{Kind: grid.NotifyCellActivated, X: xs[i], Y: ys[i], Block: receipt.Block})
	}
	alive := c.grid.Alive()
	c.mu.Unlock()

	c.metrics.ObserveMutation(op, observability.StatusSuccess, alive)
	c.blockDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("op", op)))
	c.logger.Debug("cells activated", "count", len(xs), "block", receipt.Block)
	return receipt, nil
}

// NextIteration advances the automaton one generation and emits
// NextIterationCompleted carrying the new grid.
func (c *Chain) NextIteration(ctx context.Context) (gridstore.Receipt, error) {
	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return gridstore.Receipt{}, gridstore.Unavailable(fmt.Errorf("waiting for block: %w", err))
	}

	c.mu.Lock()
	c.grid = Step(c.grid)
	c.generation++
	receipt := c.sealLocked()
	c.publishLocked(grid.Notification{Kind: grid.NotifyNextIterationCompleted, Grid: c.grid.Clone(), Block: receipt.Block})
	alive := c.grid.Alive()
	generation := c.generation
	c.mu.Unlock()

	c.metrics.ObserveMutation("next_iteration", observability.StatusSuccess, alive)
	c.metrics.ObserveGeneration()
	c.blockDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("op", "next_iteration")))
	c.logger.Debug("iteration completed", "generation", generation, "alive", alive, "block", receipt.Block)
	return receipt, nil
}

// =============================================================================
// Notifications
// =============================================================================

// Subscribe registers a notification subscriber. The first notification
// delivered is GridInitialized with the current dimensions.
//
// # Outputs
//
//   - string: Subscriber ID.
//   - <-chan grid.Notification: Closed by the returned cancel function.
//   - func(): Removes the subscriber. Safe to call more than once.
func (c *Chain) Subscribe() (string, <-chan grid.Notification, func()) {
	id := uuid.New().String()
	ch := make(chan grid.Notification, subscriberBuffer)

	c.mu.Lock()
	ch <- grid.Notification{
		Kind:   grid.NotifyGridInitialized,
		Width:  uint64(c.grid.Rows()),
		Height: uint64(c.grid.Cols()),
		Block:  c.block,
	}
	c.subscribers[id] = ch
	c.mu.Unlock()
	c.metrics.SubscriberDelta(1)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			_, ok := c.subscribers[id]
			if ok {
				delete(c.subscribers, id)
				close(ch)
			}
			c.mu.Unlock()
			if ok {
				c.metrics.SubscriberDelta(-1)
			}
		})
	}
	return id, ch, cancel
}

// Notifications implements gridstore.Notifier for in-process use. The
// channel closes when ctx ends.
func (c *Chain) Notifications(ctx context.Context) (<-chan grid.Notification, error) {
	_, ch, cancel := c.Subscribe()
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, nil
}

// Close drops every subscriber.
func (c *Chain) Close() error {
	c.mu.Lock()
	subs := c.subscribers
	c.subscribers = make(map[string]chan grid.Notification)
	for _, ch := range subs {
		close(ch)
	}
	c.mu.Unlock()
	c.metrics.SubscriberDelta(-len(subs))
	return nil
}

// =============================================================================
// Internal
// =============================================================================

func (c *Chain) containsLocked(x, y uint64) bool {
	return x < uint64(c.grid.Rows()) && y < uint64(c.grid.Cols())
}

func (c *Chain) sealLocked() gridstore.Receipt {
	c.block++
	return gridstore.Receipt{
		TxHash: crypto.Keccak256Hash(fmt.Appendf(nil, "devchain-block-%d", c.block)).Hex(),
		Block:  c.block,
	}
}

func (c *Chain) publishLocked(n grid.Notification) {
	for id, ch := range c.subscribers {
		select {
		case ch <- n:
		default:
			c.logger.Warn("subscriber backlog full, dropping notification", "subscriber", id, "kind", string(n.Kind))
		}
	}
}
