// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package overlay implements the optimistic overlay engine.
//
// The engine keeps two grids of the same shape:
//
//   - the authoritative grid, replaced wholesale by every pull
//   - the paint overlay, edited cell by cell by the user and replaced by a
//     deep copy of the authoritative grid only after a commit or generation
//     advance completes
//
// The selection set records which overlay cells the user painted and is the
// payload of the next batch commit.
//
// # Concurrency
//
// Engine is safe for concurrent use. Its mutex is never held across a remote
// call: every protocol snapshots under the lock, releases it while the store
// is working, and re-takes it to apply the result. A poll and a commit may
// therefore be outstanding together. Their pulls are ordered by a monotonic
// sequence number drawn when each pull is issued; a result older than the last
// applied one is discarded.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AleutianAI/automata/pkg/grid"
	"github.com/AleutianAI/automata/pkg/gridstore"
	"github.com/AleutianAI/automata/pkg/logging"
	"github.com/AleutianAI/automata/pkg/observability"
)

var (
	// ErrNotLoaded is returned before the first successful load.
	ErrNotLoaded = errors.New("grid not loaded")

	// ErrOutOfBounds is returned for coordinates outside the grid.
	ErrOutOfBounds = errors.New("cell out of bounds")

	// ErrEmptySelection is returned by CommitSelection when nothing is
	// queued. The store is not contacted.
	ErrEmptySelection = errors.New("selection is empty")

	// ErrBusy is returned while a commit or generation advance is in flight.
	ErrBusy = errors.New("a store mutation is already in flight")

	// ErrShapeChanged is returned when a pull reports dimensions different
	// from the loaded grid. The result is not applied.
	ErrShapeChanged = errors.New("pulled grid changed dimensions")
)

// PostCommitPullError reports a mutation that was finalized by the store
// but whose follow-up pull failed. Engine state is unchanged; the next
// successful refresh brings the authoritative grid up to date.
type PostCommitPullError struct {
	Op      string
	Receipt gridstore.Receipt
	Err     error
}

func (e *PostCommitPullError) Error() string {
	return fmt.Sprintf("%s committed in tx %s but refresh failed: %v", e.Op, e.Receipt.TxHash, e.Err)
}

func (e *PostCommitPullError) Unwrap() error {
	return e.Err
}

// Remote is the store surface the engine needs. *gridstore.Client
// satisfies it.
type Remote interface {
	Pull(ctx context.Context) (grid.Grid, error)
	CommitBatch(ctx context.Context, coords []grid.Coord) (gridstore.Receipt, error)
	AdvanceGeneration(ctx context.Context) (gridstore.Receipt, error)
}

var _ Remote = (*gridstore.Client)(nil)

// =============================================================================
// Engine
// =============================================================================

// Engine owns the authoritative grid, the paint overlay and the selection.
type Engine struct {
	remote  Remote
	logger  *logging.Logger
	metrics *observability.ClientMetrics

	mu            sync.Mutex
	authoritative grid.Grid
	overlay       grid.Grid
	selection     []grid.Coord
	selected      map[grid.Coord]struct{}
	loaded        bool
	busy          bool
	nextSeq       uint64
	appliedSeq    uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metric set.
func WithMetrics(m *observability.ClientMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an unloaded engine. Call Load (or start a poller) before
// painting.
func New(remote Remote, opts ...Option) *Engine {
	e := &Engine{
		remote:   remote,
		logger:   logging.Nop(),
		selected: make(map[grid.Coord]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// =============================================================================
// Pull protocols
// =============================================================================

// Load pulls the grid and initializes both grids as independent deep copies
// of it. Any pending selection is discarded.
//
// # Outputs
//
//   - error: The pull failure (gridstore.ErrRemoteUnavailable). State is
//     unchanged on error.
func (e *Engine) Load(ctx context.Context) error {
	seq := e.issue()
	g, err := e.remote.Pull(ctx)
	if err != nil {
		e.metrics.ObservePull(observability.SourceInit, observability.StatusUnavailable)
		return fmt.Errorf("load grid: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if seq <= e.appliedSeq {
		e.metrics.ObservePull(observability.SourceInit, observability.StatusStale)
		return nil
	}
	e.appliedSeq = seq
	e.authoritative = g
	e.overlay = g.Clone()
	e.loaded = true
	e.clearSelectionLocked()
	e.metrics.ObservePull(observability.SourceInit, observability.StatusApplied)
	e.logger.Info("grid loaded", "rows", g.Rows(), "cols", g.Cols(), "alive", g.Alive())
	return nil
}

// Refresh re-pulls the authoritative grid. The overlay and selection are
// never touched. Before the first load Refresh behaves like Load.
func (e *Engine) Refresh(ctx context.Context) error {
	if !e.Loaded() {
		return e.Load(ctx)
	}

	seq := e.issue()
	g, err := e.remote.Pull(ctx)
	if err != nil {
		e.metrics.ObservePull(observability.SourcePoll, observability.StatusUnavailable)
		return fmt.Errorf("refresh grid: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	applied, err := e.applyLocked(seq, g)
	if err != nil {
		e.metrics.ObservePull(observability.SourcePoll, observability.StatusUnavailable)
		return fmt.Errorf("refresh grid: %w", err)
	}
	if !applied {
		e.metrics.ObservePull(observability.SourcePoll, observability.StatusStale)
		e.logger.Debug("discarded stale poll result", "seq", seq, "applied_seq", e.appliedSeq)
		return nil
	}
	e.metrics.ObservePull(observability.SourcePoll, observability.StatusApplied)
	return nil
}

// =============================================================================
// Painting
// =============================================================================

// Toggle applies one cell-toggle intent.
//
// # Description
//
// Painting inserts (x,y) into the selection and sets the overlay cell; a
// cell that is already selected is left alone. Erasing removes (x,y) from the
// selection if present and clears the overlay cell unconditionally, so it
// also hides a painted cell left over from before the last reset.
//
// # Outputs
//
//   - error: ErrNotLoaded or ErrOutOfBounds. Nothing is mutated on error.
func (e *Engine) Toggle(x, y int, erasing bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return ErrNotLoaded
	}
	if !e.overlay.Contains(x, y) {
		return fmt.Errorf("%w: (%d,%d) on %dx%d grid", ErrOutOfBounds, x, y, e.overlay.Rows(), e.overlay.Cols())
	}

	c := grid.Coord{X: x, Y: y}
	if erasing {
		if _, ok := e.selected[c]; ok {
			delete(e.selected, c)
			for i, s := range e.selection {
				if s == c {
					e.selection = append(e.selection[:i], e.selection[i+1:]...)
					break
				}
			}
		}
		e.overlay[x][y] = false
	} else {
		if _, ok := e.selected[c]; ok {
			return nil
		}
		e.selected[c] = struct{}{}
		e.selection = append(e.selection, c)
		e.overlay[x][y] = true
	}
	e.metrics.SetSelectionSize(len(e.selection))
	return nil
}

// =============================================================================
// Mutation protocols
// =============================================================================

// CommitSelection submits the selection as one batch mutation.
//
// # Description
//
// The selection is snapshotted in insertion order and sent with
// Remote.CommitBatch. On success the engine pulls, replaces the authoritative
// grid, replaces the overlay with a deep copy of it and clears the selection.
// The mutation and its follow-up pull are not cancelled by ctx once
// submitted.
//
// # Outputs
//
//   - gridstore.Receipt: The finalized mutation, also set on
//     *PostCommitPullError.
//   - error: ErrNotLoaded, ErrEmptySelection, ErrBusy, a gridstore
//     RemoteError (state unchanged), or *PostCommitPullError.
func (e *Engine) CommitSelection(ctx context.Context) (gridstore.Receipt, error) {
	e.mu.Lock()
	if err := e.beginLocked(); err != nil {
		e.mu.Unlock()
		return gridstore.Receipt{}, err
	}
	if len(e.selection) == 0 {
		e.busy = false
		e.mu.Unlock()
		return gridstore.Receipt{}, ErrEmptySelection
	}
	coords := append([]grid.Coord(nil), e.selection...)
	e.mu.Unlock()
	defer e.end()

	ctx = context.WithoutCancel(ctx)
	receipt, err := e.remote.CommitBatch(ctx, coords)
	if err != nil {
		e.logger.Warn("commit failed", "cells", len(coords), "error", err)
		return receipt, fmt.Errorf("commit selection: %w", err)
	}
	e.logger.Info("selection committed", "cells", len(coords), "tx", receipt.TxHash, "block", receipt.Block)
	return receipt, e.reconcile(ctx, "commit", observability.SourceCommit, receipt)
}

// AdvanceGeneration asks the store to step the automaton once. On success it
// resets the overlay and selection exactly like CommitSelection; the
// selection is discarded, not submitted.
func (e *Engine) AdvanceGeneration(ctx context.Context) (gridstore.Receipt, error) {
	e.mu.Lock()
	if err := e.beginLocked(); err != nil {
		e.mu.Unlock()
		return gridstore.Receipt{}, err
	}
	e.mu.Unlock()
	defer e.end()

	ctx = context.WithoutCancel(ctx)
	receipt, err := e.remote.AdvanceGeneration(ctx)
	if err != nil {
		e.logger.Warn("advance generation failed", "error", err)
		return receipt, fmt.Errorf("advance generation: %w", err)
	}
	e.logger.Info("generation advanced", "tx", receipt.TxHash, "block", receipt.Block)
	return receipt, e.reconcile(ctx, "advance", observability.SourceAdvance, receipt)
}

// reconcile runs the post-mutation pull and resets the overlay.
func (e *Engine) reconcile(ctx context.Context, op, source string, receipt gridstore.Receipt) error {
	seq := e.issue()
	g, err := e.remote.Pull(ctx)
	if err != nil {
		e.metrics.ObservePull(source, observability.StatusUnavailable)
		return &PostCommitPullError{Op: op, Receipt: receipt, Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	applied, err := e.applyLocked(seq, g)
	if err != nil {
		e.metrics.ObservePull(source, observability.StatusUnavailable)
		return &PostCommitPullError{Op: op, Receipt: receipt, Err: err}
	}
	if applied {
		e.metrics.ObservePull(source, observability.StatusApplied)
	} else {
		// A newer poll already landed; reset against it instead.
		e.metrics.ObservePull(source, observability.StatusStale)
		e.logger.Debug("discarded stale post-commit pull", "seq", seq, "applied_seq", e.appliedSeq)
	}
	e.overlay = e.authoritative.Clone()
	e.clearSelectionLocked()
	return nil
}

// =============================================================================
// Rendering and accessors
// =============================================================================

// Cell returns the displayed state of one cell: ACTIVE if alive on the
// store, else PAINTED if set in the overlay, else EMPTY.
func (e *Engine) Cell(x, y int) (grid.CellState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return grid.Empty, ErrNotLoaded
	}
	if !e.authoritative.Contains(x, y) {
		return grid.Empty, fmt.Errorf("%w: (%d,%d)", ErrOutOfBounds, x, y)
	}
	return grid.Derive(e.authoritative[x][y], e.overlay[x][y]), nil
}

// View returns the displayed state of every cell, indexed [x][y]. It is nil
// before the first load.
func (e *Engine) View() [][]grid.CellState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		return nil
	}
	view := make([][]grid.CellState, len(e.authoritative))
	for x, row := range e.authoritative {
		view[x] = make([]grid.CellState, len(row))
		for y := range row {
			view[x][y] = grid.Derive(e.authoritative[x][y], e.overlay[x][y])
		}
	}
	return view
}

// Authoritative returns a copy of the authoritative grid.
func (e *Engine) Authoritative() grid.Grid {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.authoritative.Clone()
}

// Overlay returns a copy of the paint overlay.
func (e *Engine) Overlay() grid.Grid {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.overlay.Clone()
}

// Selection returns the selected cells in insertion order.
func (e *Engine) Selection() []grid.Coord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]grid.Coord(nil), e.selection...)
}

// Dimensions returns rows and columns, zero before the first load.
func (e *Engine) Dimensions() (rows, cols int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.authoritative.Rows(), e.authoritative.Cols()
}

// Loaded reports whether the first load has completed.
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Busy reports whether a commit or generation advance is in flight.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// =============================================================================
// Internal
// =============================================================================

func (e *Engine) issue() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextSeq++
	return e.nextSeq
}

// applyLocked replaces the authoritative grid if seq is newer than the last
// applied pull.
func (e *Engine) applyLocked(seq uint64, g grid.Grid) (bool, error) {
	if !g.SameShape(e.authoritative) {
		return false, fmt.Errorf("%w: got %dx%d, loaded %dx%d",
			ErrShapeChanged, g.Rows(), g.Cols(), e.authoritative.Rows(), e.authoritative.Cols())
	}
	if seq <= e.appliedSeq {
		return false, nil
	}
	e.appliedSeq = seq
	e.authoritative = g
	return true, nil
}

func (e *Engine) beginLocked() error {
	if !e.loaded {
		return ErrNotLoaded
	}
	if e.busy {
		return ErrBusy
	}
	e.busy = true
	return nil
}

func (e *Engine) end() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.busy = false
}

func (e *Engine) clearSelectionLocked() {
	e.selection = nil
	e.selected = make(map[grid.Coord]struct{})
	e.metrics.SetSelectionSize(0)
}
