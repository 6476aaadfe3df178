// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gridstoretest provides a scripted in-memory gridstore.Contract for
// tests.
package gridstoretest

import (
	"context"
	"fmt"
	"sync"

	"github.com/AleutianAI/automata/pkg/grid"
	"github.com/AleutianAI/automata/pkg/gridstore"
)

// Batch is one recorded activateCells call.
type Batch struct {
	Xs []uint64
	Ys []uint64
}

// Fake is a gridstore.Contract and gridstore.Notifier backed by memory.
//
// Successful activations set the addressed cells; NextIteration applies Step
// when set. Hooks must be assigned before the fake is shared.
type Fake struct {
	// PullHook runs inside GetGrid after the snapshot is taken and before it
	// is returned. n is the 1-based pull number. It may block.
	PullHook func(ctx context.Context, n int)

	// MutationHook runs inside every mutation before it is applied. It may
	// block.
	MutationHook func(ctx context.Context)

	// Step computes the next generation. Nil leaves the grid unchanged.
	Step func(grid.Grid) grid.Grid

	mu        sync.Mutex
	grid      grid.Grid
	block     uint64
	pulls     int
	advances  int
	batches   []Batch
	singles   []grid.Coord
	pullErr   error
	mutateErr error
	closed    bool
	notify    chan grid.Notification
}

var (
	_ gridstore.Contract = (*Fake)(nil)
	_ gridstore.Notifier = (*Fake)(nil)
)

// NewFake returns a fake holding a copy of g.
func NewFake(g grid.Grid) *Fake {
	return &Fake{
		grid:   g.Clone(),
		notify: make(chan grid.Notification, 64),
	}
}

// SetGrid replaces the store state, as another client's mutation would.
func (f *Fake) SetGrid(g grid.Grid) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grid = g.Clone()
}

// Grid returns a copy of the store state.
func (f *Fake) Grid() grid.Grid {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grid.Clone()
}

// FailPulls makes every GetGrid return err until called with nil.
func (f *Fake) FailPulls(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pullErr = err
}

// FailMutations makes every mutation return err until called with nil.
func (f *Fake) FailMutations(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutateErr = err
}

// Pulls returns how many GetGrid calls were made.
func (f *Fake) Pulls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pulls
}

// Advances returns how many successful NextIteration calls were made.
func (f *Fake) Advances() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.advances
}

// Batches returns the recorded activateCells calls, including failed ones.
func (f *Fake) Batches() []Batch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Batch(nil), f.batches...)
}

// Singles returns the recorded activateCell calls.
func (f *Fake) Singles() []grid.Coord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]grid.Coord(nil), f.singles...)
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Emit queues a notification for Notifications subscribers.
func (f *Fake) Emit(n grid.Notification) {
	f.notify <- n
}

func (f *Fake) GetGrid(ctx context.Context) (grid.Grid, error) {
	f.mu.Lock()
	f.pulls++
	n := f.pulls
	err := f.pullErr
	snapshot := f.grid.Clone()
	f.mu.Unlock()

	if f.PullHook != nil {
		f.PullHook(ctx, n)
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (f *Fake) Width(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(f.grid.Rows()), f.pullErr
}

func (f *Fake) Height(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(f.grid.Cols()), f.pullErr
}

func (f *Fake) ActivateCell(ctx context.Context, x, y uint64) (gridstore.Receipt, error) {
	if f.MutationHook != nil {
		f.MutationHook(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.singles = append(f.singles, grid.Coord{X: int(x), Y: int(y)})
	if f.mutateErr != nil {
		return gridstore.Receipt{}, f.mutateErr
	}
	if !f.grid.Contains(int(x), int(y)) {
		return gridstore.Receipt{}, gridstore.Rejected(fmt.Errorf("cell (%d,%d) out of range", x, y))
	}
	f.grid[x][y] = true
	return f.receiptLocked(), nil
}

func (f *Fake) ActivateCells(ctx context.Context, xs, ys []uint64) (gridstore.Receipt, error) {
	if f.MutationHook != nil {
		f.MutationHook(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, Batch{Xs: append([]uint64(nil), xs...), Ys: append([]uint64(nil), ys...)})
	if f.mutateErr != nil {
		return gridstore.Receipt{}, f.mutateErr
	}
	coords, err := grid.Zip(xs, ys)
	if err != nil {
		return gridstore.Receipt{}, gridstore.Rejected(err)
	}
	for _, c := range coords {
		if !f.grid.Contains(c.X, c.Y) {
			return gridstore.Receipt{}, gridstore.Rejected(fmt.Errorf("cell %s out of range", c))
		}
	}
	for _, c := range coords {
		f.grid[c.X][c.Y] = true
	}
	return f.receiptLocked(), nil
}

func (f *Fake) NextIteration(ctx context.Context) (gridstore.Receipt, error) {
	if f.MutationHook != nil {
		f.MutationHook(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mutateErr != nil {
		return gridstore.Receipt{}, f.mutateErr
	}
	if f.Step != nil {
		f.grid = f.Step(f.grid.Clone())
	}
	f.advances++
	return f.receiptLocked(), nil
}

func (f *Fake) Notifications(ctx context.Context) (<-chan grid.Notification, error) {
	out := make(chan grid.Notification)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-f.notify:
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *Fake) receiptLocked() gridstore.Receipt {
	f.block++
	return gridstore.Receipt{TxHash: fmt.Sprintf("0xfake%04d", f.block), Block: f.block}
}
