// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package devchain

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/automata/pkg/grid"
	"github.com/AleutianAI/automata/pkg/gridstore"
	"github.com/AleutianAI/automata/pkg/observability"
)

func newTestChain(t *testing.T, w, h int) *Chain {
	t.Helper()
	chain, err := NewChain(Config{Width: w, Height: h}, nil, nil)
	require.NoError(t, err)
	return chain
}

func gridOf(rows ...string) grid.Grid {
	g := make(grid.Grid, len(rows))
	for x, r := range rows {
		g[x] = make([]bool, len(r))
		for y, ch := range r {
			g[x][y] = ch == '#'
		}
	}
	return g
}

// =============================================================================
// Life rules
// =============================================================================

func TestStep(t *testing.T) {
	tests := []struct {
		name string
		in   grid.Grid
		want grid.Grid
	}{
		{
			name: "blinker oscillates",
			in:   gridOf(".....", "..#..", "..#..", "..#..", "....."),
			want: gridOf(".....", ".....", ".###.", ".....", "....."),
		},
		{
			name: "block is stable",
			in:   gridOf("....", ".##.", ".##.", "...."),
			want: gridOf("....", ".##.", ".##.", "...."),
		},
		{
			name: "lonely cell dies",
			in:   gridOf("...", ".#.", "..."),
			want: gridOf("...", "...", "..."),
		},
		{
			name: "edges do not wrap",
			in:   gridOf("#..", "#..", "#.."),
			want: gridOf("...", "##.", "..."),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Step(tt.in)
			assert.True(t, got.Equal(tt.want), "got\n%s\nwant\n%s", got, tt.want)
		})
	}
}

func TestStep_DoesNotModifyInput(t *testing.T) {
	in := gridOf("...", "###", "...")
	before := in.Clone()
	_ = Step(in)
	assert.True(t, in.Equal(before))
}

// =============================================================================
// Chain
// =============================================================================

func TestNewChain_InvalidDimensions(t *testing.T) {
	_, err := NewChain(Config{Width: 0, Height: 3}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidDimensions)
}

func TestChain_Reads(t *testing.T) {
	chain := newTestChain(t, 3, 4)
	ctx := context.Background()

	w, err := chain.Width(ctx)
	require.NoError(t, err)
	h, err := chain.Height(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), w)
	assert.Equal(t, uint64(4), h)

	g, err := chain.GetGrid(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Rows())
	assert.Equal(t, 4, g.Cols())
	assert.Zero(t, g.Alive())
}

func TestChain_ActivateCells(t *testing.T) {
	chain := newTestChain(t, 3, 3)
	ctx := context.Background()

	receipt, err := chain.ActivateCells(ctx, []uint64{0, 2}, []uint64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), receipt.Block)
	assert.Len(t, receipt.TxHash, 66)

	alive, err := chain.Cell(0, 1)
	require.NoError(t, err)
	assert.True(t, alive)
	alive, err = chain.Cell(2, 2)
	require.NoError(t, err)
	assert.True(t, alive)
}

func TestChain_ActivateCellsRejectedAtomically(t *testing.T) {
	chain := newTestChain(t, 3, 3)
	ctx := context.Background()

	_, err := chain.ActivateCells(ctx, []uint64{0, 1}, []uint64{0})
	assert.ErrorIs(t, err, gridstore.ErrMutationRejected)
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = chain.ActivateCells(ctx, []uint64{0, 5}, []uint64{0, 0})
	assert.ErrorIs(t, err, gridstore.ErrMutationRejected)
	assert.ErrorIs(t, err, ErrOutOfRange)

	g, _ := chain.GetGrid(ctx)
	assert.Zero(t, g.Alive(), "a rejected batch changes nothing")
}

func TestChain_NextIteration(t *testing.T) {
	reg := prometheus.NewRegistry()
	chain, err := NewChain(Config{Width: 5, Height: 5}, nil, observability.NewChainMetrics(reg))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = chain.ActivateCells(ctx, []uint64{1, 2, 3}, []uint64{2, 2, 2})
	require.NoError(t, err)
	_, err = chain.NextIteration(ctx)
	require.NoError(t, err)

	g, _ := chain.GetGrid(ctx)
	assert.True(t, g.Equal(gridOf(".....", ".....", ".###.", ".....", ".....")))
	assert.Equal(t, uint64(1), chain.Generation())
	assert.Equal(t, 3.0, testutil.ToFloat64(chain.metrics.AliveCells))
}

func TestChain_GetGridReturnsCopy(t *testing.T) {
	chain := newTestChain(t, 2, 2)
	g, _ := chain.GetGrid(context.Background())
	g[0][0] = true

	alive, _ := chain.Cell(0, 0)
	assert.False(t, alive)
}

func TestChain_BlockPacing(t *testing.T) {
	chain, err := NewChain(Config{Width: 2, Height: 2, BlockTime: 50 * time.Millisecond}, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	start := time.Now()
	_, err = chain.ActivateCell(ctx, 0, 0)
	require.NoError(t, err)
	_, err = chain.ActivateCell(ctx, 1, 1)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestChain_BlockPacingHonorsContext(t *testing.T) {
	chain, err := NewChain(Config{Width: 2, Height: 2, BlockTime: time.Hour}, nil, nil)
	require.NoError(t, err)

	_, err = chain.ActivateCell(context.Background(), 0, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = chain.ActivateCell(ctx, 1, 1)
	assert.ErrorIs(t, err, gridstore.ErrRemoteUnavailable)
}

// =============================================================================
// Notifications
// =============================================================================

func TestChain_Subscribe(t *testing.T) {
	chain := newTestChain(t, 4, 4)
	ctx := context.Background()

	id, events, cancel := chain.Subscribe()
	defer cancel()
	assert.NotEmpty(t, id)

	first := <-events
	assert.Equal(t, grid.NotifyGridInitialized, first.Kind)
	assert.Equal(t, uint64(4), first.Width)

	_, err := chain.ActivateCells(ctx, []uint64{1, 2}, []uint64{1, 2})
	require.NoError(t, err)
	_, err = chain.NextIteration(ctx)
	require.NoError(t, err)

	got := []grid.Notification{<-events, <-events, <-events}
	assert.Equal(t, grid.NotifyCellActivated, got[0].Kind)
	assert.Equal(t, uint64(1), got[0].X)
	assert.Equal(t, grid.NotifyCellActivated, got[1].Kind)
	assert.Equal(t, uint64(2), got[1].Y)
	assert.Equal(t, grid.NotifyNextIterationCompleted, got[2].Kind)
	assert.NotNil(t, got[2].Grid)
}

func TestChain_LateSubscriberGetsCurrentBlock(t *testing.T) {
	chain := newTestChain(t, 3, 2)
	ctx := context.Background()

	_, err := chain.ActivateCell(ctx, 0, 0)
	require.NoError(t, err)
	receipt, err := chain.NextIteration(ctx)
	require.NoError(t, err)

	_, events, cancel := chain.Subscribe()
	defer cancel()

	first := <-events
	assert.Equal(t, grid.NotifyGridInitialized, first.Kind)
	assert.Equal(t, receipt.Block, first.Block)
	assert.Equal(t, uint64(3), first.Width)
	assert.Equal(t, uint64(2), first.Height)
}

func TestChain_CancelAndCloseAreSafe(t *testing.T) {
	chain := newTestChain(t, 2, 2)
	_, events, cancel := chain.Subscribe()

	require.NoError(t, chain.Close())
	cancel()
	cancel()

	<-events // GridInitialized
	_, ok := <-events
	assert.False(t, ok)
}

func TestChain_NotificationsClosesOnContext(t *testing.T) {
	chain := newTestChain(t, 2, 2)
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := chain.Notifications(ctx)
	require.NoError(t, err)
	<-ch
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

// TestChain_AsContract runs the reconciliation client directly against the
// in-process store.
func TestChain_AsContract(t *testing.T) {
	chain := newTestChain(t, 2, 2)
	client := gridstore.NewClient(chain)
	ctx := context.Background()

	_, err := client.CommitBatch(ctx, []grid.Coord{{X: 0, Y: 0}, {X: 1, Y: 1}})
	require.NoError(t, err)

	g, err := client.Pull(ctx)
	require.NoError(t, err)
	assert.True(t, g.Equal(grid.Grid{{true, false}, {false, true}}))
}
