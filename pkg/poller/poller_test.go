// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/automata/pkg/grid"
	"github.com/AleutianAI/automata/pkg/gridstore"
	"github.com/AleutianAI/automata/pkg/gridstore/gridstoretest"
	"github.com/AleutianAI/automata/pkg/observability"
	"github.com/AleutianAI/automata/pkg/overlay"
)

// =============================================================================
// Mock Target
// =============================================================================

type mockTarget struct {
	mu        sync.Mutex
	loaded    bool
	loads     int
	refreshes int
	loadErrs  []error
	refreshFn func(n int) error
}

func (m *mockTarget) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if len(m.loadErrs) > 0 {
		err := m.loadErrs[0]
		m.loadErrs = m.loadErrs[1:]
		if err != nil {
			return err
		}
	}
	m.loaded = true
	return nil
}

func (m *mockTarget) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
	if m.refreshFn != nil {
		return m.refreshFn(m.refreshes)
	}
	return nil
}

func (m *mockTarget) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *mockTarget) counts() (loads, refreshes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads, m.refreshes
}

// =============================================================================
// Tests
// =============================================================================

func TestNew_DefaultInterval(t *testing.T) {
	p := New(&mockTarget{}, Config{}, nil, nil)
	assert.Equal(t, 10*time.Second, p.config.Interval)
}

func TestStart_LoadsImmediatelyThenRefreshes(t *testing.T) {
	target := &mockTarget{}
	p := New(target, Config{Interval: 10 * time.Millisecond}, nil, nil)

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.Eventually(t, func() bool {
		_, refreshes := target.counts()
		return refreshes >= 2
	}, time.Second, 5*time.Millisecond)

	loads, _ := target.counts()
	assert.Equal(t, 1, loads)
}

func TestStart_Twice(t *testing.T) {
	p := New(&mockTarget{}, Config{Interval: time.Hour}, nil, nil)

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyRunning)
}

func TestStop_Idempotent(t *testing.T) {
	p := New(&mockTarget{}, Config{Interval: time.Hour}, nil, nil)
	require.NoError(t, p.Start(context.Background()))

	p.Stop()
	p.Stop()
	assert.False(t, p.Running())

	// Restart after stop.
	require.NoError(t, p.Start(context.Background()))
	p.Stop()
}

func TestContextCancelStopsLoop(t *testing.T) {
	p := New(&mockTarget{}, Config{Interval: 5 * time.Millisecond}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, p.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool { return !p.Running() }, time.Second, 5*time.Millisecond)
}

func TestFailedCyclesAreSkipped(t *testing.T) {
	metrics := observability.NewClientMetrics(prometheus.NewRegistry())
	target := &mockTarget{
		refreshFn: func(n int) error {
			if n%2 == 1 {
				return errors.New("node unavailable")
			}
			return nil
		},
	}

	var mu sync.Mutex
	var cycles []Cycle
	config := Config{
		Interval: 5 * time.Millisecond,
		OnCycle: func(c Cycle) {
			mu.Lock()
			cycles = append(cycles, c)
			mu.Unlock()
		},
	}
	p := New(target, config, nil, metrics)
	require.NoError(t, p.Start(context.Background()))

	require.Eventually(t, func() bool {
		_, refreshes := target.counts()
		return refreshes >= 4
	}, time.Second, 5*time.Millisecond)
	p.Stop()

	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.PollCyclesTotal.WithLabelValues("failed")), 2.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.PollCyclesTotal.WithLabelValues("ok")), 2.0)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, cycles)
	assert.True(t, cycles[0].Initial)
	assert.NoError(t, cycles[0].Err)
}

func TestFailedInitialLoadRetriedNextCycle(t *testing.T) {
	target := &mockTarget{loadErrs: []error{errors.New("down"), errors.New("still down")}}
	p := New(target, Config{Interval: 5 * time.Millisecond}, nil, nil)

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.Eventually(t, target.Loaded, time.Second, 5*time.Millisecond)
	loads, _ := target.counts()
	assert.Equal(t, 3, loads)
}

func TestRunNow(t *testing.T) {
	target := &mockTarget{}
	p := New(target, Config{Interval: time.Hour}, nil, nil)

	require.NoError(t, p.RunNow(context.Background()))
	require.NoError(t, p.RunNow(context.Background()))

	loads, refreshes := target.counts()
	assert.Equal(t, 1, loads)
	assert.Equal(t, 1, refreshes)
}

func TestRunNow_ReportsError(t *testing.T) {
	target := &mockTarget{loadErrs: []error{errors.New("down")}}
	p := New(target, Config{Interval: time.Hour}, nil, nil)

	err := p.RunNow(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial load")
}

// TestPollerWithEngine drives a real engine: polls pick up remote changes
// without touching the painted overlay.
func TestPollerWithEngine(t *testing.T) {
	fake := gridstoretest.NewFake(grid.New(3, 3))
	engine := overlay.New(gridstore.NewClient(fake))
	p := New(engine, Config{Interval: 5 * time.Millisecond}, nil, nil)

	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.Eventually(t, engine.Loaded, time.Second, 5*time.Millisecond)
	require.NoError(t, engine.Toggle(0, 0, false))

	remote := grid.New(3, 3)
	remote[2][2] = true
	fake.SetGrid(remote)

	require.Eventually(t, func() bool { return engine.Authoritative()[2][2] }, time.Second, 5*time.Millisecond)
	assert.True(t, engine.Overlay()[0][0])
	assert.Equal(t, []grid.Coord{{X: 0, Y: 0}}, engine.Selection())
}
