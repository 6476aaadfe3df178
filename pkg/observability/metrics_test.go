// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// ============================================================================
// Client metrics
// ============================================================================

func TestClientMetrics_ObservePull(t *testing.T) {
	m := NewClientMetrics(prometheus.NewRegistry())

	m.ObservePull(SourcePoll, StatusApplied)
	m.ObservePull(SourcePoll, StatusApplied)
	m.ObservePull(SourceCommit, StatusStale)

	if got := testutil.ToFloat64(m.PullsTotal.WithLabelValues(SourcePoll, StatusApplied)); got != 2 {
		t.Errorf("poll/applied = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.StalePullsDiscardedTotal); got != 1 {
		t.Errorf("stale discarded = %v, want 1", got)
	}
}

func TestClientMetrics_MutationsAndSelection(t *testing.T) {
	m := NewClientMetrics(prometheus.NewRegistry())

	m.ObserveMutation("activate_cells", StatusRejected)
	m.SetSelectionSize(3)
	m.ObserveRemote("activate_cells", 200*time.Millisecond)
	m.ObservePollCycle(false)
	m.ObserveEvent("CellActivated")

	if got := testutil.ToFloat64(m.MutationsTotal.WithLabelValues("activate_cells", StatusRejected)); got != 1 {
		t.Errorf("rejected mutations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SelectionSize); got != 3 {
		t.Errorf("selection size = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.PollCyclesTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed cycles = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.RemoteDurationSeconds); got != 1 {
		t.Errorf("histogram series = %d, want 1", got)
	}
}

func TestClientMetrics_NilReceiver(t *testing.T) {
	var m *ClientMetrics
	m.ObservePull(SourcePoll, StatusApplied)
	m.ObserveMutation("next_iteration", StatusSuccess)
	m.ObserveRemote("get_grid", time.Second)
	m.SetSelectionSize(1)
	m.ObservePollCycle(true)
	m.ObserveEvent("GridInitialized")
}

// ============================================================================
// Chain metrics
// ============================================================================

func TestChainMetrics(t *testing.T) {
	m := NewChainMetrics(prometheus.NewRegistry())

	m.ObserveMutation("activate_cells", StatusSuccess, 4)
	m.ObserveMutation("activate_cells", StatusRejected, 0)
	m.ObserveGeneration()
	m.SubscriberDelta(2)
	m.SubscriberDelta(-1)

	if got := testutil.ToFloat64(m.AliveCells); got != 4 {
		t.Errorf("alive cells = %v, want 4 (rejections must not reset it)", got)
	}
	if got := testutil.ToFloat64(m.Generation); got != 1 {
		t.Errorf("generation = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Subscribers); got != 1 {
		t.Errorf("subscribers = %v, want 1", got)
	}

	var nilMetrics *ChainMetrics
	nilMetrics.ObserveGeneration()
}
