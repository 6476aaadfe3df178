// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/automata/pkg/grid"
	"github.com/AleutianAI/automata/pkg/observability"
)

func TestRecord_String(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		want   string
	}{
		{"cell", Record{Kind: CellActivated, X: 3, Y: 7}, "Cell Activated at (3,7)"},
		{"generation", Record{Kind: GenerationAdvanced}, "Next Iteration Completed"},
		{"unknown", Record{Kind: Kind(42)}, "Unknown Event"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.record.String())
		})
	}
}

func TestRender_ArrivalOrderNoDedup(t *testing.T) {
	l := New(nil, nil)
	l.Append(Record{Kind: CellActivated, X: 1, Y: 1})
	l.Append(Record{Kind: GenerationAdvanced})
	l.Append(Record{Kind: CellActivated, X: 0, Y: 0})
	l.Append(Record{Kind: CellActivated, X: 1, Y: 1})

	assert.Equal(t, []string{
		"Cell Activated at (1,1)",
		"Next Iteration Completed",
		"Cell Activated at (0,0)",
		"Cell Activated at (1,1)",
	}, l.Render())
}

func TestRecords_ReturnsCopy(t *testing.T) {
	l := New(nil, nil)
	l.Append(Record{Kind: CellActivated, X: 1, Y: 2})

	records := l.Records()
	records[0].X = 99

	assert.Equal(t, uint64(1), l.Records()[0].X)
}

func TestIngest(t *testing.T) {
	metrics := observability.NewClientMetrics(prometheus.NewRegistry())
	l := New(nil, metrics)

	assert.True(t, l.Ingest(grid.Notification{Kind: grid.NotifyCellActivated, X: 2, Y: 3, Block: 7}))
	assert.False(t, l.Ingest(grid.Notification{Kind: grid.NotifyGridInitialized, Width: 10, Height: 10}))
	assert.True(t, l.Ingest(grid.Notification{Kind: grid.NotifyNextIterationCompleted, Grid: grid.New(1, 1)}))
	assert.False(t, l.Ingest(grid.Notification{Kind: "Transfer"}))

	require.Equal(t, 2, l.Len())
	assert.Equal(t, Record{Kind: CellActivated, X: 2, Y: 3, Block: 7}, l.Records()[0])
	assert.Equal(t, []string{"Cell Activated at (2,3)", "Next Iteration Completed"}, l.Render())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.EventsTotal.WithLabelValues("cell_activated")))
}

func TestConsume_UntilClosed(t *testing.T) {
	l := New(nil, nil)
	ch := make(chan grid.Notification, 3)
	ch <- grid.Notification{Kind: grid.NotifyGridInitialized}
	ch <- grid.Notification{Kind: grid.NotifyCellActivated, X: 1}
	ch <- grid.Notification{Kind: grid.NotifyNextIterationCompleted}
	close(ch)

	require.NoError(t, l.Consume(context.Background(), ch))
	assert.Equal(t, 2, l.Len())
}

func TestConsume_ContextCancelled(t *testing.T) {
	l := New(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Consume(ctx, make(chan grid.Notification))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubscribe(t *testing.T) {
	l := New(nil, nil)
	ch, unsubscribe := l.Subscribe()

	l.Append(Record{Kind: GenerationAdvanced})
	l.Append(Record{Kind: GenerationAdvanced})

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no signal after append")
	}
	// Signals coalesce.
	select {
	case <-ch:
		t.Fatal("expected a single pending signal")
	default:
	}

	unsubscribe()
	unsubscribe()
	l.Append(Record{Kind: GenerationAdvanced})
	select {
	case <-ch:
		t.Fatal("signal after unsubscribe")
	default:
	}
}
