// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package eventlog collects store notifications and renders them as an
// ordered, append-only history.
package eventlog

import (
	"context"
	"fmt"
	"sync"

	"github.com/AleutianAI/automata/pkg/grid"
	"github.com/AleutianAI/automata/pkg/logging"
	"github.com/AleutianAI/automata/pkg/observability"
)

// Kind tags a Record.
type Kind int

const (
	CellActivated Kind = iota
	GenerationAdvanced
)

func (k Kind) String() string {
	switch k {
	case CellActivated:
		return "cell_activated"
	case GenerationAdvanced:
		return "generation_advanced"
	default:
		return "unknown"
	}
}

// Record is one immutable history entry. X and Y are set for CellActivated.
type Record struct {
	Kind  Kind
	X     uint64
	Y     uint64
	Block uint64
}

// String renders the record for display.
func (r Record) String() string {
	switch r.Kind {
	case CellActivated:
		return fmt.Sprintf("Cell Activated at (%d,%d)", r.X, r.Y)
	case GenerationAdvanced:
		return "Next Iteration Completed"
	default:
		return "Unknown Event"
	}
}

// =============================================================================
// Log
// =============================================================================

// Log is the append-only event history.
//
// Records keep arrival order; nothing is sorted or deduplicated. Log is safe
// for concurrent use.
type Log struct {
	logger  *logging.Logger
	metrics *observability.ClientMetrics

	mu          sync.Mutex
	records     []Record
	subscribers map[chan struct{}]struct{}
}

// New returns an empty log. logger and metrics may be nil.
func New(logger *logging.Logger, metrics *observability.ClientMetrics) *Log {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Log{
		logger:      logger,
		metrics:     metrics,
		subscribers: make(map[chan struct{}]struct{}),
	}
}

// Append adds r to the end of the history and signals subscribers.
func (l *Log) Append(r Record) {
	l.mu.Lock()
	l.records = append(l.records, r)
	for ch := range l.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	l.mu.Unlock()
	l.metrics.ObserveEvent(r.Kind.String())
}

// Records returns a copy of the history in arrival order.
func (l *Log) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Record(nil), l.records...)
}

// Len returns the number of records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Render returns one display line per record, in arrival order.
func (l *Log) Render() []string {
	records := l.Records()
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = r.String()
	}
	return lines
}

// Ingest maps a store notification to a record and appends it.
// GridInitialized and unknown kinds are dropped; Ingest reports whether a
// record was appended.
func (l *Log) Ingest(n grid.Notification) bool {
	switch n.Kind {
	case grid.NotifyCellActivated:
		l.Append(Record{Kind: CellActivated, X: n.X, Y: n.Y, Block: n.Block})
	case grid.NotifyNextIterationCompleted:
		l.Append(Record{Kind: GenerationAdvanced, Block: n.Block})
	default:
		l.logger.Debug("notification not recorded", "kind", string(n.Kind))
		return false
	}
	return true
}

// Consume ingests notifications until ch is closed or ctx ends.
//
// # Outputs
//
//   - error: ctx.Err() if the context ended, nil if ch was closed.
func (l *Log) Consume(ctx context.Context, ch <-chan grid.Notification) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-ch:
			if !ok {
				l.logger.Info("notification stream closed", "records", l.Len())
				return nil
			}
			l.Ingest(n)
		}
	}
}

// Subscribe returns a channel signalled after every Append, and a function
// that removes the subscription. Signals coalesce: a slow reader sees at
// most one pending signal.
func (l *Log) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	l.mu.Lock()
	l.subscribers[ch] = struct{}{}
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subscribers, ch)
			l.mu.Unlock()
		})
	}
}
