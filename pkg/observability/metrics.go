// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for automata.
//
// # Description
//
// Two metric sets are defined:
//   - ClientMetrics: the reconciliation side (pulls, mutations, stale pulls,
//     selection size, poll cycles, ingested events).
//   - ChainMetrics: the development store (applied mutations, generation,
//     connected event subscribers).
//
// Both are registered against a caller-supplied prometheus.Registerer so
// tests can use a private registry.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every method is also safe on a nil receiver, so components may run without
// metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "automata"

const (
	clientSubsystem = "client"
	chainSubsystem  = "devchain"
)

// Pull sources.
const (
	SourceInit    = "init"
	SourcePoll    = "poll"
	SourceCommit  = "commit"
	SourceAdvance = "advance"
)

// Pull and mutation statuses.
const (
	StatusApplied     = "applied"
	StatusStale       = "stale"
	StatusSuccess     = "success"
	StatusRejected    = "rejected"
	StatusUnavailable = "unavailable"
)

// ClientMetrics holds the metrics of the reconciliation client.
//
// # Fields
//
//   - PullsTotal: pulls by source (init, poll, commit, advance) and status
//     (applied, stale, unavailable).
//   - MutationsTotal: store mutations by op and status.
//   - RemoteDurationSeconds: latency of every store call by op.
//   - StalePullsDiscardedTotal: pulls dropped by the sequence tie-break.
//   - SelectionSize: cells currently queued for the next commit.
//   - PollCyclesTotal: scheduler cycles by outcome (ok, failed).
//   - EventsTotal: store notifications ingested by kind.
type ClientMetrics struct {
	PullsTotal               *prometheus.CounterVec
	MutationsTotal           *prometheus.CounterVec
	RemoteDurationSeconds    *prometheus.HistogramVec
	StalePullsDiscardedTotal prometheus.Counter
	SelectionSize            prometheus.Gauge
	PollCyclesTotal          *prometheus.CounterVec
	EventsTotal              *prometheus.CounterVec
}

// NewClientMetrics creates and registers the client metric set.
//
// # Inputs
//
//   - reg: Registerer to use. prometheus.DefaultRegisterer in binaries,
//     prometheus.NewRegistry() in tests.
//
// # Limitations
//
//   - Panics if called twice against the same registry.
func NewClientMetrics(reg prometheus.Registerer) *ClientMetrics {
	factory := promauto.With(reg)
	return &ClientMetrics{
		PullsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: clientSubsystem,
				Name:      "pulls_total",
				Help:      "Grid snapshots pulled from the store by source and status",
			},
			[]string{"source", "status"},
		),
		MutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: clientSubsystem,
				Name:      "mutations_total",
				Help:      "Mutations submitted to the store by operation and status",
			},
			[]string{"op", "status"},
		),
		RemoteDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: clientSubsystem,
				Name:      "remote_duration_seconds",
				Help:      "Latency of store calls in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30, 60},
			},
			[]string{"op"},
		),
		StalePullsDiscardedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: clientSubsystem,
				Name:      "stale_pulls_discarded_total",
				Help:      "Pull results discarded because a newer pull was already applied",
			},
		),
		SelectionSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: clientSubsystem,
				Name:      "selection_size",
				Help:      "Cells queued for the next batch commit",
			},
		),
		PollCyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: clientSubsystem,
				Name:      "poll_cycles_total",
				Help:      "Background refresh cycles by outcome",
			},
			[]string{"outcome"},
		),
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: clientSubsystem,
				Name:      "events_total",
				Help:      "Store notifications ingested by kind",
			},
			[]string{"kind"},
		),
	}
}

// ObservePull records one pull outcome.
func (m *ClientMetrics) ObservePull(source, status string) {
	if m == nil {
		return
	}
	m.PullsTotal.WithLabelValues(source, status).Inc()
	if status == StatusStale {
		m.StalePullsDiscardedTotal.Inc()
	}
}

// ObserveMutation records one mutation outcome.
func (m *ClientMetrics) ObserveMutation(op, status string) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(op, status).Inc()
}

// ObserveRemote records the latency of one store call.
func (m *ClientMetrics) ObserveRemote(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.RemoteDurationSeconds.WithLabelValues(op).Observe(d.Seconds())
}

// SetSelectionSize updates the selection gauge.
func (m *ClientMetrics) SetSelectionSize(n int) {
	if m == nil {
		return
	}
	m.SelectionSize.Set(float64(n))
}

// ObservePollCycle records a scheduler cycle.
func (m *ClientMetrics) ObservePollCycle(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.PollCyclesTotal.WithLabelValues(outcome).Inc()
}

// ObserveEvent records an ingested notification.
func (m *ClientMetrics) ObserveEvent(kind string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(kind).Inc()
}

// =============================================================================
// Development store metrics
// =============================================================================

// ChainMetrics holds the metrics of the development store.
type ChainMetrics struct {
	MutationsTotal *prometheus.CounterVec
	Generation     prometheus.Gauge
	AliveCells     prometheus.Gauge
	Subscribers    prometheus.Gauge
}

// NewChainMetrics creates and registers the development store metric set.
func NewChainMetrics(reg prometheus.Registerer) *ChainMetrics {
	factory := promauto.With(reg)
	return &ChainMetrics{
		MutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chainSubsystem,
				Name:      "mutations_total",
				Help:      "Mutations processed by the development store",
			},
			[]string{"op", "status"},
		),
		Generation: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chainSubsystem,
				Name:      "generation",
				Help:      "Number of generations advanced since start",
			},
		),
		AliveCells: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chainSubsystem,
				Name:      "alive_cells",
				Help:      "Cells currently alive on the development store",
			},
		),
		Subscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chainSubsystem,
				Name:      "subscribers",
				Help:      "Connected notification subscribers",
			},
		),
	}
}

// ObserveMutation records a processed mutation and the resulting state.
func (m *ChainMetrics) ObserveMutation(op, status string, alive int) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(op, status).Inc()
	if status == StatusSuccess {
		m.AliveCells.Set(float64(alive))
	}
}

// ObserveGeneration records a completed generation.
func (m *ChainMetrics) ObserveGeneration() {
	if m == nil {
		return
	}
	m.Generation.Inc()
}

// SubscriberDelta adjusts the subscriber gauge.
func (m *ChainMetrics) SubscriberDelta(delta int) {
	if m == nil {
		return
	}
	m.Subscribers.Add(float64(delta))
}
