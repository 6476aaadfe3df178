// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gridstore

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/automata/pkg/grid"
	"github.com/AleutianAI/automata/pkg/logging"
	"github.com/AleutianAI/automata/pkg/observability"
)

const tracerName = "github.com/AleutianAI/automata/pkg/gridstore"

// Operation names used for spans, metrics and RemoteError.Op.
const (
	OpGetGrid       = "get_grid"
	OpDimensions    = "dimensions"
	OpActivateCell  = "activate_cell"
	OpActivateCells = "activate_cells"
	OpNextIteration = "next_iteration"
)

// =============================================================================
// Client
// =============================================================================

// Client is the typed request/response boundary to the authoritative store.
//
// # Description
//
// Client turns the raw Contract surface into the operations used by the
// reconciliation engine. Every call:
//   - runs inside an OpenTelemetry span named "gridstore.<op>"
//   - records latency and outcome metrics
//   - returns failures as *RemoteError (KindUnavailable or KindRejected)
//
// A successful mutation does not carry the new grid. Callers that need the
// post-mutation state must Pull.
//
// # Thread Safety
//
// Client holds no mutable state and is safe for concurrent use if the
// Contract is.
type Client struct {
	contract Contract
	logger   *logging.Logger
	metrics  *observability.ClientMetrics
	tracer   trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger. Default: logging.Nop().
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metric set. Default: nil (no metrics).
func WithMetrics(m *observability.ClientMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracerProvider sets the tracer provider. Default: otel global.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// NewClient wraps contract.
//
// # Inputs
//
//   - contract: Backend to call. Must not be nil.
//   - opts: Optional logger, metrics and tracer provider.
//
// # Outputs
//
//   - *Client: Ready to use. Closing the client closes the contract.
func NewClient(contract Contract, opts ...Option) *Client {
	c := &Client{
		contract: contract,
		logger:   logging.Nop(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pull fetches the full current grid.
//
// # Outputs
//
//   - grid.Grid: A snapshot owned by the caller.
//   - error: *RemoteError of KindUnavailable on transport failure or a
//     malformed (ragged) snapshot.
func (c *Client) Pull(ctx context.Context) (grid.Grid, error) {
	var g grid.Grid
	err := c.do(ctx, OpGetGrid, nil, func(ctx context.Context) error {
		var err error
		g, err = c.contract.GetGrid(ctx)
		if err != nil {
			return err
		}
		if err := g.Validate(); err != nil {
			return Unavailable(fmt.Errorf("malformed snapshot: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Dimensions returns the store's fixed width and height.
func (c *Client) Dimensions(ctx context.Context) (width, height uint64, err error) {
	err = c.do(ctx, OpDimensions, nil, func(ctx context.Context) error {
		var err error
		if width, err = c.contract.Width(ctx); err != nil {
			return err
		}
		height, err = c.contract.Height(ctx)
		return err
	})
	return width, height, err
}

// ActivateCell submits a single-cell activation and waits for finality.
func (c *Client) ActivateCell(ctx context.Context, cell grid.Coord) (Receipt, error) {
	var receipt Receipt
	attrs := []attribute.KeyValue{attribute.Int("cell.x", cell.X), attribute.Int("cell.y", cell.Y)}
	err := c.mutate(ctx, OpActivateCell, attrs, func(ctx context.Context) error {
		var err error
		receipt, err = c.contract.ActivateCell(ctx, uint64(cell.X), uint64(cell.Y))
		return err
	})
	return receipt, err
}

// CommitBatch submits one mutation activating every listed cell.
//
// # Description
//
// The coordinates are split into parallel xs/ys sequences (grid.Split)
// preserving pairing order, then submitted as a single activateCells call.
// CommitBatch suspends until the store finalizes the mutation.
//
// # Outputs
//
//   - Receipt: The finalized mutation.
//   - error: *RemoteError of KindUnavailable or KindRejected.
func (c *Client) CommitBatch(ctx context.Context, coords []grid.Coord) (Receipt, error) {
	xs, ys := grid.Split(coords)
	var receipt Receipt
	attrs := []attribute.KeyValue{attribute.Int("batch.size", len(coords))}
	err := c.mutate(ctx, OpActivateCells, attrs, func(ctx context.Context) error {
		var err error
		receipt, err = c.contract.ActivateCells(ctx, xs, ys)
		return err
	})
	return receipt, err
}

// AdvanceGeneration submits the step-forward mutation and waits for
// finality.
func (c *Client) AdvanceGeneration(ctx context.Context) (Receipt, error) {
	var receipt Receipt
	err := c.mutate(ctx, OpNextIteration, nil, func(ctx context.Context) error {
		var err error
		receipt, err = c.contract.NextIteration(ctx)
		return err
	})
	return receipt, err
}

// Notifications streams store notifications if the backend supports it.
func (c *Client) Notifications(ctx context.Context) (<-chan grid.Notification, error) {
	n, ok := c.contract.(Notifier)
	if !ok {
		return nil, ErrNotificationsUnsupported
	}
	ch, err := n.Notifications(ctx)
	if err != nil {
		return nil, classify("notifications", err)
	}
	return ch, nil
}

// Close releases the backend.
func (c *Client) Close() error {
	return c.contract.Close()
}

// =============================================================================
// Internal
// =============================================================================

func (c *Client) mutate(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(context.Context) error) error {
	err := c.do(ctx, op, attrs, fn)
	switch {
	case err == nil:
		c.metrics.ObserveMutation(op, observability.StatusSuccess)
	case isRejected(err):
		c.metrics.ObserveMutation(op, observability.StatusRejected)
	default:
		c.metrics.ObserveMutation(op, observability.StatusUnavailable)
	}
	return err
}

func (c *Client) do(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(context.Context) error) error {
	ctx, span := c.tracer.Start(ctx, "gridstore."+op, trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	err := classify(op, fn(ctx))
	elapsed := time.Since(start)
	c.metrics.ObserveRemote(op, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("store call failed", "op", op, "duration_ms", elapsed.Milliseconds(), "error", err)
		return err
	}
	c.logger.Debug("store call completed", "op", op, "duration_ms", elapsed.Milliseconds())
	return nil
}

func isRejected(err error) bool {
	re, ok := err.(*RemoteError)
	return ok && re.Kind == KindRejected
}
