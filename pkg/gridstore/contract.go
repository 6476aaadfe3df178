// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gridstore is the typed boundary between automata and the
// authoritative grid store.
//
// Contract is the backend surface, one method per store function
// (getGrid, width, height, activateCell, activateCells, nextIteration).
// Backends live in subpackages: ethstore talks to the deployed contract,
// httpstore talks to the development store.
//
// Client wraps a Contract with the operations the reconciliation engine
// uses (Pull, CommitBatch, AdvanceGeneration), and adds tracing, metrics and
// error classification. Client never retries.
package gridstore

import (
	"context"

	"github.com/AleutianAI/automata/pkg/grid"
)

// Receipt identifies a finalized mutation.
type Receipt struct {
	TxHash string `json:"tx_hash"`
	Block  uint64 `json:"block"`
}

// Contract is the store surface a backend must provide.
//
// Mutation methods block until the store has finalized the mutation. They
// must wrap store-side refusals with Rejected so Client can classify them;
// any other error is treated as the store being unavailable.
type Contract interface {
	GetGrid(ctx context.Context) (grid.Grid, error)
	Width(ctx context.Context) (uint64, error)
	Height(ctx context.Context) (uint64, error)
	ActivateCell(ctx context.Context, x, y uint64) (Receipt, error)
	ActivateCells(ctx context.Context, xs, ys []uint64) (Receipt, error)
	NextIteration(ctx context.Context) (Receipt, error)
	Close() error
}

// Notifier is implemented by backends that can stream store notifications.
//
// The returned channel is closed when ctx ends or the stream breaks.
type Notifier interface {
	Notifications(ctx context.Context) (<-chan grid.Notification, error)
}
