// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package grid

// CellState is the displayed state of a cell in the merged view.
type CellState int

const (
	// Empty: dead on the store and not painted.
	Empty CellState = iota
	// Painted: dead on the store, set in the local overlay.
	Painted
	// Active: alive on the store. Takes precedence over the overlay.
	Active
)

func (s CellState) String() string {
	switch s {
	case Empty:
		return "EMPTY"
	case Painted:
		return "PAINTED"
	case Active:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// Derive computes the displayed state from the authoritative and overlay
// values of one cell.
func Derive(authoritative, overlay bool) CellState {
	switch {
	case authoritative:
		return Active
	case overlay:
		return Painted
	default:
		return Empty
	}
}
