// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package grid holds the value types shared by every layer of automata:
// the boolean cell matrix, cell coordinates, the derived display state of a
// cell, and the notifications emitted by the authoritative store.
//
// A Grid is indexed g[x][y]. The outer index x selects a row exactly as the
// store's getGrid() returns it.
package grid

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRagged is returned by Validate when rows have different lengths.
var ErrRagged = errors.New("grid rows have different lengths")

// Grid is a rectangular matrix of cells, true meaning alive.
type Grid [][]bool

// New returns an all-false grid with the given number of rows and columns.
func New(rows, cols int) Grid {
	g := make(Grid, rows)
	for x := range g {
		g[x] = make([]bool, cols)
	}
	return g
}

// Rows returns the length of the outer index.
func (g Grid) Rows() int { return len(g) }

// Cols returns the length of the inner index, 0 for an empty grid.
func (g Grid) Cols() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// Validate checks that every row has the same length.
func (g Grid) Validate() error {
	cols := g.Cols()
	for x, row := range g {
		if len(row) != cols {
			return fmt.Errorf("%w: row %d has %d cells, want %d", ErrRagged, x, len(row), cols)
		}
	}
	return nil
}

// Contains reports whether (x, y) addresses a cell of g.
func (g Grid) Contains(x, y int) bool {
	return x >= 0 && x < len(g) && y >= 0 && y < len(g[x])
}

// SameShape reports whether g and other have identical dimensions.
func (g Grid) SameShape(other Grid) bool {
	if len(g) != len(other) {
		return false
	}
	for x := range g {
		if len(g[x]) != len(other[x]) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy. Mutating the copy never affects g.
func (g Grid) Clone() Grid {
	if g == nil {
		return nil
	}
	out := make(Grid, len(g))
	for x, row := range g {
		out[x] = append([]bool(nil), row...)
	}
	return out
}

// Equal reports whether g and other have the same shape and cells.
func (g Grid) Equal(other Grid) bool {
	if !g.SameShape(other) {
		return false
	}
	for x := range g {
		for y := range g[x] {
			if g[x][y] != other[x][y] {
				return false
			}
		}
	}
	return true
}

// Alive counts the true cells.
func (g Grid) Alive() int {
	n := 0
	for _, row := range g {
		for _, c := range row {
			if c {
				n++
			}
		}
	}
	return n
}

// String renders one line per row, '#' for alive and '.' for dead.
func (g Grid) String() string {
	var b strings.Builder
	for x, row := range g {
		if x > 0 {
			b.WriteByte('\n')
		}
		for _, c := range row {
			if c {
				b.WriteByte('#')
			} else {
				b.WriteByte('.')
			}
		}
	}
	return b.String()
}
