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

import (
	"fmt"
	"strconv"
	"strings"
)

// Coord addresses one cell.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Split turns coordinate pairs into the parallel xs/ys sequences the store's
// batch mutation takes. Pairing by index is preserved: xs[i], ys[i] is
// coords[i].
func Split(coords []Coord) (xs, ys []uint64) {
	xs = make([]uint64, len(coords))
	ys = make([]uint64, len(coords))
	for i, c := range coords {
		xs[i] = uint64(c.X)
		ys[i] = uint64(c.Y)
	}
	return xs, ys
}

// Zip is the inverse of Split. It fails when the lengths differ.
func Zip(xs, ys []uint64) ([]Coord, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("coordinate length mismatch: %d xs, %d ys", len(xs), len(ys))
	}
	coords := make([]Coord, len(xs))
	for i := range xs {
		coords[i] = Coord{X: int(xs[i]), Y: int(ys[i])}
	}
	return coords, nil
}

// ParseCoord parses "x,y".
func ParseCoord(s string) (Coord, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return Coord{}, fmt.Errorf("invalid coordinate %q: want x,y", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || x < 0 {
		return Coord{}, fmt.Errorf("invalid x in %q", s)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || y < 0 {
		return Coord{}, fmt.Errorf("invalid y in %q", s)
	}
	return Coord{X: x, Y: y}, nil
}
