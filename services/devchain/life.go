// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package devchain

import "github.com/AleutianAI/automata/pkg/grid"

// Step returns the next Conway generation of g (B3/S23). Cells beyond the
// edges count as dead. g is not modified.
func Step(g grid.Grid) grid.Grid {
	next := grid.New(g.Rows(), g.Cols())
	for x := range g {
		for y := range g[x] {
			n := neighbors(g, x, y)
			next[x][y] = n == 3 || (g[x][y] && n == 2)
		}
	}
	return next
}

func neighbors(g grid.Grid, x, y int) int {
	n := 0
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			if g.Contains(x+dx, y+dy) && g[x+dx][y+dy] {
				n++
			}
		}
	}
	return n
}
