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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Dimensions(t *testing.T) {
	g := New(3, 5)
	assert.Equal(t, 3, g.Rows())
	assert.Equal(t, 5, g.Cols())
	assert.Equal(t, 0, g.Alive())
	assert.NoError(t, g.Validate())
}

func TestGrid_CloneIsIndependent(t *testing.T) {
	g := New(2, 2)
	c := g.Clone()
	c[1][1] = true

	assert.False(t, g[1][1], "mutating the clone must not touch the original")
	assert.True(t, c[1][1])
	assert.Nil(t, Grid(nil).Clone())
}

func TestGrid_Equal(t *testing.T) {
	a := Grid{{true, false}, {false, true}}
	b := Grid{{true, false}, {false, true}}
	c := Grid{{true, false}, {false, false}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(New(2, 3)))
}

func TestGrid_ValidateRagged(t *testing.T) {
	g := Grid{{true, false}, {false}}
	err := g.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRagged))
}

func TestGrid_Contains(t *testing.T) {
	g := New(2, 3)
	assert.True(t, g.Contains(1, 2))
	assert.False(t, g.Contains(2, 0))
	assert.False(t, g.Contains(0, 3))
	assert.False(t, g.Contains(-1, 0))
}

func TestGrid_String(t *testing.T) {
	g := Grid{{true, false}, {false, true}}
	assert.Equal(t, "#.\n.#", g.String())
}

func TestSplit_PreservesPairing(t *testing.T) {
	xs, ys := Split([]Coord{{X: 0, Y: 1}, {X: 3, Y: 4}})
	assert.Equal(t, []uint64{0, 3}, xs)
	assert.Equal(t, []uint64{1, 4}, ys)

	coords, err := Zip(xs, ys)
	require.NoError(t, err)
	assert.Equal(t, []Coord{{X: 0, Y: 1}, {X: 3, Y: 4}}, coords)
}

func TestZip_LengthMismatch(t *testing.T) {
	_, err := Zip([]uint64{1, 2}, []uint64{1})
	assert.Error(t, err)
}

func TestParseCoord(t *testing.T) {
	c, err := ParseCoord(" 3, 7 ")
	require.NoError(t, err)
	assert.Equal(t, Coord{X: 3, Y: 7}, c)

	for _, bad := range []string{"3", "a,1", "1,b", "-1,2", "1,2,3"} {
		_, err := ParseCoord(bad)
		assert.Error(t, err, bad)
	}
}

func TestDerive_AuthoritativeTakesPrecedence(t *testing.T) {
	assert.Equal(t, Active, Derive(true, false))
	assert.Equal(t, Active, Derive(true, true))
	assert.Equal(t, Painted, Derive(false, true))
	assert.Equal(t, Empty, Derive(false, false))
	assert.Equal(t, "PAINTED", Painted.String())
}
