// Copyright (c) 2026 The Zaparoo Project.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of go-wia.
//
// go-wia is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-wia is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-wia.  If not, see <https://www.gnu.org/licenses/>.

package lfg

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func testSeed() Seed {
	var s Seed
	for i := range s {
		s[i] = uint32(0x9e3779b9 * (i + 1))
	}
	return s
}

func TestDeterministic(t *testing.T) {
	t.Parallel()

	a := New(testSeed())
	b := New(testSeed())

	bufA := make([]byte, 0x10000)
	bufB := make([]byte, 0x10000)
	a.Fill(bufA)
	b.Fill(bufB)

	require.Equal(t, bufA, bufB)
}

func TestSetSeedRestarts(t *testing.T) {
	t.Parallel()

	g := New(testSeed())
	first := make([]byte, 4096)
	g.Fill(first)

	g.SetSeed(testSeed())
	again := make([]byte, 4096)
	g.Fill(again)

	require.Equal(t, first, again)
}

func TestForwardMatchesFill(t *testing.T) {
	t.Parallel()

	// Skipping n bytes must land on the same stream position as reading
	// them, including skips that cross the internal buffer boundary.
	for _, skip := range []int{1, 3, 4, 511, 512, bufferBytes - 1, bufferBytes, bufferBytes + 17, 3 * bufferBytes} {
		ref := New(testSeed())
		full := make([]byte, skip+256)
		ref.Fill(full)

		g := New(testSeed())
		g.Forward(skip)
		got := make([]byte, 256)
		g.Fill(got)

		require.Equal(t, full[skip:], got, "skip %d", skip)
	}
}

func TestZeroSeedIsZero(t *testing.T) {
	t.Parallel()

	g := New(Seed{})
	buf := make([]byte, 8192)
	g.Fill(buf)

	require.Equal(t, make([]byte, len(buf)), buf)
}

func TestNonTrivialOutput(t *testing.T) {
	t.Parallel()

	g := New(testSeed())
	buf := make([]byte, 8192)
	g.Fill(buf)

	require.NotEqual(t, make([]byte, len(buf)), buf)

	// A second window must differ from the first.
	next := make([]byte, 8192)
	g.Fill(next)
	require.NotEqual(t, buf, next)
}

func TestSeedSerializationRoundTrip(t *testing.T) {
	t.Parallel()

	seed := testSeed()
	raw := AppendSeed(nil, seed)
	require.Len(t, raw, SeedBytes)
	require.Equal(t, seed, ParseSeed(raw))
}

func TestMatches(t *testing.T) {
	t.Parallel()

	g := New(testSeed())
	buf := make([]byte, 4096)
	g.Fill(buf)

	require.True(t, New(testSeed()).Matches(buf))

	corrupt := bytes.Clone(buf)
	corrupt[1234] ^= 1
	require.False(t, New(testSeed()).Matches(corrupt))
}
