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

package wia

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-wia/lfg"
	"github.com/ZaparooProject/go-wia/wiidisc"
)

func packTestSeed() lfg.Seed {
	var s lfg.Seed
	for i := range s {
		s[i] = uint32(0x12345678 ^ i<<8)
	}
	return s
}

// junkBytes renders the junk stream for a region the way discs lay it out:
// the generator restarts at every sector boundary.
func junkBytes(seed lfg.Seed, start uint64, size int) []byte {
	out := make([]byte, size)
	for pos := 0; pos < size; {
		offset := start + uint64(pos)
		n := min(size-pos, int(wiidisc.SectorSize-offset%wiidisc.SectorSize))
		g := lfg.New(seed)
		g.Forward(int(offset % wiidisc.SectorSize))
		g.Fill(out[pos : pos+n])
		pos += n
	}
	return out
}

func unpack(t *testing.T, packed []byte, dataOffset uint64, size int) []byte {
	t.Helper()
	out := make([]byte, size)
	r := newPackReader(bytes.NewReader(packed), dataOffset)
	_, err := io.ReadFull(r, out)
	require.NoError(t, err)

	// The stream must be fully consumed.
	var extra [1]byte
	_, err = r.Read(extra[:])
	require.ErrorIs(t, err, io.EOF)
	return out
}

func TestPackLiteralOnly(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(11)) //nolint:gosec
	data := make([]byte, 3*wiidisc.SectorSize+123)
	_, err := rng.Read(data)
	require.NoError(t, err)

	packed := rvzPack(data, 0x80, nil, true)
	require.Equal(t, data, unpack(t, packed, 0x80, len(data)))
	// One literal record: 4-byte header plus the bytes.
	require.Len(t, packed, len(data)+4)
}

func TestPackJunkIdempotence(t *testing.T) {
	t.Parallel()

	// A pure junk span packs to seed records and decodes to the generator
	// output.
	seed := packTestSeed()
	const start = uint64(4 * wiidisc.SectorSize)
	size := 2 * wiidisc.SectorSize

	data := junkBytes(seed, start, size)
	regions := []JunkRegion{{Offset: start, Size: uint64(size), Seed: seed}}

	packed := rvzPack(data, start, regions, true)
	require.Less(t, len(packed), size/100)
	require.Equal(t, data, unpack(t, packed, start, size))
}

func TestPackMixedJunkAndLiteral(t *testing.T) {
	t.Parallel()

	seed := packTestSeed()
	rng := rand.New(rand.NewSource(13)) //nolint:gosec

	// literal sector, two junk sectors, literal sector
	size := 4 * wiidisc.SectorSize
	data := make([]byte, size)
	_, err := rng.Read(data[:wiidisc.SectorSize])
	require.NoError(t, err)
	junkStart := uint64(wiidisc.SectorSize)
	copy(data[wiidisc.SectorSize:], junkBytes(seed, junkStart, 2*wiidisc.SectorSize))
	_, err = rng.Read(data[3*wiidisc.SectorSize:])
	require.NoError(t, err)

	regions := []JunkRegion{{Offset: junkStart, Size: 2 * wiidisc.SectorSize, Seed: seed}}

	packed := rvzPack(data, 0, regions, true)
	require.Less(t, len(packed), 2*wiidisc.SectorSize+4*(4+lfg.SeedBytes))
	require.Equal(t, data, unpack(t, packed, 0, size))
}

func TestPackVerifiesJunkBytes(t *testing.T) {
	t.Parallel()

	// A region whose bytes do not match the generator must stay literal.
	seed := packTestSeed()
	size := wiidisc.SectorSize
	data := junkBytes(seed, 0, size)
	data[0x1000] ^= 1

	regions := []JunkRegion{{Offset: 0, Size: uint64(size), Seed: seed}}

	packed := rvzPack(data, 0, regions, true)
	require.Equal(t, data, unpack(t, packed, 0, size))
	require.Greater(t, len(packed), size)
}

func TestPackUnalignedJunkRequiresReuseFlag(t *testing.T) {
	t.Parallel()

	seed := packTestSeed()
	// Junk starting mid-sector: packable only when junk reuse is allowed.
	const start = uint64(0x1000)
	size := wiidisc.SectorSize

	data := junkBytes(seed, start, size)
	regions := []JunkRegion{{Offset: start, Size: uint64(size), Seed: seed}}

	packed := rvzPack(data, start, regions, false)
	require.Greater(t, len(packed), size)
	require.Equal(t, data, unpack(t, packed, start, size))

	packed = rvzPack(data, start, regions, true)
	require.Less(t, len(packed), size)
	require.Equal(t, data, unpack(t, packed, start, size))
}

func TestPackReaderRejectsTruncatedSeed(t *testing.T) {
	t.Parallel()

	var packed []byte
	packed = append(packed, 0x80, 0, 0x80, 0) // junk record, truncated seed
	packed = append(packed, 1, 2, 3)

	r := newPackReader(bytes.NewReader(packed), 0)
	_, err := io.ReadFull(r, make([]byte, 16))
	require.ErrorIs(t, err, ErrDecompressFailed)

	// Errors are sticky.
	_, err = r.Read(make([]byte, 1))
	require.ErrorIs(t, err, ErrDecompressFailed)
}
