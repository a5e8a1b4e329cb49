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

package wiidisc

import (
	"crypto/sha1" //nolint:gosec
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey() [16]byte {
	return [16]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
}

func testData(t *testing.T) []byte {
	t.Helper()
	data := make([]byte, GroupDataSize)
	rng := rand.New(rand.NewSource(42)) //nolint:gosec // deterministic test data
	_, err := rng.Read(data)
	require.NoError(t, err)
	return data
}

func TestLayoutConstants(t *testing.T) {
	t.Parallel()

	require.Equal(t, SectorSize, SectorDataSize+SectorHashesSize)
	require.Equal(t, SectorDataSize, BlocksPerSector*BlockSize)
	require.Equal(t, 0x200000, GroupSize)
	require.Equal(t, 0x1f0000, GroupDataSize)
	require.Len(t, HashSlots(), BlocksPerSector+2*SectorsPerSubgroup)
}

func TestHashGroupStructure(t *testing.T) {
	t.Parallel()

	data := testData(t)
	var blocks [SectorsPerGroup]HashBlock
	HashGroup(data, &blocks)

	// H0 of block b of sector s is the hash of that block's data.
	sum := sha1.Sum(data[5*SectorDataSize+7*BlockSize : 5*SectorDataSize+8*BlockSize]) //nolint:gosec
	require.Equal(t, sum[:], blocks[5].H0(7))

	// Every sector of a subgroup carries the same H1 table, and H1 entry j
	// hashes the H0 table of sector j of the subgroup.
	for s := 8; s < 16; s++ {
		require.Equal(t, blocks[8].H1(0), blocks[s].H1(0))
	}
	h1 := sha1.Sum(blocks[9][:BlocksPerSector*HashSize]) //nolint:gosec
	require.Equal(t, h1[:], blocks[8].H1(1))

	// Every sector of the group carries the same H2 table, and H2 entry i
	// hashes the H1 table of subgroup i.
	require.Equal(t, blocks[0].H2(3), blocks[63].H2(3))
	h2 := sha1.Sum(blocks[3*SectorsPerSubgroup][h1Offset : h1Offset+SectorsPerSubgroup*HashSize]) //nolint:gosec
	require.Equal(t, h2[:], blocks[0].H2(3))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	data := testData(t)
	var blocks [SectorsPerGroup]HashBlock
	HashGroup(data, &blocks)

	enc := make([]byte, GroupSize)
	require.NoError(t, EncryptGroup(testKey(), data, &blocks, SectorsPerGroup, enc))

	// Ciphertext must not leak the plaintext layout.
	require.NotEqual(t, data[:SectorDataSize], enc[SectorHashesSize:SectorSize])

	gotData := make([]byte, GroupDataSize)
	var gotBlocks [SectorsPerGroup]HashBlock
	require.NoError(t, DecryptGroup(testKey(), enc, gotData, &gotBlocks, SectorsPerGroup))

	require.Equal(t, data, gotData)
	require.Equal(t, blocks, gotBlocks)
}

func TestEncryptDecryptShortGroup(t *testing.T) {
	t.Parallel()

	const sectors = 3

	data := testData(t)
	var blocks [SectorsPerGroup]HashBlock
	HashGroup(data, &blocks)

	enc := make([]byte, sectors*SectorSize)
	require.NoError(t, EncryptGroup(testKey(), data, &blocks, sectors, enc))

	gotData := make([]byte, sectors*SectorDataSize)
	var gotBlocks [SectorsPerGroup]HashBlock
	require.NoError(t, DecryptGroup(testKey(), enc, gotData, &gotBlocks, sectors))

	require.Equal(t, data[:sectors*SectorDataSize], gotData)
	for s := range sectors {
		require.Equal(t, blocks[s], gotBlocks[s])
	}
}

func TestEncryptionDependsOnKey(t *testing.T) {
	t.Parallel()

	data := testData(t)
	var blocks [SectorsPerGroup]HashBlock
	HashGroup(data, &blocks)

	a := make([]byte, GroupSize)
	require.NoError(t, EncryptGroup(testKey(), data, &blocks, SectorsPerGroup, a))

	other := testKey()
	other[0] ^= 0xff
	b := make([]byte, GroupSize)
	require.NoError(t, EncryptGroup(other, data, &blocks, SectorsPerGroup, b))

	require.NotEqual(t, a, b)
}
