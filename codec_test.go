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
)

// codecTestData mixes compressible runs, zero gaps and noise.
func codecTestData(t *testing.T, size int) []byte {
	t.Helper()

	rng := rand.New(rand.NewSource(7)) //nolint:gosec // deterministic test data
	data := make([]byte, size)
	for pos := 0; pos < size; {
		runLen := min(256+rng.Intn(4096), size-pos)
		switch rng.Intn(3) {
		case 0:
			// zeroes
		case 1:
			b := byte(rng.Intn(256))
			for i := range runLen {
				data[pos+i] = b
			}
		default:
			_, err := rng.Read(data[pos : pos+runLen])
			require.NoError(t, err)
		}
		pos += runLen
	}
	return data
}

func compressOneShot(t *testing.T, typ CompressionType, level int, preceding, data []byte) ([]byte, []byte) {
	t.Helper()

	comp, compressorData, err := newCompressor(typ, level)
	require.NoError(t, err)
	require.NoError(t, comp.Start(uint64(len(data))))
	require.NoError(t, comp.AddPrecedingData(preceding))
	require.NoError(t, comp.Compress(data))
	require.NoError(t, comp.End())
	return bytes.Clone(comp.Bytes()), compressorData
}

func TestCodecRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ   CompressionType
		level int
	}{
		{CompressionNone, 0},
		{CompressionPurge, 0},
		{CompressionBzip2, 1},
		{CompressionBzip2, 9},
		{CompressionLZMA, 0},
		{CompressionLZMA, 5},
		{CompressionLZMA2, 5},
		{CompressionZstd, 1},
		{CompressionZstd, 19},
	}

	data := codecTestData(t, 0x40000)

	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			t.Parallel()

			blob, compressorData := compressOneShot(t, tt.typ, tt.level, nil, data)

			dec, err := newDecompressor(tt.typ, bytes.NewReader(blob), decompressorParams{
				compressorData:   compressorData,
				decompressedSize: uint64(len(data)),
			})
			require.NoError(t, err)
			defer dec.Close()

			got := make([]byte, len(data))
			_, err = io.ReadFull(dec, got)
			require.NoError(t, err)
			require.Equal(t, data, got)
		})
	}
}

func TestCompressorReuse(t *testing.T) {
	t.Parallel()

	// A worker reuses one compressor across groups; Start must fully reset.
	comp, compressorData, err := newCompressor(CompressionZstd, 3)
	require.NoError(t, err)

	first := codecTestData(t, 0x8000)
	second := bytes.Repeat([]byte{0xaa}, 0x8000)

	for _, data := range [][]byte{first, second, first} {
		require.NoError(t, comp.Start(uint64(len(data))))
		require.NoError(t, comp.Compress(data))
		require.NoError(t, comp.End())

		dec, err := newDecompressor(CompressionZstd, bytes.NewReader(comp.Bytes()), decompressorParams{
			compressorData: compressorData,
		})
		require.NoError(t, err)

		got := make([]byte, len(data))
		_, err = io.ReadFull(dec, got)
		require.NoError(t, err)
		require.NoError(t, dec.Close())
		require.Equal(t, data, got)
	}
}

func TestPurgeHashCoversPrecedingData(t *testing.T) {
	t.Parallel()

	data := codecTestData(t, 0x4000)
	preceding := []byte{0x00, 0x02, 0xab, 0xcd}

	blob, _ := compressOneShot(t, CompressionPurge, 0, preceding, data)

	dec, err := newPurgeReader(bytes.NewReader(blob), uint64(len(data)), preceding)
	require.NoError(t, err)
	got := make([]byte, len(data))
	_, err = io.ReadFull(dec, got)
	require.NoError(t, err)
	require.Equal(t, data, got)

	// The same stream with different preceding bytes must fail the hash.
	_, err = newPurgeReader(bytes.NewReader(blob), uint64(len(data)), []byte{0xff})
	require.ErrorIs(t, err, ErrCorruptData)
}

func TestPurgeElidesZeroRuns(t *testing.T) {
	t.Parallel()

	data := make([]byte, 0x10000)
	copy(data[0x100:], []byte("payload"))
	copy(data[0x8000:], []byte("more payload"))

	blob, _ := compressOneShot(t, CompressionPurge, 0, nil, data)
	require.Less(t, len(blob), 0x100)

	dec, err := newPurgeReader(bytes.NewReader(blob), uint64(len(data)), nil)
	require.NoError(t, err)
	got := make([]byte, len(data))
	_, err = io.ReadFull(dec, got)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestPurgeRejectsTruncatedStream(t *testing.T) {
	t.Parallel()

	data := codecTestData(t, 0x1000)
	blob, _ := compressOneShot(t, CompressionPurge, 0, nil, data)

	_, err := newPurgeReader(bytes.NewReader(blob[:10]), uint64(len(data)), nil)
	require.ErrorIs(t, err, ErrDecompressFailed)

	// Flipping a payload byte must fail the trailing hash.
	corrupt := bytes.Clone(blob)
	corrupt[len(corrupt)/2] ^= 1
	_, err = newPurgeReader(bytes.NewReader(corrupt), uint64(len(data)), nil)
	require.Error(t, err)
}

func TestDecompressorRejectsCorruptStream(t *testing.T) {
	t.Parallel()

	data := codecTestData(t, 0x4000)

	for _, typ := range []CompressionType{CompressionBzip2, CompressionZstd} {
		level := 1
		blob, compressorData := compressOneShot(t, typ, level, nil, data)

		corrupt := bytes.Clone(blob)
		corrupt[len(corrupt)/2] ^= 0xff

		dec, err := newDecompressor(typ, bytes.NewReader(corrupt), decompressorParams{
			compressorData:   compressorData,
			decompressedSize: uint64(len(data)),
		})
		if err != nil {
			continue
		}
		got := make([]byte, len(data))
		if _, err := io.ReadFull(dec, got); err == nil {
			require.NotEqual(t, data, got, "%s accepted corrupt stream", typ)
		}
		_ = dec.Close()
	}
}

func TestNewCompressorRejectsBadLevel(t *testing.T) {
	t.Parallel()

	_, _, err := newCompressor(CompressionBzip2, 0)
	require.ErrorIs(t, err, ErrUnsupportedCompression)
	_, _, err = newCompressor(CompressionZstd, 23)
	require.ErrorIs(t, err, ErrUnsupportedCompression)
	_, _, err = newCompressor(CompressionType(9), 0)
	require.ErrorIs(t, err, ErrUnsupportedCompression)
}

func TestLZMACompressorDataMatchesHeader(t *testing.T) {
	t.Parallel()

	_, compressorData, err := newCompressor(CompressionLZMA, 5)
	require.NoError(t, err)
	require.Len(t, compressorData, lzmaPropsSize)
	require.Equal(t, byte(lzmaPropsByte), compressorData[0])

	_, compressorData, err = newCompressor(CompressionLZMA2, 9)
	require.NoError(t, err)
	require.Len(t, compressorData, 1)
	require.Equal(t, uint32(1<<26), lzma2DictionarySize(compressorData[0]))
}
