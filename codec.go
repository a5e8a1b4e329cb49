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
	"fmt"
	"io"
)

// decompressorParams carries everything a codec needs to open one compressed
// stream.
type decompressorParams struct {
	// compressorData is the codec parameter blob from header 2.
	compressorData []byte

	// decompressedSize is the exact payload size the stream reconstructs.
	// Only the purge codec needs it up front.
	decompressedSize uint64

	// purgePreceding holds bytes that were stored outside the stream but
	// are covered by the purge integrity hash (the raw exception lists).
	purgePreceding []byte
}

// newDecompressor returns a reader producing the decompressed stream for one
// group blob or entry table. Codec errors are sticky: once a read fails,
// every later read fails the same way.
func newDecompressor(c CompressionType, r io.Reader, params decompressorParams) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionPurge:
		return newPurgeReader(r, params.decompressedSize, params.purgePreceding)
	case CompressionBzip2:
		return newBzip2Reader(r)
	case CompressionLZMA:
		return newLZMAReader(r, params.compressorData)
	case CompressionLZMA2:
		return newLZMA2Reader(r, params.compressorData)
	case CompressionZstd:
		return newZstdReader(r)
	default:
		return nil, fmt.Errorf("%w: type %d", ErrUnsupportedCompression, uint32(c))
	}
}

// compressor turns one uncompressed stream into a contiguous compressed
// blob. Call Start, then AddPrecedingData/Compress any number of times,
// then End, then Bytes. Start resets the compressor for reuse.
type compressor interface {
	// Start begins a new stream. size is the total number of bytes that
	// will be passed to Compress.
	Start(size uint64) error

	// AddPrecedingData feeds bytes that are stored outside the stream but
	// participate in integrity hashing. Only the purge codec uses it.
	AddPrecedingData(p []byte) error

	// Compress appends p to the stream.
	Compress(p []byte) error

	// End finishes the stream.
	End() error

	// Bytes returns the compressed blob. Valid until the next Start.
	Bytes() []byte
}

// newCompressor returns a compressor for the given type and level together
// with the codec parameter blob to store in header 2.
func newCompressor(c CompressionType, level int) (compressor, []byte, error) {
	if low, high := AllowedCompressionLevels(c); level < low || level > high {
		return nil, nil, fmt.Errorf("%w: level %d out of range [%d, %d] for %s",
			ErrUnsupportedCompression, level, low, high, c)
	}

	switch c {
	case CompressionNone:
		return &noneCompressor{}, nil, nil
	case CompressionPurge:
		return &purgeCompressor{}, nil, nil
	case CompressionBzip2:
		return &bzip2Compressor{level: level}, nil, nil
	case CompressionLZMA:
		return newLZMACompressor(level)
	case CompressionLZMA2:
		return newLZMA2Compressor(level)
	case CompressionZstd:
		return &zstdCompressor{level: level}, nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: type %d", ErrUnsupportedCompression, uint32(c))
	}
}

// noopPreceding is embedded by compressors that ignore AddPrecedingData.
type noopPreceding struct{}

func (noopPreceding) AddPrecedingData([]byte) error { return nil }
