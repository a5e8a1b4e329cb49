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
	"encoding/binary"
	"fmt"
	"io"
)

// chunkParams locates and describes one group blob.
type chunkParams struct {
	file         io.ReaderAt
	offsetInFile int64

	// compressedSize is the stored blob size; zero means the whole group
	// is zeroes and nothing is read from the file.
	compressedSize uint32

	// decompressedSize is the payload size after the exception lists.
	decompressedSize uint64

	compression    CompressionType
	compressorData []byte

	// compressed reports whether the payload went through the codec.
	compressed bool

	// exceptionLists is the number of hash-exception lists heading the
	// stream; compressedExceptionLists places them inside the codec stream
	// rather than raw in the file, and alignExceptions pads the raw lists
	// to a 4-byte boundary before the payload.
	exceptionLists           int
	compressedExceptionLists bool
	alignExceptions          bool

	// rvzPack applies the junk-record framing to the payload; dataOffset
	// positions the payload for the junk generator.
	rvzPack    bool
	dataOffset uint64
}

// chunk holds one in-progress group decompression. The reader keeps a
// single chunk cached; the decoder inside is stateful and forward-only, so
// the decompressed prefix is retained for random access within the group.
type chunk struct {
	chunkParams

	payload    io.ReadCloser
	out        []byte
	filled     int
	exceptions [][]HashExceptionEntry
	started    bool
	err        error
}

func newChunk(params chunkParams) *chunk {
	return &chunk{chunkParams: params}
}

// start ingests the blob and positions the payload reader past the
// exception lists.
func (c *chunk) start() error {
	c.started = true

	if c.compressedSize == 0 {
		c.exceptions = make([][]HashExceptionEntry, c.exceptionLists)
		return nil
	}

	raw := make([]byte, c.compressedSize)
	if _, err := c.file.ReadAt(raw, c.offsetInFile); err != nil {
		return fmt.Errorf("%w: group at %#x: %w", ErrTruncated, c.offsetInFile, err)
	}

	cursor := 0
	if c.exceptionLists > 0 && !c.compressedExceptionLists {
		for range c.exceptionLists {
			list, n, err := parseExceptionList(bytes.NewReader(raw[cursor:]))
			if err != nil {
				return err
			}
			c.exceptions = append(c.exceptions, list)
			cursor += n
		}
		if c.alignExceptions {
			cursor = (cursor + 3) &^ 3
			if cursor > len(raw) {
				return fmt.Errorf("%w: exception lists overrun group", ErrInvalidGroup)
			}
		}
	}

	var payload io.ReadCloser
	if c.compressed {
		dec, err := newDecompressor(c.compression, bytes.NewReader(raw[cursor:]), decompressorParams{
			compressorData:   c.compressorData,
			decompressedSize: c.decompressedSize,
			purgePreceding:   raw[:cursor],
		})
		if err != nil {
			return err
		}
		payload = dec
	} else {
		payload = io.NopCloser(bytes.NewReader(raw[cursor:]))
	}

	if c.exceptionLists > 0 && c.compressedExceptionLists {
		for range c.exceptionLists {
			list, _, err := parseExceptionList(payload)
			if err != nil {
				return err
			}
			c.exceptions = append(c.exceptions, list)
		}
	}

	if c.rvzPack {
		inner := payload
		payload = struct {
			io.Reader
			io.Closer
		}{newPackReader(inner, c.dataOffset), inner}
	}

	c.payload = payload
	c.out = make([]byte, c.decompressedSize)
	return nil
}

// Read copies size payload bytes starting at offset. Reads may revisit any
// already-decompressed prefix but the underlying decoder only moves forward.
func (c *chunk) Read(offset, size uint64, out []byte) error {
	if c.err != nil {
		return c.err
	}
	if !c.started {
		if err := c.start(); err != nil {
			c.err = err
			return err
		}
	}

	if offset+size > c.decompressedSize {
		return fmt.Errorf("%w: read [%#x, +%#x) beyond group of %#x bytes",
			ErrInternal, offset, size, c.decompressedSize)
	}

	if c.compressedSize == 0 {
		clear(out[:size])
		return nil
	}

	if need := int(offset + size); need > c.filled {
		if _, err := io.ReadFull(c.payload, c.out[c.filled:need]); err != nil {
			c.err = fmt.Errorf("%w: group payload: %w", ErrDecompressFailed, err)
			return c.err
		}
		c.filled = need
	}

	copy(out, c.out[offset:offset+size])
	return nil
}

// HashExceptions returns the stored exceptions of one list with their
// offsets shifted by additionalOffset.
func (c *chunk) HashExceptions(listIndex int, additionalOffset uint16) ([]HashExceptionEntry, error) {
	if !c.started {
		if err := c.start(); err != nil {
			c.err = err
			return nil, err
		}
	}
	if listIndex >= len(c.exceptions) {
		return nil, fmt.Errorf("%w: exception list %d of %d", ErrInternal, listIndex, len(c.exceptions))
	}

	list := c.exceptions[listIndex]
	if len(list) == 0 {
		return nil, nil
	}
	shifted := make([]HashExceptionEntry, len(list))
	for i, e := range list {
		shifted[i] = HashExceptionEntry{Offset: e.Offset + additionalOffset, Hash: e.Hash}
	}
	return shifted, nil
}

// Close releases the codec state.
func (c *chunk) Close() error {
	if c.payload == nil {
		return nil
	}
	return c.payload.Close()
}

// parseExceptionList reads one u16-counted list of HashExceptionEntry,
// returning the entries and the number of bytes consumed.
func parseExceptionList(r io.Reader) ([]HashExceptionEntry, int, error) {
	var count uint16
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, 0, fmt.Errorf("%w: exception list count: %w", ErrInvalidGroup, err)
	}
	if int(count) > MaxExceptionsPerList {
		return nil, 0, fmt.Errorf("%w: %d hash exceptions in one list", ErrInvalidGroup, count)
	}

	list := make([]HashExceptionEntry, count)
	for i := range list {
		if err := binary.Read(r, binary.BigEndian, &list[i]); err != nil {
			return nil, 0, fmt.Errorf("%w: exception list entry: %w", ErrInvalidGroup, err)
		}
	}
	return list, 2 + int(count)*hashExceptionEntrySize, nil
}
