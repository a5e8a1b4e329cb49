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
	"crypto/sha1" //nolint:gosec // SHA-1 is mandated by the container format
	"encoding/binary"
	"fmt"
	"hash"
	"io"
)

// purgeZeroRun is the minimum gap of zero bytes that splits two purge
// segments. Shorter gaps are cheaper to store inline than as a new segment
// header.
const purgeZeroRun = purgeSegmentSize

// newPurgeReader reconstructs a purge-coded stream: a sequence of
// PurgeSegment records with payload, followed by a SHA-1 over the preceding
// bytes and the reconstructed output.
func newPurgeReader(r io.Reader, decompressedSize uint64, preceding []byte) (io.ReadCloser, error) {
	in, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: purge: %w", ErrDecompressFailed, err)
	}
	if len(in) < sha1.Size {
		return nil, fmt.Errorf("%w: purge: stream shorter than its hash", ErrDecompressFailed)
	}

	body := in[:len(in)-sha1.Size]
	out := make([]byte, decompressedSize)

	for pos := 0; pos < len(body); {
		if len(body)-pos < purgeSegmentSize {
			return nil, fmt.Errorf("%w: purge: truncated segment header", ErrDecompressFailed)
		}
		offset := binary.BigEndian.Uint32(body[pos:])
		size := binary.BigEndian.Uint32(body[pos+4:])
		pos += purgeSegmentSize

		if uint64(offset)+uint64(size) > decompressedSize {
			return nil, fmt.Errorf("%w: purge: segment [%#x, +%#x) outside stream", ErrDecompressFailed, offset, size)
		}
		if len(body)-pos < int(size) {
			return nil, fmt.Errorf("%w: purge: truncated segment payload", ErrDecompressFailed)
		}
		copy(out[offset:], body[pos:pos+int(size)])
		pos += int(size)
	}

	h := sha1.New() //nolint:gosec
	h.Write(preceding)
	h.Write(out)
	if !bytes.Equal(h.Sum(nil), in[len(in)-sha1.Size:]) {
		return nil, fmt.Errorf("%w: purge: hash mismatch", ErrCorruptData)
	}

	return io.NopCloser(bytes.NewReader(out)), nil
}

// purgeCompressor stores only the non-zero runs of its input, each headed by
// a PurgeSegment, and appends a SHA-1 over the preceding data plus the full
// uncompressed input.
type purgeCompressor struct {
	buf    []byte
	offset uint64
	sha1   hash.Hash
}

func (c *purgeCompressor) Start(uint64) error {
	c.buf = c.buf[:0]
	c.offset = 0
	if c.sha1 == nil {
		c.sha1 = sha1.New() //nolint:gosec
	}
	c.sha1.Reset()
	return nil
}

func (c *purgeCompressor) AddPrecedingData(p []byte) error {
	_, err := c.sha1.Write(p)
	return err
}

func (c *purgeCompressor) Compress(p []byte) error {
	if _, err := c.sha1.Write(p); err != nil {
		return err
	}

	base := c.offset
	c.offset += uint64(len(p))

	for i := 0; i < len(p); {
		// Find the start of the next non-zero run.
		for i < len(p) && p[i] == 0 {
			i++
		}
		if i == len(p) {
			break
		}
		start := i

		// Extend the run until a gap of zeroes long enough to be worth a
		// fresh segment header.
		end := i
		for i < len(p) {
			if p[i] != 0 {
				end = i + 1
				i++
				continue
			}
			zeros := 0
			for i+zeros < len(p) && p[i+zeros] == 0 {
				zeros++
			}
			if zeros >= purgeZeroRun || i+zeros == len(p) {
				break
			}
			i += zeros
		}

		c.buf = binary.BigEndian.AppendUint32(c.buf, uint32(base+uint64(start)))
		c.buf = binary.BigEndian.AppendUint32(c.buf, uint32(end-start))
		c.buf = append(c.buf, p[start:end]...)
		i = end
	}

	return nil
}

func (c *purgeCompressor) End() error {
	c.buf = c.sha1.Sum(c.buf)
	return nil
}

func (c *purgeCompressor) Bytes() []byte { return c.buf }
