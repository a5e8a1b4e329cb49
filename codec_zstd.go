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
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// newZstdReader wraps a standard Zstandard frame.
func newZstdReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd init: %w", ErrDecompressFailed, err)
	}
	return zr.IOReadCloser(), nil
}

// zstdCompressor writes a standard Zstandard frame at the configured level.
type zstdCompressor struct {
	noopPreceding
	level int
	buf   bytes.Buffer
	w     *zstd.Encoder
}

func (c *zstdCompressor) Start(uint64) error {
	c.buf.Reset()
	w, err := zstd.NewWriter(&c.buf,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.level)),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		return fmt.Errorf("%w: zstd init: %w", ErrCompressFailed, err)
	}
	c.w = w
	return nil
}

func (c *zstdCompressor) Compress(p []byte) error {
	if _, err := c.w.Write(p); err != nil {
		return fmt.Errorf("%w: zstd: %w", ErrCompressFailed, err)
	}
	return nil
}

func (c *zstdCompressor) End() error {
	if err := c.w.Close(); err != nil {
		return fmt.Errorf("%w: zstd: %w", ErrCompressFailed, err)
	}
	return nil
}

func (c *zstdCompressor) Bytes() []byte { return c.buf.Bytes() }
