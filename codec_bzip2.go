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

	"github.com/dsnet/compress/bzip2"
)

// newBzip2Reader wraps a standard bzip2 stream.
func newBzip2Reader(r io.Reader) (io.ReadCloser, error) {
	br, err := bzip2.NewReader(r, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: bzip2 init: %w", ErrDecompressFailed, err)
	}
	return br, nil
}

// bzip2Compressor writes a standard bzip2 stream at the configured level.
type bzip2Compressor struct {
	noopPreceding
	level int
	buf   bytes.Buffer
	w     *bzip2.Writer
}

func (c *bzip2Compressor) Start(uint64) error {
	c.buf.Reset()
	w, err := bzip2.NewWriter(&c.buf, &bzip2.WriterConfig{Level: c.level})
	if err != nil {
		return fmt.Errorf("%w: bzip2 init: %w", ErrCompressFailed, err)
	}
	c.w = w
	return nil
}

func (c *bzip2Compressor) Compress(p []byte) error {
	if _, err := c.w.Write(p); err != nil {
		return fmt.Errorf("%w: bzip2: %w", ErrCompressFailed, err)
	}
	return nil
}

func (c *bzip2Compressor) End() error {
	if err := c.w.Close(); err != nil {
		return fmt.Errorf("%w: bzip2: %w", ErrCompressFailed, err)
	}
	return nil
}

func (c *bzip2Compressor) Bytes() []byte { return c.buf.Bytes() }
