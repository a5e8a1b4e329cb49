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

// noneCompressor stores the input unchanged.
type noneCompressor struct {
	noopPreceding
	buf []byte
}

func (c *noneCompressor) Start(size uint64) error {
	c.buf = c.buf[:0]
	if size > 0 && uint64(cap(c.buf)) < size {
		c.buf = make([]byte, 0, size)
	}
	return nil
}

func (c *noneCompressor) Compress(p []byte) error {
	c.buf = append(c.buf, p...)
	return nil
}

func (c *noneCompressor) End() error { return nil }

func (c *noneCompressor) Bytes() []byte { return c.buf }
