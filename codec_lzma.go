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

	"github.com/ulikunitz/xz/lzma"
)

// lzmaHeaderSize is the size of the classic .lzma stream header: one
// properties byte, a little-endian dictionary size and a little-endian
// uncompressed size.
const lzmaHeaderSize = 13

// lzmaPropsSize is the portion of the header stored as codec parameters in
// header 2: the properties byte and the dictionary size.
const lzmaPropsSize = 5

// lzmaPropsByte encodes the default lc=3, lp=0, pb=2 as (pb*5+lp)*9+lc.
const lzmaPropsByte = 0x5d

// lzmaDictCapForLevel mirrors the xz preset dictionary sizes.
func lzmaDictCapForLevel(level int) uint32 {
	switch level {
	case 0:
		return 1 << 18
	case 1:
		return 1 << 20
	case 2:
		return 1 << 21
	case 3, 4:
		return 1 << 22
	case 5, 6:
		return 1 << 23
	case 7:
		return 1 << 24
	case 8:
		return 1 << 25
	default:
		return 1 << 26
	}
}

// newLZMAReader opens a raw LZMA stream. The container stores the stream
// without its header; the properties and dictionary size come from the codec
// parameter blob and the header is synthesized with an unknown-size marker,
// so the stream's end-of-stream marker terminates decoding.
func newLZMAReader(r io.Reader, compressorData []byte) (io.ReadCloser, error) {
	if len(compressorData) != lzmaPropsSize {
		return nil, fmt.Errorf("%w: lzma: %d parameter bytes", ErrInvalidHeader, len(compressorData))
	}

	header := make([]byte, lzmaHeaderSize)
	copy(header, compressorData)
	binary.LittleEndian.PutUint64(header[lzmaPropsSize:], ^uint64(0))

	dictCap := int(binary.LittleEndian.Uint32(compressorData[1:]))
	if dictCap < lzma.MinDictCap {
		dictCap = lzma.MinDictCap
	}

	lr, err := lzma.ReaderConfig{DictCap: dictCap}.NewReader(
		io.MultiReader(bytes.NewReader(header), r))
	if err != nil {
		return nil, fmt.Errorf("%w: lzma init: %w", ErrDecompressFailed, err)
	}
	return io.NopCloser(lr), nil
}

// newLZMA2Reader opens a raw LZMA2 chunk stream. The codec parameter blob is
// the one-byte dictionary-size code.
func newLZMA2Reader(r io.Reader, compressorData []byte) (io.ReadCloser, error) {
	if len(compressorData) != 1 {
		return nil, fmt.Errorf("%w: lzma2: %d parameter bytes", ErrInvalidHeader, len(compressorData))
	}
	if compressorData[0] > 40 {
		return nil, fmt.Errorf("%w: lzma2: dictionary code %d", ErrInvalidHeader, compressorData[0])
	}

	dictCap := int(lzma2DictionarySize(compressorData[0]))
	if dictCap < lzma.MinDictCap {
		dictCap = lzma.MinDictCap
	}

	lr, err := lzma.Reader2Config{DictCap: dictCap}.NewReader2(r)
	if err != nil {
		return nil, fmt.Errorf("%w: lzma2 init: %w", ErrDecompressFailed, err)
	}
	return io.NopCloser(lr), nil
}

// lzmaCompressor writes a raw LZMA stream, stripping the 13-byte header the
// library produces; the header's first five bytes become the codec
// parameters stored in header 2.
type lzmaCompressor struct {
	noopPreceding
	dictCap uint32
	buf     bytes.Buffer
	w       *lzma.Writer
}

func newLZMACompressor(level int) (compressor, []byte, error) {
	dictCap := lzmaDictCapForLevel(level)

	compressorData := make([]byte, lzmaPropsSize)
	compressorData[0] = lzmaPropsByte
	binary.LittleEndian.PutUint32(compressorData[1:], dictCap)

	return &lzmaCompressor{dictCap: dictCap}, compressorData, nil
}

func (c *lzmaCompressor) Start(uint64) error {
	c.buf.Reset()
	w, err := lzma.WriterConfig{DictCap: int(c.dictCap)}.NewWriter(&c.buf)
	if err != nil {
		return fmt.Errorf("%w: lzma init: %w", ErrCompressFailed, err)
	}
	c.w = w
	return nil
}

func (c *lzmaCompressor) Compress(p []byte) error {
	if _, err := c.w.Write(p); err != nil {
		return fmt.Errorf("%w: lzma: %w", ErrCompressFailed, err)
	}
	return nil
}

func (c *lzmaCompressor) End() error {
	if err := c.w.Close(); err != nil {
		return fmt.Errorf("%w: lzma: %w", ErrCompressFailed, err)
	}
	return nil
}

func (c *lzmaCompressor) Bytes() []byte { return c.buf.Bytes()[lzmaHeaderSize:] }

// lzma2Compressor writes a raw LZMA2 chunk stream.
type lzma2Compressor struct {
	noopPreceding
	dictCap uint32
	buf     bytes.Buffer
	w       *lzma.Writer2
}

func newLZMA2Compressor(level int) (compressor, []byte, error) {
	code := lzma2DictionaryCode(lzmaDictCapForLevel(level))

	// Use the coded size as the real dictionary capacity so both ends of
	// the stream agree exactly.
	return &lzma2Compressor{dictCap: lzma2DictionarySize(code)}, []byte{code}, nil
}

func (c *lzma2Compressor) Start(uint64) error {
	c.buf.Reset()
	w, err := lzma.Writer2Config{DictCap: int(c.dictCap)}.NewWriter2(&c.buf)
	if err != nil {
		return fmt.Errorf("%w: lzma2 init: %w", ErrCompressFailed, err)
	}
	c.w = w
	return nil
}

func (c *lzma2Compressor) Compress(p []byte) error {
	if _, err := c.w.Write(p); err != nil {
		return fmt.Errorf("%w: lzma2: %w", ErrCompressFailed, err)
	}
	return nil
}

func (c *lzma2Compressor) End() error {
	if err := c.w.Close(); err != nil {
		return fmt.Errorf("%w: lzma2: %w", ErrCompressFailed, err)
	}
	return nil
}

func (c *lzma2Compressor) Bytes() []byte { return c.buf.Bytes() }
