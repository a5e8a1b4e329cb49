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
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ZaparooProject/go-wia/lfg"
	"github.com/ZaparooProject/go-wia/wiidisc"
)

// rvzPackJunkBit marks a packed record as generator-produced junk.
const rvzPackJunkBit = uint32(1) << 31

// rvzPackMinJunk is the smallest junk run worth a record: below this the
// record header and seed outweigh the literal bytes.
const rvzPackMinJunk = lfg.SeedBytes + 8

// JunkRegion declares a run of lagged-Fibonacci filler in a disc image.
// Offset is expressed in the coordinate space of the data it belongs to:
// absolute image offsets for unencrypted regions. The seed restarts at
// every 0x8000-byte sector boundary within the region.
type JunkRegion struct {
	Offset uint64
	Size   uint64
	Seed   lfg.Seed
}

// packReader unpacks the RVZ record framing applied to a group's payload
// after decompression: a big-endian u32 size whose top bit selects between
// a seed-carrying junk record and literal bytes.
type packReader struct {
	inner      io.Reader
	dataOffset uint64
	pos        uint64
	remaining  uint32
	junk       bool
	gen        *lfg.Generator
	err        error
}

func newPackReader(inner io.Reader, dataOffset uint64) *packReader {
	return &packReader{inner: inner, dataOffset: dataOffset}
}

func (r *packReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}

	n := 0
	for n < len(p) {
		if r.remaining == 0 {
			var hdr [4]byte
			if _, err := io.ReadFull(r.inner, hdr[:]); err != nil {
				if err == io.EOF {
					r.err = io.EOF
					return n, io.EOF
				}
				r.err = fmt.Errorf("%w: packed record header: %w", ErrDecompressFailed, err)
				return n, r.err
			}

			size := binary.BigEndian.Uint32(hdr[:])
			r.junk = size&rvzPackJunkBit != 0
			r.remaining = size &^ rvzPackJunkBit
			if r.remaining == 0 {
				r.err = fmt.Errorf("%w: empty packed record", ErrDecompressFailed)
				return n, r.err
			}

			if r.junk {
				var seed [lfg.SeedBytes]byte
				if _, err := io.ReadFull(r.inner, seed[:]); err != nil {
					r.err = fmt.Errorf("%w: packed record seed: %w", ErrDecompressFailed, err)
					return n, r.err
				}
				if r.gen == nil {
					r.gen = new(lfg.Generator)
				}
				r.gen.SetSeed(lfg.ParseSeed(seed[:]))
				r.gen.Forward(int((r.dataOffset + r.pos) % wiidisc.SectorSize))
			}
		}

		c := min(len(p)-n, int(r.remaining))
		if r.junk {
			r.gen.Fill(p[n : n+c])
		} else if _, err := io.ReadFull(r.inner, p[n:n+c]); err != nil {
			r.err = fmt.Errorf("%w: packed record payload: %w", ErrDecompressFailed, err)
			return n, r.err
		}

		n += c
		r.pos += uint64(c)
		r.remaining -= uint32(c)
	}

	return n, nil
}

// findJunkRegion returns the region containing offset, if any.
func findJunkRegion(regions []JunkRegion, offset uint64) *JunkRegion {
	for i := range regions {
		if offset >= regions[i].Offset && offset < regions[i].Offset+regions[i].Size {
			return &regions[i]
		}
	}
	return nil
}

// rvzPack encodes in as a sequence of junk and literal records. dataOffset
// positions in within its coordinate space so that sector boundaries and
// junk regions line up. When allowJunkReuse is false only whole sectors are
// packed, which keeps groups that are candidates for reuse byte-stable.
func rvzPack(in []byte, dataOffset uint64, regions []JunkRegion, allowJunkReuse bool) []byte {
	out := make([]byte, 0, len(in)/2)
	litStart := 0

	flush := func(end int) {
		if end > litStart {
			out = binary.BigEndian.AppendUint32(out, uint32(end-litStart))
			out = append(out, in[litStart:end]...)
		}
	}

	pos := 0
	for pos < len(in) {
		offset := dataOffset + uint64(pos)
		sectorEnd := min(len(in), pos+int(wiidisc.SectorSize-offset%wiidisc.SectorSize))

		region := findJunkRegion(regions, offset)
		runEnd := sectorEnd
		if region != nil {
			runEnd = min(sectorEnd, pos+int(region.Offset+region.Size-offset))
		}

		packed := false
		if region != nil && runEnd-pos >= rvzPackMinJunk &&
			(allowJunkReuse || offset%wiidisc.SectorSize == 0 && runEnd-pos == wiidisc.SectorSize) {
			gen := lfg.New(region.Seed)
			gen.Forward(int(offset % wiidisc.SectorSize))
			packed = gen.Matches(in[pos:runEnd])
		}

		if packed {
			flush(pos)
			out = binary.BigEndian.AppendUint32(out, uint32(runEnd-pos)|rvzPackJunkBit)
			out = lfg.AppendSeed(out, region.Seed)
			litStart = runEnd
			pos = runEnd
		} else {
			pos = sectorEnd
		}
	}

	flush(len(in))
	return out
}
