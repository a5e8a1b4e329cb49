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

// Package wiidisc implements the sector-level layout of Wii disc partitions:
// the H0/H1/H2 hash pyramid and the per-sector AES-CBC encryption. A sector
// is 0x8000 bytes on disc, of which the first 0x400 bytes hold hashes and the
// remaining 0x7C00 bytes hold data. Sectors are hashed and encrypted in
// groups of 64 (8 subgroups of 8 sectors).
package wiidisc

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1" //nolint:gosec // SHA-1 is mandated by the disc format
	"fmt"
	"io"

	"github.com/connesc/cipherio"
)

const (
	// SectorSize is the on-disc size of one encrypted sector.
	SectorSize = 0x8000

	// SectorDataSize is the plaintext payload carried by one sector.
	SectorDataSize = 0x7c00

	// SectorHashesSize is the size of the hash block heading each sector.
	SectorHashesSize = 0x400

	// SectorsPerGroup is the number of sectors hashed and encrypted together.
	SectorsPerGroup = 64

	// SectorsPerSubgroup is the H1 fan-in.
	SectorsPerSubgroup = 8

	// GroupSize is the on-disc size of one sector group.
	GroupSize = SectorSize * SectorsPerGroup

	// GroupDataSize is the plaintext payload of one sector group.
	GroupDataSize = SectorDataSize * SectorsPerGroup

	// BlocksPerSector is the number of H0-hashed blocks in a sector's data.
	BlocksPerSector = 31

	// BlockSize is the size of one H0-hashed block.
	BlockSize = SectorDataSize / BlocksPerSector

	// HashSize is the size of a single hash slot.
	HashSize = sha1.Size

	h0Offset = 0
	h1Offset = BlocksPerSector*HashSize + 0x14   // 0x280
	h2Offset = h1Offset + SectorsPerSubgroup*HashSize + 0x20 // 0x340

	// ivOffset locates the data IV inside the encrypted hash block.
	ivOffset = 0x3d0
)

// HashBlock is the 0x400-byte hash area of one sector: 31 H0 hashes over the
// sector's own data blocks, 8 H1 hashes over the subgroup's H0 tables and
// 8 H2 hashes over the group's H1 tables, each region zero-padded.
type HashBlock [SectorHashesSize]byte

// H0 returns the i'th H0 slot.
func (b *HashBlock) H0(i int) []byte { return b[h0Offset+i*HashSize : h0Offset+(i+1)*HashSize] }

// H1 returns the i'th H1 slot.
func (b *HashBlock) H1(i int) []byte { return b[h1Offset+i*HashSize : h1Offset+(i+1)*HashSize] }

// H2 returns the i'th H2 slot.
func (b *HashBlock) H2(i int) []byte { return b[h2Offset+i*HashSize : h2Offset+(i+1)*HashSize] }

// hashSlots lists the byte offset of every hash slot within a block, in
// H0, H1, H2 order.
var hashSlots = func() []int {
	slots := make([]int, 0, BlocksPerSector+2*SectorsPerSubgroup)
	for i := range BlocksPerSector {
		slots = append(slots, h0Offset+i*HashSize)
	}
	for i := range SectorsPerSubgroup {
		slots = append(slots, h1Offset+i*HashSize)
	}
	for i := range SectorsPerSubgroup {
		slots = append(slots, h2Offset+i*HashSize)
	}
	return slots
}()

// HashSlots returns the byte offsets of every hash slot within a block.
// The padding between regions carries no hashes.
func HashSlots() []int { return hashSlots }

// HashGroup recomputes the canonical hash pyramid for one group of plaintext
// data. data must be GroupDataSize bytes; sectors the caller does not have
// should be zero-filled, matching how discs hash short groups.
func HashGroup(data []byte, blocks *[SectorsPerGroup]HashBlock) {
	for i := range blocks {
		blocks[i] = HashBlock{}
	}

	for s := range SectorsPerGroup {
		sector := data[s*SectorDataSize : (s+1)*SectorDataSize]
		for b := range BlocksPerSector {
			sum := sha1.Sum(sector[b*BlockSize : (b+1)*BlockSize]) //nolint:gosec
			copy(blocks[s].H0(b), sum[:])
		}
	}

	for sg := range SectorsPerGroup / SectorsPerSubgroup {
		for j := range SectorsPerSubgroup {
			sum := sha1.Sum(blocks[sg*SectorsPerSubgroup+j][h0Offset : h0Offset+BlocksPerSector*HashSize]) //nolint:gosec
			for k := range SectorsPerSubgroup {
				copy(blocks[sg*SectorsPerSubgroup+k].H1(j), sum[:])
			}
		}
	}

	for sg := range SectorsPerGroup / SectorsPerSubgroup {
		sum := sha1.Sum(blocks[sg*SectorsPerSubgroup][h1Offset : h1Offset+SectorsPerSubgroup*HashSize]) //nolint:gosec
		for s := range SectorsPerGroup {
			copy(blocks[s].H2(sg), sum[:])
		}
	}
}

// EncryptGroup produces the encrypted on-disc form of sectors full sectors.
// data holds the plaintext payloads, blocks the hash blocks to store, and out
// receives sectors*SectorSize bytes. The hash block is encrypted with a zero
// IV; the data area's IV is taken from the encrypted hash block.
func EncryptGroup(key [16]byte, data []byte, blocks *[SectorsPerGroup]HashBlock, sectors int, out []byte) error {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return fmt.Errorf("wiidisc: %w", err)
	}

	zeroIV := make([]byte, aes.BlockSize)

	for s := range sectors {
		dst := out[s*SectorSize : (s+1)*SectorSize]

		w := cipherio.NewBlockWriter(&sliceWriter{buf: dst[:SectorHashesSize]},
			cipher.NewCBCEncrypter(block, zeroIV))
		if _, err := w.Write(blocks[s][:]); err != nil {
			return fmt.Errorf("wiidisc: encrypt hashes: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("wiidisc: encrypt hashes: %w", err)
		}

		w = cipherio.NewBlockWriter(&sliceWriter{buf: dst[SectorHashesSize:]},
			cipher.NewCBCEncrypter(block, dst[ivOffset:ivOffset+aes.BlockSize]))
		if _, err := w.Write(data[s*SectorDataSize : (s+1)*SectorDataSize]); err != nil {
			return fmt.Errorf("wiidisc: encrypt data: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("wiidisc: encrypt data: %w", err)
		}
	}

	return nil
}

// DecryptGroup splits sectors encrypted sectors into plaintext payloads and
// their stored hash blocks. in holds sectors*SectorSize bytes; data receives
// sectors*SectorDataSize bytes.
func DecryptGroup(key [16]byte, in []byte, data []byte, blocks *[SectorsPerGroup]HashBlock, sectors int) error {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return fmt.Errorf("wiidisc: %w", err)
	}

	zeroIV := make([]byte, aes.BlockSize)

	for s := range sectors {
		src := in[s*SectorSize : (s+1)*SectorSize]

		r := cipherio.NewBlockReader(newSliceReader(src[:SectorHashesSize]),
			cipher.NewCBCDecrypter(block, zeroIV))
		if _, err := io.ReadFull(r, blocks[s][:]); err != nil {
			return fmt.Errorf("wiidisc: decrypt hashes: %w", err)
		}

		r = cipherio.NewBlockReader(newSliceReader(src[SectorHashesSize:]),
			cipher.NewCBCDecrypter(block, src[ivOffset:ivOffset+aes.BlockSize]))
		if _, err := io.ReadFull(r, data[s*SectorDataSize:(s+1)*SectorDataSize]); err != nil {
			return fmt.Errorf("wiidisc: decrypt data: %w", err)
		}
	}

	return nil
}

// sliceWriter fills a fixed slice front to back.
type sliceWriter struct {
	buf []byte
	off int
}

func (w *sliceWriter) Write(p []byte) (int, error) {
	if w.off+len(p) > len(w.buf) {
		return 0, io.ErrShortWrite
	}
	copy(w.buf[w.off:], p)
	w.off += len(p)
	return len(p), nil
}

func newSliceReader(p []byte) io.Reader {
	return &sliceReader{p: p}
}

type sliceReader struct {
	p []byte
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if len(r.p) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.p)
	r.p = r.p[n:]
	return n, nil
}
