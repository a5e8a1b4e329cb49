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
	"io"
	"os"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/ZaparooProject/go-wia/wiidisc"
)

// Reader provides random access into the raw disc image stored in a WIA or
// RVZ container. It is not safe for concurrent use: the group cache and the
// encryption cache are single-slot and caller-owned.
type Reader struct {
	f      io.ReaderAt
	closer io.Closer
	rvz    bool

	h1             header1
	h2             header2
	compression    CompressionType
	compressorData []byte
	chunkSize      uint64

	partitions []PartitionEntry
	rawData    []RawDataEntry
	groups     []GroupEntry

	dataEntries []dataEntry

	cached      *chunk
	cachedGroup uint32

	enc encryptionCache
}

// dataEntry maps one contiguous span of the image onto either a raw data
// entry or one data area of a partition. Spans are keyed by their start
// offset and disjointly cover the image.
type dataEntry struct {
	start       uint64
	size        uint64
	isPartition bool
	index       int
	partData    int
}

// encryptionCache holds the most recently re-encrypted Wii sector group, so
// sequential encrypted reads across a group decrypt and hash it only once.
type encryptionCache struct {
	buf     []byte
	index   int
	data    int
	group   uint64
	sectors int
	valid   bool
}

// OpenReader opens the named file as a WIA or RVZ image.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path) //nolint:gosec // opening a user-supplied image is the point
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}

	r, err := NewReader(f)
	if err != nil {
		if cerr := f.Close(); cerr != nil {
			return nil, multierror.Append(err, cerr)
		}
		return nil, err
	}

	r.closer = f
	return r, nil
}

// NewReader parses a WIA or RVZ image from ra. All headers and entry tables
// are read and verified up front; group data is decompressed on demand.
func NewReader(ra io.ReaderAt) (*Reader, error) {
	r := &Reader{f: ra, cachedGroup: ^uint32(0)}
	if err := r.initialize(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) initialize() error {
	if err := r.readHeader1(); err != nil {
		return err
	}
	if err := r.readHeader2(); err != nil {
		return err
	}
	if err := r.readPartitionEntries(); err != nil {
		return err
	}
	if err := r.readRawDataEntries(); err != nil {
		return err
	}
	if err := r.readGroupEntries(); err != nil {
		return err
	}
	return r.buildDataEntries()
}

func (r *Reader) readHeader1() error {
	buf := make([]byte, header1Size)
	if _, err := r.f.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("%w: header 1: %w", ErrTruncated, err)
	}
	if err := binary.Read(bytes.NewReader(buf), binary.BigEndian, &r.h1); err != nil {
		return fmt.Errorf("parse header 1: %w", err)
	}

	switch r.h1.Magic {
	case WIAMagic:
		r.rvz = false
	case RVZMagic:
		r.rvz = true
	default:
		return fmt.Errorf("%w: %#08x", ErrInvalidMagic, r.h1.Magic)
	}

	version, readCompatible := wiaVersion, wiaVersionReadCompatible
	if r.rvz {
		version, readCompatible = rvzVersion, rvzVersionReadCompatible
	}
	if r.h1.VersionCompatible > version || r.h1.Version < readCompatible {
		return fmt.Errorf("%w: file version %s (compatible %s)", ErrUnsupportedVersion,
			VersionString(r.h1.Version), VersionString(r.h1.VersionCompatible))
	}

	if sum := sha1.Sum(buf[:header1Size-sha1.Size]); sum != r.h1.Header1Hash { //nolint:gosec
		return fmt.Errorf("%w: header 1 hash mismatch", ErrInvalidHeader)
	}

	return nil
}

func (r *Reader) readHeader2() error {
	size := r.h1.Header2Size
	if size < header2Size || size > 0x1000 {
		return fmt.Errorf("%w: header 2 size %#x", ErrInvalidHeader, size)
	}

	buf := make([]byte, size)
	if _, err := r.f.ReadAt(buf, header1Size); err != nil {
		return fmt.Errorf("%w: header 2: %w", ErrTruncated, err)
	}
	if sum := sha1.Sum(buf); sum != r.h1.Header2Hash { //nolint:gosec
		return fmt.Errorf("%w: header 2 hash mismatch", ErrInvalidHeader)
	}
	if err := binary.Read(bytes.NewReader(buf), binary.BigEndian, &r.h2); err != nil {
		return fmt.Errorf("parse header 2: %w", err)
	}

	if r.h2.DiscType != DiscTypeGameCube && r.h2.DiscType != DiscTypeWii {
		return fmt.Errorf("%w: disc type %d", ErrInvalidHeader, r.h2.DiscType)
	}

	r.compression = CompressionType(r.h2.Compression)
	if r.compression > CompressionZstd {
		return fmt.Errorf("%w: type %d", ErrUnsupportedCompression, r.h2.Compression)
	}
	if r.rvz && r.compression == CompressionPurge {
		return fmt.Errorf("%w: purge is not valid in RVZ", ErrUnsupportedCompression)
	}

	if r.h2.CompressorDataSize > 7 {
		return fmt.Errorf("%w: compressor data size %d", ErrInvalidHeader, r.h2.CompressorDataSize)
	}
	r.compressorData = r.h2.CompressorData[:r.h2.CompressorDataSize]

	r.chunkSize = uint64(r.h2.ChunkSize)
	if err := validateChunkSize(r.chunkSize, r.rvz); err != nil {
		return err
	}

	return nil
}

// validateChunkSize enforces the chunk-size rules shared by the reader and
// the writer: a positive multiple of the sector size, and either a multiple
// of the Wii group size or, in RVZ, a power-of-two fraction of it.
func validateChunkSize(chunkSize uint64, rvz bool) error {
	if chunkSize == 0 || chunkSize > MaxChunkSize || chunkSize%wiidisc.SectorSize != 0 {
		return fmt.Errorf("%w: chunk size %#x", ErrInvalidHeader, chunkSize)
	}
	if chunkSize%wiidisc.GroupSize == 0 {
		return nil
	}
	if !rvz {
		return fmt.Errorf("%w: WIA chunk size %#x is not a multiple of %#x",
			ErrInvalidHeader, chunkSize, uint64(wiidisc.GroupSize))
	}
	if wiidisc.GroupSize%chunkSize != 0 || chunkSize&(chunkSize-1) != 0 {
		return fmt.Errorf("%w: RVZ chunk size %#x does not divide %#x",
			ErrInvalidHeader, chunkSize, uint64(wiidisc.GroupSize))
	}
	return nil
}

func (r *Reader) readPartitionEntries() error {
	n := r.h2.NumPartitionEntries
	if n > MaxPartitionEntries {
		return fmt.Errorf("%w: %d partition entries", ErrInvalidHeader, n)
	}
	if n > 0 && r.h2.PartitionEntrySize != partitionEntrySize {
		return fmt.Errorf("%w: partition entry size %#x", ErrUnsupportedVersion, r.h2.PartitionEntrySize)
	}

	buf := make([]byte, int(n)*partitionEntrySize)
	if len(buf) > 0 {
		if _, err := r.f.ReadAt(buf, int64(r.h2.PartitionEntriesOffset)); err != nil {
			return fmt.Errorf("%w: partition entries: %w", ErrTruncated, err)
		}
	}
	if sum := sha1.Sum(buf); sum != r.h2.PartitionEntriesHash { //nolint:gosec
		return fmt.Errorf("%w: partition entries hash mismatch", ErrInvalidHeader)
	}

	r.partitions = make([]PartitionEntry, n)
	if err := binary.Read(bytes.NewReader(buf), binary.BigEndian, &r.partitions); err != nil {
		return fmt.Errorf("parse partition entries: %w", err)
	}
	return nil
}

func (r *Reader) readRawDataEntries() error {
	n := r.h2.NumRawDataEntries
	if n > MaxRawDataEntries {
		return fmt.Errorf("%w: %d raw data entries", ErrInvalidHeader, n)
	}

	buf, err := r.readTable(r.h2.RawDataEntriesOffset, r.h2.RawDataEntriesSize,
		uint64(n)*rawDataEntrySize)
	if err != nil {
		return fmt.Errorf("raw data entries: %w", err)
	}

	r.rawData = make([]RawDataEntry, n)
	if err := binary.Read(bytes.NewReader(buf), binary.BigEndian, &r.rawData); err != nil {
		return fmt.Errorf("parse raw data entries: %w", err)
	}
	return nil
}

func (r *Reader) readGroupEntries() error {
	n := r.h2.NumGroupEntries
	if n > MaxGroupEntries {
		return fmt.Errorf("%w: %d group entries", ErrInvalidHeader, n)
	}

	buf, err := r.readTable(r.h2.GroupEntriesOffset, r.h2.GroupEntriesSize,
		uint64(n)*groupEntrySize)
	if err != nil {
		return fmt.Errorf("group entries: %w", err)
	}

	r.groups = make([]GroupEntry, n)
	if err := binary.Read(bytes.NewReader(buf), binary.BigEndian, &r.groups); err != nil {
		return fmt.Errorf("parse group entries: %w", err)
	}

	if !r.rvz {
		// The top bit of the size only carries meaning in RVZ; in WIA it
		// would be a 2GB+ group, which the format cannot produce.
		for i, g := range r.groups {
			if g.DataSize&rvzCompressedBit != 0 {
				return fmt.Errorf("%w: group %d size %#x", ErrInvalidHeader, i, g.DataSize)
			}
		}
	}

	return nil
}

// readTable reads and decompresses one entry table. Tables are compressed
// with the file's codec; with no compression they are stored raw.
func (r *Reader) readTable(offset uint64, compressedSize uint32, decompressedSize uint64) ([]byte, error) {
	if decompressedSize == 0 {
		return nil, nil
	}

	raw := make([]byte, compressedSize)
	if _, err := r.f.ReadAt(raw, int64(offset)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTruncated, err)
	}

	dec, err := newDecompressor(r.compression, bytes.NewReader(raw), decompressorParams{
		compressorData:   r.compressorData,
		decompressedSize: decompressedSize,
	})
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	buf := make([]byte, decompressedSize)
	if _, err := io.ReadFull(dec, buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompressFailed, err)
	}
	return buf, nil
}

func (r *Reader) buildDataEntries() error {
	for i, e := range r.rawData {
		if e.DataSize == 0 {
			continue
		}
		r.dataEntries = append(r.dataEntries, dataEntry{
			start: e.DataOffset,
			size:  e.DataSize,
			index: i,
		})
		expected := groupCountForSpan(e.DataOffset, e.DataSize, r.chunkSize)
		if err := r.checkGroupRange(e.GroupIndex, e.NumberOfGroups, expected); err != nil {
			return err
		}
	}

	for i, p := range r.partitions {
		for d, e := range p.DataEntries {
			if e.NumberOfSectors == 0 {
				continue
			}
			r.dataEntries = append(r.dataEntries, dataEntry{
				start:       uint64(e.FirstSector) * wiidisc.SectorSize,
				size:        uint64(e.NumberOfSectors) * wiidisc.SectorSize,
				isPartition: true,
				index:       i,
				partData:    d,
			})
			expected := (uint64(e.NumberOfSectors)*wiidisc.SectorSize + r.chunkSize - 1) / r.chunkSize
			if err := r.checkGroupRange(e.GroupIndex, e.NumberOfGroups, expected); err != nil {
				return err
			}
		}
	}

	sort.Slice(r.dataEntries, func(i, j int) bool {
		return r.dataEntries[i].start < r.dataEntries[j].start
	})

	for i := 1; i < len(r.dataEntries); i++ {
		prev, cur := r.dataEntries[i-1], r.dataEntries[i]
		if prev.start+prev.size > cur.start {
			return fmt.Errorf("%w: data entries overlap at %#x", ErrInvalidHeader, cur.start)
		}
	}

	return nil
}

func (r *Reader) checkGroupRange(index, count uint32, expected uint64) error {
	if uint64(count) != expected {
		return fmt.Errorf("%w: %d groups where %d expected", ErrInvalidHeader, count, expected)
	}
	if uint64(index)+uint64(count) > uint64(len(r.groups)) {
		return fmt.Errorf("%w: group range [%d, +%d) outside table of %d",
			ErrInvalidHeader, index, count, len(r.groups))
	}
	return nil
}

// groupCountForSpan returns how many chunk-grid groups cover [offset,
// offset+size): raw data entries may start unaligned, in which case the
// first group is short.
func groupCountForSpan(offset, size, chunkSize uint64) uint64 {
	return (offset%chunkSize + size + chunkSize - 1) / chunkSize
}

// RawSize returns the container file size.
func (r *Reader) RawSize() uint64 { return r.h1.WIAFileSize }

// DataSize returns the uncompressed disc image size.
func (r *Reader) DataSize() uint64 { return r.h1.ISOFileSize }

// BlockSize returns the chunk size.
func (r *Reader) BlockSize() uint32 { return r.h2.ChunkSize }

// IsDataSizeAccurate reports that DataSize is exact for this format.
func (r *Reader) IsDataSizeAccurate() bool { return true }

// HasFastRandomAccessInBlock reports that seeking within a chunk still
// decompresses from the start of the chunk.
func (r *Reader) HasFastRandomAccessInBlock() bool { return false }

// RVZ reports whether the image uses the RVZ variant.
func (r *Reader) RVZ() bool { return r.rvz }

// Compression returns the file's compression type.
func (r *Reader) Compression() CompressionType { return r.compression }

// CompressionLevel returns the informative compression level from header 2.
func (r *Reader) CompressionLevel() int { return int(int32(r.h2.CompressionLevel)) }

// DiscType returns the disc type tag from header 2.
func (r *Reader) DiscType() uint32 { return r.h2.DiscType }

// Version returns the file's format version.
func (r *Reader) Version() uint32 { return r.h1.Version }

// SupportsReadWiiDecrypted reports whether the image has at least one Wii
// partition whose data is stored decrypted.
func (r *Reader) SupportsReadWiiDecrypted() bool {
	for _, e := range r.dataEntries {
		if e.isPartition {
			return true
		}
	}
	return false
}

// Close releases the file handle and codec state.
func (r *Reader) Close() error {
	var err error
	if r.cached != nil {
		if cerr := r.cached.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
		r.cached = nil
	}
	if r.closer != nil {
		if cerr := r.closer.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
		r.closer = nil
	}
	return err
}

// findDataEntry returns the entry covering offset, or nil.
func (r *Reader) findDataEntry(offset uint64) *dataEntry {
	i := sort.Search(len(r.dataEntries), func(i int) bool {
		return r.dataEntries[i].start > offset
	}) - 1
	if i < 0 {
		return nil
	}
	if e := &r.dataEntries[i]; offset < e.start+e.size {
		return e
	}
	return nil
}

// ReadAt reads raw image bytes: for Wii partition areas the stored
// decrypted data is re-hashed, patched with the stored hash exceptions and
// re-encrypted so the caller sees the original disc bytes.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset", ErrInternal)
	}

	total := 0
	pos := uint64(off)

	if pos >= r.h1.ISOFileSize {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	if rest := r.h1.ISOFileSize - pos; uint64(len(p)) > rest {
		p = p[:rest]
	}

	for len(p) > 0 {
		e := r.findDataEntry(pos)

		var n int
		var err error
		switch {
		case e == nil && pos < uint64(len(r.h2.DiscHeader)):
			// The first 0x80 bytes live only in header 2.
			limit := uint64(len(r.h2.DiscHeader)) - pos
			if i := sort.Search(len(r.dataEntries), func(i int) bool {
				return r.dataEntries[i].start > pos
			}); i < len(r.dataEntries) {
				limit = min(limit, r.dataEntries[i].start-pos)
			}
			n = copy(p[:min(uint64(len(p)), limit)], r.h2.DiscHeader[pos:])
		case e == nil:
			err = fmt.Errorf("%w: no data entry covers offset %#x", ErrInvalidHeader, pos)
		case e.isPartition:
			n, err = r.readFromPartition(e, pos, p)
		default:
			n, err = r.readFromRawData(e, pos, p)
		}
		if err != nil {
			return total, err
		}

		total += n
		pos += uint64(n)
		p = p[n:]
	}

	if uint64(off)+uint64(total) == r.h1.ISOFileSize {
		return total, io.EOF
	}
	return total, nil
}

// readFromRawData serves one read from the group covering pos in a raw data
// entry.
func (r *Reader) readFromRawData(e *dataEntry, pos uint64, p []byte) (int, error) {
	entry := r.rawData[e.index]
	base := entry.DataOffset - entry.DataOffset%r.chunkSize

	g := (pos - base) / r.chunkSize
	groupStart := max(base+g*r.chunkSize, entry.DataOffset)
	groupEnd := min(base+(g+1)*r.chunkSize, entry.DataOffset+entry.DataSize)

	ch, err := r.groupChunk(entry.GroupIndex+uint32(g), chunkParams{
		decompressedSize: groupEnd - groupStart,
		rvzPack:          r.rvz,
		dataOffset:       groupStart,
	})
	if err != nil {
		return 0, err
	}

	n := min(uint64(len(p)), groupEnd-pos)
	if err := ch.Read(pos-groupStart, n, p); err != nil {
		return 0, err
	}
	return int(n), nil
}

// groupChunk returns the cached chunk for groupIndex, constructing it if a
// different group is cached. The params carry the per-group fields; the
// file, codec and exception placement are filled in here.
func (r *Reader) groupChunk(groupIndex uint32, params chunkParams) (*chunk, error) {
	if uint64(groupIndex) >= uint64(len(r.groups)) {
		return nil, fmt.Errorf("%w: index %d", ErrInvalidGroup, groupIndex)
	}
	if r.cached != nil && r.cachedGroup == groupIndex {
		return r.cached, nil
	}
	if r.cached != nil {
		if err := r.cached.Close(); err != nil {
			return nil, err
		}
		r.cached = nil
	}

	ge := r.groups[groupIndex]
	params.file = r.f
	params.offsetInFile = ge.FileOffset()
	params.compressedSize = ge.Size(r.rvz)

	// Exception lists and codec framing cost a little; anything past that
	// bound cannot be a real group.
	maxCompressed := 2*params.decompressedSize +
		uint64(params.exceptionLists)*(2+MaxExceptionsPerList*hashExceptionEntrySize) + 0x10000
	if uint64(params.compressedSize) > maxCompressed {
		return nil, fmt.Errorf("%w: group %d stores %#x bytes for %#x of data",
			ErrInvalidGroup, groupIndex, params.compressedSize, params.decompressedSize)
	}
	params.compression = r.compression
	params.compressorData = r.compressorData
	params.compressed = ge.Compressed(r.rvz, r.compression)
	params.compressedExceptionLists = params.compressed && r.compression >= CompressionBzip2
	params.alignExceptions = r.rvz && !params.compressed

	r.cached = newChunk(params)
	r.cachedGroup = groupIndex
	return r.cached, nil
}

// Partition geometry derived from the chunk size.

// chunkDataSize is the plaintext payload one chunk of partition data holds.
func (r *Reader) chunkDataSize() uint64 {
	return r.chunkSize / wiidisc.SectorSize * wiidisc.SectorDataSize
}

func (r *Reader) exceptionListsPerChunk() int {
	return int(max(1, r.chunkSize/wiidisc.GroupSize))
}

func (r *Reader) chunksPerWiiGroup() uint64 {
	return max(1, wiidisc.GroupSize/r.chunkSize)
}

// partitionChunk returns the chunk holding plaintext chunk g of a partition
// data entry.
func (r *Reader) partitionChunk(e *dataEntry, g uint64) (*chunk, error) {
	entry := r.partitions[e.index].DataEntries[e.partData]
	totalPlain := uint64(entry.NumberOfSectors) * wiidisc.SectorDataSize
	chunkPlain := min(r.chunkDataSize(), totalPlain-g*r.chunkDataSize())

	return r.groupChunk(entry.GroupIndex+uint32(g), chunkParams{
		decompressedSize: chunkPlain,
		exceptionLists:   r.exceptionListsPerChunk(),
		rvzPack:          r.rvz,
		dataOffset:       g * r.chunkDataSize(),
	})
}

// ReadWiiDecrypted reads plaintext partition data. partitionDataOffset
// identifies the partition data area by its absolute image offset; offset
// counts plaintext bytes from the start of that area.
func (r *Reader) ReadWiiDecrypted(p []byte, offset, partitionDataOffset uint64) error {
	for i := range r.dataEntries {
		e := &r.dataEntries[i]
		if e.isPartition && e.start == partitionDataOffset {
			return r.readWiiDecrypted(e, offset, p)
		}
	}
	return fmt.Errorf("%w: no partition data at %#x", ErrInternal, partitionDataOffset)
}

func (r *Reader) readWiiDecrypted(e *dataEntry, offset uint64, p []byte) error {
	entry := r.partitions[e.index].DataEntries[e.partData]
	totalPlain := uint64(entry.NumberOfSectors) * wiidisc.SectorDataSize
	if offset+uint64(len(p)) > totalPlain {
		return fmt.Errorf("%w: decrypted read [%#x, +%#x) beyond %#x",
			ErrInternal, offset, len(p), totalPlain)
	}

	chunkData := r.chunkDataSize()
	for len(p) > 0 {
		g := offset / chunkData
		ch, err := r.partitionChunk(e, g)
		if err != nil {
			return err
		}

		inOff := offset % chunkData
		chunkPlain := min(chunkData, totalPlain-g*chunkData)
		n := min(uint64(len(p)), chunkPlain-inOff)
		if err := ch.Read(inOff, n, p[:n]); err != nil {
			return err
		}

		offset += n
		p = p[n:]
	}
	return nil
}

// readFromPartition serves one encrypted read from the Wii sector group
// covering pos.
func (r *Reader) readFromPartition(e *dataEntry, pos uint64, p []byte) (int, error) {
	g := (pos - e.start) / wiidisc.GroupSize
	if err := r.fillEncryptedGroup(e, g); err != nil {
		return 0, err
	}

	groupStart := e.start + g*wiidisc.GroupSize
	groupLen := uint64(r.enc.sectors) * wiidisc.SectorSize
	n := min(uint64(len(p)), groupStart+groupLen-pos)
	copy(p, r.enc.buf[pos-groupStart:pos-groupStart+n])
	return int(n), nil
}

// fillEncryptedGroup re-encrypts Wii sector group g of a partition data
// entry into the encryption cache: read the stored plaintext, recompute the
// hash pyramid, overlay the stored hash exceptions and encrypt.
func (r *Reader) fillEncryptedGroup(e *dataEntry, g uint64) error {
	if r.enc.valid && r.enc.index == e.index && r.enc.data == e.partData && r.enc.group == g {
		return nil
	}
	r.enc.valid = false

	entry := r.partitions[e.index].DataEntries[e.partData]
	sectors := int(min(uint64(wiidisc.SectorsPerGroup),
		uint64(entry.NumberOfSectors)-g*wiidisc.SectorsPerGroup))

	plain := make([]byte, wiidisc.GroupDataSize)
	if err := r.readWiiDecrypted(e, g*wiidisc.GroupDataSize,
		plain[:uint64(sectors)*wiidisc.SectorDataSize]); err != nil {
		return err
	}

	exceptions, err := r.groupExceptions(e, g)
	if err != nil {
		return err
	}

	var blocks [wiidisc.SectorsPerGroup]wiidisc.HashBlock
	wiidisc.HashGroup(plain, &blocks)
	if err := applyHashExceptions(exceptions, &blocks); err != nil {
		return err
	}

	if r.enc.buf == nil {
		r.enc.buf = make([]byte, wiidisc.GroupSize)
	}
	if err := wiidisc.EncryptGroup(r.partitions[e.index].PartitionKey, plain,
		&blocks, sectors, r.enc.buf); err != nil {
		return err
	}

	r.enc.index = e.index
	r.enc.data = e.partData
	r.enc.group = g
	r.enc.sectors = sectors
	r.enc.valid = true
	return nil
}

// groupExceptions collects the hash exceptions of one Wii sector group from
// the chunk or chunks covering it, rebasing sub-chunk lists onto group
// coordinates.
func (r *Reader) groupExceptions(e *dataEntry, g uint64) ([]HashExceptionEntry, error) {
	var exceptions []HashExceptionEntry

	if r.chunkSize >= wiidisc.GroupSize {
		groupsPerChunk := r.chunkSize / wiidisc.GroupSize
		ch, err := r.partitionChunk(e, g/groupsPerChunk)
		if err != nil {
			return nil, err
		}
		return ch.HashExceptions(int(g%groupsPerChunk), 0)
	}

	entry := r.partitions[e.index].DataEntries[e.partData]
	totalPlain := uint64(entry.NumberOfSectors) * wiidisc.SectorDataSize
	numChunks := (totalPlain + r.chunkDataSize() - 1) / r.chunkDataSize()

	perGroup := r.chunksPerWiiGroup()
	sectorsPerChunk := r.chunkSize / wiidisc.SectorSize
	for k := range perGroup {
		// A short final group may span fewer chunks.
		if g*perGroup+k >= numChunks {
			break
		}
		ch, err := r.partitionChunk(e, g*perGroup+k)
		if err != nil {
			return nil, err
		}
		list, err := ch.HashExceptions(0, uint16(k*sectorsPerChunk*wiidisc.SectorHashesSize))
		if err != nil {
			return nil, err
		}
		exceptions = append(exceptions, list...)
	}
	return exceptions, nil
}

// applyHashExceptions overwrites recomputed hash slots with the stored
// originals so re-encryption reproduces the disc bit-exactly.
func applyHashExceptions(exceptions []HashExceptionEntry, blocks *[wiidisc.SectorsPerGroup]wiidisc.HashBlock) error {
	for _, e := range exceptions {
		block := int(e.Offset) / wiidisc.SectorHashesSize
		offset := int(e.Offset) % wiidisc.SectorHashesSize
		if offset+len(e.Hash) > wiidisc.SectorHashesSize {
			return fmt.Errorf("%w: hash exception at %#x", ErrInvalidGroup, e.Offset)
		}
		copy(blocks[block][offset:], e.Hash[:])
	}
	return nil
}
