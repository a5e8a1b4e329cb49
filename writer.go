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
	"runtime"

	"github.com/ZaparooProject/go-wia/internal/pipeline"
	"github.com/ZaparooProject/go-wia/wiidisc"
)

// Default chunk sizes: WIA requires whole Wii sector groups; RVZ defaults to
// smaller chunks for better random access.
const (
	DefaultWIAChunkSize uint32 = wiidisc.GroupSize
	DefaultRVZChunkSize uint32 = 0x20000
)

// PartitionRange is one contiguous data area of a Wii partition, counted in
// 0x8000-byte sectors.
type PartitionRange struct {
	FirstSector     uint32
	NumberOfSectors uint32
}

// VolumePartition describes one Wii partition of the source disc: its title
// key and up to two data areas (the main data and the secondary area,
// matching the container's two data entry slots).
type VolumePartition struct {
	Key       [16]byte
	DataAreas [2]PartitionRange
}

// VolumeDisc supplies the disc layout a conversion needs. A nil VolumeDisc
// converts the whole image as raw data, which is correct for GameCube
// discs.
type VolumeDisc interface {
	// Partitions returns the Wii partitions in ascending disc order.
	Partitions() []VolumePartition

	// JunkRegions returns the known runs of generator-produced filler,
	// with offsets in absolute image coordinates. Only consulted when
	// writing RVZ.
	JunkRegions() []JunkRegion
}

// Progress is a snapshot of conversion state passed to the callback.
type Progress struct {
	GroupsWritten uint32
	TotalGroups   uint32
	BytesRead     uint64
	BytesWritten  uint64
}

// ProgressFunc is invoked after every work unit. Returning a non-nil error
// aborts the conversion, which then fails with ErrCanceled.
type ProgressFunc func(Progress) error

// ConvertOptions configures a conversion.
type ConvertOptions struct {
	// RVZ selects the RVZ variant instead of WIA.
	RVZ bool

	// Compression and CompressionLevel select the codec for entry tables
	// and group data.
	Compression      CompressionType
	CompressionLevel int

	// ChunkSize is the group size in bytes; zero selects the default for
	// the chosen variant.
	ChunkSize uint32

	// Workers is the number of compression goroutines; zero means
	// runtime.NumCPU.
	Workers int

	// Progress, when non-nil, receives a callback after every work unit.
	Progress ProgressFunc
}

// Convert writes src, a raw disc image of isoSize bytes, to dst as a WIA or
// RVZ container. volume supplies partition keys and layout for Wii discs
// and may be nil. The conversion is single-pass: dst is written once and
// the headers are patched at the end.
func Convert(src io.ReaderAt, isoSize uint64, volume VolumeDisc, dst io.WriteSeeker, opts ConvertOptions) error {
	if opts.ChunkSize == 0 {
		if opts.RVZ {
			opts.ChunkSize = DefaultRVZChunkSize
		} else {
			opts.ChunkSize = DefaultWIAChunkSize
		}
	}
	if opts.Compression > CompressionZstd {
		return fmt.Errorf("%w: type %d", ErrUnsupportedCompression, uint32(opts.Compression))
	}
	if opts.RVZ && opts.Compression == CompressionPurge {
		return fmt.Errorf("%w: purge is not valid in RVZ", ErrUnsupportedCompression)
	}
	if err := validateChunkSize(uint64(opts.ChunkSize), opts.RVZ); err != nil {
		return err
	}

	// Validates the level and fixes the codec parameters for header 2.
	_, compressorData, err := newCompressor(opts.Compression, opts.CompressionLevel)
	if err != nil {
		return err
	}

	plan, err := planDataEntries(volume, uint64(opts.ChunkSize), isoSize)
	if err != nil {
		return err
	}

	c := &converter{
		src:            src,
		dst:            dst,
		isoSize:        isoSize,
		rvz:            opts.RVZ,
		compression:    opts.Compression,
		level:          opts.CompressionLevel,
		chunkSize:      uint64(opts.ChunkSize),
		compressorData: compressorData,
		plan:           plan,
		progress:       opts.Progress,
	}
	if volume != nil && opts.RVZ {
		c.junk = volume.JunkRegions()
	}

	return c.run(opts.Workers)
}

// conversionPlan is the up-front layout of the output: the partition and
// raw data tables with their group index assignments.
type conversionPlan struct {
	discType    uint32
	partitions  []PartitionEntry
	rawData     []RawDataEntry
	dataEntries []dataEntry
	totalGroups uint32
}

// planDataEntries walks the volume and carves the image into partition data
// areas and raw data entries covering everything else. Group table slots
// are assigned contiguously in that order. The first 0x80 bytes are left to
// the disc header copy in header 2.
func planDataEntries(volume VolumeDisc, chunkSize, isoSize uint64) (*conversionPlan, error) {
	p := &conversionPlan{discType: DiscTypeGameCube}

	type span struct{ start, end uint64 }
	var covered []span

	if volume != nil {
		for _, vp := range volume.Partitions() {
			index := len(p.partitions)
			pe := PartitionEntry{PartitionKey: vp.Key}

			for d, area := range vp.DataAreas {
				if area.NumberOfSectors == 0 {
					continue
				}
				start := uint64(area.FirstSector) * wiidisc.SectorSize
				size := uint64(area.NumberOfSectors) * wiidisc.SectorSize
				if start+size > isoSize {
					return nil, fmt.Errorf("%w: partition data [%#x, +%#x) outside image",
						ErrInternal, start, size)
				}

				groups := (size + chunkSize - 1) / chunkSize
				pe.DataEntries[d] = PartitionDataEntry{
					FirstSector:     area.FirstSector,
					NumberOfSectors: area.NumberOfSectors,
					GroupIndex:      p.totalGroups,
					NumberOfGroups:  uint32(groups),
				}
				p.dataEntries = append(p.dataEntries, dataEntry{
					start:       start,
					size:        size,
					isPartition: true,
					index:       index,
					partData:    d,
				})
				covered = append(covered, span{start, start + size})
				p.totalGroups += uint32(groups)
			}

			p.partitions = append(p.partitions, pe)
		}
		if len(p.partitions) > 0 {
			p.discType = DiscTypeWii
		}
	}

	for i := 1; i < len(covered); i++ {
		if covered[i].start < covered[i-1].end {
			return nil, fmt.Errorf("%w: partition data areas overlap", ErrInternal)
		}
	}

	addRaw := func(offset, size uint64) {
		// The disc header bytes live in header 2, not in a raw entry.
		if offset < uint64(len(header2{}.DiscHeader)) {
			skip := min(uint64(len(header2{}.DiscHeader))-offset, size)
			offset += skip
			size -= skip
		}
		if size == 0 {
			return
		}

		groups := groupCountForSpan(offset, size, chunkSize)
		p.rawData = append(p.rawData, RawDataEntry{
			DataOffset:     offset,
			DataSize:       size,
			GroupIndex:     p.totalGroups,
			NumberOfGroups: uint32(groups),
		})
		p.dataEntries = append(p.dataEntries, dataEntry{
			start: offset,
			size:  size,
			index: len(p.rawData) - 1,
		})
		p.totalGroups += uint32(groups)
	}

	pos := uint64(0)
	covered = append(covered, span{isoSize, isoSize})
	for _, s := range covered {
		if pos < s.start {
			addRaw(pos, s.start-pos)
		}
		pos = max(pos, s.end)
	}

	return p, nil
}

// compressParams is one unit of work for the compression pipeline: a chunk
// of a raw data entry, or max(chunk size, one Wii sector group) bytes of
// partition data (less at the end of the data area).
type compressParams struct {
	data       []byte
	entry      *dataEntry
	dataOffset uint64
	groupIndex uint32
}

// outputEntry is one finished group awaiting the collector.
type outputEntry struct {
	exceptions []byte
	mainData   []byte
	compressed bool
	zero       bool
	reuseID    *reuseID
	reused     *GroupEntry
}

type outputParams struct {
	entries    []outputEntry
	groupIndex uint32
	bytesRead  uint64
}

// compressState is the per-worker scratch state: each worker owns its codec
// instance and never shares it.
type compressState struct {
	comp compressor
}

type converter struct {
	src     io.ReaderAt
	dst     io.WriteSeeker
	isoSize uint64

	rvz            bool
	compression    CompressionType
	level          int
	chunkSize      uint64
	compressorData []byte

	plan *conversionPlan
	junk []JunkRegion

	reuse  reuseTable
	groups []GroupEntry

	discHeader [0x80]byte

	pos           uint64
	groupsWritten uint32
	bytesRead     uint64
	progress      ProgressFunc

	prodErr error
}

func (c *converter) run(workers int) error {
	if _, err := c.src.ReadAt(c.discHeader[:min(uint64(len(c.discHeader)), c.isoSize)], 0); err != nil && err != io.EOF {
		return fmt.Errorf("read disc header: %w", err)
	}

	if _, err := c.dst.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek output: %w", err)
	}

	// Reserve space for both headers; they are patched last.
	if err := c.write(make([]byte, header1Size+header2Size)); err != nil {
		return err
	}

	partitionBytes := marshalBE(c.plan.partitions)
	partitionOffset := c.pos
	if err := c.write(partitionBytes); err != nil {
		return err
	}

	if err := c.padTo4(); err != nil {
		return err
	}
	rawTable, err := c.compressTable(marshalBE(c.plan.rawData))
	if err != nil {
		return err
	}
	rawTableOffset := c.pos
	if err := c.write(rawTable); err != nil {
		return err
	}

	c.groups = make([]GroupEntry, c.plan.totalGroups)
	if err := c.processGroups(workers); err != nil {
		return err
	}

	if err := c.padTo4(); err != nil {
		return err
	}
	groupTable, err := c.compressTable(marshalBE(c.groups))
	if err != nil {
		return err
	}
	groupTableOffset := c.pos
	if err := c.write(groupTable); err != nil {
		return err
	}

	return c.writeHeaders(headerLayout{
		partitionOffset:  partitionOffset,
		partitionHash:    sha1.Sum(partitionBytes), //nolint:gosec
		rawTableOffset:   rawTableOffset,
		rawTableSize:     uint32(len(rawTable)),
		groupTableOffset: groupTableOffset,
		groupTableSize:   uint32(len(groupTable)),
	})
}

type headerLayout struct {
	partitionOffset  uint64
	partitionHash    [sha1.Size]byte
	rawTableOffset   uint64
	rawTableSize     uint32
	groupTableOffset uint64
	groupTableSize   uint32
}

func (c *converter) writeHeaders(layout headerLayout) error {
	h2 := header2{
		DiscType:               c.plan.discType,
		Compression:            uint32(c.compression),
		CompressionLevel:       uint32(c.level),
		ChunkSize:              uint32(c.chunkSize),
		DiscHeader:             c.discHeader,
		NumPartitionEntries:    uint32(len(c.plan.partitions)),
		PartitionEntrySize:     partitionEntrySize,
		PartitionEntriesOffset: layout.partitionOffset,
		PartitionEntriesHash:   layout.partitionHash,
		NumRawDataEntries:      uint32(len(c.plan.rawData)),
		RawDataEntriesOffset:   layout.rawTableOffset,
		RawDataEntriesSize:     layout.rawTableSize,
		NumGroupEntries:        c.plan.totalGroups,
		GroupEntriesOffset:     layout.groupTableOffset,
		GroupEntriesSize:       layout.groupTableSize,
		CompressorDataSize:     uint8(len(c.compressorData)),
	}
	copy(h2.CompressorData[:], c.compressorData)
	h2Bytes := marshalBE(&h2)

	version, writeCompatible := wiaVersion, wiaVersionWriteCompatible
	magic := WIAMagic
	if c.rvz {
		version, writeCompatible = rvzVersion, rvzVersionWriteCompatible
		magic = RVZMagic
	}

	h1 := header1{
		Magic:             magic,
		Version:           version,
		VersionCompatible: writeCompatible,
		Header2Size:       header2Size,
		Header2Hash:       sha1.Sum(h2Bytes), //nolint:gosec
		ISOFileSize:       c.isoSize,
		WIAFileSize:       c.pos,
	}
	h1Bytes := marshalBE(&h1)
	h1.Header1Hash = sha1.Sum(h1Bytes[:header1Size-sha1.Size]) //nolint:gosec
	h1Bytes = marshalBE(&h1)

	if _, err := c.dst.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek output: %w", err)
	}
	if _, err := c.dst.Write(h1Bytes); err != nil {
		return fmt.Errorf("write header 1: %w", err)
	}
	if _, err := c.dst.Write(h2Bytes); err != nil {
		return fmt.Errorf("write header 2: %w", err)
	}
	return nil
}

// processGroups runs the producer, worker pool and ordered collector.
func (c *converter) processGroups(workers int) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	pool := pipeline.New(workers, workers*2,
		func() *compressState { return &compressState{} },
		c.processUnit)

	go c.produce(pool)

	for {
		out, ok, err := pool.Next()
		if !ok {
			break
		}
		if err == nil {
			err = c.emit(out)
		}
		if err != nil {
			pool.Abort()
			// Drain so the producer and workers wind down.
			for {
				if _, ok, _ := pool.Next(); !ok {
					break
				}
			}
			return err
		}
	}

	return c.prodErr
}

// produce reads source bytes sequentially and enqueues work units with
// monotonically increasing group indices. Only the producer touches the
// source.
func (c *converter) produce(pool *pipeline.Pool[compressParams, outputParams]) {
	defer pool.CloseInput()

	submit := func(offset, size uint64, entry *dataEntry, groupIndex uint32) bool {
		buf := make([]byte, size)
		if n, err := c.src.ReadAt(buf, int64(offset)); err != nil && !(err == io.EOF && n == len(buf)) {
			c.prodErr = fmt.Errorf("read source at %#x: %w", offset, err)
			return false
		}
		return pool.Submit(compressParams{
			data:       buf,
			entry:      entry,
			dataOffset: offset,
			groupIndex: groupIndex,
		})
	}

	for i := range c.plan.dataEntries {
		e := &c.plan.dataEntries[i]

		if e.isPartition {
			pde := c.plan.partitions[e.index].DataEntries[e.partData]
			unit := max(c.chunkSize, wiidisc.GroupSize)
			groupsPerUnit := uint32(unit / c.chunkSize)
			for off, ui := uint64(0), uint32(0); off < e.size; off, ui = off+unit, ui+1 {
				if !submit(e.start+off, min(unit, e.size-off), e, pde.GroupIndex+ui*groupsPerUnit) {
					return
				}
			}
			continue
		}

		re := c.plan.rawData[e.index]
		base := re.DataOffset - re.DataOffset%c.chunkSize
		for g := uint32(0); g < re.NumberOfGroups; g++ {
			start := max(base+uint64(g)*c.chunkSize, re.DataOffset)
			end := min(base+uint64(g+1)*c.chunkSize, re.DataOffset+re.DataSize)
			if !submit(start, end-start, e, re.GroupIndex+g) {
				return
			}
		}
	}
}

// processUnit transforms one work unit on a worker goroutine.
func (c *converter) processUnit(s *compressState, p compressParams) (outputParams, error) {
	if s.comp == nil {
		comp, _, err := newCompressor(c.compression, c.level)
		if err != nil {
			return outputParams{}, err
		}
		s.comp = comp
	}

	if p.entry.isPartition {
		return c.processPartitionUnit(s, p)
	}

	out := outputParams{groupIndex: p.groupIndex, bytesRead: uint64(len(p.data))}
	entry, err := c.buildEntry(s, nil, p.data, p.dataOffset, c.junk, true, [16]byte{}, false)
	if err != nil {
		return outputParams{}, err
	}
	out.entries = append(out.entries, entry)
	return out, nil
}

// processPartitionUnit decrypts the Wii sector groups of one unit (one group,
// or several when the chunk size exceeds a group), recomputes the canonical
// hashes, derives the exception lists and splits the result into chunk-sized
// groups.
func (c *converter) processPartitionUnit(s *compressState, p compressParams) (outputParams, error) {
	key := c.plan.partitions[p.entry.index].PartitionKey
	sectors := len(p.data) / wiidisc.SectorSize
	numGroups := (sectors + wiidisc.SectorsPerGroup - 1) / wiidisc.SectorsPerGroup

	plain := make([]byte, numGroups*wiidisc.GroupDataSize)
	perSector := make([][]HashExceptionEntry, sectors)

	var stored, canonical [wiidisc.SectorsPerGroup]wiidisc.HashBlock
	for wg := range numGroups {
		gs := min(wiidisc.SectorsPerGroup, sectors-wg*wiidisc.SectorsPerGroup)
		groupPlain := plain[wg*wiidisc.GroupDataSize : (wg+1)*wiidisc.GroupDataSize]

		if err := wiidisc.DecryptGroup(key, p.data[wg*wiidisc.GroupSize:],
			groupPlain[:gs*wiidisc.SectorDataSize], &stored, gs); err != nil {
			return outputParams{}, err
		}
		wiidisc.HashGroup(groupPlain, &canonical)

		for sec := range gs {
			for _, off := range wiidisc.HashSlots() {
				if !bytes.Equal(stored[sec][off:off+wiidisc.HashSize], canonical[sec][off:off+wiidisc.HashSize]) {
					var h [wiidisc.HashSize]byte
					copy(h[:], stored[sec][off:])
					perSector[wg*wiidisc.SectorsPerGroup+sec] = append(
						perSector[wg*wiidisc.SectorsPerGroup+sec],
						HashExceptionEntry{Offset: uint16(off), Hash: h})
				}
			}
		}
	}

	sectorsPerChunk := int(c.chunkSize / wiidisc.SectorSize)
	sectorsPerList := min(wiidisc.SectorsPerGroup, sectorsPerChunk)
	listsPerChunk := max(1, sectorsPerChunk/wiidisc.SectorsPerGroup)
	chunkData := sectorsPerChunk * wiidisc.SectorDataSize
	numEntries := (sectors + sectorsPerChunk - 1) / sectorsPerChunk
	plainLen := sectors * wiidisc.SectorDataSize
	rangePlainStart := (p.dataOffset - p.entry.start) / wiidisc.SectorSize * wiidisc.SectorDataSize

	out := outputParams{groupIndex: p.groupIndex, bytesRead: uint64(len(p.data))}
	for ci := range numEntries {
		firstSector := ci * sectorsPerChunk

		lists := make([][]HashExceptionEntry, listsPerChunk)
		for l := range listsPerChunk {
			listFirst := firstSector + l*sectorsPerList
			for sec := listFirst; sec < min(listFirst+sectorsPerList, sectors); sec++ {
				for _, e := range perSector[sec] {
					lists[l] = append(lists[l], HashExceptionEntry{
						Offset: uint16((sec-listFirst)*wiidisc.SectorHashesSize) + e.Offset,
						Hash:   e.Hash,
					})
				}
			}
		}

		start := ci * chunkData
		end := min(start+chunkData, plainLen)
		entry, err := c.buildEntry(s, lists, plain[start:end],
			rangePlainStart+uint64(start), nil, false, key, true)
		if err != nil {
			return outputParams{}, err
		}
		out.entries = append(out.entries, entry)
	}

	return out, nil
}

// buildEntry runs the shared tail of the group pipeline: zero elision,
// reuse detection, RVZ packing and compression.
func (c *converter) buildEntry(s *compressState, lists [][]HashExceptionEntry, mainData []byte,
	packDataOffset uint64, junk []JunkRegion, allowJunkReuse bool, key [16]byte, partition bool,
) (outputEntry, error) {
	exBytes := serializeExceptionLists(lists)
	noExceptions := true
	for _, l := range lists {
		if len(l) > 0 {
			noExceptions = false
		}
	}

	if c.rvz && noExceptions && isZero(mainData) {
		return outputEntry{zero: true}, nil
	}

	var entry outputEntry
	if noExceptions && allSameByte(mainData) {
		id := reuseID{
			partitionKey: key,
			dataSize:     uint64(len(mainData)),
			encrypted:    !partition,
			value:        mainData[0],
		}
		entry.reuseID = &id
		if g, ok := c.reuse.lookup(id); ok {
			entry.reused = &g
			return entry, nil
		}
	}

	payload := mainData
	if c.rvz {
		payload = rvzPack(mainData, packDataOffset, junk, allowJunkReuse)
	}

	storeRaw := func() {
		entry.exceptions = padExceptions(exBytes, c.rvz)
		entry.mainData = payload
	}

	switch {
	case c.compression == CompressionNone:
		storeRaw()

	case c.rvz:
		compressed, err := compressAll(s.comp, exBytes, payload)
		if err != nil {
			return outputEntry{}, err
		}
		if len(compressed) < len(padExceptions(exBytes, true))+len(payload) {
			entry.mainData = compressed
			entry.compressed = true
		} else {
			storeRaw()
		}

	case c.compression == CompressionPurge:
		if err := s.comp.Start(uint64(len(mainData))); err != nil {
			return outputEntry{}, err
		}
		if err := s.comp.AddPrecedingData(exBytes); err != nil {
			return outputEntry{}, err
		}
		if err := s.comp.Compress(mainData); err != nil {
			return outputEntry{}, err
		}
		if err := s.comp.End(); err != nil {
			return outputEntry{}, err
		}
		entry.exceptions = exBytes
		entry.mainData = append([]byte(nil), s.comp.Bytes()...)
		entry.compressed = true

	default:
		compressed, err := compressAll(s.comp, exBytes, payload)
		if err != nil {
			return outputEntry{}, err
		}
		entry.mainData = compressed
		entry.compressed = true
	}

	return entry, nil
}

// compressAll compresses the exception lists followed by the payload into
// one stream and returns a private copy of the result.
func compressAll(comp compressor, exBytes, payload []byte) ([]byte, error) {
	if err := comp.Start(uint64(len(exBytes) + len(payload))); err != nil {
		return nil, err
	}
	if err := comp.Compress(exBytes); err != nil {
		return nil, err
	}
	if err := comp.Compress(payload); err != nil {
		return nil, err
	}
	if err := comp.End(); err != nil {
		return nil, err
	}
	return append([]byte(nil), comp.Bytes()...), nil
}

// emit writes one unit's groups in submission order and finalizes their
// group entries.
func (c *converter) emit(out outputParams) error {
	for i := range out.entries {
		e := &out.entries[i]
		gi := out.groupIndex + uint32(i)
		if uint64(gi) >= uint64(len(c.groups)) {
			return fmt.Errorf("%w: group index %d of %d", ErrInternal, gi, len(c.groups))
		}

		switch {
		case e.zero:
			c.groups[gi] = GroupEntry{}

		case e.reused != nil:
			c.groups[gi] = *e.reused

		default:
			if e.reuseID != nil {
				// A concurrent worker may have emitted this pattern since
				// the worker-side lookup.
				if g, ok := c.reuse.lookup(*e.reuseID); ok {
					c.groups[gi] = g
					continue
				}
			}

			if err := c.padTo4(); err != nil {
				return err
			}

			size := uint64(len(e.exceptions) + len(e.mainData))
			if size >= uint64(rvzCompressedBit) {
				return fmt.Errorf("%w: group of %#x bytes", ErrInternal, size)
			}

			g := GroupEntry{DataOffset: uint32(c.pos >> 2), DataSize: uint32(size)}
			if c.rvz && e.compressed {
				g.DataSize |= rvzCompressedBit
			}

			if err := c.write(e.exceptions); err != nil {
				return err
			}
			if err := c.write(e.mainData); err != nil {
				return err
			}

			c.groups[gi] = g
			if e.reuseID != nil {
				c.reuse.insert(*e.reuseID, g)
			}
		}
	}

	c.groupsWritten += uint32(len(out.entries))
	c.bytesRead += out.bytesRead

	if c.progress != nil {
		if err := c.progress(Progress{
			GroupsWritten: c.groupsWritten,
			TotalGroups:   c.plan.totalGroups,
			BytesRead:     c.bytesRead,
			BytesWritten:  c.pos,
		}); err != nil {
			return fmt.Errorf("%w: %w", ErrCanceled, err)
		}
	}

	return nil
}

// compressTable compresses one serialized entry table with the file codec.
func (c *converter) compressTable(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	comp, _, err := newCompressor(c.compression, c.level)
	if err != nil {
		return nil, err
	}
	if err := comp.Start(uint64(len(data))); err != nil {
		return nil, err
	}
	if err := comp.Compress(data); err != nil {
		return nil, err
	}
	if err := comp.End(); err != nil {
		return nil, err
	}
	return append([]byte(nil), comp.Bytes()...), nil
}

func (c *converter) write(p []byte) error {
	n, err := c.dst.Write(p)
	c.pos += uint64(n)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

var pad4 [4]byte

func (c *converter) padTo4() error {
	if pad := (4 - c.pos%4) % 4; pad != 0 {
		return c.write(pad4[:pad])
	}
	return nil
}

// serializeExceptionLists renders each list as a big-endian u16 count
// followed by its entries.
func serializeExceptionLists(lists [][]HashExceptionEntry) []byte {
	if lists == nil {
		return nil
	}
	var buf []byte
	for _, list := range lists {
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(list)))
		for _, e := range list {
			buf = binary.BigEndian.AppendUint16(buf, e.Offset)
			buf = append(buf, e.Hash[:]...)
		}
	}
	return buf
}

// padExceptions pads raw exception lists to a 4-byte boundary; only RVZ
// aligns the payload of uncompressed groups.
func padExceptions(exBytes []byte, rvz bool) []byte {
	if !rvz {
		return exBytes
	}
	if pad := (4 - len(exBytes)%4) % 4; pad != 0 {
		padded := make([]byte, len(exBytes)+pad)
		copy(padded, exBytes)
		return padded
	}
	return exBytes
}

// marshalBE serializes fixed-size structures big-endian.
func marshalBE(v any) []byte {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
		// Only fixed-size types reach here.
		panic(err)
	}
	return buf.Bytes()
}

// isZero reports whether every byte of p is zero.
func isZero(p []byte) bool {
	for _, b := range p {
		if b != 0 {
			return false
		}
	}
	return true
}
