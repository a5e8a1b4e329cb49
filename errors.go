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

import "errors"

// Allocation limits to prevent DoS from malicious container files.
const (
	// MaxGroupEntries is the maximum number of group entries (10M groups is
	// ~20TB of image data at WIA's 2MB minimum chunk size, ~320GB at RVZ's
	// 32KB minimum).
	MaxGroupEntries = 10_000_000

	// MaxPartitionEntries is the maximum number of partition entries.
	MaxPartitionEntries = 256

	// MaxRawDataEntries is the maximum number of raw data entries.
	MaxRawDataEntries = 100_000

	// MaxExceptionsPerList bounds one hash-exception list: every hash slot
	// of every sector in a group (31 H0 + 8 H1 + 8 H2 per sector).
	MaxExceptionsPerList = (31 + 8 + 8) * 64

	// MaxChunkSize is the largest accepted chunk size (128MB). Real files
	// stay at or below 64MB; this bounds decompression buffers.
	MaxChunkSize = 0x8000000
)

// Common errors for WIA/RVZ parsing and conversion.
var (
	// ErrInvalidMagic indicates the file is neither WIA nor RVZ.
	ErrInvalidMagic = errors.New("invalid magic: expected WIA or RVZ")

	// ErrUnsupportedVersion indicates an incompatible format version.
	ErrUnsupportedVersion = errors.New("unsupported format version")

	// ErrInvalidHeader indicates a malformed or hash-mismatched header or
	// entry table.
	ErrInvalidHeader = errors.New("invalid header")

	// ErrUnsupportedCompression indicates an unknown compression type or a
	// compression level outside the allowed range.
	ErrUnsupportedCompression = errors.New("unsupported compression")

	// ErrDecompressFailed indicates a codec error or a stream that ended
	// before producing the declared amount of data.
	ErrDecompressFailed = errors.New("decompression failed")

	// ErrCompressFailed indicates a codec error while writing.
	ErrCompressFailed = errors.New("compression failed")

	// ErrTruncated indicates the file is shorter than its tables declare.
	ErrTruncated = errors.New("truncated file")

	// ErrCorruptData indicates data corruption was detected.
	ErrCorruptData = errors.New("data corruption detected")

	// ErrInvalidGroup indicates an out-of-range or inconsistent group entry.
	ErrInvalidGroup = errors.New("invalid group entry")

	// ErrCanceled is returned when the progress callback aborted a
	// conversion.
	ErrCanceled = errors.New("conversion canceled")

	// ErrInternal indicates a violated internal invariant, such as a read
	// past the end of a cached group.
	ErrInternal = errors.New("internal error")
)
