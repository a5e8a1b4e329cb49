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

import "sync"

// reuseID identifies a group whose bytes are a canonical repeated pattern,
// so its compressed blob can be shared between groups. The partition key is
// held by value: two groups reuse each other only within the same partition
// (or both outside any partition), at the same size, storage kind and fill
// byte.
type reuseID struct {
	partitionKey [16]byte
	dataSize     uint64
	encrypted    bool
	value        byte
}

// reuseTable maps reuse IDs to already-emitted group entries. It is shared
// between the compression workers and the output stage; the mutex is held
// only for the map operation, never across I/O.
type reuseTable struct {
	mu     sync.Mutex
	groups map[reuseID]GroupEntry
}

func (t *reuseTable) lookup(id reuseID) (GroupEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.groups[id]
	return g, ok
}

// insert records entry for id unless another group already claimed it.
func (t *reuseTable) insert(id reuseID, entry GroupEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.groups == nil {
		t.groups = make(map[reuseID]GroupEntry)
	}
	if _, ok := t.groups[id]; !ok {
		t.groups[id] = entry
	}
}

// allSameByte reports whether p is non-empty and every byte equals p[0].
func allSameByte(p []byte) bool {
	if len(p) == 0 {
		return false
	}
	for _, b := range p[1:] {
		if b != p[0] {
			return false
		}
	}
	return true
}
