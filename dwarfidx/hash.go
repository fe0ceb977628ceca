// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfidx

import "sync/atomic"

// dieHashShift and dieHashSize fix the name hash table at 2^17 slots,
// matching drgn's DIE_HASH_SHIFT. The table is never resized: Add
// fails with ErrOOM rather than growing it, since growing a table
// other goroutines may be concurrently probing would need a much more
// involved protocol than this single CAS-publish-then-release design.
const (
	dieHashShift = 17
	dieHashSize  = 1 << dieHashShift
	dieHashMask  = dieHashSize - 1
)

// dieHashEntry is one slot of the open-addressed name hash table.
// name and tag are the only fields readers synchronize on: name
// publishes the slot (via CAS, so exactly one writer wins a slot),
// and tag, written last with a release store, marks the slot as
// fully populated. A reader must acquire-load tag and spin until it
// sees a nonzero value before trusting fileNameHash/cu/dieOffset --
// those are plain fields, safe to read only after tag is observed
// nonzero.
type dieHashEntry struct {
	name         atomic.Pointer[string]
	fileNameHash uint64
	tag          atomic.Uint32
	cu           uint32
	dieOffset    uint64
}

// dieHashTable is the fixed-size table itself. The zero value is
// ready to use -- every slot starts empty (name == nil).
type dieHashTable struct {
	entries [dieHashSize]dieHashEntry
}

// insert publishes one DIE's name into the table, following drgn's
// add_die_hash_entry. If an entry with the same name, tag, and
// fileNameHash already exists, insert is a silent no-op: the same
// declaration reached via two different CUs (e.g. through a shared
// header) is not a duplicate entry.
func (t *dieHashTable) insert(name string, tag uint8, fileNameHash uint64, cu uint32, dieOffset uint64) error {
	i := nameHash([]byte(name)) & dieHashMask
	origI := i
	for {
		entry := &t.entries[i]

		existingName := entry.name.Load()
		if existingName == nil {
			candidate := name
			if entry.name.CompareAndSwap(nil, &candidate) {
				entry.fileNameHash = fileNameHash
				entry.cu = cu
				entry.dieOffset = dieOffset
				entry.tag.Store(uint32(tag))
				return nil
			}
			// Lost the race; fall through and re-examine the slot
			// another goroutine just claimed.
			existingName = entry.name.Load()
		}

		var existingTag uint32
		for {
			existingTag = entry.tag.Load()
			if existingTag != 0 {
				break
			}
		}

		if existingTag == uint32(tag) && entry.fileNameHash == fileNameHash &&
			existingName != nil && *existingName == name {
			return nil
		}

		i = (i + 1) & dieHashMask
		if i == origI {
			return ErrOOM
		}
	}
}

// dieHashMatch is one hash-table hit returned by find.
type dieHashMatch struct {
	cu        uint32
	dieOffset uint64
}

// find probes the table for every entry matching name and, if tag is
// nonzero, also matching tag, following drgn's DwarfIndex_find. It
// stops at the first empty slot or once it has wrapped back to its
// start.
func (t *dieHashTable) find(name string, tag uint8) []dieHashMatch {
	i := nameHash([]byte(name)) & dieHashMask
	origI := i
	var matches []dieHashMatch
	for {
		entry := &t.entries[i]
		entryName := entry.name.Load()
		if entryName == nil {
			break
		}

		var entryTag uint32
		for {
			entryTag = entry.tag.Load()
			if entryTag != 0 {
				break
			}
		}

		if (tag == 0 || uint8(entryTag) == tag) && *entryName == name {
			matches = append(matches, dieHashMatch{cu: entry.cu, dieOffset: entry.dieOffset})
		}

		i = (i + 1) & dieHashMask
		if i == origI {
			break
		}
	}
	return matches
}
