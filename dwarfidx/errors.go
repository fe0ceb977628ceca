// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfidx

import "errors"

// ErrDwarfFormat is returned for structurally invalid DWARF input:
// an unknown version, an unknown attribute form, an out-of-bounds
// reference, and so on.
var ErrDwarfFormat = errors.New("dwarfidx: malformed DWARF data")

// ErrUnsupported is returned for well-formed DWARF this index
// intentionally does not handle, such as DW_FORM_indirect or a
// non-sequential abbreviation table.
var ErrUnsupported = errors.New("dwarfidx: unsupported DWARF feature")

// ErrNotFound is returned by Find when no DIE matches the query.
var ErrNotFound = errors.New("dwarfidx: no matching DIE")

// ErrOOM is returned when the name hash table fills up: every slot
// on the probe sequence from a name's home bucket back to itself is
// already occupied by a different name. With a 2^17-slot table this
// should not happen for any realistic object file; seeing it usually
// means far too many distinct names were indexed into one table.
var ErrOOM = errors.New("dwarfidx: DIE hash table is full")
