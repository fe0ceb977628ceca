// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"encoding/binary"
	"fmt"
)

// symEntSize is sizeof(Elf64_Sym).
const symEntSize = 24

const offStValue = 0x08

// NumSyms returns the number of entries in the symbol table, including
// the reserved null entry at index 0.
func (f *File) NumSyms() int {
	return len(f.Symtab.Buffer) / symEntSize
}

// SymValue returns st_value for symbol index i.
func (f *File) SymValue(i uint32) (uint64, error) {
	if uint64(i) >= uint64(f.NumSyms()) {
		return 0, fmt.Errorf("%w: invalid relocation symbol %d", ErrElfFormat, i)
	}
	ent := f.Symtab.Buffer[uint64(i)*symEntSize:]
	return binary.LittleEndian.Uint64(ent[offStValue:]), nil
}
