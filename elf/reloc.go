// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"encoding/binary"
	"fmt"
)

// relaEntSize is sizeof(Elf64_Rela).
const relaEntSize = 24

const (
	offROffset = 0x00
	offRInfo   = 0x08
	offRAddend = 0x10
)

const (
	rX86_64None = 0
	rX86_64_32  = 10
	rX86_64_64  = 1
)

// NumRelocs returns the number of entries in a debug section's .rela
// companion.
func (f *File) NumRelocs(sec DebugSectionIndex) int {
	return len(f.RelaSections[sec].Buffer) / relaEntSize
}

// ApplyRelocation applies the i'th relocation in sec's .rela companion
// to sec's bytes in place, following drgn's apply_relocation. Only
// R_X86_64_NONE, R_X86_64_32, and R_X86_64_64 are supported; any other
// relocation type is ErrUnsupported.
func (f *File) ApplyRelocation(sec DebugSectionIndex, i int) error {
	rela := f.RelaSections[sec].Buffer
	ent := rela[i*relaEntSize:]
	offset := binary.LittleEndian.Uint64(ent[offROffset:])
	info := binary.LittleEndian.Uint64(ent[offRInfo:])
	addend := int64(binary.LittleEndian.Uint64(ent[offRAddend:]))

	symIdx := uint32(info >> 32)
	relType := uint32(info)

	target := f.DebugSections[sec].Buffer

	switch relType {
	case rX86_64None:
		return nil
	case rX86_64_32:
		if err := checkRelocBounds(offset, 4, uint64(len(target))); err != nil {
			return err
		}
		symVal, err := f.SymValue(symIdx)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(target[offset:], uint32(int64(symVal)+addend))
		return nil
	case rX86_64_64:
		if err := checkRelocBounds(offset, 8, uint64(len(target))); err != nil {
			return err
		}
		symVal, err := f.SymValue(symIdx)
		if err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(target[offset:], symVal+uint64(addend))
		return nil
	default:
		return fmt.Errorf("%w: relocation type %d", ErrUnsupported, relType)
	}
}

func checkRelocBounds(offset, size, sectionSize uint64) error {
	if size > sectionSize || offset > sectionSize-size {
		return fmt.Errorf("%w: invalid relocation offset", ErrElfFormat)
	}
	return nil
}

// ApplyAllRelocations applies every relocation in every present .rela
// section, in section then index order. Callers needing to
// parallelize this across files should instead drive ApplyRelocation
// directly over (section, index) pairs gathered from NumRelocs.
func (f *File) ApplyAllRelocations() error {
	for sec := DebugSectionIndex(0); sec < numDebugSections; sec++ {
		if f.RelaSections[sec].Buffer == nil {
			continue
		}
		for i := 0; i < f.NumRelocs(sec); i++ {
			if err := f.ApplyRelocation(sec, i); err != nil {
				return err
			}
		}
	}
	return nil
}
