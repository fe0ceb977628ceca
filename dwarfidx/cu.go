// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfidx

import (
	"fmt"

	"github.com/dwtools/dwarfindex/arch"
	"github.com/dwtools/dwarfindex/binreader"
)

// compilationUnit is one compilation unit header, plus the file and
// absolute .debug_info offset it was read from. Every CU across every
// indexed file lives in one flat slice so that CU index (not a
// pointer) can identify a CU compactly in a hash entry.
type compilationUnit struct {
	file int // index into Index.files

	// offset is this CU's absolute byte offset into its file's
	// .debug_info section -- the same role cu->ptr plays in drgn,
	// represented as an offset because Go has no raw pointers.
	offset uint64

	unitLength        uint64
	version            uint16
	debugAbbrevOffset  uint64
	addressSize        uint8
	is64Bit            bool
}

// headerSize returns the length, in bytes, of the initial length
// field plus version/address_size/abbrev_offset header fields --
// i.e. the offset from the start of the CU to its first DIE.
func (cu *compilationUnit) headerSize() uint64 {
	if cu.is64Bit {
		return 23
	}
	return 11
}

// end returns the absolute offset just past this CU's last byte.
func (cu *compilationUnit) end() uint64 {
	lengthFieldSize := uint64(4)
	if cu.is64Bit {
		lengthFieldSize = 12
	}
	return cu.offset + lengthFieldSize + cu.unitLength
}

// readCUHeader reads one compilation unit header starting at offset
// off in debugInfo, following drgn's read_compilation_unit_header.
func readCUHeader(debugInfo []byte, off uint64) (*compilationUnit, error) {
	r := binreader.NewAt(debugInfo, int(off))

	tmp, err := r.Uint32()
	if err != nil {
		return nil, fmt.Errorf("%w: CU initial length: %v", ErrDwarfFormat, err)
	}
	cu := &compilationUnit{offset: off}
	cu.is64Bit = tmp == 0xffffffff
	if cu.is64Bit {
		cu.unitLength, err = r.Uint64()
	} else {
		cu.unitLength = uint64(tmp)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: CU unit_length: %v", ErrDwarfFormat, err)
	}

	version, err := r.Uint16()
	if err != nil {
		return nil, fmt.Errorf("%w: CU version: %v", ErrDwarfFormat, err)
	}
	if version != 2 && version != 3 && version != 4 {
		return nil, fmt.Errorf("%w: unknown DWARF version %d", ErrDwarfFormat, version)
	}
	cu.version = version

	if cu.is64Bit {
		cu.debugAbbrevOffset, err = r.Uint64()
	} else {
		var v32 uint32
		v32, err = r.Uint32()
		cu.debugAbbrevOffset = uint64(v32)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: CU debug_abbrev_offset: %v", ErrDwarfFormat, err)
	}

	addrSize, err := r.Uint8()
	if err != nil {
		return nil, fmt.Errorf("%w: CU address_size: %v", ErrDwarfFormat, err)
	}
	if addrSize != arch.AddressSize {
		return nil, fmt.Errorf("%w: CU address_size %d (only %d-byte addresses are supported)", ErrUnsupported, addrSize, arch.AddressSize)
	}
	cu.addressSize = addrSize

	return cu, nil
}

// readCUHeaders walks every compilation unit in debugInfo and returns
// their headers in file order, following drgn's read_cus.
func readCUHeaders(debugInfo []byte) ([]*compilationUnit, error) {
	var cus []*compilationUnit
	off := uint64(0)
	for off < uint64(len(debugInfo)) {
		cu, err := readCUHeader(debugInfo, off)
		if err != nil {
			return nil, err
		}
		cus = append(cus, cu)
		off = cu.end()
	}
	return cus, nil
}
