// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfidx

import (
	"fmt"

	"github.com/dwtools/dwarfindex/binreader"
)

// noStmtList marks an absent DW_AT_stmt_list, the role SIZE_MAX plays
// in drgn. Sibling and specification references have no sentinel
// offset: unlike drgn's NULL pointer, this Go port records "no
// sibling/specification" as hasSibling/hasSpecification == false
// rather than relying on offset 0 being unreachable (it can, in
// principle, be a real DIE offset for a relocatable object's very
// first CU). An absent decl_file is 0.
const noStmtList = ^uint64(0)

// die holds the attributes read_die extracts for one DIE: just
// enough to drive traversal and build a hash entry, never the DIE's
// full attribute set.
type die struct {
	hasSibling  bool
	sibling     uint64 // absolute .debug_info offset

	name []byte // borrowed from .debug_str or the DIE's own bytes

	stmtList uint64 // absolute .debug_line offset, or noStmtList

	declFile uint64 // 1-based; 0 means absent

	hasSpecification bool
	specification    uint64 // absolute .debug_info offset

	flags uint8 // tag (low 6 bits) | TAG_FLAG_*
}

// readDie decodes one DIE at r's current position using the byte-code
// program compiled for its abbreviation code, following drgn's
// read_die. It reports ok=false when the "DIE" is actually a NULL
// entry terminating a sibling chain (abbreviation code 0).
//
// cuStart/cuEnd bound sibling and specification references: both are
// offsets into debugInfo, and any reference outside [cuStart, cuEnd)
// is malformed input (ErrDwarfFormat), not a panic.
func readDie(r *binreader.Reader, table *abbrevTable, debugInfo []byte, cuStart, cuEnd uint64, debugStr []byte) (ok bool, d die, err error) {
	code, err := r.ULEB128()
	if err != nil {
		return false, d, fmt.Errorf("%w: DIE abbreviation code: %v", ErrDwarfFormat, err)
	}
	if code == 0 {
		return false, d, nil
	}
	if code < 1 || int(code) > len(table.decls) {
		return false, d, fmt.Errorf("%w: unknown abbreviation code %d", ErrDwarfFormat, code)
	}
	d.stmtList = noStmtList

	cmds := table.cmds[table.decls[code-1]:]
	ci := 0
	for {
		cmd := cmds[ci]
		ci++
		if cmd == 0 {
			break
		}

		switch cmd {
		case cmdBlock1Op:
			n, err := r.Uint8()
			if err != nil {
				return false, d, wrapDwarf("DIE block1 length", err)
			}
			if err := r.Skip(int(n)); err != nil {
				return false, d, wrapDwarf("DIE block1 body", err)
			}
		case cmdBlock2Op:
			n, err := r.Uint16()
			if err != nil {
				return false, d, wrapDwarf("DIE block2 length", err)
			}
			if err := r.Skip(int(n)); err != nil {
				return false, d, wrapDwarf("DIE block2 body", err)
			}
		case cmdBlock4Op:
			n, err := r.Uint32()
			if err != nil {
				return false, d, wrapDwarf("DIE block4 length", err)
			}
			if err := r.Skip(int(n)); err != nil {
				return false, d, wrapDwarf("DIE block4 body", err)
			}
		case cmdExprloc:
			n, err := r.ULEB128()
			if err != nil {
				return false, d, wrapDwarf("DIE exprloc length", err)
			}
			if err := r.Skip(int(n)); err != nil {
				return false, d, wrapDwarf("DIE exprloc body", err)
			}
		case cmdLEB128:
			if err := r.SkipLEB128(); err != nil {
				return false, d, wrapDwarf("DIE LEB128 attribute", err)
			}
		case cmdNameString:
			name, err := r.CString()
			if err != nil {
				return false, d, wrapDwarf("DIE inline name", err)
			}
			d.name = name
		case cmdString:
			if err := r.SkipCString(); err != nil {
				return false, d, wrapDwarf("DIE string attribute", err)
			}
		case cmdSiblingRef1, cmdSiblingRef2, cmdSiblingRef4, cmdSiblingRef8, cmdSiblingRefUdata:
			tmp, err := readRefOperand(r, cmd, cmdSiblingRef1, cmdSiblingRef2, cmdSiblingRef4, cmdSiblingRef8)
			if err != nil {
				return false, d, wrapDwarf("DIE sibling reference", err)
			}
			off := cuStart + tmp
			if off < cuStart || off >= cuEnd {
				return false, d, fmt.Errorf("%w: sibling reference out of bounds", ErrDwarfFormat)
			}
			d.hasSibling = true
			d.sibling = off
		case cmdNameStrp4, cmdNameStrp8:
			var tmp uint64
			var err error
			if cmd == cmdNameStrp4 {
				var v uint32
				v, err = r.Uint32()
				tmp = uint64(v)
			} else {
				tmp, err = r.Uint64()
			}
			if err != nil {
				return false, d, wrapDwarf("DIE name strp", err)
			}
			name, err := binreader.StringAt(debugStr, tmp)
			if err != nil {
				return false, d, fmt.Errorf("%w: name strp out of bounds: %v", ErrDwarfFormat, err)
			}
			d.name = name
		case cmdStmtListLineptr4:
			v, err := r.Uint32()
			if err != nil {
				return false, d, wrapDwarf("DIE stmt_list", err)
			}
			d.stmtList = uint64(v)
		case cmdStmtListLineptr8:
			v, err := r.Uint64()
			if err != nil {
				return false, d, wrapDwarf("DIE stmt_list", err)
			}
			d.stmtList = v
		case cmdDeclFileData1:
			v, err := r.Uint8()
			d.declFile = uint64(v)
			if err != nil {
				return false, d, wrapDwarf("DIE decl_file", err)
			}
		case cmdDeclFileData2:
			v, err := r.Uint16()
			d.declFile = uint64(v)
			if err != nil {
				return false, d, wrapDwarf("DIE decl_file", err)
			}
		case cmdDeclFileData4:
			v, err := r.Uint32()
			d.declFile = uint64(v)
			if err != nil {
				return false, d, wrapDwarf("DIE decl_file", err)
			}
		case cmdDeclFileData8:
			v, err := r.Uint64()
			d.declFile = v
			if err != nil {
				return false, d, wrapDwarf("DIE decl_file", err)
			}
		case cmdDeclFileUdata:
			v, err := r.ULEB128()
			d.declFile = v
			if err != nil {
				return false, d, wrapDwarf("DIE decl_file", err)
			}
		case cmdSpecificationRef1, cmdSpecificationRef2, cmdSpecificationRef4, cmdSpecificationRef8, cmdSpecificationRefUdata:
			tmp, err := readRefOperand(r, cmd, cmdSpecificationRef1, cmdSpecificationRef2, cmdSpecificationRef4, cmdSpecificationRef8)
			if err != nil {
				return false, d, wrapDwarf("DIE specification reference", err)
			}
			off := cuStart + tmp
			if off < cuStart || off >= cuEnd {
				return false, d, fmt.Errorf("%w: specification reference out of bounds", ErrDwarfFormat)
			}
			d.hasSpecification = true
			d.specification = off
		default:
			// A plain fixed-width skip, possibly coalesced with its
			// neighbors.
			if err := r.Skip(int(cmd)); err != nil {
				return false, d, wrapDwarf("DIE attribute", err)
			}
		}
	}

	d.flags = cmds[ci]
	return true, d, nil
}

// readRefOperand reads the fixed-width or ULEB128 operand of a
// sibling/specification reference command, returning the raw CU-
// relative value (not yet added to the CU's start offset).
func readRefOperand(r *binreader.Reader, cmd uint8, ref1, ref2, ref4, ref8 uint8) (uint64, error) {
	switch cmd {
	case ref1:
		v, err := r.Uint8()
		return uint64(v), err
	case ref2:
		v, err := r.Uint16()
		return uint64(v), err
	case ref4:
		v, err := r.Uint32()
		return uint64(v), err
	case ref8:
		return r.Uint64()
	default:
		return r.ULEB128()
	}
}

func wrapDwarf(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrDwarfFormat, what, err)
}
