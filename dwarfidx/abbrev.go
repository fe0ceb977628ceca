// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfidx

import (
	"fmt"

	"github.com/dwtools/dwarfindex/binreader"
)

// Abbreviation byte-code opcodes. Values 1-229 mean "skip this many
// bytes" and are coalesced across consecutive fixed-width attributes
// by the compiler below; 0 terminates a declaration's command list
// (followed by one more byte packing its tag and TAG_FLAG_* bits).
// Values above cmdMaxSkip select one of the variable-width or
// specially-handled attribute readers.
const cmdMaxSkip = 229

// The variable-width opcodes, following drgn's ATTRIB_* enum, which
// starts immediately after CMD_MAX_SKIP.
const (
	cmdBlock1Op = cmdMaxSkip + 1 + iota
	cmdBlock2Op
	cmdBlock4Op
	cmdExprloc
	cmdLEB128
	cmdString
	cmdSiblingRef1
	cmdSiblingRef2
	cmdSiblingRef4
	cmdSiblingRef8
	cmdSiblingRefUdata
	cmdNameStrp4
	cmdNameStrp8
	cmdNameString
	cmdStmtListLineptr4
	cmdStmtListLineptr8
	cmdDeclFileData1
	cmdDeclFileData2
	cmdDeclFileData4
	cmdDeclFileData8
	cmdDeclFileUdata
	cmdSpecificationRef1
	cmdSpecificationRef2
	cmdSpecificationRef4
	cmdSpecificationRef8
	cmdSpecificationRefUdata
)

// abbrevTable is a compiled abbreviation table for one compilation
// unit: decls[code-1] indexes into cmds for the start of that
// abbreviation code's byte-code program. Abbreviation codes are
// assumed sequential starting at 1, matching every compiler observed
// in practice (gcc, clang); a non-sequential code is reported as
// ErrUnsupported rather than handled via a slower map-based lookup.
type abbrevTable struct {
	decls []int
	cmds  []uint8
}

// compileAbbrevTable reads the abbreviation declarations starting at
// offset off in debugAbbrev and compiles them into cmds/decls, per
// drgn's read_abbrev_table/read_abbrev_decl.
func compileAbbrevTable(debugAbbrev []byte, off uint64, addressSize int, is64Bit bool) (*abbrevTable, error) {
	r := binreader.NewAt(debugAbbrev, int(off))
	table := &abbrevTable{}

	for {
		done, err := compileAbbrevDecl(r, table, addressSize, is64Bit)
		if err != nil {
			return nil, err
		}
		if done {
			return table, nil
		}
	}
}

func compileAbbrevDecl(r *binreader.Reader, table *abbrevTable, addressSize int, is64Bit bool) (done bool, err error) {
	code, err := r.ULEB128()
	if err != nil {
		return false, fmt.Errorf("%w: abbrev code: %v", ErrDwarfFormat, err)
	}
	if code == 0 {
		return true, nil
	}
	if int(code) != len(table.decls)+1 {
		return false, fmt.Errorf("%w: abbreviation table is not sequential", ErrUnsupported)
	}
	table.decls = append(table.decls, len(table.cmds))

	tagU, err := r.ULEB128()
	if err != nil {
		return false, fmt.Errorf("%w: abbrev tag: %v", ErrDwarfFormat, err)
	}
	tag := tagU
	if !isTrackedTag(tag) {
		tag = 0
	}

	hasChildren, err := r.Uint8()
	if err != nil {
		return false, fmt.Errorf("%w: abbrev children flag: %v", ErrDwarfFormat, err)
	}
	var flags uint8
	if hasChildren != 0 {
		flags |= tagFlagChildren
	}

	first := true
	for {
		name, err := r.ULEB128()
		if err != nil {
			return false, fmt.Errorf("%w: attribute name: %v", ErrDwarfFormat, err)
		}
		form, err := r.ULEB128()
		if err != nil {
			return false, fmt.Errorf("%w: attribute form: %v", ErrDwarfFormat, err)
		}
		if name == 0 && form == 0 {
			break
		}

		if name == dwAtDeclaration {
			// In theory this could be DW_FORM_flag with a value of
			// zero, but in practice compilers always use
			// DW_FORM_flag_present; either way the form is still
			// classified and, if it occupies space, still skipped.
			flags |= tagFlagDeclaration
		}
		if form == dwFormFlagPresent {
			continue
		}
		if form == dwFormIndirect {
			return false, fmt.Errorf("%w: DW_FORM_indirect", ErrUnsupported)
		}
		cmd, special, ok := classifyAttrib(name, form, tag, addressSize, is64Bit)
		if !ok {
			return false, fmt.Errorf("%w: unknown attribute form %d", ErrDwarfFormat, form)
		}

		if !special && !first && len(table.cmds) > 0 && table.cmds[len(table.cmds)-1] < cmdMaxSkip {
			prev := table.cmds[len(table.cmds)-1]
			if int(prev)+int(cmd) <= cmdMaxSkip {
				table.cmds[len(table.cmds)-1] = prev + cmd
				continue
			}
			overflow := int(prev) + int(cmd) - cmdMaxSkip
			table.cmds[len(table.cmds)-1] = cmdMaxSkip
			cmd = uint8(overflow)
		}

		first = false
		table.cmds = append(table.cmds, cmd)
	}

	table.cmds = append(table.cmds, 0)
	table.cmds = append(table.cmds, uint8(tag)|flags)
	return false, nil
}

// classifyAttrib selects the byte-code opcode for one (name, form)
// attribute specification. special reports whether the opcode refers
// to a dedicated reader (and so must never be skip-coalesced with a
// neighbor) as opposed to a plain byte count.
func classifyAttrib(name, form, tag uint64, addressSize int, is64Bit bool) (cmd uint8, special bool, ok bool) {
	secOffsetSize := uint8(4)
	if is64Bit {
		secOffsetSize = 8
	}

	if name == dwAtSibling && tag != dwTagEnumerationType {
		// Not for DW_TAG_enumeration_type: we still need to descend
		// into DW_TAG_enumerator children.
		switch form {
		case dwFormRef1:
			return cmdSiblingRef1, true, true
		case dwFormRef2:
			return cmdSiblingRef2, true, true
		case dwFormRef4:
			return cmdSiblingRef4, true, true
		case dwFormRef8:
			return cmdSiblingRef8, true, true
		case dwFormRefUdata:
			return cmdSiblingRefUdata, true, true
		}
	} else if name == dwAtName && tag != 0 && tag != dwTagCompileUnit {
		switch form {
		case dwFormStrp:
			if is64Bit {
				return cmdNameStrp8, true, true
			}
			return cmdNameStrp4, true, true
		case dwFormString:
			return cmdNameString, true, true
		}
	} else if name == dwAtStmtList && tag == dwTagCompileUnit {
		switch form {
		case dwFormData4:
			return cmdStmtListLineptr4, true, true
		case dwFormData8:
			return cmdStmtListLineptr8, true, true
		case dwFormSecOffset:
			if secOffsetSize == 8 {
				return cmdStmtListLineptr8, true, true
			}
			return cmdStmtListLineptr4, true, true
		}
	} else if name == dwAtDeclFile && tag != 0 && tag != dwTagCompileUnit {
		switch form {
		case dwFormData1:
			return cmdDeclFileData1, true, true
		case dwFormData2:
			return cmdDeclFileData2, true, true
		case dwFormData4:
			return cmdDeclFileData4, true, true
		case dwFormData8:
			return cmdDeclFileData8, true, true
		case dwFormSdata, dwFormUdata:
			// decl_file is never negative, so treat a compiler's
			// DW_FORM_sdata the same as udata.
			return cmdDeclFileUdata, true, true
		}
	} else if name == dwAtSpecification && tag != 0 && tag != dwTagCompileUnit {
		switch form {
		case dwFormRef1:
			return cmdSpecificationRef1, true, true
		case dwFormRef2:
			return cmdSpecificationRef2, true, true
		case dwFormRef4:
			return cmdSpecificationRef4, true, true
		case dwFormRef8:
			return cmdSpecificationRef8, true, true
		case dwFormRefUdata:
			return cmdSpecificationRefUdata, true, true
		}
	}

	switch form {
	case dwFormAddr:
		return uint8(addressSize), false, true
	case dwFormData1, dwFormRef1, dwFormFlag:
		return 1, false, true
	case dwFormData2, dwFormRef2:
		return 2, false, true
	case dwFormData4, dwFormRef4:
		return 4, false, true
	case dwFormData8, dwFormRef8, dwFormRefSig8:
		return 8, false, true
	case dwFormBlock1:
		return cmdBlock1Op, true, true
	case dwFormBlock2:
		return cmdBlock2Op, true, true
	case dwFormBlock4:
		return cmdBlock4Op, true, true
	case dwFormExprloc:
		return cmdExprloc, true, true
	case dwFormSdata, dwFormUdata, dwFormRefUdata:
		return cmdLEB128, true, true
	case dwFormRefAddr, dwFormSecOffset, dwFormStrp:
		return secOffsetSize, false, true
	case dwFormString:
		return cmdString, true, true
	case dwFormIndirect:
		return 0, false, false
	default:
		return 0, false, false
	}
}
