// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfidx

import (
	"fmt"

	"github.com/dwtools/dwarfindex/binreader"
)

// indexFile holds the debug section byte slices one compilation unit's
// traversal needs. It is distinct from elf.File: by the time indexCU
// runs, relocations have already been applied and the four debug
// sections have already been picked out, so traversal only ever needs
// these four slices, never the rest of the ELF structure.
type indexFile struct {
	path         string
	debugInfo    []byte
	debugAbbrev  []byte
	debugStr     []byte
	debugLine    []byte
}

// indexCU walks every DIE of one compilation unit, inserting an entry
// into table for each named, non-declaration DIE of a tracked tag
// directly under the CU root, and for each enumerator of such a
// DW_TAG_enumeration_type, following drgn's index_cu. Deeper DIEs are
// traversed but not inserted. cuIndex is this CU's position in the flat, cross-
// file slice of every indexed CU; it is what a hash entry's cu field
// records, so Find can map a match back to (file, compilationUnit).
func indexCU(file *indexFile, cu *compilationUnit, cuIndex uint32, table *dieHashTable) error {
	abbrev, err := compileAbbrevTable(file.debugAbbrev, cu.debugAbbrevOffset, int(cu.addressSize), cu.is64Bit)
	if err != nil {
		return fmt.Errorf("%s: %w", file.path, err)
	}

	start := cu.offset + cu.headerSize()
	end := cu.end()
	r := binreader.NewAt(file.debugInfo, int(start))

	depth := 0
	hasEnumDie := false
	var enumDieOffset uint64
	fileNames := &fileNameTable{}

	for {
		diePos := uint64(r.Offset())
		ok, d, err := readDie(r, abbrev, file.debugInfo, cu.offset, end, file.debugStr)
		if err != nil {
			return fmt.Errorf("%s: CU at %#x: %w", file.path, cu.offset, err)
		}
		if !ok {
			depth--
			switch depth {
			case 1:
				hasEnumDie = false
			case 0:
				return nil
			}
			continue
		}

		tag := d.flags & tagMask
		dieOffset := diePos

		switch {
		case tag == dwTagCompileUnit:
			if depth == 0 && d.stmtList != noStmtList {
				fileNames, err = readFileNameTable(file.debugLine, d.stmtList)
				if err != nil {
					return fmt.Errorf("%s: CU at %#x: %w", file.path, cu.offset, err)
				}
			}

		case tag != 0 && d.flags&tagFlagDeclaration == 0:
			insert := true
			// NB: the enumerator's name is indexed under the
			// enumeration_type DIE's offset instead of its own.
			switch {
			case depth == 1 && tag == dwTagEnumerationType:
				hasEnumDie = true
				enumDieOffset = dieOffset
			case depth == 2 && tag == dwTagEnumerator && hasEnumDie:
				dieOffset = enumDieOffset
			case depth != 1:
				insert = false
			}

			if insert {
				name := d.name
				declFile := d.declFile
				if d.hasSpecification && (name == nil || declFile == 0) {
					decl, err := readDieAt(file, abbrev, cu, d.specification, end)
					if err != nil {
						return fmt.Errorf("%s: CU at %#x: specification: %w", file.path, cu.offset, err)
					}
					if name == nil {
						name = decl.name
					}
					if declFile == 0 {
						declFile = decl.declFile
					}
				}

				if name != nil {
					if declFile > uint64(len(fileNames.hashes)) {
						return fmt.Errorf("%w: invalid DW_AT_decl_file %d", ErrDwarfFormat, declFile)
					}
					var fileNameHash uint64
					if declFile > 0 {
						fileNameHash = fileNames.hashes[declFile-1]
					}
					if err := table.insert(string(name), uint8(tag), fileNameHash, cuIndex, dieOffset); err != nil {
						return fmt.Errorf("%s: %w", file.path, err)
					}
				}
			}
		}

		if d.flags&tagFlagChildren != 0 {
			if d.hasSibling {
				r.SeekOffset(int(d.sibling))
			} else {
				depth++
			}
		} else if depth == 0 {
			return nil
		}
	}
}

// readDieAt reads a single DIE at an arbitrary offset within the same
// CU, used only to follow a DW_AT_specification reference. Unlike the
// main traversal it does not recurse into children or siblings.
func readDieAt(file *indexFile, abbrev *abbrevTable, cu *compilationUnit, offset, end uint64) (die, error) {
	r := binreader.NewAt(file.debugInfo, int(offset))
	_, d, err := readDie(r, abbrev, file.debugInfo, cu.offset, end, file.debugStr)
	return d, err
}
