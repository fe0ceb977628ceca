// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfidx

import (
	"bytes"
	"testing"
)

// buildTestCU assembles one 32-bit DWARF 4 compilation unit exercising
// declaration-skipping, DW_AT_specification fallback, and enumerator
// redirection in a single DIE tree:
//
//	compile_unit                                   (depth 0)
//	  variable "widget", DW_AT_declaration         (depth 1, skipped)
//	  variable, DW_AT_specification -> widget decl  (depth 1, indexed as "widget")
//	  enumeration_type (anonymous)                  (depth 1, not indexed: no name)
//	    enumerator "RED"                             (depth 2, indexed under the
//	                                                   enumeration_type's own offset)
//
// It returns the assembled .debug_info/.debug_abbrev sections and the
// absolute offsets of the declaration and enumeration_type DIEs, which
// the test needs to assert against.
func buildTestCU(t *testing.T) (debugInfo, debugAbbrev []byte, declOffset, enumOffset uint64) {
	var abbrev abbrevBuilder
	abbrev.decl(1, dwTagCompileUnit, true)
	abbrev.decl(2, dwTagVariable, false,
		[2]uint64{dwAtDeclaration, dwFormFlagPresent},
		[2]uint64{dwAtName, dwFormString},
	)
	abbrev.decl(3, dwTagVariable, false,
		[2]uint64{dwAtSpecification, dwFormRef4},
	)
	abbrev.decl(4, dwTagEnumerationType, true)
	abbrev.decl(5, dwTagEnumerator, false,
		[2]uint64{dwAtName, dwFormString},
	)
	abbrev.end()

	const headerSize = 11 // 32-bit DWARF CU header

	var dies bytes.Buffer
	writeULEB := func(v uint64) {
		for {
			c := byte(v & 0x7f)
			v >>= 7
			if v != 0 {
				c |= 0x80
			}
			dies.WriteByte(c)
			if v == 0 {
				return
			}
		}
	}
	cstring := func(s string) {
		dies.WriteString(s)
		dies.WriteByte(0)
	}

	// compile_unit (code 1)
	writeULEB(1)

	// variable declaration (code 2)
	declOffset = headerSize + uint64(dies.Len())
	writeULEB(2)
	cstring("widget")

	// variable specification (code 3), referencing the declaration
	writeULEB(3)
	// This CU starts at absolute offset 0, so a reference's CU-relative
	// value and its absolute .debug_info offset are the same number.
	declRef := declOffset
	var refBuf [4]byte
	refBuf[0] = byte(declRef)
	refBuf[1] = byte(declRef >> 8)
	refBuf[2] = byte(declRef >> 16)
	refBuf[3] = byte(declRef >> 24)
	dies.Write(refBuf[:])

	// enumeration_type (code 4)
	enumOffset = headerSize + uint64(dies.Len())
	writeULEB(4)

	// enumerator "RED" (code 5)
	writeULEB(5)
	cstring("RED")

	dies.WriteByte(0) // terminates the enumeration_type's children
	dies.WriteByte(0) // terminates the compile_unit's children

	unitLength := uint32(2 + 4 + 1 + dies.Len()) // version + abbrev_offset + address_size + DIEs

	var info bytes.Buffer
	info.Write([]byte{byte(unitLength), byte(unitLength >> 8), byte(unitLength >> 16), byte(unitLength >> 24)})
	info.Write([]byte{4, 0})       // version
	info.Write([]byte{0, 0, 0, 0}) // debug_abbrev_offset
	info.WriteByte(8)              // address_size
	info.Write(dies.Bytes())

	return info.Bytes(), abbrev.buf.Bytes(), declOffset, enumOffset
}

func TestIndexCUSpecificationAndEnumeratorAndDeclarationSkip(t *testing.T) {
	debugInfo, debugAbbrev, declOffset, enumOffset := buildTestCU(t)

	cus, err := readCUHeaders(debugInfo)
	if err != nil {
		t.Fatalf("readCUHeaders: %v", err)
	}
	if len(cus) != 1 {
		t.Fatalf("got %d CUs, want 1", len(cus))
	}
	cu := cus[0]

	file := &indexFile{
		path:        "test.o",
		debugInfo:   debugInfo,
		debugAbbrev: debugAbbrev,
	}
	table := &dieHashTable{}

	if err := indexCU(file, cu, 0, table); err != nil {
		t.Fatalf("indexCU: %v", err)
	}

	// The declaration itself must not be indexed.
	if matches := table.find("widget", 0); len(matches) != 1 {
		t.Fatalf(`find("widget") = %+v, want exactly 1 match (the specification, not the declaration)`, matches)
	} else if matches[0].dieOffset == declOffset {
		t.Errorf("widget resolved to the declaration's offset %#x, want the specification DIE's own offset", declOffset)
	}

	// The enumerator must be indexed under the enclosing
	// enumeration_type's offset, not its own.
	matches := table.find("RED", 0)
	if len(matches) != 1 {
		t.Fatalf(`find("RED") = %+v, want exactly 1 match`, matches)
	}
	if matches[0].dieOffset != enumOffset {
		t.Errorf("RED resolved to offset %#x, want the enumeration_type's offset %#x", matches[0].dieOffset, enumOffset)
	}

	// Declarations never appear under their own name search scoped by
	// tag either.
	if matches := table.find("widget", dwTagVariable); len(matches) != 1 {
		t.Errorf(`find("widget", Variable) = %+v, want 1 match`, matches)
	}
}
