// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dwarfidx builds a lock-free, name-keyed index over the DIEs
// of a set of ELF object files' DWARF 2-4 debug information, the way
// drgn's dwarfindex.c does: compile each compilation unit's
// abbreviation table into a byte-code program once, then walk every
// CU's DIEs through that program to populate a fixed-size open-
// addressed hash table, so that a later Find by name touches no DWARF
// parsing machinery at all.
package dwarfidx

// A minimal subset of the DWARF tag/attribute/form vocabulary: just
// enough to compile abbreviation tables and walk DIEs.
// debug/dwarf in the standard library defines the same constants with
// different names (dwarf.TagCompileUnit vs DW_TAG_compile_unit); we
// keep our own copy because the hot path below works directly on wire
// values, never on debug/dwarf's typed wrappers.
const (
	dwTagClassType        = 0x02
	dwTagEnumerationType   = 0x04
	dwTagCompileUnit       = 0x11
	dwTagStructureType     = 0x13
	dwTagTypedef           = 0x16
	dwTagUnionType         = 0x17
	dwTagBaseType          = 0x24
	dwTagEnumerator        = 0x28
	dwTagVariable          = 0x34
)

const (
	dwAtSibling       = 0x01
	dwAtName          = 0x03
	dwAtStmtList      = 0x10
	dwAtDeclFile      = 0x3a
	dwAtDeclaration   = 0x3c
	dwAtSpecification = 0x47
)

const (
	dwFormAddr         = 0x01
	dwFormBlock2       = 0x03
	dwFormBlock4       = 0x04
	dwFormData2        = 0x05
	dwFormData4        = 0x06
	dwFormData8        = 0x07
	dwFormString       = 0x08
	dwFormBlock        = 0x09
	dwFormBlock1       = 0x0a
	dwFormData1        = 0x0b
	dwFormFlag         = 0x0c
	dwFormSdata        = 0x0d
	dwFormStrp         = 0x0e
	dwFormUdata        = 0x0f
	dwFormRefAddr      = 0x10
	dwFormRef1         = 0x11
	dwFormRef2         = 0x12
	dwFormRef4         = 0x13
	dwFormRef8         = 0x14
	dwFormRefUdata     = 0x15
	dwFormIndirect     = 0x16
	dwFormSecOffset    = 0x17
	dwFormExprloc      = 0x18
	dwFormFlagPresent  = 0x19
	dwFormRefSig8      = 0x20
)

// isTrackedTag reports whether tag is one the abbreviation compiler
// keeps: the tags this index stores hash entries for, plus
// DW_TAG_compile_unit (kept for its DW_AT_stmt_list). Any other tag is indexed with tag 0, meaning "skip" (TAG_MASK is
// reused as a presence marker, not just an identifier): read_abbrev_decl
// zeroes the tag for any DIE whose tag isn't in this list, which makes
// every other piece of the byte-code compiler indifferent to it.
func isTrackedTag(tag uint64) bool {
	switch tag {
	case dwTagBaseType, dwTagClassType, dwTagCompileUnit, dwTagEnumerationType,
		dwTagEnumerator, dwTagStructureType, dwTagTypedef, dwTagUnionType, dwTagVariable:
		return true
	default:
		return false
	}
}

// Tag flag bits packed alongside the 6-bit tag value in a compiled
// abbreviation's trailing byte.
const (
	tagBits         = 6
	tagMask    uint8 = (1 << tagBits) - 1
	tagFlagDeclaration uint8 = 0x40
	tagFlagChildren    uint8 = 0x80
)
