// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfidx

import (
	"fmt"

	"github.com/dwtools/dwarfindex/binreader"
)

// fileNameTable maps a compilation unit's DW_AT_decl_file index (1-
// based) to a fingerprint of that file's full path, computed once per
// CU from its line-number program header. A DIE's DW_AT_decl_file
// plus DW_AT_name is not enough on its own to disambiguate same-named
// declarations in different directories, so the fingerprint of the
// containing file is folded into the hash entry too.
type fileNameTable struct {
	hashes []uint64
}

// nameHash computes the DJBX33A hash drgn uses to bucket DIE names:
// h = 5381, h = h*33 + b for every byte.
func nameHash(name []byte) uint32 {
	h := uint32(5381)
	for _, b := range name {
		h = h*33 + uint32(b)
	}
	return h
}

// skipLineProgramHeader advances r past a DWARF line-number program's
// header (through standard_opcode_lengths), following drgn's
// skip_lnp_header. Only the version, is_64_bit and opcode_base fields
// are read, to size the fields that follow; everything else is skipped
// unread.
func skipLineProgramHeader(r *binreader.Reader) error {
	tmp, err := r.Uint32()
	if err != nil {
		return fmt.Errorf("%w: line program initial length: %v", ErrDwarfFormat, err)
	}
	is64Bit := tmp == 0xffffffff
	if is64Bit {
		if err := r.Skip(8); err != nil {
			return fmt.Errorf("%w: line program unit_length: %v", ErrDwarfFormat, err)
		}
	}

	version, err := r.Uint16()
	if err != nil {
		return fmt.Errorf("%w: line program version: %v", ErrDwarfFormat, err)
	}
	if version != 2 && version != 3 && version != 4 {
		return fmt.Errorf("%w: unknown DWARF version %d", ErrDwarfFormat, version)
	}

	// header_length, minimum_instruction_length,
	// maximum_operations_per_instruction (DWARF 4 only),
	// default_is_stmt, line_base, line_range.
	headerLengthSize := 4
	if is64Bit {
		headerLengthSize = 8
	}
	skip := headerLengthSize + 4
	if version >= 4 {
		skip++
	}
	if err := r.Skip(skip); err != nil {
		return fmt.Errorf("%w: line program header: %v", ErrDwarfFormat, err)
	}

	opcodeBase, err := r.Uint8()
	if err != nil {
		return fmt.Errorf("%w: line program opcode_base: %v", ErrDwarfFormat, err)
	}
	return r.Skip(int(opcodeBase) - 1)
}

// readFileNameTable builds the decl_file fingerprint table for one
// compilation unit from its line program's include_directories and
// file_names tables, following drgn's read_file_name_table.
func readFileNameTable(debugLine []byte, stmtList uint64) (*fileNameTable, error) {
	r := binreader.NewAt(debugLine, int(stmtList))
	if err := skipLineProgramHeader(r); err != nil {
		return nil, err
	}

	var directories []siphash
	for {
		path, err := r.CString()
		if err != nil {
			return nil, fmt.Errorf("%w: include_directories: %v", ErrDwarfFormat, err)
		}
		if len(path) == 0 {
			break
		}
		h := newSiphash()
		hashDirectory(&h, path)
		directories = append(directories, h)
	}

	table := &fileNameTable{}
	for {
		path, err := r.CString()
		if err != nil {
			return nil, fmt.Errorf("%w: file_names: %v", ErrDwarfFormat, err)
		}
		if len(path) == 0 {
			break
		}
		dirIdx, err := r.ULEB128()
		if err != nil {
			return nil, fmt.Errorf("%w: file_names directory_index: %v", ErrDwarfFormat, err)
		}
		if err := r.SkipLEB128(); err != nil { // mtime
			return nil, fmt.Errorf("%w: file_names mtime: %v", ErrDwarfFormat, err)
		}
		if err := r.SkipLEB128(); err != nil { // size
			return nil, fmt.Errorf("%w: file_names size: %v", ErrDwarfFormat, err)
		}
		if dirIdx > uint64(len(directories)) {
			return nil, fmt.Errorf("%w: directory index %d is invalid", ErrDwarfFormat, dirIdx)
		}

		var h siphash
		if dirIdx > 0 {
			h = directories[dirIdx-1]
		} else {
			h = newSiphash()
		}
		h.update(path)
		table.hashes = append(table.hashes, h.final())
	}
	return table, nil
}

// hashDirectory feeds the canonical form of a directory path into
// hash, following drgn's hash_directory: path components are
// consumed right to left, collapsing repeated slashes, dropping "."
// components, and cancelling each ".." against the next real component
// to its left, so that e.g. "/a/b/../c" and "/a/c" hash identically.
// An absolute path gets a trailing "/" sentinel; a relative path with
// unresolved leading ".." components emits "../" for each, in order,
// at the end.
func hashDirectory(hash *siphash, path []byte) {
	pathLen := len(path)
	if pathLen == 0 {
		return
	}
	dotDot := 0

	for pathLen > 0 {
		if path[pathLen-1] == '/' {
			pathLen--
			continue
		}

		if pathLen == 1 && path[0] == '.' {
			break
		}
		if pathLen >= 2 && path[pathLen-2] == '/' && path[pathLen-1] == '.' {
			pathLen -= 2
			continue
		}

		if pathLen == 2 && path[0] == '.' && path[1] == '.' {
			dotDot++
			break
		}
		if pathLen >= 3 && path[pathLen-3] == '/' && path[pathLen-2] == '.' && path[pathLen-1] == '.' {
			dotDot++
			pathLen -= 3
			continue
		}

		componentLen := 0
		for path[pathLen-1] != '/' {
			pathLen--
			componentLen++
			if pathLen == 0 {
				break
			}
		}
		if dotDot > 0 {
			dotDot--
			continue
		}
		hash.update(path[pathLen : pathLen+componentLen])
		hash.update([]byte("/"))
	}

	if path[0] == '/' {
		hash.update([]byte("/"))
	} else {
		for ; dotDot > 0; dotDot-- {
			hash.update([]byte("../"))
		}
	}
}
