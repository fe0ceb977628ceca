// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package elf discovers the handful of ELF64 little-endian sections a
// DWARF indexer needs -- the four debug sections, the symbol table,
// and each debug section's .rela companion -- and applies the small
// set of x86-64 relocations those companions carry.
//
// This package does not model ELF in general: it knows exactly which
// sections a DWARF index cares about and discovers only those,
// leaving everything else in the section header table untouched.
// Section bytes and the private mapping backing them come from
// golang.org/x/sys/unix.
package elf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/dwtools/dwarfindex/arch"
)

// ErrElfFormat is returned for structurally invalid ELF input: bad
// magic, an out-of-bounds section header table, a section that runs
// past EOF, and so on.
var ErrElfFormat = errors.New("elf: malformed ELF file")

// ErrUnsupported is returned for well-formed ELF input this package
// intentionally does not handle: non-native endianness, 32-bit class,
// or a relocation type other than NONE/32/64.
var ErrUnsupported = errors.New("elf: unsupported ELF feature")

// DebugSectionIndex names the four debug sections a DWARF index
// discovers, in a fixed order used to index parallel arrays.
type DebugSectionIndex int

const (
	DebugAbbrev DebugSectionIndex = iota
	DebugInfo
	DebugLine
	DebugStr
	numDebugSections
)

var debugSectionNames = [numDebugSections]string{
	DebugAbbrev: ".debug_abbrev",
	DebugInfo:   ".debug_info",
	DebugLine:   ".debug_line",
	DebugStr:    ".debug_str",
}

// Section is a region of the mapped file plus the ELF section header
// index it came from, which is how a .rela section finds its target
// (sh_info names a section header index, not a name or an offset).
type Section struct {
	Buffer    []byte
	ShdrIndex uint16
}

func (s Section) present() bool { return s.Buffer != nil }

// File is one mmap'd ELF64 little-endian x86-64 object file. The
// mapping is MAP_PRIVATE so that relocations applied to debug section
// bytes are visible only to this process and never written back to
// disk.
type File struct {
	Path string

	data []byte // the full mmap'd region

	// DebugSections holds the four debug sections this index cares
	// about, in DebugSectionIndex order. A zero-value Section (nil
	// Buffer) means that section was not present.
	DebugSections [numDebugSections]Section

	// RelaSections holds each debug section's paired SHT_RELA
	// section, if any, in the same order as DebugSections.
	RelaSections [numDebugSections]Section

	Symtab Section

	// HasDebugInfo reports whether every one of the four debug
	// sections and .symtab were found. If false, the caller should
	// silently skip this file: it carries no debugging information.
	HasDebugInfo bool
}

// Open mmaps path and discovers its debug sections. It does not apply
// any relocations; call ApplyAllRelocations (or ApplyRelocation) for
// that.
//
// If the file is well-formed ELF but lacks debug info (any of the
// four debug sections or .symtab is absent), Open returns a non-nil
// *File with HasDebugInfo false and a nil error: per drgn, a file
// without debug info is not an error, just uninteresting.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elf: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("elf: %w", err)
	}
	size := st.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrElfFormat)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("elf: mmap %s: %w", path, err)
	}

	ef := &File{Path: path, data: data}
	if err := ef.readSections(); err != nil {
		unix.Munmap(data)
		return nil, err
	}
	return ef, nil
}

// Close unmaps the file's memory region.
func (f *File) Close() error {
	if f.data == nil {
		return nil
	}
	err := unix.Munmap(f.data)
	f.data = nil
	return err
}

// ELF64 header/section-header field offsets and constants (TIS ELF64
// spec, Book I ch. 4-5).
const (
	ehdrSize = 64
	shdrSize = 64

	offIdentMag0    = 0x00
	offIdentClass   = 0x04
	offIdentData    = 0x05
	offIdentVersion = 0x06
	offShoff        = 0x28
	offShentsize    = 0x3a
	offShnum        = 0x3c
	offShstrndx     = 0x3e

	offShName    = 0x00
	offShType    = 0x04
	offShLink    = 0x08
	offShInfo    = 0x0c
	offShOffset  = 0x18
	offShSize    = 0x20

	elfClass64  = 2
	elfData2LSB = 1
	evCurrent   = 1

	shnUndef  = 0
	shnXindex = 0xffff

	shtNull     = 0
	shtProgbits = 1
	shtSymtab   = 2
	shtRela     = 4
)

var elfMagic = [4]byte{0x7f, 'E', 'L', 'F'}

// readSections parses the ELF64 header and section header table and
// records the sections this package cares about, following drgn's
// read_sections.
func (f *File) readSections() error {
	data := f.data
	if len(data) < ehdrSize {
		return fmt.Errorf("%w: ELF header is truncated", ErrElfFormat)
	}
	if !bytes.Equal(data[0:4], elfMagic[:]) {
		return fmt.Errorf("%w: not an ELF file", ErrElfFormat)
	}
	if data[offIdentVersion] != evCurrent {
		return fmt.Errorf("%w: ELF version %d is not EV_CURRENT", ErrElfFormat, data[offIdentVersion])
	}
	if !arch.WordIsLittleEndian(data[offIdentData]) || data[offIdentClass] != elfClass64 {
		return fmt.Errorf("%w: %w", ErrUnsupported, &arch.ErrUnsupportedLayout{
			EIClass: data[offIdentClass],
			EIData:  data[offIdentData],
		})
	}

	le := binary.LittleEndian
	eShoff := le.Uint64(data[offShoff:])
	eShentsize := le.Uint16(data[offShentsize:])
	eShnum := le.Uint16(data[offShnum:])
	eShstrndx := le.Uint16(data[offShstrndx:])

	if eShnum == 0 {
		return fmt.Errorf("%w: ELF file has no sections", ErrElfFormat)
	}
	if eShentsize != shdrSize {
		return fmt.Errorf("%w: unexpected section header size %d", ErrElfFormat, eShentsize)
	}
	shTableSize := uint64(eShentsize) * uint64(eShnum)
	if eShoff > uint64(len(data)) || shTableSize > uint64(len(data))-eShoff {
		return fmt.Errorf("%w: ELF section header table is beyond EOF", ErrElfFormat)
	}

	shdrAt := func(i uint16) []byte {
		off := eShoff + uint64(i)*uint64(eShentsize)
		return data[off : off+shdrSize]
	}
	validateShdr := func(sh []byte) error {
		shOffset := le.Uint64(sh[offShOffset:])
		shSize := le.Uint64(sh[offShSize:])
		if shOffset > uint64(len(data)) || shSize > uint64(len(data))-shOffset {
			return fmt.Errorf("%w: ELF section is beyond EOF", ErrElfFormat)
		}
		return nil
	}

	shstrndx := uint32(eShstrndx)
	if eShstrndx == shnXindex {
		shstrndx = le.Uint32(shdrAt(0)[offShLink:])
	}
	if shstrndx == shnUndef || shstrndx >= uint32(eShnum) {
		return fmt.Errorf("%w: invalid ELF section header string table index", ErrElfFormat)
	}
	shstrtabHdr := shdrAt(uint16(shstrndx))
	if err := validateShdr(shstrtabHdr); err != nil {
		return err
	}
	shstrtabOff := le.Uint64(shstrtabHdr[offShOffset:])
	shstrtabSize := le.Uint64(shstrtabHdr[offShSize:])
	shstrtab := data[shstrtabOff : shstrtabOff+shstrtabSize]

	sectionName := func(sh []byte) (string, bool) {
		nameOff := le.Uint32(sh[offShName:])
		if nameOff == 0 || uint64(nameOff) >= shstrtabSize {
			return "", false
		}
		rest := shstrtab[nameOff:]
		i := bytes.IndexByte(rest, 0)
		if i < 0 {
			return "", false
		}
		return string(rest[:i]), true
	}

	for i := uint16(0); i < eShnum; i++ {
		sh := shdrAt(i)
		shType := le.Uint32(sh[offShType:])

		var target *Section
		switch shType {
		case shtProgbits:
			name, ok := sectionName(sh)
			if !ok {
				continue
			}
			idx := debugSectionIndexByName(name)
			if idx < 0 {
				continue
			}
			target = &f.DebugSections[idx]
		case shtSymtab:
			target = &f.Symtab
		default:
			continue
		}

		if err := validateShdr(sh); err != nil {
			return err
		}
		shOffset := le.Uint64(sh[offShOffset:])
		shSize := le.Uint64(sh[offShSize:])
		*target = Section{Buffer: data[shOffset : shOffset+shSize], ShdrIndex: i}
	}

	if !f.Symtab.present() {
		return nil
	}
	for i := range f.DebugSections {
		if !f.DebugSections[i].present() {
			return nil
		}
	}

	for i := uint16(0); i < eShnum; i++ {
		sh := shdrAt(i)
		if le.Uint32(sh[offShType:]) != shtRela {
			continue
		}
		shInfo := le.Uint32(sh[offShInfo:])
		target := -1
		for j := range f.DebugSections {
			if uint32(f.DebugSections[j].ShdrIndex) == shInfo {
				target = j
				break
			}
		}
		if target < 0 {
			continue
		}
		shLink := le.Uint32(sh[offShLink:])
		if uint32(f.Symtab.ShdrIndex) != shLink {
			return fmt.Errorf("%w: relocation symbol table section is not .symtab", ErrElfFormat)
		}
		if err := validateShdr(sh); err != nil {
			return err
		}
		shOffset := le.Uint64(sh[offShOffset:])
		shSize := le.Uint64(sh[offShSize:])
		f.RelaSections[target] = Section{Buffer: data[shOffset : shOffset+shSize], ShdrIndex: i}
	}

	f.HasDebugInfo = true
	return nil
}

func debugSectionIndexByName(name string) DebugSectionIndex {
	for i, n := range debugSectionNames {
		if n == name {
			return DebugSectionIndex(i)
		}
	}
	return -1
}
