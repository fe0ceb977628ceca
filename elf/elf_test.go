// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elf

import (
	"encoding/binary"
	"errors"
	"os"
	"testing"
)

// fakeElfBuilder assembles a minimal ELF64 little-endian image with an
// arbitrary set of named sections, for exercising readSections without
// a real compiler or linker.
type fakeElfBuilder struct {
	sections []fakeSection
}

type fakeSection struct {
	name string
	typ  uint32
	data []byte
	link uint32
	info uint32
}

func (b *fakeElfBuilder) add(s fakeSection) { b.sections = append(b.sections, s) }

// build lays out: ELF header, section data (in order, back to back),
// shstrtab, then the section header table. Section header index 0 is
// the reserved null section; user sections start at index 1;
// shstrtab is the last section.
func (b *fakeElfBuilder) build() []byte {
	le := binary.LittleEndian

	var shstrtab []byte
	shstrtab = append(shstrtab, 0) // index 0 is the empty string
	nameOff := make([]uint32, len(b.sections))
	for i, s := range b.sections {
		nameOff[i] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, []byte(s.name)...)
		shstrtab = append(shstrtab, 0)
	}

	buf := make([]byte, ehdrSize)
	copy(buf[0:4], elfMagic[:])
	buf[offIdentClass] = elfClass64
	buf[offIdentData] = elfData2LSB
	buf[offIdentVersion] = evCurrent

	type laidOut struct {
		off uint64
		fakeSection
	}
	var laid []laidOut
	for _, s := range b.sections {
		off := uint64(len(buf))
		buf = append(buf, s.data...)
		laid = append(laid, laidOut{off, s})
	}
	shstrtabOff := uint64(len(buf))
	buf = append(buf, shstrtab...)

	numShdrs := len(b.sections) + 2 // null + sections + shstrtab
	shoff := uint64(len(buf))
	le.PutUint64(buf[offShoff:], shoff)
	le.PutUint16(buf[offShentsize:], shdrSize)
	le.PutUint16(buf[offShnum:], uint16(numShdrs))
	le.PutUint16(buf[offShstrndx:], uint16(numShdrs-1))

	buf = append(buf, make([]byte, shdrSize)...) // null section header

	for i, l := range laid {
		sh := make([]byte, shdrSize)
		le.PutUint32(sh[offShName:], nameOff[i])
		le.PutUint32(sh[offShType:], l.typ)
		le.PutUint32(sh[offShLink:], l.link)
		le.PutUint32(sh[offShInfo:], l.info)
		le.PutUint64(sh[offShOffset:], l.off)
		le.PutUint64(sh[offShSize:], uint64(len(l.data)))
		buf = append(buf, sh...)
	}

	shstrtabHdr := make([]byte, shdrSize)
	le.PutUint32(shstrtabHdr[offShType:], shtProgbits)
	le.PutUint64(shstrtabHdr[offShOffset:], shstrtabOff)
	le.PutUint64(shstrtabHdr[offShSize:], uint64(len(shstrtab)))
	buf = append(buf, shstrtabHdr...)

	return buf
}

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "elf-*")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return f.Name()
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := writeTempFile(t, make([]byte, 128))
	_, err := Open(path)
	if !errors.Is(err, ErrElfFormat) {
		t.Fatalf("got %v, want ErrElfFormat", err)
	}
}

func TestOpenRejects32Bit(t *testing.T) {
	var b fakeElfBuilder
	data := b.build()
	data[offIdentClass] = 1 // ELFCLASS32
	path := writeTempFile(t, data)
	_, err := Open(path)
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("got %v, want ErrUnsupported", err)
	}
}

func TestOpenNoDebugInfoIsNotAnError(t *testing.T) {
	var b fakeElfBuilder
	b.add(fakeSection{name: ".text", typ: shtProgbits, data: []byte{0x90}})
	path := writeTempFile(t, b.build())

	f, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if f.HasDebugInfo {
		t.Error("HasDebugInfo = true for a file with no debug sections")
	}
}

func TestOpenDiscoversDebugSections(t *testing.T) {
	var b fakeElfBuilder
	b.add(fakeSection{name: ".debug_abbrev", typ: shtProgbits, data: []byte{0x01}})
	b.add(fakeSection{name: ".debug_info", typ: shtProgbits, data: make([]byte, 16)})
	b.add(fakeSection{name: ".debug_line", typ: shtProgbits, data: []byte{0x02}})
	b.add(fakeSection{name: ".debug_str", typ: shtProgbits, data: []byte("foo\x00")})
	b.add(fakeSection{name: ".symtab", typ: shtSymtab, data: make([]byte, symEntSize*2)})
	// A RELA section targeting .debug_info (section header index 2).
	rela := make([]byte, relaEntSize)
	binary.LittleEndian.PutUint64(rela[offROffset:], 0)
	binary.LittleEndian.PutUint64(rela[offRInfo:], uint64(rX86_64_64)|(1<<32))
	binary.LittleEndian.PutUint64(rela[offRAddend:], 0x20)
	b.add(fakeSection{name: ".rela.debug_info", typ: shtRela, data: rela, link: 5, info: 2})

	path := writeTempFile(t, b.build())
	f, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if !f.HasDebugInfo {
		t.Fatal("HasDebugInfo = false, want true")
	}
	if !f.DebugSections[DebugInfo].present() {
		t.Error(".debug_info not discovered")
	}
	if f.RelaSections[DebugInfo].Buffer == nil {
		t.Error(".rela.debug_info not paired with .debug_info")
	}
	if f.RelaSections[DebugAbbrev].Buffer != nil {
		t.Error("unexpected .rela pairing for .debug_abbrev")
	}
}

func TestApplyRelocation64(t *testing.T) {
	var b fakeElfBuilder
	b.add(fakeSection{name: ".debug_abbrev", typ: shtProgbits, data: []byte{0x01}})
	b.add(fakeSection{name: ".debug_info", typ: shtProgbits, data: make([]byte, 16)})
	b.add(fakeSection{name: ".debug_line", typ: shtProgbits, data: []byte{0x02}})
	b.add(fakeSection{name: ".debug_str", typ: shtProgbits, data: []byte("foo\x00")})

	syms := make([]byte, symEntSize*2)
	binary.LittleEndian.PutUint64(syms[symEntSize+offStValue:], 0x1000)
	b.add(fakeSection{name: ".symtab", typ: shtSymtab, data: syms})

	rela := make([]byte, relaEntSize)
	binary.LittleEndian.PutUint64(rela[offROffset:], 0)
	binary.LittleEndian.PutUint64(rela[offRInfo:], uint64(rX86_64_64)|(1<<32))
	binary.LittleEndian.PutUint64(rela[offRAddend:], 0x20)
	b.add(fakeSection{name: ".rela.debug_info", typ: shtRela, data: rela, link: 5, info: 2})

	path := writeTempFile(t, b.build())
	f, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := f.ApplyAllRelocations(); err != nil {
		t.Fatal(err)
	}
	got := binary.LittleEndian.Uint64(f.DebugSections[DebugInfo].Buffer[0:8])
	if want := uint64(0x1020); got != want {
		t.Errorf("got %#x, want %#x", got, want)
	}
}

func TestApplyRelocationRejectsUnsupportedType(t *testing.T) {
	var b fakeElfBuilder
	b.add(fakeSection{name: ".debug_abbrev", typ: shtProgbits, data: []byte{0x01}})
	b.add(fakeSection{name: ".debug_info", typ: shtProgbits, data: make([]byte, 16)})
	b.add(fakeSection{name: ".debug_line", typ: shtProgbits, data: []byte{0x02}})
	b.add(fakeSection{name: ".debug_str", typ: shtProgbits, data: []byte("foo\x00")})
	b.add(fakeSection{name: ".symtab", typ: shtSymtab, data: make([]byte, symEntSize*2)})

	const rX86_64PC32 = 2
	rela := make([]byte, relaEntSize)
	binary.LittleEndian.PutUint64(rela[offRInfo:], uint64(rX86_64PC32)|(1<<32))
	b.add(fakeSection{name: ".rela.debug_info", typ: shtRela, data: rela, link: 5, info: 2})

	path := writeTempFile(t, b.build())
	f, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := f.ApplyAllRelocations(); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("got %v, want ErrUnsupported", err)
	}
}
