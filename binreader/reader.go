// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package binreader provides bounds-checked little-endian reads of a
// byte slice: fixed-width integers, NUL-terminated strings, and
// LEB128 values.
//
// Every read is checked against the cursor's remaining length before
// it touches the underlying slice, so malformed or truncated DWARF
// data never panics -- it surfaces as ErrEOF. LEB128 and NUL-string
// reads are included alongside the fixed-width ones because DWARF's
// wire format mixes all three constantly.
package binreader

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrEOF is returned when a read runs past the end of the buffer.
var ErrEOF = errors.New("binreader: unexpected end of data")

// ErrOverflow is returned when a ULEB128 value does not fit in 64 bits.
var ErrOverflow = errors.New("binreader: ULEB128 overflowed 64 bits")

// Reader is a cursor over a byte slice. The zero Reader is not usable;
// construct one with New.
type Reader struct {
	buf []byte
	pos int
}

// New returns a Reader positioned at the start of buf.
func New(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// NewAt returns a Reader over buf positioned at offset off.
//
// off must be in [0, len(buf)]; NewAt panics otherwise, since an
// out-of-range starting offset is always a caller bug (unlike a read
// running past the end, which is routine malformed input).
func NewAt(buf []byte, off int) *Reader {
	if off < 0 || off > len(buf) {
		panic(fmt.Sprintf("binreader: offset %d out of range [0,%d]", off, len(buf)))
	}
	return &Reader{buf: buf, pos: off}
}

// Len returns the number of bytes remaining.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// Offset returns the reader's current byte offset into its buffer.
func (r *Reader) Offset() int { return r.pos }

// SeekOffset moves the cursor to the given offset from the start of
// the buffer. It does not itself report an invalid offset: an offset
// outside [0, len(buf)] leaves the cursor at the end of the buffer, so
// the next read fails with ErrEOF. This mirrors following a DWARF
// backreference, which must tolerate offsets computed from (possibly
// malformed) input before any bytes are actually read from them.
func (r *Reader) SeekOffset(off int) {
	if off < 0 || off > len(r.buf) {
		off = len(r.buf)
	}
	r.pos = off
}

// Bytes returns the next n bytes without copying and advances the
// cursor past them.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, ErrEOF
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Skip advances the cursor by n bytes without returning them.
func (r *Reader) Skip(n int) error {
	if n < 0 || r.Len() < n {
		return ErrEOF
	}
	r.pos += n
	return nil
}

func (r *Reader) Uint8() (uint8, error) {
	if r.Len() < 1 {
		return 0, ErrEOF
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) Uint16() (uint16, error) {
	if r.Len() < 2 {
		return 0, ErrEOF
	}
	b := r.buf[r.pos : r.pos+2]
	r.pos += 2
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

func (r *Reader) Uint32() (uint32, error) {
	if r.Len() < 4 {
		return 0, ErrEOF
	}
	b := r.buf[r.pos : r.pos+4]
	r.pos += 4
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func (r *Reader) Uint64() (uint64, error) {
	if r.Len() < 8 {
		return 0, ErrEOF
	}
	b := r.buf[r.pos : r.pos+8]
	r.pos += 8
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56, nil
}

// UintN reads an n-byte unsigned little-endian integer, for n in
// {1,2,4,8}, and returns it zero-extended to uint64. It suits forms
// whose width is only known at abbrev-compile time (DW_FORM_addr
// sized by the CU's address_size, DW_FORM_ref_addr/sec_offset/strp
// sized by is_64_bit).
func (r *Reader) UintN(n int) (uint64, error) {
	switch n {
	case 1:
		v, err := r.Uint8()
		return uint64(v), err
	case 2:
		v, err := r.Uint16()
		return uint64(v), err
	case 4:
		v, err := r.Uint32()
		return uint64(v), err
	case 8:
		return r.Uint64()
	default:
		return 0, fmt.Errorf("binreader: unsupported integer width %d", n)
	}
}

// ULEB128 decodes an unsigned LEB128 value, per the DWARF encoding.
func (r *Reader) ULEB128() (uint64, error) {
	var value uint64
	var shift uint
	for {
		if r.Len() < 1 {
			return 0, ErrEOF
		}
		b := r.buf[r.pos]
		r.pos++
		if shift == 63 && b > 1 {
			return 0, ErrOverflow
		}
		value |= uint64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	return value, nil
}

// SkipLEB128 advances past a LEB128 value (signed or unsigned; the
// continuation bit's position is identical for both) without decoding
// it.
func (r *Reader) SkipLEB128() error {
	for {
		if r.Len() < 1 {
			return ErrEOF
		}
		b := r.buf[r.pos]
		r.pos++
		if b&0x80 == 0 {
			return nil
		}
	}
}

// CString reads a NUL-terminated string starting at the cursor and
// returns it without the trailing NUL, advancing the cursor past the
// NUL. It fails with ErrEOF if no NUL appears before the end of the
// buffer.
func (r *Reader) CString() ([]byte, error) {
	rest := r.buf[r.pos:]
	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		return nil, ErrEOF
	}
	r.pos += i + 1
	return rest[:i], nil
}

// SkipCString advances past a NUL-terminated string without returning
// its bytes.
func (r *Reader) SkipCString() error {
	rest := r.buf[r.pos:]
	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		return ErrEOF
	}
	r.pos += i + 1
	return nil
}

// StringAt reads a NUL-terminated string at a fixed offset within buf,
// used for .debug_str lookups (DW_FORM_strp), which index by absolute
// section offset rather than advancing any cursor.
func StringAt(buf []byte, off uint64) ([]byte, error) {
	if off > uint64(len(buf)) {
		return nil, ErrEOF
	}
	rest := buf[off:]
	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		return nil, ErrEOF
	}
	return rest[:i], nil
}
