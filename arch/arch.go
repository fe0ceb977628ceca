// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arch describes the single CPU architecture this index
// supports: little-endian x86-64.
//
// This index only ever indexes ELF64 little-endian x86-64 object
// files, so there is no need for a general byte-order-and-word-size
// abstraction over multiple architectures -- just a handful of
// constants and one validation check performed once, at ELF header
// parse time.
package arch

import "fmt"

// AddressSize is the pointer width this index assumes for every
// compilation unit.
const AddressSize = 8

// WordIsLittleEndian reports whether eiData, an ELF e_ident[EI_DATA] byte,
// names little-endian encoding (ELFDATA2LSB == 1).
func WordIsLittleEndian(eiData byte) bool {
	return eiData == 1
}

// ErrUnsupportedLayout is returned when an object file's data encoding
// or class does not match this package's single supported layout.
type ErrUnsupportedLayout struct {
	EIClass, EIData byte
}

func (e *ErrUnsupportedLayout) Error() string {
	return fmt.Sprintf("unsupported ELF layout: class=%d data=%d (only 64-bit little-endian is supported)", e.EIClass, e.EIData)
}
