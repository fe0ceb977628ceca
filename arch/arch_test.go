// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package arch

import "testing"

func TestWordIsLittleEndian(t *testing.T) {
	if !WordIsLittleEndian(1) {
		t.Error("ELFDATA2LSB (1) should be little-endian")
	}
	if WordIsLittleEndian(2) {
		t.Error("ELFDATA2MSB (2) should not be little-endian")
	}
	if WordIsLittleEndian(0) {
		t.Error("ELFDATANONE (0) should not be little-endian")
	}
}

func TestErrUnsupportedLayout(t *testing.T) {
	err := &ErrUnsupportedLayout{EIClass: 1, EIData: 2}
	if err.Error() == "" {
		t.Fatal("expected non-empty error message")
	}
}
