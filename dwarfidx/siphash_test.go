// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfidx

import "testing"

func hashPath(path string) uint64 {
	h := newSiphash()
	hashDirectory(&h, []byte(path))
	return h.final()
}

func TestHashDirectoryCanonicalization(t *testing.T) {
	equivalent := [][2]string{
		{"/a/b/../c", "/a/c"},
		{"/a/b/..", "/a"},
		{"/a//b", "/a/b"},
		{"/a/./b", "/a/b"},
		{"/a/b/.", "/a/b"},
		{"a/../../x", "../x"},
		{"a/b/../../../x", "../x"},
		{"/", "/"},
		{".", ""},
		{"a/.", "a"},
	}
	for _, pair := range equivalent {
		h0, h1 := hashPath(pair[0]), hashPath(pair[1])
		if h0 != h1 {
			t.Errorf("hashDirectory(%q) = %#x, hashDirectory(%q) = %#x; want equal", pair[0], h0, pair[1], h1)
		}
	}
}

func TestHashDirectoryDistinguishesDifferentPaths(t *testing.T) {
	distinct := []string{"/a/b", "/a/c", "a/b", "/a", ""}
	seen := map[uint64]string{}
	for _, p := range distinct {
		h := hashPath(p)
		if prev, ok := seen[h]; ok {
			t.Errorf("hashDirectory(%q) and hashDirectory(%q) collided at %#x", p, prev, h)
		}
		seen[h] = p
	}
}

func TestHashDirectoryEmptyIsZeroUpdates(t *testing.T) {
	h1 := newSiphash()
	hashDirectory(&h1, []byte(""))
	h2 := newSiphash()
	if h1.final() != h2.final() {
		t.Error("hashDirectory of an empty path should not update the hash state")
	}
}

func TestSiphashStreamingMatchesOneShot(t *testing.T) {
	data := []byte("a reasonably long path component to exercise multi-block streaming")

	whole := newSiphash()
	whole.update(data)

	piecewise := newSiphash()
	for i := 0; i < len(data); i += 3 {
		end := i + 3
		if end > len(data) {
			end = len(data)
		}
		piecewise.update(data[i:end])
	}

	if whole.final() != piecewise.final() {
		t.Error("siphash digest depends on how update calls were chunked")
	}
}
