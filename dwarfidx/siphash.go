// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfidx

import "encoding/binary"

// siphash implements SipHash-2-4 over a fixed, all-zero 128-bit key.
// The file-name fingerprints this produces only need to be stable and
// collision-resistant within one process run, not resistant to a
// hostile key-recovery attacker, so a fixed key (rather than a
// per-process random one) is fine and keeps hashes reproducible for
// testing.
//
// This streams like drgn's struct siphash (siphash_init/_update/_final):
// hashDirectory (filetable.go) feeds it path components piecewise rather than
// hashing a single concatenated buffer.
type siphash struct {
	v0, v1, v2, v3 uint64
	buf            [8]byte
	buflen         int
	totalLen       uint64
}

func newSiphash() siphash {
	return siphash{
		v0: 0x736f6d6570736575,
		v1: 0x646f72616e646f6d,
		v2: 0x6c7967656e657261,
		v3: 0x7465646279746573,
	}
}

func rotl(x uint64, b uint) uint64 { return (x << b) | (x >> (64 - b)) }

func (s *siphash) round() {
	s.v0 += s.v1
	s.v1 = rotl(s.v1, 13)
	s.v1 ^= s.v0
	s.v0 = rotl(s.v0, 32)
	s.v2 += s.v3
	s.v3 = rotl(s.v3, 16)
	s.v3 ^= s.v2
	s.v0 += s.v3
	s.v3 = rotl(s.v3, 21)
	s.v3 ^= s.v0
	s.v2 += s.v1
	s.v1 = rotl(s.v1, 17)
	s.v1 ^= s.v2
	s.v2 = rotl(s.v2, 32)
}

func (s *siphash) processBlock(m uint64) {
	s.v3 ^= m
	s.round()
	s.round()
	s.v0 ^= m
}

// update feeds p into the running hash. It may be called any number
// of times before final.
func (s *siphash) update(p []byte) {
	s.totalLen += uint64(len(p))
	if s.buflen > 0 {
		n := copy(s.buf[s.buflen:8], p)
		s.buflen += n
		p = p[n:]
		if s.buflen < 8 {
			return
		}
		s.processBlock(binary.LittleEndian.Uint64(s.buf[:]))
		s.buflen = 0
	}
	for len(p) >= 8 {
		s.processBlock(binary.LittleEndian.Uint64(p[:8]))
		p = p[8:]
	}
	s.buflen = copy(s.buf[:], p)
}

// final returns the 64-bit SipHash-2-4 digest of everything fed to
// update so far. It does not mutate s, so it may be called more than
// once (hash_directory's directory-prefix reuse needs a copy of the
// siphash state, not a consumed one).
func (s siphash) final() uint64 {
	var last [8]byte
	copy(last[:], s.buf[:s.buflen])
	last[7] = byte(s.totalLen)
	m := binary.LittleEndian.Uint64(last[:])
	s.processBlock(m)

	s.v2 ^= 0xff
	s.round()
	s.round()
	s.round()
	s.round()

	return s.v0 ^ s.v1 ^ s.v2 ^ s.v3
}
