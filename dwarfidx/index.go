// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dwarfidx

import (
	"context"
	"debug/dwarf"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dwtools/dwarfindex/elf"
)

// debugSections is every section index this package pulls a slice out
// of, in the fixed order elf.File discovers them.
var debugSections = [...]elf.DebugSectionIndex{elf.DebugAbbrev, elf.DebugInfo, elf.DebugLine, elf.DebugStr}

// fileEntry is one indexed file: the mmap'd elf.File that owns its
// bytes, the four debug section slices traversal reads from, and the
// lazily-built debug/dwarf collaborator used only by Find.
type fileEntry struct {
	path string
	elf  *elf.File
	idx  indexFile

	dwarfMu   sync.Mutex
	dwarfData *dwarf.Data
	entries   map[uint64]*dwarf.Entry
}

// Index is a queryable, name-keyed DWARF index over a set of ELF
// object files. The zero Index is not usable; construct one with New.
// An Index must not be queried and mutated (via Add) concurrently, and
// must not be mutated concurrently with itself -- Add's own internal
// parallelism is the only concurrency this type manages.
type Index struct {
	mu sync.Mutex

	files []*fileEntry
	cus   []*compilationUnit
	table *dieHashTable

	// addressSize is set from the most recently indexed compilation
	// unit's address_size field. Per DESIGN.md's open-question
	// resolution, a file set with inconsistent address sizes is not
	// rejected: the last one read simply wins, matching drgn.
	addressSize int
}

// New returns an empty Index.
func New() *Index {
	return &Index{table: &dieHashTable{}}
}

// FoundDIE is one Find result: the DIE's owning file, its compilation
// unit's offset within that file's .debug_info, and the materialized
// debug/dwarf entry itself.
type FoundDIE struct {
	File     string
	CUOffset uint64
	Entry    *dwarf.Entry
}

// Add opens each path, applies its relocations, and indexes its
// compilation units into x, following drgn's DwarfIndex_add. A path
// that is well-formed ELF but carries no debug information is silently
// skipped, per §4.2/§7. The first error from any phase aborts the
// whole call; x is left exactly as it was before Add if the failure
// happens before any new compilation unit is indexed, and left
// partially populated (but still internally consistent) if the
// failure happens during indexing itself -- once a CU is reachable
// from the hash table, it cannot be safely unwound.
func (x *Index) Add(ctx context.Context, paths ...string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	newFiles, err := openFiles(paths)
	if err != nil {
		return err
	}
	if len(newFiles) == 0 {
		return nil
	}

	if err := applyAllRelocations(ctx, newFiles); err != nil {
		closeFiles(newFiles)
		return err
	}

	fileBase := len(x.files)
	cuBase := len(x.cus)
	addressSize := x.addressSize
	var newCUs []uint32
	var pendingCUs []*compilationUnit
	for i, fe := range newFiles {
		if err := validateDebugStr(fe.elf.DebugSections[elf.DebugStr].Buffer); err != nil {
			closeFiles(newFiles)
			return fmt.Errorf("%s: %w", fe.path, err)
		}
		fe.idx = indexFile{
			path:        fe.path,
			debugInfo:   fe.elf.DebugSections[elf.DebugInfo].Buffer,
			debugAbbrev: fe.elf.DebugSections[elf.DebugAbbrev].Buffer,
			debugStr:    fe.elf.DebugSections[elf.DebugStr].Buffer,
			debugLine:   fe.elf.DebugSections[elf.DebugLine].Buffer,
		}

		cus, err := readCUHeaders(fe.idx.debugInfo)
		if err != nil {
			closeFiles(newFiles)
			return fmt.Errorf("%s: %w", fe.path, err)
		}
		fileIdx := fileBase + i
		for _, cu := range cus {
			cu.file = fileIdx
			addressSize = int(cu.addressSize)
			newCUs = append(newCUs, uint32(cuBase+len(pendingCUs)))
			pendingCUs = append(pendingCUs, cu)
		}
	}
	x.cus = append(x.cus, pendingCUs...)
	x.addressSize = addressSize
	x.files = append(x.files, newFiles...)

	// Once a CU is appended to x.cus it is reachable from a hash entry
	// any moment now, so from here on we can no longer unwind x on
	// error -- matching DwarfIndex_add's own comment to this effect.
	return x.indexCUs(ctx, newCUs)
}

func openFiles(paths []string) ([]*fileEntry, error) {
	var files []*fileEntry
	for _, p := range paths {
		ef, err := elf.Open(p)
		if err != nil {
			closeFiles(files)
			return nil, err
		}
		if !ef.HasDebugInfo {
			ef.Close()
			continue
		}
		files = append(files, &fileEntry{path: p, elf: ef})
	}
	return files, nil
}

func closeFiles(files []*fileEntry) {
	for _, fe := range files {
		fe.elf.Close()
	}
}

func validateDebugStr(buf []byte) error {
	if len(buf) == 0 || buf[len(buf)-1] != 0 {
		return fmt.Errorf("%w: .debug_str is not NUL-terminated", ErrDwarfFormat)
	}
	return nil
}

// relocWork is one unit of a flattened (file, section, index) work
// list: every relocation across every newly opened file, in one flat
// list so that a small file with many relocations doesn't starve
// workers that finished their own file early.
type relocWork struct {
	file *fileEntry
	sec  elf.DebugSectionIndex
	idx  int
}

func applyAllRelocations(ctx context.Context, files []*fileEntry) error {
	var work []relocWork
	for _, fe := range files {
		for _, sec := range debugSections {
			for i := 0; i < fe.elf.NumRelocs(sec); i++ {
				work = append(work, relocWork{fe, sec, i})
			}
		}
	}
	if len(work) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerLimit())
	for _, w := range work {
		w := w
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return w.file.elf.ApplyRelocation(w.sec, w.idx)
		})
	}
	return g.Wait()
}

// indexCUs dynamically schedules cuIndices (global indices into
// x.cus) across a fixed worker pool via a shared atomic counter,
// mirroring drgn's OpenMP schedule(dynamic) over index_cus.
func (x *Index) indexCUs(ctx context.Context, cuIndices []uint32) error {
	if len(cuIndices) == 0 {
		return nil
	}

	var next atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	workers := workerLimit()
	if workers > len(cuIndices) {
		workers = len(cuIndices)
	}
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				i := next.Add(1) - 1
				if int(i) >= len(cuIndices) {
					return nil
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				cuIdx := cuIndices[i]
				cu := x.cus[cuIdx]
				fe := x.files[cu.file]
				if err := indexCU(&fe.idx, cu, cuIdx, x.table); err != nil {
					return err
				}
			}
		})
	}
	return g.Wait()
}

func workerLimit() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}

// AddressSize returns the address size, in bytes, of the most
// recently indexed compilation unit.
func (x *Index) AddressSize() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.addressSize
}

// Files returns the paths of every file indexed so far, in the order
// they were added.
func (x *Index) Files() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	paths := make([]string, len(x.files))
	for i, fe := range x.files {
		paths[i] = fe.path
	}
	return paths
}

// Find returns every indexed DIE named name. If tag is nonzero, only
// DIEs with that tag are returned. Results are materialized lazily
// through debug/dwarf: each file's *dwarf.Data is built at most once,
// and each (file, offset) entry is cached after its first lookup.
func (x *Index) Find(name string, tag dwarf.Tag) ([]FoundDIE, error) {
	x.mu.Lock()
	matches := x.table.find(name, uint8(tag))
	cus := x.cus
	files := x.files
	x.mu.Unlock()

	if len(matches) == 0 {
		return nil, ErrNotFound
	}

	results := make([]FoundDIE, 0, len(matches))
	for _, m := range matches {
		cu := cus[m.cu]
		fe := files[cu.file]
		entry, err := fe.entry(m.dieOffset)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fe.path, err)
		}
		results = append(results, FoundDIE{File: fe.path, CUOffset: cu.offset, Entry: entry})
	}
	return results, nil
}

// entry materializes and caches the debug/dwarf entry at offset.
func (fe *fileEntry) entry(offset uint64) (*dwarf.Entry, error) {
	fe.dwarfMu.Lock()
	defer fe.dwarfMu.Unlock()

	if e, ok := fe.entries[offset]; ok {
		return e, nil
	}

	if fe.dwarfData == nil {
		d, err := dwarf.New(
			fe.idx.debugAbbrev,
			nil, // aranges
			nil, // frame
			fe.idx.debugInfo,
			fe.idx.debugLine,
			nil, // pubnames
			nil, // ranges
			fe.idx.debugStr,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDwarfFormat, err)
		}
		fe.dwarfData = d
		fe.entries = make(map[uint64]*dwarf.Entry)
	}

	r := fe.dwarfData.Reader()
	r.Seek(dwarf.Offset(offset))
	entry, err := r.Next()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDwarfFormat, err)
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: no DIE at offset %#x", ErrDwarfFormat, offset)
	}
	fe.entries[offset] = entry
	return entry, nil
}
