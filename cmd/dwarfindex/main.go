// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// dwarfindex indexes the DWARF debugging information of a set of ELF
// object files and looks up a name in the resulting index.
package main

import (
	"context"
	"debug/dwarf"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/peterbourgon/ff/v3"
	log "github.com/sirupsen/logrus"

	"github.com/dwtools/dwarfindex/dwarfidx"
)

type arguments struct {
	name string
	tag  uint64
	fs   *flag.FlagSet
}

func parseArgs() (*arguments, error) {
	var args arguments
	fs := flag.NewFlagSet("dwarfindex", flag.ExitOnError)
	fs.StringVar(&args.name, "name", "", "name to look up once every file is indexed")
	fs.Uint64Var(&args.tag, "tag", 0, "restrict matches to this numeric DW_TAG value (0 means any tag)")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: dwarfindex -name NAME [-tag DW_TAG] OBJFILE...")
		fs.PrintDefaults()
	}
	args.fs = fs

	err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("DWARFINDEX"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithAllowMissingConfigFile(true),
	)
	return &args, err
}

func main() {
	log.SetFormatter(&log.TextFormatter{})
	log.SetOutput(os.Stderr)

	args, err := parseArgs()
	if err != nil {
		log.Fatalf("%v", err)
	}
	paths := args.fs.Args()
	if args.name == "" || len(paths) == 0 {
		args.fs.Usage()
		os.Exit(2)
	}

	if err := run(args, paths); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(args *arguments, paths []string) error {
	idx := dwarfidx.New()

	ctx := context.Background()
	if err := idx.Add(ctx, paths...); err != nil {
		return fmt.Errorf("indexing: %w", err)
	}
	log.Infof("indexed %d of %d files", len(idx.Files()), len(paths))

	results, err := idx.Find(args.name, dwarf.Tag(args.tag))
	if errors.Is(err, dwarfidx.ErrNotFound) {
		log.Infof("%q: no matches", args.name)
		os.Exit(1)
	}
	if err != nil {
		return err
	}

	for _, r := range results {
		fmt.Printf("%s\tCU@%#x\t%s\tDIE@%#x\n", r.File, r.CUOffset, r.Entry.Tag, r.Entry.Offset)
	}
	return nil
}
