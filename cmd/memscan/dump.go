// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/memscan/scan"
	"github.com/klauspost/compress/gzip"
	"v.io/x/lib/cmdline"
)

func newCmdDump() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "dump",
		Short:    "Write the region containing an address to a gzipped file",
		ArgsName: "pid address path.gz",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 3 {
			return fmt.Errorf("dump takes pid, address, and path arguments, but got %v", argv)
		}
		pid, err := strconv.Atoi(argv[0])
		if err != nil {
			return fmt.Errorf("bad pid %q: %v", argv[0], err)
		}
		addr, err := strconv.ParseUint(argv[1], 0, 64)
		if err != nil {
			return fmt.Errorf("bad address %q: %v", argv[1], err)
		}
		factory, err := scan.FromProcess(pid, true)
		if err != nil {
			return err
		}
		r := factory.Cache().Find(addr)
		if r == nil {
			return fmt.Errorf("no captured region contains %#x", addr)
		}
		out, err := os.Create(argv[2])
		if err != nil {
			return err
		}
		zw := gzip.NewWriter(out)
		if _, err := zw.Write(r.Bytes); err != nil {
			out.Close() // nolint: errcheck
			return err
		}
		if err := zw.Close(); err != nil {
			out.Close() // nolint: errcheck
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d bytes) from %v\n", argv[2], r.Size(), r)
		return nil
	})
	return cmd
}
