// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/memscan/scan"
	"github.com/grailbio/memscan/snapshotio"
	"v.io/x/lib/cmdline"
)

func newCmdSave() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "save",
		Short:    "Snapshot a process's memory to a file",
		ArgsName: "pid path",
	}
	dynamic := cmd.Flags.Bool("dynamic", true, "Capture anonymous mappings (heap, stack, ...) too")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("save takes pid and path arguments, but got %v", argv)
		}
		pid, err := strconv.Atoi(argv[0])
		if err != nil {
			return fmt.Errorf("bad pid %q: %v", argv[0], err)
		}
		factory, err := scan.FromProcess(pid, *dynamic)
		if err != nil {
			return err
		}
		out, err := os.Create(argv[1])
		if err != nil {
			return err
		}
		if err := snapshotio.Write(out, factory.Cache()); err != nil {
			out.Close() // nolint: errcheck
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		log.Printf("saved %d regions to %s", factory.Cache().Len(), argv[1])
		return nil
	})
	return cmd
}
