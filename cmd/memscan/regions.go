// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strconv"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/memscan/procmem"
	"v.io/x/lib/cmdline"
)

func newCmdRegions() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "regions",
		Short:    "List the mapped memory regions of a process",
		ArgsName: "pid",
	}
	dynamicOnly := cmd.Flags.Bool("dynamic", false, "List only anonymous mappings (heap, stack, ...)")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("regions takes one pid argument, but got %v", argv)
		}
		pid, err := strconv.Atoi(argv[0])
		if err != nil {
			return fmt.Errorf("bad pid %q: %v", argv[0], err)
		}
		p, err := procmem.Open(pid)
		if err != nil {
			return err
		}
		defer p.Close() // nolint: errcheck
		descs, err := p.Regions()
		if err != nil {
			return err
		}
		for _, d := range descs {
			if *dynamicOnly && !d.Dynamic() {
				continue
			}
			fmt.Printf("%012x-%012x %s %8d %s\n",
				d.From, d.To, d.Perm, d.To-d.From, d.Name)
		}
		return nil
	})
	return cmd
}
