// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strconv"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/memscan/scan"
	"github.com/grailbio/memscan/sig"
	"v.io/x/lib/cmdline"
)

type scanFlags struct {
	str      *bool
	module   *string
	writable *bool
	exec     *bool
	dynamic  *bool
}

func newCmdScan() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "scan",
		Short:    "Scan a process for a byte signature",
		ArgsName: "pid signature",
		Long: `
Scan snapshots the process and prints the address of every match of the
signature. The signature uses the IDA notation ("48 8B ?? 05"), or is a raw
string when -string is set.
`,
	}
	flags := scanFlags{
		str:      cmd.Flags.Bool("string", false, "Treat the signature as a raw string instead of IDA notation"),
		module:   cmd.Flags.String("module", "", "Only scan regions whose name basename equals this"),
		writable: cmd.Flags.Bool("writable", false, "Only scan writable regions"),
		exec:     cmd.Flags.Bool("executable", false, "Only scan executable regions"),
		dynamic:  cmd.Flags.Bool("dynamic", true, "Capture anonymous mappings (heap, stack, ...) too"),
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("scan takes pid and signature arguments, but got %v", argv)
		}
		pid, err := strconv.Atoi(argv[0])
		if err != nil {
			return fmt.Errorf("bad pid %q: %v", argv[0], err)
		}
		var pat sig.Signature
		if *flags.str {
			pat = sig.String(argv[1], false)
		} else {
			if pat, err = sig.IDA(argv[1]); err != nil {
				return err
			}
		}
		factory, err := scan.FromProcess(pid, *flags.dynamic)
		if err != nil {
			return err
		}
		c := scan.Everything().ThatsReadable()
		if *flags.module != "" {
			c = c.WithName(*flags.module)
		}
		if *flags.writable {
			c = c.ThatsWritable()
		}
		if *flags.exec {
			c = c.ThatsExecutable()
		}
		for _, addr := range factory.Signature(pat, c).GetPool() {
			fmt.Printf("%#x\n", addr)
		}
		return nil
	})
	return cmd
}
