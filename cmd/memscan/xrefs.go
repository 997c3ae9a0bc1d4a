// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/memscan/scan"
	"v.io/x/lib/cmdline"
)

func newCmdXrefs() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "xrefs",
		Short:    "Find references to an address in a process",
		ArgsName: "pid address",
		Long: `
Xrefs snapshots the process and prints every site referencing the given
address, either as a stored pointer or as a rel32 displacement.
`,
	}
	instrLen := cmd.Flags.Int("instr-len", 4,
		"Distance from a rel32 displacement to the end of its instruction")
	kind := cmd.Flags.String("kind", "all", `Which references to find: "relative", "absolute", or "all"`)
	module := cmd.Flags.String("module", "", "Only search regions whose name basename equals this")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("xrefs takes pid and address arguments, but got %v", argv)
		}
		pid, err := strconv.Atoi(argv[0])
		if err != nil {
			return fmt.Errorf("bad pid %q: %v", argv[0], err)
		}
		target, err := strconv.ParseUint(argv[1], 0, 64)
		if err != nil {
			return fmt.Errorf("bad address %q: %v", argv[1], err)
		}
		factory, err := scan.FromProcess(pid, true)
		if err != nil {
			return err
		}
		c := scan.Everything().ThatsReadable()
		if *module != "" {
			c = c.WithName(*module)
		}
		session := factory.Pointer(target)
		switch *kind {
		case "relative":
			session = session.FindRelativeReferences(binary.LittleEndian, *instrLen, c)
		case "absolute":
			session = session.FindAbsoluteReferences(binary.LittleEndian, c)
		case "all":
			session = session.FindAllReferences(binary.LittleEndian, *instrLen, c)
		default:
			return fmt.Errorf("unknown reference kind %q", *kind)
		}
		for _, addr := range session.GetPool() {
			fmt.Printf("%#x\n", addr)
		}
		return nil
	})
	return cmd
}
