// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// memscan inspects the memory of a running process: it lists mapped regions,
// scans for IDA-style signatures, discovers cross references to an address,
// and saves snapshots for offline analysis.
package main

import (
	"log"

	"v.io/x/lib/cmdline"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "memscan",
			Short:    "Tools for inspecting the memory of a running process",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdRegions(),
				newCmdScan(),
				newCmdXrefs(),
				newCmdSave(),
				newCmdDump(),
			},
		})
}
