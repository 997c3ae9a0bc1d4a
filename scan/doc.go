// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package scan is the signature-scanning and cross-reference discovery
// engine. A Factory snapshots a process's address space into an immutable
// region index; Sessions then compose bounds-checked pointer walks -
// arithmetic, dereferences, signature searches, instruction skips, xref
// discovery - over lazy streams of pointers into that snapshot. The
// addresses that survive every step are the result.
//
// A typical lookup chains a handful of steps:
//
//	factory, err := scan.FromProcess(pid, true)
//	...
//	pat, err := sig.IDA("E8 ?? ?? ?? ?? 48 8B 05")
//	...
//	addr, err := factory.Signature(pat, scan.Everything().ThatsExecutable()).
//		StepForwards(1).
//		RelativeToAbsolute(binary.LittleEndian).
//		GetPointer()
//
// All walks are bounds-checked against the snapshot; a pointer that cannot
// complete a step is invalidated and silently dropped before the next step.
package scan
