// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package procmem provides access to the memory of a running process through
// the /proc filesystem: enumeration of the mapped regions from
// /proc/<pid>/maps and random-access reads from /proc/<pid>/mem.
//
// The Source interface is the seam between snapshotting and the OS: anything
// that can list region descriptors and serve positioned reads can back a
// snapshot, which keeps the snapshot engine testable without a live process.
package procmem
