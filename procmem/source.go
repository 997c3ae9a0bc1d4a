// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package procmem

import (
	"io"

	"github.com/grailbio/memscan/region"
)

// RegionDesc describes one mapped region of a target address space, as
// reported by /proc/<pid>/maps: the half-open virtual address range
// [From, To), its permissions and name, the file offset of the mapping, and
// the backing device and inode. Anonymous mappings (heap, stack, [vdso], ...)
// report a zero device.
type RegionDesc struct {
	From     uint64
	To       uint64
	Perm     region.Perm
	Name     region.Name
	Offset   uint64
	DevMajor uint32
	DevMinor uint32
	Inode    uint64
}

// Dynamic reports whether the region is an anonymous mapping, i.e. one with
// no backing device.
func (d *RegionDesc) Dynamic() bool {
	return d.DevMajor == 0 && d.DevMinor == 0
}

// Source yields the region list of a target address space together with
// random access to its bytes. ReadAt follows the io.ReaderAt contract; the
// offset is a virtual address in the target.
type Source interface {
	Regions() ([]RegionDesc, error)
	io.ReaderAt
}
