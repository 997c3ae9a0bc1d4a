// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package procmem

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Process is a Source backed by the /proc entry of a live process. Reads go
// through /proc/<pid>/mem, so they observe the target exactly as it is at
// read time without stopping it.
type Process struct {
	pid int
	mem *os.File
}

var _ Source = (*Process)(nil)

// Open opens the memory of the process with the given pid. The caller needs
// ptrace-read permission on the target (the same rule the kernel applies to
// /proc/<pid>/mem).
func Open(pid int) (*Process, error) {
	mem, err := os.Open(fmt.Sprintf("/proc/%d/mem", pid))
	if err != nil {
		return nil, errors.Wrapf(err, "open memory of pid %d", pid)
	}
	return &Process{pid: pid, mem: mem}, nil
}

// Self opens the memory of the calling process.
func Self() (*Process, error) {
	return Open(os.Getpid())
}

// Pid returns the target's process id.
func (p *Process) Pid() int { return p.pid }

// Regions parses /proc/<pid>/maps and returns the current region list.
func (p *Process) Regions() ([]RegionDesc, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", p.pid))
	if err != nil {
		return nil, errors.Wrapf(err, "open maps of pid %d", p.pid)
	}
	defer f.Close() // nolint: errcheck
	return ParseMaps(f)
}

// ReadAt reads len(b) bytes of target memory starting at virtual address off.
// It implements io.ReaderAt: short reads return a non-nil error.
func (p *Process) ReadAt(b []byte, off int64) (int, error) {
	n := 0
	for n < len(b) {
		m, err := unix.Pread(int(p.mem.Fd()), b[n:], off+int64(n))
		if err != nil {
			return n, err
		}
		if m == 0 {
			return n, io.EOF
		}
		n += m
	}
	return n, nil
}

// Close releases the handle on the target's memory.
func (p *Process) Close() error {
	return p.mem.Close()
}
