// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package region

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Perm is a bitmask of mapping permission flags, mirroring the flag column of
// /proc/<pid>/maps.
type Perm uint8

const (
	Read Perm = 1 << iota
	Write
	Exec
	Shared
	Private
)

// Readable reports whether the mapping is readable.
func (p Perm) Readable() bool { return p&Read != 0 }

// Writable reports whether the mapping is writable.
func (p Perm) Writable() bool { return p&Write != 0 }

// Executable reports whether the mapping is executable.
func (p Perm) Executable() bool { return p&Exec != 0 }

// String formats the permissions the way the kernel does, e.g. "r-xp".
func (p Perm) String() string {
	b := [4]byte{'-', '-', '-', '-'}
	if p&Read != 0 {
		b[0] = 'r'
	}
	if p&Write != 0 {
		b[1] = 'w'
	}
	if p&Exec != 0 {
		b[2] = 'x'
	}
	switch {
	case p&Shared != 0:
		b[3] = 's'
	case p&Private != 0:
		b[3] = 'p'
	}
	return string(b[:])
}

// NameKind discriminates the mapping name variants reported by the kernel.
type NameKind uint8

const (
	Anonymous NameKind = iota
	Heap
	Stack
	Vdso
	Vvar
	Vsyscall
	Path  // a file-backed mapping; Name.Str holds the filesystem path
	Other // any other bracketed or free-form name; Name.Str holds the raw text
)

// Name is the kernel's categorisation of a mapping. Only the Path and Other
// variants carry a string payload.
type Name struct {
	Kind NameKind
	Str  string
}

// PathName returns a Name for a file-backed mapping.
func PathName(path string) Name { return Name{Kind: Path, Str: path} }

// OtherName returns a Name for a free-form mapping name.
func OtherName(s string) Name { return Name{Kind: Other, Str: s} }

// Basename returns the final path element of a Path or Other name. The second
// return is false for all other variants, which have no basename.
func (n Name) Basename() (string, bool) {
	switch n.Kind {
	case Path:
		return filepath.Base(n.Str), true
	case Other:
		segs := strings.Split(n.Str, "/")
		return segs[len(segs)-1], true
	}
	return "", false
}

// String formats the name the way /proc/<pid>/maps would print it.
func (n Name) String() string {
	switch n.Kind {
	case Anonymous:
		return ""
	case Heap:
		return "[heap]"
	case Stack:
		return "[stack]"
	case Vdso:
		return "[vdso]"
	case Vvar:
		return "[vvar]"
	case Vsyscall:
		return "[vsyscall]"
	}
	return n.Str
}

// Region is one contiguous mapping of the snapshotted address space, covering
// the half-open range [From, To). Bytes holds a copy of the full mapping,
// captured at snapshot time; len(Bytes) == To-From always holds.
//
// A Region is immutable once inserted into an Index. Many pointers alias the
// same Region concurrently, so callers must not modify Bytes.
type Region struct {
	From  uint64
	To    uint64
	Perm  Perm
	Name  Name
	Bytes []byte
}

// Size returns the length of the mapping in bytes.
func (r *Region) Size() uint64 { return r.To - r.From }

// Contains reports whether addr falls inside [From, To).
func (r *Region) Contains(addr uint64) bool {
	return r.From <= addr && addr < r.To
}

func (r *Region) String() string {
	return fmt.Sprintf("%x-%x %s %s", r.From, r.To, r.Perm, r.Name)
}
