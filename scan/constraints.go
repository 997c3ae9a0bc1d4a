// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package scan

import (
	"math"

	"github.com/grailbio/memscan/region"
)

// Predicate is a custom region filter.
type Predicate func(*region.Region) bool

// want is a tri-state permission requirement.
type want uint8

const (
	dontCare want = iota
	wantSet
	wantClear
)

func (w want) allows(bit bool) bool {
	switch w {
	case wantSet:
		return bit
	case wantClear:
		return !bit
	}
	return true
}

// Constraints restricts which regions, and which address window within them,
// a search may touch. Everything() is the identity constraint; the zero
// Constraints value has an empty address window and allows no region.
// Constraints is a value: every
// builder method returns a modified copy, so partial constraint chains can be
// reused freely.
type Constraints struct {
	lo, hi     uint64 // half-open address window [lo, hi)
	readable   want
	writable   want
	executable want
	preds      []Predicate
}

// Everything allows every region and the full address range.
func Everything() Constraints {
	return Constraints{hi: math.MaxUint64}
}

// From sets the lower bound of the address window, raising the upper bound if
// it would fall below.
func (c Constraints) From(v uint64) Constraints {
	c.lo = v
	if c.hi < c.lo {
		c.hi = c.lo
	}
	return c
}

// To sets the upper bound of the address window, lowering the lower bound if
// it would exceed it.
func (c Constraints) To(v uint64) Constraints {
	c.hi = v
	if c.lo > c.hi {
		c.lo = c.hi
	}
	return c
}

// WithName requires the region name's basename to equal base. Regions whose
// name variant has no basename (heap, stack, anonymous, ...) never match.
func (c Constraints) WithName(base string) Constraints {
	return c.WithPredicate(func(r *region.Region) bool {
		b, ok := r.Name.Basename()
		return ok && b == base
	})
}

// WithPredicate appends a custom region predicate. All predicates must hold.
func (c Constraints) WithPredicate(p Predicate) Constraints {
	// Full-slice append so sibling copies built from the same base never
	// share appended elements.
	c.preds = append(c.preds[:len(c.preds):len(c.preds)], p)
	return c
}

// ThatsReadable requires the region to be readable.
func (c Constraints) ThatsReadable() Constraints {
	c.readable = wantSet
	return c
}

// ThatsNotReadable requires the region to not be readable.
func (c Constraints) ThatsNotReadable() Constraints {
	c.readable = wantClear
	return c
}

// ThatsWritable requires the region to be writable.
func (c Constraints) ThatsWritable() Constraints {
	c.writable = wantSet
	return c
}

// ThatsNotWritable requires the region to not be writable.
func (c Constraints) ThatsNotWritable() Constraints {
	c.writable = wantClear
	return c
}

// ThatsExecutable requires the region to be executable.
func (c Constraints) ThatsExecutable() Constraints {
	c.executable = wantSet
	return c
}

// ThatsNotExecutable requires the region to not be executable.
func (c Constraints) ThatsNotExecutable() Constraints {
	c.executable = wantClear
	return c
}

// AllowsAddress reports whether addr falls inside the constraint window.
func (c Constraints) AllowsAddress(addr uint64) bool {
	return c.lo <= addr && addr < c.hi
}

// Allows reports whether a search may touch the region: every predicate
// holds, the constraint window overlaps [r.From, r.To), and each permission
// requirement matches.
func (c Constraints) Allows(r *region.Region) bool {
	for _, p := range c.preds {
		if !p(r) {
			return false
		}
	}
	if c.lo >= r.To || c.hi <= r.From {
		return false
	}
	return c.readable.allows(r.Perm.Readable()) &&
		c.writable.allows(r.Perm.Writable()) &&
		c.executable.allows(r.Perm.Executable())
}

// Clamp intersects the constraint window with [r.From, r.To). The bounds are
// absolute virtual addresses; subtract r.From before indexing r.Bytes. ok is
// false when the intersection is empty.
func (c Constraints) Clamp(r *region.Region) (lo, hi uint64, ok bool) {
	return c.clamp(r.From, r.To)
}

// clamp intersects the constraint window with an arbitrary absolute window.
func (c Constraints) clamp(from, to uint64) (lo, hi uint64, ok bool) {
	lo, hi = from, to
	if lo < c.lo {
		lo = c.lo
	}
	if hi > c.hi {
		hi = c.hi
	}
	if lo >= hi {
		return 0, 0, false
	}
	return lo, hi, true
}
