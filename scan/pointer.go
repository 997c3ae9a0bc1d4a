// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package scan

import (
	"encoding/binary"
	"math"

	"github.com/grailbio/memscan/region"
	"github.com/grailbio/memscan/sig"
	"github.com/grailbio/memscan/x86"
	"github.com/grailbio/memscan/xref"
)

// wordSize is the width of a target pointer. The engine targets 64-bit
// address spaces.
const wordSize = 8

// Pointer is an address into a shared snapshot, together with an invalid
// flag. Reads are bounds-checked against the snapshot; walks that cannot
// advance invalidate the pointer and leave the address where it was.
//
// Pointers are cheap values: copying one shares the snapshot, not the bytes.
// Two pointers are interchangeable iff their addresses are equal.
type Pointer struct {
	index   *region.Index
	addr    uint64
	invalid bool
}

// NewPointer returns a valid pointer at addr into the given snapshot.
func NewPointer(index *region.Index, addr uint64) Pointer {
	return Pointer{index: index, addr: addr}
}

// Address returns the current address.
func (p *Pointer) Address() uint64 { return p.addr }

// Equal reports whether two pointers refer to the same address. The snapshot
// handle and the invalid flag do not participate: a pointer is its address.
func (p *Pointer) Equal(q Pointer) bool { return p.addr == q.addr }

// Invalidated reports whether the pointer has been invalidated.
func (p *Pointer) Invalidated() bool { return p.invalid }

// Invalidate marks the pointer invalid. The flag persists until Revalidate.
func (p *Pointer) Invalidate() *Pointer {
	p.invalid = true
	return p
}

// Revalidate clears the invalid flag.
func (p *Pointer) Revalidate() *Pointer {
	p.invalid = false
	return p
}

// IsValid reports whether a read of the given length at the current address
// would stay inside a single snapshotted region.
func (p *Pointer) IsValid(length int) bool {
	if p.invalid {
		return false
	}
	r := p.index.Find(p.addr)
	return r != nil && r.To-p.addr >= uint64(length)
}

// Read returns the captured bytes at the current address, or nil when the
// read is invalid. The slice aliases the snapshot; callers must not modify
// it.
func (p *Pointer) Read(length int) []byte {
	if !p.IsValid(length) {
		return nil
	}
	r := p.index.Find(p.addr)
	offset := p.addr - r.From
	return r.Bytes[offset : offset+uint64(length)]
}

// ReadUint32 decodes a 32-bit integer at the current address.
func (p *Pointer) ReadUint32(order binary.ByteOrder) (uint32, bool) {
	b := p.Read(4)
	if b == nil {
		return 0, false
	}
	return order.Uint32(b), true
}

// ReadUint64 decodes a 64-bit integer at the current address.
func (p *Pointer) ReadUint64(order binary.ByteOrder) (uint64, bool) {
	b := p.Read(8)
	if b == nil {
		return 0, false
	}
	return order.Uint64(b), true
}

// Add advances the address by n. No validity check is made; the next read
// decides. On overflow the address saturates and the pointer invalidates.
func (p *Pointer) Add(n uint64) *Pointer {
	if p.addr > math.MaxUint64-n {
		p.addr = math.MaxUint64
		return p.Invalidate()
	}
	p.addr += n
	return p
}

// Sub moves the address back by n, saturating at zero and invalidating on
// underflow.
func (p *Pointer) Sub(n uint64) *Pointer {
	if n > p.addr {
		p.addr = 0
		return p.Invalidate()
	}
	p.addr -= n
	return p
}

// Dereference reads a pointer-sized word at the current address and jumps to
// it. Invalidates on read failure.
func (p *Pointer) Dereference(order binary.ByteOrder) *Pointer {
	b := p.Read(wordSize)
	if b == nil {
		return p.Invalidate()
	}
	p.addr = order.Uint64(b)
	return p
}

// RelativeToAbsolute decodes a signed 32-bit displacement at the current
// address and resolves it the way the CPU would: relative to the first byte
// past the displacement. Invalidates on read failure or if the resolved
// address leaves the 64-bit address space.
func (p *Pointer) RelativeToAbsolute(order binary.ByteOrder) *Pointer {
	b := p.Read(4)
	if b == nil {
		return p.Invalidate()
	}
	disp := int64(int32(order.Uint32(b)))
	next := p.addr + 4
	if next < p.addr {
		return p.Invalidate()
	}
	resolved := next + uint64(disp)
	if disp > 0 && resolved < next || disp < 0 && resolved > next {
		return p.Invalidate()
	}
	p.addr = resolved
	return p
}

// NextInstruction advances past the x86 instruction at the current address,
// using the given instruction-set mode. Invalidates when the bytes cannot be
// decoded.
func (p *Pointer) NextInstruction(isa x86.Isa) *Pointer {
	r := p.index.Find(p.addr)
	if r == nil {
		return p.Invalidate()
	}
	length := isa.Ld(r.Bytes[p.addr-r.From:])
	if length == 0 {
		return p.Invalidate()
	}
	p.addr += uint64(length)
	return p
}

// PrevOccurrence moves the pointer back to the last match of the signature
// strictly before the current address, within the containing region and the
// constraint window. Invalidates when the region is disallowed or nothing
// matches.
func (p *Pointer) PrevOccurrence(s sig.Signature, c Constraints) *Pointer {
	return p.occurrence(s, c, false)
}

// NextOccurrence moves the pointer forward to the first match of the
// signature at or after the current address, within the containing region
// and the constraint window. Invalidates when the region is disallowed or
// nothing matches.
func (p *Pointer) NextOccurrence(s sig.Signature, c Constraints) *Pointer {
	return p.occurrence(s, c, true)
}

func (p *Pointer) occurrence(s sig.Signature, c Constraints, forward bool) *Pointer {
	r := p.index.Find(p.addr)
	if r == nil || !c.Allows(r) {
		return p.Invalidate()
	}
	var lo, hi uint64
	var ok bool
	if forward {
		lo, hi, ok = c.clamp(p.addr, r.To)
	} else {
		lo, hi, ok = c.clamp(r.From, p.addr)
	}
	if !ok {
		return p.Invalidate()
	}
	window := r.Bytes[lo-r.From : hi-r.From]
	var hit int
	if forward {
		hit, ok = s.Next(window)
	} else {
		hit, ok = s.Prev(window)
	}
	if !ok {
		return p.Invalidate()
	}
	p.addr = lo + uint64(hit)
	return p
}

// Matches reports whether the bytes at the current address match the
// signature. A failed read reports false.
func (p *Pointer) Matches(s sig.Signature) bool {
	b := p.Read(s.Len())
	return b != nil && s.Matches(b)
}

// ModuleName returns the name of the region containing the current address.
func (p *Pointer) ModuleName() (region.Name, bool) {
	r := p.index.Find(p.addr)
	if r == nil {
		return region.Name{}, false
	}
	return r.Name, true
}

// FindAllReferences discovers every code or data site referencing the current
// address, either relatively or absolutely, across all regions the
// constraints allow. instrLen is the relative-reference instruction length
// hint (see xref.NewRelative). The receiver is not mutated.
func (p *Pointer) FindAllReferences(order binary.ByteOrder, instrLen int, c Constraints) []Pointer {
	return p.findReferences(c, func(base uint64) xref.Finder {
		return xref.NewCombined(order, base, instrLen, p.addr)
	})
}

// FindRelativeReferences discovers rel32 displacement sites that resolve to
// the current address, across all regions the constraints allow.
func (p *Pointer) FindRelativeReferences(order binary.ByteOrder, instrLen int, c Constraints) []Pointer {
	return p.findReferences(c, func(base uint64) xref.Finder {
		return xref.NewRelative(order, base, instrLen, p.addr)
	})
}

// FindAbsoluteReferences discovers stored pointer-sized words equal to the
// current address, across all regions the constraints allow.
func (p *Pointer) FindAbsoluteReferences(order binary.ByteOrder, c Constraints) []Pointer {
	return p.findReferences(c, func(base uint64) xref.Finder {
		return xref.NewAbsolute(order, p.addr)
	})
}

// findReferences walks the allowed regions in ascending order, handing the
// clamped window of each to a finder whose base is the window's start
// address. Offsets come back window-relative and ascending.
func (p *Pointer) findReferences(c Constraints, newFinder func(base uint64) xref.Finder) []Pointer {
	var refs []Pointer
	p.index.Do(func(r *region.Region) bool {
		if !c.Allows(r) {
			return false
		}
		lo, hi, ok := c.Clamp(r)
		if !ok {
			return false
		}
		window := r.Bytes[lo-r.From : hi-r.From]
		for _, o := range newFinder(lo).All(window) {
			refs = append(refs, NewPointer(p.index, lo+uint64(o)))
		}
		return false
	})
	return refs
}
