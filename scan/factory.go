// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package scan

import (
	"math"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/memscan/procmem"
	"github.com/grailbio/memscan/region"
	"github.com/grailbio/memscan/sig"
)

// Factory owns a snapshot of a target address space and seeds Sessions over
// it. The snapshot is captured once, eagerly, at construction; everything
// after that is a pure in-memory computation, unaffected by the target
// continuing to run.
type Factory struct {
	index *region.Index
}

// New wraps an already-built snapshot index.
func New(index *region.Index) *Factory {
	return &Factory{index: index}
}

// FromProcess snapshots the process with the given pid. captureDynamic
// selects whether anonymous mappings (heap, stack, [vdso], ...) are captured
// too; file-backed mappings always are.
func FromProcess(pid int, captureDynamic bool) (*Factory, error) {
	p, err := procmem.Open(pid)
	if err != nil {
		return nil, err
	}
	defer p.Close() // nolint: errcheck
	return FromSource(p, captureDynamic)
}

// FromSource snapshots the regions reported by src. Regions that cannot be
// read in full are omitted; an enumeration failure aborts the snapshot.
func FromSource(src procmem.Source, captureDynamic bool) (*Factory, error) {
	descs, err := src.Regions()
	if err != nil {
		return nil, errors.E(err, "enumerating memory regions")
	}
	selected := descs[:0]
	for _, d := range descs {
		if !captureDynamic && d.Dynamic() {
			continue
		}
		if d.From > math.MaxInt64 {
			// Kernel-half addresses are not readable through the mem file.
			continue
		}
		selected = append(selected, d)
	}

	// Capture the selected regions in parallel; the slot-per-region layout
	// keeps the resulting index deterministic.
	captured := make([]*region.Region, len(selected))
	_ = traverse.Each(len(selected), func(i int) error {
		d := selected[i]
		buf := make([]byte, d.To-d.From)
		n, err := src.ReadAt(buf, int64(d.From))
		if err != nil || n != len(buf) {
			log.Debug.Printf("skipping region %x-%x %s: read %d/%d bytes: %v",
				d.From, d.To, d.Name, n, len(buf), err)
			return nil
		}
		captured[i] = &region.Region{
			From:  d.From,
			To:    d.To,
			Perm:  d.Perm,
			Name:  d.Name,
			Bytes: buf,
		}
		return nil
	})

	index := &region.Index{}
	for _, r := range captured {
		if r != nil {
			index.Insert(r)
		}
	}
	log.Debug.Printf("captured %d of %d regions", index.Len(), len(descs))
	return New(index), nil
}

// Cache returns the shared snapshot index. Most callers never need it.
func (f *Factory) Cache() *region.Index { return f.index }

// Signature seeds a Session with one pointer per match of the pattern, in
// every region the constraints allow. Regions are visited in ascending
// address order, matches in ascending offset order.
func (f *Factory) Signature(pat sig.Signature, c Constraints) Session {
	regions := f.index.Regions()
	var (
		pending []uint64
		ri      int
	)
	return newSession(func() (Pointer, bool) {
		for {
			if len(pending) > 0 {
				addr := pending[0]
				pending = pending[1:]
				return NewPointer(f.index, addr), true
			}
			if ri >= len(regions) {
				return Pointer{}, false
			}
			r := regions[ri]
			ri++
			if !c.Allows(r) {
				continue
			}
			lo, hi, ok := c.Clamp(r)
			if !ok {
				continue
			}
			window := r.Bytes[lo-r.From : hi-r.From]
			for _, o := range pat.All(window) {
				pending = append(pending, lo+uint64(o))
			}
		}
	})
}

// Pointers seeds a Session from a list of addresses.
func (f *Factory) Pointers(addrs []uint64) Session {
	i := 0
	return newSession(func() (Pointer, bool) {
		if i >= len(addrs) {
			return Pointer{}, false
		}
		addr := addrs[i]
		i++
		return NewPointer(f.index, addr), true
	})
}

// Pointer seeds a Session with a single address.
func (f *Factory) Pointer(addr uint64) Session {
	return f.Pointers([]uint64{addr})
}
