// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package xref locates cross references: byte offsets in a buffer that refer
// to a given target address, either as a stored pointer-sized value
// (absolute) or as a signed 32-bit displacement relative to the instruction
// pointer (the x86-64 rel32 convention).
package xref

import "encoding/binary"

// Finder yields the offsets of every reference to a fixed target address
// within a byte slice.
type Finder interface {
	// All returns all matching offsets in ascending order.
	All(b []byte) []int
}

type absolute struct {
	order  binary.ByteOrder
	target uint64
}

// NewAbsolute returns a Finder matching offsets where the pointer-sized word
// decoded with the given byte order equals target.
func NewAbsolute(order binary.ByteOrder, target uint64) Finder {
	return absolute{order: order, target: target}
}

func (f absolute) All(b []byte) []int {
	var offsets []int
	for o := 0; o+8 <= len(b); o++ {
		if f.order.Uint64(b[o:]) == f.target {
			offsets = append(offsets, o)
		}
	}
	return offsets
}

type relative struct {
	order    binary.ByteOrder
	base     uint64
	instrLen int
	target   uint64
}

// NewRelative returns a Finder matching offsets o where the signed 32-bit
// displacement at o resolves to target. base is the virtual address of b[0];
// instrLen is added to the displacement's own address, base+o, to get the
// address the displacement is relative to: 4 when the displacement is the
// last field of its instruction (as in an E8 call rel32), more when an
// immediate follows it.
func NewRelative(order binary.ByteOrder, base uint64, instrLen int, target uint64) Finder {
	return relative{order: order, base: base, instrLen: instrLen, target: target}
}

func (f relative) All(b []byte) []int {
	var offsets []int
	for o := 0; o+4 <= len(b); o++ {
		disp := int32(f.order.Uint32(b[o:]))
		resolved := f.base + uint64(o) + uint64(f.instrLen) + uint64(int64(disp))
		if resolved == f.target {
			offsets = append(offsets, o)
		}
	}
	return offsets
}

type combined struct {
	rel Finder
	abs Finder
}

// NewCombined returns a Finder matching both relative and absolute
// references, de-duplicated by offset.
func NewCombined(order binary.ByteOrder, base uint64, instrLen int, target uint64) Finder {
	return combined{
		rel: NewRelative(order, base, instrLen, target),
		abs: NewAbsolute(order, target),
	}
}

func (f combined) All(b []byte) []int {
	rel := f.rel.All(b)
	abs := f.abs.All(b)
	// Merge the two ascending streams, dropping offsets found by both.
	offsets := make([]int, 0, len(rel)+len(abs))
	i, j := 0, 0
	for i < len(rel) && j < len(abs) {
		switch {
		case rel[i] < abs[j]:
			offsets = append(offsets, rel[i])
			i++
		case rel[i] > abs[j]:
			offsets = append(offsets, abs[j])
			j++
		default:
			offsets = append(offsets, rel[i])
			i++
			j++
		}
	}
	offsets = append(offsets, rel[i:]...)
	offsets = append(offsets, abs[j:]...)
	return offsets
}
