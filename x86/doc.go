// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package x86 implements a length disassembler for the x86 and x86-64
// instruction sets: it computes how many bytes the instruction at the start
// of a buffer occupies, without decoding its meaning. Legacy prefixes, REX,
// the 0F/0F38/0F3A escape maps, and the VEX encodings are handled; anything
// undecodable reports length 0.
package x86
