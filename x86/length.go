// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package x86

// Isa selects an instruction-set mode for length decoding.
type Isa interface {
	// Ld returns the length in bytes of the first instruction in code, or 0
	// if the bytes cannot be decoded as a single instruction.
	Ld(code []byte) int
}

// X86 decodes 32-bit protected-mode code, X64 decodes 64-bit long-mode code.
var (
	X86 Isa = mode{bits: 32}
	X64 Isa = mode{bits: 64}
)

// maxInstLen is the architectural limit; longer decodings are rejected by the
// instruction fetch unit, so we reject them too.
const maxInstLen = 15

// Per-opcode flags. An opcode may carry several immediate flags; their sizes
// add up (e.g. ENTER is imm16+imm8, far CALL is imm16+immZ).
const (
	opModRM  = 1 << iota // ModRM byte (plus SIB/displacement) follows
	opImm8               // 8-bit immediate
	opImm16              // 16-bit immediate
	opImmZ               // 16/32-bit immediate, by operand size
	opImmV               // 16/32/64-bit immediate, by full operand size
	opMOffs              // address-sized memory offset
	opPrefix             // legacy prefix byte
	opInvalid            // undefined encoding
)

type mode struct {
	bits int
}

func (m mode) Ld(code []byte) int {
	var (
		pos      int
		opSize16 bool // 66 prefix seen
		addrOvr  bool // 67 prefix seen
		rexW     bool
	)

	// Legacy prefixes, then REX (64-bit only; must be last before the opcode).
	for {
		if pos >= len(code) || pos >= maxInstLen {
			return 0
		}
		b := code[pos]
		if opcode[b]&opPrefix != 0 {
			switch b {
			case 0x66:
				opSize16 = true
			case 0x67:
				addrOvr = true
			}
			pos++
			rexW = false
			continue
		}
		if m.bits == 64 && b&0xF0 == 0x40 {
			rexW = b&0x08 != 0
			pos++
			continue
		}
		break
	}

	op := code[pos]
	pos++
	flags := opcode[op]

	switch {
	case m.bits == 64 && invalidIn64[op]:
		return 0
	case op == 0x0F:
		var ok bool
		flags, pos, ok = m.escape(code, pos)
		if !ok {
			return 0
		}
	case m.bits == 64 && (op == 0xC4 || op == 0xC5):
		var ok bool
		flags, pos, ok = m.vex(code, pos, op)
		if !ok {
			return 0
		}
	case op == 0xF6 || op == 0xF7:
		// test r/m, imm carries an immediate; the other /reg forms do not.
		if pos >= len(code) {
			return 0
		}
		flags = opModRM
		if code[pos]>>3&7 <= 1 {
			if op == 0xF6 {
				flags |= opImm8
			} else {
				flags |= opImmZ
			}
		}
	}

	if flags&opInvalid != 0 {
		return 0
	}

	if flags&opModRM != 0 {
		n, ok := m.modrmLen(code, pos, addrOvr)
		if !ok {
			return 0
		}
		pos += n
	}

	if flags&opImm8 != 0 {
		pos++
	}
	if flags&opImm16 != 0 {
		pos += 2
	}
	if flags&opImmZ != 0 {
		if opSize16 {
			pos += 2
		} else {
			pos += 4
		}
	}
	if flags&opImmV != 0 {
		switch {
		case rexW:
			pos += 8
		case opSize16:
			pos += 2
		default:
			pos += 4
		}
	}
	if flags&opMOffs != 0 {
		n := 4
		if m.bits == 64 {
			n = 8
		}
		if addrOvr {
			n /= 2
		}
		pos += n
	}

	if pos > len(code) || pos > maxInstLen {
		return 0
	}
	return pos
}

// escape decodes the 0F, 0F 38, and 0F 3A opcode maps. It returns the opcode
// flags and the position just past the opcode byte.
func (m mode) escape(code []byte, pos int) (uint8, int, bool) {
	if pos >= len(code) {
		return 0, 0, false
	}
	op := code[pos]
	pos++
	switch op {
	case 0x38:
		if pos >= len(code) {
			return 0, 0, false
		}
		// All of the 0F 38 map takes a ModRM and no immediate.
		return opModRM, pos + 1, true
	case 0x3A:
		if pos >= len(code) {
			return 0, 0, false
		}
		// All of the 0F 3A map takes a ModRM and an imm8.
		return opModRM | opImm8, pos + 1, true
	}
	return opcode0F[op], pos, true
}

// vex decodes the C4/C5 VEX prefixes. The embedded map-select bits pick one
// of the escape maps; lengths then follow the chosen map's rules.
func (m mode) vex(code []byte, pos int, op byte) (uint8, int, bool) {
	mapSel := 1 // C5 always implies the 0F map
	if op == 0xC4 {
		if pos >= len(code) {
			return 0, 0, false
		}
		mapSel = int(code[pos] & 0x1F)
		pos++
	}
	if pos >= len(code) {
		return 0, 0, false
	}
	pos++ // the final VEX payload byte
	if pos >= len(code) {
		return 0, 0, false
	}
	vexOp := code[pos]
	pos++
	switch mapSel {
	case 1:
		return opcode0F[vexOp], pos, true
	case 2:
		return opModRM, pos, true
	case 3:
		return opModRM | opImm8, pos, true
	}
	return 0, 0, false
}

// modrmLen returns the number of bytes occupied by a ModRM byte and its SIB
// and displacement, starting at code[pos].
func (m mode) modrmLen(code []byte, pos int, addrOvr bool) (int, bool) {
	if pos >= len(code) {
		return 0, false
	}
	modrm := code[pos]
	mod := modrm >> 6
	rm := modrm & 7
	n := 1

	if mod == 3 {
		return n, true
	}

	if m.bits == 32 && addrOvr {
		// 16-bit addressing has no SIB and 16-bit displacements.
		switch mod {
		case 0:
			if rm == 6 {
				n += 2
			}
		case 1:
			n++
		case 2:
			n += 2
		}
		return n, true
	}

	if rm == 4 {
		if pos+n >= len(code) {
			return 0, false
		}
		sib := code[pos+n]
		n++
		if mod == 0 && sib&7 == 5 {
			n += 4
		}
	} else if mod == 0 && rm == 5 {
		// disp32, or RIP-relative in 64-bit mode; four bytes either way.
		n += 4
	}
	switch mod {
	case 1:
		n++
	case 2:
		n += 4
	}
	return n, true
}

// invalidIn64 marks one-byte opcodes that were removed in long mode. C4 and
// C5 are absent: they re-encode as VEX there.
var invalidIn64 = [256]bool{
	0x06: true, 0x07: true, 0x0E: true, 0x16: true, 0x17: true,
	0x1E: true, 0x1F: true, 0x27: true, 0x2F: true, 0x37: true,
	0x3F: true, 0x60: true, 0x61: true, 0x62: true, 0x82: true,
	0x9A: true, 0xCE: true, 0xD4: true, 0xD5: true, 0xD6: true,
	0xEA: true,
}

// opcode is the one-byte opcode map.
var opcode = [256]uint8{
	// 00-07: add r/m forms, al/eax imm forms, push/pop es
	opModRM, opModRM, opModRM, opModRM, opImm8, opImmZ, 0, 0,
	// 08-0F: or; 0F is the two-byte escape, handled out of line
	opModRM, opModRM, opModRM, opModRM, opImm8, opImmZ, 0, 0,
	// 10-17: adc, push/pop ss
	opModRM, opModRM, opModRM, opModRM, opImm8, opImmZ, 0, 0,
	// 18-1F: sbb, push/pop ds
	opModRM, opModRM, opModRM, opModRM, opImm8, opImmZ, 0, 0,
	// 20-27: and, es:, daa
	opModRM, opModRM, opModRM, opModRM, opImm8, opImmZ, opPrefix, 0,
	// 28-2F: sub, cs:, das
	opModRM, opModRM, opModRM, opModRM, opImm8, opImmZ, opPrefix, 0,
	// 30-37: xor, ss:, aaa
	opModRM, opModRM, opModRM, opModRM, opImm8, opImmZ, opPrefix, 0,
	// 38-3F: cmp, ds:, aas
	opModRM, opModRM, opModRM, opModRM, opImm8, opImmZ, opPrefix, 0,
	// 40-4F: inc/dec reg (REX prefixes in long mode, special-cased)
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	// 50-5F: push/pop reg
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	// 60-67: pusha, popa, bound, arpl/movsxd, fs:, gs:, opsize, addrsize
	0, 0, opModRM, opModRM, opPrefix, opPrefix, opPrefix, opPrefix,
	// 68-6F: push immz, imul immz, push imm8, imul imm8, ins/outs
	opImmZ, opModRM | opImmZ, opImm8, opModRM | opImm8, 0, 0, 0, 0,
	// 70-7F: jcc rel8
	opImm8, opImm8, opImm8, opImm8, opImm8, opImm8, opImm8, opImm8,
	opImm8, opImm8, opImm8, opImm8, opImm8, opImm8, opImm8, opImm8,
	// 80-87: group1, test, xchg
	opModRM | opImm8, opModRM | opImmZ, opModRM | opImm8, opModRM | opImm8,
	opModRM, opModRM, opModRM, opModRM,
	// 88-8F: mov, lea, mov seg, pop r/m
	opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM,
	// 90-9F: xchg reg, cbw/cwd, far call, wait, pushf/popf, sahf/lahf
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, opImm16 | opImmZ, 0, 0, 0, 0, 0,
	// A0-A7: mov moffs, movs, cmps
	opMOffs, opMOffs, opMOffs, opMOffs, 0, 0, 0, 0,
	// A8-AF: test imm, stos, lods, scas
	opImm8, opImmZ, 0, 0, 0, 0, 0, 0,
	// B0-B7: mov reg8, imm8
	opImm8, opImm8, opImm8, opImm8, opImm8, opImm8, opImm8, opImm8,
	// B8-BF: mov reg, immv (imm64 under REX.W)
	opImmV, opImmV, opImmV, opImmV, opImmV, opImmV, opImmV, opImmV,
	// C0-C7: shift imm8, ret imm16, ret, les/lds (VEX in long mode), mov imm
	opModRM | opImm8, opModRM | opImm8, opImm16, 0,
	opModRM, opModRM, opModRM | opImm8, opModRM | opImmZ,
	// C8-CF: enter, leave, retf, int3, int imm8, into, iret
	opImm16 | opImm8, 0, opImm16, 0, 0, opImm8, 0, 0,
	// D0-D7: shift group, aam, aad, salc, xlat
	opModRM, opModRM, opModRM, opModRM, opImm8, opImm8, 0, 0,
	// D8-DF: x87
	opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM,
	// E0-E7: loop/jcxz rel8, in/out imm8
	opImm8, opImm8, opImm8, opImm8, opImm8, opImm8, opImm8, opImm8,
	// E8-EF: call relz, jmp relz, far jmp, jmp rel8, in/out dx
	opImmZ, opImmZ, opImm16 | opImmZ, opImm8, 0, 0, 0, 0,
	// F0-F7: lock, int1, repne, rep, hlt, cmc, group3 (imm special-cased)
	opPrefix, 0, opPrefix, opPrefix, 0, 0, opModRM, opModRM,
	// F8-FF: clc..std, group4, group5
	0, 0, 0, 0, 0, 0, opModRM, opModRM,
}

// opcode0F is the two-byte (0F xx) opcode map.
var opcode0F = [256]uint8{
	// 00-0F: system, syscall/sysret, ud2, prefetch, 3DNow!
	opModRM, opModRM, opModRM, opModRM, opInvalid, 0, 0, 0,
	0, 0, opInvalid, 0, opInvalid, opModRM, 0, opModRM | opImm8,
	// 10-1F: SSE moves, hint nops
	opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM,
	opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM,
	// 20-2F: mov cr/dr, SSE converts
	opModRM, opModRM, opModRM, opModRM, opInvalid, opInvalid, opInvalid, opInvalid,
	opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM,
	// 30-3F: msr/tsc, sysenter/sysexit; 38 and 3A escape out of line
	0, 0, 0, 0, 0, 0, opInvalid, 0,
	opInvalid, opInvalid, opInvalid, opInvalid, opInvalid, opInvalid, opInvalid, opInvalid,
	// 40-4F: cmovcc
	opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM,
	opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM,
	// 50-5F: SSE arithmetic
	opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM,
	opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM,
	// 60-6F: MMX/SSE packs
	opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM,
	opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM,
	// 70-7F: shuffles and shifts (imm8 forms), emms
	opModRM | opImm8, opModRM | opImm8, opModRM | opImm8, opModRM | opImm8,
	opModRM, opModRM, opModRM, 0,
	opModRM, opModRM, opInvalid, opInvalid, opModRM, opModRM, opModRM, opModRM,
	// 80-8F: jcc relz
	opImmZ, opImmZ, opImmZ, opImmZ, opImmZ, opImmZ, opImmZ, opImmZ,
	opImmZ, opImmZ, opImmZ, opImmZ, opImmZ, opImmZ, opImmZ, opImmZ,
	// 90-9F: setcc
	opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM,
	opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM,
	// A0-AF: push/pop fs/gs, cpuid, bt, shld/shrd, fences, imul
	0, 0, 0, opModRM, opModRM | opImm8, opModRM, opInvalid, opInvalid,
	0, 0, 0, opModRM, opModRM | opImm8, opModRM, opModRM, opModRM,
	// B0-BF: cmpxchg, mov[zs]x, bit groups
	opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM,
	opModRM, opModRM, opModRM | opImm8, opModRM, opModRM, opModRM, opModRM, opModRM,
	// C0-CF: xadd, cmpps, pinsrw/pextrw, cmpxchg8b, bswap
	opModRM, opModRM, opModRM | opImm8, opModRM,
	opModRM | opImm8, opModRM | opImm8, opModRM | opImm8, opModRM,
	0, 0, 0, 0, 0, 0, 0, 0,
	// D0-DF: SSE/MMX
	opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM,
	opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM,
	// E0-EF
	opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM,
	opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM,
	// F0-FF: SSE, ud0
	opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM,
	opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM, opModRM,
}
