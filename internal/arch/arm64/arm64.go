// Package arm64 decodes and encodes the AArch64 addressing instructions
// that signature call sites use to materialize global addresses.
//
// Every decoder validates the fixed bits of its encoding first and
// returns arch.ErrDecodeMismatch when they do not match.
package arm64

import (
	"errors"
	"fmt"

	"uelocate/internal/arch"
)

// ErrNotEncodable is returned by the encoders for out of range operands.
var ErrNotEncodable = errors.New("operand not encodable")

const pageShift = 12

// DecodeLiteralLoadOffset returns the signed byte offset of an
// "ldr rt, label" literal load (GPR or SIMD, any size).
func DecodeLiteralLoadOffset(insn uint32) (int64, error) {
	if insn&0x3b000000 != 0x18000000 {
		return 0, arch.Mismatch(arch.OpLiteral, insn)
	}
	imm19 := uint64(insn>>5) & 0x7ffff
	return arch.SignExtend(imm19, 19) << 2, nil
}

// DecodePageRelativeAddress returns the signed delta encoded by adrp (in
// bytes, a multiple of 4096) or adr. For adrp the delta is relative to the
// page of the instruction; for adr it is relative to the instruction itself.
func DecodePageRelativeAddress(insn uint32) (int64, error) {
	immlo := uint64(insn>>29) & 3
	immhi := uint64(insn>>5) & 0x7ffff
	imm := arch.SignExtend(immhi<<2|immlo, 21)

	switch insn & 0x9f000000 {
	case 0x90000000: // adrp
		return imm << pageShift, nil
	case 0x10000000: // adr
		return imm, nil
	}
	return 0, arch.Mismatch(arch.OpPageRelative, insn)
}

// DecodeAddSubImmediate returns the immediate of add/sub (immediate),
// negated for sub. The flag-setting forms are accepted.
func DecodeAddSubImmediate(insn uint32) (int64, error) {
	if insn&0x1f800000 != 0x11000000 {
		return 0, arch.Mismatch(arch.OpAddSub, insn)
	}
	imm := int64(insn>>10) & 0xfff
	if insn&(1<<22) != 0 {
		imm <<= 12
	}
	if insn&(1<<30) != 0 {
		imm = -imm
	}
	return imm, nil
}

// DecodeLoadStoreUnsignedImmediate returns the byte offset of a load/store
// with unsigned scaled immediate, e.g. "ldrb w1, [x0, #0x20]".
func DecodeLoadStoreUnsignedImmediate(insn uint32) (int64, error) {
	if insn&0x3b000000 != 0x39000000 {
		return 0, arch.Mismatch(arch.OpLoadStore, insn)
	}
	scale := insn >> 30
	simd := insn&(1<<26) != 0
	if opc := (insn >> 22) & 3; simd && opc >= 2 {
		if scale != 0 {
			return 0, arch.Mismatch(arch.OpLoadStore, insn)
		}
		scale = 4 // 128-bit q register
	}
	return int64(insn>>10) & 0xfff << scale, nil
}

// PageOf returns the 4KB page containing pc.
func PageOf(pc uint64) uint64 {
	return pc &^ (1<<pageShift - 1)
}

// EncodeADRP builds "adrp xd, page(pc)+delta". delta must be page aligned.
func EncodeADRP(rd uint32, delta int64) (uint32, error) {
	if delta&(1<<pageShift-1) != 0 {
		return 0, fmt.Errorf("%w: adrp delta %#x not page aligned", ErrNotEncodable, delta)
	}
	insn, err := encodeADR(rd, delta>>pageShift)
	if err != nil {
		return 0, err
	}
	return insn | 0x90000000, nil
}

// EncodeADR builds "adr xd, pc+off".
func EncodeADR(rd uint32, off int64) (uint32, error) {
	insn, err := encodeADR(rd, off)
	if err != nil {
		return 0, err
	}
	return insn | 0x10000000, nil
}

func encodeADR(rd uint32, imm int64) (uint32, error) {
	if imm < -(1<<20) || imm >= 1<<20 {
		return 0, fmt.Errorf("%w: adr immediate %#x out of range", ErrNotEncodable, imm)
	}
	u := uint32(imm) & 0x1fffff
	return (u&3)<<29 | (u>>2)<<5 | rd&31, nil
}

// EncodeAddSubImmediate builds a 64-bit "add xd, xn, #imm" or, when imm is
// negative, "sub xd, xn, #-imm". A shifted form is used for multiples of 4096.
func EncodeAddSubImmediate(rd, rn uint32, imm int64) (uint32, error) {
	insn := uint32(0x91000000)
	if imm < 0 {
		insn |= 1 << 30
		imm = -imm
	}

	switch {
	case imm < 1<<12:
	case imm&0xfff == 0 && imm>>12 < 1<<12:
		insn |= 1 << 22
		imm >>= 12
	default:
		return 0, fmt.Errorf("%w: add immediate %#x", ErrNotEncodable, imm)
	}
	return insn | uint32(imm)<<10 | (rn&31)<<5 | rd&31, nil
}

// EncodeLoadUnsignedImmediate builds a GPR load of 1<<size bytes,
// e.g. size 0 is ldrb and size 3 is "ldr xt, [xn, #off]".
func EncodeLoadUnsignedImmediate(size, rt, rn uint32, off uint32) (uint32, error) {
	if size > 3 {
		return 0, fmt.Errorf("%w: load size %d", ErrNotEncodable, size)
	}
	if off&(1<<size-1) != 0 || off>>size >= 1<<12 {
		return 0, fmt.Errorf("%w: load offset %#x for size %d", ErrNotEncodable, off, size)
	}
	return size<<30 | 0x39400000 | (off>>size)<<10 | (rn&31)<<5 | rt&31, nil
}

// EncodeLiteralLoad builds "ldr xt, pc+off" (or wt when wide is false).
func EncodeLiteralLoad(wide bool, rt uint32, off int64) (uint32, error) {
	if off&3 != 0 || off < -(1<<20) || off >= 1<<20 {
		return 0, fmt.Errorf("%w: literal offset %#x", ErrNotEncodable, off)
	}
	insn := uint32(0x18000000)
	if wide {
		insn |= 1 << 30
	}
	return insn | (uint32(off>>2)&0x7ffff)<<5 | rt&31, nil
}
