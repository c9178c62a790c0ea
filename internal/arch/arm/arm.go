// Package arm decodes and encodes the A32 addressing instructions found at
// 32-bit signature call sites. A32 has no page-relative form, so there is
// no page-relative decoder. All encoders emit the always condition.
package arm

import (
	"errors"
	"fmt"
	"math/bits"

	"uelocate/internal/arch"
)

// ErrNotEncodable is returned by the encoders for out of range operands.
var ErrNotEncodable = errors.New("operand not encodable")

const condAL = 0xe << 28

// DecodeLiteralLoadOffset returns the signed offset of "ldr rt, [pc, #±imm12]".
// The offset is relative to the instruction address plus 8.
func DecodeLiteralLoadOffset(insn uint32) (int64, error) {
	if insn&0x0f7f0000 != 0x051f0000 {
		return 0, arch.Mismatch(arch.OpLiteral, insn)
	}
	return signedImm12(insn), nil
}

// DecodeAddSubImmediate returns the rotated immediate of
// "add/sub rd, rn, #imm", negated for sub.
func DecodeAddSubImmediate(insn uint32) (int64, error) {
	var neg bool
	switch insn & 0x0fe00000 {
	case 0x02800000: // add
	case 0x02400000: // sub
		neg = true
	default:
		return 0, arch.Mismatch(arch.OpAddSub, insn)
	}

	rot := int((insn >> 8) & 0xf)
	imm := int64(bits.RotateLeft32(insn&0xff, -2*rot))
	if neg {
		imm = -imm
	}
	return imm, nil
}

// DecodeLoadStoreUnsignedImmediate returns the offset of a word or byte
// load/store "ldr{b} rt, [rn, #±imm12]". The U bit selects the sign.
func DecodeLoadStoreUnsignedImmediate(insn uint32) (int64, error) {
	// offset addressing: P=1, W=0
	if insn&0x0f200000 != 0x05000000 {
		return 0, arch.Mismatch(arch.OpLoadStore, insn)
	}
	return signedImm12(insn), nil
}

func signedImm12(insn uint32) int64 {
	imm := int64(insn & 0xfff)
	if insn&(1<<23) == 0 {
		imm = -imm
	}
	return imm
}

// EncodeLiteralLoad builds "ldr rt, [pc, #off]".
func EncodeLiteralLoad(rt uint32, off int32) (uint32, error) {
	return EncodeLoadImmediate(false, rt, 15, off)
}

// EncodeLoadImmediate builds "ldr rt, [rn, #off]" or ldrb when byteLoad is set.
func EncodeLoadImmediate(byteLoad bool, rt, rn uint32, off int32) (uint32, error) {
	insn := uint32(condAL | 0x05100000)
	if off >= 0 {
		insn |= 1 << 23
	} else {
		off = -off
	}
	if off >= 1<<12 {
		return 0, fmt.Errorf("%w: load offset %#x", ErrNotEncodable, off)
	}
	if byteLoad {
		insn |= 1 << 22
	}
	return insn | (rn&15)<<16 | (rt&15)<<12 | uint32(off), nil
}

// EncodeAddSubImmediate builds "add rd, rn, #imm", or sub for negative imm.
// imm must be an 8-bit value rotated right by an even amount.
func EncodeAddSubImmediate(rd, rn uint32, imm int64) (uint32, error) {
	insn := uint32(condAL | 0x02800000)
	if imm < 0 {
		insn = condAL | 0x02400000
		imm = -imm
	}
	if imm > 0xffffffff {
		return 0, fmt.Errorf("%w: immediate %#x", ErrNotEncodable, imm)
	}

	v := uint32(imm)
	for rot := 0; rot < 16; rot++ {
		if imm8 := bits.RotateLeft32(v, 2*rot); imm8 <= 0xff {
			return insn | (rn&15)<<16 | (rd&15)<<12 | uint32(rot)<<8 | imm8, nil
		}
	}
	return 0, fmt.Errorf("%w: immediate %#x has no rotated form", ErrNotEncodable, imm)
}
