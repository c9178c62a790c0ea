package resolve

import (
	"fmt"

	"uelocate/internal/arch"
	"uelocate/internal/arch/arm"
	"uelocate/internal/arch/arm64"
)

// DecodeFunc extracts a signed immediate from one instruction word.
type DecodeFunc func(insn uint32) (int64, error)

var decoders = map[arch.Arch]map[arch.Op]DecodeFunc{
	arch.ARM: {
		arch.OpLiteral:   arm.DecodeLiteralLoadOffset,
		arch.OpAddSub:    arm.DecodeAddSubImmediate,
		arch.OpLoadStore: arm.DecodeLoadStoreUnsignedImmediate,
	},
	arch.ARM64: {
		arch.OpLiteral:      arm64.DecodeLiteralLoadOffset,
		arch.OpPageRelative: arm64.DecodePageRelativeAddress,
		arch.OpAddSub:       arm64.DecodeAddSubImmediate,
		arch.OpLoadStore:    arm64.DecodeLoadStoreUnsignedImmediate,
	},
}

// Decoder returns the decode function for op on a.
func Decoder(a arch.Arch, op arch.Op) (DecodeFunc, error) {
	fn, ok := decoders[a][op]
	if !ok {
		return nil, fmt.Errorf("%w: no %s decoder for %s", arch.ErrUnsupported, op, a)
	}
	return fn, nil
}

// Decode decodes insn as op for a.
func Decode(a arch.Arch, op arch.Op, insn uint32) (int64, error) {
	fn, err := Decoder(a, op)
	if err != nil {
		return 0, err
	}
	return fn(insn)
}
