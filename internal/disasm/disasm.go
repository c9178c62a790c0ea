// Package disasm defines a common instruction representation used
// across architecture-specific disassemblers.
package disasm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/arch/arm/armasm"
	"golang.org/x/arch/arm64/arm64asm"

	"uelocate/internal/arch"
	"uelocate/internal/remote"
)

// Inst is a simplified decoded instruction.
type Inst struct {
	VA   uint64  // virtual address of instruction
	Text string  // formatted disassembly string
	Op   string  // mnemonic in lowercase
	Raw  [4]byte // raw encoding
	Bad  bool    // unreadable or undecodable
}

// Word returns the little-endian instruction word.
func (i Inst) Word() uint32 {
	return binary.LittleEndian.Uint32(i.Raw[:])
}

// Stream is a linear sequence of instructions.
type Stream []Inst

// String renders the stream one instruction per line.
func (s Stream) String() string {
	var b strings.Builder
	for _, in := range s {
		fmt.Fprintf(&b, "%#x: %02x %02x %02x %02x  %s\n", in.VA, in.Raw[0], in.Raw[1], in.Raw[2], in.Raw[3], in.Text)
	}
	return b.String()
}

// Decode decodes one word at va.
func Decode(a arch.Arch, va uint64, raw [4]byte) Inst {
	in := Inst{VA: va, Raw: raw}
	switch a {
	case arch.ARM64:
		inst, err := arm64asm.Decode(raw[:])
		if err != nil {
			return bad(in)
		}
		in.Text = arm64asm.GNUSyntax(inst)
		in.Op = strings.ToLower(inst.Op.String())
	case arch.ARM:
		inst, err := armasm.Decode(raw[:], armasm.ModeARM)
		if err != nil {
			return bad(in)
		}
		in.Text = armasm.GNUSyntax(inst)
		in.Op = strings.ToLower(inst.Op.String())
	default:
		return bad(in)
	}
	return in
}

func bad(in Inst) Inst {
	in.Text = fmt.Sprintf(".word %#08x", in.Word())
	in.Op = ".word"
	in.Bad = true
	return in
}

// Window decodes count words beginning before words ahead of addr.
// Unreadable words are kept as placeholders. A non-positive count yields an
// empty stream and a negative before is treated as zero.
func Window(r remote.Reader, a arch.Arch, addr uint64, before, count int) Stream {
	if count <= 0 {
		return nil
	}
	before = max(before, 0)
	start := addr - uint64(before*4)
	out := make(Stream, 0, count)
	for i := 0; i < count; i++ {
		va := start + uint64(i*4)
		var raw [4]byte
		if _, err := r.ReadMemory(va, raw[:]); err != nil {
			out = append(out, Inst{VA: va, Text: "(unreadable)", Op: "??", Bad: true})
			continue
		}
		out = append(out, Decode(a, va, raw))
	}
	return out
}
