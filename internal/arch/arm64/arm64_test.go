package arm64

import (
	"encoding/binary"
	"errors"
	"testing"

	"golang.org/x/arch/arm64/arm64asm"

	"uelocate/internal/arch"
)

func decodeOp(t *testing.T, insn uint32) arm64asm.Op {
	t.Helper()
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], insn)
	inst, err := arm64asm.Decode(raw[:])
	if err != nil {
		t.Fatalf("arm64asm.Decode(%#08x) failed: %v", insn, err)
	}
	return inst.Op
}

func TestDecodeAddSubImmediate(t *testing.T) {
	tests := []struct {
		name   string
		insn   uint32
		want   int64
		op     arm64asm.Op
		reject bool
	}{
		{name: "add x0, x0, #0x30", insn: 0x9100c000, want: 0x30, op: arm64asm.ADD},
		{name: "add x1, x2, #0xfff", insn: 0x913ffc41, want: 0xfff, op: arm64asm.ADD},
		{name: "add x0, x0, #1, lsl #12", insn: 0x91400400, want: 0x1000, op: arm64asm.ADD},
		{name: "sub sp, sp, #0x20", insn: 0xd10083ff, want: -0x20, op: arm64asm.SUB},
		{name: "add w8, w8, #0x10", insn: 0x11004108, want: 0x10, op: arm64asm.ADD},
		{name: "adrp is not add", insn: 0x90000000, reject: true},
		{name: "add register form", insn: 0x8b010000, reject: true},
		{name: "zero word", insn: 0, reject: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeAddSubImmediate(tt.insn)
			if tt.reject {
				if !errors.Is(err, arch.ErrDecodeMismatch) {
					t.Fatalf("expected ErrDecodeMismatch, got %d, %v", got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %#x, want %#x", got, tt.want)
			}
			if op := decodeOp(t, tt.insn); op != tt.op {
				t.Errorf("arm64asm decodes %#08x as %s, want %s", tt.insn, op, tt.op)
			}
		})
	}
}

func TestPageRelativeRoundTrip(t *testing.T) {
	deltas := []int64{0x1000, -0x1000, 0x74f0000, -0x2000000, 0xfffff000, -0x100000000}
	for _, d := range deltas {
		insn, err := EncodeADRP(3, d)
		if err != nil {
			t.Fatalf("EncodeADRP(%#x) failed: %v", d, err)
		}
		got, err := DecodePageRelativeAddress(insn)
		if err != nil {
			t.Fatalf("decode of %#08x failed: %v", insn, err)
		}
		if got != d {
			t.Errorf("delta %#x round-tripped as %#x", d, got)
		}
		if op := decodeOp(t, insn); op != arm64asm.ADRP {
			t.Errorf("arm64asm decodes %#08x as %s", insn, op)
		}
	}

	if _, err := EncodeADRP(0, 0x800); !errors.Is(err, ErrNotEncodable) {
		t.Errorf("expected ErrNotEncodable for unaligned delta, got %v", err)
	}
	if _, err := EncodeADRP(0, 1<<32); !errors.Is(err, ErrNotEncodable) {
		t.Errorf("expected ErrNotEncodable for 4GB delta, got %v", err)
	}
}

func TestDecodePageRelativeAddress(t *testing.T) {
	tests := []struct {
		name   string
		insn   uint32
		want   int64
		reject bool
	}{
		// adrp x16, #0x10000 as used by plt stubs
		{name: "adrp x16", insn: 0x90000090, want: 0x10000},
		{name: "adr x0, #0x40", insn: 0x10000200, want: 0x40},
		{name: "adr x0, #-4", insn: 0x10ffffe0, want: -4},
		{name: "add is not adrp", insn: 0x9100c000, reject: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePageRelativeAddress(tt.insn)
			if tt.reject {
				if !errors.Is(err, arch.ErrDecodeMismatch) {
					t.Fatalf("expected ErrDecodeMismatch, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("got %#x, %v, want %#x", got, err, tt.want)
			}
		})
	}
}

func TestDecodeLoadStoreUnsignedImmediate(t *testing.T) {
	tests := []struct {
		name   string
		insn   uint32
		want   int64
		op     arm64asm.Op
		reject bool
	}{
		{name: "ldrb w1, [x0, #0x20]", insn: 0x39408001, want: 0x20, op: arm64asm.LDRB},
		{name: "ldr x17, [x16, #0x18]", insn: 0xf9400e11, want: 0x18, op: arm64asm.LDR},
		{name: "ldr w0, [x1, #0x8]", insn: 0xb9400820, want: 0x8, op: arm64asm.LDR},
		{name: "str x0, [sp, #0x10]", insn: 0xf9000be0, want: 0x10, op: arm64asm.STR},
		{name: "ldr q0, [x0, #0x20]", insn: 0x3dc00800, want: 0x20, op: arm64asm.LDR},
		{name: "ldr literal", insn: 0x58000040, reject: true},
		{name: "simd opc 3 with size 1", insn: 0x7dc00800, reject: true},
		{name: "simd opc 2 with size 3", insn: 0xfd800800, reject: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeLoadStoreUnsignedImmediate(tt.insn)
			if tt.reject {
				if !errors.Is(err, arch.ErrDecodeMismatch) {
					t.Fatalf("expected ErrDecodeMismatch, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("got %#x, %v, want %#x", got, err, tt.want)
			}
			if op := decodeOp(t, tt.insn); op != tt.op {
				t.Errorf("arm64asm decodes %#08x as %s, want %s", tt.insn, op, tt.op)
			}
		})
	}
}

func TestDecodeLiteralLoadOffset(t *testing.T) {
	tests := []struct {
		name string
		wide bool
		off  int64
	}{
		{name: "forward x", wide: true, off: 0x40},
		{name: "backward w", off: -0x8},
		{name: "far", wide: true, off: 0xffffc},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insn, err := EncodeLiteralLoad(tt.wide, 0, tt.off)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			got, err := DecodeLiteralLoadOffset(insn)
			if err != nil || got != tt.off {
				t.Errorf("got %#x, %v, want %#x", got, err, tt.off)
			}
			if op := decodeOp(t, insn); op != arm64asm.LDR {
				t.Errorf("arm64asm decodes %#08x as %s", insn, op)
			}
		})
	}

	if _, err := DecodeLiteralLoadOffset(0x9100c000); !errors.Is(err, arch.ErrDecodeMismatch) {
		t.Errorf("expected ErrDecodeMismatch for add, got %v", err)
	}
}

func TestEncoders(t *testing.T) {
	add, err := EncodeAddSubImmediate(0, 0, 0x30)
	if err != nil || add != 0x9100c000 {
		t.Errorf("EncodeAddSubImmediate(0x30) = %#08x, %v", add, err)
	}
	sub, err := EncodeAddSubImmediate(31, 31, -0x20)
	if err != nil || sub != 0xd10083ff {
		t.Errorf("EncodeAddSubImmediate(-0x20) = %#08x, %v", sub, err)
	}
	if _, err := EncodeAddSubImmediate(0, 0, 0x1001); !errors.Is(err, ErrNotEncodable) {
		t.Errorf("expected ErrNotEncodable, got %v", err)
	}

	ldrb, err := EncodeLoadUnsignedImmediate(0, 1, 0, 0x20)
	if err != nil || ldrb != 0x39408001 {
		t.Errorf("EncodeLoadUnsignedImmediate(ldrb) = %#08x, %v", ldrb, err)
	}
	ldr, err := EncodeLoadUnsignedImmediate(3, 17, 16, 0x18)
	if err != nil || ldr != 0xf9400e11 {
		t.Errorf("EncodeLoadUnsignedImmediate(ldr) = %#08x, %v", ldr, err)
	}
	if _, err := EncodeLoadUnsignedImmediate(3, 0, 0, 0x4); !errors.Is(err, ErrNotEncodable) {
		t.Errorf("expected ErrNotEncodable for misaligned offset, got %v", err)
	}
}

func TestPageOf(t *testing.T) {
	if got := PageOf(0x7a1234abcd); got != 0x7a1234a000 {
		t.Errorf("PageOf = %#x", got)
	}
}
