package arm

import (
	"encoding/binary"
	"errors"
	"testing"

	"golang.org/x/arch/arm/armasm"

	"uelocate/internal/arch"
)

func decodeOp(t *testing.T, insn uint32) armasm.Op {
	t.Helper()
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], insn)
	inst, err := armasm.Decode(raw[:], armasm.ModeARM)
	if err != nil {
		t.Fatalf("armasm.Decode(%#08x) failed: %v", insn, err)
	}
	return inst.Op
}

func TestDecodeLiteralLoadOffset(t *testing.T) {
	tests := []struct {
		name   string
		insn   uint32
		want   int64
		reject bool
	}{
		{name: "ldr r1, [pc, #0xbc]", insn: 0xe59f10bc, want: 0xbc},
		{name: "ldr r0, [pc, #0x1e0]", insn: 0xe59f01e0, want: 0x1e0},
		{name: "ldr r2, [pc, #-0x10]", insn: 0xe51f2010, want: -0x10},
		{name: "ldr r7, [r0, #0x30]", insn: 0xe5907030, reject: true},
		{name: "add r1, pc, r1", insn: 0xe08f1001, reject: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeLiteralLoadOffset(tt.insn)
			if tt.reject {
				if !errors.Is(err, arch.ErrDecodeMismatch) {
					t.Fatalf("expected ErrDecodeMismatch, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("got %#x, %v, want %#x", got, err, tt.want)
			}
			if op := decodeOp(t, tt.insn); op != armasm.LDR {
				t.Errorf("armasm decodes %#08x as %s", tt.insn, op)
			}
		})
	}
}

func TestDecodeLoadStoreUnsignedImmediate(t *testing.T) {
	tests := []struct {
		name   string
		insn   uint32
		want   int64
		op     armasm.Op
		reject bool
	}{
		{name: "ldr r7, [r0, #0x30]", insn: 0xe5907030, want: 0x30, op: armasm.LDR},
		{name: "ldr r2, [r1, #0x8]", insn: 0xe5912008, want: 0x8, op: armasm.LDR},
		{name: "ldrb r3, [r4, #-0x4]", insn: 0xe5543004, want: -0x4, op: armasm.LDRB},
		{name: "post-indexed", insn: 0xe4907004, reject: true},
		{name: "add immediate", insn: 0xe2810030, reject: true},
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
				t.Errorf("armasm decodes %#08x as %s, want %s", tt.insn, op, tt.op)
			}
		})
	}
}

func TestDecodeAddSubImmediate(t *testing.T) {
	tests := []struct {
		name   string
		insn   uint32
		want   int64
		op     armasm.Op
		reject bool
	}{
		{name: "add r0, r1, #0x30", insn: 0xe2810030, want: 0x30, op: armasm.ADD},
		{name: "add r0, r0, #0x1000", insn: 0xe2800a01, want: 0x1000, op: armasm.ADD},
		{name: "sub r2, r2, #0x4", insn: 0xe2422004, want: -0x4, op: armasm.SUB},
		{name: "add register", insn: 0xe08f1001, reject: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeAddSubImmediate(tt.insn)
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
				t.Errorf("armasm decodes %#08x as %s, want %s", tt.insn, op, tt.op)
			}
		})
	}
}

func TestEncoders(t *testing.T) {
	tests := []struct {
		name string
		enc  func() (uint32, error)
		want uint32
	}{
		{name: "ldr literal", enc: func() (uint32, error) { return EncodeLiteralLoad(1, 0xbc) }, want: 0xe59f10bc},
		{name: "ldr literal negative", enc: func() (uint32, error) { return EncodeLiteralLoad(2, -0x10) }, want: 0xe51f2010},
		{name: "ldr imm", enc: func() (uint32, error) { return EncodeLoadImmediate(false, 7, 0, 0x30) }, want: 0xe5907030},
		{name: "ldrb imm", enc: func() (uint32, error) { return EncodeLoadImmediate(true, 3, 4, -4) }, want: 0xe5543004},
		{name: "add imm", enc: func() (uint32, error) { return EncodeAddSubImmediate(0, 1, 0x30) }, want: 0xe2810030},
		{name: "add rotated", enc: func() (uint32, error) { return EncodeAddSubImmediate(0, 0, 0x1000) }, want: 0xe2800a01},
		{name: "sub imm", enc: func() (uint32, error) { return EncodeAddSubImmediate(2, 2, -4) }, want: 0xe2422004},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.enc()
			if err != nil || got != tt.want {
				t.Errorf("got %#08x, %v, want %#08x", got, err, tt.want)
			}
		})
	}

	if _, err := EncodeAddSubImmediate(0, 0, 0x101); !errors.Is(err, ErrNotEncodable) {
		t.Errorf("expected ErrNotEncodable for 0x101, got %v", err)
	}
	if _, err := EncodeLiteralLoad(0, 0x1000); !errors.Is(err, ErrNotEncodable) {
		t.Errorf("expected ErrNotEncodable for 0x1000, got %v", err)
	}
}
