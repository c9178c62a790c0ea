// Package arch defines the supported target architectures and the
// instruction classes the resolver knows how to decode.
package arch

import (
	"debug/elf"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDecodeMismatch is returned when a word does not carry the
	// fixed bits of the expected encoding.
	ErrDecodeMismatch = errors.New("instruction does not match expected encoding")
	// ErrUnsupported is returned for an architecture or instruction class
	// with no decoder.
	ErrUnsupported = errors.New("unsupported architecture")
)

// Arch is a tagged architecture variant.
type Arch uint8

const (
	Unknown Arch = iota
	ARM          // 32-bit A32
	ARM64        // AArch64
)

func (a Arch) String() string {
	switch a {
	case ARM:
		return "arm"
	case ARM64:
		return "arm64"
	default:
		return "unknown"
	}
}

// Parse accepts the names used in profiles and on the command line.
func Parse(s string) (Arch, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "arm", "arm32", "armv7", "armeabi-v7a":
		return ARM, nil
	case "arm64", "aarch64", "arm64-v8a":
		return ARM64, nil
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnsupported, s)
}

func (a Arch) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Arch) UnmarshalText(b []byte) error {
	if len(b) == 0 || string(b) == "unknown" {
		*a = Unknown
		return nil
	}
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// FromMachine maps an ELF e_machine value onto an Arch.
func FromMachine(m elf.Machine) (Arch, error) {
	switch m {
	case elf.EM_ARM:
		return ARM, nil
	case elf.EM_AARCH64:
		return ARM64, nil
	}
	return Unknown, fmt.Errorf("%w: %s", ErrUnsupported, m)
}

// Spec holds the per-architecture constants the resolver needs.
type Spec struct {
	Arch            Arch
	PointerSize     int
	InstructionSize int
	PageSize        uint64
	// PCOffset is how far ahead of the executing instruction PC reads.
	PCOffset uint64
}

var specs = map[Arch]Spec{
	ARM:   {Arch: ARM, PointerSize: 4, InstructionSize: 4, PageSize: 4096, PCOffset: 8},
	ARM64: {Arch: ARM64, PointerSize: 8, InstructionSize: 4, PageSize: 4096, PCOffset: 0},
}

// Lookup returns the Spec for a.
func Lookup(a Arch) (Spec, error) {
	s, ok := specs[a]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrUnsupported, a)
	}
	return s, nil
}

// PageOf returns the page-aligned base containing addr.
func (s Spec) PageOf(addr uint64) uint64 {
	return addr &^ (s.PageSize - 1)
}

// Op names an instruction class with an immediate worth decoding.
type Op uint8

const (
	OpNone         Op = iota
	OpLiteral         // PC-relative literal load offset
	OpPageRelative    // page delta of adrp/adr
	OpAddSub          // add/sub immediate
	OpLoadStore       // unsigned-offset load/store immediate
)

var opNames = map[Op]string{
	OpLiteral:      "literal",
	OpPageRelative: "page-relative",
	OpAddSub:       "add-sub",
	OpLoadStore:    "load-store",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return "none"
}

// ParseOp accepts the op names used in profile formulas.
func ParseOp(s string) (Op, error) {
	for o, n := range opNames {
		if n == s {
			return o, nil
		}
	}
	return OpNone, fmt.Errorf("unknown instruction class %q", s)
}

func (o Op) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Op) UnmarshalText(b []byte) error {
	v, err := ParseOp(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Mismatch wraps ErrDecodeMismatch with the offending word.
func Mismatch(op Op, word uint32) error {
	return fmt.Errorf("%w: %s %#08x", ErrDecodeMismatch, op, word)
}

// SignExtend interprets the low bits of v as a two's complement value.
func SignExtend(v uint64, bits uint) int64 {
	shift := 64 - bits
	return int64(v<<shift) >> shift
}
