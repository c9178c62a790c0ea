// Package resolve turns a scan anchor into an absolute address by decoding
// the instruction words around it according to a profile-supplied formula.
package resolve

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"uelocate/internal/arch"
	"uelocate/internal/remote"
)

// ErrZeroValue is returned when a term marked nonzero, or the final
// address, evaluates to zero.
var ErrZeroValue = errors.New("zero value")

// Kind selects how a Term contributes to the sum.
type Kind string

const (
	// KindBase is anchor+At.
	KindBase Kind = "base"
	// KindPage is the page containing anchor+At.
	KindPage Kind = "page"
	// KindImm is the immediate decoded from the word at anchor+At.
	KindImm Kind = "imm"
	// KindConst is Value.
	KindConst Kind = "const"
	// KindLoad is the pointer stored at the sum of Terms.
	KindLoad Kind = "load"
)

// Term is one summand of a Formula.
type Term struct {
	Kind    Kind    `yaml:"kind" json:"kind" jsonschema:"enum=base,enum=page,enum=imm,enum=const,enum=load"`
	At      int64   `yaml:"at,omitempty" json:"at,omitempty" jsonschema:"description=Byte offset from the anchor"`
	Op      arch.Op `yaml:"op,omitempty" json:"op,omitempty"`
	Value   int64   `yaml:"value,omitempty" json:"value,omitempty"`
	Terms   Formula `yaml:"terms,omitempty" json:"terms,omitempty" jsonschema:"description=Address summands of a load"`
	NonZero bool    `yaml:"nonzero,omitempty" json:"nonzero,omitempty" jsonschema:"description=Fail the strategy when this term is zero"`
}

func (t Term) String() string {
	switch t.Kind {
	case KindBase, KindPage:
		return fmt.Sprintf("%s(%+#x)", t.Kind, t.At)
	case KindImm:
		return fmt.Sprintf("%s[%s](%+#x)", t.Kind, t.Op, t.At)
	case KindConst:
		return fmt.Sprintf("%#x", t.Value)
	case KindLoad:
		return fmt.Sprintf("*(%s)", t.Terms)
	}
	return string(t.Kind)
}

// Formula is an ordered sum of terms. An empty formula yields the anchor.
type Formula []Term

func (f Formula) String() string {
	if len(f) == 0 {
		return "anchor"
	}
	parts := make([]string, len(f))
	for i, t := range f {
		parts[i] = t.String()
	}
	return strings.Join(parts, " + ")
}

// Validate checks every term is well formed and decodable on a.
func (f Formula) Validate(a arch.Arch) error {
	for i, t := range f {
		switch t.Kind {
		case KindBase, KindPage, KindConst:
		case KindImm:
			if _, err := Decoder(a, t.Op); err != nil {
				return fmt.Errorf("term %d: %w", i, err)
			}
		case KindLoad:
			if len(t.Terms) == 0 {
				return fmt.Errorf("term %d: load without address terms", i)
			}
			if err := t.Terms.Validate(a); err != nil {
				return fmt.Errorf("term %d: %w", i, err)
			}
		default:
			return fmt.Errorf("term %d: unknown kind %q", i, t.Kind)
		}
	}
	return nil
}

// Resolver evaluates formulas against remote memory.
type Resolver struct {
	Reader remote.Reader
	Spec   arch.Spec
}

// New returns a Resolver for the architecture a.
func New(r remote.Reader, a arch.Arch) (*Resolver, error) {
	spec, err := arch.Lookup(a)
	if err != nil {
		return nil, err
	}
	return &Resolver{Reader: r, Spec: spec}, nil
}

// Resolve evaluates f at anchor. Any failing sub-decode or read fails the
// whole resolution; a zero result is reported as ErrZeroValue.
func (r *Resolver) Resolve(anchor uint64, f Formula) (uint64, error) {
	v, err := r.sum(anchor, f)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, fmt.Errorf("%w: %s at %#x", ErrZeroValue, f, anchor)
	}
	return v, nil
}

func (r *Resolver) sum(anchor uint64, f Formula) (uint64, error) {
	if len(f) == 0 {
		return anchor, nil
	}

	var total uint64
	for _, t := range f {
		v, err := r.term(anchor, t)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", t, err)
		}
		if t.NonZero && v == 0 {
			return 0, fmt.Errorf("%s: %w", t, ErrZeroValue)
		}
		total += v
	}
	return total, nil
}

func (r *Resolver) term(anchor uint64, t Term) (uint64, error) {
	at := anchor + uint64(t.At)
	switch t.Kind {
	case KindBase:
		return at, nil
	case KindPage:
		return r.Spec.PageOf(at), nil
	case KindConst:
		return uint64(t.Value), nil
	case KindImm:
		insn, err := remote.ReadU32(r.Reader, at)
		if err != nil {
			return 0, err
		}
		imm, err := Decode(r.Spec.Arch, t.Op, insn)
		if err != nil {
			return 0, err
		}
		return uint64(imm), nil
	case KindLoad:
		addr, err := r.sum(anchor, t.Terms)
		if err != nil {
			return 0, err
		}
		return remote.ReadPointer(r.Reader, addr, r.Spec.PointerSize)
	}
	return 0, fmt.Errorf("unknown term kind %q", t.Kind)
}

// ResolveWords evaluates f over words already fetched from anchor onward,
// one little-endian word per instruction slot. Load terms are rejected.
func ResolveWords(spec arch.Spec, anchor uint64, words []uint32, f Formula) (uint64, error) {
	for _, t := range f {
		if t.Kind == KindLoad {
			return 0, fmt.Errorf("load term needs remote memory")
		}
	}

	raw := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(raw[i*4:], w)
	}
	img := remote.NewBuffer()
	if err := img.Map(anchor, raw); err != nil {
		return 0, err
	}
	r := &Resolver{Reader: img, Spec: spec}
	return r.Resolve(anchor, f)
}
