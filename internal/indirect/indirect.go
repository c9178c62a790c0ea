// Package indirect reverses the pointer-chain obfuscation that hides some
// globals behind a tagged, bounded sequence of dereferences.
//
// The slot at the encoded address holds a 32-bit tag. The tag selects an
// index = (tag - Bias) / Scale into a virtual table of Bound entries, where
// entry i holds the address of entry i-1 and entry 0 holds the target.
// The pointer at PointerOffset is entry index-1.
package indirect

import (
	"errors"
	"fmt"

	"uelocate/internal/remote"
)

// ErrChainOutOfBounds is returned when the tag decodes to an index
// outside [1, Bound].
var ErrChainOutOfBounds = errors.New("indirection index out of bounds")

// ErrNullTarget is returned when entry 0 of the chain holds a zero pointer.
var ErrNullTarget = errors.New("indirection target is null")

// Chain describes one obfuscation scheme.
type Chain struct {
	TagOffset     int64 `yaml:"tag_offset" json:"tag_offset"`
	PointerOffset int64 `yaml:"pointer_offset" json:"pointer_offset"`
	Bias          int32 `yaml:"bias" json:"bias" jsonschema:"description=Subtracted from the tag before scaling"`
	Scale         int32 `yaml:"scale" json:"scale"`
	Bound         int   `yaml:"bound" json:"bound" jsonschema:"description=Largest valid index"`
}

// Default is the scheme used by the shipped profiles.
var Default = Chain{TagOffset: 0, PointerOffset: 8, Bias: 100, Scale: 3, Bound: 16}

// Validate rejects schemes that cannot be evaluated.
func (c Chain) Validate() error {
	if c.Scale == 0 {
		return errors.New("indirection scale must not be zero")
	}
	if c.Bound < 1 {
		return fmt.Errorf("indirection bound %d must be positive", c.Bound)
	}
	return nil
}

// Index decodes tag into a chain index. Division truncates toward zero.
func (c Chain) Index(tag int32) (int, error) {
	idx := int((tag - c.Bias) / c.Scale)
	if idx < 1 || idx > c.Bound {
		return 0, fmt.Errorf("%w: tag %d gives index %d, want 1..%d", ErrChainOutOfBounds, tag, idx, c.Bound)
	}
	return idx, nil
}

// Resolve follows the chain starting at enc and returns entry 0. It performs
// one tag read and index+1 pointer reads; an out of bounds tag stops after
// the tag read.
func (c Chain) Resolve(r remote.Reader, enc uint64, ptrWidth int) (uint64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}

	tag, err := remote.ReadI32(r, enc+uint64(c.TagOffset))
	if err != nil {
		return 0, fmt.Errorf("read tag: %w", err)
	}
	idx, err := c.Index(tag)
	if err != nil {
		return 0, err
	}

	cur, err := remote.ReadPointer(r, enc+uint64(c.PointerOffset), ptrWidth)
	if err != nil {
		return 0, fmt.Errorf("read entry %d: %w", idx-1, err)
	}
	for i := idx - 1; i >= 1; i-- {
		if cur, err = remote.ReadPointer(r, cur, ptrWidth); err != nil {
			return 0, fmt.Errorf("read entry %d: %w", i-1, err)
		}
	}

	v, err := remote.ReadPointer(r, cur, ptrWidth)
	if err != nil {
		return 0, fmt.Errorf("read target: %w", err)
	}
	if v == 0 {
		return 0, fmt.Errorf("%w: entry 0 at %#x", ErrNullTarget, cur)
	}
	return v, nil
}
