// Package pattern compiles hex+mask text into byte matchers.
//
// The hex text holds two digits per byte and may contain whitespace. The mask
// has one character per byte: 'x' for an exact byte, '?' for a wildcard.
//
//	hex:  "12 40 B9 00 3E 40 B9"
//	mask: "xxx?xxx"
package pattern

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidPattern is returned for malformed hex or mask text.
var ErrInvalidPattern = errors.New("invalid pattern")

// Pattern is an ordered sequence of exact bytes and wildcards.
type Pattern struct {
	bytes []byte
	exact []bool
}

// Compile builds a Pattern from hex and mask text.
func Compile(hexText, mask string) (Pattern, error) {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, hexText)

	if len(clean) == 0 {
		return Pattern{}, fmt.Errorf("%w: empty hex", ErrInvalidPattern)
	}
	if len(clean)%2 != 0 {
		return Pattern{}, fmt.Errorf("%w: odd hex length %d", ErrInvalidPattern, len(clean))
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return Pattern{}, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}

	if len(mask) != len(raw) {
		return Pattern{}, fmt.Errorf("%w: mask length %d, want %d", ErrInvalidPattern, len(mask), len(raw))
	}

	exact := make([]bool, len(raw))
	for i := 0; i < len(mask); i++ {
		switch mask[i] {
		case 'x':
			exact[i] = true
		case '?':
		default:
			return Pattern{}, fmt.Errorf("%w: mask char %q at %d", ErrInvalidPattern, mask[i], i)
		}
	}

	return Pattern{bytes: raw, exact: exact}, nil
}

// MustCompile is Compile that panics on error.
func MustCompile(hexText, mask string) Pattern {
	p, err := Compile(hexText, mask)
	if err != nil {
		panic(err)
	}
	return p
}

// Exact compiles hex text with an all-'x' mask.
func Exact(hexText string) (Pattern, error) {
	n := 0
	for _, r := range hexText {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return Compile(hexText, strings.Repeat("x", n/2))
}

// Len returns the number of entries.
func (p Pattern) Len() int {
	return len(p.bytes)
}

// IsWildcard reports whether entry i matches any byte.
func (p Pattern) IsWildcard(i int) bool {
	return !p.exact[i]
}

// Match reports whether window, which must be at least Len bytes, matches.
func (p Pattern) Match(window []byte) bool {
	if len(window) < len(p.bytes) {
		return false
	}
	for i, b := range p.bytes {
		if p.exact[i] && window[i] != b {
			return false
		}
	}
	return true
}

// Index returns the offset of the first match in data at or after from, or -1.
func (p Pattern) Index(data []byte, from int) int {
	for i := from; i+len(p.bytes) <= len(data); i++ {
		if p.Match(data[i:]) {
			return i
		}
	}
	return -1
}

// String renders the pattern IDA style, "12 40 ?? B9".
func (p Pattern) String() string {
	var sb strings.Builder
	for i, b := range p.bytes {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if p.exact[i] {
			fmt.Fprintf(&sb, "%02X", b)
		} else {
			sb.WriteString("??")
		}
	}
	return sb.String()
}
