// Package memmap describes the mapped regions of a target process.
// A Map is captured once per session and never mutated afterwards.
package memmap

import (
	"fmt"
	"sort"
	"strings"
)

// Class is a set of tags classifying a mapping. Scans select regions by
// requiring every bit of a filter to be present.
type Class uint8

const (
	Readable Class = 1 << iota
	Writable
	Executable
	Private
	// Uninitialized marks anonymous zero-fill memory that follows a module
	// image (the .bss of a shared library).
	Uninitialized
)

// Common filters.
const (
	// Code matches "r-xp" module text.
	Code = Readable | Executable | Private
	// BSS matches the [anon:.bss] region of a module.
	BSS = Uninitialized
)

var classNames = []struct {
	bit  Class
	name string
}{
	{Readable, "readable"},
	{Writable, "writable"},
	{Executable, "executable"},
	{Private, "private"},
	{Uninitialized, "uninitialized-data"},
}

func (c Class) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	for _, n := range classNames {
		if c&n.bit != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, ",")
}

func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Class) UnmarshalText(b []byte) error {
	if string(b) == "none" {
		*c = 0
		return nil
	}
	v, err := ParseClass(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Has reports whether every tag in filter is set on c.
func (c Class) Has(filter Class) bool {
	return c&filter == filter
}

// ParseClass parses either a comma separated list of tag names or one of the
// shorthand names "code", "bss" and "data".
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "code", "rxp", "r-xp":
		return Code, nil
	case "bss", "anon-bss":
		return BSS, nil
	case "data", "rw":
		return Readable | Writable, nil
	case "", "any":
		return 0, nil
	}

	var c Class
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		found := false
		for _, n := range classNames {
			if n.name == part {
				c |= n.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown region class %q", part)
		}
	}
	return c, nil
}

// ClassFromPerms derives the permission tags from a /proc maps permission
// string such as "r-xp".
func ClassFromPerms(perms string) Class {
	var c Class
	if len(perms) > 0 && perms[0] == 'r' {
		c |= Readable
	}
	if len(perms) > 1 && perms[1] == 'w' {
		c |= Writable
	}
	if len(perms) > 2 && perms[2] == 'x' {
		c |= Executable
	}
	if len(perms) > 3 && perms[3] == 'p' {
		c |= Private
	}
	return c
}

// Region is one mapping of the target address space.
type Region struct {
	Start  uint64 `json:"start"`
	End    uint64 `json:"end"`
	Perms  string `json:"perms"`
	Class  Class  `json:"class"`
	Offset uint64 `json:"offset,omitempty"`
	Path   string `json:"path,omitempty"`
}

// Size returns the length of the region in bytes.
func (r Region) Size() uint64 {
	return r.End - r.Start
}

// Contains reports whether addr lies within [Start, End).
func (r Region) Contains(addr uint64) bool {
	return addr >= r.Start && addr < r.End
}

func (r Region) String() string {
	return fmt.Sprintf("%x-%x %s %s %s", r.Start, r.End, r.Perms, r.Class, r.Path)
}

// Map supplies the ordered region catalog of a process.
type Map interface {
	ListRegions() []Region
}

// Static is an immutable, address-ordered region catalog.
type Static []Region

// NewStatic copies and sorts regions by start address.
func NewStatic(regions []Region) Static {
	s := make(Static, len(regions))
	copy(s, regions)
	sort.Slice(s, func(i, j int) bool { return s[i].Start < s[j].Start })
	return s
}

// ListRegions returns a copy of the catalog so callers cannot mutate it.
func (s Static) ListRegions() []Region {
	out := make([]Region, len(s))
	copy(out, s)
	return out
}

// Filter returns the regions carrying every tag of filter, in map order.
func Filter(m Map, filter Class) []Region {
	var out []Region
	for _, r := range m.ListRegions() {
		if r.Class.Has(filter) {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the region containing addr.
func Find(m Map, addr uint64) (Region, bool) {
	regions := m.ListRegions()
	i := sort.Search(len(regions), func(i int) bool {
		return regions[i].End > addr
	})
	if i < len(regions) && regions[i].Start <= addr {
		return regions[i], true
	}
	return Region{}, false
}

// Base returns the lowest start address among regions, or 0 if empty.
func Base(m Map) uint64 {
	regions := m.ListRegions()
	if len(regions) == 0 {
		return 0
	}
	base := regions[0].Start
	for _, r := range regions[1:] {
		if r.Start < base {
			base = r.Start
		}
	}
	return base
}
