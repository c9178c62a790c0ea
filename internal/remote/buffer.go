package remote

import (
	"encoding/binary"
	"fmt"
	"sort"
)

type segment struct {
	start uint64
	data  []byte
}

func (s segment) end() uint64 {
	return s.start + uint64(len(s.data))
}

// Buffer is a sparse in-memory address space. Addresses not covered by a
// mapped segment fault like unmapped pages in a live process.
type Buffer struct {
	segs []segment
}

// NewBuffer returns an empty address space.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Map places data at addr. Overlapping an existing segment is an error.
func (b *Buffer) Map(addr uint64, data []byte) error {
	seg := segment{start: addr, data: data}
	for _, s := range b.segs {
		if seg.start < s.end() && s.start < seg.end() {
			return fmt.Errorf("segment %#x-%#x overlaps %#x-%#x", seg.start, seg.end(), s.start, s.end())
		}
	}
	b.segs = append(b.segs, seg)
	sort.Slice(b.segs, func(i, j int) bool { return b.segs[i].start < b.segs[j].start })
	return nil
}

// MustMap is Map for test fixtures.
func (b *Buffer) MustMap(addr uint64, data []byte) {
	if err := b.Map(addr, data); err != nil {
		panic(err)
	}
}

// Unmap punches a hole of length bytes at addr, splitting segments as needed.
func (b *Buffer) Unmap(addr uint64, length uint64) {
	end := addr + length
	var out []segment
	for _, s := range b.segs {
		if end <= s.start || addr >= s.end() {
			out = append(out, s)
			continue
		}
		if addr > s.start {
			out = append(out, segment{start: s.start, data: s.data[:addr-s.start]})
		}
		if end < s.end() {
			out = append(out, segment{start: end, data: s.data[end-s.start:]})
		}
	}
	b.segs = out
}

// PutU32 writes a little-endian word into an already mapped range.
func (b *Buffer) PutU32(addr uint64, v uint32) error {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return b.Write(addr, tmp[:])
}

// PutPointer writes a pointer of the given width into a mapped range.
func (b *Buffer) PutPointer(addr uint64, v uint64, width int) error {
	if width == 4 {
		return b.PutU32(addr, uint32(v))
	}
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return b.Write(addr, tmp[:])
}

// Write copies p into an already mapped range.
func (b *Buffer) Write(addr uint64, p []byte) error {
	s, ok := b.find(addr, uint64(len(p)))
	if !ok {
		return fmt.Errorf("%w: write %#x+%d", ErrReadFault, addr, len(p))
	}
	copy(s.data[addr-s.start:], p)
	return nil
}

func (b *Buffer) find(addr, length uint64) (segment, bool) {
	i := sort.Search(len(b.segs), func(i int) bool { return b.segs[i].end() > addr })
	if i == len(b.segs) {
		return segment{}, false
	}
	s := b.segs[i]
	if addr < s.start || addr+length > s.end() {
		return segment{}, false
	}
	return s, true
}

// ReadMemory implements Reader. A read must fall entirely inside one
// segment; adjacent segments are not stitched together.
func (b *Buffer) ReadMemory(addr uint64, buf []byte) (int, error) {
	s, ok := b.find(addr, uint64(len(buf)))
	if !ok {
		return 0, fmt.Errorf("%w: %#x+%d not mapped", ErrReadFault, addr, len(buf))
	}
	return copy(buf, s.data[addr-s.start:]), nil
}
