// Package remote is the byte-exact I/O layer into the target process.
package remote

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrReadFault is returned when any byte of a requested range is not
// readable in the target.
var ErrReadFault = errors.New("read fault")

// Reader reads target memory. Implementations must either fill buf
// completely or return an error wrapping ErrReadFault.
type Reader interface {
	ReadMemory(addr uint64, buf []byte) (int, error)
}

// Read reads exactly length bytes at addr.
func Read(r Reader, addr uint64, length int) ([]byte, error) {
	buf := make([]byte, length)
	if err := readFull(r, addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readFull(r Reader, addr uint64, buf []byte) error {
	n, err := r.ReadMemory(addr, buf)
	if err != nil {
		if errors.Is(err, ErrReadFault) {
			return err
		}
		return fmt.Errorf("%w at %#x: %v", ErrReadFault, addr, err)
	}
	if n != len(buf) {
		return fmt.Errorf("%w at %#x: short read %d of %d bytes", ErrReadFault, addr, n, len(buf))
	}
	return nil
}

// ReadU32 reads a little-endian 32-bit word.
func ReadU32(r Reader, addr uint64) (uint32, error) {
	var b [4]byte
	if err := readFull(r, addr, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// ReadI32 reads a little-endian signed 32-bit integer.
func ReadI32(r Reader, addr uint64) (int32, error) {
	v, err := ReadU32(r, addr)
	return int32(v), err
}

// ReadPointer reads a little-endian pointer of the given width (4 or 8).
func ReadPointer(r Reader, addr uint64, width int) (uint64, error) {
	switch width {
	case 4:
		v, err := ReadU32(r, addr)
		return uint64(v), err
	case 8:
		var b [8]byte
		if err := readFull(r, addr, b[:]); err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint64(b[:]), nil
	default:
		return 0, fmt.Errorf("unsupported pointer width %d", width)
	}
}

// Counting wraps a Reader and counts round trips.
type Counting struct {
	Reader
	reads atomic.Int64
}

// NewCounting wraps r.
func NewCounting(r Reader) *Counting {
	return &Counting{Reader: r}
}

func (c *Counting) ReadMemory(addr uint64, buf []byte) (int, error) {
	c.reads.Add(1)
	return c.Reader.ReadMemory(addr, buf)
}

// Reads returns the number of ReadMemory calls so far.
func (c *Counting) Reads() int {
	return int(c.reads.Load())
}

// Reset zeroes the counter.
func (c *Counting) Reset() {
	c.reads.Store(0)
}
