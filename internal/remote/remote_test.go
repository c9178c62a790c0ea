package remote

import (
	"errors"
	"testing"
)

func TestBufferReads(t *testing.T) {
	b := NewBuffer()
	b.MustMap(0x1000, make([]byte, 0x100))
	if err := b.PutU32(0x1010, 0xdeadbeef); err != nil {
		t.Fatalf("PutU32 failed: %v", err)
	}
	if err := b.PutPointer(0x1020, 0x7a12345678, 8); err != nil {
		t.Fatalf("PutPointer failed: %v", err)
	}

	v, err := ReadU32(b, 0x1010)
	if err != nil || v != 0xdeadbeef {
		t.Errorf("ReadU32 = %#x, %v", v, err)
	}

	p, err := ReadPointer(b, 0x1020, 8)
	if err != nil || p != 0x7a12345678 {
		t.Errorf("ReadPointer(8) = %#x, %v", p, err)
	}

	p, err = ReadPointer(b, 0x1020, 4)
	if err != nil || p != 0x12345678 {
		t.Errorf("ReadPointer(4) = %#x, %v", p, err)
	}
}

func TestBufferFaults(t *testing.T) {
	b := NewBuffer()
	b.MustMap(0x1000, make([]byte, 0x3000))
	b.Unmap(0x2000, 0x1000)

	tests := []struct {
		name   string
		addr   uint64
		length int
		fault  bool
	}{
		{name: "first page", addr: 0x1000, length: 0x1000},
		{name: "hole", addr: 0x2000, length: 4, fault: true},
		{name: "straddles hole", addr: 0x1ffc, length: 8, fault: true},
		{name: "last page", addr: 0x3000, length: 0x1000},
		{name: "past end", addr: 0x3ffe, length: 4, fault: true},
		{name: "below start", addr: 0x0ff0, length: 4, fault: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(b, tt.addr, tt.length)
			if tt.fault {
				if !errors.Is(err, ErrReadFault) {
					t.Fatalf("expected ErrReadFault, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestBufferOverlap(t *testing.T) {
	b := NewBuffer()
	b.MustMap(0x1000, make([]byte, 0x100))
	if err := b.Map(0x1080, make([]byte, 0x100)); err == nil {
		t.Fatal("expected overlap error")
	}
}

func TestCounting(t *testing.T) {
	b := NewBuffer()
	b.MustMap(0x1000, make([]byte, 0x10))
	c := NewCounting(b)

	for i := 0; i < 3; i++ {
		if _, err := ReadU32(c, 0x1000); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := ReadU32(c, 0x9000); err == nil {
		t.Fatal("expected fault")
	}
	if c.Reads() != 4 {
		t.Errorf("Reads() = %d, want 4", c.Reads())
	}
	c.Reset()
	if c.Reads() != 0 {
		t.Errorf("Reads() after Reset = %d", c.Reads())
	}
}
