// Package elfx opens ELF shared objects as offline memory images and reads
// ELF identification from a module mapped in a live process.
package elfx

import (
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"syscall"

	"uelocate/internal/arch"
	"uelocate/internal/memmap"
	"uelocate/internal/remote"
)

// ErrUnsupportedMachine is returned for an ELF machine with no decoder.
// It is the one configuration error a session cannot recover from.
var ErrUnsupportedMachine = errors.New("unsupported ELF machine")

type Image struct {
	Path    string
	File    *elf.File
	All     []byte
	Loads   []Seg
	Machine elf.Machine
	Class   elf.Class
	f       *os.File
}

type Seg struct {
	Vaddr, Off, Filesz, Memsz uint64
	Flags                     elf.ProgFlag
}

func Open(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}

	of, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open file: %w", err)
	}

	fi, err := of.Stat()
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	all, err := syscall.Mmap(int(of.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("mmap file: %w", err)
	}

	im := &Image{Path: path, File: f, All: all, Machine: f.Machine, Class: f.Class, f: of}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		im.Loads = append(im.Loads, Seg{
			Vaddr:  p.Vaddr,
			Off:    p.Off,
			Filesz: p.Filesz,
			Memsz:  p.Memsz,
			Flags:  p.Flags,
		})
	}
	if len(im.Loads) == 0 {
		im.Close()
		return nil, fmt.Errorf("%s: no PT_LOAD segments", path)
	}
	return im, nil
}

// Close unmaps the memory and closes the underlying files.
func (im *Image) Close() error {
	var err1, err2 error
	if im.All != nil {
		err1 = syscall.Munmap(im.All)
		im.All = nil
	}
	if im.f != nil {
		err2 = im.f.Close()
		im.f = nil
	}
	if im.File != nil {
		err3 := im.File.Close()
		if err3 != nil && err2 == nil {
			err2 = err3
		}
		im.File = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// Arch maps the image machine onto a supported architecture.
func (im *Image) Arch() (arch.Arch, error) {
	return machineArch(im.Machine)
}

// VA2Off translates a virtual address into a file offset
// using PT_LOAD segments. It returns false if VA is not file backed.
func (im *Image) VA2Off(va uint64) (uint64, bool) {
	for _, l := range im.Loads {
		if va >= l.Vaddr && va < l.Vaddr+l.Filesz {
			return l.Off + (va - l.Vaddr), true
		}
	}
	return 0, false
}

// SliceVA returns a subslice of the mapped file corresponding to the virtual address range [va, va+size).
// It returns (nil, false) if the VA is unmapped or the range is out of bounds.
func (im *Image) SliceVA(va uint64, size uint64) ([]byte, bool) {
	off, ok := im.VA2Off(va)
	if !ok {
		return nil, false
	}
	if size == 0 {
		return []byte{}, true
	}
	end := off + size
	if end > uint64(len(im.All)) {
		return nil, false
	}
	return im.All[off:end], true
}

// Regions returns the catalog the image would have when loaded at base.
// The zero-fill tail of a segment (memsz past filesz) becomes its own
// uninitialized-data region.
func (im *Image) Regions(base uint64) memmap.Static {
	var out []memmap.Region
	for _, l := range im.Loads {
		perms := permString(l.Flags)
		if l.Filesz > 0 {
			out = append(out, memmap.Region{
				Start:  base + l.Vaddr,
				End:    base + l.Vaddr + l.Filesz,
				Perms:  perms,
				Class:  memmap.ClassFromPerms(perms),
				Offset: l.Off,
				Path:   im.Path,
			})
		}
		if l.Memsz > l.Filesz {
			out = append(out, memmap.Region{
				Start: base + l.Vaddr + l.Filesz,
				End:   base + l.Vaddr + l.Memsz,
				Perms: perms,
				Class: memmap.ClassFromPerms(perms) | memmap.Uninitialized,
				Path:  im.Path,
			})
		}
	}
	return memmap.NewStatic(out)
}

func permString(f elf.ProgFlag) string {
	b := []byte("---p")
	if f&elf.PF_R != 0 {
		b[0] = 'r'
	}
	if f&elf.PF_W != 0 {
		b[1] = 'w'
	}
	if f&elf.PF_X != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// View is an image loaded at a base address, readable as remote memory.
type View struct {
	im   *Image
	base uint64
}

// At returns a View of the image loaded at base.
func (im *Image) At(base uint64) *View {
	return &View{im: im, base: base}
}

// ReadMemory serves file bytes for file-backed ranges and zeros for the
// zero-fill tail of a segment. A read must stay within one segment.
func (v *View) ReadMemory(addr uint64, buf []byte) (int, error) {
	if addr < v.base {
		return 0, fmt.Errorf("%w: %#x below image base", remote.ErrReadFault, addr)
	}
	va := addr - v.base
	n := uint64(len(buf))
	for _, l := range v.im.Loads {
		if va < l.Vaddr || va+n > l.Vaddr+l.Memsz {
			continue
		}
		clear(buf)
		if va < l.Vaddr+l.Filesz {
			fileEnd := min(va+n, l.Vaddr+l.Filesz)
			src, ok := v.im.SliceVA(va, fileEnd-va)
			if !ok {
				return 0, fmt.Errorf("%w: %#x past end of file", remote.ErrReadFault, addr)
			}
			copy(buf, src)
		}
		return len(buf), nil
	}
	return 0, fmt.Errorf("%w: %#x+%d not in any segment", remote.ErrReadFault, addr, n)
}

func machineArch(m elf.Machine) (arch.Arch, error) {
	a, err := arch.FromMachine(m)
	if err != nil {
		return arch.Unknown, fmt.Errorf("%w: %w", ErrUnsupportedMachine, err)
	}
	return a, nil
}
