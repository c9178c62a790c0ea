package elfx

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"

	"uelocate/internal/arch"
	"uelocate/internal/remote"
)

// Header is the part of the ELF header needed to pick an architecture.
type Header struct {
	Class   elf.Class
	Data    elf.Data
	Type    elf.Type
	Machine elf.Machine
}

// ReadHeader reads the ELF header of the module mapped at base.
func ReadHeader(r remote.Reader, base uint64) (Header, error) {
	raw, err := remote.Read(r, base, 20)
	if err != nil {
		return Header{}, fmt.Errorf("read elf header: %w", err)
	}
	if !bytes.Equal(raw[:4], []byte(elf.ELFMAG)) {
		return Header{}, fmt.Errorf("no ELF magic at %#x", base)
	}

	h := Header{
		Class: elf.Class(raw[elf.EI_CLASS]),
		Data:  elf.Data(raw[elf.EI_DATA]),
	}
	var bo binary.ByteOrder
	switch h.Data {
	case elf.ELFDATA2LSB:
		bo = binary.LittleEndian
	case elf.ELFDATA2MSB:
		bo = binary.BigEndian
	default:
		return Header{}, fmt.Errorf("unknown ELF data encoding %d", raw[elf.EI_DATA])
	}
	h.Type = elf.Type(bo.Uint16(raw[16:]))
	h.Machine = elf.Machine(bo.Uint16(raw[18:]))
	return h, nil
}

// Arch maps the header machine onto a supported architecture.
func (h Header) Arch() (arch.Arch, error) {
	return machineArch(h.Machine)
}

// PointerSize returns the pointer width implied by the ELF class.
func (h Header) PointerSize() int {
	if h.Class == elf.ELFCLASS32 {
		return 4
	}
	return 8
}
