//go:build !linux

package remote

import (
	"errors"
	"fmt"
)

// Process is only available on Linux and Android.
type Process struct {
	pid int
}

// OpenProcess always fails on this platform.
func OpenProcess(pid int) (*Process, error) {
	return nil, fmt.Errorf("process %d: %w", pid, errors.ErrUnsupported)
}

func (p *Process) PID() int {
	return p.pid
}

func (p *Process) ReadMemory(addr uint64, buf []byte) (int, error) {
	return 0, fmt.Errorf("%w: %v", ErrReadFault, errors.ErrUnsupported)
}
