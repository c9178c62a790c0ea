//go:build linux

package remote

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Process reads a live process with process_vm_readv. It needs the same
// privileges as ptrace attach but never stops the target.
type Process struct {
	pid int
}

// OpenProcess checks that pid exists and returns a reader for it.
func OpenProcess(pid int) (*Process, error) {
	if _, err := os.Stat(fmt.Sprintf("/proc/%d", pid)); err != nil {
		return nil, fmt.Errorf("process %d: %w", pid, err)
	}
	return &Process{pid: pid}, nil
}

// PID returns the process id.
func (p *Process) PID() int {
	return p.pid
}

func (p *Process) ReadMemory(addr uint64, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	localIov := []unix.Iovec{{Base: &buf[0]}}
	localIov[0].SetLen(len(buf))
	remoteIov := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}

	n, err := unix.ProcessVMReadv(p.pid, localIov, remoteIov, 0)
	if err != nil {
		return n, fmt.Errorf("%w: process_vm_readv %#x+%d: %v", ErrReadFault, addr, len(buf), err)
	}
	if n != len(buf) {
		return n, fmt.Errorf("%w: partial read %d of %d bytes at %#x", ErrReadFault, n, len(buf), addr)
	}
	return n, nil
}
