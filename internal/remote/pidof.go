package remote

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
)

// ErrNoProcess is returned when no running process matches a package name.
var ErrNoProcess = errors.New("no process found")

// ProcRoot is the procfs mount FindPID scans.
const ProcRoot = "/proc"

// FindPID returns the lowest pid under root whose first cmdline argument is
// name. Android app processes carry their package name there.
func FindPID(root, name string) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", root, err)
	}

	var pids []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			// Not a PID directory
			continue
		}
		raw, err := os.ReadFile(filepath.Join(root, entry.Name(), "cmdline"))
		if err != nil {
			// Process may have exited while we were reading
			continue
		}
		if cmdlineName(raw) == name {
			pids = append(pids, pid)
		}
	}
	if len(pids) == 0 {
		return 0, fmt.Errorf("%w: %q", ErrNoProcess, name)
	}
	return slices.Min(pids), nil
}

func cmdlineName(raw []byte) string {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(bytes.TrimSpace(raw))
}
