package memmap

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const bssName = "[anon:.bss]"

// ReadProcMaps reads /proc/<pid>/maps and returns the regions belonging to
// module. An empty module keeps every region.
func ReadProcMaps(pid int, module string) (Static, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, fmt.Errorf("open maps: %w", err)
	}
	defer f.Close()

	return ParseProcMaps(f, module)
}

// ParseProcMaps parses the /proc maps text format. Module matching compares
// the base name of the mapped path. Anonymous rw regions directly following a
// module mapping, or explicitly named [anon:.bss], are tagged Uninitialized
// and attributed to the module. Without a module filter only [anon:.bss]
// regions are tagged.
func ParseProcMaps(r io.Reader, module string) (Static, error) {
	var (
		out      []Region
		prev     Region
		havePrev bool
		inModule bool
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		region, ok := parseMapsLine(scanner.Text())
		if !ok {
			continue
		}

		adjacent := havePrev && prev.End == region.Start
		switch {
		case region.Path == bssName:
			region.Class |= Uninitialized
		case module != "" && region.Path == "" && adjacent && inModule && region.Class.Has(Readable|Writable):
			region.Class |= Uninitialized
		}

		belongs := module == "" || matchesModule(region.Path, module)
		if !belongs && region.Class.Has(Uninitialized) && adjacent && inModule {
			belongs = true
		}

		if belongs {
			out = append(out, region)
		}
		inModule = belongs
		prev = region
		havePrev = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan maps: %w", err)
	}

	return NewStatic(out), nil
}

// parseMapsLine parses "start-end perms offset dev inode [path]".
func parseMapsLine(line string) (Region, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Region{}, false
	}

	addrRange := strings.Split(fields[0], "-")
	if len(addrRange) != 2 {
		return Region{}, false
	}
	start, err := strconv.ParseUint(addrRange[0], 16, 64)
	if err != nil {
		return Region{}, false
	}
	end, err := strconv.ParseUint(addrRange[1], 16, 64)
	if err != nil || end <= start {
		return Region{}, false
	}

	region := Region{
		Start: start,
		End:   end,
		Perms: fields[1],
		Class: ClassFromPerms(fields[1]),
	}
	if len(fields) > 2 {
		region.Offset, _ = strconv.ParseUint(fields[2], 16, 64)
	}
	if len(fields) > 5 {
		region.Path = strings.Join(fields[5:], " ")
	}
	return region, true
}

func matchesModule(path, module string) bool {
	if path == "" || strings.HasPrefix(path, "[") {
		return false
	}
	if strings.ContainsRune(module, '/') {
		return path == module
	}
	return filepath.Base(path) == module
}
