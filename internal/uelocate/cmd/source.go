package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"uelocate/internal/arch"
	"uelocate/internal/elfx"
	"uelocate/internal/memmap"
	"uelocate/internal/profile"
	"uelocate/internal/remote"
	"uelocate/internal/snapshot"
)

const defaultModule = "libUE4.so"

var sourceFlags = []string{"pid", "package", "snapshot", "file"}

// source is the memory a command operates on.
type source struct {
	Map    memmap.Map
	Reader remote.Reader
	Arch   arch.Arch
	Base   uint64
	Module string
	// Package is the app id given with --package, if any.
	Package string
	Label   string

	close func() error
}

func (s *source) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

func addSourceFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntP("pid", "p", 0, "Target process id")
	f.StringP("package", "P", "", "Android package name of the target process")
	f.StringP("snapshot", "s", "", "Snapshot directory written by dump")
	f.String("file", "", "Module file on disk, scanned as if loaded at --base")
	f.Uint64("base", 0, "Load address used with --file")
	f.StringP("module", "m", defaultModule, "Module to scan in the process maps")
	f.String("arch", "", "Override the detected architecture (arm, arm64)")

	cmd.MarkFlagsMutuallyExclusive(sourceFlags...)
	cmd.MarkFlagsOneRequired(sourceFlags...)
}

func addProfileFlags(cmd *cobra.Command) {
	cmd.Flags().String("profile", "", "Built-in profile name (default: picked by --package)")
	cmd.Flags().String("profile-file", "", "Load the profile from a YAML file")
	cmd.MarkFlagsMutuallyExclusive("profile", "profile-file")
}

func openSource(cmd *cobra.Command) (*source, error) {
	f := cmd.Flags()
	module, _ := f.GetString("module")

	var (
		src *source
		err error
	)
	switch {
	case f.Changed("snapshot"):
		dir, _ := f.GetString("snapshot")
		src, err = openSnapshot(dir)
	case f.Changed("file"):
		path, _ := f.GetString("file")
		base, _ := f.GetUint64("base")
		src, err = openFile(path, base)
	default:
		pid, _ := f.GetInt("pid")
		pkg, _ := f.GetString("package")
		if pkg != "" {
			pid, err = remote.FindPID(remote.ProcRoot, pkg)
			if err != nil {
				return nil, err
			}
		}
		src, err = openProcess(pid, module)
		if src != nil {
			src.Package = pkg
		}
	}
	if err != nil {
		return nil, err
	}

	if name, _ := f.GetString("arch"); name != "" {
		a, err := arch.Parse(name)
		if err != nil {
			src.Close()
			return nil, err
		}
		src.Arch = a
	}
	return src, nil
}

func openProcess(pid int, module string) (*source, error) {
	m, err := memmap.ReadProcMaps(pid, module)
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("process %d has no regions for %s", pid, module)
	}
	p, err := remote.OpenProcess(pid)
	if err != nil {
		return nil, err
	}

	base := memmap.Base(m)
	hdr, err := elfx.ReadHeader(p, base)
	if err != nil {
		return nil, err
	}
	a, err := hdr.Arch()
	if err != nil {
		return nil, err
	}
	return &source{
		Map:    m,
		Reader: p,
		Arch:   a,
		Base:   base,
		Module: module,
		Label:  fmt.Sprintf("pid %d", pid),
	}, nil
}

func openSnapshot(dir string) (*source, error) {
	snap, err := snapshot.Load(dir)
	if err != nil {
		return nil, err
	}
	src := &source{
		Map:    snap.Map,
		Reader: snap.Memory,
		Arch:   snap.Manifest.Arch,
		Base:   snap.Manifest.Base,
		Module: snap.Manifest.Module,
		Label:  dir,
	}
	if src.Arch == arch.Unknown {
		hdr, err := elfx.ReadHeader(src.Reader, src.Base)
		if err != nil {
			return nil, err
		}
		if src.Arch, err = hdr.Arch(); err != nil {
			return nil, err
		}
	}
	return src, nil
}

func openFile(path string, base uint64) (*source, error) {
	im, err := elfx.Open(path)
	if err != nil {
		return nil, err
	}
	a, err := im.Arch()
	if err != nil {
		im.Close()
		return nil, err
	}
	return &source{
		Map:    im.Regions(base),
		Reader: im.At(base),
		Arch:   a,
		Base:   base,
		Module: path,
		Label:  path,
		close:  im.Close,
	}, nil
}

// selectProfile picks the profile from --profile-file, --profile, the app id
// of --package, or the only built-in profile, in that order.
func selectProfile(cmd *cobra.Command, pkg string) (*profile.Profile, error) {
	if path, _ := cmd.Flags().GetString("profile-file"); path != "" {
		return profile.LoadFile(path)
	}
	if name, _ := cmd.Flags().GetString("profile"); name != "" {
		return profile.Load(name)
	}
	if pkg != "" {
		return profile.ForApp(pkg)
	}

	all, err := profile.Builtin()
	if err != nil {
		return nil, err
	}
	if len(all) != 1 {
		return nil, errors.New("several built-in profiles, pick one with --profile")
	}
	return all[0], nil
}
