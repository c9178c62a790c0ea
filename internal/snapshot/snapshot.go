// Package snapshot saves the module regions of a live process to disk and
// loads them back as an offline memory image.
//
// A snapshot directory holds regions.json and one <start>.bin file per
// contiguous readable run of bytes.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"uelocate/internal/arch"
	"uelocate/internal/logging"
	"uelocate/internal/memmap"
	"uelocate/internal/remote"
)

const (
	manifestName = "regions.json"
	pageSize     = 4096
)

// Manifest describes a snapshot directory.
type Manifest struct {
	Module   string          `json:"module"`
	Arch     arch.Arch       `json:"arch"`
	Base     uint64          `json:"base"`
	Regions  []memmap.Region `json:"regions"`
	Segments []Segment       `json:"segments"`
}

// Segment is a run of saved bytes.
type Segment struct {
	Start uint64 `json:"start"`
	Size  uint64 `json:"size"`
	File  string `json:"file"`
}

// Snapshot is a loaded snapshot usable in place of a live process.
type Snapshot struct {
	Manifest Manifest
	Map      memmap.Static
	Memory   *remote.Buffer
}

// Options controls Save.
type Options struct {
	Module string
	Arch   arch.Arch
	// Concurrency bounds the regions read in parallel.
	Concurrency int
	Logger      *log.Logger
}

// Save reads every region of m through r and writes it to dir. Unreadable
// pages are left out of the segments.
func Save(ctx context.Context, dir string, m memmap.Map, r remote.Reader, opts Options) (Manifest, error) {
	lg := opts.Logger
	if lg == nil {
		lg = logging.Discard()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Manifest{}, err
	}

	regions := m.ListRegions()
	perRegion := make([][]Segment, len(regions))

	g, ctx := errgroup.WithContext(ctx)
	limit := opts.Concurrency
	if limit <= 0 {
		limit = 4
	}
	g.SetLimit(limit)
	for i, region := range regions {
		g.Go(func() error {
			segs, err := saveRegion(ctx, dir, region, r)
			if err != nil {
				return fmt.Errorf("region %s: %w", region, err)
			}
			perRegion[i] = segs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Manifest{}, err
	}

	man := Manifest{Module: opts.Module, Arch: opts.Arch, Base: memmap.Base(m), Regions: regions}
	var total uint64
	for _, segs := range perRegion {
		man.Segments = append(man.Segments, segs...)
		for _, s := range segs {
			total += s.Size
		}
	}

	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return Manifest{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, manifestName), data, 0o644); err != nil {
		return Manifest{}, err
	}

	lg.Info("snapshot saved", "dir", dir, "regions", len(regions), "segments", len(man.Segments), "size", humanize.IBytes(total))
	return man, nil
}

func saveRegion(ctx context.Context, dir string, region memmap.Region, r remote.Reader) ([]Segment, error) {
	var (
		segs []Segment
		run  []byte
		from uint64
	)
	flush := func() error {
		if len(run) == 0 {
			return nil
		}
		name := fmt.Sprintf("%x.bin", from)
		if err := os.WriteFile(filepath.Join(dir, name), run, 0o644); err != nil {
			return err
		}
		segs = append(segs, Segment{Start: from, Size: uint64(len(run)), File: name})
		run = nil
		return nil
	}

	page := make([]byte, pageSize)
	for addr := region.Start; addr < region.End; addr += pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := min(uint64(pageSize), region.End-addr)
		if _, err := r.ReadMemory(addr, page[:n]); err != nil {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		if len(run) == 0 {
			from = addr
		}
		run = append(run, page[:n]...)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return segs, nil
}

// Load reads a snapshot directory written by Save.
func Load(dir string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return nil, err
	}
	var man Manifest
	if err := json.Unmarshal(data, &man); err != nil {
		return nil, fmt.Errorf("decode %s: %w", manifestName, err)
	}
	if len(man.Regions) == 0 {
		return nil, errors.New("snapshot has no regions")
	}

	mem := remote.NewBuffer()
	for _, s := range man.Segments {
		raw, err := os.ReadFile(filepath.Join(dir, filepath.Base(s.File)))
		if err != nil {
			return nil, err
		}
		if uint64(len(raw)) != s.Size {
			return nil, fmt.Errorf("segment %s: %d bytes, manifest says %d", s.File, len(raw), s.Size)
		}
		if err := mem.Map(s.Start, raw); err != nil {
			return nil, fmt.Errorf("segment %s: %w", s.File, err)
		}
	}

	return &Snapshot{Manifest: man, Map: memmap.NewStatic(man.Regions), Memory: mem}, nil
}
