// Package scan searches region catalogs for masked byte patterns.
package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"uelocate/internal/logging"
	"uelocate/internal/memmap"
	"uelocate/internal/pattern"
	"uelocate/internal/remote"
)

// ErrNotFound is returned when fewer than Skip+1 matches exist.
var ErrNotFound = errors.New("pattern not found")

const (
	// DefaultChunkSize bounds a single remote read while scanning.
	DefaultChunkSize = 64 * 1024
	// DefaultPageSize is the granularity used when a chunk read faults.
	DefaultPageSize = 4096
)

// Query selects what to look for and which match to return.
type Query struct {
	Pattern pattern.Pattern
	// Class is the region filter; every tag must be present.
	Class memmap.Class
	// Step is added to the match address. It may be negative.
	Step int64
	// Skip is the 0-based ordinal of the match to return.
	Skip int
}

// Scanner reads regions through a remote.Reader in bounded chunks.
type Scanner struct {
	Reader    remote.Reader
	ChunkSize int
	PageSize  int
	Logger    *log.Logger
}

// New returns a Scanner with default chunk and page sizes.
func New(r remote.Reader, lg *log.Logger) *Scanner {
	return &Scanner{Reader: r, ChunkSize: DefaultChunkSize, PageSize: DefaultPageSize, Logger: lg}
}

func (s *Scanner) logger() *log.Logger {
	if s.Logger == nil {
		return logging.Discard()
	}
	return s.Logger
}

// Scan returns the address of the Skip-th match plus Step.
func (s *Scanner) Scan(ctx context.Context, m memmap.Map, q Query) (uint64, error) {
	if q.Skip < 0 {
		return 0, fmt.Errorf("negative skip %d", q.Skip)
	}

	matches, err := s.Matches(ctx, m, q, q.Skip+1)
	if err != nil {
		return 0, err
	}
	if len(matches) <= q.Skip {
		return 0, fmt.Errorf("%w: %s in %s (%d of %d matches)", ErrNotFound, q.Pattern, q.Class, len(matches), q.Skip+1)
	}
	return uint64(int64(matches[q.Skip]) + q.Step), nil
}

// Matches returns up to limit raw match addresses (Step not applied), in map
// order. A limit of 0 or less returns every match.
func (s *Scanner) Matches(ctx context.Context, m memmap.Map, q Query, limit int) ([]uint64, error) {
	if q.Pattern.Len() == 0 {
		return nil, fmt.Errorf("%w: empty pattern", pattern.ErrInvalidPattern)
	}

	lg := s.logger()
	var out []uint64
	for _, region := range memmap.Filter(m, q.Class) {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		w := &window{pat: q.Pattern}
		err := s.readRegion(ctx, region, func(addr uint64, data []byte) bool {
			for _, match := range w.feed(addr, data) {
				out = append(out, match)
				if limit > 0 && len(out) >= limit {
					return false
				}
			}
			return true
		})
		if err != nil {
			return out, err
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	lg.Debug("scan finished", "pattern", q.Pattern.String(), "class", q.Class.String(), "matches", len(out))
	return out, nil
}

// readRegion delivers the readable bytes of region to fn in address order.
// A faulting chunk is retried page by page and unreadable pages are dropped.
func (s *Scanner) readRegion(ctx context.Context, region memmap.Region, fn func(addr uint64, data []byte) bool) error {
	chunk := uint64(s.ChunkSize)
	if chunk == 0 {
		chunk = DefaultChunkSize
	}
	page := uint64(s.PageSize)
	if page == 0 {
		page = DefaultPageSize
	}

	buf := make([]byte, chunk)
	for addr := region.Start; addr < region.End; addr += chunk {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := min(chunk, region.End-addr)
		data := buf[:n]
		if _, err := s.Reader.ReadMemory(addr, data); err == nil {
			if !fn(addr, data) {
				return nil
			}
			continue
		}

		for p := addr; p < addr+n; p += page {
			pn := min(page, addr+n-p)
			pdata := buf[p-addr : p-addr+pn]
			if _, err := s.Reader.ReadMemory(p, pdata); err != nil {
				s.logger().Debug("skipping unreadable page", "addr", fmt.Sprintf("%#x", p), "err", err)
				continue
			}
			if !fn(p, pdata) {
				return nil
			}
		}
	}
	return nil
}

// window carries the last Len-1 bytes between contiguous reads so that
// matches spanning a chunk boundary are still found exactly once.
type window struct {
	pat      pattern.Pattern
	tail     []byte
	tailAddr uint64
}

func (w *window) feed(addr uint64, data []byte) []uint64 {
	var buf []byte
	base := addr
	if len(w.tail) > 0 && w.tailAddr+uint64(len(w.tail)) == addr {
		buf = append(append(make([]byte, 0, len(w.tail)+len(data)), w.tail...), data...)
		base = w.tailAddr
	} else {
		buf = data
	}

	var matches []uint64
	for i := w.pat.Index(buf, 0); i >= 0; i = w.pat.Index(buf, i+1) {
		matches = append(matches, base+uint64(i))
	}

	keep := min(w.pat.Len()-1, len(buf))
	w.tail = append(w.tail[:0:0], buf[len(buf)-keep:]...)
	w.tailAddr = base + uint64(len(buf)-keep)
	return matches
}
