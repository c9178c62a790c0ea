// Package locate resolves named targets by trying their strategies in
// order and reporting which one produced the address.
package locate

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"uelocate/internal/arch"
	"uelocate/internal/indirect"
	"uelocate/internal/logging"
	"uelocate/internal/memmap"
	"uelocate/internal/pattern"
	"uelocate/internal/remote"
	"uelocate/internal/resolve"
	"uelocate/internal/scan"
)

var (
	// ErrUnresolved is returned when every strategy of a target failed.
	ErrUnresolved = errors.New("target unresolved")
	// ErrUnknownTarget is returned for a name the engine does not know.
	ErrUnknownTarget = errors.New("unknown target")
)

// Strategy is one complete signature, decode and combine recipe.
type Strategy struct {
	Name    string
	Pattern pattern.Pattern
	Class   memmap.Class
	Step    int64
	Skip    int
	Formula resolve.Formula
}

// Query returns the scan half of the strategy.
func (s Strategy) Query() scan.Query {
	return scan.Query{Pattern: s.Pattern, Class: s.Class, Step: s.Step, Skip: s.Skip}
}

// Target is a named address with an ordered list of strategies. When
// Indirection is set it is applied to whichever strategy succeeded.
type Target struct {
	Name        string
	Strategies  []Strategy
	Indirection *indirect.Chain
}

// Result describes a resolved target.
type Result struct {
	Target string
	// Address is the final address after any indirection.
	Address uint64
	// Anchor is the scan match address with Step applied.
	Anchor uint64
	// Encoded is the strategy output before indirection.
	Encoded  uint64
	Strategy string
	Index    int
	// Failures holds the errors of the strategies tried before Index.
	Failures []error
}

// Engine resolves targets against one memory map snapshot.
type Engine struct {
	Map     memmap.Map
	Reader  remote.Reader
	Arch    arch.Arch
	Targets []Target
	Logger  *log.Logger

	// ChunkSize overrides the scanner read size when non-zero.
	ChunkSize int
	// Concurrency bounds ResolveAll; zero means one goroutine per target.
	Concurrency int
}

func (e *Engine) logger() *log.Logger {
	if e.Logger == nil {
		return logging.Discard()
	}
	return e.Logger
}

// Lookup returns the target called name.
func (e *Engine) Lookup(name string) (Target, error) {
	for _, t := range e.Targets {
		if t.Name == name {
			return t, nil
		}
	}
	return Target{}, fmt.Errorf("%w: %q", ErrUnknownTarget, name)
}

// Resolve resolves the target called name.
func (e *Engine) Resolve(ctx context.Context, name string) (Result, error) {
	t, err := e.Lookup(name)
	if err != nil {
		return Result{Target: name}, err
	}
	return e.ResolveTarget(ctx, t)
}

// ResolveTarget tries each strategy of t in order. The first one producing
// a non-zero address wins.
func (e *Engine) ResolveTarget(ctx context.Context, t Target) (Result, error) {
	lg := e.logger().With("target", t.Name)
	res := Result{Target: t.Name, Index: -1}

	spec, err := arch.Lookup(e.Arch)
	if err != nil {
		return res, err
	}
	sc := scan.New(e.Reader, lg)
	if e.ChunkSize > 0 {
		sc.ChunkSize = e.ChunkSize
	}
	rs := &resolve.Resolver{Reader: e.Reader, Spec: spec}
	if len(t.Strategies) == 0 {
		return res, fmt.Errorf("%w: %s: no strategies", ErrUnresolved, t.Name)
	}

	for i, s := range t.Strategies {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		lg.Debug("trying strategy", "strategy", s.Name, "pattern", s.Pattern.String(), "class", s.Class.String())
		anchor, addr, err := e.try(ctx, sc, rs, s)
		if err != nil {
			lg.Debug("strategy failed", "strategy", s.Name, "err", err)
			res.Failures = append(res.Failures, fmt.Errorf("strategy %s: %w", s.Name, err))
			continue
		}

		res.Anchor, res.Encoded, res.Address = anchor, addr, addr
		res.Strategy, res.Index = s.Name, i
		break
	}

	if res.Index < 0 {
		err := fmt.Errorf("%w: %s: %w", ErrUnresolved, t.Name, errors.Join(res.Failures...))
		lg.Warn("no strategy succeeded", "tried", len(t.Strategies))
		return res, err
	}

	if t.Indirection != nil {
		addr, err := t.Indirection.Resolve(e.Reader, res.Encoded, spec.PointerSize)
		if err != nil {
			lg.Warn("indirection failed", "encoded", fmt.Sprintf("%#x", res.Encoded), "err", err)
			res.Address = 0
			return res, fmt.Errorf("%w: %s: indirection: %w", ErrUnresolved, t.Name, err)
		}
		res.Address = addr
	}

	lg.Debug("resolved", "strategy", res.Strategy, "address", fmt.Sprintf("%#x", res.Address))
	return res, nil
}

func (e *Engine) try(ctx context.Context, sc *scan.Scanner, rs *resolve.Resolver, s Strategy) (anchor, addr uint64, err error) {
	anchor, err = sc.Scan(ctx, e.Map, s.Query())
	if err != nil {
		return 0, 0, err
	}
	addr, err = rs.Resolve(anchor, s.Formula)
	if err != nil {
		return anchor, 0, err
	}
	return anchor, addr, nil
}

// Outcome is the per-target result of ResolveAll.
type Outcome struct {
	Result Result
	Err    error
}

// ResolveAll resolves every named target, or all targets when names is
// empty. Targets are independent: one failing never affects the others.
func (e *Engine) ResolveAll(ctx context.Context, names ...string) []Outcome {
	if len(names) == 0 {
		for _, t := range e.Targets {
			names = append(names, t.Name)
		}
	}

	out := make([]Outcome, len(names))
	g, ctx := errgroup.WithContext(ctx)
	if e.Concurrency > 0 {
		g.SetLimit(e.Concurrency)
	}
	for i, name := range names {
		g.Go(func() error {
			res, err := e.Resolve(ctx, name)
			out[i] = Outcome{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
