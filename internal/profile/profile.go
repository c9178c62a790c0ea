// Package profile loads the per-game catalog of target signatures and
// structure layouts.
package profile

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"maps"
	"os"
	"path"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"uelocate/internal/arch"
	"uelocate/internal/indirect"
	"uelocate/internal/locate"
	"uelocate/internal/memmap"
	"uelocate/internal/pattern"
	"uelocate/internal/resolve"
)

//go:embed profiles/*.yaml
var builtin embed.FS

// ErrUnknownProfile is returned when no profile matches a name or app id.
var ErrUnknownProfile = errors.New("unknown profile")

// Profile is one game build family.
type Profile struct {
	Name          string      `yaml:"name" json:"name" jsonschema:"required"`
	AppName       string      `yaml:"app_name" json:"app_name"`
	Engine        string      `yaml:"engine,omitempty" json:"engine,omitempty" jsonschema:"description=Unreal Engine version"`
	AppIDs        []string    `yaml:"app_ids" json:"app_ids" jsonschema:"description=Android package names"`
	Arches        []arch.Arch `yaml:"arches" json:"arches"`
	UsesFNamePool bool        `yaml:"uses_fname_pool" json:"uses_fname_pool"`
	Targets       []Target    `yaml:"targets" json:"targets"`
	// Layouts is keyed by pointer width in bits ("64", "32").
	Layouts map[string]map[string]uint16 `yaml:"layouts" json:"layouts"`
}

// Target lists the strategies for one address, per architecture.
type Target struct {
	Name        string                `yaml:"name" json:"name" jsonschema:"required"`
	Description string                `yaml:"description,omitempty" json:"description,omitempty"`
	Indirection *indirect.Chain       `yaml:"indirection,omitempty" json:"indirection,omitempty"`
	Strategies  map[string][]Strategy `yaml:"strategies" json:"strategies" jsonschema:"description=Ordered strategies keyed by architecture"`
}

// Strategy is the textual form of locate.Strategy.
type Strategy struct {
	Name    string          `yaml:"name" json:"name" jsonschema:"required"`
	Pattern string          `yaml:"pattern" json:"pattern" jsonschema:"required,description=Hex bytes; whitespace is ignored"`
	Mask    string          `yaml:"mask,omitempty" json:"mask,omitempty" jsonschema:"description=x for exact and ? for wildcard; empty means all exact"`
	Class   string          `yaml:"class" json:"class" jsonschema:"description=Region filter such as code or bss"`
	Step    int64           `yaml:"step,omitempty" json:"step,omitempty"`
	Skip    int             `yaml:"skip,omitempty" json:"skip,omitempty"`
	Formula resolve.Formula `yaml:"formula,omitempty" json:"formula,omitempty"`
}

// Compile converts s for architecture a.
func (s Strategy) Compile(a arch.Arch) (locate.Strategy, error) {
	var (
		pat pattern.Pattern
		err error
	)
	if s.Mask == "" {
		pat, err = pattern.Exact(s.Pattern)
	} else {
		pat, err = pattern.Compile(s.Pattern, s.Mask)
	}
	if err != nil {
		return locate.Strategy{}, err
	}

	class, err := memmap.ParseClass(s.Class)
	if err != nil {
		return locate.Strategy{}, err
	}
	if s.Skip < 0 {
		return locate.Strategy{}, fmt.Errorf("negative skip %d", s.Skip)
	}
	if err := s.Formula.Validate(a); err != nil {
		return locate.Strategy{}, err
	}

	return locate.Strategy{
		Name:    s.Name,
		Pattern: pat,
		Class:   class,
		Step:    s.Step,
		Skip:    s.Skip,
		Formula: s.Formula,
	}, nil
}

// Parse decodes and validates a YAML profile.
func Parse(data []byte) (*Profile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Profile
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", p.Name, err)
	}
	return &p, nil
}

// LoadFile reads a profile from disk.
func LoadFile(name string) (*Profile, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Builtin returns the embedded profiles sorted by name.
func Builtin() ([]*Profile, error) {
	entries, err := builtin.ReadDir("profiles")
	if err != nil {
		return nil, err
	}

	var out []*Profile
	for _, e := range entries {
		data, err := builtin.ReadFile(path.Join("profiles", e.Name()))
		if err != nil {
			return nil, err
		}
		p, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Load returns the built-in profile called name.
func Load(name string) (*Profile, error) {
	all, err := Builtin()
	if err != nil {
		return nil, err
	}
	for _, p := range all {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
}

// ForApp returns the built-in profile listing appID.
func ForApp(appID string) (*Profile, error) {
	all, err := Builtin()
	if err != nil {
		return nil, err
	}
	for _, p := range all {
		if slices.Contains(p.AppIDs, appID) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: no profile for app %q", ErrUnknownProfile, appID)
}

// Validate compiles every strategy so that malformed patterns surface
// before any scan.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return errors.New("missing name")
	}
	if len(p.Arches) == 0 {
		return errors.New("no architectures listed")
	}

	seen := make(map[string]bool)
	for _, t := range p.Targets {
		if t.Name == "" {
			return errors.New("target without name")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate target %s", t.Name)
		}
		seen[t.Name] = true

		if t.Indirection != nil {
			if err := t.Indirection.Validate(); err != nil {
				return fmt.Errorf("target %s: %w", t.Name, err)
			}
		}
		for key, list := range t.Strategies {
			a, err := arch.Parse(key)
			if err != nil {
				return fmt.Errorf("target %s: %w", t.Name, err)
			}
			if !p.Supports(a) {
				return fmt.Errorf("target %s: strategies for %s, which the profile does not list", t.Name, a)
			}
			for i, s := range list {
				if _, err := s.Compile(a); err != nil {
					return fmt.Errorf("target %s %s strategy %d (%s): %w", t.Name, a, i, s.Name, err)
				}
			}
		}
	}

	for width := range p.Layouts {
		if width != "32" && width != "64" {
			return fmt.Errorf("layout for unknown pointer width %q", width)
		}
	}
	return nil
}

// Supports reports whether the profile lists a.
func (p *Profile) Supports(a arch.Arch) bool {
	return slices.Contains(p.Arches, a)
}

// Compile returns the locate targets for a, keeping only targets with at
// least one strategy on that architecture.
func (p *Profile) Compile(a arch.Arch) ([]locate.Target, error) {
	if !p.Supports(a) {
		return nil, fmt.Errorf("profile %s: %w: %s", p.Name, arch.ErrUnsupported, a)
	}

	var out []locate.Target
	for _, t := range p.Targets {
		list := t.strategies(a)
		if len(list) == 0 {
			continue
		}
		lt := locate.Target{Name: t.Name, Indirection: t.Indirection}
		for _, s := range list {
			ls, err := s.Compile(a)
			if err != nil {
				return nil, fmt.Errorf("target %s: %w", t.Name, err)
			}
			lt.Strategies = append(lt.Strategies, ls)
		}
		out = append(out, lt)
	}
	return out, nil
}

func (t Target) strategies(a arch.Arch) []Strategy {
	for key, list := range t.Strategies {
		if k, err := arch.Parse(key); err == nil && k == a {
			return list
		}
	}
	return nil
}

// Layout returns the offset table for the given pointer width in bytes.
func (p *Profile) Layout(ptrWidth int) (Layout, error) {
	fields, ok := p.Layouts[fmt.Sprint(ptrWidth*8)]
	if !ok {
		return Layout{}, fmt.Errorf("profile %s has no %d-bit layout", p.Name, ptrWidth*8)
	}
	return Layout{PointerSize: ptrWidth, fields: maps.Clone(fields)}, nil
}
