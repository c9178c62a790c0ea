package profile

import (
	"context"
	"errors"
	"testing"

	"uelocate/internal/arch"
	"uelocate/internal/arch/arm64"
	"uelocate/internal/indirect"
	"uelocate/internal/locate"
	"uelocate/internal/memmap"
	"uelocate/internal/pattern"
	"uelocate/internal/remote"
)

func TestBuiltin(t *testing.T) {
	all, err := Builtin()
	if err != nil {
		t.Fatalf("Builtin failed: %v", err)
	}
	if len(all) == 0 || all[0].Name != "pubgm" {
		t.Fatalf("unexpected builtin profiles %v", all)
	}

	p, err := ForApp("com.vng.pubgmobile")
	if err != nil || p.Name != "pubgm" {
		t.Errorf("ForApp = %v, %v", p, err)
	}
	if _, err := ForApp("com.example.game"); !errors.Is(err, ErrUnknownProfile) {
		t.Errorf("expected ErrUnknownProfile, got %v", err)
	}
	if _, err := Load("PUBGM"); err != nil {
		t.Errorf("Load is case sensitive: %v", err)
	}
	if p.UsesFNamePool {
		t.Error("pubgm does not use the FName pool")
	}
}

func TestCompile(t *testing.T) {
	p, err := Load("pubgm")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		arch       arch.Arch
		strategies map[string][]string
	}{
		{arch: arch.ARM, strategies: map[string][]string{
			"GUObjectArray": {"ldr-literal", "bss"},
			"GNames":        {"ldr-literal", "bss"},
		}},
		{arch: arch.ARM64, strategies: map[string][]string{
			"GUObjectArray": {"adrp-add"},
			"GNames":        {"adrp-add-ldrb"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.arch.String(), func(t *testing.T) {
			targets, err := p.Compile(tt.arch)
			if err != nil {
				t.Fatalf("Compile failed: %v", err)
			}
			if len(targets) != len(tt.strategies) {
				t.Fatalf("got %d targets", len(targets))
			}
			for _, target := range targets {
				want := tt.strategies[target.Name]
				if len(target.Strategies) != len(want) {
					t.Fatalf("%s: got %d strategies, want %v", target.Name, len(target.Strategies), want)
				}
				for i, s := range target.Strategies {
					if s.Name != want[i] {
						t.Errorf("%s strategy %d = %s, want %s", target.Name, i, s.Name, want[i])
					}
				}
				if target.Name == "GNames" && (target.Indirection == nil || *target.Indirection != indirect.Default) {
					t.Errorf("GNames indirection = %+v", target.Indirection)
				}
			}
		})
	}

	if _, err := p.Compile(arch.Unknown); !errors.Is(err, arch.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestLayout(t *testing.T) {
	p, err := Load("pubgm")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		width int
		field string
		want  uint16
	}{
		{width: 8, field: "FNameEntry.Name", want: 0xc},
		{width: 8, field: "UObject.OuterPrivate", want: 0x20},
		{width: 8, field: "UFunction.Func", want: 0xb0},
		{width: 4, field: "FNameEntry.Name", want: 0x8},
		{width: 4, field: "UObject.OuterPrivate", want: 0x18},
		{width: 4, field: "UProperty.Size", want: 0x50},
	}
	for _, tt := range tests {
		l, err := p.Layout(tt.width)
		if err != nil {
			t.Fatalf("Layout(%d) failed: %v", tt.width, err)
		}
		got, ok := l.Offset(tt.field)
		if !ok || got != tt.want {
			t.Errorf("Layout(%d).Offset(%s) = %#x, %v, want %#x", tt.width, tt.field, got, ok, tt.want)
		}
	}

	if _, err := p.Layout(2); err == nil {
		t.Error("expected error for 16-bit layout")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		err  error
	}{
		{
			name: "bad mask",
			yaml: `
name: x
arches: [arm64]
targets:
  - name: T
    strategies:
      arm64:
        - {name: s, pattern: "AABB", mask: "x", class: code}
`,
			err: pattern.ErrInvalidPattern,
		},
		{
			name: "page-relative on arm",
			yaml: `
name: x
arches: [arm]
targets:
  - name: T
    strategies:
      arm:
        - name: s
          pattern: "AABB"
          class: code
          formula: [{kind: imm, op: page-relative}]
`,
			err: arch.ErrUnsupported,
		},
		{
			name: "unknown field",
			yaml: "name: x\narches: [arm]\nsignatures: []\n",
		},
		{
			name: "strategies for unlisted arch",
			yaml: `
name: x
arches: [arm]
targets:
  - name: T
    strategies:
      arm64:
        - {name: s, pattern: "AABB", class: code}
`,
		},
		{
			name: "bad class",
			yaml: `
name: x
arches: [arm]
targets:
  - name: T
    strategies:
      arm:
        - {name: s, pattern: "AABB", class: "heap"}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.err != nil && !errors.Is(err, tt.err) {
				t.Errorf("expected %v, got %v", tt.err, err)
			}
		})
	}
}

const (
	codeBase = 0x7a10000000
	dataBase = 0x7a20000000
)

func mustWord(t *testing.T, w uint32, err error) uint32 {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
	return w
}

// TestResolveARM64 synthesizes both arm64 call sites and resolves the
// built-in targets against them.
func TestResolveARM64(t *testing.T) {
	const (
		objects = 0x7a1b491a20
		enc     = dataBase + 0x100
		heap    = dataBase + 0x800
		names   = 0x7a30004000
	)

	b := remote.NewBuffer()
	b.MustMap(codeBase, make([]byte, 0x1000))
	b.MustMap(dataBase, make([]byte, 0x1000))
	put := func(addr uint64, data []byte) {
		if err := b.Write(addr, data); err != nil {
			t.Fatal(err)
		}
	}

	// GUObjectArray: match at +0x101, adrp/add 0xF bytes later.
	put(codeBase+0x101, []byte{0x12, 0x40, 0xB9, 0x00, 0x3E, 0x40, 0xB9, 0x00, 0x00, 0x00, 0x6B, 0x00, 0x00, 0x00, 0x54})
	anchor := uint64(codeBase + 0x110)
	_ = b.PutU32(anchor, mustWord(t, arm64.EncodeADRP(8, int64(arm64.PageOf(objects)-arm64.PageOf(anchor)))))
	_ = b.PutU32(anchor+4, mustWord(t, arm64.EncodeAddSubImmediate(8, 8, objects&0xfff)))

	// GNames: match at +0x201, adrp/add/ldrb 0x17 bytes later.
	put(codeBase+0x201, []byte{0x81, 0x80, 0x52, 0, 0, 0, 0, 0, 0x03, 0x1F, 0x2A})
	anchor = codeBase + 0x218
	_ = b.PutU32(anchor, mustWord(t, arm64.EncodeADRP(0, int64(arm64.PageOf(enc)-arm64.PageOf(anchor)))))
	_ = b.PutU32(anchor+4, mustWord(t, arm64.EncodeAddSubImmediate(0, 0, enc&0xfff-0x20)))
	_ = b.PutU32(anchor+8, mustWord(t, arm64.EncodeLoadUnsignedImmediate(0, 1, 0, 0x24)))

	// index 1 chain: enc+8 -> heap -> names
	_ = b.PutU32(enc, 103)
	_ = b.PutPointer(enc+8, heap, 8)
	_ = b.PutPointer(heap, names, 8)

	p, err := Load("pubgm")
	if err != nil {
		t.Fatal(err)
	}
	targets, err := p.Compile(arch.ARM64)
	if err != nil {
		t.Fatal(err)
	}

	e := &locate.Engine{
		Map: memmap.NewStatic([]memmap.Region{
			{Start: codeBase, End: codeBase + 0x1000, Perms: "r-xp", Class: memmap.Code},
			{Start: dataBase, End: dataBase + 0x1000, Perms: "rw-p", Class: memmap.Readable | memmap.Writable | memmap.Private},
		}),
		Reader:  b,
		Arch:    arch.ARM64,
		Targets: targets,
	}

	want := map[string]uint64{"GUObjectArray": objects, "GNames": names}
	for _, o := range e.ResolveAll(context.Background()) {
		if o.Err != nil {
			t.Errorf("%s: %v", o.Result.Target, o.Err)
			continue
		}
		if o.Result.Address != want[o.Result.Target] {
			t.Errorf("%s = %#x, want %#x", o.Result.Target, o.Result.Address, want[o.Result.Target])
		}
	}
}
