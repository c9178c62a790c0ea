package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"uelocate/internal/arch"
	"uelocate/internal/locate"
	"uelocate/internal/profile"
	"uelocate/internal/uelocate/styles"
)

// Report is the exported result of a resolve run.
type Report struct {
	Profile     string         `json:"profile"`
	Arch        arch.Arch      `json:"arch"`
	ModuleBase  hexAddr        `json:"module_base"`
	PointerSize int            `json:"pointer_size"`
	Targets     []TargetReport `json:"targets"`
	Layout      profile.Layout `json:"layout"`
}

// TargetReport is one resolved or failed target.
type TargetReport struct {
	Name     string  `json:"name"`
	Address  hexAddr `json:"address,omitempty"`
	Strategy string  `json:"strategy,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// hexAddr marshals as a 0x-prefixed hex string.
type hexAddr uint64

func (h hexAddr) MarshalText() ([]byte, error) {
	return fmt.Appendf(nil, "%#x", uint64(h)), nil
}

func newReport(p *profile.Profile, src *source, spec arch.Spec, outcomes []locate.Outcome, layout profile.Layout) Report {
	r := Report{
		Profile:     p.Name,
		Arch:        src.Arch,
		ModuleBase:  hexAddr(src.Base),
		PointerSize: spec.PointerSize,
		Layout:      layout,
	}
	for _, o := range outcomes {
		tr := TargetReport{Name: o.Result.Target}
		if o.Err != nil {
			tr.Error = o.Err.Error()
		} else {
			tr.Address = hexAddr(o.Result.Address)
			tr.Strategy = o.Result.Strategy
		}
		r.Targets = append(r.Targets, tr)
	}
	return r
}

// Unresolved counts the failed targets.
func (r Report) Unresolved() int {
	n := 0
	for _, t := range r.Targets {
		if t.Error != "" {
			n++
		}
	}
	return n
}

func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func (r Report) Render(w io.Writer) {
	fmt.Fprintf(w, "%s %s %s base %s\n",
		styles.Header.Render(r.Profile),
		styles.Muted.Render(r.Arch.String()),
		styles.Muted.Render(fmt.Sprintf("%d-bit", r.PointerSize*8)),
		styles.Address.Render(fmt.Sprintf("%#x", uint64(r.ModuleBase))))

	width := 0
	for _, t := range r.Targets {
		width = max(width, len(t.Name))
	}
	for _, t := range r.Targets {
		name := styles.Name.Render(t.Name + strings.Repeat(" ", width-len(t.Name)))
		if t.Error != "" {
			fmt.Fprintf(w, "  %s  %s\n", name, styles.Error.Render(t.Error))
			continue
		}
		fmt.Fprintf(w, "  %s  %s  %s\n", name,
			styles.Address.Render(fmt.Sprintf("%#x", uint64(t.Address))),
			styles.OK.Render(t.Strategy))
	}
	if r.Layout.Len() > 0 {
		fmt.Fprintf(w, "%s\n", styles.Muted.Render(fmt.Sprintf("layout: %d fields", r.Layout.Len())))
	}
}
