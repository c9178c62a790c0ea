package cmd

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"uelocate/internal/arch"
	"uelocate/internal/profile"
	"uelocate/internal/uelocate/styles"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles [name]",
	Short: "List built-in profiles or show one",
	Example: `
# List profiles
uelocate profiles

# Render the pubgm profile
uelocate profiles pubgm

# Render a profile file
uelocate profiles --profile-file ./mygame.yaml
  `,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		path, _ := cmd.Flags().GetString("profile-file")

		var p *profile.Profile
		switch {
		case path != "":
			var err error
			if p, err = profile.LoadFile(path); err != nil {
				return err
			}
		case len(args) == 1:
			var err error
			if p, err = profile.Load(args[0]); err != nil {
				return err
			}
		default:
			all, err := profile.Builtin()
			if err != nil {
				return err
			}
			for _, bp := range all {
				fmt.Fprintf(out, "%s  %s  %s  %s\n",
					styles.Name.Render(bp.Name),
					bp.AppName,
					styles.Muted.Render(archList(bp)),
					styles.Muted.Render(strings.Join(bp.AppIDs, ", ")))
			}
			return nil
		}

		md := profileMarkdown(p)
		if !term.IsTerminal(os.Stdout.Fd()) {
			fmt.Fprint(out, md)
			return nil
		}
		width := 100
		if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
			width = min(w, 120)
		}
		r, err := styles.GetMarkdownRenderer(width)
		if err != nil {
			return err
		}
		rendered, err := r.Render(md)
		if err != nil {
			return err
		}
		fmt.Fprint(out, rendered)
		return nil
	},
}

func archList(p *profile.Profile) string {
	names := make([]string, len(p.Arches))
	for i, a := range p.Arches {
		names[i] = a.String()
	}
	return strings.Join(names, ",")
}

// profileMarkdown describes p as a markdown page.
func profileMarkdown(p *profile.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", p.Name)
	if p.AppName != "" {
		fmt.Fprintf(&b, "**%s**", p.AppName)
		if p.Engine != "" {
			fmt.Fprintf(&b, ", Unreal Engine %s", p.Engine)
		}
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Architectures: %s. FNamePool: %t.\n\n", archList(p), p.UsesFNamePool)
	if len(p.AppIDs) > 0 {
		b.WriteString("## Packages\n\n")
		for _, id := range p.AppIDs {
			fmt.Fprintf(&b, "- `%s`\n", id)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Targets\n\n")
	for _, t := range p.Targets {
		fmt.Fprintf(&b, "### %s\n\n", t.Name)
		if t.Description != "" {
			fmt.Fprintf(&b, "%s\n\n", t.Description)
		}
		if c := t.Indirection; c != nil {
			fmt.Fprintf(&b, "> tagged chain: tag at %+#x, bias %d, scale %d, bound %d, next pointer at %+#x\n\n",
				c.TagOffset, c.Bias, c.Scale, c.Bound, c.PointerOffset)
		}
		b.WriteString("| arch | strategy | class | step | skip | formula |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, a := range p.Arches {
			for key, list := range t.Strategies {
				if k, err := arch.Parse(key); err != nil || k != a {
					continue
				}
				for _, s := range list {
					fmt.Fprintf(&b, "| %s | %s | %s | %+#x | %d | `%s` |\n",
						a, s.Name, s.Class, s.Step, s.Skip, s.Formula)
				}
			}
		}
		b.WriteString("\n")
	}

	for _, width := range slices.Sorted(maps.Keys(p.Layouts)) {
		fmt.Fprintf(&b, "## Layout (%s-bit)\n\n", width)
		b.WriteString("| field | offset |\n|---|---|\n")
		fields := p.Layouts[width]
		for _, name := range slices.Sorted(maps.Keys(fields)) {
			fmt.Fprintf(&b, "| %s | %#x |\n", name, fields[name])
		}
		b.WriteString("\n")
	}
	return b.String()
}

func init() {
	profilesCmd.Flags().String("profile-file", "", "Render a profile from a YAML file")
}
