package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"uelocate/internal/arch"
	"uelocate/internal/disasm"
	"uelocate/internal/locate"
	"uelocate/internal/resolve"
	"uelocate/internal/scan"
	"uelocate/internal/ui/colorize"
	ulog "uelocate/internal/uelocate/log"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect TARGET",
	Short: "Disassemble the code around a strategy match",
	Long: `Inspect scans for one strategy of TARGET and prints a disassembly window
around the anchor, followed by the value its formula produces. Use it to check
a signature against a new build.`,
	Example: `
# First strategy of GUObjectArray
uelocate inspect GUObjectArray --pid 4211

# Named strategy with a wider window and every match listed
uelocate inspect GNames --strategy bss --before 8 --count 24 --matches 10 --snapshot ./snap
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		which, _ := f.GetString("strategy")
		before, _ := f.GetInt("before")
		count, _ := f.GetInt("count")
		limit, _ := f.GetInt("matches")
		if err := checkWindow(before, count); err != nil {
			return err
		}

		src, err := openSource(cmd)
		if err != nil {
			return err
		}
		defer src.Close()

		prof, err := selectProfile(cmd, src.Package)
		if err != nil {
			return err
		}
		targets, err := prof.Compile(src.Arch)
		if err != nil {
			return err
		}
		eng := &locate.Engine{Targets: targets}
		t, err := eng.Lookup(args[0])
		if err != nil {
			return err
		}
		s, err := pickStrategy(t, which)
		if err != nil {
			return err
		}

		lg := ulog.Logger().With("target", t.Name, "strategy", s.Name)
		sc := scan.New(src.Reader, lg)
		out := cmd.OutOrStdout()

		if limit > 0 {
			found, err := sc.Matches(cmd.Context(), src.Map, s.Query(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d matches, skip %d, step %+#x:\n", len(found), s.Skip, s.Step)
			for i, addr := range found {
				mark := " "
				if i == s.Skip {
					mark = "*"
				}
				fmt.Fprintf(out, " %s %#x\n", mark, addr)
			}
			fmt.Fprintln(out)
		}

		anchor, err := sc.Scan(cmd.Context(), src.Map, s.Query())
		if err != nil {
			return fmt.Errorf("strategy %s: %w", s.Name, err)
		}

		fmt.Fprintf(out, "%s / %s  anchor %#x\n", t.Name, s.Name, anchor)
		fmt.Fprintln(out, colorize.Listing(disasm.Window(src.Reader, src.Arch, anchor, before, count), anchor))

		rs, err := resolve.New(src.Reader, src.Arch)
		if err != nil {
			return err
		}
		addr, err := rs.Resolve(anchor, s.Formula)
		if err != nil {
			fmt.Fprintf(out, "\n%s = error: %v\n", s.Formula, err)
			return nil
		}
		fmt.Fprintf(out, "\n%s = %#x\n", s.Formula, addr)
		return nil
	},
}

func checkWindow(before, count int) error {
	if count <= 0 {
		return fmt.Errorf("--count must be positive, got %d", count)
	}
	if before < 0 {
		return fmt.Errorf("--before must not be negative, got %d", before)
	}
	return nil
}

// pickStrategy selects a strategy by name or index; empty means the first.
func pickStrategy(t locate.Target, which string) (locate.Strategy, error) {
	if len(t.Strategies) == 0 {
		return locate.Strategy{}, fmt.Errorf("target %s has no strategies: %w", t.Name, arch.ErrUnsupported)
	}
	if which == "" {
		return t.Strategies[0], nil
	}
	for _, s := range t.Strategies {
		if s.Name == which {
			return s, nil
		}
	}
	if i, err := strconv.Atoi(which); err == nil && i >= 0 && i < len(t.Strategies) {
		return t.Strategies[i], nil
	}
	return locate.Strategy{}, fmt.Errorf("target %s has no strategy %q", t.Name, which)
}

func init() {
	addSourceFlags(inspectCmd)
	addProfileFlags(inspectCmd)
	inspectCmd.Flags().String("strategy", "", "Strategy name or index (default: the first)")
	inspectCmd.Flags().Int("before", 4, "Instructions shown before the anchor")
	inspectCmd.Flags().Int("count", 16, "Instructions shown in total")
	inspectCmd.Flags().Int("matches", 0, "Also list up to N pattern matches")
}
