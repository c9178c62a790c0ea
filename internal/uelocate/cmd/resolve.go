package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"uelocate/internal/arch"
	"uelocate/internal/locate"
	ulog "uelocate/internal/uelocate/log"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [target...]",
	Short: "Resolve profile targets to absolute addresses",
	Long: `Resolve scans the module for each target's strategies in order and reports
the first address produced. Targets are independent: one failing does not stop
the others. With no arguments every target of the profile is resolved.`,
	Example: `
# All targets, profile chosen by package name
uelocate resolve --package com.tencent.ig

# Only GNames, from a snapshot, as JSON
uelocate resolve GNames --snapshot ./snap --profile pubgm --json
  `,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		jobs, _ := cmd.Flags().GetInt("jobs")

		src, err := openSource(cmd)
		if err != nil {
			return err
		}
		defer src.Close()

		prof, err := selectProfile(cmd, src.Package)
		if err != nil {
			return err
		}
		spec, err := arch.Lookup(src.Arch)
		if err != nil {
			return err
		}
		targets, err := prof.Compile(src.Arch)
		if err != nil {
			return err
		}
		layout, err := prof.Layout(spec.PointerSize)
		if err != nil {
			ulog.Logger().Warn("no layout", "err", err)
		}

		eng := &locate.Engine{
			Map:         src.Map,
			Reader:      src.Reader,
			Arch:        src.Arch,
			Targets:     targets,
			Logger:      ulog.Logger().With("source", src.Label),
			Concurrency: jobs,
		}
		report := newReport(prof, src, spec, eng.ResolveAll(cmd.Context(), args...), layout)

		out := cmd.OutOrStdout()
		if asJSON {
			if err := report.WriteJSON(out); err != nil {
				return err
			}
		} else {
			report.Render(out)
		}

		if n := report.Unresolved(); n > 0 {
			return fmt.Errorf("%w: %d of %d targets", locate.ErrUnresolved, n, len(report.Targets))
		}
		return nil
	},
}

func init() {
	addSourceFlags(resolveCmd)
	addProfileFlags(resolveCmd)
	resolveCmd.Flags().BoolP("json", "j", false, "Output results as JSON")
	resolveCmd.Flags().IntP("jobs", "J", 0, "Targets resolved in parallel (0 means all at once)")
}
