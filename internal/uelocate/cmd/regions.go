package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"uelocate/internal/memmap"
	"uelocate/internal/uelocate/styles"
)

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List the memory regions of the module",
	Example: `
# Code regions of libUE4.so in a running game
uelocate regions --package com.tencent.ig --class code
  `,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _ := cmd.Flags().GetString("class")

		src, err := openSource(cmd)
		if err != nil {
			return err
		}
		defer src.Close()

		regions := src.Map.ListRegions()
		if filter != "" {
			class, err := memmap.ParseClass(filter)
			if err != nil {
				return err
			}
			regions = memmap.Filter(src.Map, class)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s %s\n", styles.Header.Render(src.Module), styles.Muted.Render(src.Arch.String()), styles.Muted.Render(src.Label))
		var total uint64
		for _, r := range regions {
			total += r.Size()
			fmt.Fprintf(out, "  %s-%s %s %-8s %9s %s\n",
				styles.Address.Render(fmt.Sprintf("%012x", r.Start)),
				styles.Address.Render(fmt.Sprintf("%012x", r.End)),
				r.Perms, r.Class, humanize.IBytes(r.Size()),
				styles.Muted.Render(r.Path))
		}
		fmt.Fprintf(out, "%d regions, %s\n", len(regions), humanize.IBytes(total))
		return nil
	},
}

func init() {
	addSourceFlags(regionsCmd)
	regionsCmd.Flags().String("class", "", "Only regions of this class (code, data, bss, ...)")
}
