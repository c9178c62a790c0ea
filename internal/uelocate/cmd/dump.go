package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"uelocate/internal/snapshot"
	ulog "uelocate/internal/uelocate/log"
)

var dumpCmd = &cobra.Command{
	Use:   "dump DIR",
	Short: "Save the module regions to a snapshot directory",
	Long: `Dump reads every region of the module and writes it to DIR together with a
regions.json manifest. Unreadable pages are left out. The snapshot can be used
with --snapshot in place of a live process.`,
	Example: `
uelocate dump --package com.tencent.ig ./snap
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, _ := cmd.Flags().GetInt("jobs")

		src, err := openSource(cmd)
		if err != nil {
			return err
		}
		defer src.Close()

		man, err := snapshot.Save(cmd.Context(), args[0], src.Map, src.Reader, snapshot.Options{
			Module:      src.Module,
			Arch:        src.Arch,
			Concurrency: jobs,
			Logger:      ulog.Logger(),
		})
		if err != nil {
			return err
		}

		var total uint64
		for _, s := range man.Segments {
			total += s.Size
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d regions, %d segments, %s\n",
			args[0], len(man.Regions), len(man.Segments), humanize.IBytes(total))
		return nil
	},
}

func init() {
	addSourceFlags(dumpCmd)
	dumpCmd.Flags().IntP("jobs", "J", 4, "Regions read in parallel")
}
