package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	ulog "uelocate/internal/uelocate/log"
)

func init() {
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(regionsCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(schemaCmd)
}

var rootCmd = &cobra.Command{
	Use:   "uelocate",
	Short: "Locate engine globals in a running Unreal Engine process",
	Long: `uelocate finds the global object array and name table of an Unreal Engine
module without symbols. It scans the module for per-build signatures, decodes
the ARM or ARM64 instructions around each match and follows any pointer chain
guarding the result.

Targets are read from a live process, a snapshot directory or the module file.`,
	Example: `
# Resolve every target of the matching profile in a running game
uelocate resolve --package com.tencent.ig

# Export addresses and the structure layout as JSON
uelocate resolve --pid 4211 --json > globals.json

# Save the module regions and resolve offline later
uelocate dump --pid 4211 ./snap
uelocate resolve --snapshot ./snap --profile pubgm
  `,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		debug, _ := cmd.Flags().GetBool("debug")
		ulog.Setup(debug)
		_, err := ResolveCwd(cmd)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return ulog.Close()
	},
}

// Root returns the root command.
func Root() *cobra.Command {
	return rootCmd
}

func Execute() {
	// Bypass fang's styled output when exporting JSON or when output is piped
	plain := slices.ContainsFunc(os.Args[1:], func(arg string) bool {
		return arg == "--json" || arg == "-j"
	})
	if !plain && !term.IsTerminal(os.Stdout.Fd()) {
		plain = true
	}

	if plain {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := rootCmd.ExecuteContext(ctx); err != nil {
			stop()
			os.Exit(1)
		}
		return
	}

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

// ResolveCwd changes into --cwd when given and returns the working directory.
func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		err := os.Chdir(cwd)
		if err != nil {
			return "", fmt.Errorf("failed to change directory: %v", err)
		}
		return cwd, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %v", err)
	}
	return cwd, nil
}
