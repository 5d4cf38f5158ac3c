package main

import (
	"fmt"
	"runtime"

	"htlpack/internal/bundler"

	"github.com/spf13/cobra"
)

// versionCmd prints the tool and compiler versions
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s, %s)\n", cfg.Name, cfg.Version, bundler.CompilerVersion, runtime.Version())
		return nil
	},
}
