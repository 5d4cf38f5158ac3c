package main

import (
	"fmt"
	"os"

	"htlpack/internal/config"
	"htlpack/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "htlpack",
	Short: "htlpack - compile HTL templates into loadable scripts",
	Long: `htlpack compiles HTL templates into Go scripts exposing a single
entry point, Main(params, secrets, logger), and verifies that the compiled
scripts honour that contract.

A script fetches the markdown resource addressed by its params, converts it
to HTML and renders the template over it. All logging goes through the
logger the caller hands in.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if verbose {
			c.Logging.Level = "debug"
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", cfgPath, err)
		}
		if err := logging.Initialize(c.Logging.Logging()); err != nil {
			return err
		}
		cfg = c
		logger = logging.L()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
