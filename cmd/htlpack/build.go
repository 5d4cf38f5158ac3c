package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"htlpack/internal/bundler"
	"htlpack/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	outDir   string
	cacheDir string
	useCache bool
	minify   bool
	workers  int
)

// buildCmd compiles entries into the output directory
var buildCmd = &cobra.Command{
	Use:   "build [entry.htl...]",
	Short: "Compile templates into scripts",
	Long: `Compiles every entry template into <out-dir>/<name>.go. Artifacts are
replaced atomically; other files in the output directory are left alone.

Example:
  htlpack build src/html.htl --out-dir dist --cache`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBuild,
}

func init() {
	addBundlerFlags(buildCmd)
}

// addBundlerFlags registers the flags shared by every command that builds.
func addBundlerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "Output directory (default from config)")
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Build cache directory (default from config)")
	cmd.Flags().BoolVar(&useCache, "cache", false, "Reuse unchanged artifacts from the build cache")
	cmd.Flags().BoolVar(&minify, "minify", false, "Collapse whitespace in literal template text")
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel compile workers (default from config)")
}

// bundlerOptions merges the config file with any flags set on cmd.
func bundlerOptions(cmd *cobra.Command) bundler.Options {
	opts := bundler.Options{
		OutDir:   cfg.Bundler.OutDir,
		CacheDir: cfg.Bundler.CacheDir,
		Cache:    cfg.Bundler.Cache,
		Minify:   cfg.Bundler.Minify,
		Workers:  cfg.Bundler.Workers,
	}
	flags := cmd.Flags()
	if flags.Changed("out-dir") {
		opts.OutDir = outDir
	}
	if flags.Changed("cache-dir") {
		opts.CacheDir = cacheDir
	}
	if flags.Changed("cache") {
		opts.Cache = useCache
	}
	if flags.Changed("minify") {
		opts.Minify = minify
	}
	if flags.Changed("workers") {
		opts.Workers = workers
	}
	return opts
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	b, err := bundler.New(args, bundlerOptions(cmd))
	if err != nil {
		return err
	}
	bundle, err := b.Bundle(ctx)
	if err != nil {
		return err
	}
	logger.Info("Build complete",
		zap.Int("assets", len(bundle.Assets)),
		zap.Duration("duration", bundle.Duration))
	printBundle(cmd.OutOrStdout(), bundle)
	return nil
}

func printBundle(w io.Writer, b *bundler.Bundle) {
	for _, a := range b.Assets {
		state := "built"
		if a.Cached {
			state = "cached"
		}
		fmt.Fprintf(w, "%-7s %s -> %s (%d bytes, %s)\n", state, a.Entry, a.Output, a.Size, a.Duration.Round(time.Microsecond))
	}
	logging.Get(logging.CategoryCLI).Debug("printed %d assets", len(b.Assets))
}
