package main

import (
	"fmt"

	"htlpack/internal/bundler"
	"htlpack/internal/watch"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// watchCmd rebuilds entries whenever they change
var watchCmd = &cobra.Command{
	Use:   "watch [entry.htl...]",
	Short: "Rebuild templates when they change",
	Long: `Builds every entry once, then watches the entry directories and
rebuilds after changes settle. A failed rebuild is logged and watching
continues. Stop with Ctrl+C.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	addBundlerFlags(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	b, err := bundler.New(args, bundlerOptions(cmd))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w, err := watch.New(b, cfg.GetDebounce(), func(bundle *bundler.Bundle, err error) {
		if err != nil {
			logger.Error("Rebuild failed", zap.Error(err))
			fmt.Fprintf(out, "build failed: %v\n", err)
			return
		}
		printBundle(out, bundle)
	})
	if err != nil {
		return err
	}

	w.Rebuild(ctx)
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return err
	}
	logger.Info("Watching", zap.Strings("dirs", w.WatchedDirs()))

	<-ctx.Done()
	w.Stop()

	stats := w.Stats()
	logger.Info("Watch stopped",
		zap.Int("events", stats.Events),
		zap.Int("builds", stats.Builds),
		zap.Int("failures", stats.BuildFailures))
	return nil
}
