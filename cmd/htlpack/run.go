package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"htlpack/internal/loader"
	"htlpack/internal/verify"
	"htlpack/pkg/script"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	paramsFile string
	envFile    string
	runPath    string
	runTimeout time.Duration
)

// runCmd loads a compiled script and calls its entry point once
var runCmd = &cobra.Command{
	Use:   "run [artifact.go]",
	Short: "Call a compiled script and print the response body",
	Long: `Loads a compiled script, calls Main once and prints the body it
resolves to. Params come from a YAML or JSON file (default: a request for
/hello.md). Secrets default to the runtime section of the config and are
overridden by the dotenv file given with --env-file.

Example:
  htlpack run dist/html.go --env-file .env --path /index.md`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func init() {
	runCmd.Flags().StringVarP(&paramsFile, "params", "p", "", "YAML or JSON file with request params")
	runCmd.Flags().StringVarP(&envFile, "env-file", "e", "", "Dotenv file with secrets")
	runCmd.Flags().StringVar(&runPath, "path", "", "Override the request path")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Second, "How long to wait for the response")
}

// loadParams reads params from path, or returns the default request when
// path is empty. yaml.v3 also accepts JSON documents.
func loadParams(path string) (script.Params, error) {
	if path == "" {
		return verify.DefaultParams(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read params: %w", err)
	}
	params := script.Params{}
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("failed to parse params %s: %w", path, err)
	}
	return params, nil
}

// loadSecrets layers the dotenv file at path over the config defaults.
func loadSecrets(path string) (script.Secrets, error) {
	secrets := script.Secrets(cfg.Secrets())
	if path == "" {
		return secrets, nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets: %w", err)
	}
	for k, v := range env {
		secrets[k] = v
	}
	return secrets, nil
}

func newLoader() *loader.Loader {
	return loader.New(loader.WithAllowedImports(cfg.Runtime.AllowedImports...))
}

func runScript(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	params, err := loadParams(paramsFile)
	if err != nil {
		return err
	}
	if runPath != "" {
		params[script.ParamPath] = runPath
	}
	secrets, err := loadSecrets(envFile)
	if err != nil {
		return err
	}

	mod, err := newLoader().Load(args[0])
	if err != nil {
		return err
	}
	entry, err := mod.EntryPoint()
	if err != nil {
		return err
	}

	f := entry(params, secrets, logger.Named("script").Sugar())
	if f == nil {
		return verify.ErrNoResult
	}
	waitCtx, waitCancel := context.WithTimeout(ctx, runTimeout)
	defer waitCancel()
	res, err := f.Await(waitCtx)
	if err != nil {
		return err
	}

	logger.Info("Script responded",
		zap.String("artifact", args[0]),
		zap.Int("status", res.StatusCode),
		zap.Int("bytes", len(res.Body)))
	fmt.Fprintln(cmd.OutOrStdout(), res.Body)
	if res.StatusCode >= 400 {
		return fmt.Errorf("script responded with status %d", res.StatusCode)
	}
	return nil
}
