package main

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"htlpack/internal/verify"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	verifyParams  string
	verifySecrets string
	verifyExpect  string
	verifyTimeout time.Duration
)

// verifyCmd builds an entry and checks its artifact against the entry point contract
var verifyCmd = &cobra.Command{
	Use:   "verify [entry.htl]",
	Short: "Build an entry and verify the compiled script",
	Long: `Rebuilds the entry before every check and runs, in order:
  1. artifacts:   the compiled script exists and the template was not copied
  2. loadable:    the script interprets without error
  3. entry-point: Main exists with the entry point signature
  4. execution:   Main resolves to a response whose body matches --expect
  5. injection:   Main logs through the logger it was handed
  6. isolation:   concurrent calls never share log output

A build failure skips the remaining checks.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	addBundlerFlags(verifyCmd)
	verifyCmd.Flags().StringVarP(&verifyParams, "params", "p", "", "YAML or JSON file with request params")
	verifyCmd.Flags().StringVarP(&verifySecrets, "secrets", "s", "", "Dotenv file with secrets")
	verifyCmd.Flags().StringVar(&verifyExpect, "expect", "", "Pattern the body must match (default from config)")
	verifyCmd.Flags().DurationVar(&verifyTimeout, "timeout", 0, "Per-check timeout (default from config)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	params, err := loadParams(verifyParams)
	if err != nil {
		return err
	}
	secrets, err := loadSecrets(verifySecrets)
	if err != nil {
		return err
	}

	pattern := cfg.Verify.Expect
	if verifyExpect != "" {
		pattern = verifyExpect
	}
	var expect *regexp.Regexp
	if pattern != "" {
		if expect, err = regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid --expect: %w", err)
		}
	}
	timeout := cfg.GetVerifyTimeout()
	if verifyTimeout > 0 {
		timeout = verifyTimeout
	}

	h := &verify.Harness{
		Entry:   args[0],
		Options: bundlerOptions(cmd),
		Loader:  newLoader(),
		Params:  params,
		Secrets: secrets,
		Expect:  expect,
		Logger:  logger.Named("script").Sugar(),
		Timeout: timeout,
	}
	report := h.Run(ctx)
	renderReport(cmd.OutOrStdout(), report)
	return report.Err()
}

var (
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	skipStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	titleStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// renderReport prints one line per check, then the overall verdict.
func renderReport(w io.Writer, r *verify.Report) {
	var b strings.Builder
	b.WriteString(titleStyle.Render(r.Entry))
	b.WriteString("\n")
	if r.Artifact != "" {
		b.WriteString(dimStyle.Render("  artifact " + r.Artifact))
		b.WriteString("\n")
	}

	for _, res := range r.Results {
		var mark string
		switch {
		case res.Err == nil:
			mark = passStyle.Render("PASS")
		case errors.Is(res.Err, verify.ErrSkipped):
			mark = skipStyle.Render("SKIP")
		default:
			mark = failStyle.Render("FAIL")
		}
		line := fmt.Sprintf("  %s %-12s %s", mark, res.Check, dimStyle.Render(res.Duration.Round(time.Millisecond).String()))
		if res.Err != nil && !errors.Is(res.Err, verify.ErrSkipped) {
			line += "\n       " + res.Err.Error()
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if r.BuildErr != nil {
		b.WriteString(failStyle.Render("  build failed: "))
		b.WriteString(r.BuildErr.Error())
		b.WriteString("\n")
	}
	if r.Passed() {
		b.WriteString(passStyle.Render("ok"))
	} else {
		b.WriteString(failStyle.Render("FAILED"))
	}
	b.WriteString("\n")
	fmt.Fprint(w, b.String())
}
