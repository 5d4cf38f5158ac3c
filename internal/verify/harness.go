package verify

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"htlpack/internal/bundler"
	"htlpack/internal/loader"
	"htlpack/internal/logging"
	"htlpack/pkg/script"

	"go.uber.org/zap"
)

// Check names, in the order Harness runs them.
const (
	CheckArtifacts  = "artifacts"
	CheckLoadable   = "loadable"
	CheckEntryPoint = "entry-point"
	CheckExecution  = "execution"
	CheckInjection  = "injection"
	CheckIsolation  = "isolation"
)

// DefaultTimeout bounds each waiting check when Harness.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Harness builds one entry and runs every check against its artifact.
type Harness struct {
	Entry   string
	Options bundler.Options
	Loader  *loader.Loader

	Params  script.Params
	Secrets script.Secrets
	// InjectionSecrets is the distinct bag used by the injection check.
	// Nil reuses Secrets.
	InjectionSecrets script.Secrets
	Expect           *regexp.Regexp
	// Logger receives the execution check's output. Nil discards it.
	Logger  script.Logger
	Timeout time.Duration
}

// Result is the outcome of one check.
type Result struct {
	Check    string
	Err      error
	Duration time.Duration
}

// Report is the outcome of a Harness run.
type Report struct {
	Entry    string
	Artifact string
	Results  []Result
	BuildErr error
	Body     string
}

// Passed reports whether the build and every check succeeded.
func (r *Report) Passed() bool {
	return r.Err() == nil
}

// Err joins the build error and all check failures.
func (r *Report) Err() error {
	errs := []error{r.BuildErr}
	for _, res := range r.Results {
		if res.Err != nil && !errors.Is(res.Err, ErrSkipped) {
			errs = append(errs, fmt.Errorf("%s: %w", res.Check, res.Err))
		}
	}
	return errors.Join(errs...)
}

// Run rebuilds before every check. A build failure is a setup failure: it is
// recorded in BuildErr and the remaining checks are reported as skipped.
func (h *Harness) Run(ctx context.Context) *Report {
	b, err := bundler.New([]string{h.Entry}, h.Options)
	if err != nil {
		return &Report{Entry: h.Entry, BuildErr: err}
	}
	l := h.Loader
	if l == nil {
		l = loader.New()
	}
	logger := h.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	injectionSecrets := h.InjectionSecrets
	if injectionSecrets == nil {
		injectionSecrets = h.Secrets
	}

	outDir := b.Options().OutDir
	artifact := bundler.ArtifactPath(outDir, h.Entry)
	report := &Report{Entry: h.Entry, Artifact: artifact}

	var (
		module *loader.Module
		main   script.EntryPoint
	)
	checks := []struct {
		name string
		run  func(ctx context.Context) error
	}{
		{CheckArtifacts, func(context.Context) error {
			return Artifacts(outDir, h.Entry)
		}},
		{CheckLoadable, func(context.Context) error {
			m, err := Loadable(l, artifact)
			module = m
			return err
		}},
		{CheckEntryPoint, func(context.Context) error {
			if module == nil {
				return fmt.Errorf("%w: module did not load", ErrNotLoadable)
			}
			fn, err := EntryPointShape(module)
			main = fn
			return err
		}},
		{CheckExecution, func(ctx context.Context) error {
			if main == nil {
				return ErrNoEntryPoint
			}
			res, err := Execution(ctx, main, h.Params, h.Secrets, logger, h.Expect)
			if res != nil {
				report.Body = res.Body
			}
			return err
		}},
		{CheckInjection, func(ctx context.Context) error {
			if main == nil {
				return ErrNoEntryPoint
			}
			_, err := Injection(ctx, main, h.Params, injectionSecrets)
			return err
		}},
		{CheckIsolation, func(ctx context.Context) error {
			if main == nil {
				return ErrNoEntryPoint
			}
			return Isolation(ctx, main, h.Params, injectionSecrets)
		}},
	}

	for _, c := range checks {
		if report.BuildErr != nil {
			report.Results = append(report.Results, Result{Check: c.name, Err: ErrSkipped})
			continue
		}
		if _, err := b.Bundle(ctx); err != nil {
			report.BuildErr = err
			report.Results = append(report.Results, Result{Check: c.name, Err: ErrSkipped})
			continue
		}
		report.Results = append(report.Results, h.run(ctx, c.name, c.run))
	}
	logging.Verify("%s: passed=%t", h.Entry, report.Passed())
	return report
}

func (h *Harness) run(ctx context.Context, name string, fn func(context.Context) error) Result {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	res := Result{Check: name, Err: err, Duration: time.Since(start)}
	if err != nil {
		logging.Get(logging.CategoryVerify).Warn("%s: %s failed: %v", h.Entry, name, err)
	} else {
		logging.VerifyDebug("%s: %s passed in %s", h.Entry, name, res.Duration)
	}
	return res
}
