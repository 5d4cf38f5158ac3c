// Package verify checks that a compiled script honours the entry point
// contract: the artifact exists and is not a copy of its template, it loads,
// it exposes a callable Main, Main resolves to a Response with a body, and
// Main logs only through the logger it was handed.
//
// Each check is independent; Harness strings them together with a rebuild
// before every check.
package verify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"htlpack/internal/bundler"
	"htlpack/internal/loader"
	"htlpack/pkg/script"
)

var (
	ErrNotGenerated   = errors.New("artifact has not been generated")
	ErrPassthrough    = errors.New("template passed through to the output directory")
	ErrNotLoadable    = errors.New("artifact cannot be loaded")
	ErrNoEntryPoint   = errors.New("artifact has no entry point")
	ErrNotCallable    = errors.New("entry point is not callable")
	ErrNoResult       = errors.New("entry point returned no future")
	ErrRejected       = errors.New("entry point rejected")
	ErrNoResponse     = errors.New("no response received")
	ErrNoBody         = errors.New("response has no body")
	ErrBodyMismatch   = errors.New("response body does not contain expected result")
	ErrLoggerBypassed = errors.New("entry point did not log through the supplied logger")
	ErrLoggerLeak     = errors.New("log output reached another call's logger")
	ErrTimeout        = errors.New("timed out waiting for entry point")
	ErrSkipped        = errors.New("skipped after build failure")
)

// Artifacts checks that the compiled script for entry exists under outDir and
// that the template itself was not copied there.
func Artifacts(outDir, entry string) error {
	out := bundler.ArtifactPath(outDir, entry)
	if _, err := os.Stat(out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotGenerated, out, err)
	}
	raw := filepath.Join(outDir, filepath.Base(entry))
	if _, err := os.Stat(raw); err == nil {
		return fmt.Errorf("%w: %s", ErrPassthrough, raw)
	}
	return nil
}

// Loadable checks that the artifact at path interprets without error.
func Loadable(l *loader.Loader, path string) (*loader.Module, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotGenerated, err)
	}
	m, err := l.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotLoadable, err)
	}
	return m, nil
}

// EntryPointShape checks that the module exposes Main as a function with the
// entry point signature.
func EntryPointShape(m *loader.Module) (script.EntryPoint, error) {
	main, err := m.EntryPoint()
	switch {
	case err == nil:
		return main, nil
	case errors.Is(err, loader.ErrSymbolNotFound):
		return nil, fmt.Errorf("%w: %w", ErrNoEntryPoint, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrNotCallable, err)
	}
}

type outcome struct {
	res *script.Response
	err error
}

// Execution calls main and waits, via the Future's continuations, for its
// outcome. A rejection is returned wrapped in ErrRejected. When expect is
// non-nil the body must match it.
func Execution(ctx context.Context, main script.EntryPoint, params script.Params, secrets script.Secrets, logger script.Logger, expect *regexp.Regexp) (*script.Response, error) {
	f := main(params, secrets, logger)
	if f == nil {
		return nil, ErrNoResult
	}

	results := make(chan outcome, 1)
	f.Then(func(r *script.Response) {
		results <- outcome{res: r}
	}).Catch(func(err error) {
		select {
		case results <- outcome{err: err}:
		default:
		}
	})

	var o outcome
	select {
	case o = <-results:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}

	if o.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRejected, o.err)
	}
	if o.res == nil {
		return nil, ErrNoResponse
	}
	if o.res.Body == "" {
		return o.res, ErrNoBody
	}
	if expect != nil && !expect.MatchString(o.res.Body) {
		return o.res, fmt.Errorf("%w: want match for %s", ErrBodyMismatch, expect)
	}
	return o.res, nil
}

// Injection calls main with a fresh intercepting logger and the given
// secrets. It waits for the call to settle, then requires that the logger saw
// at least one formatted line during the call and that the response has a body.
func Injection(ctx context.Context, main script.EntryPoint, params script.Params, secrets script.Secrets) (*Capture, error) {
	logger, capture := NewCaptureLogger(nil)
	defer logger.Sync()

	if _, err := Execution(ctx, main, params, secrets, logger, nil); err != nil {
		return capture, err
	}
	if capture.Len() == 0 {
		return capture, ErrLoggerBypassed
	}
	return capture, nil
}

// Isolation calls main twice concurrently, each call with its own intercepting
// logger and request id, and requires that neither logger saw the other
// call's output.
func Isolation(ctx context.Context, main script.EntryPoint, params script.Params, secrets script.Secrets) error {
	type call struct {
		id      string
		capture *Capture
		err     error
	}
	calls := []*call{{id: "isolation-a"}, {id: "isolation-b"}}

	done := make(chan struct{}, len(calls))
	for _, c := range calls {
		go func() {
			defer func() { done <- struct{}{} }()
			logger, capture := NewCaptureLogger(nil)
			c.capture = capture
			_, c.err = Execution(ctx, main, withRequestID(params, c.id), secrets, logger, nil)
		}()
	}
	for range calls {
		<-done
	}

	for i, c := range calls {
		if c.err != nil {
			return c.err
		}
		if c.capture.Len() == 0 {
			return fmt.Errorf("%w: call %s", ErrLoggerBypassed, c.id)
		}
		other := calls[1-i]
		if c.capture.Contains(other.id) {
			return fmt.Errorf("%w: %s logger saw %s", ErrLoggerLeak, c.id, other.id)
		}
		if !c.capture.Contains(c.id) {
			return fmt.Errorf("%w: %s logger never saw its own request", ErrLoggerBypassed, c.id)
		}
	}
	return nil
}

// withRequestID copies params with the X-Request-Id header replaced.
func withRequestID(params script.Params, id string) script.Params {
	out := make(script.Params, len(params))
	for k, v := range params {
		out[k] = v
	}
	headers := map[string]any{}
	for k, v := range params.Headers() {
		headers[k] = v
	}
	headers["X-Request-Id"] = id
	out[script.ParamHeaders] = headers
	return out
}
