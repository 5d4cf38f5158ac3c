package verify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"htlpack/internal/bundler"
	"htlpack/pkg/script"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

func checkNames(r *Report) []string {
	var names []string
	for _, res := range r.Results {
		names = append(names, res.Check)
	}
	return names
}

var allChecks = []string{CheckArtifacts, CheckLoadable, CheckEntryPoint, CheckExecution, CheckInjection, CheckIsolation}

func TestHarness_AllChecksPass(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := &Harness{
		Entry:            exampleEntry,
		Options:          bundler.Options{OutDir: t.TempDir()},
		Params:           DefaultParams(),
		Secrets:          fileSecrets(map[string]string{"PSSST": "secret"}),
		InjectionSecrets: fileSecrets(map[string]string{"SECRETS": "there"}),
		Expect:           welcome,
		Logger:           zap.New(core).Sugar(),
		Timeout:          10 * time.Second,
	}

	report := h.Run(context.Background())
	require.NoError(t, report.Err())
	assert.True(t, report.Passed())
	assert.NoError(t, report.BuildErr)

	if diff := cmp.Diff(allChecks, checkNames(report)); diff != "" {
		t.Errorf("check order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, filepath.Join(h.Options.OutDir, "html.go"), report.Artifact)
	assert.Contains(t, report.Body, "Welcome")

	// The execution check logs through the harness logger.
	assert.Positive(t, logs.FilterMessageSnippet("entry point invoked").Len())
}

func TestHarness_BuildFailureSkipsChecks(t *testing.T) {
	entry := filepath.Join(t.TempDir(), "html.htl")
	require.NoError(t, os.WriteFile(entry, []byte("<p>${content.title</p>"), 0o644))

	h := &Harness{
		Entry:   entry,
		Options: bundler.Options{OutDir: t.TempDir()},
		Params:  DefaultParams(),
		Secrets: fileSecrets(nil),
	}
	report := h.Run(context.Background())

	require.Error(t, report.BuildErr)
	assert.False(t, report.Passed())
	assert.Equal(t, allChecks, checkNames(report))
	for _, res := range report.Results {
		assert.ErrorIs(t, res.Err, ErrSkipped, res.Check)
	}
	assert.True(t, strings.Contains(report.Err().Error(), "unterminated"))
	assert.False(t, errors.Is(report.Err(), ErrSkipped))
}

func TestHarness_InvalidEntry(t *testing.T) {
	h := &Harness{Entry: "page.html", Options: bundler.Options{OutDir: t.TempDir()}}
	report := h.Run(context.Background())
	assert.ErrorIs(t, report.BuildErr, bundler.ErrUnsupportedEntry)
	assert.Empty(t, report.Results)
	assert.False(t, report.Passed())
}

func TestHarness_ExecutionFailureReported(t *testing.T) {
	h := &Harness{
		Entry:   exampleEntry,
		Options: bundler.Options{OutDir: t.TempDir()},
		Params:  DefaultParams(),
		Secrets: fileSecrets(nil),
		Expect:  regexp.MustCompile(`Goodbye`),
	}
	report := h.Run(context.Background())

	require.NoError(t, report.BuildErr)
	byName := map[string]error{}
	for _, res := range report.Results {
		byName[res.Check] = res.Err
	}
	assert.NoError(t, byName[CheckArtifacts])
	assert.NoError(t, byName[CheckLoadable])
	assert.NoError(t, byName[CheckEntryPoint])
	assert.ErrorIs(t, byName[CheckExecution], ErrBodyMismatch)
	assert.NoError(t, byName[CheckInjection])
	assert.NoError(t, byName[CheckIsolation])
	assert.ErrorIs(t, report.Err(), ErrBodyMismatch)
}

func TestHarness_RejectionReported(t *testing.T) {
	params := DefaultParams()
	delete(params, script.ParamOwner)
	h := &Harness{
		Entry:   exampleEntry,
		Options: bundler.Options{OutDir: t.TempDir()},
		Params:  params,
		Secrets: fileSecrets(nil),
	}
	report := h.Run(context.Background())
	assert.ErrorIs(t, report.Err(), ErrRejected)
	assert.ErrorIs(t, report.Err(), script.ErrBadRequest)
}
