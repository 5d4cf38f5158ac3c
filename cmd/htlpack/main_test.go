package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var exampleEntry = filepath.Join("..", "..", "examples", "html.htl")

// execute runs the root command with args and a config path that does not
// exist, so defaults apply.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeEnvFile(t *testing.T) string {
	t.Helper()
	root, err := filepath.Abs(filepath.Join("..", "..", "examples", "content"))
	require.NoError(t, err)
	p := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(p, []byte("REPO_RAW_ROOT="+root+"\nPSSST=secret\n"), 0o600))
	return p
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "htlpack 0.3.0 (htl-compiler/1"), out)
}

func TestBuildAndRunCmd(t *testing.T) {
	outDir := t.TempDir()

	out, err := execute(t, "build", exampleEntry, "--out-dir", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "built")
	artifact := filepath.Join(outDir, "html.go")
	assert.FileExists(t, artifact)

	out, err = execute(t, "run", artifact, "--env-file", writeEnvFile(t))
	require.NoError(t, err)
	assert.Contains(t, out, "<title>Welcome</title>")
}

func TestBuildCmd_RejectsNonTemplate(t *testing.T) {
	_, err := execute(t, "build", "README.md")
	assert.Error(t, err)
}

func TestVerifyCmd(t *testing.T) {
	out, err := execute(t, "verify", exampleEntry, "--out-dir", t.TempDir(), "--secrets", writeEnvFile(t))
	require.NoError(t, err, out)
	for _, check := range []string{"artifacts", "loadable", "entry-point", "execution", "injection", "isolation"} {
		assert.Contains(t, out, check)
	}
	assert.Contains(t, out, "PASS")
	assert.NotContains(t, out, "FAIL")
}

func TestLoadParams(t *testing.T) {
	p, err := loadParams("")
	require.NoError(t, err)
	assert.Equal(t, "/hello.md", p.String("path"))

	dir := t.TempDir()
	yml := filepath.Join(dir, "params.yaml")
	require.NoError(t, os.WriteFile(yml, []byte("path: /a.md\nowner: o\n__ow_headers:\n  X-Request-Id: abc\n"), 0o644))
	p, err = loadParams(yml)
	require.NoError(t, err)
	assert.Equal(t, "/a.md", p.String("path"))
	assert.Equal(t, "abc", p.Headers()["X-Request-Id"])

	js := filepath.Join(dir, "params.json")
	require.NoError(t, os.WriteFile(js, []byte(`{"path": "/b.md", "repo": "r"}`), 0o644))
	p, err = loadParams(js)
	require.NoError(t, err)
	assert.Equal(t, "/b.md", p.String("path"))
	assert.Equal(t, "r", p.String("repo"))

	_, err = loadParams(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
