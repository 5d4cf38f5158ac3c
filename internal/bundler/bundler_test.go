package bundler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"htlpack/internal/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const helloTemplate = `<html><head><title>${content.title}</title></head><body>${content.document.body @ context='html'}</body></html>`

func writeTemplate(t *testing.T, dir, name, src string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(src), 0o644))
	return p
}

func TestBundle_WritesArtifact(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "dist")
	entry := writeTemplate(t, src, "html.htl", helloTemplate)

	b, err := New([]string{entry}, Options{OutDir: out})
	require.NoError(t, err)
	bundle, err := b.Bundle(context.Background())
	require.NoError(t, err)

	require.Len(t, bundle.Assets, 1)
	a := bundle.Assets[0]
	assert.Equal(t, filepath.Join(out, "html.go"), a.Output)
	assert.Equal(t, "html", a.Name)
	assert.False(t, a.Cached)
	assert.Positive(t, a.Size)
	assert.Len(t, a.Hash, 64)

	data, err := os.ReadFile(a.Output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "DO NOT EDIT")
	assert.Contains(t, string(data), "func Main(")

	// The template itself never lands in the output directory.
	assert.NoFileExists(t, filepath.Join(out, "html.htl"))
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files may be left behind")
}

func TestBundle_Idempotent(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	entry := writeTemplate(t, src, "html.htl", helloTemplate)

	b, err := New([]string{entry}, Options{OutDir: out})
	require.NoError(t, err)

	first, err := b.Bundle(context.Background())
	require.NoError(t, err)
	data1, err := os.ReadFile(first.Assets[0].Output)
	require.NoError(t, err)

	second, err := b.Bundle(context.Background())
	require.NoError(t, err)
	data2, err := os.ReadFile(second.Assets[0].Output)
	require.NoError(t, err)

	assert.Equal(t, data1, data2)
	assert.Equal(t, first.Assets[0].Hash, second.Assets[0].Hash)
}

func TestBundle_LeavesOtherFiles(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	keep := filepath.Join(out, "README.txt")
	require.NoError(t, os.WriteFile(keep, []byte("keep"), 0o644))
	entry := writeTemplate(t, src, "html.htl", helloTemplate)

	b, err := New([]string{entry}, Options{OutDir: out})
	require.NoError(t, err)
	_, err = b.Bundle(context.Background())
	require.NoError(t, err)

	assert.FileExists(t, keep)
}

func TestBundle_MultipleEntriesKeepOrder(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	var entries []string
	for _, name := range []string{"a.htl", "b.htl", "c.htl", "d.htl"} {
		entries = append(entries, writeTemplate(t, src, name, "<p>"+name+"</p>"))
	}

	b, err := New(entries, Options{OutDir: out, Workers: 3})
	require.NoError(t, err)
	bundle, err := b.Bundle(context.Background())
	require.NoError(t, err)

	require.Len(t, bundle.Assets, 4)
	for i, a := range bundle.Assets {
		assert.Equal(t, entries[i], a.Entry)
		assert.FileExists(t, a.Output)
	}
}

func TestBundle_CompileErrorFailsBuild(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	good := writeTemplate(t, src, "good.htl", "<p>ok</p>")
	bad := writeTemplate(t, src, "bad.htl", "<p>${content.title</p>")

	b, err := New([]string{good, bad}, Options{OutDir: out, Workers: 1})
	require.NoError(t, err)
	_, err = b.Bundle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.htl")
	assert.NoFileExists(t, filepath.Join(out, "bad.go"))
}

func TestBundle_MissingEntry(t *testing.T) {
	b, err := New([]string{filepath.Join(t.TempDir(), "gone.htl")}, Options{OutDir: t.TempDir()})
	require.NoError(t, err)
	_, err = b.Bundle(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBundle_CancelledContext(t *testing.T) {
	entry := writeTemplate(t, t.TempDir(), "html.htl", helloTemplate)
	b, err := New([]string{entry}, Options{OutDir: t.TempDir()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Bundle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBundle_CacheHit(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	cacheDir := t.TempDir()
	entry := writeTemplate(t, src, "html.htl", helloTemplate)

	b, err := New([]string{entry}, Options{OutDir: out, CacheDir: cacheDir, Cache: true})
	require.NoError(t, err)

	first, err := b.Bundle(context.Background())
	require.NoError(t, err)
	assert.False(t, first.Assets[0].Cached)

	second, err := b.Bundle(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Assets[0].Cached)
	assert.Equal(t, first.Assets[0].Hash, second.Assets[0].Hash)
	assert.Equal(t, first.Assets[0].Size, second.Assets[0].Size)

	store, err := cache.Open(cacheDir)
	require.NoError(t, err)
	defer store.Close()
	rec, ok, err := store.Get(entry)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.Assets[0].Output, rec.Artifact)
}

func TestBundle_CacheInvalidation(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	entry := writeTemplate(t, src, "html.htl", helloTemplate)
	opts := Options{OutDir: out, CacheDir: t.TempDir(), Cache: true}

	b, err := New([]string{entry}, opts)
	require.NoError(t, err)
	_, err = b.Bundle(context.Background())
	require.NoError(t, err)

	t.Run("template changed", func(t *testing.T) {
		writeTemplate(t, src, "html.htl", helloTemplate+"<!-- v2 -->")
		bundle, err := b.Bundle(context.Background())
		require.NoError(t, err)
		assert.False(t, bundle.Assets[0].Cached)
	})

	t.Run("artifact tampered", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(out, "html.go"), []byte("package main"), 0o644))
		bundle, err := b.Bundle(context.Background())
		require.NoError(t, err)
		assert.False(t, bundle.Assets[0].Cached)
	})

	t.Run("minify toggled", func(t *testing.T) {
		minified := opts
		minified.Minify = true
		mb, err := New([]string{entry}, minified)
		require.NoError(t, err)
		bundle, err := mb.Bundle(context.Background())
		require.NoError(t, err)
		assert.False(t, bundle.Assets[0].Cached)
	})
}

func TestNew_Validation(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "dist")

	_, err := New(nil, Options{})
	assert.ErrorIs(t, err, ErrNoEntries)

	_, err = New([]string{filepath.Join(dir, "page.html")}, Options{OutDir: out})
	assert.ErrorIs(t, err, ErrUnsupportedEntry)

	_, err = New([]string{filepath.Join(dir, "a", "html.htl"), filepath.Join(dir, "b", "html.htl")}, Options{OutDir: out})
	assert.ErrorIs(t, err, ErrDuplicateOutput)

	_, err = New([]string{filepath.Join(out, "html.htl")}, Options{OutDir: out})
	assert.ErrorIs(t, err, ErrEntryInOutDir)
}

func TestNew_Defaults(t *testing.T) {
	b, err := New([]string{"src/html.htl"}, Options{})
	require.NoError(t, err)

	opts := b.Options()
	assert.True(t, filepath.IsAbs(opts.OutDir))
	assert.Equal(t, "dist", filepath.Base(opts.OutDir))
	assert.Equal(t, ".cache", opts.CacheDir)
	assert.Equal(t, 2, opts.Workers)
	require.Len(t, b.Entries(), 1)
	assert.True(t, filepath.IsAbs(b.Entries()[0]))
}

func TestArtifactPath(t *testing.T) {
	assert.Equal(t, "html", ScriptName("src/html.htl"))
	assert.Equal(t, filepath.Join("dist", "page.go"), ArtifactPath("dist", "/x/y/page.htl"))
}
