// Package bundler is the build driver: it compiles entry templates into
// scripts in a fixed output directory, one artifact per entry.
package bundler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"htlpack/internal/cache"
	"htlpack/internal/htl"
	"htlpack/internal/logging"

	"golang.org/x/sync/errgroup"
)

// CompilerVersion is folded into every fingerprint so artifacts from an older
// compiler are never reused.
const CompilerVersion = "htl-compiler/1"

// EntryExt is the extension every entry must carry.
const EntryExt = ".htl"

// ArtifactExt is the extension of compiled scripts.
const ArtifactExt = ".go"

var (
	ErrNoEntries        = errors.New("no entries to bundle")
	ErrUnsupportedEntry = errors.New("unsupported entry")
	ErrDuplicateOutput  = errors.New("entries map to the same artifact")
	ErrEntryInOutDir    = errors.New("entry lives in the output directory")
)

// Options configures a Bundler.
type Options struct {
	OutDir   string
	CacheDir string
	Cache    bool
	Minify   bool
	// Workers bounds parallel compilation. Zero means 2.
	Workers int
}

func (o Options) withDefaults() Options {
	if o.OutDir == "" {
		o.OutDir = "dist"
	}
	if o.CacheDir == "" {
		o.CacheDir = ".cache"
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	return o
}

// Asset describes one compiled entry.
type Asset struct {
	Entry    string
	Output   string
	Name     string
	Hash     string
	Size     int
	Cached   bool
	Duration time.Duration
}

// Bundle is the outcome of one Bundle call, assets in entry order.
type Bundle struct {
	Assets   []Asset
	Duration time.Duration
}

// Bundler compiles a fixed set of entries.
type Bundler struct {
	entries []string
	opts    Options
}

// ScriptName is the artifact base name for entry: "html" for "a/html.htl".
func ScriptName(entry string) string {
	base := filepath.Base(entry)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ArtifactPath is where the compiled script for entry lands under outDir.
func ArtifactPath(outDir, entry string) string {
	return filepath.Join(outDir, ScriptName(entry)+ArtifactExt)
}

// New validates entries and returns a Bundler for them.
func New(entries []string, opts Options) (*Bundler, error) {
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}
	opts = opts.withDefaults()

	outDir, err := filepath.Abs(opts.OutDir)
	if err != nil {
		return nil, fmt.Errorf("resolve out dir: %w", err)
	}
	opts.OutDir = outDir

	seen := make(map[string]string, len(entries))
	abs := make([]string, 0, len(entries))
	for _, e := range entries {
		if filepath.Ext(e) != EntryExt {
			return nil, fmt.Errorf("%w: %s (want *%s)", ErrUnsupportedEntry, e, EntryExt)
		}
		p, err := filepath.Abs(e)
		if err != nil {
			return nil, fmt.Errorf("resolve entry %s: %w", e, err)
		}
		if filepath.Dir(p) == outDir {
			return nil, fmt.Errorf("%w: %s", ErrEntryInOutDir, e)
		}
		out := ArtifactPath(outDir, p)
		if prev, ok := seen[out]; ok {
			return nil, fmt.Errorf("%w: %s and %s -> %s", ErrDuplicateOutput, prev, e, out)
		}
		seen[out] = e
		abs = append(abs, p)
	}

	return &Bundler{entries: abs, opts: opts}, nil
}

// Entries returns the absolute entry paths.
func (b *Bundler) Entries() []string {
	return append([]string(nil), b.entries...)
}

// Options returns the effective options.
func (b *Bundler) Options() Options {
	return b.opts
}

// Bundle compiles every entry. It fails as a whole if any entry fails, so
// callers never proceed against a partially written output directory.
// Calling Bundle again is safe and yields identical artifacts.
func (b *Bundler) Bundle(ctx context.Context) (*Bundle, error) {
	start := time.Now()
	if err := os.MkdirAll(b.opts.OutDir, 0755); err != nil {
		return nil, fmt.Errorf("create out dir: %w", err)
	}

	var store *cache.Store
	if b.opts.Cache {
		s, err := cache.Open(b.opts.CacheDir)
		if err != nil {
			return nil, err
		}
		defer s.Close()
		store = s
	}

	assets := make([]Asset, len(b.entries))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.opts.Workers)
	for i, entry := range b.entries {
		eg.Go(func() error {
			a, err := b.build(egCtx, store, entry)
			if err != nil {
				return err
			}
			assets[i] = a
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		logging.Get(logging.CategoryBundler).Error("bundle failed: %v", err)
		return nil, err
	}

	bundle := &Bundle{Assets: assets, Duration: time.Since(start)}
	logging.Bundler("built %d asset(s) into %s in %s", len(assets), b.opts.OutDir, bundle.Duration)
	return bundle, nil
}

func (b *Bundler) build(ctx context.Context, store *cache.Store, entry string) (Asset, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}

	src, err := os.ReadFile(entry)
	if err != nil {
		return Asset{}, fmt.Errorf("read entry: %w", err)
	}

	a := Asset{
		Entry:  entry,
		Output: ArtifactPath(b.opts.OutDir, entry),
		Name:   ScriptName(entry),
	}
	fp := b.fingerprint(src)

	if store != nil {
		if hash, size, ok := b.cached(store, a, fp); ok {
			a.Hash, a.Size, a.Cached, a.Duration = hash, size, true, time.Since(start)
			logging.BundlerDebug("cache hit for %s", entry)
			return a, nil
		}
	}

	logging.CompilerDebug("compiling %s -> %s", entry, a.Output)
	code, err := htl.Compile(src, htl.Options{
		Name:   a.Name,
		Source: filepath.Base(entry),
		Minify: b.opts.Minify,
	})
	if err != nil {
		return Asset{}, fmt.Errorf("compile %s: %w", entry, err)
	}

	if err := writeAtomic(a.Output, code); err != nil {
		return Asset{}, err
	}
	a.Hash = hashBytes(code)
	a.Size = len(code)

	if store != nil {
		if err := store.Put(cache.Record{
			Entry:        entry,
			Fingerprint:  fp,
			Artifact:     a.Output,
			ArtifactHash: a.Hash,
		}); err != nil {
			return Asset{}, err
		}
	}

	a.Duration = time.Since(start)
	logging.BundlerDebug("wrote %s (%d bytes) in %s", a.Output, a.Size, a.Duration)
	return a, nil
}

// cached reports whether the artifact on disk still matches the ledger.
func (b *Bundler) cached(store *cache.Store, a Asset, fp string) (hash string, size int, ok bool) {
	rec, ok, err := store.Get(a.Entry)
	if err != nil {
		logging.Get(logging.CategoryCache).Warn("cache lookup failed for %s: %v", a.Entry, err)
		return "", 0, false
	}
	if !ok || rec.Fingerprint != fp || rec.Artifact != a.Output {
		return "", 0, false
	}
	data, err := os.ReadFile(a.Output)
	if err != nil || hashBytes(data) != rec.ArtifactHash {
		return "", 0, false
	}
	return rec.ArtifactHash, len(data), true
}

func (b *Bundler) fingerprint(src []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00minify=%t\x00", CompilerVersion, b.opts.Minify)
	h.Write(src)
	return hex.EncodeToString(h.Sum(nil))
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// writeAtomic replaces path with data so readers never see a partial file.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("chmod artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}
