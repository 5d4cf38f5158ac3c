// Package loader turns compiled scripts back into callable modules by
// interpreting them with Yaegi.
//
// Scripts are restricted to an import allow-list: by default only
// "strings" and the script runtime. Interpretation happens in-process, so a
// script can neither shell out nor link anything the host did not export.
package loader

import (
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"reflect"
	"sort"
	"strconv"

	"htlpack/internal/logging"
	"htlpack/pkg/script"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// EntryPointName is the symbol every compiled script exposes.
const EntryPointName = "Main"

var (
	ErrForbiddenImport = errors.New("forbidden import")
	ErrNotLoadable     = errors.New("script cannot be loaded")
	ErrSymbolNotFound  = errors.New("symbol not found")
	ErrNotCallable     = errors.New("symbol is not callable")
	ErrBadSignature    = errors.New("entry point has incorrect signature")
)

// DefaultAllowedImports are always permitted.
var DefaultAllowedImports = []string{"strings", "htlpack/pkg/script"}

// Loader interprets scripts.
type Loader struct {
	// Whitelist of allowed import paths
	allowedPackages map[string]bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithAllowedImports permits additional import paths. They must be provided
// by yaegi's stdlib symbol table.
func WithAllowedImports(pkgs ...string) Option {
	return func(l *Loader) {
		for _, p := range pkgs {
			l.allowedPackages[p] = true
		}
	}
}

// New creates a Loader.
func New(opts ...Option) *Loader {
	l := &Loader{allowedPackages: map[string]bool{}}
	for _, p := range DefaultAllowedImports {
		l.allowedPackages[p] = true
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Module is a loaded script.
type Module struct {
	Path   string
	interp *interp.Interpreter
}

// Load reads and interprets the script at path.
func (l *Loader) Load(path string) (*Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotLoadable, err)
	}
	return l.LoadSource(path, src)
}

// LoadSource interprets src; name is used in errors only.
func (l *Loader) LoadSource(name string, src []byte) (mod *Module, err error) {
	if err := l.validateImports(name, src); err != nil {
		return nil, err
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib: %w", err)
	}
	if err := i.Use(Symbols); err != nil {
		return nil, fmt.Errorf("failed to load script runtime: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			mod, err = nil, fmt.Errorf("%w: %s: interpreter panic: %v", ErrNotLoadable, name, r)
		}
	}()
	if _, err := i.Eval(string(src)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotLoadable, name, err)
	}

	logging.LoaderDebug("loaded %s", name)
	return &Module{Path: name, interp: i}, nil
}

// validateImports checks that the code only imports allowed packages.
func (l *Loader) validateImports(name string, src []byte) error {
	f, err := parser.ParseFile(token.NewFileSet(), name, src, parser.ImportsOnly)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotLoadable, name, err)
	}

	var forbidden []string
	for _, imp := range f.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return fmt.Errorf("%w: %s: bad import %s", ErrNotLoadable, name, imp.Path.Value)
		}
		if !l.allowedPackages[p] {
			forbidden = append(forbidden, p)
		}
	}
	if len(forbidden) > 0 {
		logging.Get(logging.CategoryLoader).Warn("rejected %s: forbidden imports %v", name, forbidden)
		return fmt.Errorf("%w: %v (allowed: %v)", ErrForbiddenImport, forbidden, l.AllowedImports())
	}
	return nil
}

// AllowedImports returns the allow-list in sorted order.
func (l *Loader) AllowedImports() []string {
	pkgs := make([]string, 0, len(l.allowedPackages))
	for p := range l.allowedPackages {
		pkgs = append(pkgs, p)
	}
	sort.Strings(pkgs)
	return pkgs
}

// Symbol returns the package-level symbol name of the script.
func (m *Module) Symbol(name string) (v reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = reflect.Value{}, fmt.Errorf("%w: %s in %s: %v", ErrSymbolNotFound, name, m.Path, r)
		}
	}()
	v, err = m.interp.Eval("main." + name)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("%w: %s in %s: %v", ErrSymbolNotFound, name, m.Path, err)
	}
	if !v.IsValid() {
		return reflect.Value{}, fmt.Errorf("%w: %s in %s", ErrSymbolNotFound, name, m.Path)
	}
	return v, nil
}

// EntryPoint returns the script's Main as a host function.
func (m *Module) EntryPoint() (script.EntryPoint, error) {
	v, err := m.Symbol(EntryPointName)
	if err != nil {
		return nil, err
	}
	if v.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: %s is a %s", ErrNotCallable, EntryPointName, v.Kind())
	}
	fn, ok := v.Interface().(func(script.Params, script.Secrets, script.Logger) *script.Future)
	if !ok {
		return nil, fmt.Errorf("%w: got %s, want func(script.Params, script.Secrets, script.Logger) *script.Future",
			ErrBadSignature, v.Type())
	}
	return script.EntryPoint(fn), nil
}
