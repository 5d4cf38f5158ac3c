// Package logging provides config-driven categorized logging for htlpack.
// Every category shares one zap logger, named after the category. Until
// Initialize or SetLogger is called all output is discarded.
//
// Compiled scripts never log through this package: they receive the logger
// handle passed to their entry point.
package logging

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config loading
	CategoryBundler  Category = "bundler"  // Build driver
	CategoryCompiler Category = "compiler" // Template compilation
	CategoryCache    Category = "cache"    // Build cache ledger
	CategoryWatch    Category = "watch"    // File watching and rebuilds
	CategoryLoader   Category = "loader"   // Script interpretation
	CategoryVerify   Category = "verify"   // Contract checks
	CategoryCLI      Category = "cli"      // Command handlers
)

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	Level      string
	Format     string // json, console
	Categories map[string]bool
}

var (
	mu         sync.RWMutex
	base       = zap.NewNop()
	categories map[string]bool
	sugared    = map[Category]*zap.SugaredLogger{}
)

// Initialize builds the process logger from cfg. Output goes to stderr.
func Initialize(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	zcfg := zap.NewProductionConfig()
	if strings.EqualFold(cfg.Format, "console") || cfg.Format == "" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	l, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	SetLogger(l)

	mu.Lock()
	categories = cfg.Categories
	mu.Unlock()

	Get(CategoryBoot).Debug("logging initialized: level=%s format=%s", level, cfg.Format)
	return nil
}

// ParseLevel maps a config level name onto a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", s)
}

// SetLogger replaces the process logger. Passing nil discards output.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	base = l
	sugared = map[Category]*zap.SugaredLogger{}
	mu.Unlock()
}

// L returns the process logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Sync flushes buffered output.
func Sync() {
	_ = L().Sync()
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Categories missing from the config are enabled.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if categories == nil {
		return true
	}
	enabled, ok := categories[string(category)]
	return !ok || enabled
}

// Logger logs printf-style messages under one category.
type Logger struct {
	category Category
}

// Get returns the logger for category.
func Get(category Category) *Logger {
	return &Logger{category: category}
}

// Sugar returns the underlying sugared logger for this category.
func (l *Logger) Sugar() *zap.SugaredLogger {
	mu.RLock()
	s, ok := sugared[l.category]
	mu.RUnlock()
	if ok {
		return s
	}

	mu.Lock()
	defer mu.Unlock()
	if s, ok := sugared[l.category]; ok {
		return s
	}
	s = base.Named(string(l.category)).Sugar()
	sugared[l.category] = s
	return s
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if IsCategoryEnabled(l.category) {
		l.Sugar().Debugf(format, args...)
	}
}

func (l *Logger) Info(format string, args ...interface{}) {
	if IsCategoryEnabled(l.category) {
		l.Sugar().Infof(format, args...)
	}
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if IsCategoryEnabled(l.category) {
		l.Sugar().Warnf(format, args...)
	}
}

func (l *Logger) Error(format string, args ...interface{}) {
	if IsCategoryEnabled(l.category) {
		l.Sugar().Errorf(format, args...)
	}
}

// Convenience wrappers, one pair per busy category.

func Bundler(format string, args ...interface{}) {
	Get(CategoryBundler).Info(format, args...)
}

func BundlerDebug(format string, args ...interface{}) {
	Get(CategoryBundler).Debug(format, args...)
}

func CompilerDebug(format string, args ...interface{}) {
	Get(CategoryCompiler).Debug(format, args...)
}

func Watch(format string, args ...interface{}) {
	Get(CategoryWatch).Info(format, args...)
}

func WatchDebug(format string, args ...interface{}) {
	Get(CategoryWatch).Debug(format, args...)
}

func LoaderDebug(format string, args ...interface{}) {
	Get(CategoryLoader).Debug(format, args...)
}

func Verify(format string, args ...interface{}) {
	Get(CategoryVerify).Info(format, args...)
}

func VerifyDebug(format string, args ...interface{}) {
	Get(CategoryVerify).Debug(format, args...)
}
