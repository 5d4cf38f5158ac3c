package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "htlpack.yaml"

// Config holds all htlpack configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Bundler BundlerConfig `yaml:"bundler"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Verify  VerifyConfig  `yaml:"verify"`
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "htlpack",
		Version: "0.3.0",

		Bundler: DefaultBundlerConfig(),

		Runtime: RuntimeConfig{
			ContentRoot: "https://raw.githubusercontent.com/",
			HTTPTimeout: "10s",
		},

		Verify: VerifyConfig{
			Timeout: "10s",
			Expect:  "Welcome",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads htlpack.yaml at path over the defaults. A missing file is not an
// error; HTLPACK_* variables win over both.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read htlpack config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse htlpack config %s: %w", path, err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML, creating the parent directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir for %s: %w", path, err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode htlpack config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write htlpack config %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HTLPACK_OUT_DIR"); v != "" {
		c.Bundler.OutDir = v
	}
	if v := os.Getenv("HTLPACK_CACHE_DIR"); v != "" {
		c.Bundler.CacheDir = v
	}
	if v := os.Getenv("HTLPACK_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Bundler.Cache = b
		}
	}
	if v := os.Getenv("HTLPACK_CONTENT_ROOT"); v != "" {
		c.Runtime.ContentRoot = v
	}
	if v := os.Getenv("HTLPACK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// GetHTTPTimeout returns the content fetch timeout as a duration.
func (c *Config) GetHTTPTimeout() time.Duration {
	d, err := time.ParseDuration(c.Runtime.HTTPTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetVerifyTimeout returns the per-check timeout as a duration.
func (c *Config) GetVerifyTimeout() time.Duration {
	d, err := time.ParseDuration(c.Verify.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// GetDebounce returns the watch debounce as a duration.
func (c *Config) GetDebounce() time.Duration {
	d, err := time.ParseDuration(c.Bundler.Debounce)
	if err != nil || d < 0 {
		return 200 * time.Millisecond
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Bundler.OutDir == "" {
		return fmt.Errorf("bundler.out_dir must be set")
	}
	if c.Bundler.Cache && c.Bundler.CacheDir == "" {
		return fmt.Errorf("bundler.cache_dir must be set when bundler.cache is enabled")
	}
	if c.Bundler.Workers < 0 {
		return fmt.Errorf("bundler.workers must not be negative, got %d", c.Bundler.Workers)
	}
	if filepath.Clean(c.Bundler.OutDir) == filepath.Clean(c.Bundler.CacheDir) {
		return fmt.Errorf("bundler.out_dir and bundler.cache_dir must differ")
	}
	for name, raw := range map[string]string{
		"runtime.http_timeout": c.Runtime.HTTPTimeout,
		"verify.timeout":       c.Verify.Timeout,
		"bundler.debounce":     c.Bundler.Debounce,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, raw, err)
		}
	}
	if c.Verify.Expect != "" {
		if _, err := regexp.Compile(c.Verify.Expect); err != nil {
			return fmt.Errorf("invalid verify.expect: %w", err)
		}
	}
	return nil
}

// Secrets returns the default secrets bag derived from the runtime section.
func (c *Config) Secrets() map[string]string {
	out := map[string]string{}
	if c.Runtime.ContentRoot != "" {
		out["REPO_RAW_ROOT"] = c.Runtime.ContentRoot
	}
	if c.Runtime.HTTPTimeout != "" {
		out["HTTP_TIMEOUT"] = c.GetHTTPTimeout().String()
	}
	return out
}
