package config

// BundlerConfig configures the build driver.
type BundlerConfig struct {
	// OutDir receives one compiled script per entry.
	OutDir string `yaml:"out_dir" json:"out_dir,omitempty"`

	// CacheDir holds the build ledger when Cache is enabled.
	CacheDir string `yaml:"cache_dir" json:"cache_dir,omitempty"`
	Cache    bool   `yaml:"cache" json:"cache,omitempty"`

	// Minify collapses whitespace in literal template text.
	Minify bool `yaml:"minify" json:"minify,omitempty"`

	// Workers bounds how many entries compile in parallel.
	Workers int `yaml:"workers" json:"workers,omitempty"`

	// Debounce is the watch-mode delay between a change and the rebuild.
	Debounce string `yaml:"debounce" json:"debounce,omitempty"`
}

// DefaultBundlerConfig returns sensible defaults.
func DefaultBundlerConfig() BundlerConfig {
	return BundlerConfig{
		OutDir:   "dist",
		CacheDir: ".cache",
		Cache:    false,
		Minify:   false,
		Workers:  2,
		Debounce: "200ms",
	}
}
