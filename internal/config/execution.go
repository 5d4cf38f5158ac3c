package config

// RuntimeConfig supplies defaults for the secrets bag handed to scripts run
// from the command line. Secrets given explicitly always win.
type RuntimeConfig struct {
	// ContentRoot becomes REPO_RAW_ROOT: an http(s) URL, file:// URL or directory.
	ContentRoot string `yaml:"content_root" json:"content_root,omitempty"`

	// HTTPTimeout becomes HTTP_TIMEOUT.
	HTTPTimeout string `yaml:"http_timeout" json:"http_timeout,omitempty"`

	// AllowedImports extends the packages a compiled script may import.
	AllowedImports []string `yaml:"allowed_imports" json:"allowed_imports,omitempty"`
}

// VerifyConfig configures the contract checks.
type VerifyConfig struct {
	// Timeout bounds every check that waits on a script.
	Timeout string `yaml:"timeout" json:"timeout,omitempty"`

	// Expect is the pattern the rendered body must match.
	Expect string `yaml:"expect" json:"expect,omitempty"`
}
