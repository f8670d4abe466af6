package config

import "time"

// Config is the immutable in-memory record produced by Load. It is shared
// read-only across the process; any change requires a restart (§3
// "Ownership and lifecycle").
type Config struct {
	Version  int               `yaml:"version"`
	Upstream map[string]string `yaml:"upstream"`

	Proxy struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"proxy"`

	Scanner struct {
		Mode string `yaml:"mode"` // full | lite
	} `yaml:"scanner"`

	Audit struct {
		RetentionDays int    `yaml:"retention_days"`
		Path          string `yaml:"path"`
	} `yaml:"audit"`

	Allowlist struct {
		Path string `yaml:"path"`
	} `yaml:"allowlist"`

	Logging struct {
		Path  string `yaml:"path"`
		Debug bool   `yaml:"debug"`
	} `yaml:"logging"`

	// StrictMode is reserved (§9 open question): accepted and validated,
	// triggers a startup warning, has no further effect.
	StrictMode bool `yaml:"strict_mode"`

	AuthRequired bool `yaml:"auth_required"`

	// Derived, not read from YAML directly.
	HomeDir string `yaml:"-"`
}

// DefaultHTTPTimeout bounds upstream dispatch per §5's per-request
// deadline guidance.
const DefaultHTTPTimeout = 60 * time.Second

// DefaultConfig returns the configuration used when no file is present,
// matching the defaults named in §6.
func DefaultConfig() *Config {
	c := &Config{
		Version:      1,
		Upstream:     map[string]string{},
		AuthRequired: true,
	}
	c.Proxy.Host = "127.0.0.1"
	c.Proxy.Port = 4242
	c.Scanner.Mode = "full"
	c.Audit.RetentionDays = 90
	return c
}
