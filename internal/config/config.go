// Package config implements the YAML-plus-environment config loader of
// §2/§6, grounded on the teacher's `pkg/config/config.go`: read file →
// substitute ${VAR}/${VAR:-default} → unmarshal → validate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Load reads path, applies environment substitution, unmarshals, then
// layers the `ONGARDE_*`/`DEBUG` environment variables named in §6 on top
// (they take precedence over the file, matching "overrides config").
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		data = substituteEnvVars(data)
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if err := ValidateUpstreams(cfg.Upstream); err != nil {
		return nil, fmt.Errorf("validating upstream config: %w", err)
	}

	return cfg, nil
}

// ResolvePath implements the `ONGARDE_CONFIG` / default-location lookup.
func ResolvePath() string {
	if p := os.Getenv("ONGARDE_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(HomeDir(), "config.yaml")
}

// HomeDir implements `ONGARDE_HOME` (state directory override for tests)
// with a fallback to ~/.ongarde.
func HomeDir() string {
	if h := os.Getenv("ONGARDE_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".ongarde")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ONGARDE_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Proxy.Port = port
		}
	}
	if v, ok := os.LookupEnv("ONGARDE_AUTH_REQUIRED"); ok {
		cfg.AuthRequired = v != "false" && v != "0"
	}
	if v, ok := os.LookupEnv("DEBUG"); ok {
		cfg.Logging.Debug = v == "true" || v == "1"
	}
	cfg.HomeDir = HomeDir()
	if cfg.Audit.Path == "" {
		cfg.Audit.Path = filepath.Join(cfg.HomeDir, "audit.db")
	}
	if cfg.Allowlist.Path == "" {
		cfg.Allowlist.Path = filepath.Join(cfg.HomeDir, "allowlist.yaml")
	}
	if cfg.Logging.Path == "" {
		cfg.Logging.Path = filepath.Join(cfg.HomeDir, "proxy.log")
	}
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} in raw YAML bytes
// before parsing, exactly mirroring the teacher's pattern.
func substituteEnvVars(content []byte) []byte {
	return envVarPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		groups := envVarPattern.FindSubmatch(match)
		if groups == nil {
			return match
		}
		varName := string(groups[1])
		hasDefault := len(groups) > 2 && groups[2] != nil
		defaultVal := ""
		if hasDefault {
			defaultVal = string(groups[2])
		}
		val, ok := os.LookupEnv(varName)
		if !ok || val == "" {
			if hasDefault {
				return []byte(defaultVal)
			}
			return []byte("")
		}
		return []byte(val)
	})
}

// Validate performs structural checks beyond what YAML unmarshalling
// guarantees.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Scanner.Mode != "" && cfg.Scanner.Mode != "full" && cfg.Scanner.Mode != "lite" {
		return fmt.Errorf("scanner.mode %q is not valid; must be full or lite", cfg.Scanner.Mode)
	}
	if cfg.Proxy.Port < 0 || cfg.Proxy.Port > 65535 {
		return fmt.Errorf("proxy.port %d is out of range", cfg.Proxy.Port)
	}
	if cfg.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit.retention_days must be non-negative, got %d", cfg.Audit.RetentionDays)
	}
	return nil
}
