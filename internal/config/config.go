// Package config loads the plugin-options surface of §6: the user-facing
// knobs the orchestrator reads once per run, plus a JSON config-file
// discovery mechanism mirroring the teacher's own config loader.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config mirrors the plugin-options table of §6. All fields are optional
// from the caller's perspective; DefaultConfig fills in the documented
// defaults.
type Config struct {
	Disabled     bool     `json:"disabled,omitempty"`
	Ref          string   `json:"ref,omitempty"`
	ChangedFiles []string `json:"changedFiles,omitempty"`
	Verbose      bool     `json:"verbose,omitempty"`
	Threshold    float64  `json:"threshold"`
	AllowNoTests bool     `json:"allowNoTests,omitempty"`
	Cache        bool     `json:"cache"`
	StatsFile    string   `json:"statsFile,omitempty"`
}

// DefaultConfig returns a config with the documented defaults: caching
// enabled and a threshold of 1.0 (the full-suite fallback this gates is
// effectively disabled unless the caller lowers it).
func DefaultConfig() Config {
	return Config{
		Threshold: 1.0,
		Cache:     true,
	}
}

// Discover searches dir for a vitest-affected config file, returning its
// path or "" if none is present. There is a single candidate name,
// unlike the teacher's .ts/.json precedence, since this system has no
// TypeScript-config evaluation need (see SPEC_FULL.md).
func Discover(dir string) string {
	candidate := filepath.Join(dir, "vitest-affected.config.json")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

// Load reads and validates a JSON config file at path, starting from
// DefaultConfig so unset fields keep their documented defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid %q: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the config for logical errors per §6's threshold range
// (0-1).
func (c *Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be in range [0, 1], got %v", c.Threshold)
	}
	return nil
}

// EnvDisabled reports whether the environment override of §4.7 step 1 is
// set: VITEST_AFFECTED_DISABLED=1.
func EnvDisabled() bool {
	return os.Getenv("VITEST_AFFECTED_DISABLED") == "1"
}
