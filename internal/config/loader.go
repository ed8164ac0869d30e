// Package config loads engine configuration from JSON files with a
// defaults -> global -> project precedence chain. Missing files are not
// errors; malformed JSON and out-of-range values are.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Precedence, highest first: project config, global config, defaults.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.dawn/config.json
// Project: .dawn/config.json (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".dawn", "config.json")
	projectPath := filepath.Join(".dawn", "config.json")

	return Load(globalPath, projectPath)
}

// Validate checks the engine settings against their documented ranges.
func (c *Config) Validate() error {
	e := c.WorkflowEngine
	if e.MaxRetries < 0 || e.MaxRetries > 10 {
		return fmt.Errorf("workflow_engine.max_retries = %d out of range [0,10]", e.MaxRetries)
	}
	if e.RetryDelay < 0 || e.RetryDelay > 60 {
		return fmt.Errorf("workflow_engine.retry_delay = %v out of range [0,60]", e.RetryDelay)
	}
	if e.Timeout < 0 || e.Timeout > 3600 {
		return fmt.Errorf("workflow_engine.timeout = %v out of range [0,3600]", e.Timeout)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	return nil
}

// mergeConfigFile reads a JSON config file over the base config.
// Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	// Unmarshal over the base so absent keys keep their current values.
	if err := json.Unmarshal(data, base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
