// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigDir is the directory name for comply configuration.
	DefaultConfigDir = ".comply"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.yaml"
	// DefaultDatabaseFile is the default SQLite database file name.
	DefaultDatabaseFile = "comply.db"
)

// Config holds static infrastructure configuration (read-only after init).
type Config struct {
	SQLite     SQLiteConfig     `yaml:"sqlite,omitempty"`
	Automation AutomationConfig `yaml:"automation,omitempty"`
}

// SQLiteConfig holds configuration for the SQLite store.
type SQLiteConfig struct {
	// Path is the file path to the SQLite database.
	Path string `yaml:"path,omitempty"`
}

// AutomationConfig tunes when the decision engine may resolve a pending
// review without a human.
type AutomationConfig struct {
	// Enabled is the global kill switch. When false every evaluation
	// returns "disabled" and nothing is automated.
	Enabled bool `yaml:"enabled"`
	// MinRuleSuccessRate is the success-rate floor a learned rule must
	// hold to participate in matching.
	MinRuleSuccessRate float64 `yaml:"min_rule_success_rate,omitempty"`
	// LowRisk and MediumRisk gate the heuristic fallback per risk level.
	// High and critical risk are never auto-approved heuristically.
	LowRisk    HeuristicThreshold `yaml:"low_risk,omitempty"`
	MediumRisk HeuristicThreshold `yaml:"medium_risk,omitempty"`
}

// HeuristicThreshold gates heuristic auto-approval for one risk level.
type HeuristicThreshold struct {
	// MinConfidence is the minimum compliance confidence (0-1).
	MinConfidence float64 `yaml:"min_confidence"`
	// MaxAmount is the largest auto-approvable invoice amount, inclusive.
	MaxAmount float64 `yaml:"max_amount"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Automation: AutomationConfig{
			Enabled:            true,
			MinRuleSuccessRate: 0.7,
			LowRisk:            HeuristicThreshold{MinConfidence: 0.8, MaxAmount: 10000},
			MediumRisk:         HeuristicThreshold{MinConfidence: 0.9, MaxAmount: 2500},
		},
	}
}

// Load loads configuration from the .comply directory in the given path.
func Load(basePath string) (*Config, error) {
	configFile := ConfigFilePath(basePath)

	data, err := os.ReadFile(configFile)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s (run 'comply init' first)", configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = DatabasePath(basePath)
	}

	// Apply environment variable overrides
	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("COMPLY_DB_PATH"); path != "" {
		c.SQLite.Path = path
	}
	// COMPLY_AUTOMATION=0 is the operational kill switch for automated
	// decisions without editing the config file.
	if v := os.Getenv("COMPLY_AUTOMATION"); v == "0" || v == "false" {
		c.Automation.Enabled = false
	}
}

// Write persists the configuration, creating the config directory if needed.
func (c *Config) Write(basePath string) error {
	if err := os.MkdirAll(ConfigDir(basePath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(ConfigFilePath(basePath), data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// ConfigDir returns the path to the .comply config directory.
func ConfigDir(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir)
}

// ConfigFilePath returns the path to the config file.
func ConfigFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)
}

// DatabasePath returns the default SQLite database path.
func DatabasePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultDatabaseFile)
}

// Exists checks if a comply config exists in the given path.
func Exists(basePath string) bool {
	_, err := os.Stat(ConfigFilePath(basePath))
	return err == nil
}
