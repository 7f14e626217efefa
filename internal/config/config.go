package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for sleuth
type Config struct {
	// Analysis is the registered analysis run by default
	Analysis string `yaml:"analysis" env:"SLEUTH_ANALYSIS"`

	// SortWorklist enables ordering the worklist by the analysis rank after every step
	SortWorklist bool `yaml:"sort_worklist" env:"SLEUTH_SORT_WORKLIST"`

	// Encoding and Direction select how node information is printed
	Encoding  string `yaml:"encoding" env:"SLEUTH_ENCODING"`
	Direction string `yaml:"direction" env:"SLEUTH_DIRECTION"`

	// MaxSteps bounds a non-interactive run (0 means unbounded)
	MaxSteps int `yaml:"max_steps" env:"SLEUTH_MAX_STEPS"`

	// Logging
	LogLevel string `yaml:"log_level" env:"SLEUTH_LOG_LEVEL"`
	JSONLogs bool   `yaml:"json_logs" env:"SLEUTH_JSON_LOGS"`
	Verbose  bool   `yaml:"verbose" env:"SLEUTH_VERBOSE"`

	// Metrics prints collected counters after a run
	Metrics bool `yaml:"metrics" env:"SLEUTH_METRICS"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Analysis:     "counting",
		SortWorklist: true,
		Encoding:     "text",
		Direction:    "both",
		MaxSteps:     10000,
		LogLevel:     "info",
		JSONLogs:     false,
		Verbose:      false,
		Metrics:      false,
	}
}

// GlobalConfigFilePath returns the global config file path (~/.sleuth/config.yaml)
func GlobalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sleuth/config.yaml"
	}
	return filepath.Join(home, ".sleuth", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.sleuth/config.yaml)
func ProjectConfigFilePath() string {
	return filepath.Join(".sleuth", "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Project-level config (./.sleuth/config.yaml)
// 2. Environment variables
// 3. Global config (~/.sleuth/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	return load(GlobalConfigFilePath(), ProjectConfigFilePath())
}

func load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	// 1. Global config
	if err := mergeFile(cfg, globalPath); err != nil {
		return nil, err
	}

	// 2. Environment overrides global
	applyEnvOverrides(cfg)

	// 3. Project config overrides everything
	if err := mergeFile(cfg, projectPath); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SLEUTH_ANALYSIS"); v != "" {
		cfg.Analysis = v
	}
	if v := os.Getenv("SLEUTH_SORT_WORKLIST"); v != "" {
		cfg.SortWorklist = parseBool(v)
	}
	if v := os.Getenv("SLEUTH_ENCODING"); v != "" {
		cfg.Encoding = v
	}
	if v := os.Getenv("SLEUTH_DIRECTION"); v != "" {
		cfg.Direction = v
	}
	if v := os.Getenv("SLEUTH_MAX_STEPS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.MaxSteps = i
		}
	}
	if v := os.Getenv("SLEUTH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SLEUTH_JSON_LOGS"); v != "" {
		cfg.JSONLogs = parseBool(v)
	}
	if v := os.Getenv("SLEUTH_VERBOSE"); v != "" {
		cfg.Verbose = parseBool(v)
	}
	if v := os.Getenv("SLEUTH_METRICS"); v != "" {
		cfg.Metrics = parseBool(v)
	}
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if c.Analysis == "" {
		return fmt.Errorf("analysis is required")
	}

	switch c.Encoding {
	case "text", "json", "msgpack":
		// Valid
	default:
		return fmt.Errorf("invalid encoding: %s (must be 'text', 'json' or 'msgpack')", c.Encoding)
	}

	switch c.Direction {
	case "in", "out", "both":
		// Valid
	default:
		return fmt.Errorf("invalid direction: %s (must be 'in', 'out' or 'both')", c.Direction)
	}

	if c.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		return fmt.Errorf("invalid log_level: %s (must be 'debug', 'info', 'warn' or 'error')", c.LogLevel)
	}

	return nil
}

func parseBool(s string) bool {
	return s == "true" || s == "1" || s == "yes"
}

// parseInt attempts to parse a string as int
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return 0
	}
	return i
}
