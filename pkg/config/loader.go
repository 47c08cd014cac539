package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/0xmhha/usage-ledger/pkg/residency"
)

// Environment variables read by Load.
const (
	EnvConfig   = "USAGE_LEDGER_CONFIG"
	EnvDB       = "USAGE_LEDGER_DB"
	EnvLogLevel = "USAGE_LEDGER_LOG_LEVEL"
	EnvRules    = "USAGE_LEDGER_RULES"
	EnvTimeZone = "USAGE_LEDGER_TZ"
	EnvInbox    = "USAGE_LEDGER_INBOX"
)

// Loader provides methods for loading configuration from various sources.
type Loader interface {
	// Load loads configuration with the following precedence:
	// 1. Environment variables
	// 2. Configuration file
	// 3. Default values
	//
	// Returns the merged configuration or an error if validation fails.
	Load() (*Config, error)

	// LoadFromFile loads configuration from a specific file.
	LoadFromFile(path string) (*Config, error)
}

// loader implements the Loader interface.
type loader struct {
	configPath string
}

// NewLoader creates a new configuration loader.
//
// If configPath is empty, the first existing file of SearchPaths is used.
func NewLoader(configPath string) Loader {
	return &loader{
		configPath: configPath,
	}
}

// Load implements Loader.Load.
func (l *loader) Load() (*Config, error) {
	cfg := Default()

	configPath := l.configPath
	if configPath == "" {
		configPath = FindConfigFile()
	}

	if configPath != "" {
		fileCfg, err := l.LoadFromFile(configPath)
		if err != nil {
			// An explicit path must load; a discovered one falls back to defaults.
			if l.configPath != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
		} else {
			cfg = l.mergeConfigs(cfg, fileCfg)
		}
	}

	cfg = l.applyEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile implements Loader.LoadFromFile.
func (l *loader) LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return &cfg, nil
}

// FindConfigFile returns the first existing file of SearchPaths, or an
// empty string when none exists.
func FindConfigFile() string {
	for _, path := range SearchPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// mergeConfigs merges file configuration into default configuration.
//
// File values override defaults, but only if they are non-zero.
func (l *loader) mergeConfigs(base, override *Config) *Config {
	result := *base

	// Merge storage config
	if override.Storage.DBPath != "" {
		result.Storage.DBPath = override.Storage.DBPath
	}
	if override.Storage.LockTimeout != 0 {
		result.Storage.LockTimeout = override.Storage.LockTimeout
	}

	// Merge logging config
	if override.Logging.Level != "" {
		result.Logging.Level = override.Logging.Level
	}
	if override.Logging.Output != "" {
		result.Logging.Output = override.Logging.Output
	}
	if override.Logging.Format != "" {
		result.Logging.Format = override.Logging.Format
	}

	// Merge ingest config
	if len(override.Ingest.Inboxes) > 0 {
		result.Ingest.Inboxes = override.Ingest.Inboxes
	}
	if override.Ingest.MaxFileSize != 0 {
		result.Ingest.MaxFileSize = override.Ingest.MaxFileSize
	}
	if override.Ingest.MaxRetries != 0 {
		result.Ingest.MaxRetries = override.Ingest.MaxRetries
	}
	if override.Ingest.RetryDelay != 0 {
		result.Ingest.RetryDelay = override.Ingest.RetryDelay
	}

	// Merge rules config
	if override.Rules.Path != "" {
		result.Rules.Path = override.Rules.Path
	}
	if override.Rules.WatchDebounce != 0 {
		result.Rules.WatchDebounce = override.Rules.WatchDebounce
	}

	// Merge pipeline config
	if override.Pipeline.TimeZone != "" {
		result.Pipeline.TimeZone = override.Pipeline.TimeZone
	}
	if override.Pipeline.ToleranceSec != nil {
		result.Pipeline.ToleranceSec = intPtr(*override.Pipeline.ToleranceSec)
	}

	// Merge residency config
	if override.Residency.High != nil {
		result.Residency.High = override.Residency.High
	}
	if override.Residency.Medium != nil {
		result.Residency.Medium = override.Residency.Medium
	}
	if override.Residency.SelfPackage != "" {
		result.Residency.SelfPackage = override.Residency.SelfPackage
	}
	if override.Residency.SelfMinValidSec != 0 {
		result.Residency.SelfMinValidSec = override.Residency.SelfMinValidSec
	}
	if override.Residency.HighLimits != (residency.Limits{}) {
		result.Residency.HighLimits = override.Residency.HighLimits
	}
	if override.Residency.MediumLimits != (residency.Limits{}) {
		result.Residency.MediumLimits = override.Residency.MediumLimits
	}
	if override.Residency.LowLimits != (residency.Limits{}) {
		result.Residency.LowLimits = override.Residency.LowLimits
	}

	// Merge anomaly config
	if override.Anomaly.ExtremeDurationSec != 0 {
		result.Anomaly.ExtremeDurationSec = override.Anomaly.ExtremeDurationSec
	}
	if override.Anomaly.NightHours != nil {
		result.Anomaly.NightHours = override.Anomaly.NightHours
	}
	if override.Anomaly.OverlapThresholdSec != 0 {
		result.Anomaly.OverlapThresholdSec = override.Anomaly.OverlapThresholdSec
	}
	if override.Anomaly.Overrides != nil {
		result.Anomaly.Overrides = override.Anomaly.Overrides
	}
	if override.Anomaly.Curves != nil {
		result.Anomaly.Curves = override.Anomaly.Curves
	}

	// Merge category table
	if len(override.Categories) > 0 {
		result.Categories = override.Categories
	}

	// Merge migration config
	if override.Migration.LegacyIDs != nil {
		result.Migration.LegacyIDs = override.Migration.LegacyIDs
	}
	if override.Migration.ShrinkRatio != 0 {
		result.Migration.ShrinkRatio = override.Migration.ShrinkRatio
	}
	if override.Migration.ProgressEvery != 0 {
		result.Migration.ProgressEvery = override.Migration.ProgressEvery
	}

	// Merge display config
	if override.Display.DefaultFormat != "" {
		result.Display.DefaultFormat = override.Display.DefaultFormat
	}
	// Compact is a bool, so we always take the override value
	result.Display.Compact = override.Display.Compact

	return &result
}

// applyEnvVars applies environment variable overrides to the configuration.
func (l *loader) applyEnvVars(cfg *Config) *Config {
	result := *cfg

	if dbPath := os.Getenv(EnvDB); dbPath != "" {
		result.Storage.DBPath = dbPath
	}

	if logLevel := os.Getenv(EnvLogLevel); logLevel != "" {
		result.Logging.Level = strings.ToLower(logLevel)
	}

	if rulesPath := os.Getenv(EnvRules); rulesPath != "" {
		result.Rules.Path = rulesPath
	}

	if tz := os.Getenv(EnvTimeZone); tz != "" {
		result.Pipeline.TimeZone = tz
	}

	// USAGE_LEDGER_INBOX: list separated like PATH
	if inbox := os.Getenv(EnvInbox); inbox != "" {
		result.Ingest.Inboxes = filepath.SplitList(inbox)
	}

	return &result
}

// Load is a convenience function that creates a loader and loads configuration.
//
// Equivalent to:
//
//	loader := NewLoader("")
//	return loader.Load()
func Load() (*Config, error) {
	return NewLoader("").Load()
}

// LoadFromFile is a convenience function that loads configuration from a file.
//
// Equivalent to:
//
//	loader := NewLoader(path)
//	return loader.Load()
func LoadFromFile(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Save writes the configuration to a YAML file.
//
// Creates parent directories if they don't exist.
// File is created with 0600 permissions (read/write for owner only).
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
