// Package config provides configuration management for usage-ledger.
//
// Configuration is loaded from multiple sources with the following precedence:
// 1. Command-line flags (highest priority)
// 2. Environment variables
// 3. Configuration file
// 4. Default values (lowest priority)
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("database: %s\n", cfg.Storage.DBPath)
package config

import (
	"time"

	"github.com/0xmhha/usage-ledger/pkg/anomaly"
	"github.com/0xmhha/usage-ledger/pkg/categorizer"
	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/migration"
	"github.com/0xmhha/usage-ledger/pkg/residency"
	"github.com/0xmhha/usage-ledger/pkg/usage"
	"github.com/0xmhha/usage-ledger/pkg/validator"
)

// Config represents the complete application configuration.
//
// Invariants:
// - Storage.DBPath is not empty
// - Pipeline.TimeZone names a loadable location
// - Pipeline.ToleranceSec >= 0
// - Categories has at least one entry with unique ids and names
// - Migration.ShrinkRatio is within [0, 1].
type Config struct {
	// Storage settings
	Storage StorageConfig `yaml:"storage"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`

	// Export ingestion settings
	Ingest IngestConfig `yaml:"ingest"`

	// Rule table settings
	Rules RulesConfig `yaml:"rules"`

	// Pipeline settings
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Background-residency package sets and limits
	Residency residency.Config `yaml:"residency"`

	// Anomaly detector thresholds
	Anomaly anomaly.Config `yaml:"anomaly"`

	// Live category table
	Categories []usage.Category `yaml:"categories"`

	// Legacy category ids and repair settings
	Migration migration.Config `yaml:"migration"`

	// Display settings
	Display DisplayConfig `yaml:"display"`
}

// StorageConfig contains storage-related settings.
type StorageConfig struct {
	// Path to BoltDB database file
	DBPath string `yaml:"db_path"`

	// How long to wait for the database file lock
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level"`

	// Log output destination (stdout, stderr, file path)
	Output string `yaml:"output"`

	// Log format (text, json)
	Format string `yaml:"format"`
}

// IngestConfig contains export ingestion settings.
type IngestConfig struct {
	// Directories scanned for *.jsonl exports
	Inboxes []string `yaml:"inboxes"`

	// Largest export file accepted, in bytes
	MaxFileSize int64 `yaml:"max_file_size"`

	// Retries of a transient read failure
	MaxRetries int `yaml:"max_retries"`

	// Delay between read retries
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// RulesConfig contains rule table settings.
type RulesConfig struct {
	// Rule table YAML file; empty uses the built-in table
	Path string `yaml:"path"`

	// Quiet period before a changed rule file is reloaded
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

// PipelineConfig contains settings shared by every engine.
type PipelineConfig struct {
	// IANA time zone of dates and hours ("Local" or empty for the system zone)
	TimeZone string `yaml:"time_zone"`

	// Largest pie/detail difference still reported as consistent. Zero
	// demands exact agreement; unset means the validator default.
	ToleranceSec *int `yaml:"tolerance_sec,omitempty"`
}

// DisplayConfig contains display-related settings.
type DisplayConfig struct {
	// Default output format (table, json, simple)
	DefaultFormat string `yaml:"default_format"`

	// Compact JSON output
	Compact bool `yaml:"compact"`
}

// Validate checks if the configuration satisfies all invariants.
//
// Thread-safety: This method is read-only and thread-safe.
func (c *Config) Validate() error {
	if c.Storage.DBPath == "" {
		return ErrNoDBPath
	}
	if c.Storage.LockTimeout < 0 {
		return ErrInvalidLockTimeout
	}

	// Validate ingest config
	if c.Ingest.MaxFileSize < 0 {
		return ErrInvalidMaxFileSize
	}
	if c.Ingest.MaxRetries < 0 || c.Ingest.RetryDelay < 0 {
		return ErrInvalidRetry
	}

	if c.Rules.WatchDebounce < 0 {
		return ErrInvalidDebounce
	}

	// Validate pipeline config
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Pipeline.ToleranceSec != nil && *c.Pipeline.ToleranceSec < 0 {
		return ErrInvalidTolerance
	}
	if c.Anomaly.OverlapThresholdSec < 0 || c.Anomaly.ExtremeDurationSec < 0 {
		return ErrInvalidThreshold
	}
	for _, h := range c.Anomaly.NightHours {
		if h < 0 || h > 23 {
			return ErrInvalidNightHour
		}
	}

	if err := validateCategories(c.Categories); err != nil {
		return err
	}

	if c.Migration.ShrinkRatio < 0 || c.Migration.ShrinkRatio > 1 {
		return ErrInvalidShrinkRatio
	}

	// Validate display config
	validFormats := map[string]bool{
		"table":  true,
		"json":   true,
		"simple": true,
	}
	if !validFormats[c.Display.DefaultFormat] {
		return ErrInvalidDisplayFormat
	}

	if _, err := logger.ParseLevel(c.Logging.Level); err != nil || c.Logging.Level == "" {
		return ErrInvalidLogLevel
	}
	if err := logger.CheckFormat(c.Logging.Format); err != nil {
		return ErrInvalidLogFormat
	}

	return nil
}

func validateCategories(categories []usage.Category) error {
	if len(categories) == 0 {
		return ErrNoCategories
	}

	ids := make(map[int]bool, len(categories))
	names := make(map[string]bool, len(categories))
	for _, cat := range categories {
		if cat.Name == "" || cat.ID <= 0 {
			return ErrInvalidCategory
		}
		if ids[cat.ID] || names[cat.Name] {
			return ErrInvalidCategory
		}
		ids[cat.ID] = true
		names[cat.Name] = true
	}
	return nil
}

// Default returns a configuration with sensible default values.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			DBPath:      defaultDBPath(),
			LockTimeout: 1 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			Format: "text",
		},
		Ingest: IngestConfig{
			Inboxes:     []string{defaultInboxDir()},
			MaxFileSize: 64 * 1024 * 1024,
			MaxRetries:  3,
			RetryDelay:  100 * time.Millisecond,
		},
		Rules: RulesConfig{
			WatchDebounce: 500 * time.Millisecond,
		},
		Pipeline: PipelineConfig{
			TimeZone:     "Local",
			ToleranceSec: intPtr(validator.DefaultToleranceSec),
		},
		Residency:  residency.DefaultConfig(),
		Anomaly:    anomaly.DefaultConfig(),
		Categories: categorizer.DefaultCategories(),
		Migration: migration.Config{
			LegacyIDs:     migration.DefaultLegacyIDs(),
			ShrinkRatio:   migration.DefaultShrinkRatio,
			ProgressEvery: 1000,
		},
		Display: DisplayConfig{
			DefaultFormat: "table",
		},
	}
}

func intPtr(v int) *int { return &v }
